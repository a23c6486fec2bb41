package fetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSONWithQueryAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "keep", r.URL.Query().Get("existing"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "componentmgr", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"name":"mod_forum"}`))
	}))
	defer srv.Close()

	var out struct {
		Name string `json:"name"`
	}
	err := New().GetJSON(context.Background(), Request{
		URL:     srv.URL + "/api?existing=keep",
		Query:   url.Values{"page": {"2"}},
		Headers: map[string]string{"Authorization": "Bearer tok"},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "mod_forum", out.Name)
}

func TestGetStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New().Download(context.Background(), Request{URL: srv.URL}, io.Discard)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestGetJSONDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	var out map[string]any
	err := New().GetJSON(context.Background(), Request{URL: srv.URL}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding response")
}

func TestDownloadStreams(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 64*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	n, err := New().Download(context.Background(), Request{URL: srv.URL}, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)
	assert.Equal(t, payload, buf.Bytes())
}

func TestGetTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := New().Download(context.Background(), Request{URL: srv.URL, Timeout: 50 * time.Millisecond}, io.Discard)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

type failingClient struct{ err error }

func (f failingClient) Do(*http.Request) (*http.Response, error) { return nil, f.err }

func TestGetTransportError(t *testing.T) {
	boom := errors.New("connection refused")
	c := &Client{HTTP: failingClient{err: boom}}
	_, err := c.Download(context.Background(), Request{URL: "https://example.invalid/x"}, io.Discard)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
}

func TestNilClientUsesDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	var c *Client
	var buf bytes.Buffer
	_, err := c.Download(context.Background(), Request{URL: srv.URL}, &buf)
	require.NoError(t, err)
	assert.Equal(t, "ok", buf.String())
}
