// Package fetch is the HTTP collaborator: JSON GETs with query parameters
// for repository metadata and streaming downloads for archives.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPClient abstracts HTTP operations for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultHTTPClient uses http.DefaultClient.
type DefaultHTTPClient struct{}

func (DefaultHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return http.DefaultClient.Do(req)
}

// StatusError reports an unexpected HTTP status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
}

// Request describes one GET.
type Request struct {
	Query   url.Values
	Headers map[string]string
	URL     string
	// Timeout bounds the request when positive.
	Timeout time.Duration
}

// Client issues GET requests through an HTTPClient.
type Client struct {
	HTTP      HTTPClient
	UserAgent string
}

// New returns a Client using the default HTTP client.
func New() *Client {
	return &Client{HTTP: DefaultHTTPClient{}, UserAgent: "componentmgr"}
}

func (c *Client) httpClient() HTTPClient {
	if c == nil || c.HTTP == nil {
		return DefaultHTTPClient{}
	}
	return c.HTTP
}

// Get performs the request and returns the response body on 200 OK. The
// caller must close the returned body and call the cancel function.
func (c *Client) Get(ctx context.Context, r Request) (io.ReadCloser, context.CancelFunc, error) {
	cancel := context.CancelFunc(func() {})
	if r.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
	}

	target, err := buildURL(r.URL, r.Query)
	if err != nil {
		cancel()
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("creating request: %w", err)
	}
	if c != nil && c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("fetching %s: %w", target, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		cancel()
		return nil, nil, &StatusError{URL: target, StatusCode: resp.StatusCode}
	}
	return resp.Body, cancel, nil
}

// GetJSON performs the request and decodes a JSON body into out.
func (c *Client) GetJSON(ctx context.Context, r Request, out any) error {
	body, cancel, err := c.Get(ctx, r)
	if err != nil {
		return err
	}
	defer cancel()
	defer body.Close()

	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", r.URL, err)
	}
	return nil
}

// Download streams the body of a GET into w and returns the byte count.
func (c *Client) Download(ctx context.Context, r Request, w io.Writer) (int64, error) {
	body, cancel, err := c.Get(ctx, r)
	if err != nil {
		return 0, err
	}
	defer cancel()
	defer body.Close()

	n, err := io.Copy(w, body)
	if err != nil {
		return n, fmt.Errorf("reading response from %s: %w", r.URL, err)
	}
	return n, nil
}

func buildURL(raw string, query url.Values) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing url %s: %w", raw, err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
