package moodle

import (
	"context"
	"time"

	"github.com/bianoble/componentmgr/internal/apperrors"
	"github.com/bianoble/componentmgr/internal/fetch"
)

// Catalog lists the Moodle releases available for download.
type Catalog struct {
	Client  *fetch.Client
	URL     string
	Timeout time.Duration
}

type catalogPayload struct {
	Versions []Version `json:"versions"`
}

// Versions fetches the release list in catalog order.
func (c *Catalog) Versions(ctx context.Context) ([]Version, error) {
	var payload catalogPayload
	err := c.Client.GetJSON(ctx, fetch.Request{URL: c.URL, Timeout: c.Timeout}, &payload)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindSourceUnavailable, "moodle", "fetching release catalog", err)
	}
	return payload.Versions, nil
}
