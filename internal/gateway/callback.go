package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/groupflight/flightgroup/internal/model"
	"github.com/groupflight/flightgroup/internal/services/delivery"
)

// ErrMissingCallbackURL is returned when no callback base URL is configured
var ErrMissingCallbackURL = errors.New("callback base URL is required")

// Callback pushes frames through an external websocket front that exposes
// a connection management endpoint: POST {base}/@connections/{id}.
// A 410 response means the connection no longer exists.
type Callback struct {
	base   string
	client *http.Client
}

var _ delivery.Gateway = (*Callback)(nil)

// NewCallback creates a Callback gateway for the given base URL
func NewCallback(baseURL string, timeout time.Duration) (*Callback, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingCallbackURL
	}
	if timeout <= 0 {
		timeout = writeWait
	}
	return &Callback{
		base:   baseURL,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Push posts payload to the connection endpoint
func (c *Callback) Push(ctx context.Context, id model.ConnectionID, payload []byte) error {
	endpoint := c.base + "/@connections/" + url.PathEscape(string(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("callback push to %s: %w", id, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusGone:
		return fmt.Errorf("%w: %s", delivery.ErrGone, id)
	case resp.StatusCode >= 300:
		return fmt.Errorf("callback push to %s: unexpected status %d", id, resp.StatusCode)
	}
	return nil
}

// Fallback tries the primary gateway and, when it reports the connection
// gone, the secondary
type Fallback struct {
	Primary   delivery.Gateway
	Secondary delivery.Gateway
}

var _ delivery.Gateway = (*Fallback)(nil)

// Push delivers through the first gateway that knows the connection
func (f *Fallback) Push(ctx context.Context, id model.ConnectionID, payload []byte) error {
	err := f.Primary.Push(ctx, id, payload)
	if err == nil || !errors.Is(err, delivery.ErrGone) || f.Secondary == nil {
		return err
	}
	return f.Secondary.Push(ctx, id, payload)
}
