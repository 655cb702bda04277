package setup

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client fetches the setup feed.
type Client struct {
	http *resty.Client
	url  string
}

// Options configures a Client.
type Options struct {
	Timeout       time.Duration
	RetryCount    int
	RetryWaitTime time.Duration
}

// NewClient creates a setup feed client for url.
func NewClient(url string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryWaitTime <= 0 {
		opts.RetryWaitTime = time.Second
	}

	rc := resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWaitTime).
		SetRetryMaxWaitTime(5*opts.RetryWaitTime).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})

	return &Client{http: rc, url: url}
}

// Fetch retrieves and decodes all entity records.
//
// Returns:
//   - []Record: Records in feed order
//   - error: ErrFetchFailed or ErrInvalidPayload (wrapped)
func (c *Client) Fetch(ctx context.Context) ([]Record, error) {
	resp, err := c.http.R().SetContext(ctx).Get(c.url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: %s returned %s", ErrFetchFailed, c.url, resp.Status())
	}

	return Parse(resp.Body())
}
