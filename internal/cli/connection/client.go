package connection

import (
	"context"
	"net/http"
	"net/url"

	"github.com/yndnr/metalgate/internal/core/domain"
)

// Client performs authenticated API calls with a single session token.
//
// A 401 answer reports the token's generation back to the SessionManager,
// which tears the session down only if that token is still current.
type Client struct {
	http       *HTTPClient
	token      string
	generation uint64
	onExpired  func(generation uint64)
}

// Generation returns the session generation this client was built for.
func (c *Client) Generation() uint64 {
	return c.generation
}

// HasToken reports whether requests carry a bearer token.
func (c *Client) HasToken() bool {
	return c.token != ""
}

// Get issues a GET and decodes the JSON answer into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

// Post issues a POST with a JSON body (nil sends no body).
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, Request{Method: http.MethodPost, Path: path, JSON: body}, out)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.do(ctx, Request{Method: http.MethodDelete, Path: path}, out)
}

func (c *Client) do(ctx context.Context, r Request, out any) error {
	r.Token = c.token

	resp, err := c.http.Do(ctx, r)
	if err != nil {
		return domain.ErrNetwork.WithDetails(err.Error()).WithCause(err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		detail := ReadDetail(resp.Body)
		drain(resp)
		if c.token == "" {
			return domain.ErrNotAuthenticated.WithDetails(detail)
		}
		if c.onExpired != nil {
			c.onExpired(c.generation)
		}
		return domain.ErrSessionExpired.WithDetails(detail)
	}

	return ParseResponse(resp, out)
}
