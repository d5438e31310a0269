package api

import (
	"context"
	"encoding/json"
	"fmt"
)

// RequestAccessToken posts the credentials without a bearer token. The raw
// body is returned because it may carry a time-penalty challenge instead
// of a token.
func (c *Client) RequestAccessToken(ctx context.Context, req AccessTokenRequest) (json.RawMessage, error) {
	raw, err := c.Post(ctx, "/auth/accesstokenrequest", req, "")
	if err != nil {
		return nil, fmt.Errorf("access token request: %w", err)
	}
	return raw, nil
}
