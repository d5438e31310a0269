package api

import (
	"context"
	"encoding/json"
	"fmt"
)

// AccountList returns GET /account/list as raw JSON.
func (c *Client) AccountList(ctx context.Context, token string) (json.RawMessage, error) {
	raw, err := c.Get(ctx, "/account/list", nil, token)
	if err != nil {
		return nil, fmt.Errorf("account list: %w", err)
	}
	return raw, nil
}

// OrderList returns GET /order/list as raw JSON.
func (c *Client) OrderList(ctx context.Context, token string) (json.RawMessage, error) {
	raw, err := c.Get(ctx, "/order/list", nil, token)
	if err != nil {
		return nil, fmt.Errorf("order list: %w", err)
	}
	return raw, nil
}
