package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// DefaultSuggestLimit caps the number of suggestions requested.
const DefaultSuggestLimit = 5

// FindContract looks up a contract by exact symbol. It returns nil, nil
// when the API knows no such contract.
func (c *Client) FindContract(ctx context.Context, name, token string) (*Contract, error) {
	query := url.Values{}
	query.Set("name", name)

	raw, err := c.Get(ctx, "/contract/find", query, token)
	if err != nil {
		return nil, fmt.Errorf("find contract %s: %w", name, err)
	}

	var contract Contract
	if err := decode("/contract/find", raw, &contract); err != nil {
		return nil, err
	}
	if contract.ID == 0 {
		return nil, nil
	}
	return &contract, nil
}

// SuggestContracts returns contracts whose symbol starts with text.
func (c *Client) SuggestContracts(ctx context.Context, text, token string) ([]Contract, error) {
	query := url.Values{}
	query.Set("t", text)
	query.Set("l", strconv.Itoa(DefaultSuggestLimit))

	raw, err := c.Get(ctx, "/contract/suggest", query, token)
	if err != nil {
		return nil, fmt.Errorf("suggest contracts %s: %w", text, err)
	}

	var contracts []Contract
	if err := decode("/contract/suggest", raw, &contracts); err != nil {
		return nil, err
	}
	return contracts, nil
}
