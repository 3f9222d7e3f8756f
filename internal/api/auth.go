package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/itsobito471-bot/thebottlestories/internal/domain"
)

// Me returns the profile of the token's owner.
func (c *Client) Me(ctx context.Context) (*domain.User, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "/auth/me", nil, &raw); err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}

	var wrapped struct {
		User *domain.User `json:"user"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.User != nil {
		return wrapped.User, nil
	}
	var u domain.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &u, nil
}
