package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/itsobito471-bot/thebottlestories/internal/domain"
)

// GetProduct fetches one product with its fragrances and bottle configuration.
func (c *Client) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	if err := c.getJSON(ctx, "/products/"+url.PathEscape(id), nil, &p); err != nil {
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	return &p, nil
}

// ListProducts lists catalog products; query is passed through (tag, search, page...).
func (c *Client) ListProducts(ctx context.Context, query url.Values) ([]domain.Product, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "/products", query, &raw); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return decodeList[domain.Product](raw, "products")
}

// ListFragrances returns the fragrance catalog with live stock flags.
func (c *Client) ListFragrances(ctx context.Context) ([]domain.Fragrance, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "/fragrances", nil, &raw); err != nil {
		return nil, fmt.Errorf("list fragrances: %w", err)
	}
	return decodeList[domain.Fragrance](raw, "fragrances")
}

// ListTags returns the catalog tags.
func (c *Client) ListTags(ctx context.Context) ([]domain.Tag, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "/tags", nil, &raw); err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return decodeList[domain.Tag](raw, "tags")
}
