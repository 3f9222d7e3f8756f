package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/itsobito471-bot/thebottlestories/internal/domain"
	apperrors "github.com/itsobito471-bot/thebottlestories/pkg/errors"
	"github.com/itsobito471-bot/thebottlestories/pkg/logger"
)

// serverCartItem is the API's cart line: the product is referenced, not
// flattened, and there is no client cart id.
type serverCartItem struct {
	Product            domain.ProductRef          `json:"product"`
	Quantity           int                        `json:"quantity"`
	SelectedFragrances []domain.SelectedFragrance `json:"selectedFragrances,omitempty"`
	CustomMessage      string                     `json:"customMessage,omitempty"`
}

type cartLine struct {
	Product            string                     `json:"product"`
	Quantity           int                        `json:"quantity"`
	SelectedFragrances []domain.SelectedFragrance `json:"selectedFragrances"`
	CustomMessage      string                     `json:"customMessage,omitempty"`
}

type cartPayload struct {
	Items []cartLine `json:"items"`
}

func toCartLines(items domain.Cart) []cartLine {
	lines := make([]cartLine, 0, len(items))
	for _, it := range items {
		sel := it.SelectedFragrances
		if sel == nil {
			sel = []domain.SelectedFragrance{}
		}
		lines = append(lines, cartLine{
			Product:            it.ID,
			Quantity:           it.Quantity,
			SelectedFragrances: sel,
			CustomMessage:      it.CustomMessage,
		})
	}
	return lines
}

// fromServerCart converts API lines to cart items with fresh cart ids.
func fromServerCart(raw json.RawMessage) (domain.Cart, error) {
	lines, err := decodeList[serverCartItem](raw, "items")
	if err != nil {
		return nil, err
	}
	cart := make(domain.Cart, 0, len(lines))
	for _, l := range lines {
		item := domain.CartItem{
			CartID:             uuid.NewString(),
			Quantity:           max(l.Quantity, 1),
			SelectedFragrances: l.SelectedFragrances,
			CustomMessage:      l.CustomMessage,
		}
		if l.Product.Product != nil {
			item.Product = *l.Product.Product
		} else {
			item.ID = l.Product.ID
		}
		cart = append(cart, item)
	}
	return cart, nil
}

// completeProducts loads the catalog product of every line the API sent as
// a bare id, so prices and slots are known. Lines whose product no longer
// exists are dropped. Each product is fetched once.
func (c *Client) completeProducts(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	loaded := make(map[string]*domain.Product)
	out := cart[:0]
	for _, item := range cart {
		if item.Name != "" || item.ID == "" {
			out = append(out, item)
			continue
		}
		p, ok := loaded[item.ID]
		if !ok {
			var err error
			p, err = c.GetProduct(ctx, item.ID)
			switch {
			case errors.Is(err, apperrors.ErrNotFound):
				logger.WithContext(ctx, c.logger).WarnContext(ctx, "dropping cart line for missing product",
					slog.String("product_id", item.ID))
				p = nil
			case err != nil:
				return nil, err
			}
			loaded[item.ID] = p
		}
		if p == nil {
			continue
		}
		item.Product = *p
		out = append(out, item)
	}
	return out, nil
}

// serverCart decodes a cart response and completes its products.
func (c *Client) serverCart(ctx context.Context, raw json.RawMessage) (domain.Cart, error) {
	cart, err := fromServerCart(raw)
	if err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	return c.completeProducts(ctx, cart)
}

// FetchCart returns the signed-in shopper's server cart.
func (c *Client) FetchCart(ctx context.Context) (domain.Cart, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "/cart", nil, &raw); err != nil {
		return nil, fmt.Errorf("fetch cart: %w", err)
	}
	cart, err := c.serverCart(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("fetch cart: %w", err)
	}
	return cart, nil
}

// MergeCart hands the guest cart to the server and returns the merged cart.
func (c *Client) MergeCart(ctx context.Context, items domain.Cart) (domain.Cart, error) {
	var raw json.RawMessage
	if err := c.sendJSON(ctx, http.MethodPost, "/cart/merge", cartPayload{Items: toCartLines(items)}, &raw); err != nil {
		return nil, fmt.Errorf("merge cart: %w", err)
	}
	cart, err := c.serverCart(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("merge cart: %w", err)
	}
	return cart, nil
}

// SaveCart replaces the server cart with items.
func (c *Client) SaveCart(ctx context.Context, items domain.Cart) error {
	if err := c.sendJSON(ctx, http.MethodPut, "/cart", cartPayload{Items: toCartLines(items)}, nil); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}
