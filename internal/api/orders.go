package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/itsobito471-bot/thebottlestories/internal/domain"
)

type orderLine struct {
	Product            string                     `json:"product"`
	Name               string                     `json:"name"`
	Price              decimal.Decimal            `json:"price"`
	Quantity           int                        `json:"quantity"`
	SelectedFragrances []domain.SelectedFragrance `json:"selectedFragrances"`
	CustomMessage      string                     `json:"customMessage,omitempty"`
}

type orderPayload struct {
	Items           []orderLine         `json:"items"`
	ShippingAddress domain.ShippingInfo `json:"shippingAddress"`
	TotalAmount     decimal.Decimal     `json:"totalAmount"`
	PaymentMethod   string              `json:"paymentMethod"`
}

// SubmitOrder places an order. It is sent once and never retried.
func (c *Client) SubmitOrder(ctx context.Context, in domain.OrderRequest) (*domain.Order, error) {
	payload := orderPayload{
		Items:           make([]orderLine, 0, len(in.Items)),
		ShippingAddress: in.ShippingAddress,
		TotalAmount:     in.TotalAmount,
		PaymentMethod:   in.PaymentMethod,
	}
	for _, it := range in.Items {
		sel := it.SelectedFragrances
		if sel == nil {
			sel = []domain.SelectedFragrance{}
		}
		payload.Items = append(payload.Items, orderLine{
			Product:            it.ID,
			Name:               it.Name,
			Price:              it.Price,
			Quantity:           it.Quantity,
			SelectedFragrances: sel,
			CustomMessage:      it.CustomMessage,
		})
	}

	var order domain.Order
	if err := c.sendJSON(ctx, http.MethodPost, "/orders", payload, &order); err != nil {
		return nil, fmt.Errorf("submit order: %w", err)
	}
	return &order, nil
}

// MyOrders lists the signed-in shopper's orders.
func (c *Client) MyOrders(ctx context.Context) ([]domain.Order, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "/orders/my", nil, &raw); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return decodeList[domain.Order](raw, "orders")
}

// GetOrder fetches one order.
func (c *Client) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	var order domain.Order
	if err := c.getJSON(ctx, "/orders/"+url.PathEscape(id), nil, &order); err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return &order, nil
}
