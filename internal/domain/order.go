package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethodCOD is the only payment method the storefront offers.
const PaymentMethodCOD = "Cash on Delivery"

// OrderStatus is the fulfilment state reported by the API.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

// ShippingInfo is the delivery address captured at checkout. Only presence
// is checked here. Formats are left to the API.
type ShippingInfo struct {
	FirstName string `json:"firstName" validate:"notblank"`
	LastName  string `json:"lastName" validate:"notblank"`
	Email     string `json:"email" validate:"notblank"`
	Phone     string `json:"phone" validate:"notblank"`
	Street    string `json:"street" validate:"notblank"`
	City      string `json:"city" validate:"notblank"`
	State     string `json:"state" validate:"notblank"`
	Zip       string `json:"zip" validate:"notblank"`
	Country   string `json:"country,omitempty"`
}

// OrderItem is a line of a placed order.
type OrderItem struct {
	Product            ProductRef          `json:"product"`
	Name               string              `json:"name,omitempty"`
	Price              decimal.Decimal     `json:"price"`
	Quantity           int                 `json:"quantity"`
	SelectedFragrances []SelectedFragrance `json:"selectedFragrances,omitempty"`
	CustomMessage      string              `json:"customMessage,omitempty"`
}

// Order is write-once from the storefront's side.
type Order struct {
	ID              string          `json:"_id"`
	Items           []OrderItem     `json:"items"`
	ShippingAddress ShippingInfo    `json:"shippingAddress"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	PaymentMethod   string          `json:"paymentMethod"`
	Status          OrderStatus     `json:"status"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// OrderRequest is the body of an order submission.
type OrderRequest struct {
	Items           []CartItem      `json:"items"`
	ShippingAddress ShippingInfo    `json:"shippingAddress"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	PaymentMethod   string          `json:"paymentMethod"`
}

// User is the cached profile of the signed-in shopper. Display only.
type User struct {
	ID     string `json:"_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}
