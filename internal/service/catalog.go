package service

import (
	"context"
	"log/slog"

	"github.com/itsobito471-bot/thebottlestories/internal/domain"
)

// CatalogAPI is the read-only catalog part of the upstream API.
type CatalogAPI interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListFragrances(ctx context.Context) ([]domain.Fragrance, error)
}

// Catalog loads products with their fragrance references populated.
type Catalog struct {
	api    CatalogAPI
	logger *slog.Logger
}

// NewCatalog creates a catalog reader.
func NewCatalog(api CatalogAPI, logger *slog.Logger) *Catalog {
	return &Catalog{api: api, logger: logger}
}

// Product fetches a product. Bare fragrance references are resolved from
// the fragrance list when it can be loaded and otherwise left bare.
func (c *Catalog) Product(ctx context.Context, id string) (*domain.Product, error) {
	p, err := c.api.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, ref := range p.AvailableFragrances {
		if ref.Fragrance != nil {
			continue
		}
		fragrances, err := c.api.ListFragrances(ctx)
		if err != nil {
			c.logger.WarnContext(ctx, "resolve product fragrances failed",
				slog.String("product_id", id),
				slog.String("error", err.Error()),
			)
			return p, nil
		}
		p.ResolveFragrances(fragrances)
		break
	}
	return p, nil
}

// SlotOption is a fragrance offered for a product's slots.
type SlotOption struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	InStock bool   `json:"inStock"`
}

// ProductSlots is what a configurator renders for a product.
type ProductSlots struct {
	ProductID          string        `json:"productId"`
	Name               string        `json:"name"`
	Slots              []domain.Slot `json:"slots"`
	Options            []SlotOption  `json:"options"`
	AllowCustomMessage bool          `json:"allowCustomMessage"`
}

// Slots describes the configurable slots of a product.
func (c *Catalog) Slots(ctx context.Context, id string) (ProductSlots, error) {
	p, err := c.Product(ctx, id)
	if err != nil {
		return ProductSlots{}, err
	}
	return DescribeSlots(*p), nil
}

// DescribeSlots derives the configurator view of p.
func DescribeSlots(p domain.Product) ProductSlots {
	options := make([]SlotOption, 0, len(p.AvailableFragrances))
	for _, ref := range p.AvailableFragrances {
		options = append(options, SlotOption{ID: ref.ID, Name: ref.Name(), InStock: ref.InStock()})
	}
	return ProductSlots{
		ProductID:          p.ID,
		Name:               p.Name,
		Slots:              domain.ComputeSlots(p),
		Options:            options,
		AllowCustomMessage: p.AllowCustomMessage,
	}
}
