package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Notes lists a fragrance's pyramid, each tier in declared order.
type Notes struct {
	Top    []string `json:"top"`
	Middle []string `json:"middle"`
	Base   []string `json:"base"`
}

// Fragrance is a scent that can fill a bottle slot.
type Fragrance struct {
	ID          string `json:"_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InStock     bool   `json:"in_stock"`
	Notes       Notes  `json:"notes"`
	Image       string `json:"image,omitempty"`
}

// FragranceRef is an entry of a product's available_fragrances. The API
// sends either a bare id or a populated fragrance; the ref re-encodes in
// whichever form it was decoded from.
type FragranceRef struct {
	ID        string
	Fragrance *Fragrance
}

// Ref builds a populated reference.
func Ref(f Fragrance) FragranceRef {
	return FragranceRef{ID: f.ID, Fragrance: &f}
}

// Name returns the fragrance name, or the id for an unpopulated reference.
func (r FragranceRef) Name() string {
	if r.Fragrance != nil && r.Fragrance.Name != "" {
		return r.Fragrance.Name
	}
	return r.ID
}

// InStock reports the stock flag. An unpopulated reference carries no stock
// information and is treated as available.
func (r FragranceRef) InStock() bool {
	return r.Fragrance == nil || r.Fragrance.InStock
}

func (r FragranceRef) MarshalJSON() ([]byte, error) {
	if r.Fragrance != nil {
		return json.Marshal(r.Fragrance)
	}
	return json.Marshal(r.ID)
}

func (r *FragranceRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*r = FragranceRef{}
		return nil
	case len(data) > 0 && data[0] == '"':
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = FragranceRef{ID: id}
		return nil
	default:
		var f Fragrance
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("decode fragrance reference: %w", err)
		}
		*r = FragranceRef{ID: f.ID, Fragrance: &f}
		return nil
	}
}

// Tag is a catalog label.
type Tag struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

// BottleConfig is one group of identical bottles in a hamper.
type BottleConfig struct {
	Size     string `json:"size"`
	Quantity int    `json:"quantity"`
}

// Product is a hamper as served by the catalog. Once copied into a cart item
// it is a snapshot and never refreshed.
type Product struct {
	ID                  string            `json:"_id"`
	Name                string            `json:"name"`
	Description         string            `json:"description,omitempty"`
	Price               decimal.Decimal   `json:"price"`
	OriginalPrice       *decimal.Decimal  `json:"original_price,omitempty"`
	Images              []string          `json:"images,omitempty"`
	Tags                []json.RawMessage `json:"tags,omitempty"`
	AvailableFragrances []FragranceRef    `json:"available_fragrances,omitempty"`
	BottleConfig        []BottleConfig    `json:"bottleConfig,omitempty"`
	AllowCustomMessage  bool              `json:"allow_custom_message"`
	AverageRating       float64           `json:"average_rating,omitempty"`
	RatingCount         int               `json:"rating_count,omitempty"`
}

// Fragrance looks up id among the product's available fragrances.
func (p Product) Fragrance(id string) (FragranceRef, bool) {
	for _, ref := range p.AvailableFragrances {
		if ref.ID == id {
			return ref, true
		}
	}
	return FragranceRef{}, false
}

// ResolveFragrances populates bare references from catalog, leaving refs
// that are already populated or unknown to the catalog untouched.
func (p *Product) ResolveFragrances(catalog []Fragrance) {
	byID := make(map[string]Fragrance, len(catalog))
	for _, f := range catalog {
		byID[f.ID] = f
	}
	for i, ref := range p.AvailableFragrances {
		if ref.Fragrance != nil {
			continue
		}
		if f, ok := byID[ref.ID]; ok {
			p.AvailableFragrances[i] = Ref(f)
		}
	}
}

// ProductRef is a product field the API may send unpopulated.
type ProductRef struct {
	ID      string
	Product *Product
}

func (r ProductRef) MarshalJSON() ([]byte, error) {
	if r.Product != nil {
		return json.Marshal(r.Product)
	}
	return json.Marshal(r.ID)
}

func (r *ProductRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = ProductRef{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = ProductRef{ID: id}
		return nil
	}
	var p Product
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode product reference: %w", err)
	}
	*r = ProductRef{ID: p.ID, Product: &p}
	return nil
}
