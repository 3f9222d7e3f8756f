package domain

import (
	"fmt"
	"slices"

	apperrors "github.com/itsobito471-bot/thebottlestories/pkg/errors"
)

// Default slot used by products without a bottle configuration.
const (
	StandardSlotSize  = "Standard"
	StandardSlotLabel = "Perfume Selection"
)

// Slot is one bottle position. It is derived from the product on demand and
// identified only by its index.
type Slot struct {
	Size  string `json:"size"`
	Label string `json:"label"`
}

// ComputeSlots expands the bottle configuration in declared order. Without a
// configuration a product with fragrances has a single standard slot, and a
// product without fragrances has none.
func ComputeSlots(p Product) []Slot {
	if len(p.BottleConfig) == 0 {
		if len(p.AvailableFragrances) == 0 {
			return []Slot{}
		}
		return []Slot{{Size: StandardSlotSize, Label: StandardSlotLabel}}
	}

	var slots []Slot
	for _, cfg := range p.BottleConfig {
		for n := 0; n < cfg.Quantity; n++ {
			slots = append(slots, Slot{Size: cfg.Size, Label: cfg.Size + " Bottle"})
		}
	}
	if slots == nil {
		return []Slot{}
	}
	return slots
}

// BindSelection returns a copy of selections with fragranceID bound at
// slotIndex. Positions before slotIndex that are unset stay unset. An
// out-of-stock fragrance cannot be bound, but existing bindings to it are
// left alone.
func BindSelection(p Product, selections []SelectedFragrance, slotIndex int, fragranceID string) ([]SelectedFragrance, error) {
	slots := ComputeSlots(p)
	if slotIndex < 0 || slotIndex >= len(slots) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("slot %d does not exist for %s", slotIndex, p.Name))
	}

	ref, ok := p.Fragrance(fragranceID)
	if !ok {
		return nil, apperrors.InvalidInput(fmt.Sprintf("fragrance %s is not available for %s", fragranceID, p.Name))
	}
	if !ref.InStock() {
		return nil, apperrors.InvalidInput(fmt.Sprintf("%s is out of stock", ref.Name()))
	}

	out := slices.Clone(selections)
	if len(out) <= slotIndex {
		out = append(out, make([]SelectedFragrance, slotIndex+1-len(out))...)
	}
	slot := slots[slotIndex]
	out[slotIndex] = SelectedFragrance{
		FragranceID:   ref.ID,
		FragranceName: ref.Name(),
		Size:          slot.Size,
		Label:         slot.Label,
	}
	return out, nil
}

// BuildSelections binds ids positionally; an empty id leaves its slot unset.
func BuildSelections(p Product, ids []string) ([]SelectedFragrance, error) {
	var out []SelectedFragrance
	for i, id := range ids {
		if id == "" {
			continue
		}
		var err error
		if out, err = BindSelection(p, out, i, id); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ReplaceSelections checks a full replacement of current against p. A slot
// whose fragrance id is unchanged keeps its existing binding even if the
// fragrance has since gone out of stock; every other set slot is bound
// afresh. Sizes and labels always come from the product, never the caller.
func ReplaceSelections(p Product, current, next []SelectedFragrance) ([]SelectedFragrance, error) {
	slots := len(ComputeSlots(p))
	var out []SelectedFragrance
	for i, sel := range next {
		if !sel.IsSet() {
			continue
		}
		if i < slots && i < len(current) && current[i].FragranceID == sel.FragranceID {
			if len(out) <= i {
				out = append(out, make([]SelectedFragrance, i+1-len(out))...)
			}
			out[i] = current[i]
			continue
		}
		var err error
		if out, err = BindSelection(p, out, i, sel.FragranceID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// CheckMessage rejects a non-empty gift message for a product that does not
// take one.
func CheckMessage(p Product, message string) error {
	if message != "" && !p.AllowCustomMessage {
		return apperrors.InvalidInput(p.Name + " does not take a custom message")
	}
	return nil
}

// IsComplete reports whether every slot of p has a fragrance.
func IsComplete(p Product, selections []SelectedFragrance) bool {
	slots := ComputeSlots(p)
	if len(selections) < len(slots) {
		return false
	}
	for i := range slots {
		if !selections[i].IsSet() {
			return false
		}
	}
	return true
}

// MissingSlots lists the indexes of unfilled slots.
func MissingSlots(p Product, selections []SelectedFragrance) []int {
	var missing []int
	for i := range ComputeSlots(p) {
		if i >= len(selections) || !selections[i].IsSet() {
			missing = append(missing, i)
		}
	}
	return missing
}
