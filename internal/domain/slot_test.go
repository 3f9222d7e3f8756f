package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/itsobito471-bot/thebottlestories/pkg/errors"
)

func hamper() Product {
	return Product{
		ID:   "p1",
		Name: "Rose Hamper",
		AvailableFragrances: []FragranceRef{
			Ref(Fragrance{ID: "A", Name: "Amber", InStock: true}),
			Ref(Fragrance{ID: "B", Name: "Bergamot", InStock: true}),
			Ref(Fragrance{ID: "C", Name: "Cedar", InStock: true}),
			Ref(Fragrance{ID: "X", Name: "Oud", InStock: false}),
		},
		BottleConfig: []BottleConfig{{Size: "50ml", Quantity: 2}, {Size: "100ml", Quantity: 1}},
	}
}

func TestComputeSlots_ExpandsConfigInOrder(t *testing.T) {
	want := []Slot{
		{Size: "50ml", Label: "50ml Bottle"},
		{Size: "50ml", Label: "50ml Bottle"},
		{Size: "100ml", Label: "100ml Bottle"},
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, want, ComputeSlots(hamper()))
	}
}

func TestComputeSlots_StandardSlot(t *testing.T) {
	p := hamper()
	p.BottleConfig = nil

	assert.Equal(t, []Slot{{Size: "Standard", Label: "Perfume Selection"}}, ComputeSlots(p))
}

func TestComputeSlots_NoFragrancesNoSlots(t *testing.T) {
	p := Product{ID: "gift-card", Name: "Gift Card"}

	slots := ComputeSlots(p)

	assert.NotNil(t, slots)
	assert.Empty(t, slots)
	assert.True(t, IsComplete(p, nil))
}

func TestComputeSlots_ZeroQuantityGroupsSkipped(t *testing.T) {
	p := hamper()
	p.BottleConfig = []BottleConfig{{Size: "30ml", Quantity: 0}, {Size: "100ml", Quantity: 1}}

	assert.Equal(t, []Slot{{Size: "100ml", Label: "100ml Bottle"}}, ComputeSlots(p))
}

func TestBindSelection_SparseWrite(t *testing.T) {
	sel, err := BindSelection(hamper(), nil, 2, "B")
	require.NoError(t, err)

	require.Len(t, sel, 3)
	assert.False(t, sel[0].IsSet())
	assert.False(t, sel[1].IsSet())
	assert.Equal(t, SelectedFragrance{FragranceID: "B", FragranceName: "Bergamot", Size: "100ml", Label: "100ml Bottle"}, sel[2])
}

func TestBindSelection_OverwritesWithoutMutatingInput(t *testing.T) {
	first, err := BindSelection(hamper(), nil, 0, "A")
	require.NoError(t, err)

	second, err := BindSelection(hamper(), first, 0, "C")
	require.NoError(t, err)

	assert.Equal(t, "A", first[0].FragranceID)
	assert.Equal(t, "C", second[0].FragranceID)
	assert.Equal(t, "Cedar", second[0].FragranceName)
}

func TestBindSelection_Errors(t *testing.T) {
	tests := []struct {
		name    string
		slot    int
		id      string
		message string
	}{
		{"slot out of range", 3, "A", "slot 3 does not exist for Rose Hamper"},
		{"negative slot", -1, "A", "slot -1 does not exist for Rose Hamper"},
		{"not offered", 0, "Z", "fragrance Z is not available for Rose Hamper"},
		{"out of stock", 0, "X", "Oud is out of stock"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BindSelection(hamper(), nil, tt.slot, tt.id)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
			assert.Equal(t, tt.message, apperrors.MessageOf(err))
		})
	}
}

func TestBindSelection_BareReferenceUsesID(t *testing.T) {
	p := Product{ID: "p2", Name: "Mini", AvailableFragrances: []FragranceRef{{ID: "frag-9"}}}

	sel, err := BindSelection(p, nil, 0, "frag-9")
	require.NoError(t, err)
	assert.Equal(t, "frag-9", sel[0].FragranceName)
	assert.Equal(t, StandardSlotSize, sel[0].Size)
}

func TestIsComplete_Gate(t *testing.T) {
	p := hamper()
	sel, err := BuildSelections(p, []string{"A", "B"})
	require.NoError(t, err)

	assert.False(t, IsComplete(p, sel))
	assert.Equal(t, []int{2}, MissingSlots(p, sel))

	sel, err = BindSelection(p, sel, 2, "C")
	require.NoError(t, err)
	assert.True(t, IsComplete(p, sel))
	assert.Empty(t, MissingSlots(p, sel))
}

func TestIsComplete_GapInMiddle(t *testing.T) {
	p := hamper()
	sel, err := BuildSelections(p, []string{"A", "", "C"})
	require.NoError(t, err)

	assert.False(t, IsComplete(p, sel))
	assert.Equal(t, []int{1}, MissingSlots(p, sel))
}

func TestIsComplete_OutOfStockBindingStillCounts(t *testing.T) {
	p := hamper()
	sel, err := BuildSelections(p, []string{"A", "B", "C"})
	require.NoError(t, err)

	p.AvailableFragrances[0].Fragrance.InStock = false

	assert.True(t, IsComplete(p, sel))
}
