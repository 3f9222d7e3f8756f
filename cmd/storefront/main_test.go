package main

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureJSON_PricesAsNumbers(t *testing.T) {
	require.False(t, decimal.MarshalJSONWithoutQuotes, "importing the edge packages must leave decimal encoding alone")
	t.Cleanup(func() { decimal.MarshalJSONWithoutQuotes = false })

	configureJSON()

	raw, err := json.Marshal(struct {
		Price decimal.Decimal `json:"price"`
	}{Price: decimal.RequireFromString("1499.50")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"price":1499.5}`, string(raw))
}
