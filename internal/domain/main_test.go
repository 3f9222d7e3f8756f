package domain

import (
	"os"
	"testing"

	"github.com/shopspring/decimal"
)

// Prices are JSON numbers in production; cmd/storefront sets the same.
func TestMain(m *testing.M) {
	decimal.MarshalJSONWithoutQuotes = true
	os.Exit(m.Run())
}
