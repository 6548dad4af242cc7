package shipping_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokoku/commerce/internal/shipping"
)

func TestTableCost(t *testing.T) {
	table := shipping.DefaultTable()
	ctx := context.Background()

	tests := []struct {
		name     string
		postcode string
		weight   string
		want     string
	}{
		{"metro light", "10310", "0.5", "5"},
		{"metro band edge", "20001", "1", "5"},
		{"metro mid band", "11000", "3.2", "9"},
		{"metro heavy band", "10310", "18", "15"},
		{"regional light", "30100", "0.8", "8"},
		{"regional mid", "45000", "4.99", "14"},
		{"remote light", "90210", "1", "12"},
		{"remote heavy", "60000", "19.5", "40"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := table.Cost(ctx, tt.postcode, decimal.RequireFromString(tt.weight))
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestTableCostOverflowChargesPerStartedKilogram(t *testing.T) {
	table := shipping.DefaultTable()

	// Metro: 20kg band costs 15, overflow 2/kg. 22.3kg is 3 started
	// kilograms over, so 15 + 3*2.
	got, err := table.Cost(context.Background(), "10310", decimal.RequireFromString("22.3"))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(21).Equal(got), "got %s", got)
}

func TestTableCostUnservicedPostcode(t *testing.T) {
	table := shipping.DefaultTable()

	_, err := table.Cost(context.Background(), "00000", decimal.NewFromInt(1))
	require.ErrorIs(t, err, shipping.ErrUnservicedPostcode)

	_, err = table.Cost(context.Background(), "", decimal.NewFromInt(1))
	require.ErrorIs(t, err, shipping.ErrUnservicedPostcode)
}

func TestTableCostRejectsNonPositiveWeight(t *testing.T) {
	table := shipping.DefaultTable()

	_, err := table.Cost(context.Background(), "10310", decimal.Zero)
	require.Error(t, err)
}
