// Package shipping computes delivery costs from a weight-banded rate table.
package shipping

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrUnservicedPostcode is returned when no rate zone covers the postcode.
var ErrUnservicedPostcode = errors.New("postcode is not serviced")

// Calculator prices a delivery leg.
type Calculator interface {
	Cost(ctx context.Context, postcode string, weightKg decimal.Decimal) (decimal.Decimal, error)
}

// Band is a single weight bracket within a zone. A shipment falls into the
// first band whose MaxKg is greater than or equal to its total weight.
type Band struct {
	MaxKg decimal.Decimal
	Cost  decimal.Decimal
}

// Zone groups postcode prefixes that share a rate card. Bands must be sorted
// by ascending MaxKg; OverflowPerKg prices each kilogram beyond the last band.
type Zone struct {
	Prefixes      []string
	Bands         []Band
	OverflowPerKg decimal.Decimal
}

// Table resolves a postcode to a zone and prices by weight band.
type Table struct {
	zones []Zone
}

var _ Calculator = (*Table)(nil)

// NewTable builds a calculator over the given zones.
func NewTable(zones []Zone) *Table {
	return &Table{zones: zones}
}

// DefaultTable returns the standard domestic rate card.
func DefaultTable() *Table {
	return NewTable([]Zone{
		{
			// Metro.
			Prefixes: []string{"1", "2"},
			Bands: []Band{
				{MaxKg: decimal.NewFromInt(1), Cost: decimal.NewFromInt(5)},
				{MaxKg: decimal.NewFromInt(5), Cost: decimal.NewFromInt(9)},
				{MaxKg: decimal.NewFromInt(20), Cost: decimal.NewFromInt(15)},
			},
			OverflowPerKg: decimal.NewFromInt(2),
		},
		{
			// Regional.
			Prefixes: []string{"3", "4", "5"},
			Bands: []Band{
				{MaxKg: decimal.NewFromInt(1), Cost: decimal.NewFromInt(8)},
				{MaxKg: decimal.NewFromInt(5), Cost: decimal.NewFromInt(14)},
				{MaxKg: decimal.NewFromInt(20), Cost: decimal.NewFromInt(24)},
			},
			OverflowPerKg: decimal.NewFromInt(3),
		},
		{
			// Remote.
			Prefixes: []string{"6", "7", "8", "9"},
			Bands: []Band{
				{MaxKg: decimal.NewFromInt(1), Cost: decimal.NewFromInt(12)},
				{MaxKg: decimal.NewFromInt(5), Cost: decimal.NewFromInt(22)},
				{MaxKg: decimal.NewFromInt(20), Cost: decimal.NewFromInt(40)},
			},
			OverflowPerKg: decimal.NewFromInt(5),
		},
	})
}

// Cost implements Calculator.
func (t *Table) Cost(_ context.Context, postcode string, weightKg decimal.Decimal) (decimal.Decimal, error) {
	zone := t.zoneFor(postcode)
	if zone == nil {
		return decimal.Zero, errors.Wrapf(ErrUnservicedPostcode, "postcode %q", postcode)
	}
	if weightKg.Sign() <= 0 {
		return decimal.Zero, errors.New("shipment weight must be positive")
	}
	for _, b := range zone.Bands {
		if weightKg.LessThanOrEqual(b.MaxKg) {
			return b.Cost, nil
		}
	}
	last := zone.Bands[len(zone.Bands)-1]
	over := weightKg.Sub(last.MaxKg).Ceil()
	return last.Cost.Add(over.Mul(zone.OverflowPerKg)), nil
}

func (t *Table) zoneFor(postcode string) *Zone {
	if postcode == "" {
		return nil
	}
	for i := range t.zones {
		for _, p := range t.zones[i].Prefixes {
			if len(postcode) >= len(p) && postcode[:len(p)] == p {
				return &t.zones[i]
			}
		}
	}
	return nil
}
