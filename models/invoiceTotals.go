package models

import (
	"fmt"
	"sort"

	"github.com/mmdatafocus/invoicing_backend/utils"
	"github.com/shopspring/decimal"
)

// MoneyPlaces is the precision of every persisted or displayed amount.
const MoneyPlaces = 2

// StoredPlaces is the scale of the quantity, unit price and tax rate columns.
const StoredPlaces = 4

var (
	hundred = decimal.NewFromInt(100)

	// exclusive upper bounds of decimal(20,4) and decimal(20,2)
	maxStoredValue = decimal.New(1, 20-StoredPlaces)
	maxMoneyValue  = decimal.New(1, 20-MoneyPlaces)
)

type TotalsLine struct {
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
}

type TaxGroup struct {
	Rate    decimal.Decimal `json:"rate"`
	Taxable decimal.Decimal `json:"taxable"`
	Tax     decimal.Decimal `json:"tax"`
}

type InvoiceTotals struct {
	LineTotals   []decimal.Decimal `json:"line_totals"`
	Subtotal     decimal.Decimal   `json:"subtotal"`
	TaxTotal     decimal.Decimal   `json:"tax_total"`
	Total        decimal.Decimal   `json:"total"`
	TaxBreakdown []TaxGroup        `json:"tax_breakdown"`
}

// RoundMoney rounds half away from zero to MoneyPlaces (0.125 -> 0.13).
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// validateStored rejects values the quantity, price and rate columns would round or reject.
func validateStored(field string, v decimal.Decimal) error {
	if !v.Equal(v.Truncate(StoredPlaces)) {
		return utils.InvalidInput("%s must have at most %d decimal places", field, StoredPlaces)
	}
	if v.Abs().GreaterThanOrEqual(maxStoredValue) {
		return utils.InvalidInput("%s is too large", field)
	}
	return nil
}

func (l TotalsLine) validate(i int) error {
	for _, f := range []struct {
		name  string
		value decimal.Decimal
	}{
		{"quantity", l.Quantity},
		{"unit price", l.UnitPrice},
		{"tax rate", l.TaxRate},
	} {
		if err := validateStored(f.name, f.value); err != nil {
			return fmt.Errorf("item %d: %w", i+1, err)
		}
	}
	if l.Quantity.IsNegative() {
		return utils.InvalidInput("item %d: quantity must not be negative", i+1)
	}
	if l.UnitPrice.IsNegative() {
		return utils.InvalidInput("item %d: unit price must not be negative", i+1)
	}
	if l.TaxRate.IsNegative() || l.TaxRate.GreaterThan(hundred) {
		return utils.InvalidInput("item %d: tax rate must be between 0 and 100", i+1)
	}
	return nil
}

// ComputeTotals computes line totals, subtotal, tax and grand total of a set of lines.
//
// Tax is computed per distinct rate on the sum of that rate's lines. Sums are
// kept at full precision and only the outputs are rounded; the grand total is
// the sum of the rounded subtotal and rounded tax so the three always add up.
func ComputeTotals(lines []TotalsLine) (*InvoiceTotals, error) {
	result := &InvoiceTotals{
		LineTotals:   make([]decimal.Decimal, 0, len(lines)),
		Subtotal:     decimal.Zero,
		TaxTotal:     decimal.Zero,
		Total:        decimal.Zero,
		TaxBreakdown: []TaxGroup{},
	}

	subtotal := decimal.Zero
	var groups []TaxGroup
	for i, l := range lines {
		if err := l.validate(i); err != nil {
			return nil, err
		}
		lineSubtotal := l.Quantity.Mul(l.UnitPrice)
		lineTotal := RoundMoney(lineSubtotal)
		if lineTotal.GreaterThanOrEqual(maxMoneyValue) {
			return nil, utils.InvalidInput("item %d: line total is too large", i+1)
		}
		result.LineTotals = append(result.LineTotals, lineTotal)
		subtotal = subtotal.Add(lineSubtotal)

		found := false
		for g := range groups {
			if groups[g].Rate.Equal(l.TaxRate) {
				groups[g].Taxable = groups[g].Taxable.Add(lineSubtotal)
				found = true
				break
			}
		}
		if !found {
			groups = append(groups, TaxGroup{Rate: l.TaxRate, Taxable: lineSubtotal})
		}
	}

	taxTotal := decimal.Zero
	for g := range groups {
		groups[g].Tax = groups[g].Taxable.Mul(groups[g].Rate).Div(hundred)
		taxTotal = taxTotal.Add(groups[g].Tax)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Rate.LessThan(groups[j].Rate)
	})
	for _, g := range groups {
		result.TaxBreakdown = append(result.TaxBreakdown, TaxGroup{
			Rate:    g.Rate,
			Taxable: RoundMoney(g.Taxable),
			Tax:     RoundMoney(g.Tax),
		})
	}

	result.Subtotal = RoundMoney(subtotal)
	result.TaxTotal = RoundMoney(taxTotal)
	result.Total = result.Subtotal.Add(result.TaxTotal)
	if result.Total.GreaterThanOrEqual(maxMoneyValue) {
		return nil, utils.InvalidInput("invoice total is too large")
	}
	return result, nil
}
