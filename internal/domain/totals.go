package domain

import "github.com/shopspring/decimal"

var (
	taxRate           = decimal.NewFromFloat(0.10)
	freeShippingAbove = decimal.NewFromInt(100)
	flatShippingFee   = decimal.NewFromInt(10)
)

type Totals struct {
	Subtotal float64 `json:"subtotal"`
	Tax      float64 `json:"tax"`
	Shipping float64 `json:"shipping"`
	Total    float64 `json:"total"`
}

// ComputeTotals derives tax, shipping and grand total from a cart subtotal.
// Tax is 10% rounded to cents. Shipping is a flat fee, waived for subtotals
// above 100.
func ComputeTotals(subtotal float64) Totals {
	s := decimal.NewFromFloat(subtotal).Round(2)
	tax := s.Mul(taxRate).Round(2)

	shipping := flatShippingFee
	if s.GreaterThan(freeShippingAbove) {
		shipping = decimal.Zero
	}

	total := s.Add(tax).Add(shipping)

	return Totals{
		Subtotal: s.InexactFloat64(),
		Tax:      tax.InexactFloat64(),
		Shipping: shipping.InexactFloat64(),
		Total:    total.InexactFloat64(),
	}
}

func (s *CartSnapshot) Totals() Totals {
	if s == nil {
		return Totals{}
	}
	return ComputeTotals(s.TotalAmount)
}
