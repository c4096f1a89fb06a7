package core

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// priceText bounds user input: plain digits, no sign or exponent.
	priceText   = regexp.MustCompile(`^\d{1,15}(\.\d{1,8})?$`)
	// decimalText is the rendered form, which totals may stretch past priceText.
	decimalText = regexp.MustCompile(`^\d+(\.\d+)?$`)
)

// Price is a non-negative, currency agnostic amount.
type Price struct {
	decimal.Decimal
}

// ParsePrice accepts both dot (12.34) and comma (12,34) decimal separators.
// Negative, empty and non-numeric values are rejected.
//
// Examples:
//
//	ParsePrice("12.34") -> 12.34, nil
//	ParsePrice("12,5")  -> 12.5, nil
//	ParsePrice("-1")    -> ErrInvalidPrice
//	ParsePrice("1e3")   -> ErrInvalidPrice
func ParsePrice(s string) (Price, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Price{}, fmt.Errorf("%w: empty", ErrInvalidPrice)
	}
	if strings.HasPrefix(s, "-") {
		return Price{}, fmt.Errorf("%w: %q is negative", ErrInvalidPrice, s)
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	if !priceText.MatchString(s) {
		return Price{}, fmt.Errorf("%w: %q", ErrInvalidPrice, s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Price{}, fmt.Errorf("%w: %q", ErrInvalidPrice, s)
	}
	return Price{d}, nil
}

// Add returns p+q.
func (p Price) Add(q Price) Price {
	return Price{p.Decimal.Add(q.Decimal)}
}

// Text renders the amount with two decimals for display.
func (p Price) Text() string {
	return p.StringFixed(2)
}

// Exact renders every stored decimal, padding to at least two places.
func (p Price) Exact() string {
	places := int32(2)
	if e := -p.Exponent(); e > places {
		places = e
	}
	return p.StringFixed(places)
}

// MarshalJSON emits the exact amount as a JSON number.
func (p Price) MarshalJSON() ([]byte, error) {
	return []byte(p.Exact()), nil
}

// UnmarshalJSON accepts either a JSON number or a quoted decimal in plain
// notation.
func (p *Price) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if !decimalText.MatchString(s) {
		return fmt.Errorf("%w: %q", ErrInvalidPrice, s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidPrice, s)
	}
	*p = Price{d}
	return nil
}

// round2 rounds half away from zero to two decimals.
func round2(d decimal.Decimal) *float64 {
	f := d.Round(2).InexactFloat64()
	return &f
}
