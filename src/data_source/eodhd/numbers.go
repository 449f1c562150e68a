package eodhd

import (
	"strings"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// flexNumber accepts JSON numbers, numeric strings, null and "NA".
// Anything unparseable decodes as absent instead of failing the whole payload.
// -----------------------------------------------------------------------------

type flexNumber struct {
	decimal.NullDecimal
}

func (f *flexNumber) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(strings.Trim(string(b), `"`))
	f.Valid = false
	switch strings.ToUpper(s) {
	case "", "NULL", "NA", "N/A", "-":
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	f.Decimal, f.Valid = d, true
	return nil
}

func (f flexNumber) Float() float64 {
	if !f.Valid {
		return 0
	}
	v, _ := f.Decimal.Float64()
	return v
}

func (f flexNumber) Int() int64 {
	if !f.Valid {
		return 0
	}
	return f.Decimal.IntPart()
}
