package model

import (
	"strconv"

	"github.com/shopspring/decimal"
)

type ValueKind int

const (
	KindMoney ValueKind = iota
	KindPercent
	KindBool
	KindEnum
	KindInteger
	KindText
)

func (k ValueKind) String() string {
	return [...]string{"money", "percent", "bool", "enum", "integer", "text"}[k]
}

// NormalizedValue is a candidate converted to its canonical unit.
//
// Money is always USD with two decimal places. Original, Currency and Rate keep the source
// amount and the rate applied so the conversion can be audited. Percentages are
// percentage points in the 0-100 range.
type NormalizedValue struct {
	Kind     ValueKind       `json:"kind"`
	Amount   decimal.Decimal `json:"amount"`
	Original decimal.Decimal `json:"original,omitempty"`
	Currency string          `json:"currency,omitempty"`
	Rate     decimal.Decimal `json:"rate,omitempty"`
	Bool     bool            `json:"bool,omitempty"`
	Enum     string          `json:"enum,omitempty"`
	Text     string          `json:"text,omitempty"`
}

func (v NormalizedValue) String() string {
	switch v.Kind {
	case KindMoney:
		return v.Amount.StringFixed(2)
	case KindPercent:
		return v.Amount.String() + "%"
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindEnum:
		return v.Enum
	case KindInteger:
		return v.Amount.String()
	default:
		return v.Text
	}
}
