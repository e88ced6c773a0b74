package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusOK             Status = "OK"
	StatusNotImplemented Status = "NOT_IMPLEMENTED"
	StatusLoginRequired  Status = "LOGIN_REQUIRED"
	StatusFailed         Status = "FAILED"
	StatusMissingData    Status = "MISSING_DATA"
)

var Statuses = []Status{StatusOK, StatusMissingData, StatusNotImplemented, StatusLoginRequired, StatusFailed}

// Record is one firm and account size combination. It is the unit of export.
type Record struct {
	FirmName    string                    `json:"firm_name"`
	WebsiteURL  string                    `json:"website_url"`
	TargetIndex int                       `json:"target_index"`
	Block       int                       `json:"block"`
	Fields      map[Field]NormalizedValue `json:"fields"`
	Status      Status                    `json:"status"`
	Method      Method                    `json:"method"`
	NeedsReview bool                      `json:"needs_review"`
	Note        string                    `json:"note,omitempty"`
	LastUpdated time.Time                 `json:"last_updated"`
}

func (r Record) Value(f Field) (NormalizedValue, bool) {
	v, ok := r.Fields[f]
	return v, ok
}

// USD returns the amount of a limit or fee in dollars. Relative limits are resolved
// against the account size and are unavailable when the account size is unknown.
func (r Record) USD(f Field) (decimal.Decimal, bool) {
	v, ok := r.Fields[f]
	if !ok {
		return decimal.Zero, false
	}
	switch v.Kind {
	case KindMoney:
		return v.Amount, true
	case KindPercent:
		size, ok := r.Fields[AccountSize]
		if !ok || size.Kind != KindMoney {
			return decimal.Zero, false
		}
		return size.Amount.Mul(v.Amount).Div(decimal.NewFromInt(100)).Round(2), true
	default:
		return decimal.Zero, false
	}
}

// Resolved counts the fields that carry a value.
func (r Record) Resolved() int {
	return len(r.Fields)
}
