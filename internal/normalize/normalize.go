// Package normalize converts raw matched text into canonical typed values.
package normalize

import (
	"time"

	"github.com/IliaW/propfirm-rules-scraper/internal/currency"
	"github.com/IliaW/propfirm-rules-scraper/internal/model"
	"github.com/rotisserie/eris"
)

// ErrUnparseableValue is returned when a numeric field has no usable number or its currency
// cannot be converted. It only ever affects the one field being normalized.
var ErrUnparseableValue = eris.New("unparseable value")

type Normalizer struct {
	rates currency.RateLookup
}

func New(rates currency.RateLookup) *Normalizer {
	return &Normalizer{rates: rates}
}

// Normalize parses raw according to the parser of field f. The boolean result is false when
// the text carries no recognizable value for an enum or boolean field; that is not an error
// and leaves the field unset.
func (n *Normalizer) Normalize(f model.Field, raw string, at time.Time) (model.NormalizedValue, bool, error) {
	spec, ok := model.SpecOf(f)
	if !ok {
		return model.NormalizedValue{}, false, eris.Errorf("unknown field %q", f)
	}

	var (
		v   model.NormalizedValue
		err error
	)
	switch spec.Parser {
	case model.ParseMoney:
		v, err = n.Money(raw, at)
	case model.ParseLimit:
		v, err = n.Limit(raw, at)
	case model.ParsePercent:
		v, err = Percent(raw)
	case model.ParseInteger:
		v, err = Integer(raw)
	case model.ParseBool:
		return Bool(raw)
	case model.ParseDrawdownType:
		return Enum(DrawdownTypes, raw)
	case model.ParsePayoutFrequency:
		return Enum(PayoutFrequencies, raw)
	case model.ParsePlatform:
		return EnumMulti(Platforms, raw, model.PlatformMultiple)
	case model.ParseBroker:
		return EnumMulti(Brokers, raw, model.BrokerMultiple)
	}
	if err != nil {
		return model.NormalizedValue{}, false, eris.Wrapf(err, "field %s", f)
	}

	return v, true, nil
}

// Limit parses a drawdown, loss or target. A percent sign makes it relative to the account
// size, anything else is an amount of money.
func (n *Normalizer) Limit(raw string, at time.Time) (model.NormalizedValue, error) {
	if hasPercent(raw) {
		return Percent(raw)
	}
	return n.Money(raw, at)
}
