package normalize

import (
	"regexp"
	"strings"

	"github.com/IliaW/propfirm-rules-scraper/internal/model"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

var (
	numberRe  = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	integerRe = regexp.MustCompile(`\d+`)
)

func hasPercent(raw string) bool {
	return strings.Contains(raw, "%") || strings.Contains(strings.ToLower(raw), "percent")
}

// Percent parses a percentage into percentage points. "90/10" reads as 90.
func Percent(raw string) (model.NormalizedValue, error) {
	m := numberRe.FindString(raw)
	if m == "" {
		return model.NormalizedValue{}, eris.Wrapf(ErrUnparseableValue, "no percentage in %q", raw)
	}
	d, err := decimal.NewFromString(strings.Replace(m, ",", ".", 1))
	if err != nil {
		return model.NormalizedValue{}, eris.Wrapf(ErrUnparseableValue, "percentage %q", m)
	}
	return model.NormalizedValue{Kind: model.KindPercent, Amount: d}, nil
}

func Integer(raw string) (model.NormalizedValue, error) {
	m := integerRe.FindString(raw)
	if m == "" {
		return model.NormalizedValue{}, eris.Wrapf(ErrUnparseableValue, "no integer in %q", raw)
	}
	d, err := decimal.NewFromString(m)
	if err != nil {
		return model.NormalizedValue{}, eris.Wrapf(ErrUnparseableValue, "integer %q", m)
	}
	return model.NormalizedValue{Kind: model.KindInteger, Amount: d}, nil
}
