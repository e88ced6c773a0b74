// Package currency provides the conversion rates to USD used by the normalizer.
package currency

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	xcurrency "golang.org/x/text/currency"
)

var ErrUnknownCurrency = eris.New("unknown currency")

// RateLookup returns how many US dollars one unit of code was worth at the given time.
type RateLookup interface {
	Rate(code string, at time.Time) (decimal.Decimal, error)
}

// DefaultRates is the fallback table used when no rates are configured.
func DefaultRates() map[string]float64 {
	return map[string]float64{
		"USD": 1.0,
		"EUR": 1.08,
		"GBP": 1.25,
		"CAD": 0.74,
		"AUD": 0.63,
		"CHF": 1.12,
		"JPY": 0.0067,
	}
}

// StaticRates is an in-memory rate table. Lookups never block, the timestamp is ignored.
type StaticRates struct {
	rates map[string]decimal.Decimal
}

func NewStaticRates(rates map[string]float64) *StaticRates {
	s := &StaticRates{rates: make(map[string]decimal.Decimal, len(rates)+1)}
	for code, rate := range rates {
		if rate <= 0 {
			continue
		}
		s.rates[strings.ToUpper(code)] = decimal.NewFromFloat(rate)
	}
	s.rates["USD"] = decimal.NewFromInt(1)
	return s
}

func (s *StaticRates) Rate(code string, _ time.Time) (decimal.Decimal, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if _, err := xcurrency.ParseISO(code); err != nil {
		return decimal.Zero, eris.Wrapf(ErrUnknownCurrency, "code %q", code)
	}
	rate, ok := s.rates[code]
	if !ok {
		return decimal.Zero, eris.Wrapf(ErrUnknownCurrency, "no rate for %s", code)
	}
	return rate, nil
}

// Codes returns the known currency codes.
func (s *StaticRates) Codes() []string {
	codes := make([]string, 0, len(s.rates))
	for code := range s.rates {
		codes = append(codes, code)
	}
	return codes
}

// remoteRates is the body of a rates endpoint quoting units per one USD, e.g.
// {"base":"USD","rates":{"EUR":0.92}}.
type remoteRates struct {
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
}

// Refresh fetches fresh rates from endpoint and returns the static table overlaid with them.
// It runs once before the workers start so extraction never waits on the network. On any
// failure the configured table is returned unchanged together with the error.
func Refresh(ctx context.Context, client *resty.Client, endpoint string, configured map[string]float64,
	log *slog.Logger) (map[string]float64, error) {
	if len(configured) == 0 {
		configured = DefaultRates()
	}
	merged := make(map[string]float64, len(configured))
	for code, rate := range configured {
		merged[strings.ToUpper(code)] = rate
	}
	if endpoint == "" {
		return merged, nil
	}

	resp, err := client.R().SetContext(ctx).SetHeader("accept", "application/json").Get(endpoint)
	if err != nil {
		return merged, eris.Wrap(err, "failed to fetch currency rates")
	}
	if resp.IsError() {
		return merged, eris.Errorf("currency rates endpoint answered %d", resp.StatusCode())
	}

	var body remoteRates
	if err = jsoniter.Unmarshal(resp.Body(), &body); err != nil {
		return merged, eris.Wrap(err, "failed to decode currency rates")
	}
	if body.Base != "" && !strings.EqualFold(body.Base, "USD") {
		return merged, eris.Errorf("unsupported rates base %q", body.Base)
	}
	updated := 0
	for code, perUSD := range body.Rates {
		if perUSD <= 0 {
			continue
		}
		merged[strings.ToUpper(code)], _ = decimal.NewFromInt(1).Div(decimal.NewFromFloat(perUSD)).Round(6).Float64()
		updated++
	}
	log.Info("currency rates refreshed.", slog.Int("updated", updated), slog.String("endpoint", endpoint))

	return merged, nil
}
