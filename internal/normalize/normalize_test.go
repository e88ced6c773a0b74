package normalize

import (
	"testing"
	"time"

	"github.com/IliaW/propfirm-rules-scraper/internal/currency"
	"github.com/IliaW/propfirm-rules-scraper/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newNormalizer() *Normalizer {
	return New(currency.NewStaticRates(currency.DefaultRates()))
}

func TestMoney(t *testing.T) {
	n := newNormalizer()
	tests := []struct {
		raw      string
		usd      string
		currency string
	}{
		{"$150,000", "150000.00", "USD"},
		{"1,500 USD", "1500.00", "USD"},
		{"€2,000", "2160.00", "EUR"},
		{"£100", "125.00", "GBP"},
		{"$50K", "50000.00", "USD"},
		{"1.5M", "1500000.00", "USD"},
		{"CAD 10,000", "7400.00", "CAD"},
		{"50.000 €", "54000.00", "EUR"},
		{"$99.99", "99.99", "USD"},
		{"¥1,000", "6.70", "JPY"},
		{"25 000 eur", "27000.00", "EUR"},
		{"US$ 0.125", "0.13", "USD"},
		{"€2.500,50", "2700.54", "EUR"},
		{"1.500,00 EUR", "1620.00", "EUR"},
		{"€ 100.000,00", "108000.00", "EUR"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			v, err := n.Money(tt.raw, now)
			require.NoError(t, err)
			assert.Equal(t, model.KindMoney, v.Kind)
			assert.Equal(t, tt.usd, v.Amount.StringFixed(2))
			assert.Equal(t, tt.currency, v.Currency)
		})
	}
}

func TestMoney_KeepsAuditTrail(t *testing.T) {
	v, err := newNormalizer().Money("€2,000", now)
	require.NoError(t, err)
	assert.Equal(t, "2000", v.Original.String())
	assert.Equal(t, "1.08", v.Rate.String())
}

func TestMoney_Unparseable(t *testing.T) {
	n := newNormalizer()

	_, err := n.Money("contact us", now)
	assert.ErrorIs(t, err, ErrUnparseableValue)

	_, err = n.Money("5,000 SEK", now)
	assert.ErrorIs(t, err, ErrUnparseableValue, "a code without a rate is unparseable")
}

func TestMoney_FormatRoundTrip(t *testing.T) {
	n := newNormalizer()
	for _, raw := range []string{"$150,000", "€2,000", "1,234,567.891 USD", "£0.5", "$7", "AUD 333.333",
		"€2.500,50", "1.500,00 EUR", "€ 100.000,00"} {
		v, err := n.Money(raw, now)
		require.NoError(t, err, raw)

		again, err := n.Money(FormatUSD(v), now)
		require.NoError(t, err, raw)
		assert.True(t, v.Amount.Equal(again.Amount), "%s: %s != %s", raw, v.Amount, again.Amount)
		assert.Equal(t, "USD", again.Currency)
	}
}

func TestFormatUSD(t *testing.T) {
	v, err := newNormalizer().Money("$50,000", now)
	require.NoError(t, err)
	assert.Equal(t, "$50,000.00", FormatUSD(v))
}

func TestPercent(t *testing.T) {
	v, err := Percent("8%")
	require.NoError(t, err)
	assert.Equal(t, "8", v.Amount.String())

	v, err = Percent("up to 90/10 split")
	require.NoError(t, err)
	assert.Equal(t, "90", v.Amount.String())

	v, err = Percent("2,5 %")
	require.NoError(t, err)
	assert.Equal(t, "2.5", v.Amount.String())

	_, err = Percent("%")
	assert.ErrorIs(t, err, ErrUnparseableValue)
}

func TestLimit(t *testing.T) {
	n := newNormalizer()

	v, err := n.Limit("5%", now)
	require.NoError(t, err)
	assert.Equal(t, model.KindPercent, v.Kind)

	v, err = n.Limit("$2,500", now)
	require.NoError(t, err)
	assert.Equal(t, model.KindMoney, v.Kind)
	assert.Equal(t, "2500.00", v.Amount.StringFixed(2))
}

func TestEnum_DrawdownType(t *testing.T) {
	tests := map[string]string{
		"5% Trailing":            model.DrawdownTrailing,
		"Static drawdown":        model.DrawdownStatic,
		"END OF DAY trailing":    model.DrawdownEOD,
		"hybrid of eod + static": model.DrawdownHybrid,
	}
	for raw, want := range tests {
		v, ok, err := Enum(DrawdownTypes, raw)
		require.NoError(t, err)
		require.True(t, ok, raw)
		assert.Equal(t, want, v.Enum, raw)
	}

	_, ok, err := Enum(DrawdownTypes, "relative to balance")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestEnumMulti(t *testing.T) {
	v, ok, _ := EnumMulti(Platforms, "Trade on MT5", model.PlatformMultiple)
	require.True(t, ok)
	assert.Equal(t, model.PlatformMT5, v.Enum)

	v, ok, _ = EnumMulti(Platforms, "MT4, MT5 and cTrader", model.PlatformMultiple)
	require.True(t, ok)
	assert.Equal(t, model.PlatformMultiple, v.Enum)
}

func TestBool(t *testing.T) {
	tests := []struct {
		raw  string
		ok   bool
		want bool
	}{
		{"Required", true, true},
		{"yes", true, true},
		{"Not required", true, false},
		{"No", true, false},
		{"optional", true, false},
		{"inactive", true, false},
		{"maybe", false, false},
		{"no, it is required", false, false},
	}
	for _, tt := range tests {
		v, ok, err := Bool(tt.raw)
		require.NoError(t, err)
		assert.Equal(t, tt.ok, ok, tt.raw)
		if ok {
			assert.Equal(t, tt.want, v.Bool, tt.raw)
		}
	}
}

func TestNormalize_Dispatch(t *testing.T) {
	n := newNormalizer()

	v, ok, err := n.Normalize(model.ProfitSplit, "90%", now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.KindPercent, v.Kind)

	v, ok, err = n.Normalize(model.EvalMinDays, "5 trading days", now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "5", v.Amount.String())

	_, ok, err = n.Normalize(model.EvalDrawdownType, "n/a", now)
	assert.NoError(t, err)
	assert.False(t, ok)

	_, _, err = n.Normalize(model.AccountSize, "TBD", now)
	assert.ErrorIs(t, err, ErrUnparseableValue)
}
