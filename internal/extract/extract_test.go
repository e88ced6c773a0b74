package extract

import (
	"testing"
	"time"

	"github.com/IliaW/propfirm-rules-scraper/internal/currency"
	"github.com/IliaW/propfirm-rules-scraper/internal/model"
	"github.com/IliaW/propfirm-rules-scraper/internal/normalize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newEngine() *Engine {
	return New(normalize.New(currency.NewStaticRates(currency.DefaultRates())))
}

func byField(cs []model.FieldCandidate, f model.Field) []model.FieldCandidate {
	var out []model.FieldCandidate
	for _, c := range cs {
		if c.Field == f {
			out = append(out, c)
		}
	}
	return out
}

func TestExtract_SingleLineSummary(t *testing.T) {
	x := newEngine().ExtractText(model.Target{}, model.HTTP,
		"Account Size: $50,000 | Max Drawdown: 5% Trailing | Profit Split: 90%", at)

	assert.False(t, x.Detected)
	assert.Equal(t, 1, x.Blocks)

	size := byField(x.Candidates, model.AccountSize)
	require.NotEmpty(t, size)
	assert.Equal(t, "$50,000", size[0].Raw)
	assert.Equal(t, 0, size[0].Block)
	assert.Equal(t, model.HTTP, size[0].Method)

	dd := byField(x.Candidates, model.EvalMaxDrawdown)
	require.NotEmpty(t, dd)
	assert.Equal(t, "5%", dd[0].Raw)

	kind := byField(x.Candidates, model.EvalDrawdownType)
	require.NotEmpty(t, kind)
	assert.Equal(t, "Trailing", kind[0].Raw)

	split := byField(x.Candidates, model.ProfitSplit)
	require.NotEmpty(t, split)
	assert.Equal(t, "90%", split[0].Raw)

	assert.Empty(t, byField(x.Candidates, model.EvalDailyLoss))
	assert.Equal(t, 2, x.ViableFields())
}

func TestExtract_NoPatterns(t *testing.T) {
	e := newEngine()
	for _, text := range []string{"", "Welcome to our trading community. Join our Discord!", "Copyright 2024"} {
		x := e.ExtractText(model.Target{}, model.Browser, text, at)
		assert.Empty(t, x.Candidates, text)
		assert.False(t, x.Viable(1))
	}
}

const tiersHTML = `<html><head><title>Plans</title><script>var price = "$1";</script></head><body>
<h1>Choose your plan</h1>
<div class="plans">
  <div class="plan card"><h3>$50,000 Account</h3><p>Profit Target: 8%</p><p>Max Drawdown: $2,500</p><p>Fee: $155</p></div>
  <div class="card plan"><h3>$100,000 Account</h3><p>Profit Target: 8%</p><p>Max Drawdown: $5,000</p><p>Fee: $299</p></div>
</div>
<p>Profit Split: 90% | Payouts: bi-weekly</p>
</body></html>`

func TestExtract_StructuralTiers(t *testing.T) {
	x := newEngine().Extract(model.Target{}, &model.AcquisitionAttempt{
		Method:      model.Browser,
		Pages:       []model.Page{{URL: "https://example.com", HTML: tiersHTML}},
		CompletedAt: at,
	})

	require.True(t, x.Detected)
	assert.Equal(t, 2, x.Blocks)

	sizes := byField(x.Candidates, model.AccountSize)
	require.Len(t, sizes, 2)
	assert.Equal(t, 0, sizes[0].Block)
	assert.Equal(t, "$50,000", sizes[0].Raw)
	assert.Equal(t, 1, sizes[1].Block)
	assert.Equal(t, "$100,000", sizes[1].Raw)

	dd := byField(x.Candidates, model.EvalMaxDrawdown)
	require.Len(t, dd, 2)
	assert.Equal(t, "$2,500", dd[0].Raw)
	assert.Equal(t, "$5,000", dd[1].Raw)

	fees := byField(x.Candidates, model.EvalFee)
	require.Len(t, fees, 2)
	assert.Equal(t, "$155", fees[0].Raw)

	split := byField(x.Candidates, model.ProfitSplit)
	require.Len(t, split, 1)
	assert.Equal(t, model.PageLevel, split[0].Block)

	payout := byField(x.Candidates, model.PayoutFrequency)
	require.NotEmpty(t, payout)
	assert.Equal(t, "bi-weekly", payout[0].Raw)

	for _, c := range x.Candidates {
		assert.NotContains(t, c.Raw, "$1\"", "script text is not visible")
	}
}

func TestExtract_TextTiers(t *testing.T) {
	text := "Our challenges\n" +
		"25K Challenge\nProfit target 6%\nDaily loss limit 3%\n" +
		"50K Challenge\nProfit target 6%\nDaily loss limit 4%\n"
	x := newEngine().ExtractText(model.Target{}, model.HTTP, text, at)

	require.True(t, x.Detected)
	assert.Equal(t, 2, x.Blocks)

	daily := byField(x.Candidates, model.EvalDailyLoss)
	require.Len(t, daily, 2)
	assert.Equal(t, "3%", daily[0].Raw)
	assert.Equal(t, 0, daily[0].Block)
	assert.Equal(t, "4%", daily[1].Raw)
	assert.Equal(t, 1, daily[1].Block)
}

func TestExtract_DailyIsNotMaxDrawdown(t *testing.T) {
	x := newEngine().ExtractText(model.Target{}, model.HTTP,
		"Max Daily Drawdown: 5%\nMaximum Loss: 10%\nMinimum 4 trading days\nConsistency rule: not required", at)

	daily := byField(x.Candidates, model.EvalDailyLoss)
	require.NotEmpty(t, daily)
	assert.Equal(t, "5%", daily[0].Raw)

	dd := byField(x.Candidates, model.EvalMaxDrawdown)
	require.NotEmpty(t, dd)
	assert.Equal(t, "10%", dd[0].Raw)

	days := byField(x.Candidates, model.EvalMinDays)
	require.NotEmpty(t, days)
	assert.Equal(t, "4", days[0].Raw)

	consistency := byField(x.Candidates, model.EvalConsistency)
	require.NotEmpty(t, consistency)
	assert.Equal(t, "not required", consistency[0].Raw)
}

func TestExtract_LabelInNeighbourCell(t *testing.T) {
	html := `<table><tr><th>Account Size</th><td>€25,000</td></tr><tr><th>Reset Fee</th><td>€79</td></tr></table>`
	x := newEngine().Extract(model.Target{}, &model.AcquisitionAttempt{
		Pages: []model.Page{{HTML: html}}, CompletedAt: at,
	})

	size := byField(x.Candidates, model.AccountSize)
	require.NotEmpty(t, size)
	assert.Equal(t, "€25,000", size[0].Raw)

	reset := byField(x.Candidates, model.ResetFee)
	require.NotEmpty(t, reset)
	assert.Equal(t, "€79", reset[0].Raw)
}

func TestExtract_SiteRulesComeFirst(t *testing.T) {
	target := model.Target{
		Rules: []model.RuleSpec{{Field: model.EvalTarget, Keywords: []string{"Goal to pass"}, Window: 20}},
	}
	x := newEngine().ExtractText(target, model.HTTP, "Goal to pass 9% | Profit target 10%", at)

	targets := byField(x.Candidates, model.EvalTarget)
	require.Len(t, targets, 2)
	assert.Equal(t, "9%", targets[0].Raw)
	assert.Equal(t, "evaluation_target.site0", targets[0].Rule)
	assert.Equal(t, 0, targets[0].Priority)
}

func TestExtract_AccountSizeHints(t *testing.T) {
	target := model.Target{AccountSizeHints: []string{"$150,000"}}
	x := newEngine().ExtractText(target, model.HTTP, "Trade up to $150,000 with us", at)

	sizes := byField(x.Candidates, model.AccountSize)
	require.NotEmpty(t, sizes)
	assert.Equal(t, "$150,000", sizes[0].Raw)
}

func TestExtract_Deterministic(t *testing.T) {
	e := newEngine()
	attempt := &model.AcquisitionAttempt{Pages: []model.Page{{HTML: tiersHTML}}, CompletedAt: at}
	first := e.Extract(model.Target{}, attempt)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, e.Extract(model.Target{}, attempt))
	}
}

func TestValidateRule(t *testing.T) {
	assert.NoError(t, ValidateRule(model.RuleSpec{Field: model.ProfitSplit, Keywords: []string{"you keep"}}))
	assert.Error(t, ValidateRule(model.RuleSpec{Field: model.ProfitSplit}))
	assert.Error(t, ValidateRule(model.RuleSpec{Field: model.ProfitSplit, Keywords: []string{"x"}, Pattern: "("}))
}

func TestHTMLText(t *testing.T) {
	text := HTMLText(`<div>Max
  Drawdown<span style="display: none">hidden</span></div><ul><li>One</li><li>Two</li></ul>`)
	assert.Equal(t, "Max Drawdown\nOne\nTwo", text)
}
