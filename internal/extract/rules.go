package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/IliaW/propfirm-rules-scraper/internal/model"
	"github.com/IliaW/propfirm-rules-scraper/internal/normalize"
	"github.com/rotisserie/eris"
)

const (
	moneyPattern = `(?:(?:us|ca?|au?)?\$|€|£|¥|\b(?:usd|eur|gbp|cad|aud|chf|jpy)\s?)\s?\d[\d,.]*(?:\s?[km]\b)?` +
		`|\b\d[\d,.]*(?:\s?[km])?\s?(?:usd|eur|gbp|cad|aud|chf|jpy)\b` +
		`|\b\d[\d,.]*\s?€`
	percentPattern = `\d{1,3}(?:[.,]\d{1,2})?\s?%`
	sizePattern    = moneyPattern + `|\b\d{1,4}\s?k\b`
	daysPattern    = `\b\d{1,3}\b`
	boolPattern    = `\b(?:not required|not applicable|not enforced|required|mandatory|optional|yes|no|none|n/a|enabled|disabled|active|inactive|applies|enforced|true|false)\b`
)

type valueKind int

const (
	valueDefault valueKind = iota // follows the parser of the field
	valueMoney
	valuePercent
	valueLimit
	valueSize
	valueDays
	valueBool
	valueSelf // the keyword match is the value
)

// ruleDef is one entry of a field matcher. Keywords are regular expression fragments and are
// matched case-insensitively on word boundaries.
type ruleDef struct {
	id       string
	keywords []string
	value    valueKind
	pattern  string // overrides value when set
	window   int
	before   bool
	reject   []string
	minUSD   float64
	maxUSD   float64
	minNum   float64 // bounds for percentages and integers
	maxNum   float64
	emit     string
}

var (
	evalReject  = []string{"funded", "daily", "phase 2", "phase two", "step 2"}
	feeReject   = []string{"reset", "activation", "refund", "monthly"}
	sizeBounds  = [2]float64{1_000, 10_000_000}
	feeBounds   = [2]float64{1, 5_000}
	splitBounds = [2]float64{10, 100}
)

// defaultRules is the matcher table. Within a field the rules are listed by priority.
var defaultRules = map[model.Field][]ruleDef{
	model.AccountSize: {
		{id: "label", keywords: []string{`account size`, `account balance`, `starting balance`, `initial balance`,
			`account capital`, `funding amount`, `capital`, `balance`}, value: valueSize, window: 40,
			minUSD: sizeBounds[0], maxUSD: sizeBounds[1]},
		{id: "suffix", keywords: []string{`(?:funded )?accounts?`, `challenges?`, `evaluations?`, `plans?`, `programs?`,
			`combine`}, value: valueSize, before: true, window: 20, minUSD: 5_000, maxUSD: sizeBounds[1]},
	},
	model.EvalTarget: {
		{id: "label", keywords: []string{`profit target`, `target profit`, `profit goal`, `evaluation target`,
			`phase (?:1|one) (?:profit )?target`, `step (?:1|one) (?:profit )?target`}, value: valueLimit, window: 40,
			reject: []string{"funded", "phase 2", "phase two", "step 2"}},
		{id: "before", keywords: []string{`profit target`, `target`}, value: valueLimit, before: true, window: 15,
			reject: []string{"funded"}},
		{id: "bare", keywords: []string{`target`}, value: valueLimit, window: 25, reject: []string{"funded"}},
	},
	model.EvalMaxDrawdown: {
		{id: "label", keywords: []string{`max(?:imum|\.)? (?:trailing |overall |total )?drawdown`, `max(?:imum)? (?:overall )?loss`,
			`overall (?:drawdown|loss limit)`, `total drawdown`, `trailing (?:drawdown|threshold)`, `loss limit`},
			value: valueLimit, window: 40, reject: evalReject},
		{id: "before", keywords: []string{`(?:max(?:imum)? )?drawdown`, `max loss`}, value: valueLimit, before: true,
			window: 15, reject: evalReject},
		{id: "bare", keywords: []string{`drawdown`}, value: valueLimit, window: 30, reject: evalReject},
	},
	model.EvalDailyLoss: {
		{id: "label", keywords: []string{`(?:max(?:imum)? )?daily (?:max )?(?:loss|drawdown)(?: limit)?`, `daily limit`},
			value: valueLimit, window: 40, reject: []string{"funded"}},
		{id: "before", keywords: []string{`daily (?:loss|drawdown)`}, value: valueLimit, before: true, window: 15,
			reject: []string{"funded"}},
	},
	model.EvalDrawdownType: {
		{id: "label", keywords: []string{`drawdown (?:type|mode|style|calculation)`}, window: 40},
		{id: "before", keywords: []string{`drawdown`, `threshold`}, before: true, window: 25,
			reject: []string{"funded", "daily"}},
		{id: "after", keywords: []string{`max(?:imum)? drawdown`, `drawdown`, `max loss`}, window: 40,
			reject: []string{"funded", "daily"}},
	},
	model.EvalMinDays: {
		{id: "label", keywords: []string{`min(?:imum|\.)? (?:number of )?trading days`, `min(?:imum|\.)? days`,
			`trading days required`}, value: valueDays, window: 30, maxNum: 365},
		{id: "before", keywords: []string{`(?:trading )?days? minimum`, `trading days?`}, value: valueDays, before: true,
			window: 15, maxNum: 365},
	},
	model.EvalConsistency: {
		{id: "label", keywords: []string{`consistency (?:rule|requirement)s?`, `consistency`}, value: valueBool, window: 40},
		{id: "before", keywords: []string{`consistency`}, value: valueBool, before: true, window: 12},
		{id: "percent", keywords: []string{`consistency (?:rule|requirement)s?`, `consistency`}, value: valuePercent,
			window: 40, emit: "required"},
	},
	model.FundedMaxDrawdown: {
		{id: "label", keywords: []string{`funded(?: account| phase| stage)?(?: max(?:imum)?)?(?: trailing| overall)? (?:drawdown|loss)`},
			value: valueLimit, window: 40, reject: []string{"daily"}},
	},
	model.FundedDailyLoss: {
		{id: "label", keywords: []string{`funded(?: account| phase| stage)?(?: max(?:imum)?)? daily (?:loss|drawdown)(?: limit)?`},
			value: valueLimit, window: 40},
	},
	model.FundedDrawdownType: {
		{id: "label", keywords: []string{`funded(?: account| phase| stage)?(?: max(?:imum)?)? drawdown(?: type)?`}, window: 40},
	},
	model.ProfitSplit: {
		{id: "label", keywords: []string{`profit split`, `profit shar(?:e|ing)`, `payout split`, `reward split`,
			`revenue (?:split|share)`, `performance split`}, value: valuePercent, window: 40,
			minNum: splitBounds[0], maxNum: splitBounds[1]},
		{id: "before", keywords: []string{`profit split`, `profit share`, `of (?:the |your )?profits?`, `split`},
			value: valuePercent, before: true, window: 20, minNum: splitBounds[0], maxNum: splitBounds[1]},
		{id: "keep", keywords: []string{`keep up to`, `keep`, `receive up to`, `earn up to`}, value: valuePercent,
			window: 15, minNum: splitBounds[0], maxNum: splitBounds[1]},
		{id: "bare", keywords: []string{`split`}, value: valuePercent, window: 25,
			minNum: splitBounds[0], maxNum: splitBounds[1]},
	},
	model.PayoutFrequency: {
		{id: "label", keywords: []string{`payout (?:frequency|schedule|cycle|policy)`, `payouts?`, `withdrawals?`, `paid`},
			window: 50},
		{id: "before", keywords: []string{`payouts?`, `withdrawals?`}, before: true, window: 20},
	},
	model.MinPayout: {
		{id: "label", keywords: []string{`min(?:imum)? (?:payout|withdrawal)(?: amount)?`, `payout minimum`},
			value: valueMoney, window: 40},
	},
	model.EvalFee: {
		{id: "label", keywords: []string{`(?:evaluation|challenge|assessment|registration|entry|one-time) (?:fee|price|cost)`},
			value: valueMoney, window: 40, minUSD: feeBounds[0], maxUSD: feeBounds[1]},
		{id: "price", keywords: []string{`price`, `fee`, `cost`, `pricing`}, value: valueMoney, window: 30,
			reject: feeReject, minUSD: feeBounds[0], maxUSD: feeBounds[1]},
	},
	model.ResetFee: {
		{id: "label", keywords: []string{`reset (?:fee|price|cost)`, `account reset`, `resets?`}, value: valueMoney,
			window: 40, minUSD: feeBounds[0], maxUSD: feeBounds[1]},
		{id: "before", keywords: []string{`resets?`}, value: valueMoney, before: true, window: 12,
			minUSD: feeBounds[0], maxUSD: feeBounds[1]},
	},
	model.Platform: {
		{id: "label", keywords: []string{`trading platforms?`, `platforms?`, `trade (?:on|with)`, `available on`}, window: 80},
		{id: "mention", keywords: tableKeywords(normalize.Platforms), value: valueSelf},
	},
	model.Broker: {
		{id: "label", keywords: []string{`brokers?`, `brokerage`, `data feeds?`, `powered by`, `liquidity provider`},
			window: 60},
		{id: "mention", keywords: tableKeywords(normalize.Brokers), value: valueSelf},
	},
}

func tableKeywords(t normalize.KeywordTable) []string {
	var out []string
	for _, e := range t {
		for _, kw := range e.Keywords {
			out = append(out, regexp.QuoteMeta(kw))
		}
	}
	return out
}

func tablePattern(t normalize.KeywordTable) string {
	return strings.Join(tableKeywords(t), "|")
}

// valuePattern returns the pattern a rule uses to find its value.
func valuePattern(f model.Field, d ruleDef) (string, error) {
	if d.pattern != "" {
		return d.pattern, nil
	}
	kind := d.value
	spec, ok := model.SpecOf(f)
	if !ok {
		return "", eris.Errorf("unknown field %q", f)
	}
	if kind == valueDefault {
		switch spec.Parser {
		case model.ParseMoney:
			kind = valueMoney
		case model.ParseLimit:
			kind = valueLimit
		case model.ParsePercent:
			kind = valuePercent
		case model.ParseInteger:
			kind = valueDays
		case model.ParseBool:
			kind = valueBool
		}
	}
	switch kind {
	case valueMoney:
		return moneyPattern, nil
	case valuePercent:
		return percentPattern, nil
	case valueLimit:
		return percentPattern + `|` + moneyPattern, nil
	case valueSize:
		return sizePattern, nil
	case valueDays:
		return daysPattern, nil
	case valueBool:
		return boolPattern, nil
	case valueSelf:
		return "", nil
	}
	switch spec.Parser {
	case model.ParseDrawdownType:
		return tablePattern(normalize.DrawdownTypes), nil
	case model.ParsePayoutFrequency:
		return tablePattern(normalize.PayoutFrequencies), nil
	case model.ParsePlatform:
		return tablePattern(normalize.Platforms), nil
	case model.ParseBroker:
		return tablePattern(normalize.Brokers), nil
	}
	return "", eris.Errorf("field %s has no default value pattern", f)
}

// overrideDef turns a configured site rule into a rule definition. Override keywords are
// literal phrases.
func overrideDef(s model.RuleSpec, i int) ruleDef {
	kws := make([]string, 0, len(s.Keywords))
	for _, k := range s.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			kws = append(kws, regexp.QuoteMeta(k))
		}
	}
	window := s.Window
	if window <= 0 {
		window = 40
	}
	d := ruleDef{
		id:       "site" + strconv.Itoa(i),
		keywords: kws,
		pattern:  s.Pattern,
		window:   window,
		before:   s.Before,
	}
	if s.Field == model.AccountSize {
		d.value, d.minUSD, d.maxUSD = valueSize, sizeBounds[0], sizeBounds[1]
	}
	return d
}

// hintDef matches a configured account size literally wherever it appears.
func hintDef(hints []string) ruleDef {
	kws := make([]string, 0, len(hints))
	for _, h := range hints {
		if h = strings.TrimSpace(h); h != "" {
			kws = append(kws, regexp.QuoteMeta(h))
		}
	}
	return ruleDef{id: "hint", keywords: kws, value: valueSelf, minUSD: sizeBounds[0], maxUSD: sizeBounds[1]}
}
