package normalize

import (
	"regexp"
	"strings"

	"github.com/IliaW/propfirm-rules-scraper/internal/model"
)

// KeywordTable maps phrases to enum members. Entries are checked in order and the first
// entry with a matching phrase wins.
type KeywordTable []KeywordEntry

type KeywordEntry struct {
	Member   string
	Keywords []string
}

// "End of day trailing" is an EOD drawdown and "hybrid" pages usually mention both other
// kinds, so the more specific members come first.
var DrawdownTypes = KeywordTable{
	{model.DrawdownHybrid, []string{"hybrid", "combination", "mixed"}},
	{model.DrawdownEOD, []string{"end of day", "end-of-day", "eod", "daily close", "close of day"}},
	{model.DrawdownTrailing, []string{"trailing", "trail"}},
	{model.DrawdownStatic, []string{"static", "fixed", "absolute"}},
}

var PayoutFrequencies = KeywordTable{
	{model.PayoutBiweekly, []string{"bi-weekly", "biweekly", "bi weekly", "every two weeks", "every 2 weeks", "every 14 days", "fortnight"}},
	{model.PayoutWeekly, []string{"weekly", "every week", "every 7 days", "each week"}},
	{model.PayoutMonthly, []string{"monthly", "every month", "every 30 days", "each month"}},
	{model.PayoutOnDemand, []string{"on demand", "on-demand", "anytime", "any time", "daily payout", "upon request"}},
}

var Platforms = KeywordTable{
	{model.PlatformMT4, []string{"mt4", "metatrader 4", "metatrader4"}},
	{model.PlatformMT5, []string{"mt5", "metatrader 5", "metatrader5"}},
	{model.PlatformCTrader, []string{"ctrader", "c-trader"}},
	{model.PlatformNinjaTrader, []string{"ninjatrader", "ninja trader"}},
	{model.PlatformTradingView, []string{"tradingview", "trading view"}},
	{model.PlatformProprietary, []string{"proprietary platform", "in-house platform", "our own platform"}},
}

var Brokers = KeywordTable{
	{model.BrokerPurpleTrading, []string{"purple trading"}},
	{model.BrokerEightcap, []string{"eightcap"}},
	{model.BrokerMatchTrader, []string{"match-trader", "match trader", "matchtrader"}},
	{model.BrokerTopstep, []string{"topstep"}},
	{model.BrokerRithmic, []string{"rithmic"}},
	{model.BrokerCQG, []string{"cqg"}},
	{model.BrokerTradovate, []string{"tradovate"}},
}

// Enum classifies raw against table. No match leaves the field unset.
func Enum(table KeywordTable, raw string) (model.NormalizedValue, bool, error) {
	lower := strings.ToLower(raw)
	for _, e := range table {
		for _, kw := range e.Keywords {
			if strings.Contains(lower, kw) {
				return model.NormalizedValue{Kind: model.KindEnum, Enum: e.Member}, true, nil
			}
		}
	}
	return model.NormalizedValue{}, false, nil
}

// EnumMulti is Enum for lists such as supported platforms: more than one distinct member
// yields the multiple member.
func EnumMulti(table KeywordTable, raw, multiple string) (model.NormalizedValue, bool, error) {
	lower := strings.ToLower(raw)
	var found []string
	for _, e := range table {
		for _, kw := range e.Keywords {
			if strings.Contains(lower, kw) {
				found = append(found, e.Member)
				break
			}
		}
	}
	switch len(found) {
	case 0:
		return model.NormalizedValue{}, false, nil
	case 1:
		return model.NormalizedValue{Kind: model.KindEnum, Enum: found[0]}, true, nil
	default:
		return model.NormalizedValue{Kind: model.KindEnum, Enum: multiple}, true, nil
	}
}

var (
	negativeRe    = wordsRe("not required", "not applicable", "not enforced", "no", "none", "n/a", "false", "optional", "disabled", "inactive", "without")
	affirmativeRe = wordsRe("required", "mandatory", "yes", "true", "enabled", "active", "applies", "enforced")
)

func wordsRe(words ...string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)(?:^|[^a-z])(` + strings.Join(quoted, "|") + `)(?:[^a-z]|$)`)
}

// Bool reads a yes/no statement. Text that says both or neither leaves the field unset.
func Bool(raw string) (model.NormalizedValue, bool, error) {
	negative := negativeRe.MatchString(raw)
	rest := negativeRe.ReplaceAllString(raw, " ")
	affirmative := affirmativeRe.MatchString(rest)

	if negative == affirmative {
		return model.NormalizedValue{}, false, nil
	}
	return model.NormalizedValue{Kind: model.KindBool, Bool: affirmative}, true, nil
}
