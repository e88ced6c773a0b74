package normalize

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/IliaW/propfirm-rules-scraper/internal/model"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	xcurrency "golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Longer symbols first so that "US$" is not read as a bare "$".
var currencySymbols = []struct {
	symbol string
	code   string
}{
	{"us$", "USD"},
	{"ca$", "CAD"},
	{"c$", "CAD"},
	{"au$", "AUD"},
	{"a$", "AUD"},
	{"$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"¥", "JPY"},
	{"fr.", "CHF"},
}

// Codes that are recognized in lower case too. Other ISO codes must be written in capitals
// so that ordinary words ("all", "top") are not taken for currencies.
var commonCodes = map[string]bool{"usd": true, "eur": true, "gbp": true, "cad": true, "aud": true, "chf": true, "jpy": true}

var (
	amountRe       = regexp.MustCompile(`\d[\d,. ]*\d|\d`)
	dotThousandsRe = regexp.MustCompile(`^\d{1,3}(\.\d{3})+$`)
	decimalCommaRe = regexp.MustCompile(`^\d+,\d{1,2}$`)
	europeanRe     = regexp.MustCompile(`^\d{1,3}(\.\d{3})+,\d{1,2}$`)
	spaceGroupRe   = regexp.MustCompile(`^\d{1,3}( \d{3})+(\.\d+)?$`)
)

// Money parses an amount of money and converts it to USD rounded half up to cents.
func (n *Normalizer) Money(raw string, at time.Time) (model.NormalizedValue, error) {
	loc := amountRe.FindStringIndex(raw)
	if loc == nil {
		return model.NormalizedValue{}, eris.Wrapf(ErrUnparseableValue, "no amount in %q", raw)
	}
	amount, err := parseAmount(raw[loc[0]:loc[1]])
	if err != nil {
		return model.NormalizedValue{}, err
	}

	rest := raw[loc[1]:]
	scale, rest := scaleSuffix(rest)
	amount = amount.Mul(scale)

	code := detectCurrency(raw[:loc[0]], rest)
	rate, err := n.rates.Rate(code, at)
	if err != nil {
		return model.NormalizedValue{}, eris.Wrapf(ErrUnparseableValue, "%s: %v", raw, err)
	}

	return model.NormalizedValue{
		Kind:     model.KindMoney,
		Amount:   amount.Mul(rate).Round(2),
		Original: amount,
		Currency: code,
		Rate:     rate,
	}, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	switch {
	case spaceGroupRe.MatchString(s):
		s = strings.ReplaceAll(s, " ", "")
	case dotThousandsRe.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
	case europeanRe.MatchString(s):
		s = strings.Replace(strings.ReplaceAll(s, ".", ""), ",", ".", 1)
	case decimalCommaRe.MatchString(s):
		s = strings.Replace(s, ",", ".", 1)
	default:
		// Anything after an inner space belongs to a different number.
		if i := strings.IndexByte(s, ' '); i >= 0 {
			s = s[:i]
		}
		s = strings.ReplaceAll(s, ",", "")
		s = strings.TrimRight(s, ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, eris.Wrapf(ErrUnparseableValue, "amount %q", s)
	}
	return d, nil
}

// scaleSuffix reads a k/m multiplier right after the amount ("50k", "1.5 M").
func scaleSuffix(rest string) (decimal.Decimal, string) {
	trimmed := strings.TrimLeft(rest, " ")
	if trimmed == "" {
		return decimal.NewFromInt(1), rest
	}
	r := unicode.ToLower(rune(trimmed[0]))
	if r != 'k' && r != 'm' {
		return decimal.NewFromInt(1), rest
	}
	if len(trimmed) > 1 && unicode.IsLetter(rune(trimmed[1])) {
		return decimal.NewFromInt(1), rest
	}
	if r == 'k' {
		return decimal.NewFromInt(1_000), trimmed[1:]
	}
	return decimal.NewFromInt(1_000_000), trimmed[1:]
}

func detectCurrency(before, after string) string {
	b := strings.ToLower(strings.TrimSpace(before))
	for _, s := range currencySymbols {
		if strings.HasSuffix(b, s.symbol) {
			return s.code
		}
	}
	if code, ok := isoToken(lastWord(strings.TrimSpace(before))); ok {
		return code
	}

	a := strings.TrimSpace(after)
	for _, s := range currencySymbols {
		if s.symbol != "$" && strings.HasPrefix(strings.ToLower(a), s.symbol) {
			return s.code
		}
	}
	if code, ok := isoToken(firstWord(a)); ok {
		return code
	}

	return "USD"
}

func isoToken(tok string) (string, bool) {
	tok = strings.Trim(tok, ".,;:()")
	if len(tok) != 3 {
		return "", false
	}
	if !commonCodes[tok] && strings.ToUpper(tok) != tok {
		return "", false
	}
	unit, err := xcurrency.ParseISO(tok)
	if err != nil {
		return "", false
	}
	return unit.String(), true
}

func firstWord(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}

func lastWord(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[len(f)-1]
	}
	return ""
}

var usdPrinter = message.NewPrinter(language.English)

// FormatUSD renders a money value the way it would appear on a US pricing page. Feeding the
// result back to Money yields the same value.
func FormatUSD(v model.NormalizedValue) string {
	f, _ := v.Amount.Round(2).Float64()
	return usdPrinter.Sprintf("$%.2f", f)
}
