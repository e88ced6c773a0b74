package normalize

import (
	"github.com/IliaW/propfirm-rules-scraper/internal/model"
	"golang.org/x/text/number"
)

// Format renders a value for spreadsheets and CSV files.
func Format(v model.NormalizedValue) string {
	switch v.Kind {
	case model.KindMoney:
		return FormatUSD(v)
	case model.KindBool:
		if v.Bool {
			return "Yes"
		}
		return "No"
	default:
		return v.String()
	}
}

// FormatOriginal renders a money value in the currency it was quoted in, e.g. "EUR 50,000".
func FormatOriginal(v model.NormalizedValue) string {
	if v.Kind != model.KindMoney || v.Currency == "" || v.Currency == "USD" {
		return Format(v)
	}
	f, _ := v.Original.Float64()
	return usdPrinter.Sprintf("%s %v", v.Currency, number.Decimal(f, number.MaxFractionDigits(2)))
}
