// Package export writes records to CSV and spreadsheet files.
package export

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/IliaW/propfirm-rules-scraper/internal/model"
	"github.com/IliaW/propfirm-rules-scraper/internal/normalize"
)

const timeLayout = "2006-01-02 15:04:05"

type column struct {
	title string
	value func(model.Record) string
}

// columns is the export layout. Limits and fees are in dollars; relative limits are resolved
// against the account size when it is known.
var columns = []column{
	{"Firm Name", func(r model.Record) string { return r.FirmName }},
	{"Account Size", func(r model.Record) string { return original(r, model.AccountSize) }},
	{"Account Size (USD)", usd(model.AccountSize)},
	{"Website URL", func(r model.Record) string { return r.WebsiteURL }},
	{"Broker", plain(model.Broker)},
	{"Platform", plain(model.Platform)},
	{"Last Updated", func(r model.Record) string { return r.LastUpdated.UTC().Format(timeLayout) }},
	{"Status", func(r model.Record) string { return string(r.Status) }},
	{"Evaluation Target (USD)", usd(model.EvalTarget)},
	{"Evaluation Max Drawdown (USD)", usd(model.EvalMaxDrawdown)},
	{"Evaluation Daily Loss (USD)", usd(model.EvalDailyLoss)},
	{"Evaluation Drawdown Type", plain(model.EvalDrawdownType)},
	{"Evaluation Min Days", plain(model.EvalMinDays)},
	{"Evaluation Consistency", plain(model.EvalConsistency)},
	{"Funded Max Drawdown (USD)", usd(model.FundedMaxDrawdown)},
	{"Funded Daily Loss (USD)", usd(model.FundedDailyLoss)},
	{"Funded Drawdown Type", plain(model.FundedDrawdownType)},
	{"Profit Split (%)", func(r model.Record) string {
		if v, ok := r.Value(model.ProfitSplit); ok {
			return v.Amount.String()
		}
		return ""
	}},
	{"Payout Frequency", plain(model.PayoutFrequency)},
	{"Min Payout (USD)", usd(model.MinPayout)},
	{"Evaluation Fee (USD)", usd(model.EvalFee)},
	{"Reset Fee (USD)", usd(model.ResetFee)},
	{"Source Method", func(r model.Record) string { return r.Method.String() }},
	{"Needs Review", func(r model.Record) string { return yesNo(r.NeedsReview) }},
	{"Note", func(r model.Record) string { return r.Note }},
}

// Header returns the column titles.
func Header() []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.title
	}
	return out
}

// Row renders one record in column order.
func Row(r model.Record) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.value(r)
	}
	return out
}

func plain(f model.Field) func(model.Record) string {
	return func(r model.Record) string {
		if v, ok := r.Value(f); ok {
			return normalize.Format(v)
		}
		return ""
	}
}

func usd(f model.Field) func(model.Record) string {
	return func(r model.Record) string {
		if d, ok := r.USD(f); ok {
			return normalize.FormatUSD(model.NormalizedValue{Kind: model.KindMoney, Amount: d})
		}
		return plain(f)(r)
	}
}

func original(r model.Record, f model.Field) string {
	if v, ok := r.Value(f); ok {
		return normalize.FormatOriginal(v)
	}
	return ""
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// SummaryRows renders the run summary as label and value pairs.
func SummaryRows(s model.Summary) [][]string {
	rows := [][]string{
		{"Started", s.StartedAt.UTC().Format(timeLayout)},
		{"Finished", s.FinishedAt.UTC().Format(timeLayout)},
		{"Duration", s.Duration.Round(time.Second).String()},
		{"Targets", strconv.Itoa(s.Targets)},
		{"Records", strconv.Itoa(s.Records)},
		{"Attempts", strconv.Itoa(s.Attempts)},
		{"Escalations", strconv.Itoa(s.Escalations)},
	}
	if s.Fatal != "" {
		rows = append(rows, []string{"Fatal", s.Fatal})
	}
	for _, st := range model.Statuses {
		rows = append(rows, []string{"Status " + string(st), strconv.Itoa(s.ByStatus[st])})
	}
	for _, m := range []model.Method{model.HTTP, model.Browser, model.Chatbot} {
		rows = append(rows, []string{"Method " + m.String(), strconv.Itoa(s.ByMethod[m])})
	}
	firms := make([]string, 0, len(s.ByFirm))
	for f := range s.ByFirm {
		firms = append(firms, f)
	}
	slices.Sort(firms)
	for _, f := range firms {
		rows = append(rows, []string{"Firm " + f, fmt.Sprint(s.ByFirm[f])})
	}
	return rows
}
