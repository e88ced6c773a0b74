package export

import (
	"bytes"
	"encoding/csv"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/IliaW/propfirm-rules-scraper/config"
	"github.com/IliaW/propfirm-rules-scraper/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

var updated = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func money(amount int64, original int64, cur string) model.NormalizedValue {
	return model.NormalizedValue{Kind: model.KindMoney, Amount: decimal.NewFromInt(amount),
		Original: decimal.NewFromInt(original), Currency: cur}
}

func percent(p int64) model.NormalizedValue {
	return model.NormalizedValue{Kind: model.KindPercent, Amount: decimal.NewFromInt(p)}
}

func sampleRecords() []model.Record {
	return []model.Record{
		{
			FirmName:   "Apex Trader Funding",
			WebsiteURL: "https://apextraderfunding.com",
			Fields: map[model.Field]model.NormalizedValue{
				model.AccountSize:      money(54000, 50000, "EUR"),
				model.EvalTarget:       percent(8),
				model.EvalMaxDrawdown:  money(2500, 2500, "USD"),
				model.EvalDrawdownType: {Kind: model.KindEnum, Enum: model.DrawdownTrailing},
				model.EvalConsistency:  {Kind: model.KindBool, Bool: false},
				model.ProfitSplit:      percent(90),
			},
			Status:      model.StatusOK,
			Method:      model.HTTP,
			LastUpdated: updated,
		},
		{
			FirmName:    "Legacy",
			WebsiteURL:  "https://legacy.com",
			Status:      model.StatusNotImplemented,
			Method:      model.Manual,
			NeedsReview: true,
			Note:        model.ErrNoExtractorImplemented.Error(),
			LastUpdated: updated,
		},
	}
}

func cell(t *testing.T, header, row []string, title string) string {
	t.Helper()
	for i, h := range header {
		if h == title {
			return row[i]
		}
	}
	t.Fatalf("no column %q", title)
	return ""
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRecords()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	header, first, second := rows[0], rows[1], rows[2]

	assert.Equal(t, "Firm Name", header[0])
	assert.Equal(t, "EUR 50,000", cell(t, header, first, "Account Size"))
	assert.Equal(t, "$54,000.00", cell(t, header, first, "Account Size (USD)"))
	assert.Equal(t, "$4,320.00", cell(t, header, first, "Evaluation Target (USD)"))
	assert.Equal(t, "$2,500.00", cell(t, header, first, "Evaluation Max Drawdown (USD)"))
	assert.Equal(t, "TRAILING", cell(t, header, first, "Evaluation Drawdown Type"))
	assert.Equal(t, "No", cell(t, header, first, "Evaluation Consistency"))
	assert.Equal(t, "90", cell(t, header, first, "Profit Split (%)"))
	assert.Equal(t, "2024-05-01 12:00:00", cell(t, header, first, "Last Updated"))
	assert.Equal(t, "http", cell(t, header, first, "Source Method"))
	assert.Equal(t, "No", cell(t, header, first, "Needs Review"))

	assert.Equal(t, "NOT_IMPLEMENTED", cell(t, header, second, "Status"))
	assert.Equal(t, "", cell(t, header, second, "Account Size"))
	assert.Equal(t, "Yes", cell(t, header, second, "Needs Review"))
}

func TestFiles(t *testing.T) {
	cfg := &config.ExportConfig{Dir: t.TempDir(), Csv: true, Xlsx: true}
	rs := model.NewRunState().WithRecords(sampleRecords())
	summary := model.Summary{RunState: rs, StartedAt: updated, FinishedAt: updated.Add(90 * time.Second),
		Duration: 90 * time.Second}

	paths, err := Files(cfg, sampleRecords(), summary, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(cfg.Dir, "trading_rules_20240501_120130.csv"), paths[0])

	f, err := xlsx.OpenFile(paths[1])
	require.NoError(t, err)
	rules, ok := f.Sheet[rulesSheet]
	require.True(t, ok)
	assert.Len(t, rules.Rows, 3)
	assert.Equal(t, "Firm Name", rules.Rows[0].Cells[0].String())

	sum, ok := f.Sheet[summarySheet]
	require.True(t, ok)
	var labels []string
	for _, row := range sum.Rows {
		labels = append(labels, row.Cells[0].String())
		if row.Cells[0].String() == "Records" {
			assert.Equal(t, "2", row.Cells[1].String())
		}
	}
	assert.Contains(t, labels, "Status NOT_IMPLEMENTED")
	assert.Contains(t, labels, "Firm Legacy")
}
