package persistence

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	"github.com/IliaW/propfirm-rules-scraper/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func newRepository(t *testing.T) (*RecordRepository, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	repo := NewRecordRepository(db, slog.New(slog.NewTextHandler(nopWriter{}, nil)))
	require.NoError(t, repo.Migrate(context.Background()))
	require.NoError(t, repo.Migrate(context.Background()), "migration is repeatable")
	return repo, db
}

func TestRecordRepository_SaveAttempt(t *testing.T) {
	repo, db := newRepository(t)

	repo.SaveAttempt(model.AcquisitionAttempt{
		Method: model.HTTP, Source: "colly", URL: "https://firm.com", StatusCode: 403,
		Block: "cloudflare", ErrDetail: "blocked", TimeToScrape: 120, CompletedAt: time.Now(),
	})

	var method, block string
	var success bool
	err := db.QueryRow("SELECT method, block_type, success FROM acquisition_attempt").Scan(&method, &block, &success)
	require.NoError(t, err)
	assert.Equal(t, "http", method)
	assert.Equal(t, "cloudflare", block)
	assert.False(t, success)
}

func TestRecordRepository_SaveRecords(t *testing.T) {
	repo, db := newRepository(t)
	updated := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	repo.SaveRecords([]model.Record{
		{
			FirmName: "Firm", WebsiteURL: "https://firm.com", Block: 0, Status: model.StatusOK, Method: model.Browser,
			Fields: map[model.Field]model.NormalizedValue{
				model.AccountSize: {Kind: model.KindMoney, Amount: decimal.NewFromInt(50000), Currency: "USD"},
			},
			LastUpdated: updated,
		},
		{FirmName: "Firm", WebsiteURL: "https://firm.com", Block: 1, Status: model.StatusMissingData,
			Method: model.Browser, NeedsReview: true, LastUpdated: updated},
	})

	rows, err := db.Query("SELECT block_index, account_size_usd, status, needs_review, fields FROM trading_rule ORDER BY block_index")
	require.NoError(t, err)
	defer rows.Close()

	type row struct {
		block  int
		size   sql.NullString
		status string
		review bool
		fields string
	}
	var got []row
	for rows.Next() {
		var r row
		require.NoError(t, rows.Scan(&r.block, &r.size, &r.status, &r.review, &r.fields))
		got = append(got, r)
	}
	require.NoError(t, rows.Err())
	require.Len(t, got, 2)

	assert.True(t, got[0].size.Valid)
	assert.Equal(t, "OK", got[0].status)
	assert.Contains(t, got[0].fields, "account_size")
	assert.False(t, got[1].size.Valid)
	assert.True(t, got[1].review)
	assert.Equal(t, "{}", got[1].fields)
}
