package persistence

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/IliaW/propfirm-rules-scraper/internal/model"
	jsoniter "github.com/json-iterator/go"
	"github.com/rotisserie/eris"
)

// RecordStorage keeps the acquisition history and the assembled records of every run.
type RecordStorage interface {
	SaveAttempt(model.AcquisitionAttempt)
	SaveRecords([]model.Record)
}

type RecordRepository struct {
	db  *sql.DB
	log *slog.Logger
}

func NewRecordRepository(db *sql.DB, log *slog.Logger) *RecordRepository {
	return &RecordRepository{db: db, log: log}
}

// The statements stay within the SQL understood by both MySQL and SQLite.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS acquisition_attempt (
		url VARCHAR(2048) NOT NULL,
		method VARCHAR(16) NOT NULL,
		source VARCHAR(32) NOT NULL,
		status_code INT NOT NULL,
		status VARCHAR(255),
		success BOOLEAN NOT NULL,
		auth_wall BOOLEAN NOT NULL,
		block_type VARCHAR(32),
		error TEXT,
		time_to_scrape BIGINT NOT NULL,
		completed_at TIMESTAMP NULL
	)`,
	`CREATE TABLE IF NOT EXISTS trading_rule (
		firm_name VARCHAR(255) NOT NULL,
		website_url VARCHAR(2048) NOT NULL,
		block_index INT NOT NULL,
		account_size_usd DECIMAL(14, 2) NULL,
		status VARCHAR(32) NOT NULL,
		method VARCHAR(16) NOT NULL,
		needs_review BOOLEAN NOT NULL,
		note TEXT,
		fields TEXT NOT NULL,
		last_updated TIMESTAMP NULL
	)`,
}

// Migrate creates the tables when they do not exist.
func (rr *RecordRepository) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := rr.db.ExecContext(ctx, stmt); err != nil {
			return eris.Wrap(err, "failed to migrate database")
		}
	}
	return nil
}

func (rr *RecordRepository) SaveAttempt(a model.AcquisitionAttempt) {
	_, err := rr.db.Exec("INSERT INTO acquisition_attempt (url, method, source, status_code, status, success, auth_wall, block_type, error, time_to_scrape, completed_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		a.URL,
		a.Method.String(),
		a.Source,
		a.StatusCode,
		a.Status,
		a.Success,
		a.AuthWall,
		a.Block,
		a.ErrDetail,
		a.TimeToScrape,
		a.CompletedAt.UTC())
	if err != nil {
		rr.log.Error("failed to save attempt to database.", slog.String("err", err.Error()))
		return
	}
	rr.log.Debug("attempt saved to db.")
}

// SaveRecords stores the records of one target in a single transaction.
func (rr *RecordRepository) SaveRecords(records []model.Record) {
	if len(records) == 0 {
		return
	}
	if err := rr.saveRecords(records); err != nil {
		rr.log.Error("failed to save records to database.", slog.String("err", err.Error()),
			slog.String("url", records[0].WebsiteURL))
		return
	}
	rr.log.Debug("records saved to db.", slog.Int("count", len(records)))
}

func (rr *RecordRepository) saveRecords(records []model.Record) error {
	tx, err := rr.db.Begin()
	if err != nil {
		return eris.Wrap(err, "can't begin transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT INTO trading_rule (firm_name, website_url, block_index, account_size_usd, status, method, needs_review, note, fields, last_updated) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return eris.Wrap(err, "can't prepare insert")
	}
	defer stmt.Close()

	for _, r := range records {
		values := r.Fields
		if values == nil {
			values = map[model.Field]model.NormalizedValue{}
		}
		fields, err := jsoniter.MarshalToString(values)
		if err != nil {
			return eris.Wrap(err, "can't encode fields")
		}
		var size sql.NullString
		if v, ok := r.Value(model.AccountSize); ok && v.Kind == model.KindMoney {
			size = sql.NullString{String: v.Amount.StringFixed(2), Valid: true}
		}
		_, err = stmt.Exec(r.FirmName, r.WebsiteURL, r.Block, size, string(r.Status), r.Method.String(),
			r.NeedsReview, r.Note, fields, r.LastUpdated.UTC())
		if err != nil {
			return eris.Wrap(err, "can't insert record")
		}
	}

	return eris.Wrap(tx.Commit(), "can't commit")
}
