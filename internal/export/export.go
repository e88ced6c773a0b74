package export

import (
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/IliaW/propfirm-rules-scraper/config"
	"github.com/IliaW/propfirm-rules-scraper/internal/model"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

const (
	rulesSheet   = "Trading Rules"
	summarySheet = "Summary"
)

func WriteCSV(w io.Writer, records []model.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header()); err != nil {
		return eris.Wrap(err, "can't write csv header")
	}
	for _, r := range records {
		if err := cw.Write(Row(r)); err != nil {
			return eris.Wrap(err, "can't write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "can't flush csv")
}

// WriteXLSX saves the records and the run summary as a two sheet workbook.
func WriteXLSX(path string, records []model.Record, summary model.Summary) error {
	f := xlsx.NewFile()
	rules, err := f.AddSheet(rulesSheet)
	if err != nil {
		return eris.Wrap(err, "can't add rules sheet")
	}
	addRow(rules, Header())
	for _, r := range records {
		addRow(rules, Row(r))
	}

	sum, err := f.AddSheet(summarySheet)
	if err != nil {
		return eris.Wrap(err, "can't add summary sheet")
	}
	for _, row := range SummaryRows(summary) {
		addRow(sum, row)
	}

	return eris.Wrapf(f.Save(path), "can't save %s", path)
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

// Files writes the enabled export formats into the configured directory and returns the
// paths written. A failing format does not stop the others.
func Files(cfg *config.ExportConfig, records []model.Record, summary model.Summary, log *slog.Logger) ([]string, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "can't create export dir %s", cfg.Dir)
	}
	stamp := summary.FinishedAt
	if stamp.IsZero() {
		stamp = time.Now()
	}
	base := filepath.Join(cfg.Dir, "trading_rules_"+stamp.Format("20060102_150405"))

	var paths []string
	var firstErr error
	if cfg.Csv {
		path := base + ".csv"
		if err := writeCSVFile(path, records); err != nil {
			log.Error("csv export failed.", slog.String("err", err.Error()))
			firstErr = err
		} else {
			paths = append(paths, path)
		}
	}
	if cfg.Xlsx {
		path := base + ".xlsx"
		if err := WriteXLSX(path, records, summary); err != nil {
			log.Error("xlsx export failed.", slog.String("err", err.Error()))
			if firstErr == nil {
				firstErr = err
			}
		} else {
			paths = append(paths, path)
		}
	}
	for _, p := range paths {
		log.Info("records exported.", slog.String("file", p), slog.Int("records", len(records)))
	}

	return paths, firstErr
}

func writeCSVFile(path string, records []model.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "can't create %s", path)
	}
	if err := WriteCSV(f, records); err != nil {
		f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "can't close %s", path)
}
