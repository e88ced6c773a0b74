// Package assemble turns the field candidates of a target into canonical records.
package assemble

import (
	"log/slog"
	"strings"
	"time"

	"github.com/IliaW/propfirm-rules-scraper/internal/extract"
	"github.com/IliaW/propfirm-rules-scraper/internal/model"
	"github.com/IliaW/propfirm-rules-scraper/internal/normalize"
)

// Input is everything the assembler needs to know about one target.
type Input struct {
	Target model.Target
	// Extractions of the successful attempts in the order the attempts ran.
	Extractions []extract.Extraction
	Attempts    int
	AuthWall    bool
	// AllFailed is set when every attempt errored without content.
	AllFailed   bool
	Method      model.Method
	LastError   string
	CompletedAt time.Time
}

type Assembler struct {
	norm       *normalize.Normalizer
	maxMissing int
	log        *slog.Logger
}

// New creates an assembler. maxMissing is how many minimum-viable fields a record may lack
// and still be OK.
func New(norm *normalize.Normalizer, maxMissing int, log *slog.Logger) *Assembler {
	return &Assembler{norm: norm, maxMissing: max(maxMissing, 0), log: log}
}

// Assemble produces one record per account size block, or a single record when the content
// has no blocks. It always returns at least one record.
func (a *Assembler) Assemble(in Input) []model.Record {
	log := a.log.With(slog.String("url", in.Target.URL))
	updated := in.CompletedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	sources := latestFirst(in.Extractions)
	blocks, detected := 1, false
	if len(sources) > 0 && sources[0].Detected {
		blocks, detected = sources[0].Blocks, true
	}

	var records []model.Record
	seen := make(map[string]bool)
	for b := 0; b < blocks; b++ {
		fields := a.resolve(sources, b, detected, updated, log)
		if size, ok := fields[model.AccountSize]; ok {
			key := size.Amount.String()
			if seen[key] {
				log.Debug("duplicate account size dropped.", slog.Int("block", b), slog.String("account_size", key))
				continue
			}
			seen[key] = true
		}

		r := model.Record{
			FirmName:    in.Target.FirmName,
			WebsiteURL:  in.Target.URL,
			TargetIndex: in.Target.Index,
			Block:       b,
			Fields:      fields,
			Method:      in.Method,
			LastUpdated: updated,
		}
		r.Status, r.Note = a.status(in, r)
		r.NeedsReview = r.Status != model.StatusOK || r.Method == model.Manual
		records = append(records, r)

		log.Info("record assembled.", slog.String("status", string(r.Status)), slog.Int("block", b),
			slog.Int("fields", r.Resolved()), slog.String("method", r.Method.String()))
	}

	return records
}

// resolve picks the first candidate of every field that normalizes. Sources are visited
// latest method first; within a source the candidates of the block come before the
// page level ones.
func (a *Assembler) resolve(sources []extract.Extraction, block int, detected bool, at time.Time,
	log *slog.Logger) map[model.Field]model.NormalizedValue {
	fields := make(map[model.Field]model.NormalizedValue)
	for _, spec := range model.Fields {
		var tried int
		for _, c := range candidatesFor(sources, spec.Field, block, detected) {
			tried++
			v, ok, err := a.norm.Normalize(c.Field, c.Raw, at)
			if err != nil {
				log.Debug("candidate rejected.", slog.String("field", string(c.Field)),
					slog.String("raw", c.Raw), slog.String("err", err.Error()))
				continue
			}
			if !ok {
				continue
			}
			fields[spec.Field] = v
			log.Debug("field resolved.", slog.String("field", string(spec.Field)), slog.Int("block", block),
				slog.String("value", normalize.Format(v)), slog.String("rule", c.Rule),
				slog.String("method", c.Method.String()))
			break
		}
		if _, ok := fields[spec.Field]; !ok && tried > 0 {
			log.Debug("field unresolved.", slog.String("field", string(spec.Field)), slog.Int("block", block),
				slog.Int("candidates", tried))
		}
	}
	return fields
}

// candidatesFor lists the candidates of field f eligible for a record block in resolution
// order. Block specific candidates of a source are only used when the record layout comes
// from a source with blocks too.
func candidatesFor(sources []extract.Extraction, f model.Field, block int, detected bool) []model.FieldCandidate {
	var out []model.FieldCandidate
	for _, x := range sources {
		var own, page []model.FieldCandidate
		for _, c := range x.Candidates {
			if c.Field != f {
				continue
			}
			switch {
			case c.Block == model.PageLevel:
				page = append(page, c)
			case !x.Detected:
				own = append(own, c)
			case detected && c.Block == block:
				own = append(own, c)
			}
		}
		out = append(out, own...)
		out = append(out, page...)
	}
	return out
}

// latestFirst drops extractions without candidates and reverses the rest.
func latestFirst(xs []extract.Extraction) []extract.Extraction {
	var out []extract.Extraction
	for i := len(xs) - 1; i >= 0; i-- {
		if len(xs[i].Candidates) > 0 {
			out = append(out, xs[i])
		}
	}
	return out
}

func (a *Assembler) status(in Input, r model.Record) (model.Status, string) {
	var missing []string
	for _, f := range model.MinimumViable {
		if _, ok := r.Fields[f]; !ok {
			spec, _ := model.SpecOf(f)
			missing = append(missing, strings.ToLower(spec.Title))
		}
	}

	switch {
	case in.AuthWall:
		return model.StatusLoginRequired, model.ErrAuthRequired.Error()
	case !in.Target.Stub && (in.AllFailed || r.Resolved() == 0):
		if in.AllFailed && in.LastError != "" {
			return model.StatusFailed, in.LastError
		}
		return model.StatusFailed, model.ErrEmptyExtraction.Error()
	case in.Target.Stub:
		return model.StatusNotImplemented, model.ErrNoExtractorImplemented.Error()
	case len(missing) > a.maxMissing:
		return model.StatusMissingData, "missing " + strings.Join(missing, ", ")
	case len(missing) > 0:
		return model.StatusOK, "missing " + strings.Join(missing, ", ")
	default:
		return model.StatusOK, ""
	}
}
