// Package worker runs the per-target pipeline over a bounded pool of workers.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/IliaW/propfirm-rules-scraper/internal/acquire"
	"github.com/IliaW/propfirm-rules-scraper/internal/assemble"
	"github.com/IliaW/propfirm-rules-scraper/internal/model"
)

// Acquisition is the escalation chain as seen by the pipeline.
type Acquisition interface {
	Run(ctx context.Context, t model.Target, rs model.RunState) (acquire.Outcome, model.RunState)
}

// Result is what one target produced.
type Result struct {
	Target  model.Target
	Records []model.Record
	Outcome acquire.Outcome
}

type Pipeline struct {
	chain     Acquisition
	assembler *assemble.Assembler
	log       *slog.Logger
}

func NewPipeline(chain Acquisition, assembler *assemble.Assembler, log *slog.Logger) *Pipeline {
	return &Pipeline{chain: chain, assembler: assembler, log: log}
}

// Process acquires and assembles one target. Stub targets skip acquisition. The returned
// run state is rs with this target counted.
func (p *Pipeline) Process(ctx context.Context, t model.Target, rs model.RunState) (Result, model.RunState) {
	if t.Stub {
		p.log.Info("site has no extractor, skipping acquisition.", slog.String("url", t.URL))
		records := p.assembler.Assemble(assemble.Input{Target: t, Method: model.Manual, CompletedAt: time.Now()})
		return Result{Target: t, Records: records, Outcome: acquire.Outcome{Method: model.Manual}}, rs.WithRecords(records)
	}

	out, rs := p.chain.Run(ctx, t, rs)
	in := assemble.Input{
		Target:      t,
		Extractions: out.Extractions,
		Attempts:    len(out.Attempts),
		AuthWall:    out.AuthWall,
		AllFailed:   out.AllFailed(),
		Method:      out.Method,
		CompletedAt: out.CompletedAt,
	}
	if n := len(out.Attempts); n > 0 {
		in.LastError = out.Attempts[n-1].ErrDetail
	}
	records := p.assembler.Assemble(in)

	return Result{Target: t, Records: records, Outcome: out}, rs.WithRecords(records)
}

// failedResult stands in for a target whose pipeline panicked.
func failedResult(t model.Target, reason string) (Result, model.RunState) {
	r := model.Record{
		FirmName:    t.FirmName,
		WebsiteURL:  t.URL,
		TargetIndex: t.Index,
		Fields:      map[model.Field]model.NormalizedValue{},
		Status:      model.StatusFailed,
		Method:      model.Manual,
		NeedsReview: true,
		Note:        reason,
		LastUpdated: time.Now(),
	}
	records := []model.Record{r}
	return Result{Target: t, Records: records, Outcome: acquire.Outcome{Method: model.Manual}},
		model.NewRunState().WithRecords(records)
}
