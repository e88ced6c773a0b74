package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/IliaW/propfirm-rules-scraper/config"
	"github.com/IliaW/propfirm-rules-scraper/internal/aws_s3"
	"github.com/IliaW/propfirm-rules-scraper/internal/model"
	"github.com/IliaW/propfirm-rules-scraper/internal/persistence"
)

// sequencer restores input order of results that complete out of order.
type sequencer struct {
	next    int
	pending map[int]result
}

func newSequencer() *sequencer {
	return &sequencer{pending: make(map[int]result)}
}

// add buffers r and returns the results that are now ready, in order.
func (s *sequencer) add(r result) []result {
	s.pending[r.seq] = r
	var ready []result
	for {
		next, ok := s.pending[s.next]
		if !ok {
			return ready
		}
		delete(s.pending, s.next)
		ready = append(ready, next)
		s.next++
	}
}

// drain returns the buffered results that are still waiting for a gap, in order. Gaps
// only remain when a run is cut short.
func (s *sequencer) drain() []result {
	var out []result
	for len(s.pending) > 0 {
		if r, ok := s.pending[s.next]; ok {
			out = append(out, r)
			delete(s.pending, s.next)
		}
		s.next++
	}
	return out
}

type Runner struct {
	Pipeline   *Pipeline
	Cfg        *config.WorkerConfig
	Log        *slog.Logger
	Db         persistence.RecordStorage
	S3         aws_s3.BucketClient
	RecordChan chan<- model.Record // optional, records are sent in input order
}

// Run processes all targets and returns their records in input order with the run summary.
// A fatal error stops dispatching new targets; records assembled so far are still returned.
func (r *Runner) Run(ctx context.Context, targets []model.Target) ([]model.Record, model.Summary) {
	summary := model.Summary{RunState: model.NewRunState(), StartedAt: time.Now()}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if r.Cfg.RunTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, r.Cfg.RunTimeout)
		defer cancelTimeout()
	}

	workers := max(r.Cfg.MaxWorkers, 1)
	inputChan := make(chan job, workers)
	outputChan := make(chan result, workers)
	panicChan := make(chan struct{}, workers)

	workerWg := &sync.WaitGroup{}
	scrapeWorker := &ScrapeWorker{
		InputChan:  inputChan,
		OutputChan: outputChan,
		PanicChan:  panicChan,
		Pipeline:   r.Pipeline,
		Log:        r.Log,
		Db:         r.Db,
		S3:         r.S3,
		Wg:         workerWg,
	}
	for i := 0; i < workers; i++ {
		workerWg.Add(1)
		go scrapeWorker.Run(ctx)
	}
	// Restart workers if they panic.
	go func() {
		for range panicChan {
			go scrapeWorker.Run(ctx)
			time.Sleep(r.Cfg.PanicRestartDelay) // timeout to avoid polluting logs if something unrecoverable happened
		}
	}()

	go func() {
		defer close(inputChan)
		for i, t := range targets {
			select {
			case <-ctx.Done():
				r.Log.Warn("run stopped, targets left unprocessed.", slog.Int("remaining", len(targets)-i),
					slog.String("reason", context.Cause(ctx).Error()))
				return
			case inputChan <- job{seq: i, target: t}:
			}
		}
	}()

	go func() {
		workerWg.Wait()
		close(outputChan)
		close(panicChan)
	}()

	var records []model.Record
	emit := func(res result) {
		summary.RunState = summary.RunState.Merge(res.state)
		records = append(records, res.res.Records...)
		if r.Db != nil {
			r.Db.SaveRecords(res.res.Records)
		}
		if r.RecordChan != nil {
			for _, rec := range res.res.Records {
				r.RecordChan <- rec
			}
		}
	}
	seq := newSequencer()
	for res := range outputChan {
		if fatal := res.res.Outcome.Fatal; fatal != nil && summary.Fatal == "" {
			summary.Fatal = fatal.Error()
			r.Log.Error("fatal error, stopping the run.", slog.String("err", summary.Fatal))
			cancel()
		}
		for _, ready := range seq.add(res) {
			emit(ready)
		}
	}
	for _, rest := range seq.drain() {
		emit(rest)
	}

	summary.FinishedAt = time.Now()
	summary.Duration = summary.FinishedAt.Sub(summary.StartedAt)
	r.Log.Info("run finished.", slog.Int("targets", summary.Targets), slog.Int("records", summary.Records),
		slog.Int("attempts", summary.Attempts), slog.Int("escalations", summary.Escalations),
		slog.Duration("duration", summary.Duration))

	return records, summary
}
