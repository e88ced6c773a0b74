package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/IliaW/propfirm-rules-scraper/internal/acquire"
	"github.com/IliaW/propfirm-rules-scraper/internal/aws_s3"
	"github.com/IliaW/propfirm-rules-scraper/internal/model"
	"github.com/IliaW/propfirm-rules-scraper/internal/persistence"
)

type job struct {
	seq    int
	target model.Target
}

type result struct {
	seq   int
	res   Result
	state model.RunState
}

type ScrapeWorker struct {
	InputChan  <-chan job
	OutputChan chan<- result
	PanicChan  chan struct{}
	Pipeline   *Pipeline
	Log        *slog.Logger
	Db         persistence.RecordStorage
	S3         aws_s3.BucketClient
	Wg         *sync.WaitGroup
}

// Run processes targets from the input channel until it is closed. A panicking target is
// reported as FAILED and the worker asks to be replaced through PanicChan.
func (w *ScrapeWorker) Run(ctx context.Context) {
	var current *job
	defer func() {
		if r := recover(); r != nil {
			w.Log.Error("PANIC!", slog.Any("err", r))
			if current != nil {
				res, state := failedResult(current.target, fmt.Sprintf("panic: %v", r))
				w.OutputChan <- result{seq: current.seq, res: res, state: state}
			}
			w.Wg.Add(1) // reserved for the replacement
			w.PanicChan <- struct{}{}
		}
		w.Wg.Done()
	}()
	w.Log.Debug("starting scrape worker.")

	for j := range w.InputChan {
		current = &j
		res, state := w.Pipeline.Process(ctx, j.target, model.NewRunState())
		w.saveAttempts(ctx, res.Outcome)
		w.OutputChan <- result{seq: j.seq, res: res, state: state}
		current = nil
	}
}

// saveAttempts keeps the acquisition history and a snapshot of the winning attempt.
func (w *ScrapeWorker) saveAttempts(ctx context.Context, out acquire.Outcome) {
	for i := range out.Attempts {
		a := &out.Attempts[i]
		if w.Db != nil {
			w.Db.SaveAttempt(*a)
		}
		if w.S3 != nil && a.Success && a.Method == out.Method && a.Source != "memcached" {
			w.S3.WriteAttempt(context.WithoutCancel(ctx), a)
		}
	}
}
