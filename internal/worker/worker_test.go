package worker

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/IliaW/propfirm-rules-scraper/config"
	"github.com/IliaW/propfirm-rules-scraper/internal/acquire"
	"github.com/IliaW/propfirm-rules-scraper/internal/assemble"
	"github.com/IliaW/propfirm-rules-scraper/internal/currency"
	"github.com/IliaW/propfirm-rules-scraper/internal/extract"
	"github.com/IliaW/propfirm-rules-scraper/internal/model"
	"github.com/IliaW/propfirm-rules-scraper/internal/normalize"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

var (
	log    = slog.New(slog.NewTextHandler(nopWriter{}, nil))
	norm   = normalize.New(currency.NewStaticRates(currency.DefaultRates()))
	engine = extract.New(norm)
)

const viableText = "Account Size: $50,000 | Profit Target: 8% | Max Drawdown: 5% Trailing"

type mockChain struct {
	mock.Mock
}

func (m *mockChain) Run(ctx context.Context, t model.Target, rs model.RunState) (acquire.Outcome, model.RunState) {
	args := m.Called(ctx, t)
	return args.Get(0).(acquire.Outcome), rs
}

// scriptedChain answers every target from its URL without touching the network.
type scriptedChain struct {
	delay func(t model.Target) time.Duration
	panic string
	fatal string
}

func (s scriptedChain) Run(ctx context.Context, t model.Target, rs model.RunState) (acquire.Outcome, model.RunState) {
	if s.delay != nil {
		time.Sleep(s.delay(t))
	}
	if t.URL == s.panic {
		panic("broken parser")
	}
	a := model.AcquisitionAttempt{Method: model.HTTP, URL: t.URL, Success: true, Text: viableText,
		CompletedAt: time.Now()}
	out := acquire.Outcome{Attempts: []model.AcquisitionAttempt{a}, Method: model.HTTP, CompletedAt: a.CompletedAt,
		Extractions: []extract.Extraction{engine.Extract(t, &a)}}
	if t.URL == s.fatal {
		out.Fatal = eris.Wrap(acquire.ErrEngineUnavailable, "chrome exited")
	}
	return out, rs.WithAttempt(a, false)
}

func newPipeline(chain Acquisition) *Pipeline {
	return NewPipeline(chain, assemble.New(norm, 1, log), log)
}

func targets(n int) []model.Target {
	out := make([]model.Target, n)
	for i := range out {
		out[i] = model.Target{Index: i, URL: "https://firm" + string(rune('a'+i)) + ".com", FirmName: "Firm"}
	}
	return out
}

func TestPipeline_StubNeverInvokesChain(t *testing.T) {
	chain := &mockChain{}
	stub := model.Target{URL: "https://legacy.com", FirmName: "Legacy", Stub: true}

	res, rs := newPipeline(chain).Process(context.Background(), stub, model.NewRunState())

	require.Len(t, res.Records, 1)
	assert.Equal(t, model.StatusNotImplemented, res.Records[0].Status)
	assert.Equal(t, 1, rs.Targets)
	assert.Equal(t, 1, rs.ByStatus[model.StatusNotImplemented])
	assert.Equal(t, 0, rs.Attempts)
	chain.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestPipeline_LoginRequired(t *testing.T) {
	chain := &mockChain{}
	firm := model.Target{URL: "https://firm.com", FirmName: "Firm"}
	wall := model.AcquisitionAttempt{Method: model.HTTP, URL: firm.URL, AuthWall: true, StatusCode: 200}
	wall.Fail(model.ErrAuthRequired)
	chain.On("Run", mock.Anything, firm).Return(acquire.Outcome{
		Attempts: []model.AcquisitionAttempt{wall}, AuthWall: true, Method: model.Manual, CompletedAt: time.Now(),
	})

	res, _ := newPipeline(chain).Process(context.Background(), firm, model.NewRunState())

	require.Len(t, res.Records, 1)
	assert.Equal(t, model.StatusLoginRequired, res.Records[0].Status)
}

func TestSequencer(t *testing.T) {
	s := newSequencer()
	assert.Empty(t, s.add(result{seq: 2}))
	assert.Empty(t, s.add(result{seq: 1}))

	ready := s.add(result{seq: 0})
	require.Len(t, ready, 3)
	for i, r := range ready {
		assert.Equal(t, i, r.seq)
	}

	assert.Empty(t, s.add(result{seq: 5}))
	rest := s.drain()
	require.Len(t, rest, 1)
	assert.Equal(t, 5, rest[0].seq)
}

func newRunner(chain Acquisition, workers int) *Runner {
	return &Runner{
		Pipeline: newPipeline(chain),
		Cfg:      &config.WorkerConfig{MaxWorkers: workers, RunTimeout: time.Minute},
		Log:      log,
	}
}

func TestRunner_KeepsInputOrder(t *testing.T) {
	in := targets(6)
	chain := scriptedChain{delay: func(t model.Target) time.Duration {
		return time.Duration(6-t.Index) * 5 * time.Millisecond
	}}
	recordChan := make(chan model.Record, 10)
	runner := newRunner(chain, 3)
	runner.RecordChan = recordChan

	records, summary := runner.Run(context.Background(), in)
	close(recordChan)

	require.Len(t, records, 6)
	for i, r := range records {
		assert.Equal(t, i, r.TargetIndex)
		assert.Equal(t, model.StatusOK, r.Status)
	}
	var published []int
	for r := range recordChan {
		published = append(published, r.TargetIndex)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, published)
	assert.Equal(t, 6, summary.Targets)
	assert.Equal(t, 6, summary.Attempts)
	assert.Equal(t, 6, summary.ByMethod[model.HTTP])
	assert.Empty(t, summary.Fatal)
}

func TestRunner_PanicBecomesFailedRecord(t *testing.T) {
	in := targets(4)
	runner := newRunner(scriptedChain{panic: in[1].URL}, 2)

	records, summary := runner.Run(context.Background(), in)

	require.Len(t, records, 4)
	assert.Equal(t, model.StatusFailed, records[1].Status)
	assert.Contains(t, records[1].Note, "broken parser")
	assert.Equal(t, model.StatusOK, records[3].Status)
	assert.Equal(t, 1, summary.ByStatus[model.StatusFailed])
}

func TestRunner_FatalStopsAndFlushes(t *testing.T) {
	in := targets(20)
	chain := scriptedChain{fatal: in[0].URL, delay: func(t model.Target) time.Duration {
		if t.Index == 0 {
			return 0
		}
		return 20 * time.Millisecond
	}}

	records, summary := newRunner(chain, 1).Run(context.Background(), in)

	assert.NotEmpty(t, summary.Fatal)
	require.NotEmpty(t, records)
	assert.Less(t, len(records), len(in))
	assert.Equal(t, 0, records[0].TargetIndex)
}

type recordingStorage struct {
	mu       sync.Mutex
	attempts int
	records  []int
}

func (s *recordingStorage) SaveAttempt(model.AcquisitionAttempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
}

func (s *recordingStorage) SaveRecords(records []model.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.records = append(s.records, r.TargetIndex)
	}
}

func TestRunner_SavesAttemptsAndRecords(t *testing.T) {
	db := &recordingStorage{}
	runner := newRunner(scriptedChain{}, 2)
	runner.Db = db

	runner.Run(context.Background(), targets(3))

	assert.Equal(t, 3, db.attempts)
	assert.Equal(t, []int{0, 1, 2}, db.records)
}
