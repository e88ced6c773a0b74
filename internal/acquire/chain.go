// Package acquire obtains page content for a target by escalating through progressively more
// expensive methods.
package acquire

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/IliaW/propfirm-rules-scraper/internal/extract"
	"github.com/IliaW/propfirm-rules-scraper/internal/model"
	"github.com/rotisserie/eris"
)

// Acquirer is one acquisition method. Acquire always returns an attempt; failures are
// recorded on it rather than returned.
type Acquirer interface {
	Kind() model.Method
	Acquire(ctx context.Context, t model.Target) *model.AcquisitionAttempt
}

// Extractor is the part of the extraction engine the chain needs for its viability check.
type Extractor interface {
	Extract(t model.Target, a *model.AcquisitionAttempt) extract.Extraction
}

// ContentCache stores the content of attempts that satisfied the chain.
type ContentCache interface {
	Get(url string, m model.Method) (*model.AcquisitionAttempt, bool)
	Put(a *model.AcquisitionAttempt)
}

// State is the position of a target in the escalation chain.
type State int

const (
	NotStarted State = iota
	HTTPTried
	BrowserTried
	ChatbotTried
	Done
)

func (s State) String() string {
	return [...]string{"not_started", "http_tried", "browser_tried", "chatbot_tried", "done"}[s]
}

// step returns the method tried from state s and the state reached afterwards.
func step(s State) (model.Method, State) {
	switch s {
	case NotStarted:
		return model.HTTP, HTTPTried
	case HTTPTried:
		return model.Browser, BrowserTried
	case BrowserTried:
		return model.Chatbot, ChatbotTried
	default:
		return model.Manual, Done
	}
}

// Outcome is everything the chain learned about one target.
type Outcome struct {
	Attempts    []model.AcquisitionAttempt
	Extractions []extract.Extraction // one per successful attempt, in attempt order
	Final       State
	// Method is the method that produced viable content, or Manual when none did.
	Method      model.Method
	AuthWall    bool
	CompletedAt time.Time
	// Fatal is set when the run cannot continue, e.g. the browser engine is gone.
	Fatal error
}

// AllFailed reports whether every attempt failed without content.
func (o Outcome) AllFailed() bool {
	for _, a := range o.Attempts {
		if a.Success {
			return false
		}
	}
	return true
}

type Chain struct {
	methods   map[model.Method]Acquirer
	timeouts  map[model.Method]time.Duration
	extractor Extractor
	threshold int
	cache     ContentCache
	log       *slog.Logger
}

type ChainOption func(*Chain)

// WithTimeout bounds every attempt of method m.
func WithTimeout(m model.Method, d time.Duration) ChainOption {
	return func(c *Chain) { c.timeouts[m] = d }
}

// WithCache serves HTTP and browser content from cache when available.
func WithCache(cache ContentCache) ChainOption {
	return func(c *Chain) { c.cache = cache }
}

// NewChain builds a chain over the given methods. A method that is not passed is skipped.
// threshold is the number of minimum-viable fields an attempt must yield to stop escalation.
func NewChain(extractor Extractor, threshold int, log *slog.Logger, methods []Acquirer, opts ...ChainOption) *Chain {
	c := &Chain{
		methods:   make(map[model.Method]Acquirer, len(methods)),
		timeouts:  make(map[model.Method]time.Duration),
		extractor: extractor,
		threshold: max(threshold, 1),
		log:       log,
	}
	for _, m := range methods {
		c.methods[m.Kind()] = m
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run escalates through the methods until one yields viable content, an auth wall is hit,
// or the methods are exhausted. It returns the updated run state.
func (c *Chain) Run(ctx context.Context, t model.Target, rs model.RunState) (Outcome, model.RunState) {
	out := Outcome{Method: model.Manual}
	log := c.log.With(slog.String("url", t.URL))

	state := NotStarted
	for state != Done {
		method, next := step(state)
		state = next
		acq, ok := c.methods[method]
		if !ok {
			continue
		}
		if ctx.Err() != nil {
			log.Warn("acquisition cancelled.", slog.String("state", state.String()))
			break
		}

		log.Debug("attempt started.", slog.String("method", method.String()))
		attempt := c.attempt(ctx, acq, t)
		out.Attempts = append(out.Attempts, *attempt)

		if errors.Is(attempt.Err, ErrEngineUnavailable) {
			out.Fatal = attempt.Err
			rs = rs.WithAttempt(*attempt, false)
			log.Error("browser engine unavailable.", slog.String("err", attempt.ErrDetail))
			break
		}
		if attempt.AuthWall {
			out.AuthWall = true
			rs = rs.WithAttempt(*attempt, false)
			log.Warn("authentication wall detected, no further methods.", slog.String("method", method.String()))
			break
		}

		viable := false
		if attempt.Success {
			x := c.extractor.Extract(t, attempt)
			out.Extractions = append(out.Extractions, x)
			viable = x.Viable(c.threshold)
			log.Debug("attempt extracted.", slog.String("method", method.String()),
				slog.Int("candidates", len(x.Candidates)), slog.Int("viable_fields", x.ViableFields()))
		}
		rs = rs.WithAttempt(*attempt, !viable)

		if viable {
			out.Method = method
			log.Info("attempt succeeded.", slog.String("method", method.String()),
				slog.Int64("time_to_scrape", attempt.TimeToScrape))
			if c.cache != nil && attempt.Source != cacheSource {
				c.cache.Put(attempt)
			}
			break
		}
		if attempt.Success {
			log.Info("attempt escalated, not enough data.", slog.String("method", method.String()))
		} else {
			log.Info("attempt failed, escalating.", slog.String("method", method.String()),
				slog.String("err", attempt.ErrDetail))
		}
	}

	out.Final = state
	if out.Method != model.Manual || out.AuthWall || out.Fatal != nil {
		out.Final = Done
	}
	out.CompletedAt = time.Now()
	if len(out.Attempts) > 0 {
		out.CompletedAt = out.Attempts[len(out.Attempts)-1].CompletedAt
	}

	return out, rs
}

const cacheSource = "memcached"

func (c *Chain) attempt(ctx context.Context, acq Acquirer, t model.Target) *model.AcquisitionAttempt {
	method := acq.Kind()
	if c.cache != nil && (method == model.HTTP || method == model.Browser) {
		if cached, ok := c.cache.Get(t.URL, method); ok {
			cached.Source = cacheSource
			return cached
		}
	}

	if d, ok := c.timeouts[method]; ok && d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	start := time.Now()
	a := acq.Acquire(ctx, t)
	if a == nil {
		a = &model.AcquisitionAttempt{Method: method, URL: t.URL}
		a.Fail(eris.Errorf("%s method returned no attempt", method))
	}
	if a.CompletedAt.IsZero() {
		a.CompletedAt = time.Now()
	}
	if a.TimeToScrape == 0 {
		a.TimeToScrape = time.Since(start).Milliseconds()
	}
	if ctx.Err() != nil && !a.Success && a.Err == nil {
		a.Fail(&model.FetchError{Method: method, URL: t.URL, Err: ctx.Err()})
	}
	return a
}
