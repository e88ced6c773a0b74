package acquire

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/IliaW/propfirm-rules-scraper/config"
	"github.com/IliaW/propfirm-rules-scraper/internal/model"
	"github.com/gocolly/colly"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

var (
	ErrBlocked        = eris.New("request blocked by anti-bot protection")
	ErrContentTooThin = eris.New("response has too little content")
)

// Archive returns an archived copy of a page. It is consulted when the live fetch is blocked.
type Archive interface {
	Snapshot(ctx context.Context, url string) (model.Page, error)
}

// HostLimiter spaces out requests to the same host. It is shared by all methods.
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      float64
}

func NewHostLimiter(requestsPerSecond float64) *HostLimiter {
	return &HostLimiter{limiters: make(map[string]*rate.Limiter), rps: requestsPerSecond}
}

// Wait blocks until a request to host is allowed. A non-positive rate disables limiting.
func (l *HostLimiter) Wait(ctx context.Context, host string) error {
	if l == nil || l.rps <= 0 {
		return nil
	}
	l.mu.Lock()
	lim, ok := l.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.rps), 1)
		l.limiters[host] = lim
	}
	l.mu.Unlock()

	return lim.Wait(ctx)
}

// HTTPMethod fetches the raw HTML of the target with a plain GET.
type HTTPMethod struct {
	cfg     *config.AcquisitionConfig
	limiter *HostLimiter
	archive Archive
	log     *slog.Logger
}

// NewHTTPMethod creates the http method. archive may be nil.
func NewHTTPMethod(cfg *config.AcquisitionConfig, limiter *HostLimiter, archive Archive,
	log *slog.Logger) *HTTPMethod {
	return &HTTPMethod{cfg: cfg, limiter: limiter, archive: archive, log: log}
}

func (h *HTTPMethod) Kind() model.Method {
	return model.HTTP
}

func (h *HTTPMethod) Acquire(ctx context.Context, t model.Target) *model.AcquisitionAttempt {
	startTime := time.Now()
	a := &model.AcquisitionAttempt{Method: model.HTTP, Source: "colly", URL: t.URL}
	defer func() {
		a.TimeToScrape = time.Since(startTime).Milliseconds()
		a.CompletedAt = time.Now()
	}()

	if err := h.limiter.Wait(ctx, t.Host); err != nil {
		a.Fail(&model.FetchError{Method: model.HTTP, URL: t.URL, Err: err})
		return a
	}

	resp, err := h.fetch(ctx, t.URL)
	if resp != nil {
		a.StatusCode = resp.status
		a.Status = http.StatusText(resp.status)
	}
	if err != nil {
		a.Fail(err)
		return h.fromArchive(ctx, t, a)
	}

	if DetectAuthWall(t.URL, resp.finalURL, resp.body) {
		a.AuthWall = true
		a.Pages = []model.Page{{URL: resp.finalURL, Title: resp.title, HTML: resp.body}}
		a.Fail(eris.Wrap(model.ErrAuthRequired, resp.finalURL))
		return a
	}
	if blocked, kind := DetectBlock(resp.status, resp.header, []byte(resp.body)); blocked {
		a.Block = string(kind)
		a.Fail(&model.FetchError{Method: model.HTTP, URL: t.URL, StatusCode: resp.status,
			Err: eris.Wrap(ErrBlocked, string(kind))})
		return h.fromArchive(ctx, t, a)
	}
	if resp.status < 200 || resp.status > 299 {
		a.Fail(&model.FetchError{Method: model.HTTP, URL: t.URL, StatusCode: resp.status,
			Err: eris.New(http.StatusText(resp.status))})
		return h.fromArchive(ctx, t, a)
	}

	a.Pages = []model.Page{{URL: resp.finalURL, Title: resp.title, HTML: resp.body}}
	if len(strings.TrimSpace(resp.body)) < h.cfg.MinContentLength {
		a.Fail(&model.FetchError{Method: model.HTTP, URL: t.URL, StatusCode: resp.status, Err: ErrContentTooThin})
		return a
	}
	a.Success = true

	return a
}

// ctxTransport binds every request of a collector to ctx, colly itself has no context support.
type ctxTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t ctxTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}

type response struct {
	status   int
	header   http.Header
	body     string
	title    string
	finalURL string
}

func (h *HTTPMethod) fetch(ctx context.Context, url string) (*response, error) {
	c := colly.NewCollector()
	c.UserAgent = h.cfg.UserAgent
	c.AllowURLRevisit = true
	c.ParseHTTPErrorResponse = true
	timeout := h.cfg.HttpTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if timeout <= 0 {
		return nil, &model.FetchError{Method: model.HTTP, URL: url, Err: context.DeadlineExceeded}
	}
	c.SetRequestTimeout(timeout)
	c.WithTransport(ctxTransport{ctx: ctx, base: http.DefaultTransport})

	resp := &response{finalURL: url}
	var fetchErr error
	c.OnResponse(func(r *colly.Response) {
		resp.status = r.StatusCode
		resp.body = string(r.Body)
		if r.Headers != nil {
			resp.header = *r.Headers
		}
		if r.Request != nil && r.Request.URL != nil {
			resp.finalURL = r.Request.URL.String()
		}
	})
	c.OnHTML("title", func(e *colly.HTMLElement) {
		if resp.title == "" {
			resp.title = strings.TrimSpace(e.Text)
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			resp.status = r.StatusCode
		}
		fetchErr = err
	})

	if err := c.Visit(url); err != nil && fetchErr == nil {
		fetchErr = err
	}
	if ctx.Err() != nil {
		return resp, &model.FetchError{Method: model.HTTP, URL: url, Err: ctx.Err()}
	}
	if fetchErr != nil {
		return resp, &model.FetchError{Method: model.HTTP, URL: url, StatusCode: resp.status, Err: fetchErr}
	}

	return resp, nil
}

// fromArchive replaces a failed live fetch with an archived snapshot when one exists.
func (h *HTTPMethod) fromArchive(ctx context.Context, t model.Target, failed *model.AcquisitionAttempt) *model.AcquisitionAttempt {
	if h.archive == nil || ctx.Err() != nil {
		return failed
	}
	p, err := h.archive.Snapshot(ctx, t.URL)
	if err != nil {
		h.log.Debug("no archived snapshot.", slog.String("url", t.URL), slog.String("err", err.Error()))
		return failed
	}
	if len(strings.TrimSpace(p.HTML)) < h.cfg.MinContentLength || DetectAuthWall(t.URL, p.URL, p.HTML) {
		return failed
	}
	h.log.Info("using archived snapshot.", slog.String("url", t.URL))

	return &model.AcquisitionAttempt{
		Method:     model.HTTP,
		Source:     "commoncrawl",
		URL:        t.URL,
		Pages:      []model.Page{p},
		StatusCode: http.StatusOK,
		Status:     http.StatusText(http.StatusOK),
		Success:    true,
		Block:      failed.Block,
	}
}
