package acquire

import (
	"context"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/IliaW/propfirm-rules-scraper/config"
	"github.com/IliaW/propfirm-rules-scraper/internal/model"
	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
)

var ErrEngineUnavailable = eris.New("browser engine unavailable")

// BrowserEngine owns one Chrome process shared by the browser and chatbot methods. Every
// attempt runs in its own tab. The process is started on first use.
type BrowserEngine struct {
	cfg       *config.BrowserConfig
	userAgent string
	log       *slog.Logger

	mu            sync.Mutex
	started       bool
	startErr      error
	allocCtx      context.Context
	cancelAlloc   context.CancelFunc
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
}

func NewBrowserEngine(cfg *config.BrowserConfig, userAgent string, log *slog.Logger) *BrowserEngine {
	return &BrowserEngine{cfg: cfg, userAgent: userAgent, log: log}
}

func (e *BrowserEngine) start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		if e.startErr == nil && e.browserCtx.Err() != nil {
			return eris.Wrap(ErrEngineUnavailable, "browser process exited")
		}
		return e.startErr
	}
	e.started = true

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", e.cfg.Headless),
		chromedp.UserAgent(e.userAgent),
	)
	e.allocCtx, e.cancelAlloc = chromedp.NewExecAllocator(context.Background(), opts...)
	e.browserCtx, e.cancelBrowser = chromedp.NewContext(e.allocCtx)
	e.log.Info("starting browser engine.")
	if err := chromedp.Run(e.browserCtx); err != nil {
		e.cancelBrowser()
		e.cancelAlloc()
		e.startErr = eris.Wrap(ErrEngineUnavailable, err.Error())
		return e.startErr
	}
	e.log.Info("browser engine started.")

	return nil
}

// Tab opens a new tab. The tab is closed when ctx is done or the returned cancel is called.
func (e *BrowserEngine) Tab(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := e.start(); err != nil {
		return nil, nil, err
	}
	tabCtx, cancelTab := chromedp.NewContext(e.browserCtx)
	stop := context.AfterFunc(ctx, cancelTab)

	return tabCtx, func() {
		stop()
		cancelTab()
	}, nil
}

func (e *BrowserEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started && e.startErr == nil {
		e.log.Info("closing browser engine.")
		e.cancelBrowser()
		e.cancelAlloc()
	}
}

// BrowserMethod renders the target in a real browser, expands collapsed content and follows
// a few links that look like rule pages.
type BrowserMethod struct {
	engine *BrowserEngine
	cfg    *config.BrowserConfig
	acq    *config.AcquisitionConfig
	log    *slog.Logger
}

func NewBrowserMethod(engine *BrowserEngine, cfg *config.BrowserConfig, acq *config.AcquisitionConfig,
	log *slog.Logger) *BrowserMethod {
	return &BrowserMethod{engine: engine, cfg: cfg, acq: acq, log: log}
}

func (b *BrowserMethod) Kind() model.Method {
	return model.Browser
}

func (b *BrowserMethod) Acquire(ctx context.Context, t model.Target) *model.AcquisitionAttempt {
	startTime := time.Now()
	a := &model.AcquisitionAttempt{Method: model.Browser, Source: "chromedp", URL: t.URL}
	defer func() {
		a.TimeToScrape = time.Since(startTime).Milliseconds()
		a.CompletedAt = time.Now()
	}()

	tabCtx, cancel, err := b.engine.Tab(ctx)
	if err != nil {
		a.Fail(err)
		return a
	}
	defer cancel()

	first, status, err := b.render(tabCtx, t.URL)
	a.StatusCode = status.code
	a.Status = status.text
	if err != nil {
		a.Fail(b.fetchErr(ctx, t.URL, status.code, err))
		return a
	}
	a.Pages = append(a.Pages, first)

	if markAuthWall(a, t.URL, first) {
		return a
	}
	if status.code >= 400 {
		a.Fail(&model.FetchError{Method: model.Browser, URL: t.URL, StatusCode: status.code,
			Err: eris.New(status.text)})
		return a
	}

	for _, link := range ruleLinks(first.URL, first.HTML, b.cfg.ExtraPages) {
		if ctx.Err() != nil {
			break
		}
		p, _, err := b.render(tabCtx, link)
		if err != nil {
			b.log.Debug("failed to render linked page.", slog.String("url", link), slog.String("err", err.Error()))
			continue
		}
		a.Pages = append(a.Pages, p)
	}

	if len(strings.TrimSpace(first.HTML)) < b.acq.MinContentLength {
		a.Fail(&model.FetchError{Method: model.Browser, URL: t.URL, StatusCode: status.code, Err: ErrContentTooThin})
		return a
	}
	a.Success = true

	return a
}

func (b *BrowserMethod) fetchErr(ctx context.Context, url string, code int, err error) error {
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	if eris.Is(err, ErrEngineUnavailable) {
		return err
	}
	return &model.FetchError{Method: model.Browser, URL: url, StatusCode: code, Err: err}
}

type navStatus struct {
	code int
	text string
}

// render navigates the tab to url, waits for the page to settle and returns the final DOM.
func (b *BrowserMethod) render(ctx context.Context, target string) (model.Page, navStatus, error) {
	p := model.Page{URL: target}
	var status navStatus
	var mu sync.Mutex

	lctx, cancelListen := context.WithCancel(ctx)
	defer cancelListen()
	chromedp.ListenTarget(lctx, func(event interface{}) {
		switch ev := event.(type) {
		case *network.EventResponseReceived:
			if ev.Type != network.ResourceTypeDocument {
				return
			}
			mu.Lock()
			if ev.Response.URL == p.URL {
				status.code = int(ev.Response.Status)
				status.text = ev.Response.StatusText
			}
			mu.Unlock()
		case *network.EventRequestWillBeSent:
			if ev.RedirectResponse != nil && ev.Type == network.ResourceTypeDocument {
				mu.Lock()
				p.URL = ev.Request.URL
				mu.Unlock()
				b.log.Debug("redirected.", slog.String("url", ev.RedirectResponse.URL))
			}
		}
	})

	tasks := chromedp.Tasks{
		network.Enable(),
		enableLifeCycleEvents(),
		navigateAndWaitFor(target, b.cfg.SettleEvent),
	}
	if b.cfg.ExpandContent {
		tasks = append(tasks, expandContent())
	}
	var location string
	tasks = append(tasks,
		chromedp.Title(&p.Title),
		chromedp.Location(&location),
		chromedp.ActionFunc(func(ctx context.Context) error {
			rootNode, err := dom.GetDocument().Do(ctx)
			if err != nil {
				return err
			}
			p.HTML, err = dom.GetOuterHTML().WithNodeID(rootNode.NodeID).Do(ctx)
			return err
		}),
	)
	err := chromedp.Run(ctx, tasks)

	mu.Lock()
	defer mu.Unlock()
	if location != "" {
		p.URL = location
	}
	if status.code == 0 && err == nil {
		status.code = 200
		status.text = "OK"
	}

	return p, status, err
}

func enableLifeCycleEvents() chromedp.ActionFunc {
	return func(ctx context.Context) error {
		err := page.Enable().Do(ctx)
		if err != nil {
			return err
		}
		return page.SetLifecycleEventsEnabled(true).Do(ctx)
	}
}

func navigateAndWaitFor(url string, eventName string) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		_, _, errText, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errText != "" {
			return eris.New(errText)
		}
		return waitFor(ctx, eventName)
	}
}

// settleLimit caps the wait for the lifecycle event. Pages with long polling never reach
// networkIdle, they are read as they are once the limit passes.
const settleLimit = 15 * time.Second

func waitFor(ctx context.Context, eventName string) error {
	ch := make(chan struct{})
	var once sync.Once
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	chromedp.ListenTarget(cctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventLifecycleEvent:
			if e.Name == eventName {
				once.Do(func() { close(ch) })
			}
		}
	})
	select {
	case <-ch:
		return nil
	case <-time.After(settleLimit):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

const expandScript = `(() => {
	let n = 0;
	document.querySelectorAll('details:not([open])').forEach(d => { d.open = true; n++; });
	document.querySelectorAll('[aria-expanded="false"]').forEach(el => {
		try { el.click(); n++; } catch (e) {}
	});
	document.querySelectorAll('.accordion-button.collapsed, .collapse:not(.show)').forEach(el => {
		el.classList.add('show'); el.classList.remove('collapsed'); n++;
	});
	return n;
})()`

// expandContent opens accordions and collapsed FAQ entries so their text is part of the DOM.
func expandContent() chromedp.ActionFunc {
	return func(ctx context.Context) error {
		var expanded int
		if err := chromedp.Evaluate(expandScript, &expanded).Do(ctx); err != nil {
			return err
		}
		if expanded > 0 {
			return chromedp.Sleep(500 * time.Millisecond).Do(ctx)
		}
		return nil
	}
}

var ruleLinkKeywords = map[string]int{
	"trading-rules": 5, "rules": 4, "trading-objectives": 4, "objectives": 3, "drawdown": 3,
	"evaluation": 3, "challenge": 3, "funded": 2, "payout": 2, "pricing": 2, "faq": 2,
	"plans": 2, "program": 1, "help": 1,
}

// ruleLinks returns up to limit same-host links that look like rule pages, best first.
func ruleLinks(base, doc string, limit int) []string {
	if limit <= 0 {
		return nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil
	}
	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return nil
	}

	type scored struct {
		url   string
		score int
	}
	seen := map[string]bool{strings.TrimSuffix(baseURL.String(), "/"): true}
	var links []scored
	d.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		u, err := baseURL.Parse(strings.TrimSpace(href))
		if err != nil || u.Host != baseURL.Host || (u.Scheme != "http" && u.Scheme != "https") {
			return
		}
		u.Fragment = ""
		key := strings.TrimSuffix(u.String(), "/")
		if seen[key] {
			return
		}
		hay := strings.ToLower(u.Path + " " + s.Text())
		score := 0
		for kw, w := range ruleLinkKeywords {
			if strings.Contains(hay, kw) {
				score += w
			}
		}
		if score == 0 {
			return
		}
		seen[key] = true
		links = append(links, scored{url: u.String(), score: score})
	})
	sort.SliceStable(links, func(i, j int) bool { return links[i].score > links[j].score })

	out := make([]string, 0, limit)
	for _, l := range links {
		if len(out) == limit {
			break
		}
		out = append(out, l.url)
	}
	return out
}
