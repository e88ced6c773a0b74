package acquire

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/IliaW/propfirm-rules-scraper/config"
	"github.com/IliaW/propfirm-rules-scraper/internal/model"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/rotisserie/eris"
)

var ErrNoChatWidget = eris.New("no chat widget or help search found")

// Questions asked to a support widget, one per rule family.
var Questions = []string{
	"What account sizes do you offer?",
	"What is the profit target for the evaluation?",
	"What is the maximum drawdown and is it trailing or static?",
	"What is the daily loss limit?",
	"What is the minimum number of trading days?",
	"Is there a consistency rule?",
	"What is the profit split and how often are payouts?",
	"Which trading platforms and brokers do you support?",
}

// Widgets rendered inside cross-origin iframes (Intercom, Tidio) are not reachable from the
// page; only widgets mounted in the page DOM are handled.
const openWidgetScript = `(() => {
	const launchers = [
		'#crisp-chatbox [aria-label]', '.crisp-client a[role="button"]',
		'#hubspot-messages-iframe-container button', '#fc_frame', '.drift-open-chat',
		'[aria-label*="chat" i]', '[class*="chat-launcher" i]', '[id*="chat-button" i]'
	];
	for (const sel of launchers) {
		const el = document.querySelector(sel);
		if (el) { try { el.click(); return true; } catch (e) {} }
	}
	return false;
})()`

const findInputScript = `(() => {
	const inputs = [
		'#crisp-chatbox textarea', '.crisp-client textarea', '[class*="chat" i] textarea',
		'[class*="chat" i] input[type="text"]', '[id*="chat" i] textarea', 'textarea[placeholder*="message" i]'
	];
	for (const sel of inputs) {
		const el = document.querySelector(sel);
		if (el && el.offsetParent !== null) return sel;
	}
	return '';
})()`

const transcriptScript = `(() => {
	const containers = ['#crisp-chatbox', '.crisp-client', '[class*="chat-messages" i]',
		'[class*="conversation" i]', '[class*="chat" i][role="log"]', '[class*="chat" i]'];
	for (const sel of containers) {
		const el = document.querySelector(sel);
		if (el && el.innerText && el.innerText.trim().length > 0) return el.innerText;
	}
	return '';
})()`

const findSearchScript = `(() => {
	const inputs = ['input[type="search"]', 'input[name="q"]', 'input[name="query"]',
		'input[placeholder*="search" i]'];
	for (const sel of inputs) {
		const el = document.querySelector(sel);
		if (el && el.offsetParent !== null) return sel;
	}
	return '';
})()`

// ChatbotMethod asks the site's support widget the rule questions and keeps the replies as
// text. Without a widget it falls back to the help center search.
type ChatbotMethod struct {
	engine  *BrowserEngine
	cfg     *config.ChatbotConfig
	browser *config.BrowserConfig
	log     *slog.Logger
}

func NewChatbotMethod(engine *BrowserEngine, cfg *config.ChatbotConfig, browser *config.BrowserConfig,
	log *slog.Logger) *ChatbotMethod {
	return &ChatbotMethod{engine: engine, cfg: cfg, browser: browser, log: log}
}

func (c *ChatbotMethod) Kind() model.Method {
	return model.Chatbot
}

func (c *ChatbotMethod) Acquire(ctx context.Context, t model.Target) *model.AcquisitionAttempt {
	startTime := time.Now()
	a := &model.AcquisitionAttempt{Method: model.Chatbot, Source: "chromedp", URL: t.URL}
	defer func() {
		a.TimeToScrape = time.Since(startTime).Milliseconds()
		a.CompletedAt = time.Now()
	}()

	tabCtx, cancel, err := c.engine.Tab(ctx)
	if err != nil {
		a.Fail(err)
		return a
	}
	defer cancel()

	var landing model.Page
	err = chromedp.Run(tabCtx,
		enableLifeCycleEvents(),
		navigateAndWaitFor(t.URL, c.browser.SettleEvent),
		chromedp.Location(&landing.URL),
		chromedp.OuterHTML("html", &landing.HTML, chromedp.ByQuery),
	)
	if err != nil {
		a.Fail(c.fetchErr(ctx, t.URL, err))
		return a
	}
	if markAuthWall(a, t.URL, landing) {
		a.Pages = []model.Page{landing}
		return a
	}

	var opened bool
	var input string
	err = chromedp.Run(tabCtx,
		chromedp.Evaluate(openWidgetScript, &opened),
		chromedp.Sleep(c.cfg.ResponseWait),
		chromedp.Evaluate(findInputScript, &input),
	)
	if err != nil {
		a.Fail(c.fetchErr(ctx, t.URL, err))
		return a
	}

	if input == "" {
		c.log.Debug("chat widget not found.", slog.String("url", t.URL), slog.Bool("launcher", opened))
		if c.cfg.SearchFallback {
			return c.search(ctx, tabCtx, t, a)
		}
		a.Fail(&model.FetchError{Method: model.Chatbot, URL: t.URL, Err: ErrNoChatWidget})
		return a
	}

	asked := 0
	for _, q := range Questions {
		if asked == c.cfg.MaxQuestions || ctx.Err() != nil {
			break
		}
		err := chromedp.Run(tabCtx,
			chromedp.SendKeys(input, q+kb.Enter, chromedp.ByQuery),
			chromedp.Sleep(c.cfg.ResponseWait),
		)
		if err != nil {
			c.log.Debug("failed to ask question.", slog.String("question", q), slog.String("err", err.Error()))
			break
		}
		asked++
	}

	var transcript string
	if err := chromedp.Run(tabCtx, chromedp.Evaluate(transcriptScript, &transcript)); err != nil {
		a.Fail(c.fetchErr(ctx, t.URL, err))
		return a
	}
	a.Text = replies(transcript)
	if strings.TrimSpace(a.Text) == "" {
		a.Fail(&model.FetchError{Method: model.Chatbot, URL: t.URL, Err: eris.New("chat widget gave no replies")})
		return a
	}
	a.Success = true

	return a
}

// search types rule keywords into the help center search and keeps the result pages.
func (c *ChatbotMethod) search(ctx, tabCtx context.Context, t model.Target, a *model.AcquisitionAttempt) *model.AcquisitionAttempt {
	var input string
	if err := chromedp.Run(tabCtx, chromedp.Evaluate(findSearchScript, &input)); err != nil || input == "" {
		a.Fail(&model.FetchError{Method: model.Chatbot, URL: t.URL, Err: ErrNoChatWidget})
		return a
	}
	a.Source = "help-search"

	for _, q := range []string{"trading rules", "drawdown", "payout"} {
		if ctx.Err() != nil {
			break
		}
		var p model.Page
		err := chromedp.Run(tabCtx,
			navigateAndWaitFor(t.URL, c.browser.SettleEvent),
			chromedp.SendKeys(input, q+kb.Enter, chromedp.ByQuery),
			chromedp.Sleep(c.cfg.ResponseWait),
			chromedp.Location(&p.URL),
			chromedp.Title(&p.Title),
			chromedp.OuterHTML("html", &p.HTML, chromedp.ByQuery),
		)
		if err != nil {
			c.log.Debug("help search failed.", slog.String("query", q), slog.String("err", err.Error()))
			continue
		}
		a.Pages = append(a.Pages, p)
		if markAuthWall(a, t.URL, p) {
			return a
		}
	}
	if !a.HasContent() {
		a.Fail(&model.FetchError{Method: model.Chatbot, URL: t.URL, Err: ErrNoChatWidget})
		return a
	}
	a.Success = true

	return a
}

func (c *ChatbotMethod) fetchErr(ctx context.Context, url string, err error) error {
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	if eris.Is(err, ErrEngineUnavailable) {
		return err
	}
	return &model.FetchError{Method: model.Chatbot, URL: url, Err: err}
}

// replies drops the echoed questions from a widget transcript.
func replies(transcript string) string {
	asked := make(map[string]bool, len(Questions))
	for _, q := range Questions {
		asked[strings.ToLower(q)] = true
	}
	var b strings.Builder
	for _, line := range strings.Split(transcript, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || asked[strings.ToLower(line)] {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
