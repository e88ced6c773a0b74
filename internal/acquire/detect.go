package acquire

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/IliaW/propfirm-rules-scraper/internal/extract"
	"github.com/IliaW/propfirm-rules-scraper/internal/model"
	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// BlockType describes the kind of anti-bot or script-only response detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

// DetectBlock checks a response for signs of anti-bot protection or a page that only
// renders with JavaScript.
func DetectBlock(statusCode int, header http.Header, body []byte) (bool, BlockType) {
	if statusCode == http.StatusForbidden || statusCode == http.StatusServiceUnavailable {
		if header.Get("cf-ray") != "" || header.Get("cf-cache-status") != "" ||
			strings.EqualFold(header.Get("server"), "cloudflare") {
			return true, BlockCloudflare
		}
	}

	lower := strings.ToLower(string(body))

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge-platform") {
		return true, BlockCloudflare
	}

	if strings.Contains(lower, "g-recaptcha") ||
		strings.Contains(lower, "h-captcha") ||
		strings.Contains(lower, "captcha-container") {
		return true, BlockCaptcha
	}

	if len(body) < 5000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return true, BlockJSShell
		}
		if strings.Contains(lower, `meta http-equiv="refresh"`) {
			return true, BlockJSShell
		}
	}
	for _, marker := range []string{"enable javascript", "javascript is required", "you need to enable javascript"} {
		if strings.Contains(lower, marker) && len(body) < 20000 {
			return true, BlockJSShell
		}
	}

	return false, BlockNone
}

var loginPaths = []string{"/login", "/log-in", "/signin", "/sign-in", "/auth/login", "/account/login", "/users/sign_in"}

// Phrases that mean the content is behind a login wherever they appear.
var loginPhrases = []string{
	"you must be logged in", "you need to be logged in", "you must log in", "log in to continue",
	"login to continue", "sign in to continue", "log in to view", "sign in to view", "authentication required",
}

// Phrases that only count on short pages; long pages mention them in terms and FAQs.
var weakLoginPhrases = []string{
	"please log in", "please login", "please sign in", "access denied", "unauthorized", "members only",
	"sign in to your account",
}

const shortPage = 2000

// DetectAuthWall reports whether an attempt landed on a login page instead of content:
// a redirect to a login path, a login prompt in the visible text, or a short page that is
// mostly a login form.
func DetectAuthWall(requestedURL, finalURL, doc string) bool {
	if finalURL != "" && isLoginPath(finalURL) && !isLoginPath(requestedURL) {
		return true
	}

	text := strings.ToLower(extract.HTMLText(doc))
	for _, p := range loginPhrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	if len(text) > shortPage {
		return false
	}
	for _, p := range weakLoginPhrases {
		if strings.Contains(text, p) {
			return true
		}
	}

	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return false
	}
	return d.Find(`form[action*="login"], form[action*="signin"], form[action*="sign-in"], input[type="password"]`).Length() > 0
}

// markAuthWall fails a when p is a login page reached from requestedURL.
func markAuthWall(a *model.AcquisitionAttempt, requestedURL string, p model.Page) bool {
	if !DetectAuthWall(requestedURL, p.URL, p.HTML) {
		return false
	}
	a.AuthWall = true
	a.Fail(eris.Wrap(model.ErrAuthRequired, p.URL))
	return true
}

func isLoginPath(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	p := strings.ToLower(u.Path)
	for _, lp := range loginPaths {
		if strings.HasPrefix(p, lp) || strings.Contains(p, lp+"/") {
			return true
		}
	}
	return false
}
