package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Method is an acquisition strategy. Methods are ordered from cheapest to most expensive.
type Method int

const (
	HTTP Method = iota
	Browser
	Chatbot
	Manual
)

func (m Method) String() string {
	return [...]string{"http", "browser", "chatbot", "manual"}[m]
}

func (m Method) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Method) UnmarshalText(b []byte) error {
	parsed, ok := ParseMethod(string(b))
	if !ok {
		return eris.Errorf("unknown method %q", b)
	}
	*m = parsed
	return nil
}

func ParseMethod(s string) (Method, bool) {
	for _, m := range []Method{HTTP, Browser, Chatbot, Manual} {
		if strings.EqualFold(s, m.String()) {
			return m, true
		}
	}
	return HTTP, false
}

// Page is one document obtained by an attempt. The browser method may return several
// pages for one target when it follows links to rule pages.
type Page struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	HTML  string `json:"html,omitempty"`
}

// AcquisitionAttempt is the outcome of one method applied to a Target.
type AcquisitionAttempt struct {
	Method       Method    `json:"method"`
	Source       string    `json:"source"` // colly, chromedp, commoncrawl, memcached
	URL          string    `json:"url"`
	Pages        []Page    `json:"pages,omitempty"`
	Text         string    `json:"text,omitempty"` // plain text collected outside of pages (chatbot replies)
	StatusCode   int       `json:"status_code"`
	Status       string    `json:"status"`
	Success      bool      `json:"success"`
	AuthWall     bool      `json:"auth_wall"`
	Block        string    `json:"block,omitempty"`
	ErrDetail    string    `json:"error,omitempty"`
	TimeToScrape int64     `json:"time_to_scrape"` // in milliseconds
	CompletedAt  time.Time `json:"completed_at"`
	Err          error     `json:"-"`
}

// HasContent reports whether the attempt produced anything the extractor can read.
func (a *AcquisitionAttempt) HasContent() bool {
	if strings.TrimSpace(a.Text) != "" {
		return true
	}
	for _, p := range a.Pages {
		if strings.TrimSpace(p.HTML) != "" {
			return true
		}
	}
	return false
}

// Fail marks the attempt as failed and keeps the error detail for logs and persistence.
func (a *AcquisitionAttempt) Fail(err error) {
	a.Success = false
	a.Err = err
	if err != nil {
		detail := err.Error()
		if len(detail) > 1000 {
			detail = detail[:1000]
		}
		a.ErrDetail = detail
	}
}
