package extract

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/IliaW/propfirm-rules-scraper/internal/model"
	"github.com/IliaW/propfirm-rules-scraper/internal/normalize"
	"github.com/rotisserie/eris"
)

const (
	defaultWindow = 40
	rejectWindow  = 24
	contextRadius = 40
)

type rule struct {
	id       string
	field    model.Field
	priority int
	keywords *regexp.Regexp
	value    *regexp.Regexp // nil when the keyword itself is the value
	window   int
	before   bool
	reject   []string
	minUSD   float64
	maxUSD   float64
	minNum   float64
	maxNum   float64
	emit     string
}

type hit struct {
	raw     string
	context string
	offset  int
}

func compile(f model.Field, d ruleDef, priority int) (rule, error) {
	if len(d.keywords) == 0 {
		return rule{}, eris.Errorf("rule %s/%s has no keywords", f, d.id)
	}
	kw, err := regexp.Compile(`(?i)(?:^|[^\pL\pN])(` + strings.Join(d.keywords, "|") + `)(?:[^\pL\pN]|$)`)
	if err != nil {
		return rule{}, eris.Wrapf(err, "rule %s/%s keywords", f, d.id)
	}
	vp, err := valuePattern(f, d)
	if err != nil {
		return rule{}, err
	}
	var vr *regexp.Regexp
	if vp != "" {
		if vr, err = regexp.Compile("(?i)" + vp); err != nil {
			return rule{}, eris.Wrapf(err, "rule %s/%s value pattern", f, d.id)
		}
	}
	window := d.window
	if window <= 0 {
		window = defaultWindow
	}

	return rule{
		id:       string(f) + "." + d.id,
		field:    f,
		priority: priority,
		keywords: kw,
		value:    vr,
		window:   window,
		before:   d.before,
		reject:   d.reject,
		minUSD:   d.minUSD,
		maxUSD:   d.maxUSD,
		minNum:   d.minNum,
		maxNum:   d.maxNum,
		emit:     d.emit,
	}, nil
}

// find returns one hit per keyword occurrence: the nearest value in the window that
// normalizes and passes the bounds of the rule.
func (r rule) find(text string, n *normalize.Normalizer, at time.Time) []hit {
	var hits []hit
	for _, loc := range r.keywords.FindAllStringSubmatchIndex(text, -1) {
		start, end := loc[2], loc[3]
		if r.rejected(text, start) {
			continue
		}
		if r.value == nil {
			raw := text[start:end]
			if r.accept(raw, n, at) {
				hits = append(hits, hit{raw: raw, context: snippet(text, start, end), offset: start})
			}
			continue
		}

		var from, to int
		if r.before {
			from, to = beforeWindow(text, start, r.window)
		} else {
			from, to = afterWindow(text, end, r.window)
		}
		matches := r.value.FindAllStringIndex(text[from:to], -1)
		if r.before {
			for i, j := 0, len(matches)-1; i < j; i, j = i+1, j-1 {
				matches[i], matches[j] = matches[j], matches[i]
			}
		}
		for _, m := range matches {
			vs, ve := from+m[0], from+m[1]
			raw := strings.TrimSpace(text[vs:ve])
			if !r.accept(raw, n, at) {
				continue
			}
			if r.emit != "" {
				raw = r.emit
			}
			hits = append(hits, hit{raw: raw, context: snippet(text, min(start, vs), max(end, ve)), offset: vs})
			break
		}
	}
	return hits
}

func (r rule) rejected(text string, start int) bool {
	if len(r.reject) == 0 {
		return false
	}
	prefix := strings.ToLower(text[max(0, start-rejectWindow):start])
	if i := strings.LastIndexAny(prefix, "\n|"); i >= 0 {
		prefix = prefix[i+1:]
	}
	for _, w := range r.reject {
		if strings.Contains(prefix, w) {
			return true
		}
	}
	return false
}

func (r rule) accept(raw string, n *normalize.Normalizer, at time.Time) bool {
	check := raw
	if r.emit != "" {
		check = r.emit
	}
	v, ok, err := n.Normalize(r.field, check, at)
	if err != nil {
		// A number in a currency without a rate is still a candidate; the assembler
		// decides what to do with it.
		return strings.IndexFunc(raw, unicode.IsDigit) >= 0
	}
	if !ok {
		return false
	}
	if r.emit != "" {
		return true
	}

	f, _ := v.Amount.Float64()
	switch v.Kind {
	case model.KindMoney:
		return f > 0 && (r.minUSD == 0 || f >= r.minUSD) && (r.maxUSD == 0 || f <= r.maxUSD)
	case model.KindPercent:
		if f <= 0 || f > 100 {
			return false
		}
		return (r.minNum == 0 || f >= r.minNum) && (r.maxNum == 0 || f <= r.maxNum)
	case model.KindInteger:
		return f >= 0 && (r.minNum == 0 || f >= r.minNum) && (r.maxNum == 0 || f <= r.maxNum)
	}
	return true
}

// afterWindow is the text following a keyword up to the end of the line or the next cell.
// A label followed directly by a cell separator reads its value from the next cell.
func afterWindow(text string, end, window int) (int, int) {
	from := end
	rest := text[from:]
	trimmed := strings.TrimLeft(rest, " \t:=-–")
	if strings.HasPrefix(trimmed, "|") {
		from += len(rest) - len(trimmed) + 1
	}
	to := runeBoundary(text, min(len(text), from+window))
	if i := strings.IndexAny(text[from:to], "\n|"); i >= 0 {
		to = from + i
	}
	return from, to
}

// beforeWindow is the text preceding a keyword back to the start of its line or cell.
func beforeWindow(text string, start, window int) (int, int) {
	from := runeBoundary(text, max(0, start-window))
	if i := strings.LastIndexAny(text[from:start], "\n|"); i >= 0 {
		from += i + 1
	}
	return from, start
}

func snippet(text string, start, end int) string {
	from := runeBoundary(text, max(0, start-contextRadius))
	to := runeBoundary(text, min(len(text), end+contextRadius))
	if i := strings.LastIndexByte(text[from:start], '\n'); i >= 0 {
		from += i + 1
	}
	if i := strings.IndexByte(text[end:to], '\n'); i >= 0 {
		to = end + i
	}
	return strings.TrimSpace(text[from:to])
}

// runeBoundary moves i forward to the start of a rune.
func runeBoundary(text string, i int) int {
	for i < len(text) && !utf8.RuneStart(text[i]) {
		i++
	}
	return i
}
