// Package extract finds trading rule values in page content with a table of keyword
// proximity rules.
package extract

import (
	"sort"
	"strings"
	"time"

	"github.com/IliaW/propfirm-rules-scraper/internal/model"
	"github.com/IliaW/propfirm-rules-scraper/internal/normalize"
)

// ruleSet holds the rules of every field in priority order.
type ruleSet map[model.Field][]rule

// signal counts the fields other than the account size whose vocabulary appears in text.
func (rs ruleSet) signal(text string) int {
	n := 0
	for _, spec := range model.Fields {
		if spec.Field == model.AccountSize {
			continue
		}
		for _, r := range rs[spec.Field] {
			if r.value != nil && r.keywords.MatchString(text) {
				n++
				break
			}
		}
	}
	return n
}

type Engine struct {
	norm     *normalize.Normalizer
	defaults ruleSet
}

// New compiles the default rule table. It panics if the table is invalid.
func New(n *normalize.Normalizer) *Engine {
	defaults := make(ruleSet, len(defaultRules))
	for f, defs := range defaultRules {
		for i, d := range defs {
			r, err := compile(f, d, i)
			if err != nil {
				panic(err)
			}
			defaults[f] = append(defaults[f], r)
		}
	}
	return &Engine{norm: n, defaults: defaults}
}

// ValidateRule reports whether a site rule compiles.
func ValidateRule(s model.RuleSpec) error {
	_, err := compile(s.Field, overrideDef(s, 0), 0)
	return err
}

// rulesFor puts the site rules and account size hints of t in front of the defaults.
// Invalid site rules are skipped, the site loader reports them.
func (e *Engine) rulesFor(t model.Target) ruleSet {
	if len(t.Rules) == 0 && len(t.AccountSizeHints) == 0 {
		return e.defaults
	}
	site := make(map[model.Field][]ruleDef)
	for i, s := range t.Rules {
		site[s.Field] = append(site[s.Field], overrideDef(s, i))
	}
	if len(t.AccountSizeHints) > 0 {
		site[model.AccountSize] = append(site[model.AccountSize], hintDef(t.AccountSizeHints))
	}

	rs := make(ruleSet, len(e.defaults))
	for _, spec := range model.Fields {
		var rules []rule
		for _, d := range site[spec.Field] {
			r, err := compile(spec.Field, d, len(rules))
			if err != nil {
				continue
			}
			rules = append(rules, r)
		}
		for _, r := range e.defaults[spec.Field] {
			r.priority = len(rules)
			rules = append(rules, r)
		}
		rs[spec.Field] = rules
	}
	return rs
}

// Extraction is the result of running the matchers over one attempt.
type Extraction struct {
	Method model.Method
	// Blocks is the number of account size blocks. A page without detected tiers is one
	// implied block.
	Blocks     int
	Detected   bool
	Candidates []model.FieldCandidate
}

// ViableFields counts the minimum-viable fields that have at least one candidate.
func (x Extraction) ViableFields() int {
	n := 0
	for _, f := range model.MinimumViable {
		for _, c := range x.Candidates {
			if c.Field == f {
				n++
				break
			}
		}
	}
	return n
}

func (x Extraction) Viable(threshold int) bool {
	return len(x.Candidates) > 0 && x.ViableFields() >= threshold
}

type segment struct {
	block int
	text  string
}

// Extract runs every field matcher over the content of an attempt. It never fails: content
// without recognizable patterns yields no candidates.
func (e *Engine) Extract(t model.Target, a *model.AcquisitionAttempt) Extraction {
	rules := e.rulesFor(t)
	at := a.CompletedAt

	var blocks, page []string
	for _, p := range a.Pages {
		if strings.TrimSpace(p.HTML) == "" {
			continue
		}
		b, rest := e.splitHTML(p.HTML, rules, at)
		blocks = append(blocks, b...)
		page = append(page, rest)
	}
	if strings.TrimSpace(a.Text) != "" {
		page = append(page, tidy(a.Text))
	}
	if len(blocks) == 0 {
		var rest string
		blocks, rest = e.splitText(strings.Join(page, "\n"), rules, at)
		page = []string{rest}
	}

	x := Extraction{Method: a.Method, Blocks: 1}
	var segments []segment
	if len(blocks) == 0 {
		segments = append(segments, segment{block: 0, text: strings.Join(page, "\n")})
	} else {
		x.Blocks, x.Detected = len(blocks), true
		segments = append(segments, segment{block: model.PageLevel, text: strings.Join(page, "\n")})
		for i, b := range blocks {
			segments = append(segments, segment{block: i, text: b})
		}
	}

	offset := 0
	for _, s := range segments {
		for _, spec := range model.Fields {
			for _, r := range rules[spec.Field] {
				for _, h := range r.find(s.text, e.norm, at) {
					x.Candidates = append(x.Candidates, model.FieldCandidate{
						Field:    spec.Field,
						Raw:      h.raw,
						Context:  h.context,
						Method:   a.Method,
						Block:    s.block,
						Rule:     r.id,
						Priority: r.priority,
						Offset:   offset + h.offset,
					})
				}
			}
		}
		offset += len(s.text) + 1
	}
	x.Candidates = order(x.Candidates)

	return x
}

// ExtractText is Extract for plain text content.
func (e *Engine) ExtractText(t model.Target, m model.Method, text string, at time.Time) Extraction {
	return e.Extract(t, &model.AcquisitionAttempt{Method: m, Text: text, CompletedAt: at})
}

// order sorts candidates by block, field, rule priority and position, and drops a value
// found again by a lower priority rule of the same field.
func order(cs []model.FieldCandidate) []model.FieldCandidate {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.Block != b.Block {
			return a.Block < b.Block
		}
		if fa, fb := a.Field.Order(), b.Field.Order(); fa != fb {
			return fa < fb
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.Offset < b.Offset
	})

	type key struct {
		field  model.Field
		block  int
		offset int
	}
	seen := make(map[key]bool, len(cs))
	out := cs[:0]
	for _, c := range cs {
		k := key{c.Field, c.Block, c.Offset}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out
}
