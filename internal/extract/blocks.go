package extract

import (
	"sort"
	"strings"
	"time"

	"github.com/IliaW/propfirm-rules-scraper/internal/model"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// splitHTML detects repeated pricing tiers in a document. It returns the text of every tier
// and the text of the rest of the page.
func (e *Engine) splitHTML(doc string, rules ruleSet, at time.Time) ([]string, string) {
	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return nil, tidy(doc)
	}
	d.Find("script, style, noscript, template, svg, iframe").Remove()

	members := e.structuralBlocks(d, rules, at)
	blocks := make([]string, 0, len(members))
	for _, m := range members {
		blocks = append(blocks, VisibleText(m))
	}
	for _, m := range members {
		if m.Parent != nil {
			m.Parent.RemoveChild(m)
		}
	}

	var rest strings.Builder
	for _, n := range d.Nodes {
		render(&rest, n)
	}
	return blocks, tidy(rest.String())
}

// structuralBlocks looks for sibling elements that share a tag and class signature and
// each name exactly one account size. The group with the most rule vocabulary wins, then
// the larger group.
func (e *Engine) structuralBlocks(d *goquery.Document, rules ruleSet, at time.Time) []*html.Node {
	var (
		best      []*html.Node
		bestScore groupScore
	)
	d.Find("*").Each(func(_ int, parent *goquery.Selection) {
		groups := make(map[string][]*html.Node)
		var order []string
		parent.Children().Each(func(_ int, c *goquery.Selection) {
			sig := signature(c)
			if _, ok := groups[sig]; !ok {
				order = append(order, sig)
			}
			groups[sig] = append(groups[sig], c.Get(0))
		})
		for _, sig := range order {
			members := groups[sig]
			if len(members) < 2 {
				continue
			}
			score, ok := e.scoreGroup(members, rules, at)
			if ok && score.better(bestScore) {
				best, bestScore = members, score
			}
		}
	})
	return best
}

type groupScore struct {
	signal  int
	members int
}

func (s groupScore) better(o groupScore) bool {
	if s.signal != o.signal {
		return s.signal > o.signal
	}
	return s.members > o.members
}

func (e *Engine) scoreGroup(members []*html.Node, rules ruleSet, at time.Time) (groupScore, bool) {
	distinct := make(map[string]bool)
	score := groupScore{members: len(members)}
	for _, m := range members {
		text := VisibleText(m)
		sizes := e.sizesIn(text, rules, at)
		if len(sizes) != 1 {
			return groupScore{}, false
		}
		distinct[sizes[0]] = true
		score.signal += rules.signal(text)
	}
	if len(distinct) < 2 {
		return groupScore{}, false
	}
	return score, true
}

func signature(s *goquery.Selection) string {
	class, _ := s.Attr("class")
	classes := strings.Fields(class)
	sort.Strings(classes)
	return goquery.NodeName(s) + "." + strings.Join(classes, ".")
}

// splitText is the fallback for pages without structural tiers: a line naming a new account
// size starts a new block. Text before the first such line stays at page level.
func (e *Engine) splitText(text string, rules ruleSet, at time.Time) ([]string, string) {
	lines := strings.Split(text, "\n")
	var (
		starts   []int
		current  string
		distinct = make(map[string]bool)
	)
	for i, l := range lines {
		sizes := e.sizesIn(l, rules, at)
		if len(sizes) != 1 || sizes[0] == current {
			continue
		}
		starts = append(starts, i)
		current = sizes[0]
		distinct[current] = true
	}
	if len(distinct) < 2 {
		return nil, text
	}

	blocks := make([]string, 0, len(starts))
	for k, s := range starts {
		end := len(lines)
		if k+1 < len(starts) {
			end = starts[k+1]
		}
		blocks = append(blocks, strings.Join(lines[s:end], "\n"))
	}
	return blocks, strings.Join(lines[:starts[0]], "\n")
}

// sizesIn returns the distinct account sizes in text as normalized USD amounts.
func (e *Engine) sizesIn(text string, rules ruleSet, at time.Time) []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range rules[model.AccountSize] {
		for _, h := range r.find(text, e.norm, at) {
			v, err := e.norm.Money(h.raw, at)
			if err != nil {
				continue
			}
			key := v.Amount.StringFixed(2)
			if !seen[key] {
				seen[key] = true
				out = append(out, key)
			}
		}
	}
	return out
}
