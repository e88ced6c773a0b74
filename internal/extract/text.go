package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var blockAtoms = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true, atom.Br: true,
	atom.Dd: true, atom.Details: true, atom.Dialog: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Fieldset: true, atom.Figcaption: true, atom.Figure: true, atom.Footer: true, atom.Form: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Header: true, atom.Hr: true, atom.Li: true, atom.Main: true, atom.Nav: true, atom.Ol: true,
	atom.P: true, atom.Pre: true, atom.Section: true, atom.Summary: true, atom.Table: true,
	atom.Tbody: true, atom.Thead: true, atom.Tfoot: true, atom.Tr: true, atom.Ul: true,
	atom.Button: true, atom.Label: true,
}

var hiddenAtoms = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Svg: true, atom.Template: true,
	atom.Iframe: true, atom.Head: true, atom.Object: true,
}

var newlineReplacer = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

var spacesRe = regexp.MustCompile(`[ \t\f\v\x{00a0}\x{200b}]+`)

// Cells are joined with " | " so that a label and its value in neighbouring cells stay on
// one line.
const cellSeparator = " | "

// VisibleText renders a parsed node as the text a reader would see, one line per block
// element.
func VisibleText(n *html.Node) string {
	var b strings.Builder
	render(&b, n)
	return tidy(b.String())
}

// HTMLText parses a document and renders its visible text. Invalid markup still yields
// whatever text the parser recovered.
func HTMLText(doc string) string {
	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return tidy(doc)
	}
	var b strings.Builder
	for _, n := range d.Nodes {
		render(&b, n)
	}
	return tidy(b.String())
}

func render(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(newlineReplacer.Replace(n.Data))
		return
	case html.ElementNode:
		if hiddenAtoms[n.DataAtom] || isHidden(n) {
			return
		}
	case html.CommentNode, html.DoctypeNode:
		return
	}

	block := n.Type == html.ElementNode && blockAtoms[n.DataAtom]
	cell := n.Type == html.ElementNode && (n.DataAtom == atom.Td || n.DataAtom == atom.Th)
	if block {
		b.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		render(b, c)
	}
	switch {
	case block:
		b.WriteByte('\n')
	case cell:
		b.WriteString(cellSeparator)
	}
}

func isHidden(n *html.Node) bool {
	for _, a := range n.Attr {
		switch a.Key {
		case "hidden":
			return true
		case "style":
			s := strings.ReplaceAll(strings.ToLower(a.Val), " ", "")
			if strings.Contains(s, "display:none") || strings.Contains(s, "visibility:hidden") {
				return true
			}
		}
	}
	return false
}

// tidy collapses runs of spaces, trims every line and drops empty lines and dangling cell
// separators.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.TrimSpace(spacesRe.ReplaceAllString(l, " "))
		l = strings.TrimSpace(strings.TrimSuffix(l, "|"))
		l = strings.TrimSpace(strings.TrimPrefix(l, "|"))
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
