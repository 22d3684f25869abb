// Package htmltable structures raw HTML table markup into header and rows.
package htmltable

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/kirillkom/filing-qa/internal/core/domain"
)

// Parsed is the first table found in a markup fragment.
type Parsed struct {
	Caption string
	Rows    [][]string
}

// Parse extracts the caption and every non-empty row of the first <table>.
// Markup without a <table> element is treated as a bare row fragment.
func Parse(markup string) (Parsed, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return Parsed{}, domain.WrapError(domain.ErrInvalidInput, "parse table markup", err)
	}

	scope := find(root, atom.Table)
	if scope == nil {
		scope = root
	}

	var out Parsed
	if caption := find(scope, atom.Caption); caption != nil {
		out.Caption = text(caption)
	}
	walk(scope, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Table && n != scope {
			return false
		}
		if n.Type != html.ElementNode || n.DataAtom != atom.Tr {
			return true
		}
		var cells []string
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
				cells = append(cells, text(c))
			}
		}
		if len(cells) > 0 {
			out.Rows = append(out.Rows, cells)
		}
		return false
	})
	return out, nil
}

// Structure fills Header and Rows from Markup when the table arrived unstructured.
// The first row is the header when more than one row is present.
func Structure(t domain.Table) (domain.Table, error) {
	if len(t.Rows) > 0 || strings.TrimSpace(t.Markup) == "" {
		return t, nil
	}
	parsed, err := Parse(t.Markup)
	if err != nil {
		return t, fmt.Errorf("structure table %s: %w", t.TableID, err)
	}
	if t.Caption == "" {
		t.Caption = parsed.Caption
	}
	switch len(parsed.Rows) {
	case 0:
	case 1:
		t.Rows = parsed.Rows
	default:
		t.Header = parsed.Rows[0]
		t.Rows = parsed.Rows[1:]
	}
	return t, nil
}

func find(n *html.Node, a atom.Atom) *html.Node {
	var found *html.Node
	walk(n, func(c *html.Node) bool {
		if found != nil {
			return false
		}
		if c.Type == html.ElementNode && c.DataAtom == a {
			found = c
			return false
		}
		return true
	})
	return found
}

// walk visits n depth first; returning false skips the node's children.
func walk(n *html.Node, visit func(*html.Node) bool) {
	if !visit(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func text(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteByte(' ')
		}
		return true
	})
	return strings.Join(strings.Fields(b.String()), " ")
}
