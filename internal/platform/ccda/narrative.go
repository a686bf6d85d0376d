package ccda

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// narrativeIndex maps narrative element IDs to their plain text so entry
// <reference value="#id"/> pointers can be resolved.
type narrativeIndex struct {
	byID map[string]string
	text string
}

// indexNarrative parses a section's <text> block. The block is XHTML-like
// rather than strict HTML, so it is fed through the HTML fragment parser,
// which tolerates the CDA-specific tags (content, paragraph, list, item).
func indexNarrative(n *Narrative) narrativeIndex {
	idx := narrativeIndex{byID: map[string]string{}}
	if n == nil || strings.TrimSpace(n.Inner) == "" {
		return idx
	}

	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(n.Inner), body)
	if err != nil {
		return idx
	}

	var all strings.Builder
	for _, node := range nodes {
		collectIDs(node, idx.byID)
		writeText(&all, node)
	}
	idx.text = collapse(all.String())
	return idx
}

func collectIDs(n *html.Node, into map[string]string) {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			// The HTML parser lower-cases attribute names; CDA uses "ID".
			if a.Key == "id" && a.Val != "" {
				var sb strings.Builder
				writeText(&sb, n)
				into[a.Val] = collapse(sb.String())
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectIDs(c, into)
	}
}

func writeText(sb *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Br, atom.Td, atom.Th, atom.Tr, atom.P:
			sb.WriteByte(' ')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(sb, c)
	}
	if n.Type == html.ElementNode {
		switch n.Data {
		case "paragraph", "item", "td", "th", "tr", "p", "li":
			sb.WriteByte(' ')
		}
	}
}

// resolve returns the text an ED carries, following a narrative reference
// when there is no inline content.
func (idx narrativeIndex) resolve(ed *ED) string {
	if ed == nil {
		return ""
	}
	if text := collapse(ed.Content); text != "" {
		return text
	}
	if ed.Reference != nil {
		return idx.lookup(ed.Reference.Value)
	}
	return ""
}

func (idx narrativeIndex) lookup(ref string) string {
	ref = strings.TrimPrefix(strings.TrimSpace(ref), "#")
	if ref == "" {
		return ""
	}
	return idx.byID[ref]
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
