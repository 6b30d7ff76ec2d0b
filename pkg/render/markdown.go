package render

import (
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// BlockKind identifies a document primitive.
type BlockKind string

const (
	KindTitle      BlockKind = "title"
	KindSubtitle   BlockKind = "subtitle"
	KindMetadata   BlockKind = "metadata"
	KindHeading    BlockKind = "heading"
	KindParagraph  BlockKind = "paragraph"
	KindList       BlockKind = "list"
	KindTable      BlockKind = "table"
	KindCode       BlockKind = "code"
	KindQuote      BlockKind = "quote"
	KindRule       BlockKind = "rule"
	KindDisclaimer BlockKind = "disclaimer"
)

// Block is one laid-out element of a report.
type Block struct {
	Kind    BlockKind  `json:"kind"`
	Level   int        `json:"level,omitempty"`
	Text    string     `json:"text,omitempty"`
	Ordered bool       `json:"ordered,omitempty"`
	Items   []ListItem `json:"items,omitempty"`
	Header  []string   `json:"header,omitempty"`
	Rows    [][]string `json:"rows,omitempty"`
}

type ListItem struct {
	Text  string `json:"text"`
	Depth int    `json:"depth"`
	Mark  string `json:"mark"`
}

var mdParser = goldmark.New(goldmark.WithExtensions(extension.Table))

// ParseBlocks converts markdown into document blocks. Inline markup is
// flattened to plain text.
func ParseBlocks(md string) []Block {
	src := []byte(md)
	doc := mdParser.Parser().Parse(text.NewReader(src))

	var blocks []Block
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		blocks = appendBlock(blocks, n, src)
	}
	return blocks
}

func appendBlock(blocks []Block, n ast.Node, src []byte) []Block {
	switch node := n.(type) {
	case *ast.Heading:
		return append(blocks, Block{Kind: KindHeading, Level: node.Level, Text: inlineText(node, src)})
	case *ast.Paragraph, *ast.TextBlock:
		if t := inlineText(node, src); t != "" {
			return append(blocks, Block{Kind: KindParagraph, Text: t})
		}
	case *ast.List:
		b := Block{Kind: KindList, Ordered: node.IsOrdered()}
		b.Items = listItems(node, src, 0, nil)
		return append(blocks, b)
	case *east.Table:
		return append(blocks, tableBlock(node, src))
	case *ast.FencedCodeBlock:
		return append(blocks, Block{Kind: KindCode, Text: rawLines(node, src)})
	case *ast.CodeBlock:
		return append(blocks, Block{Kind: KindCode, Text: rawLines(node, src)})
	case *ast.Blockquote:
		var parts []string
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			if t := inlineText(c, src); t != "" {
				parts = append(parts, t)
			}
		}
		return append(blocks, Block{Kind: KindQuote, Text: strings.Join(parts, "\n")})
	case *ast.ThematicBreak:
		return append(blocks, Block{Kind: KindRule})
	case *ast.HTMLBlock:
		if t := strings.TrimSpace(rawLines(node, src)); t != "" {
			return append(blocks, Block{Kind: KindParagraph, Text: t})
		}
	}
	return blocks
}

func listItems(list *ast.List, src []byte, depth int, items []ListItem) []ListItem {
	num := list.Start
	for li := list.FirstChild(); li != nil; li = li.NextSibling() {
		mark := "-"
		if list.IsOrdered() {
			mark = strconv.Itoa(num) + "."
			num++
		}
		var parts []string
		var nested []*ast.List
		for c := li.FirstChild(); c != nil; c = c.NextSibling() {
			if sub, ok := c.(*ast.List); ok {
				nested = append(nested, sub)
				continue
			}
			if t := inlineText(c, src); t != "" {
				parts = append(parts, t)
			}
		}
		items = append(items, ListItem{Text: strings.Join(parts, " "), Depth: depth, Mark: mark})
		for _, sub := range nested {
			items = listItems(sub, src, depth+1, items)
		}
	}
	return items
}

func tableBlock(t *east.Table, src []byte) Block {
	b := Block{Kind: KindTable}
	for r := t.FirstChild(); r != nil; r = r.NextSibling() {
		var cells []string
		for c := r.FirstChild(); c != nil; c = c.NextSibling() {
			cells = append(cells, inlineText(c, src))
		}
		if _, ok := r.(*east.TableHeader); ok {
			b.Header = cells
			continue
		}
		b.Rows = append(b.Rows, cells)
	}
	return b
}

func rawLines(n ast.Node, src []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(src))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// inlineText collects the text content under n.
func inlineText(n ast.Node, src []byte) string {
	var sb strings.Builder
	ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(t.Value)
		case *ast.AutoLink:
			sb.Write(t.URL(src))
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
