package chunking

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// markdownSections walks the top-level blocks, tracking the heading path
func markdownSections(markdown string) []section {
	source := []byte(markdown)
	parser := goldmark.New(goldmark.WithExtensions(extension.Table)).Parser()
	doc := parser.Parse(text.NewReader(source))

	var path []string
	var sections []section

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if heading, ok := n.(*ast.Heading); ok {
			title := strings.TrimSpace(inlineText(heading, source))
			level := heading.Level
			if level-1 < len(path) {
				path = path[:level-1]
			}
			for len(path) < level-1 {
				path = append(path, "")
			}
			path = append(path, title)
			continue
		}

		body := strings.TrimSpace(blockText(n, source))
		if body == "" {
			continue
		}

		headings := compactHeadings(path)
		// Consecutive blocks under one heading form one section
		if len(sections) > 0 && sameHeadings(sections[len(sections)-1].headings, headings) {
			sections[len(sections)-1].text += "\n\n" + body
			continue
		}
		sections = append(sections, section{headings: headings, text: body})
	}
	return sections
}

func compactHeadings(path []string) []string {
	var out []string
	for _, h := range path {
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}

// inlineText concatenates the text segments below n
func inlineText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := node.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

// blockText returns the text of a block. Code blocks keep their raw lines;
// containers contribute the inline text of each child block.
func blockText(n ast.Node, source []byte) string {
	switch n.(type) {
	case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
		var b strings.Builder
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			b.Write(line.Value(source))
		}
		return b.String()
	}

	if n.FirstChild() == nil || n.FirstChild().Type() == ast.TypeInline {
		return inlineText(n, source)
	}

	var parts []string
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		if t := strings.TrimSpace(blockText(child, source)); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// jsonSections collects every "text" string of a JSON export. Arrays keep
// their order; object keys are visited sorted.
func jsonSections(content string) ([]section, error) {
	decoder := json.NewDecoder(strings.NewReader(content))
	decoder.UseNumber()

	var root any
	if err := decoder.Decode(&root); err != nil {
		return nil, fmt.Errorf("failed to parse JSON output: %w", err)
	}

	var sections []section
	var visit func(value any)
	visit = func(value any) {
		switch v := value.(type) {
		case map[string]any:
			if t, ok := v["text"].(string); ok && strings.TrimSpace(t) != "" {
				sections = append(sections, section{text: strings.TrimSpace(t)})
			}
			keys := make([]string, 0, len(v))
			for key := range v {
				if key != "text" {
					keys = append(keys, key)
				}
			}
			sort.Strings(keys)
			for _, key := range keys {
				visit(v[key])
			}
		case []any:
			for _, child := range v {
				visit(child)
			}
		}
	}
	visit(root)
	return sections, nil
}

var locationTag = regexp.MustCompile(`<loc_\d+>`)

// docTagSections reads DocTags markup: section_header elements open a
// heading, every other leaf element is body text. Location tokens are
// dropped before parsing since they are never closed.
func docTagSections(content string) ([]section, error) {
	content = locationTag.ReplaceAllString(content, "")
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse DocTags output: %w", err)
	}

	var heading []string
	var sections []section

	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		if s.Children().Length() > 0 {
			return
		}
		value := strings.TrimSpace(s.Text())
		if value == "" {
			return
		}
		name := goquery.NodeName(s)
		if name == "title" || strings.HasPrefix(name, "section_header") {
			heading = []string{value}
			return
		}
		headings := append([]string(nil), heading...)
		if len(sections) > 0 && sameHeadings(sections[len(sections)-1].headings, headings) {
			sections[len(sections)-1].text += "\n" + value
			return
		}
		sections = append(sections, section{headings: headings, text: value})
	})
	return sections, nil
}
