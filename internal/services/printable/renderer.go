// Package printable renders markdown and plain text conversion output as a
// PDF copy that can be printed or shared without a markdown viewer.
package printable

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

const (
	fontFamily = "Arial"
	fontSize   = 10.0
	lineHeight = 5.0
	pageWidth  = 190.0
)

// Renderer turns text documents into PDFs
type Renderer struct {
	logger arbor.ILogger
}

// NewRenderer creates a new printable copy renderer
func NewRenderer(logger arbor.ILogger) *Renderer {
	return &Renderer{
		logger: logger,
	}
}

// RenderFile reads a markdown or text file and writes its PDF copy to dst.
// Plain text is rendered line by line without markdown interpretation.
func (r *Renderer) RenderFile(src, dst string, markdown bool) (int, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return 0, fmt.Errorf("failed to read source: %w", err)
	}

	var out []byte
	if markdown {
		out, err = r.Markdown(string(data))
	} else {
		out, err = r.PlainText(string(data))
	}
	if err != nil {
		return 0, err
	}

	if err := os.WriteFile(dst, out, 0644); err != nil {
		return 0, fmt.Errorf("failed to write printable copy: %w", err)
	}
	return len(out), nil
}

// Markdown renders markdown into PDF bytes
func (r *Renderer) Markdown(markdown string) ([]byte, error) {
	pdf := newDocument()

	md := goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough))
	source := []byte(markdown)
	doc := md.Parser().Parse(text.NewReader(source))

	w := &pdfWriter{pdf: pdf, source: source}
	if err := ast.Walk(doc, w.walk); err != nil {
		return nil, fmt.Errorf("failed to render markdown: %w", err)
	}

	return r.output(pdf)
}

// PlainText renders text into PDF bytes
func (r *Renderer) PlainText(content string) ([]byte, error) {
	pdf := newDocument()
	pdf.SetFont("Courier", "", 9)
	for _, line := range strings.Split(content, "\n") {
		pdf.MultiCell(0, 4.5, translate(pdf, strings.TrimRight(line, "\r")), "", "L", false)
	}
	return r.output(pdf)
}

func (r *Renderer) output(pdf *fpdf.Fpdf) ([]byte, error) {
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF output: %w", err)
	}

	r.logger.Debug().
		Int("pages", pdf.PageCount()).
		Int("pdf_size", buf.Len()).
		Msg("Printable copy rendered")
	return buf.Bytes(), nil
}

func newDocument() *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 10)
	pdf.AddPage()
	pdf.SetFont(fontFamily, "", fontSize)
	return pdf
}

// translate maps UTF-8 to the cp1252 encoding of the core fonts
func translate(pdf *fpdf.Fpdf, s string) string {
	return pdf.UnicodeTranslatorFromDescriptor("")(s)
}

type pdfWriter struct {
	pdf       *fpdf.Fpdf
	source    []byte
	bold      bool
	italic    bool
	listLevel int
}

func (w *pdfWriter) updateFont() {
	style := ""
	if w.bold {
		style += "B"
	}
	if w.italic {
		style += "I"
	}
	w.pdf.SetFont(fontFamily, style, fontSize)
}

func (w *pdfWriter) write(s string) {
	w.pdf.Write(lineHeight, translate(w.pdf, s))
}

func (w *pdfWriter) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		if entering {
			w.pdf.Ln(4)
			size := 10.0
			switch node.Level {
			case 1:
				size = 15
			case 2:
				size = 13
			case 3:
				size = 11
			}
			w.pdf.SetFont(fontFamily, "B", size)
		} else {
			w.pdf.Ln(7)
			w.updateFont()
		}

	case *ast.Paragraph:
		if !entering {
			w.pdf.Ln(lineHeight + 2)
		}

	case *ast.Text:
		if entering {
			w.write(string(node.Segment.Value(w.source)))
			if node.SoftLineBreak() {
				w.write(" ")
			}
			if node.HardLineBreak() {
				w.pdf.Ln(lineHeight)
			}
		}

	case *ast.String:
		if entering {
			w.write(string(node.Value))
		}

	case *ast.Emphasis:
		if node.Level == 2 {
			w.bold = entering
		} else {
			w.italic = entering
		}
		w.updateFont()

	case *ast.CodeSpan:
		if entering {
			w.pdf.SetFont("Courier", "", fontSize)
			for c := node.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					w.write(string(t.Segment.Value(w.source)))
				}
			}
			w.updateFont()
		}
		return ast.WalkSkipChildren, nil

	case *ast.FencedCodeBlock:
		if entering {
			w.codeBlock(node.Lines())
		}
		return ast.WalkSkipChildren, nil

	case *ast.CodeBlock:
		if entering {
			w.codeBlock(node.Lines())
		}
		return ast.WalkSkipChildren, nil

	case *ast.List:
		if entering {
			w.listLevel++
		} else {
			w.listLevel--
			if w.listLevel == 0 {
				w.pdf.Ln(2)
			}
		}

	case *ast.ListItem:
		if entering {
			w.pdf.Ln(lineHeight)
			w.pdf.SetX(10 + float64(w.listLevel)*5)
			w.write("- ")
		}

	case *ast.ThematicBreak:
		if entering {
			w.pdf.Ln(2)
			w.pdf.Line(10, w.pdf.GetY(), 200, w.pdf.GetY())
			w.pdf.Ln(2)
		}

	case *extast.Table:
		if entering {
			w.table(node)
		}
		return ast.WalkSkipChildren, nil
	}

	return ast.WalkContinue, nil
}

func (w *pdfWriter) codeBlock(lines *text.Segments) {
	w.pdf.Ln(2)
	w.pdf.SetFont("Courier", "", 9)
	w.pdf.SetFillColor(245, 245, 245)
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		w.pdf.MultiCell(0, 4.5, translate(w.pdf, strings.TrimRight(string(line.Value(w.source)), "\n")), "", "L", true)
	}
	w.pdf.SetFillColor(255, 255, 255)
	w.updateFont()
	w.pdf.Ln(2)
}

// table draws rows with equal column widths; cell text is truncated to fit
func (w *pdfWriter) table(n *extast.Table) {
	var rows [][]string
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		var row []string
		for cell := child.FirstChild(); cell != nil; cell = cell.NextSibling() {
			row = append(row, cellText(cell, w.source))
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return
	}

	colWidth := pageWidth / float64(len(rows[0]))
	w.pdf.Ln(2)
	for i, row := range rows {
		if i == 0 {
			w.pdf.SetFont(fontFamily, "B", 8)
			w.pdf.SetFillColor(230, 230, 230)
		} else {
			w.pdf.SetFont(fontFamily, "", 8)
			w.pdf.SetFillColor(255, 255, 255)
		}
		for _, cell := range row {
			w.pdf.CellFormat(colWidth, 6, fit(w.pdf, translate(w.pdf, cell), colWidth-2), "1", 0, "L", i == 0, 0, "")
		}
		w.pdf.Ln(-1)
	}
	w.pdf.SetFillColor(255, 255, 255)
	w.updateFont()
	w.pdf.Ln(3)
}

func cellText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := node.(*ast.Text); ok && entering {
			b.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

func fit(pdf *fpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	for len(s) > 0 && pdf.GetStringWidth(s+"...") > width {
		s = s[:len(s)-1]
	}
	return s + "..."
}
