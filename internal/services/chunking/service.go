// -----------------------------------------------------------------------
// Chunking - Split converted documents into heading-scoped text chunks
// -----------------------------------------------------------------------

package chunking

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/psdocling/internal/models"
)

// FileSuffix is appended to the output stem for the chunk file
const FileSuffix = ".chunks.json"

// Chunk is one retrieval-sized piece of a document
type Chunk struct {
	Index    int      `json:"index"`
	Headings []string `json:"headings,omitempty"`
	Text     string   `json:"text"`
	Tokens   int      `json:"tokens"`
}

// Document is the content of a chunk file
type Document struct {
	Source     string  `json:"source"`
	Format     string  `json:"format"`
	MaxTokens  int     `json:"maxTokens"`
	MergePeers bool    `json:"mergePeers"`
	Chunks     []Chunk `json:"chunks"`
}

// Result reports where the chunks were written
type Result struct {
	File  string
	Count int
}

// section is a run of text under one heading path
type section struct {
	headings []string
	text     string
}

// Service chunks conversion output
type Service struct {
	logger arbor.ILogger
}

// NewService creates a new chunking service
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		logger: logger,
	}
}

// ChunkFile chunks the output at path and writes <stem>.chunks.json beside it
func (s *Service) ChunkFile(path string, format models.ExportFormat, opts models.ChunkingOptions) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read output for chunking: %w", err)
	}

	chunks, err := s.Chunk(string(data), format, opts)
	if err != nil {
		return nil, err
	}

	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	chunkPath := filepath.Join(filepath.Dir(path), stem+FileSuffix)

	doc := Document{
		Source:     base,
		Format:     string(format),
		MaxTokens:  opts.TokenLimit(),
		MergePeers: opts.MergePeers,
		Chunks:     chunks,
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode chunks: %w", err)
	}
	if err := os.WriteFile(chunkPath, out, 0644); err != nil {
		return nil, fmt.Errorf("failed to write chunks: %w", err)
	}

	s.logger.Debug().
		Str("source", base).
		Int("chunks", len(chunks)).
		Int("max_tokens", doc.MaxTokens).
		Msg("Chunks written")

	return &Result{File: chunkPath, Count: len(chunks)}, nil
}

// Chunk splits content of the given format into chunks
func (s *Service) Chunk(content string, format models.ExportFormat, opts models.ChunkingOptions) ([]Chunk, error) {
	var sections []section
	var err error

	switch format {
	case models.FormatMarkdown:
		sections = markdownSections(content)
	case models.FormatHTML:
		converter := md.NewConverter("", true, nil)
		markdown, convErr := converter.ConvertString(content)
		if convErr != nil {
			return nil, fmt.Errorf("failed to convert HTML for chunking: %w", convErr)
		}
		sections = markdownSections(markdown)
	case models.FormatJSON:
		sections, err = jsonSections(content)
	case models.FormatDocTags:
		sections, err = docTagSections(content)
	case models.FormatText:
		sections = textSections(content)
	default:
		return nil, fmt.Errorf("chunking does not support format %q", format)
	}
	if err != nil {
		return nil, err
	}

	limit := opts.TokenLimit()
	var chunks []Chunk
	for _, sec := range sections {
		for _, piece := range splitWords(sec.text, limit) {
			chunks = append(chunks, Chunk{
				Headings: sec.headings,
				Text:     piece,
				Tokens:   countTokens(piece),
			})
		}
	}

	if opts.MergePeers {
		chunks = mergePeers(chunks, limit)
	}

	for i := range chunks {
		chunks[i].Index = i
	}
	if chunks == nil {
		chunks = []Chunk{}
	}
	return chunks, nil
}

// countTokens approximates tokens as whitespace separated words
func countTokens(text string) int {
	return len(strings.Fields(text))
}

// splitWords breaks text into windows of at most limit words
func splitWords(text string, limit int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if len(words) <= limit {
		return []string{strings.TrimSpace(text)}
	}

	var pieces []string
	for start := 0; start < len(words); start += limit {
		end := min(start+limit, len(words))
		pieces = append(pieces, strings.Join(words[start:end], " "))
	}
	return pieces
}

// mergePeers joins consecutive chunks under the same headings while the
// combined size stays within limit
func mergePeers(chunks []Chunk, limit int) []Chunk {
	if len(chunks) < 2 {
		return chunks
	}

	merged := []Chunk{chunks[0]}
	for _, chunk := range chunks[1:] {
		last := &merged[len(merged)-1]
		if sameHeadings(last.Headings, chunk.Headings) && last.Tokens+chunk.Tokens <= limit {
			last.Text = last.Text + "\n\n" + chunk.Text
			last.Tokens += chunk.Tokens
			continue
		}
		merged = append(merged, chunk)
	}
	return merged
}

func sameHeadings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func textSections(content string) []section {
	var sections []section
	for _, para := range strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n\n") {
		if strings.TrimSpace(para) != "" {
			sections = append(sections, section{text: strings.TrimSpace(para)})
		}
	}
	return sections
}
