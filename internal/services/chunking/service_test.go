package chunking

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/psdocling/internal/models"
)

func newService() *Service {
	return NewService(arbor.NewLogger())
}

func TestChunk_MarkdownHeadingPaths(t *testing.T) {
	markdown := `# Report

Intro paragraph.

## Revenue

Revenue grew in every region.

- North up
- South flat

## Costs

Costs were stable.
`
	chunks, err := newService().Chunk(markdown, models.FormatMarkdown, models.ChunkingOptions{Enabled: true})
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, []string{"Report"}, chunks[0].Headings)
	assert.Equal(t, "Intro paragraph.", chunks[0].Text)

	assert.Equal(t, []string{"Report", "Revenue"}, chunks[1].Headings)
	assert.Contains(t, chunks[1].Text, "Revenue grew")
	assert.Contains(t, chunks[1].Text, "North up")

	assert.Equal(t, []string{"Report", "Costs"}, chunks[2].Headings)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
	}
}

func TestChunk_SplitsLongSections(t *testing.T) {
	words := make([]string, 40)
	for i := range words {
		words[i] = "word"
	}
	chunks, err := newService().Chunk(strings.Join(words, " "), models.FormatText, models.ChunkingOptions{Enabled: true, MaxTokens: 16})
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, 16, chunks[0].Tokens)
	assert.Equal(t, 16, chunks[1].Tokens)
	assert.Equal(t, 8, chunks[2].Tokens)
}

func TestChunk_MergePeers(t *testing.T) {
	content := "alpha beta\n\ngamma delta\n\nepsilon"
	opts := models.ChunkingOptions{Enabled: true, MaxTokens: 16}

	chunks, err := newService().Chunk(content, models.FormatText, opts)
	require.NoError(t, err)
	assert.Len(t, chunks, 3)

	opts.MergePeers = true
	chunks, err = newService().Chunk(content, models.FormatText, opts)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 5, chunks[0].Tokens)
}

func TestChunk_HTML(t *testing.T) {
	html := `<html><body><h1>Title</h1><p>First paragraph.</p><h2>Part</h2><p>Second paragraph.</p></body></html>`
	chunks, err := newService().Chunk(html, models.FormatHTML, models.ChunkingOptions{Enabled: true})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, []string{"Title", "Part"}, chunks[1].Headings)
	assert.Equal(t, "Second paragraph.", chunks[1].Text)
}

func TestChunk_JSON(t *testing.T) {
	content := `{"texts":[{"text":"first"},{"text":"second"}],"name":"doc"}`
	chunks, err := newService().Chunk(content, models.FormatJSON, models.ChunkingOptions{Enabled: true})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "first", chunks[0].Text)
	assert.Equal(t, "second", chunks[1].Text)

	_, err = newService().Chunk("{broken", models.FormatJSON, models.ChunkingOptions{Enabled: true})
	assert.Error(t, err)
}

func TestChunk_DocTags(t *testing.T) {
	content := `<doctag><section_header_level_1><loc_10><loc_20><loc_30><loc_40>Overview</section_header_level_1>
<text><loc_1><loc_2><loc_3><loc_4>Body text here.</text>
<text><loc_5><loc_6><loc_7><loc_8>More text.</text></doctag>`
	chunks, err := newService().Chunk(content, models.FormatDocTags, models.ChunkingOptions{Enabled: true})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, []string{"Overview"}, chunks[0].Headings)
	assert.Equal(t, "Body text here.\nMore text.", chunks[0].Text)
}

func TestChunkFile_WritesBesideOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.md")
	require.NoError(t, os.WriteFile(path, []byte("# A\n\none two three\n"), 0644))

	result, err := newService().ChunkFile(path, models.FormatMarkdown, models.ChunkingOptions{Enabled: true})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "report"+FileSuffix), result.File)
	assert.Equal(t, 1, result.Count)

	data, err := os.ReadFile(result.File)
	require.NoError(t, err)
	var doc Document
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "report.md", doc.Source)
	assert.Equal(t, models.DefaultChunkMaxTokens, doc.MaxTokens)
	require.Len(t, doc.Chunks, 1)
}
