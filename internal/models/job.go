// -----------------------------------------------------------------------
// Job Descriptor - Immutable queue entry for one conversion
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"strings"
	"time"
)

// ExportFormat is the output format requested from the conversion engine
type ExportFormat string

const (
	FormatMarkdown ExportFormat = "markdown"
	FormatHTML     ExportFormat = "html"
	FormatJSON     ExportFormat = "json"
	FormatText     ExportFormat = "text"
	FormatDocTags  ExportFormat = "doctags"
)

// ExportFormats lists every supported format
var ExportFormats = []ExportFormat{FormatMarkdown, FormatHTML, FormatJSON, FormatText, FormatDocTags}

var formatExtensions = map[ExportFormat]string{
	FormatMarkdown: ".md",
	FormatHTML:     ".html",
	FormatJSON:     ".json",
	FormatText:     ".txt",
	FormatDocTags:  ".xml",
}

// Extension returns the output file extension for the format
func (f ExportFormat) Extension() string {
	return formatExtensions[f]
}

// Valid reports whether f is a supported format
func (f ExportFormat) Valid() bool {
	_, ok := formatExtensions[f]
	return ok
}

// ParseExportFormat normalises a client supplied format name. Empty input
// selects markdown.
func ParseExportFormat(value string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "markdown", "md":
		return FormatMarkdown, nil
	case "html", "htm":
		return FormatHTML, nil
	case "json":
		return FormatJSON, nil
	case "text", "txt":
		return FormatText, nil
	case "doctags", "xml":
		return FormatDocTags, nil
	}
	return "", fmt.Errorf("unsupported export format %q", value)
}

// PrintableExtension is the extension of the rendered PDF copy
const PrintableExtension = ".pdf"

// IsOutputExtension reports whether ext (with leading dot) is produced by any
// format or by the printable copy
func IsOutputExtension(ext string) bool {
	ext = strings.ToLower(ext)
	if ext == PrintableExtension {
		return true
	}
	for _, known := range formatExtensions {
		if ext == known {
			return true
		}
	}
	return false
}

// Enrichment selects the optional ML features of the conversion engine.
// Each flag is passed to the engine as its own positional argument.
type Enrichment struct {
	Code               bool `json:"code"`
	Formula            bool `json:"formula"`
	PictureClasses     bool `json:"pictureClasses"`
	PictureDescription bool `json:"pictureDescription"`
}

// Any reports whether at least one enrichment is enabled
func (e Enrichment) Any() bool {
	return e.Code || e.Formula || e.PictureClasses || e.PictureDescription
}

// Names returns the enabled enrichment names, for logging
func (e Enrichment) Names() []string {
	names := []string{}
	if e.Code {
		names = append(names, "code")
	}
	if e.Formula {
		names = append(names, "formula")
	}
	if e.PictureClasses {
		names = append(names, "picture_classes")
	}
	if e.PictureDescription {
		names = append(names, "picture_description")
	}
	return names
}

// DefaultChunkMaxTokens is used when chunking is enabled without a size
const DefaultChunkMaxTokens = 512

// ChunkingOptions configures the chunking post-processing pass
type ChunkingOptions struct {
	Enabled    bool `json:"enabled"`
	MaxTokens  int  `json:"maxTokens,omitempty" validate:"omitempty,min=16,max=8192"`
	MergePeers bool `json:"mergePeers"`
}

// TokenLimit returns MaxTokens or the default
func (c ChunkingOptions) TokenLimit() int {
	if c.MaxTokens <= 0 {
		return DefaultChunkMaxTokens
	}
	return c.MaxTokens
}

// JobDescriptor is the queue entry for one conversion. It is written when a job
// moves from Ready to Queued, consumed once by the worker, and never modified;
// reprocessing writes a fresh descriptor for the same ID.
type JobDescriptor struct {
	ID           string          `json:"id"`
	FilePath     string          `json:"filePath"`
	FileName     string          `json:"fileName"`
	ExportFormat ExportFormat    `json:"exportFormat"`
	EmbedImages  bool            `json:"embedImages"`
	Enrichment   Enrichment      `json:"enrichment"`
	Chunking     ChunkingOptions `json:"chunking"`
	Printable    bool            `json:"printable"` // Render a PDF copy of markdown or text output
	QueuedTime   time.Time       `json:"queuedTime"`
}

// OutputName returns the output file name derived from the source name and format
func (d *JobDescriptor) OutputName() string {
	base := d.FileName
	if idx := strings.LastIndex(base, "."); idx > 0 {
		base = base[:idx]
	}
	return base + d.ExportFormat.Extension()
}
