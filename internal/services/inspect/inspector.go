// -----------------------------------------------------------------------
// Document Inspector - Cheap metadata reads for submitted and converted files
// Uses pdfcpu for PDF structure and goquery for HTML output
// -----------------------------------------------------------------------

package inspect

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/ternarybob/arbor"
)

// PDFMetadata describes a submitted PDF
type PDFMetadata struct {
	PageCount   int
	FileSize    int64
	IsEncrypted bool
}

// Inspector reads document metadata without converting anything
type Inspector struct {
	logger arbor.ILogger
}

// NewInspector creates a new document inspector
func NewInspector(logger arbor.ILogger) *Inspector {
	return &Inspector{
		logger: logger,
	}
}

// IsPDF reports whether path names a PDF by extension
func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// PDFMetadata reads the page count and encryption state of a PDF
func (i *Inspector) PDFMetadata(path string) (*PDFMetadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat PDF: %w", err)
	}

	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF context: %w", err)
	}

	metadata := &PDFMetadata{
		PageCount:   pdfCtx.PageCount,
		FileSize:    info.Size(),
		IsEncrypted: pdfCtx.Encrypt != nil,
	}

	i.logger.Debug().
		Str("path", path).
		Int("page_count", metadata.PageCount).
		Int64("file_size", metadata.FileSize).
		Bool("encrypted", metadata.IsEncrypted).
		Msg("Read PDF metadata")

	return metadata, nil
}

// CountHTMLImages counts the <img> elements of a converted HTML document.
// Embedded data URIs and linked images both count.
func (i *Inspector) CountHTMLImages(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open HTML output: %w", err)
	}
	defer file.Close()

	doc, err := goquery.NewDocumentFromReader(file)
	if err != nil {
		return 0, fmt.Errorf("failed to parse HTML output: %w", err)
	}

	count := 0
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && strings.TrimSpace(src) != "" {
			count++
		}
	})
	return count, nil
}

// CountImageFiles counts image files in dir, for engines that write pictures
// beside the output instead of reporting them
func (i *Inspector) CountImageFiles(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read image directory: %w", err)
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp", ".tif", ".tiff":
			count++
		}
	}
	return count, nil
}
