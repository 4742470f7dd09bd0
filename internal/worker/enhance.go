package worker

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ternarybob/psdocling/internal/models"
)

type enhancement struct {
	name string
	run  func() error
}

// enhance runs the post-processing steps selected for the job, recording
// their results into update and moving progress from 95 towards 99
func (j *job) enhance(output string, result *models.EngineResult, update *models.StatusUpdate) error {
	w := j.worker
	var steps []enhancement

	if result.ImagesExtracted == nil && w.inspector != nil {
		if j.desc.ExportFormat == models.FormatHTML || result.ImagesDirectory != "" {
			steps = append(steps, enhancement{"images", func() error {
				j.countImages(output, result, update)
				return nil
			}})
		}
	}

	if j.desc.Chunking.Enabled && w.chunker != nil {
		steps = append(steps, enhancement{"chunking", func() error {
			chunks, err := w.chunker.ChunkFile(output, j.desc.ExportFormat, j.desc.Chunking)
			if err != nil {
				return err
			}
			update.ChunksFile = &chunks.File
			update.ChunkCount = &chunks.Count
			return nil
		}})
	}

	if j.desc.Printable && w.renderer != nil {
		switch j.desc.ExportFormat {
		case models.FormatMarkdown, models.FormatText:
			steps = append(steps, enhancement{"printable", func() error {
				target := strings.TrimSuffix(output, filepath.Ext(output)) + models.PrintableExtension
				pages, err := w.renderer.RenderFile(output, target, j.desc.ExportFormat == models.FormatMarkdown)
				if err != nil {
					return err
				}
				update.PrintableFile = &target
				j.logger.Debug().Str("job_id", j.desc.ID).Int("pages", pages).Msg("Printable copy rendered")
				return nil
			}})
		default:
			j.logger.Warn().
				Str("job_id", j.desc.ID).
				Str("format", string(j.desc.ExportFormat)).
				Msg("Printable copy only supports markdown and text output, skipping")
		}
	}

	for i, step := range steps {
		if err := step.run(); err != nil {
			return fmt.Errorf("%s enhancement failed: %w", step.name, err)
		}
		progress := enhancementProgress(i+1, len(steps))
		if _, err := w.status.Merge(j.store, j.desc.ID, models.StatusUpdate{Progress: &progress}); err != nil {
			j.logger.Warn().Err(err).Str("job_id", j.desc.ID).Msg("Failed to publish enhancement progress")
		}
	}
	return nil
}

// countImages fills in the image count when the engine did not report one.
// A failed count leaves the field unset.
func (j *job) countImages(output string, result *models.EngineResult, update *models.StatusUpdate) {
	var count int
	var err error
	if j.desc.ExportFormat == models.FormatHTML {
		count, err = j.worker.inspector.CountHTMLImages(output)
	} else {
		dir := result.ImagesDirectory
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(filepath.Dir(output), dir)
		}
		count, err = j.worker.inspector.CountImageFiles(dir)
	}
	if err != nil {
		j.logger.Warn().Err(err).Str("job_id", j.desc.ID).Msg("Failed to count extracted images")
		return
	}
	update.ImagesExtracted = &count
}
