// -----------------------------------------------------------------------
// Status Record - Mutable per-job lifecycle state
// -----------------------------------------------------------------------

package models

import (
	"time"
)

// JobStatus is the lifecycle state of a job
type JobStatus string

const (
	StatusReady      JobStatus = "Ready"
	StatusQueued     JobStatus = "Queued"
	StatusProcessing JobStatus = "Processing"
	StatusCompleted  JobStatus = "Completed"
	StatusError      JobStatus = "Error"
	StatusCancelled  JobStatus = "Cancelled"
)

// JobStatuses lists every lifecycle state in display order
var JobStatuses = []JobStatus{StatusReady, StatusQueued, StatusProcessing, StatusCompleted, StatusError, StatusCancelled}

// IsTerminal reports whether the job has finished, successfully or not
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusCancelled
}

// InFlight reports whether the job is owned by the queue or the worker
func (s JobStatus) InFlight() bool {
	return s == StatusQueued || s == StatusProcessing
}

// Error kinds recorded in ErrorDetails
const (
	ErrorKindEngine      = "engine"      // Engine reported failure or exited abnormally
	ErrorKindOutput      = "output"      // Engine reported success but the output is missing or empty
	ErrorKindProtocol    = "protocol"    // No usable completion signal on stdout
	ErrorKindTimeout     = "timeout"     // Engine exceeded its time ceiling and was killed
	ErrorKindEnhancement = "enhancement" // A post-processing enhancement failed
	ErrorKindInternal    = "internal"    // Worker failure outside the engine
	ErrorKindShutdown    = "shutdown"    // Worker stopped while the job was running
)

// ErrorDetails carries the diagnostics of a failed job
type ErrorDetails struct {
	Kind           string  `json:"kind"`
	Message        string  `json:"message,omitempty"`
	ExitCode       *int    `json:"exitCode,omitempty"`
	Stderr         string  `json:"stderr,omitempty"`
	Stdout         string  `json:"stdout,omitempty"`
	Exception      string  `json:"exception,omitempty"`
	Trace          string  `json:"trace,omitempty"`
	TimeoutSeconds float64 `json:"timeoutSeconds,omitempty"`
}

// StatusRecord is the per-job record held in the status store. Fields
// accumulate over the job's life; they are only changed through StatusUpdate.
type StatusRecord struct {
	ID              string          `json:"id"`
	Status          JobStatus       `json:"status"`
	Progress        float64         `json:"progress"`
	FileName        string          `json:"fileName,omitempty"`
	FilePath        string          `json:"filePath,omitempty"`
	FileSize        int64           `json:"fileSize,omitempty"`
	PageCount       int             `json:"pageCount,omitempty"`
	ExportFormat    ExportFormat    `json:"exportFormat,omitempty"`
	EmbedImages     bool            `json:"embedImages"`
	Enrichment      Enrichment      `json:"enrichment"`
	Chunking        ChunkingOptions `json:"chunking"`
	Printable       bool            `json:"printable"`
	OutputFile      string          `json:"outputFile,omitempty"`
	ImagesExtracted *int            `json:"imagesExtracted,omitempty"`
	ImagesDirectory string          `json:"imagesDirectory,omitempty"`
	ChunksFile      string          `json:"chunksFile,omitempty"`
	ChunkCount      *int            `json:"chunkCount,omitempty"`
	PrintableFile   string          `json:"printableFile,omitempty"`
	Error           string          `json:"error,omitempty"`
	ErrorDetails    *ErrorDetails   `json:"errorDetails,omitempty"`
	SubmittedTime   *time.Time      `json:"submittedTime,omitempty"`
	QueuedTime      *time.Time      `json:"queuedTime,omitempty"`
	StartTime       *time.Time      `json:"startTime,omitempty"`
	EndTime         *time.Time      `json:"endTime,omitempty"`
	ReprocessedTime *time.Time      `json:"reprocessedTime,omitempty"`
	ReprocessCount  int             `json:"reprocessCount,omitempty"`
	CancelRequested bool            `json:"cancelRequested,omitempty"`
	UpdatedTime     time.Time       `json:"updatedTime"`
}

// Clone returns a deep copy so callers never share pointers with the store
func (r *StatusRecord) Clone() *StatusRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.ImagesExtracted = clonePtr(r.ImagesExtracted)
	c.ChunkCount = clonePtr(r.ChunkCount)
	c.SubmittedTime = clonePtr(r.SubmittedTime)
	c.QueuedTime = clonePtr(r.QueuedTime)
	c.StartTime = clonePtr(r.StartTime)
	c.EndTime = clonePtr(r.EndTime)
	c.ReprocessedTime = clonePtr(r.ReprocessedTime)
	if r.ErrorDetails != nil {
		details := *r.ErrorDetails
		details.ExitCode = clonePtr(r.ErrorDetails.ExitCode)
		c.ErrorDetails = &details
	}
	return &c
}

// StatusUpdate is a partial update of a StatusRecord. Only non-nil fields are
// applied, so writers touching disjoint fields never erase each other's data.
// ClearError and ClearResult are the only way to remove values.
type StatusUpdate struct {
	Status          *JobStatus       `validate:"omitempty,oneof=Ready Queued Processing Completed Error Cancelled"`
	Progress        *float64         `validate:"omitempty,gte=0,lte=100"`
	FileName        *string          `validate:"omitempty,max=255"`
	FilePath        *string          `validate:"omitempty"`
	FileSize        *int64           `validate:"omitempty,gte=0"`
	PageCount       *int             `validate:"omitempty,gte=0"`
	ExportFormat    *ExportFormat    `validate:"omitempty,oneof=markdown html json text doctags"`
	EmbedImages     *bool            `validate:"omitempty"`
	Enrichment      *Enrichment      `validate:"omitempty"`
	Chunking        *ChunkingOptions `validate:"omitempty"`
	Printable       *bool            `validate:"omitempty"`
	OutputFile      *string          `validate:"omitempty"`
	ImagesExtracted *int             `validate:"omitempty,gte=0"`
	ImagesDirectory *string          `validate:"omitempty"`
	ChunksFile      *string          `validate:"omitempty"`
	ChunkCount      *int             `validate:"omitempty,gte=0"`
	PrintableFile   *string          `validate:"omitempty"`
	Error           *string          `validate:"omitempty"`
	ErrorDetails    *ErrorDetails    `validate:"omitempty"`
	SubmittedTime   *time.Time       `validate:"omitempty"`
	QueuedTime      *time.Time       `validate:"omitempty"`
	StartTime       *time.Time       `validate:"omitempty"`
	EndTime         *time.Time       `validate:"omitempty"`
	ReprocessedTime *time.Time       `validate:"omitempty"`
	ReprocessCount  *int             `validate:"omitempty,gte=0"`
	CancelRequested *bool            `validate:"omitempty"`

	ClearError  bool // Remove error and errorDetails before applying
	ClearResult bool // Remove output and enhancement fields and the end time before applying
}

// Apply merges the update into r. It reports whether the status field changed.
func (u StatusUpdate) Apply(r *StatusRecord) bool {
	if u.ClearError {
		r.Error = ""
		r.ErrorDetails = nil
	}
	if u.ClearResult {
		r.OutputFile = ""
		r.ImagesExtracted = nil
		r.ImagesDirectory = ""
		r.ChunksFile = ""
		r.ChunkCount = nil
		r.PrintableFile = ""
		r.EndTime = nil
	}

	changed := false
	if u.Status != nil && *u.Status != r.Status {
		r.Status = *u.Status
		changed = true
	}

	setValue(&r.Progress, u.Progress)
	setValue(&r.FileName, u.FileName)
	setValue(&r.FilePath, u.FilePath)
	setValue(&r.FileSize, u.FileSize)
	setValue(&r.PageCount, u.PageCount)
	setValue(&r.ExportFormat, u.ExportFormat)
	setValue(&r.EmbedImages, u.EmbedImages)
	setValue(&r.Enrichment, u.Enrichment)
	setValue(&r.Chunking, u.Chunking)
	setValue(&r.Printable, u.Printable)
	setValue(&r.OutputFile, u.OutputFile)
	setValue(&r.ImagesDirectory, u.ImagesDirectory)
	setValue(&r.ChunksFile, u.ChunksFile)
	setValue(&r.PrintableFile, u.PrintableFile)
	setValue(&r.Error, u.Error)
	setValue(&r.ReprocessCount, u.ReprocessCount)
	setValue(&r.CancelRequested, u.CancelRequested)

	setPtr(&r.ImagesExtracted, u.ImagesExtracted)
	setPtr(&r.ChunkCount, u.ChunkCount)
	setPtr(&r.SubmittedTime, u.SubmittedTime)
	setPtr(&r.QueuedTime, u.QueuedTime)
	setPtr(&r.StartTime, u.StartTime)
	setPtr(&r.EndTime, u.EndTime)
	setPtr(&r.ReprocessedTime, u.ReprocessedTime)

	if u.ErrorDetails != nil {
		details := *u.ErrorDetails
		details.ExitCode = clonePtr(u.ErrorDetails.ExitCode)
		r.ErrorDetails = &details
	}

	return changed
}

// Ptr returns a pointer to v, for building StatusUpdate literals
func Ptr[T any](v T) *T {
	return &v
}

func setValue[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setPtr[T any](dst **T, src *T) {
	if src != nil {
		*dst = clonePtr(src)
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
