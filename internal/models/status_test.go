package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusUpdate_ApplyMergesFields(t *testing.T) {
	record := &StatusRecord{ID: "job-1", Status: StatusReady, FileName: "report.pdf"}

	changed := StatusUpdate{Progress: Ptr(50.0)}.Apply(record)
	assert.False(t, changed)

	changed = StatusUpdate{Status: Ptr(StatusProcessing)}.Apply(record)
	assert.True(t, changed)

	assert.Equal(t, 50.0, record.Progress)
	assert.Equal(t, StatusProcessing, record.Status)
	assert.Equal(t, "report.pdf", record.FileName)
}

func TestStatusUpdate_ApplyClearFlags(t *testing.T) {
	end := time.Now()
	record := &StatusRecord{
		ID:              "job-1",
		Status:          StatusError,
		Error:           "engine failed",
		ErrorDetails:    &ErrorDetails{Kind: ErrorKindEngine},
		OutputFile:      "/tmp/out.md",
		ImagesExtracted: Ptr(3),
		EndTime:         &end,
		FileName:        "report.pdf",
	}

	StatusUpdate{Status: Ptr(StatusQueued), ClearError: true, ClearResult: true}.Apply(record)

	assert.Empty(t, record.Error)
	assert.Nil(t, record.ErrorDetails)
	assert.Empty(t, record.OutputFile)
	assert.Nil(t, record.ImagesExtracted)
	assert.Nil(t, record.EndTime)
	assert.Equal(t, "report.pdf", record.FileName)
}

func TestStatusRecord_CloneIsDeep(t *testing.T) {
	now := time.Now()
	original := &StatusRecord{
		ID:           "job-1",
		StartTime:    &now,
		ErrorDetails: &ErrorDetails{Kind: ErrorKindEngine, ExitCode: Ptr(2)},
	}

	clone := original.Clone()
	require.NotNil(t, clone)
	*clone.ErrorDetails.ExitCode = 9
	later := now.Add(time.Hour)
	clone.StartTime = &later

	assert.Equal(t, 2, *original.ErrorDetails.ExitCode)
	assert.Equal(t, now, *original.StartTime)
}

func TestJobStatus_Classification(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusError.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusProcessing.IsTerminal())

	assert.True(t, StatusQueued.InFlight())
	assert.True(t, StatusProcessing.InFlight())
	assert.False(t, StatusReady.InFlight())
}

func TestParseExportFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected ExportFormat
		ext      string
	}{
		{"", FormatMarkdown, ".md"},
		{"Markdown", FormatMarkdown, ".md"},
		{"html", FormatHTML, ".html"},
		{"json", FormatJSON, ".json"},
		{"txt", FormatText, ".txt"},
		{"doctags", FormatDocTags, ".xml"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			format, err := ParseExportFormat(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, format)
			assert.Equal(t, tt.ext, format.Extension())
		})
	}

	_, err := ParseExportFormat("pdf")
	assert.Error(t, err)
}

func TestJobDescriptor_OutputName(t *testing.T) {
	desc := &JobDescriptor{FileName: "annual.report.pdf", ExportFormat: FormatDocTags}
	assert.Equal(t, "annual.report.xml", desc.OutputName())

	desc = &JobDescriptor{FileName: "README", ExportFormat: FormatText}
	assert.Equal(t, "README.txt", desc.OutputName())
}
