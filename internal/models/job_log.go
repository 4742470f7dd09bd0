package models

import "time"

// JobLogEntry is one worker log line captured for a job
type JobLogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Level     string            `json:"level"` // INF, WRN, ERR, DBG
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
}
