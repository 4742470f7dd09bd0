package logs

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/phuslu/log"
	"github.com/ternarybob/arbor"
	arborlevels "github.com/ternarybob/arbor/levels"
	arbormodels "github.com/ternarybob/arbor/models"
	"github.com/ternarybob/psdocling/internal/models"
)

// Consumer receives log batches from arbor's context channel and appends the
// entries that carry a job correlation ID to that job's log
type Consumer struct {
	storage  *Storage
	logger   arbor.ILogger
	channel  chan []arbormodels.LogEvent
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	minLevel arbor.LogLevel
}

// NewConsumer creates a new log consumer
func NewConsumer(storage *Storage, logger arbor.ILogger, minLevel string) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		storage:  storage,
		logger:   logger,
		channel:  make(chan []arbormodels.LogEvent, 10),
		ctx:      ctx,
		cancel:   cancel,
		minLevel: parseLogLevel(minLevel),
	}
}

// parseLogLevel converts string log level to arbor.LogLevel
func parseLogLevel(levelStr string) arbor.LogLevel {
	switch strings.ToLower(levelStr) {
	case "debug":
		return arbor.DebugLevel
	case "warn", "warning":
		return arbor.WarnLevel
	case "error":
		return arbor.ErrorLevel
	default:
		return arbor.InfoLevel
	}
}

// GetChannel returns the channel for arbor to send log batches to
func (c *Consumer) GetChannel() chan []arbormodels.LogEvent {
	return c.channel
}

// Start launches the consumer goroutine
func (c *Consumer) Start() {
	c.wg.Add(1)
	go c.consume()
}

// Stop drains nothing further and waits for the goroutine to exit
func (c *Consumer) Stop() {
	c.cancel()
	c.wg.Wait()
}

func (c *Consumer) consume() {
	defer c.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			// No correlation ID here, or the panic would loop back into the channel
			c.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Job log consumer panic recovered")
		}
	}()

	for {
		select {
		case batch, ok := <-c.channel:
			if !ok {
				return
			}
			c.process(batch)
		case <-c.ctx.Done():
			return
		}
	}
}

// process groups a batch by job and appends each group
func (c *Consumer) process(batch []arbormodels.LogEvent) {
	byJob := make(map[string][]models.JobLogEntry)
	for _, event := range batch {
		if event.CorrelationID == "" || !c.accepts(event.Level) {
			continue
		}
		byJob[event.CorrelationID] = append(byJob[event.CorrelationID], transformEvent(event))
	}

	for jobID, entries := range byJob {
		if err := c.storage.AppendLogs(jobID, entries); err != nil {
			c.logger.Warn().
				Err(err).
				Str("job_id", jobID).
				Int("log_count", len(entries)).
				Msg("Failed to write job logs")
		}
	}
}

func (c *Consumer) accepts(level log.Level) bool {
	return arborlevels.FromLogLevel(level) >= c.minLevel
}

// transformEvent converts an arbor event to a stored entry
func transformEvent(event arbormodels.LogEvent) models.JobLogEntry {
	entry := models.JobLogEntry{
		Timestamp: event.Timestamp,
		Level:     convertTo3Letter(event.Level.String()),
		Message:   event.Message,
	}
	if len(event.Fields) > 0 {
		entry.Fields = make(map[string]string, len(event.Fields))
		for key, value := range event.Fields {
			entry.Fields[key] = fmt.Sprintf("%v", value)
		}
	}
	return entry
}

// convertTo3Letter converts full level names to 3-letter codes
func convertTo3Letter(level string) string {
	switch strings.ToUpper(level) {
	case "INFO":
		return "INF"
	case "WARN", "WARNING":
		return "WRN"
	case "ERROR":
		return "ERR"
	case "DEBUG":
		return "DBG"
	case "FATAL":
		return "FTL"
	default:
		if len(level) == 3 {
			return strings.ToUpper(level)
		}
		return "INF"
	}
}
