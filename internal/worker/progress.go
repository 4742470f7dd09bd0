package worker

import (
	"math"
	"time"
)

const (
	minEstimate     = 30 * time.Second
	maxEstimate     = 300 * time.Second
	perMegabyte     = 20 * time.Second
	minModelLoad    = 60 * time.Second
	modelLoadShare  = 0.2
	loadedProgress  = 15.0
	targetProgress  = 90.0
	runningCeiling  = 95.0
	enhanceCeiling  = 99.0
	progressMinStep = 1.0
)

// EstimateDuration guesses the conversion time from the file size. It only
// drives the progress display, never the timeout.
func EstimateDuration(sizeBytes int64) time.Duration {
	mb := float64(sizeBytes) / (1024 * 1024)
	estimate := time.Duration(mb * float64(perMegabyte))
	return min(max(estimate, minEstimate), maxEstimate)
}

// progressModel maps elapsed engine time to a displayed percentage.
// Enriched jobs first spend a model loading phase moving to 15%; the rest of
// the estimate moves the bar to 90%. Nothing passes 95% until the engine exits.
type progressModel struct {
	estimate  time.Duration
	modelLoad time.Duration
	enriched  bool
}

func newProgressModel(estimate time.Duration, enriched bool) progressModel {
	load := time.Duration(float64(estimate) * modelLoadShare)
	return progressModel{
		estimate:  estimate,
		modelLoad: max(load, minModelLoad),
		enriched:  enriched,
	}
}

func (m progressModel) at(elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}

	var value float64
	if m.enriched {
		if elapsed < m.modelLoad {
			value = loadedProgress * float64(elapsed) / float64(m.modelLoad)
		} else {
			value = loadedProgress + (targetProgress-loadedProgress)*float64(elapsed-m.modelLoad)/float64(m.estimate)
		}
	} else {
		value = targetProgress * float64(elapsed) / float64(m.estimate)
	}
	return math.Min(value, runningCeiling)
}

// progressTracker keeps displayed progress monotonic and suppresses updates
// smaller than one point
type progressTracker struct {
	last float64
}

// advance reports the value to publish, or false when there is nothing new
func (t *progressTracker) advance(value float64) (float64, bool) {
	value = math.Floor(value)
	if value < t.last+progressMinStep {
		return t.last, false
	}
	t.last = value
	return value, true
}

// enhancementProgress spreads enhancement steps between 95% and 99%
func enhancementProgress(step, total int) float64 {
	if total <= 0 {
		return enhanceCeiling
	}
	return runningCeiling + (enhanceCeiling-runningCeiling)*float64(step)/float64(total)
}
