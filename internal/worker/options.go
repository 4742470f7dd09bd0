package worker

import (
	"time"

	"github.com/ternarybob/psdocling/internal/common"
	"github.com/ternarybob/psdocling/internal/models"
)

// TimeoutPolicy maps enabled enrichments to an engine time ceiling. Heavier
// model combinations get longer ceilings; the largest applicable one wins.
type TimeoutPolicy struct {
	Base               time.Duration
	PictureClasses     time.Duration
	CodeOrFormula      time.Duration
	CodeAndFormula     time.Duration
	PictureDescription time.Duration
	Combined           time.Duration
}

// DefaultTimeoutPolicy returns the stock ceilings
func DefaultTimeoutPolicy() TimeoutPolicy {
	return TimeoutPolicy{
		Base:               10 * time.Minute,
		PictureClasses:     30 * time.Minute,
		CodeOrFormula:      time.Hour,
		CodeAndFormula:     2 * time.Hour,
		PictureDescription: 3 * time.Hour,
		Combined:           6 * time.Hour,
	}
}

// For returns the ceiling for a job with the given enrichments
func (p TimeoutPolicy) For(e models.Enrichment) time.Duration {
	timeout := p.Base
	if e.PictureClasses {
		timeout = max(timeout, p.PictureClasses)
	}
	switch {
	case e.Code && e.Formula:
		timeout = max(timeout, p.CodeAndFormula)
	case e.Code || e.Formula:
		timeout = max(timeout, p.CodeOrFormula)
	}
	if e.PictureDescription {
		if e.Code || e.Formula {
			timeout = max(timeout, p.Combined)
		} else {
			timeout = max(timeout, p.PictureDescription)
		}
	}
	return timeout
}

// Options configures the worker loop
type Options struct {
	EngineCommand   []string
	EngineWorkDir   string
	EngineEnv       []string
	OutputDir       string
	PollInterval    time.Duration
	MonitorInterval time.Duration
	ExitWait        time.Duration
	Timeouts        TimeoutPolicy
}

// OptionsFromConfig builds worker options from the application config
func OptionsFromConfig(config *common.Config) Options {
	defaults := DefaultTimeoutPolicy()
	return Options{
		EngineCommand:   config.Engine.Command,
		EngineWorkDir:   config.Engine.WorkDir,
		EngineEnv:       config.Engine.Env,
		OutputDir:       config.Storage.OutputDir,
		PollInterval:    common.ParseDuration(config.Worker.PollInterval, 2*time.Second),
		MonitorInterval: common.ParseDuration(config.Worker.MonitorInterval, time.Second),
		ExitWait:        common.ParseDuration(config.Worker.ExitWait, 10*time.Second),
		Timeouts: TimeoutPolicy{
			Base:               common.ParseDuration(config.Timeouts.Base, defaults.Base),
			PictureClasses:     common.ParseDuration(config.Timeouts.PictureClasses, defaults.PictureClasses),
			CodeOrFormula:      common.ParseDuration(config.Timeouts.CodeOrFormula, defaults.CodeOrFormula),
			CodeAndFormula:     common.ParseDuration(config.Timeouts.CodeAndFormula, defaults.CodeAndFormula),
			PictureDescription: common.ParseDuration(config.Timeouts.PictureDescription, defaults.PictureDescription),
			Combined:           common.ParseDuration(config.Timeouts.Combined, defaults.Combined),
		},
	}
}

func (o *Options) applyDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.MonitorInterval <= 0 {
		o.MonitorInterval = time.Second
	}
	if o.ExitWait <= 0 {
		o.ExitWait = 10 * time.Second
	}
	if o.Timeouts.Base <= 0 {
		o.Timeouts = DefaultTimeoutPolicy()
	}
}
