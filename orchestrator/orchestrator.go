package orchestrator

import (
	"context"
	"time"

	"pixconv/imaging"
	"pixconv/logger"
	"pixconv/metrics"
	"pixconv/models"
)

// LocalConverter runs a conversion in-process.
type LocalConverter interface {
	ConvertImage(ctx context.Context, file *models.File, settings models.ConversionSettings) (*models.ConversionResult, error)
}

// EdgeClient runs a conversion remotely and advises on when to.
type EdgeClient interface {
	ProcessImage(ctx context.Context, file *models.File, settings models.ConversionSettings) (*models.ConversionResult, error)
	IsAvailable(ctx context.Context) bool
	GetProcessingMode(file *models.File, src, tgt string, deviceMemory *float64) (models.Mode, string)
}

// ModeAdvisor decides from codec capabilities alone.
type ModeAdvisor interface {
	GetProcessingMode(size int64, src, tgt string, deviceMemory *float64) models.Mode
}

const (
	ReasonNoLocalCodec   = "no suitable local codec"
	ReasonLocalPreferred = "local processing preferred"
)

// State is a step of a single conversion.
type State string

const (
	StateSelectingMode         State = "selecting-mode"
	StateExecutingLocal        State = "executing-local"
	StateExecutingEdge         State = "executing-edge"
	StateExecutingEdgeFallback State = "executing-edge-fallback"
	StateSucceeded             State = "succeeded"
	StateFailed                State = "failed"
)

// Observer is told about every state a conversion passes through.
type Observer func(file string, state State)

// Orchestrator picks local or edge execution per file and falls back to the
// edge once when local execution fails.
type Orchestrator struct {
	local        LocalConverter
	edge         EdgeClient
	advisor      ModeAdvisor
	deviceMemory *float64
	observer     Observer
}

// New wires the collaborators. edge may be nil when no endpoint exists;
// deviceMemory (GB) may be nil when unknown.
func New(local LocalConverter, edge EdgeClient, advisor ModeAdvisor, deviceMemory *float64) *Orchestrator {
	return &Orchestrator{local: local, edge: edge, advisor: advisor, deviceMemory: deviceMemory}
}

// SetObserver installs a state observer. It must be called before use.
func (o *Orchestrator) SetObserver(fn Observer) { o.observer = fn }

func (o *Orchestrator) enter(file string, s State) {
	logger.Debugf("[orchestrator] %s: %s", file, s)
	if o.observer != nil {
		o.observer(file, s)
	}
}

func (o *Orchestrator) edgeReachable(ctx context.Context) bool {
	return o.edge != nil && o.edge.IsAvailable(ctx)
}

// DetermineProcessingMode reconciles the edge client's and the registry's
// advice. Edge is only chosen when it is reachable.
func (o *Orchestrator) DetermineProcessingMode(ctx context.Context, file *models.File, src, tgt string, deviceMemory *float64) models.ProcessingMode {
	if o.edge != nil {
		if mode, reason := o.edge.GetProcessingMode(file, src, tgt, deviceMemory); mode == models.ModeEdge && o.edgeReachable(ctx) {
			return models.ProcessingMode{Mode: models.ModeEdge, Reason: reason}
		}
	}
	if o.advisor != nil && o.advisor.GetProcessingMode(file.Size, src, tgt, deviceMemory) == models.ModeEdge && o.edgeReachable(ctx) {
		return models.ProcessingMode{Mode: models.ModeEdge, Reason: ReasonNoLocalCodec}
	}
	return models.ProcessingMode{Mode: models.ModeLocal, Reason: ReasonLocalPreferred}
}

// ConvertImage converts file on the selected path. A local failure is retried
// once on the edge; an edge failure is returned as is.
func (o *Orchestrator) ConvertImage(ctx context.Context, file *models.File, settings models.ConversionSettings) (*models.ConversionResult, error) {
	start := time.Now()
	o.enter(file.Name, StateSelectingMode)

	src := sourceFormat(file)
	tgt := settings.TargetFormat()
	if tgt == "" {
		tgt = src
	}
	decision := o.DetermineProcessingMode(ctx, file, src, tgt, o.deviceMemory)
	logger.Infof("[orchestrator] %s (%s -> %s): %s, %s", file.Name, src, tgt, decision.Mode, decision.Reason)

	if decision.Mode == models.ModeEdge {
		o.enter(file.Name, StateExecutingEdge)
		res, err := o.runEdge(ctx, file, settings)
		return o.finish(file.Name, models.ModeEdge, start, res, err)
	}

	o.enter(file.Name, StateExecutingLocal)
	res, localErr := o.local.ConvertImage(ctx, file, settings)
	if localErr == nil {
		return o.finish(file.Name, models.ModeLocal, start, res, nil)
	}
	metrics.ObserveConversion(string(models.ModeLocal), false, time.Since(start))
	logger.Warnf("[orchestrator] %s: local conversion failed, retrying on edge: %v", file.Name, localErr)

	o.enter(file.Name, StateExecutingEdgeFallback)
	res, edgeErr := o.runEdge(ctx, file, settings)
	if edgeErr != nil {
		return o.finish(file.Name, models.ModeEdge, start, nil, &models.AggregateProcessingError{Local: localErr, Edge: edgeErr})
	}
	return o.finish(file.Name, models.ModeEdge, start, res, nil)
}

func (o *Orchestrator) runEdge(ctx context.Context, file *models.File, settings models.ConversionSettings) (*models.ConversionResult, error) {
	if o.edge == nil {
		return nil, &models.EdgeProcessingError{Message: "no edge endpoint configured"}
	}
	return o.edge.ProcessImage(ctx, file, settings)
}

func (o *Orchestrator) finish(name string, mode models.Mode, start time.Time, res *models.ConversionResult, err error) (*models.ConversionResult, error) {
	metrics.ObserveConversion(string(mode), err == nil, time.Since(start))
	if err != nil {
		o.enter(name, StateFailed)
		return nil, err
	}
	res.Mode = mode
	o.enter(name, StateSucceeded)
	return res, nil
}

// sourceFormat sniffs the content and falls back to the MIME type or name.
func sourceFormat(file *models.File) string {
	if rc, err := file.Open(); err == nil {
		format, err := imaging.SniffReader(rc)
		rc.Close()
		if err == nil && format != "" {
			return format
		}
	}
	return file.SourceFormat()
}
