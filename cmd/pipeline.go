package cmd

import (
	"context"
	"net/http"

	"pixconv/codec"
	"pixconv/config"
	"pixconv/edge"
	"pixconv/imaging"
	"pixconv/local"
	"pixconv/orchestrator"
)

// pipeline is the conversion stack shared by serve and convert.
type pipeline struct {
	loader       *codec.Loader
	local        *local.Converter
	edge         *edge.Client
	orchestrator *orchestrator.Orchestrator
	closeCodecs  func(context.Context) error
}

func newPipeline(ctx context.Context, cfg *config.Config, deviceMemory *float64) *pipeline {
	client := &http.Client{Timeout: cfg.EdgeTimeout()}
	loader, closeCodecs := codec.Setup(ctx, cfg, client)

	p := &pipeline{
		loader: loader,
		local: local.New(local.Options{
			Loader:  loader,
			Surface: imaging.NewDrawSurface(),
			Workers: cfg.Server.Workers,
		}),
		closeCodecs: closeCodecs,
	}

	// a nil *edge.Client must not end up inside the interface
	var edgeClient orchestrator.EdgeClient
	if cfg.Edge.URL != "" {
		p.edge = edge.New(edge.Options{
			BaseURL:        cfg.Edge.URL,
			Timeout:        cfg.EdgeTimeout(),
			JWTSecret:      cfg.Edge.JWTSecret,
			LargeFileBytes: cfg.LargeFileBytes(),
			LowMemoryGB:    cfg.Thresholds.LowMemoryGB,
			ProbeTTL:       cfg.EdgeProbeTTL(),
		})
		edgeClient = p.edge
	}
	p.orchestrator = orchestrator.New(p.local, edgeClient, loader.Registry(), deviceMemory)
	return p
}

func (p *pipeline) Close(ctx context.Context) error {
	p.local.Close()
	return p.closeCodecs(ctx)
}
