package codec

import (
	"context"

	"pixconv/models"
)

// Request is the per-call encode instruction handed to a codec handle.
type Request struct {
	SourceFormat string `json:"sourceFormat"`
	TargetFormat string `json:"targetFormat"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Quality      *int   `json:"quality,omitempty"`
	Progressive  bool   `json:"progressive,omitempty"`
	Lossless     bool   `json:"lossless,omitempty"`
}

// Handle is a loaded codec. Implementations must be safe for concurrent use.
type Handle interface {
	Convert(ctx context.Context, input []byte, req Request) ([]byte, error)
}

// HandleFunc adapts a function to Handle.
type HandleFunc func(ctx context.Context, input []byte, req Request) ([]byte, error)

func (f HandleFunc) Convert(ctx context.Context, input []byte, req Request) ([]byte, error) {
	return f(ctx, input, req)
}

// Instance is a registered codec. Capabilities never change after
// registration; Loaded flips to true once and only through the loader.
type Instance struct {
	Name         string
	Capabilities models.CodecCapabilities
	Handle       Handle
	Loaded       bool
}
