package codec

import (
	"math"
	"sync"

	"pixconv/models"
)

const (
	// DefaultLargeFileBytes is the size above which conversions go to the edge.
	DefaultLargeFileBytes int64 = 80 << 20
	// DefaultLowMemoryGB is the device memory below which conversions go to the edge.
	DefaultLowMemoryGB = 4.0
)

// Registry holds the capability record and load state of every codec.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]*Instance
	order  []string

	largeFileBytes int64
	lowMemoryGB    float64
}

// NewRegistry builds an empty registry. Non-positive thresholds fall back to
// the defaults.
func NewRegistry(largeFileBytes int64, lowMemoryGB float64) *Registry {
	if largeFileBytes <= 0 {
		largeFileBytes = DefaultLargeFileBytes
	}
	if lowMemoryGB <= 0 {
		lowMemoryGB = DefaultLowMemoryGB
	}
	return &Registry{
		codecs:         make(map[string]*Instance),
		largeFileBytes: largeFileBytes,
		lowMemoryGB:    lowMemoryGB,
	}
}

// RegisterCodec inserts or overwrites a codec. An overwritten codec keeps its
// original position for tie-breaking but starts unloaded again.
func (r *Registry) RegisterCodec(name string, caps models.CodecCapabilities) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.codecs[name]; !exists {
		r.order = append(r.order, name)
	}
	r.codecs[name] = &Instance{Name: name, Capabilities: caps}
}

// LargeFileBytes returns the large-file threshold in bytes.
func (r *Registry) LargeFileBytes() int64 { return r.largeFileBytes }

// LowMemoryGB returns the low device-memory threshold in gigabytes.
func (r *Registry) LowMemoryGB() float64 { return r.lowMemoryGB }

// FindBestCodec returns the highest scoring codec able to convert src to tgt
// for a file of size bytes. Ties go to the earliest registered codec.
func (r *Registry) FindBestCodec(src, tgt string, size int64) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	best, bestScore := "", math.Inf(-1)
	for _, name := range r.order {
		inst := r.codecs[name]
		caps := inst.Capabilities
		if !caps.CanDecode(src) || !caps.CanEncode(tgt) || caps.MaxFileSize < size {
			continue
		}
		if s := score(inst); s > bestScore {
			best, bestScore = name, s
		}
	}
	return best, best != ""
}

func score(inst *Instance) float64 {
	var s float64
	if inst.Loaded {
		s += 100
	}
	if inst.Capabilities.SIMD {
		s += 50
	}
	if inst.Capabilities.Threads {
		s += 25
	}
	return s + math.Min(float64(inst.Capabilities.MaxFileSize)/(1<<20), 10)
}

// GetProcessingMode decides local or edge from static capabilities alone.
// deviceMemory is in gigabytes and may be nil when unknown.
func (r *Registry) GetProcessingMode(size int64, src, tgt string, deviceMemory *float64) models.Mode {
	switch {
	case models.IsHEIF(src):
		return models.ModeEdge
	case size > r.largeFileBytes:
		return models.ModeEdge
	case deviceMemory != nil && *deviceMemory < r.lowMemoryGB:
		return models.ModeEdge
	}
	if _, ok := r.FindBestCodec(src, tgt, size); !ok {
		return models.ModeEdge
	}
	return models.ModeLocal
}

// Instance returns a copy of the named codec's state.
func (r *Registry) Instance(name string) (Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.codecs[name]
	if !ok {
		return Instance{}, false
	}
	return *inst, true
}

// Names returns codec names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// IsLoaded reports whether name has a loaded handle.
func (r *Registry) IsLoaded(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.codecs[name]
	return ok && inst.Loaded
}

// markLoaded attaches a handle. It is a no-op for unknown or loaded codecs.
func (r *Registry) markLoaded(name string, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.codecs[name]
	if !ok || inst.Loaded {
		return false
	}
	inst.Handle = h
	inst.Loaded = true
	return true
}
