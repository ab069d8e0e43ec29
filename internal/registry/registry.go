// Package registry holds the process-wide model selection.
package registry

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Config is the construction-time state. Streaming and ChunkSize never change afterwards.
type Config struct {
	DefaultModel string
	Streaming    bool
	ChunkSize    int
}

// Registry is a synchronized cell for the active model plus immutable inference settings.
type Registry struct {
	active    atomic.Pointer[string]
	streaming bool
	chunkSize int
}

// Snapshot is a consistent copy of the registry state.
type Snapshot struct {
	ActiveModel string
	Streaming   bool
	ChunkSize   int
}

// New validates cfg and returns a Registry.
func New(cfg Config) (*Registry, error) {
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}
	model := strings.TrimSpace(cfg.DefaultModel)
	if model == "" {
		return nil, fmt.Errorf("default model is required")
	}
	r := &Registry{streaming: cfg.Streaming, chunkSize: cfg.ChunkSize}
	r.active.Store(&model)
	return r, nil
}

// ActiveModel returns the model used for inference right now.
func (r *Registry) ActiveModel() string { return *r.active.Load() }

// ChangeModel replaces the active model and returns the previous one. The name is
// not checked against the backend.
func (r *Registry) ChangeModel(name string) (previous string) {
	return *r.active.Swap(&name)
}

func (r *Registry) Streaming() bool { return r.streaming }

func (r *Registry) ChunkSize() int { return r.chunkSize }

func (r *Registry) Snapshot() Snapshot {
	return Snapshot{ActiveModel: r.ActiveModel(), Streaming: r.streaming, ChunkSize: r.chunkSize}
}
