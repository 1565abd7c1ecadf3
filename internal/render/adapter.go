// Package render connects the behavior engine to the external
// rendering host that owns the visible mesh and material.
package render

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/orangeavatar/internal/assets"
)

// ErrMeshNotReady indicates the rendering host has not initialized its
// mesh yet. Callers retry with backoff rather than fail.
var ErrMeshNotReady = errors.New("mesh not ready")

// Mesh is an opaque handle to the rendering host's mesh.
type Mesh any

// Adapter receives show-resource commands from the active playback
// clock. The mesh may not exist synchronously after construction.
type Adapter interface {
	ShowResource(res *assets.Resource) error
	Mesh() (Mesh, bool)
}

// AwaitMesh polls the adapter for its mesh with a short backoff and a
// bounded number of attempts, then gives up silently. The engine never
// treats a missing mesh as fatal.
func AwaitMesh(ctx context.Context, adapter Adapter, retryDelay time.Duration, maxAttempts int, logger zerolog.Logger) (Mesh, bool) {
	if retryDelay <= 0 {
		retryDelay = 200 * time.Millisecond
	}
	if maxAttempts <= 0 {
		maxAttempts = 25
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if mesh, ok := adapter.Mesh(); ok {
			return mesh, true
		}
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(retryDelay):
		}
	}

	logger.Debug().Int("attempts", maxAttempts).Msg("Mesh never became ready, giving up")
	return nil, false
}
