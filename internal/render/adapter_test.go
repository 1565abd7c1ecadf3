package render

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/orangeavatar/internal/assets"
)

// countingAdapter reports its mesh ready after a fixed number of polls.
type countingAdapter struct {
	mu         sync.Mutex
	calls      int
	readyAfter int
}

func (a *countingAdapter) ShowResource(*assets.Resource) error { return nil }

func (a *countingAdapter) Mesh() (Mesh, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.readyAfter > 0 && a.calls >= a.readyAfter {
		return struct{}{}, true
	}
	return nil, false
}

func TestAwaitMeshReturnsWhenReady(t *testing.T) {
	adapter := &countingAdapter{readyAfter: 3}

	mesh, ok := AwaitMesh(context.Background(), adapter, 2*time.Millisecond, 10, zerolog.Nop())
	if !ok {
		t.Fatal("AwaitMesh gave up on a mesh that became ready")
	}
	if mesh == nil {
		t.Error("AwaitMesh returned a nil mesh")
	}
}

func TestAwaitMeshGivesUpAfterMaxAttempts(t *testing.T) {
	adapter := &countingAdapter{}

	_, ok := AwaitMesh(context.Background(), adapter, time.Millisecond, 4, zerolog.Nop())
	if ok {
		t.Fatal("AwaitMesh reported success for a mesh that never appeared")
	}

	adapter.mu.Lock()
	calls := adapter.calls
	adapter.mu.Unlock()
	if calls != 4 {
		t.Errorf("polled %d times, want 4", calls)
	}
}

func TestAwaitMeshHonorsContext(t *testing.T) {
	adapter := &countingAdapter{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, ok := AwaitMesh(ctx, adapter, time.Hour, 5, zerolog.Nop())
	if ok {
		t.Fatal("AwaitMesh reported success after cancellation")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("AwaitMesh blocked %v after cancellation", elapsed)
	}
}
