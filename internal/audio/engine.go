// Package audio plays one-shot audio cues on per-behavior channels.
// The actual audio output is owned by an external engine; this package
// supplies the lifecycle guarantees around it.
package audio

import (
	"context"
	"errors"
)

// ErrPlaybackRejected indicates the engine refused to start playback,
// for example because a permission gate has not been granted yet. It is
// surfaced to the caller once per attempt and never retried here.
var ErrPlaybackRejected = errors.New("playback rejected")

// Engine abstracts the platform audio backend.
type Engine interface {
	// Create prepares a cue for the given resource address.
	Create(address string) (Handle, error)
}

// Handle is a single prepared cue. Implementations must not call back
// into the Player that owns them.
type Handle interface {
	// Play starts playback and returns once the engine has confirmed
	// output has begun, or with an error when it refuses.
	Play(ctx context.Context) error
	// Stop cancels playback. It must unblock a pending Play and make
	// Done yield so no lifecycle waiter hangs.
	Stop()
	// Done yields nil on natural completion or an error on failure.
	Done() <-chan error
}
