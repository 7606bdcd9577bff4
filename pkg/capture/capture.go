// Package capture provides local audio sources for a voice session.
//
// A Source is opened once per session start. Opening is the permission step:
// a source that cannot deliver audio fails Open, and the session treats that
// as a denied microphone. The returned Capture owns its tracks until Stop.
package capture

import (
	"context"

	"github.com/pion/webrtc/v3"
)

// Source opens a local audio capture.
type Source interface {
	Open(ctx context.Context) (Capture, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Capture, error)

func (f SourceFunc) Open(ctx context.Context) (Capture, error) { return f(ctx) }

// Capture is an open audio capture.
type Capture interface {
	// Tracks returns the local tracks to attach to the peer.
	Tracks() []webrtc.TrackLocal

	// Stop ends capture and releases the tracks. It is safe to call more
	// than once.
	Stop() error
}

// Leveler is implemented by captures that can report an input level in
// [0, 1].
type Leveler interface {
	Level() float64
}

// Level returns c's input level, or 0 if c does not report one.
func Level(c Capture) float64 {
	if l, ok := c.(Leveler); ok {
		return l.Level()
	}
	return 0
}
