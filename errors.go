package mixer

import (
	"errors"
	"fmt"
)

// Mixing errors.
var (
	// ErrEndOfStream is returned by FrameProvider.PullFrame when a stream
	// has no more frames, and by Mixer.MixOnce once every attached stream
	// has ended.
	ErrEndOfStream = errors.New("mixer: end of stream")

	// ErrNotReady is returned by Mixer.MixOnce when some stream has no
	// pending frame yet. The caller should deliver more input and retry.
	ErrNotReady = errors.New("mixer: streams not ready")

	// ErrNotNegotiated is returned when a cycle runs before any stream
	// geometry is known, or when the downstream output rejects the
	// derived format.
	ErrNotNegotiated = errors.New("mixer: output format not negotiated")

	// ErrNoStreams is returned when a cycle runs with no attached streams.
	ErrNoStreams = errors.New("mixer: no streams attached")
)

// FormatError reports a pixel format that cannot serve a requested
// operation. It carries enough context for the caller to reconfigure.
type FormatError struct {
	Format PixelFormat
	Method ScaleMethod
	Width  int
	Height int
	Op     string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("mixer: %s unsupported for format %s (%dx%d, method %s)",
		e.Op, e.Format, e.Width, e.Height, e.Method)
}
