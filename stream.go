package mixer

import "sort"

// FrameProvider supplies decoded frames for one stream. PullFrame returns
// the next frame, (nil, nil) when none is available yet, or ErrEndOfStream
// once the stream has ended. Pulling must not block; buffering and
// backpressure live with the caller.
type FrameProvider interface {
	PullFrame() (*VideoFrame, error)
}

// DurationReporter is optionally implemented by frame providers that know
// the total duration of their stream. NoTimestamp means unknown.
type DurationReporter interface {
	TotalDuration() int64
}

// StreamConfig describes the native video format of an input stream.
type StreamConfig struct {
	Width       int
	Height      int
	FrameRate   Fraction
	PixelAspect Fraction
}

// Stream is one input attached to a Mixer. All fields are owned by the
// mixer and guarded by its state lock; mutation goes through the Mixer
// setter methods.
type Stream struct {
	id       int
	provider FrameProvider

	// Compositing settings.
	zorder uint
	xpos   int
	ypos   int
	width  int // placed width, 0 = native
	height int // placed height, 0 = native
	alpha  float64

	// Native format.
	nativeW int
	nativeH int
	fps     Fraction
	par     Fraction

	// Synchronizer state.
	pending        *VideoFrame
	queued         int64
	queuedInfinite bool
	eos            bool
	segmentOrigin  int64

	// Cached resample target, reused across cycles.
	scaled *VideoFrame
}

// ID returns the stream's attach serial.
func (s *Stream) ID() int { return s.id }

func (m *Mixer) findStream(id int) *Stream {
	for _, st := range m.streams {
		if st.id == id {
			return st
		}
	}
	return nil
}

// SetZOrder updates the stacking order of a stream. Lower values composite
// first. Equal values keep attach order.
func (m *Mixer) SetZOrder(id int, zorder uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st := m.findStream(id); st != nil {
		st.zorder = zorder
		m.sortStreams()
	}
}

// SetPosition updates the placement offset of a stream on the canvas.
// Offsets may be negative or beyond the canvas; blending clips.
func (m *Mixer) SetPosition(id, xpos, ypos int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st := m.findStream(id); st != nil {
		st.xpos = xpos
		st.ypos = ypos
	}
}

// SetSize updates the placed size of a stream. Zero means native size with
// no resampling.
func (m *Mixer) SetSize(id, width, height int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st := m.findStream(id); st != nil {
		st.width = width
		st.height = height
	}
}

// SetAlpha updates the opacity of a stream, clamped to [0, 1].
func (m *Mixer) SetAlpha(id int, alpha float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st := m.findStream(id); st != nil {
		if alpha < 0 {
			alpha = 0
		} else if alpha > 1 {
			alpha = 1
		}
		st.alpha = alpha
	}
}

// SetSegmentOrigin sets the stream's own timeline offset. Candidate
// timestamps are mapped to running time by subtracting it.
func (m *Mixer) SetSegmentOrigin(id int, origin int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st := m.findStream(id); st != nil {
		st.segmentOrigin = origin
	}
}

// SetInputFormat declares a new native format for a stream, as happens on
// mid-stream renegotiation. Output geometry is re-derived.
func (m *Mixer) SetInputFormat(id int, cfg StreamConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st := m.findStream(id); st != nil {
		st.nativeW = cfg.Width
		st.nativeH = cfg.Height
		st.fps = cfg.FrameRate
		st.par = cfg.PixelAspect
		m.recomputeGeometry()
	}
}

// sortStreams rebuilds the z-order walk from the attach-ordered table and
// stable-sorts it, so streams with equal zorder composite in attach order.
func (m *Mixer) sortStreams() {
	m.zsorted = append(m.zsorted[:0], m.streams...)
	sort.SliceStable(m.zsorted, func(i, j int) bool {
		return m.zsorted[i].zorder < m.zsorted[j].zorder
	})
}
