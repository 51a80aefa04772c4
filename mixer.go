package mixer

import (
	"fmt"
	"sync"
)

// OutputFormat is the derived downstream format offered on negotiation.
type OutputFormat struct {
	Width       int
	Height      int
	FrameRate   Fraction
	PixelAspect Fraction
	PixelFormat PixelFormat
}

// Output is the downstream collaborator the mixer emits into.
type Output interface {
	// Negotiate offers the derived output format. Returning false fails
	// the cycle with ErrNotNegotiated.
	Negotiate(format OutputFormat) bool

	// AllocateCanvas returns a writable frame of the given geometry. A
	// failure aborts the current cycle only; queued stream state is
	// preserved and the cycle is retried later.
	AllocateCanvas(width, height int, format PixelFormat) (*VideoFrame, error)

	// EmitFrame hands off one composited frame.
	EmitFrame(frame *VideoFrame) error
}

// TimelineObserver is optionally implemented by Outputs that want to know
// when the output timeline restarts (first cycle, flush, seek).
type TimelineObserver interface {
	UpdateTimeline(start int64)
}

// MixerConfig configures a Mixer.
type MixerConfig struct {
	Format      PixelFormat // Shared pixel layout of all inputs and the output
	Background  Background  // Canvas fill before compositing
	ScaleMethod ScaleMethod // Resampling filter for placed sizes
}

// Mixer composites any number of independently timed input streams into
// one output stream. Streams are resampled to their placed size,
// alpha-blended onto a shared canvas in z-order, and emitted at the
// derived output rate with deadline-aware frame dropping.
//
// Exactly one MixOnce cycle runs at a time; attach, detach and property
// updates serialize against it on the state lock.
type Mixer struct {
	out Output

	mu      sync.Mutex
	streams []*Stream // attach order
	zsorted []*Stream // ascending zorder, ties in attach order
	nextID  int

	format     PixelFormat
	background Background
	method     ScaleMethod

	// Derived output state.
	master         *Stream
	outWidth       int
	outHeight      int
	fps            Fraction
	par            Fraction
	needsNegotiate bool
	sendTimeline   bool

	segmentPosition int64
	lastTS          int64
	lastDur         int64

	qos qosState
	tmp []byte
}

// NewMixer creates a mixer emitting into out.
func NewMixer(out Output, config MixerConfig) (*Mixer, error) {
	if !config.Format.Valid() {
		return nil, &FormatError{Format: config.Format, Op: "mix"}
	}
	m := &Mixer{
		out:        out,
		format:     config.Format,
		background: config.Background,
		method:     config.ScaleMethod,
		lastDur:    NoTimestamp,
	}
	m.qos.reset()
	return m, nil
}

// AddStream attaches a new input stream and returns its id. The stream
// starts with zorder equal to its attach index, full opacity and native
// placement; a concurrent cycle picks it up on its next run.
func (m *Mixer) AddStream(provider FrameProvider, config StreamConfig) (int, error) {
	if provider == nil {
		return 0, fmt.Errorf("mixer: nil frame provider")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	st := &Stream{
		id:       m.nextID,
		provider: provider,
		zorder:   uint(len(m.streams)),
		alpha:    1.0,
		nativeW:  config.Width,
		nativeH:  config.Height,
		fps:      config.FrameRate,
		par:      config.PixelAspect,
	}
	m.streams = append(m.streams, st)
	m.sortStreams()
	m.recomputeGeometry()
	return st.id, nil
}

// RemoveStream detaches a stream, discarding its pending frame. Geometry
// and master are re-derived. Detaching waits for any in-flight cycle.
func (m *Mixer) RemoveStream(id int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, st := range m.streams {
		if st.id == id {
			m.streams = append(m.streams[:i], m.streams[i+1:]...)
			m.sortStreams()
			m.recomputeGeometry()
			return true
		}
	}
	return false
}

// SetBackground changes the canvas background mode.
func (m *Mixer) SetBackground(bg Background) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.background = bg
}

// SetScaleMethod changes the resampling filter.
func (m *Mixer) SetScaleMethod(method ScaleMethod) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.method = method
}

// UpdateQoS feeds a downstream deadline observation into the drop
// decision: proportion of real time spent per frame, the signed timing
// error of the last frame, and the reference timestamp it applies to.
func (m *Mixer) UpdateQoS(proportion float64, diff, timestamp int64) {
	// fps read is intentionally lock-free; QoS may trail the cycle by a
	// frame.
	m.qos.update(proportion, diff, timestamp, m.fps.FrameDuration())
}

// Flush cancels in-flight input: every pending frame is discarded, queued
// durations reset, ended streams become pullable again, QoS resets, and
// the next successful cycle reissues the output timeline.
func (m *Mixer) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range m.streams {
		st.pending = nil
		st.queued = 0
		st.queuedInfinite = false
		st.eos = false
	}
	m.sendTimeline = true
	m.qos.reset()
}

// Seek flushes and restarts the output timeline at position.
func (m *Mixer) Seek(position int64) {
	m.Flush()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.segmentPosition = position
	m.lastTS = 0
	m.lastDur = NoTimestamp
}

// Position returns the last emitted output timestamp.
func (m *Mixer) Position() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastTS
}

// Duration returns the maximum total duration reported by the attached
// providers, or NoTimestamp as soon as any provider reports unknown.
func (m *Mixer) Duration() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := int64(0)
	for _, st := range m.streams {
		dr, ok := st.provider.(DurationReporter)
		if !ok {
			continue
		}
		d := dr.TotalDuration()
		if d == NoTimestamp {
			return NoTimestamp
		}
		if d > max {
			max = d
		}
	}
	return max
}

// MixOnce runs one output-frame cycle: fill stream queues, negotiate the
// output format if the geometry changed, decide the candidate timestamp,
// consult QoS, composite and emit. It returns ErrNotReady when some stream
// has nothing queued yet, ErrEndOfStream once every stream has ended, and
// nil both after emitting and after a QoS drop (inputs are drained either
// way).
func (m *Mixer) MixOnce() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.streams) == 0 {
		return ErrNoStreams
	}
	if m.outWidth == 0 || m.outHeight == 0 {
		return ErrNotNegotiated
	}

	ready, eos := m.fillQueues()
	if eos {
		return ErrEndOfStream
	}
	if !ready {
		return ErrNotReady
	}

	if m.needsNegotiate {
		ok := m.out.Negotiate(OutputFormat{
			Width:       m.outWidth,
			Height:      m.outHeight,
			FrameRate:   m.fps,
			PixelAspect: m.par,
			PixelFormat: m.format,
		})
		if !ok {
			return fmt.Errorf("%w: %dx%d %d/%d %s", ErrNotNegotiated,
				m.outWidth, m.outHeight, m.fps.Num, m.fps.Den, m.format)
		}
		m.needsNegotiate = false
		m.growScratch()
	}

	if m.sendTimeline {
		if to, ok := m.out.(TimelineObserver); ok {
			to.UpdateTimeline(m.segmentPosition)
		}
		m.sendTimeline = false
	}

	timestamp, duration := m.candidateTimestamp()

	if !m.qos.shouldProcess(timestamp) {
		m.updateQueues()
		return nil
	}

	canvas, err := m.out.AllocateCanvas(m.outWidth, m.outHeight, m.format)
	if err != nil {
		return fmt.Errorf("mixer: allocate canvas: %w", err)
	}
	canvas.Timestamp = timestamp
	canvas.Duration = duration

	Fill(canvas, m.background)
	if err := m.blendStreams(canvas); err != nil {
		return err
	}

	m.updateQueues()
	return m.out.EmitFrame(canvas)
}

// candidateTimestamp derives the output timestamp from the master's
// pending frame mapped to running time, or carries the last emitted
// timestamp forward when the master has nothing queued.
func (m *Mixer) candidateTimestamp() (timestamp, duration int64) {
	if m.master != nil && m.master.pending != nil {
		timestamp = runningTime(m.master.pending.Timestamp, m.master.segmentOrigin)
		duration = m.master.pending.Duration
		m.lastTS = timestamp
		m.lastDur = duration
	} else {
		timestamp = m.lastTS
		duration = m.lastDur
	}
	if duration != NoTimestamp && m.lastTS != NoTimestamp {
		m.lastTS += duration
	}
	return timestamp, duration
}

func runningTime(timestamp, segmentOrigin int64) int64 {
	if timestamp == NoTimestamp {
		return NoTimestamp
	}
	rt := timestamp - segmentOrigin
	if rt < 0 {
		rt = 0
	}
	return rt
}

// blendStreams composites every pending frame onto the canvas in
// ascending z-order. A stream with a placed size differing from its
// native size is resampled first into its cached target; Transparent
// background selects the associative overlay so downstream mixers can
// stack the result.
func (m *Mixer) blendStreams(canvas *VideoFrame) error {
	composite := Blend
	if m.background == BackgroundTransparent {
		composite = Overlay
	}

	for _, st := range m.zsorted {
		frame := st.pending
		if frame == nil {
			continue
		}
		tw, th := st.width, st.height
		if tw == 0 || th == 0 || (tw == frame.Width && th == frame.Height) {
			composite(canvas, frame, st.xpos, st.ypos, st.alpha)
			continue
		}
		if st.scaled == nil || st.scaled.Width != tw || st.scaled.Height != th ||
			st.scaled.Format != m.format {
			st.scaled = NewVideoFrame(m.format, tw, th)
		}
		if err := Resample(st.scaled, frame, m.method, m.tmp); err != nil {
			return err
		}
		composite(canvas, st.scaled, st.xpos, st.ypos, st.alpha)
	}
	return nil
}

// growScratch sizes the shared resample scratch to the largest dimension
// any stream can currently need. The buffer is reused across frames.
func (m *Mixer) growScratch() {
	maxDim := m.outWidth
	if m.outHeight > maxDim {
		maxDim = m.outHeight
	}
	for _, st := range m.streams {
		for _, d := range [4]int{st.nativeW, st.nativeH, st.width, st.height} {
			if d > maxDim {
				maxDim = d
			}
		}
	}
	if need := ScratchSize(maxDim); len(m.tmp) < need {
		m.tmp = make([]byte, need)
	}
}
