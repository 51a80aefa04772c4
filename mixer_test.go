package mixer

import (
	"errors"
	"testing"
)

// stubProvider hands out a fixed list of frames, then reports end of
// stream.
type stubProvider struct {
	frames []*VideoFrame
	next   int
}

func (p *stubProvider) PullFrame() (*VideoFrame, error) {
	if p.next >= len(p.frames) {
		return nil, ErrEndOfStream
	}
	f := p.frames[p.next]
	p.next++
	return f, nil
}

// starvedProvider never has a frame and never ends.
type starvedProvider struct{}

func (starvedProvider) PullFrame() (*VideoFrame, error) { return nil, nil }

// timedProvider adds a known total duration to a stubProvider.
type timedProvider struct {
	stubProvider
	total int64
}

func (p *timedProvider) TotalDuration() int64 { return p.total }

// captureSink records negotiations, emitted frames and timeline updates.
type captureSink struct {
	formats  []OutputFormat
	frames   []*VideoFrame
	timeline []int64
	reject   bool
	allocErr error
}

func (s *captureSink) Negotiate(format OutputFormat) bool {
	if s.reject {
		return false
	}
	s.formats = append(s.formats, format)
	return true
}

func (s *captureSink) AllocateCanvas(width, height int, format PixelFormat) (*VideoFrame, error) {
	if s.allocErr != nil {
		return nil, s.allocErr
	}
	return NewVideoFrame(format, width, height), nil
}

func (s *captureSink) EmitFrame(frame *VideoFrame) error {
	s.frames = append(s.frames, frame)
	return nil
}

func (s *captureSink) UpdateTimeline(start int64) {
	s.timeline = append(s.timeline, start)
}

// grayFrames builds n solid Gray8 frames timestamped at the given rate.
func grayFrames(w, h int, val byte, fps Fraction, n int) []*VideoFrame {
	dur := fps.FrameDuration()
	frames := make([]*VideoFrame, n)
	for i := range frames {
		f := solidGray(w, h, val)
		f.Timestamp = int64(i) * dur
		f.Duration = dur
		frames[i] = f
	}
	return frames
}

func newGrayMixer(t *testing.T, sink Output) *Mixer {
	t.Helper()
	m, err := NewMixer(sink, MixerConfig{
		Format:      FormatGray8,
		Background:  BackgroundBlack,
		ScaleMethod: ScaleNearest,
	})
	if err != nil {
		t.Fatalf("NewMixer: %v", err)
	}
	return m
}

func TestNewMixerRejectsInvalidFormat(t *testing.T) {
	_, err := NewMixer(&captureSink{}, MixerConfig{Format: FormatUnknown})
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("error = %v, want *FormatError", err)
	}
}

func TestMixerNoStreams(t *testing.T) {
	m := newGrayMixer(t, &captureSink{})
	if err := m.MixOnce(); !errors.Is(err, ErrNoStreams) {
		t.Fatalf("MixOnce = %v, want ErrNoStreams", err)
	}
}

func TestMixerGeometryNegotiation(t *testing.T) {
	sink := &captureSink{}
	m := newGrayMixer(t, sink)

	// The widest and tallest inputs set the size; the fastest sets the
	// rate and contributes its pixel aspect.
	m.AddStream(&stubProvider{frames: grayFrames(320, 240, 200, Fraction{10, 1}, 1)},
		StreamConfig{Width: 320, Height: 240, FrameRate: Fraction{10, 1}, PixelAspect: Fraction{1, 1}})
	m.AddStream(&stubProvider{frames: grayFrames(100, 100, 50, Fraction{5, 1}, 1)},
		StreamConfig{Width: 100, Height: 100, FrameRate: Fraction{5, 1}, PixelAspect: Fraction{2, 1}})

	if err := m.MixOnce(); err != nil {
		t.Fatalf("MixOnce: %v", err)
	}
	if len(sink.formats) != 1 {
		t.Fatalf("negotiations = %d, want 1", len(sink.formats))
	}
	got := sink.formats[0]
	want := OutputFormat{Width: 320, Height: 240, FrameRate: Fraction{10, 1},
		PixelAspect: Fraction{1, 1}, PixelFormat: FormatGray8}
	if got != want {
		t.Errorf("negotiated %+v, want %+v", got, want)
	}
}

func TestMixerTwoStreamComposite(t *testing.T) {
	sink := &captureSink{}
	m := newGrayMixer(t, sink)

	base, err := m.AddStream(&stubProvider{frames: grayFrames(320, 240, 200, Fraction{10, 1}, 4)},
		StreamConfig{Width: 320, Height: 240, FrameRate: Fraction{10, 1}, PixelAspect: Fraction{1, 1}})
	if err != nil {
		t.Fatal(err)
	}
	pip, err := m.AddStream(&stubProvider{frames: grayFrames(100, 100, 50, Fraction{5, 1}, 2)},
		StreamConfig{Width: 100, Height: 100, FrameRate: Fraction{5, 1}, PixelAspect: Fraction{1, 1}})
	if err != nil {
		t.Fatal(err)
	}

	m.SetZOrder(base, 0)
	m.SetZOrder(pip, 1)
	m.SetPosition(pip, 110, 70)
	m.SetAlpha(pip, 0.7)

	for {
		err := m.MixOnce()
		if errors.Is(err, ErrEndOfStream) {
			break
		}
		if err != nil {
			t.Fatalf("MixOnce: %v", err)
		}
	}

	// The 10fps stream is the master, so each 5fps frame is held for two
	// ticks; four master inputs become four outputs paced at 100ms.
	wantTS := []int64{0, 100 * msec, 200 * msec, 300 * msec}
	if len(sink.frames) != len(wantTS) {
		t.Fatalf("emitted %d frames, want %d", len(sink.frames), len(wantTS))
	}
	for i, f := range sink.frames {
		if f.Timestamp != wantTS[i] {
			t.Errorf("frame %d timestamp = %d, want %d", i, f.Timestamp, wantTS[i])
		}
	}

	first := sink.frames[0]
	if got := first.Data[0][0]; got != 200 {
		t.Errorf("base pixel = %d, want 200", got)
	}
	// 200 + (50-200)*179/255 inside the blended picture-in-picture.
	want := byte(200 + (50-200)*179/255)
	if got := first.Data[0][70*first.Stride[0]+110]; got != want {
		t.Errorf("pip pixel = %d, want %d", got, want)
	}
}

func TestMixerNotReadyWhenStreamStarved(t *testing.T) {
	m := newGrayMixer(t, &captureSink{})
	m.AddStream(&stubProvider{frames: grayFrames(8, 8, 100, Fraction{10, 1}, 1)},
		StreamConfig{Width: 8, Height: 8, FrameRate: Fraction{10, 1}})
	m.AddStream(starvedProvider{},
		StreamConfig{Width: 8, Height: 8, FrameRate: Fraction{10, 1}})

	if err := m.MixOnce(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("MixOnce = %v, want ErrNotReady", err)
	}
}

func TestMixerEndOfStream(t *testing.T) {
	m := newGrayMixer(t, &captureSink{})
	m.AddStream(&stubProvider{}, StreamConfig{Width: 8, Height: 8, FrameRate: Fraction{10, 1}})

	if err := m.MixOnce(); !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("MixOnce = %v, want ErrEndOfStream", err)
	}
}

func TestMixerNegotiateRejectedThenRetried(t *testing.T) {
	sink := &captureSink{reject: true}
	m := newGrayMixer(t, sink)
	m.AddStream(&stubProvider{frames: grayFrames(8, 8, 100, Fraction{10, 1}, 1)},
		StreamConfig{Width: 8, Height: 8, FrameRate: Fraction{10, 1}})

	if err := m.MixOnce(); !errors.Is(err, ErrNotNegotiated) {
		t.Fatalf("MixOnce = %v, want ErrNotNegotiated", err)
	}

	// The queued frame survives the failed cycle; accepting the format on
	// the retry emits it.
	sink.reject = false
	if err := m.MixOnce(); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(sink.frames) != 1 {
		t.Fatalf("emitted %d frames, want 1", len(sink.frames))
	}
}

func TestMixerAllocFailurePreservesQueues(t *testing.T) {
	sink := &captureSink{allocErr: errors.New("pool exhausted")}
	m := newGrayMixer(t, sink)
	m.AddStream(&stubProvider{frames: grayFrames(8, 8, 100, Fraction{10, 1}, 1)},
		StreamConfig{Width: 8, Height: 8, FrameRate: Fraction{10, 1}})

	if err := m.MixOnce(); err == nil {
		t.Fatal("MixOnce succeeded with failing allocator")
	}
	sink.allocErr = nil
	if err := m.MixOnce(); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(sink.frames) != 1 || sink.frames[0].Timestamp != 0 {
		t.Fatalf("retry did not emit the held frame: %+v", sink.frames)
	}
}

func TestMixerQoSDropsLateFrames(t *testing.T) {
	sink := &captureSink{}
	m := newGrayMixer(t, sink)
	m.AddStream(&stubProvider{frames: grayFrames(8, 8, 100, Fraction{10, 1}, 3)},
		StreamConfig{Width: 8, Height: 8, FrameRate: Fraction{10, 1}})

	if err := m.MixOnce(); err != nil {
		t.Fatalf("cycle 1: %v", err)
	}

	// Downstream reports the frame at t=0 arrived 5ms late: the next
	// permitted time is 0 + 2*5ms + one 100ms frame. The 100ms frame drops,
	// the 200ms frame renders.
	m.UpdateQoS(0.5, 5*msec, 0)

	if err := m.MixOnce(); err != nil {
		t.Fatalf("cycle 2: %v", err)
	}
	if err := m.MixOnce(); err != nil {
		t.Fatalf("cycle 3: %v", err)
	}

	wantTS := []int64{0, 200 * msec}
	if len(sink.frames) != len(wantTS) {
		t.Fatalf("emitted %d frames, want %d", len(sink.frames), len(wantTS))
	}
	for i, f := range sink.frames {
		if f.Timestamp != wantTS[i] {
			t.Errorf("frame %d timestamp = %d, want %d", i, f.Timestamp, wantTS[i])
		}
	}
}

func TestMixerZOrderChange(t *testing.T) {
	sink := &captureSink{}
	m := newGrayMixer(t, sink)
	a, _ := m.AddStream(&stubProvider{frames: grayFrames(8, 8, 50, Fraction{10, 1}, 2)},
		StreamConfig{Width: 8, Height: 8, FrameRate: Fraction{10, 1}})
	m.AddStream(&stubProvider{frames: grayFrames(8, 8, 200, Fraction{10, 1}, 2)},
		StreamConfig{Width: 8, Height: 8, FrameRate: Fraction{10, 1}})

	if err := m.MixOnce(); err != nil {
		t.Fatalf("cycle 1: %v", err)
	}
	// Attach order breaks the tie: the second stream lands on top.
	if got := sink.frames[0].Data[0][0]; got != 200 {
		t.Errorf("top pixel = %d, want 200", got)
	}

	m.SetZOrder(a, 10)
	if err := m.MixOnce(); err != nil {
		t.Fatalf("cycle 2: %v", err)
	}
	if got := sink.frames[1].Data[0][0]; got != 50 {
		t.Errorf("top pixel after reorder = %d, want 50", got)
	}
}

func TestMixerStillFrameHeldForever(t *testing.T) {
	sink := &captureSink{}
	m := newGrayMixer(t, sink)

	m.AddStream(&stubProvider{frames: grayFrames(8, 8, 30, Fraction{5, 1}, 3)},
		StreamConfig{Width: 8, Height: 8, FrameRate: Fraction{5, 1}})

	// A single frame with no duration and no rate: an infinitely queued
	// still image.
	still := solidGray(4, 4, 240)
	still.Timestamp = 0
	m.AddStream(&stubProvider{frames: []*VideoFrame{still}},
		StreamConfig{Width: 4, Height: 4})

	for i := 0; i < 4; i++ {
		if err := m.MixOnce(); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}

	if len(sink.frames) != 4 {
		t.Fatalf("emitted %d frames, want 4", len(sink.frames))
	}
	for i, f := range sink.frames {
		if got := f.Data[0][0]; got != 240 {
			t.Errorf("frame %d still pixel = %d, want 240", i, got)
		}
	}
	// The timed stream ends after 3 frames; the fourth output carries the
	// timeline forward.
	if got := sink.frames[3].Timestamp; got != 600*msec {
		t.Errorf("carried timestamp = %d, want %d", got, 600*msec)
	}
}

func TestMixerRemoveStreamRenegotiates(t *testing.T) {
	sink := &captureSink{}
	m := newGrayMixer(t, sink)
	m.AddStream(&stubProvider{frames: grayFrames(16, 16, 100, Fraction{10, 1}, 2)},
		StreamConfig{Width: 16, Height: 16, FrameRate: Fraction{10, 1}})
	big, _ := m.AddStream(&stubProvider{frames: grayFrames(32, 32, 100, Fraction{10, 1}, 2)},
		StreamConfig{Width: 32, Height: 32, FrameRate: Fraction{10, 1}})

	if err := m.MixOnce(); err != nil {
		t.Fatalf("cycle 1: %v", err)
	}
	if !m.RemoveStream(big) {
		t.Fatal("RemoveStream returned false")
	}
	if m.RemoveStream(big) {
		t.Fatal("second RemoveStream returned true")
	}
	if err := m.MixOnce(); err != nil {
		t.Fatalf("cycle 2: %v", err)
	}

	if len(sink.formats) != 2 {
		t.Fatalf("negotiations = %d, want 2", len(sink.formats))
	}
	if sink.formats[1].Width != 16 || sink.formats[1].Height != 16 {
		t.Errorf("renegotiated %dx%d, want 16x16", sink.formats[1].Width, sink.formats[1].Height)
	}
}

func TestMixerScaledPlacement(t *testing.T) {
	sink := &captureSink{}
	m := newGrayMixer(t, sink)
	m.AddStream(&stubProvider{frames: grayFrames(16, 16, 16, Fraction{10, 1}, 1)},
		StreamConfig{Width: 16, Height: 16, FrameRate: Fraction{10, 1}})
	pip, _ := m.AddStream(&stubProvider{frames: grayFrames(4, 4, 240, Fraction{10, 1}, 1)},
		StreamConfig{Width: 4, Height: 4, FrameRate: Fraction{10, 1}})

	m.SetPosition(pip, 2, 2)
	m.SetSize(pip, 8, 8)

	if err := m.MixOnce(); err != nil {
		t.Fatalf("MixOnce: %v", err)
	}
	f := sink.frames[0]
	if got := f.Data[0][5*f.Stride[0]+5]; got != 240 {
		t.Errorf("scaled pixel = %d, want 240", got)
	}
	if got := f.Data[0][9*f.Stride[0]+2]; got != 240 {
		t.Errorf("scaled extent pixel = %d, want 240", got)
	}
	if got := f.Data[0][0]; got != 16 {
		t.Errorf("background pixel = %d, want 16", got)
	}
	if got := f.Data[0][12*f.Stride[0]+12]; got != 16 {
		t.Errorf("past placed size = %d, want 16", got)
	}
}

func TestMixerTransparentBackgroundAccumulatesAlpha(t *testing.T) {
	sink := &captureSink{}
	m, err := NewMixer(sink, MixerConfig{
		Format:     FormatBGRA,
		Background: BackgroundTransparent,
	})
	if err != nil {
		t.Fatal(err)
	}

	frame := NewVideoFrame(FormatBGRA, 2, 2)
	for i := 0; i < len(frame.Data[0]); i += 4 {
		frame.Data[0][i], frame.Data[0][i+1], frame.Data[0][i+2], frame.Data[0][i+3] = 200, 150, 100, 128
	}
	frame.Timestamp = 0
	frame.Duration = 100 * msec
	m.AddStream(&stubProvider{frames: []*VideoFrame{frame}},
		StreamConfig{Width: 2, Height: 2, FrameRate: Fraction{10, 1}})

	if err := m.MixOnce(); err != nil {
		t.Fatalf("MixOnce: %v", err)
	}
	out := sink.frames[0].Data[0][:4]
	// Overlaying onto a fully transparent canvas keeps the source color
	// and accumulates its alpha.
	if out[0] != 200 || out[1] != 150 || out[2] != 100 || out[3] != 128 {
		t.Errorf("pixel = %v, want [200 150 100 128]", out)
	}
}

func TestMixerFlushResendsTimeline(t *testing.T) {
	sink := &captureSink{}
	m := newGrayMixer(t, sink)
	m.AddStream(&stubProvider{frames: grayFrames(8, 8, 100, Fraction{10, 1}, 3)},
		StreamConfig{Width: 8, Height: 8, FrameRate: Fraction{10, 1}})

	if err := m.MixOnce(); err != nil {
		t.Fatalf("cycle 1: %v", err)
	}
	m.Flush()
	if err := m.MixOnce(); err != nil {
		t.Fatalf("cycle after flush: %v", err)
	}

	if len(sink.timeline) != 2 {
		t.Fatalf("timeline updates = %d, want 2", len(sink.timeline))
	}
}

func TestMixerSeekRestartsTimeline(t *testing.T) {
	sink := &captureSink{}
	m := newGrayMixer(t, sink)
	m.AddStream(&stubProvider{frames: grayFrames(8, 8, 100, Fraction{10, 1}, 2)},
		StreamConfig{Width: 8, Height: 8, FrameRate: Fraction{10, 1}})

	if err := m.MixOnce(); err != nil {
		t.Fatalf("cycle 1: %v", err)
	}
	m.Seek(5 * 1000 * msec)
	if err := m.MixOnce(); err != nil {
		t.Fatalf("cycle after seek: %v", err)
	}

	if len(sink.timeline) != 2 || sink.timeline[1] != 5*1000*msec {
		t.Fatalf("timeline = %v, want second entry at 5s", sink.timeline)
	}
}

func TestMixerSeekClearsEndOfStream(t *testing.T) {
	sink := &captureSink{}
	m := newGrayMixer(t, sink)
	p := &stubProvider{frames: grayFrames(8, 8, 100, Fraction{10, 1}, 1)}
	m.AddStream(p, StreamConfig{Width: 8, Height: 8, FrameRate: Fraction{10, 1}})

	if err := m.MixOnce(); err != nil {
		t.Fatalf("cycle 1: %v", err)
	}
	if err := m.MixOnce(); !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("MixOnce = %v, want ErrEndOfStream", err)
	}

	// Seeking rewinds the provider; the ended stream must be pulled from
	// again instead of staying latched at end of stream.
	m.Seek(0)
	p.frames = append(p.frames, grayFrames(8, 8, 100, Fraction{10, 1}, 2)...)
	if err := m.MixOnce(); err != nil {
		t.Fatalf("cycle after seek: %v", err)
	}
	if len(sink.frames) != 2 {
		t.Fatalf("emitted %d frames, want 2", len(sink.frames))
	}
}

func TestMixerDuration(t *testing.T) {
	m := newGrayMixer(t, &captureSink{})
	m.AddStream(&timedProvider{total: 2 * 1000 * msec},
		StreamConfig{Width: 8, Height: 8, FrameRate: Fraction{10, 1}})
	m.AddStream(&timedProvider{total: 3 * 1000 * msec},
		StreamConfig{Width: 8, Height: 8, FrameRate: Fraction{10, 1}})

	if got := m.Duration(); got != 3*1000*msec {
		t.Errorf("Duration = %d, want 3s", got)
	}

	m.AddStream(&timedProvider{total: NoTimestamp},
		StreamConfig{Width: 8, Height: 8, FrameRate: Fraction{10, 1}})
	if got := m.Duration(); got != NoTimestamp {
		t.Errorf("Duration = %d, want NoTimestamp", got)
	}
}

func TestMixerPositionAdvances(t *testing.T) {
	m := newGrayMixer(t, &captureSink{})
	m.AddStream(&stubProvider{frames: grayFrames(8, 8, 100, Fraction{10, 1}, 2)},
		StreamConfig{Width: 8, Height: 8, FrameRate: Fraction{10, 1}})

	if err := m.MixOnce(); err != nil {
		t.Fatalf("MixOnce: %v", err)
	}
	if got := m.Position(); got != 100*msec {
		t.Errorf("Position = %d, want %d", got, 100*msec)
	}
}

func TestMixerSegmentOriginMapsToRunningTime(t *testing.T) {
	sink := &captureSink{}
	m := newGrayMixer(t, sink)

	frames := grayFrames(8, 8, 100, Fraction{10, 1}, 1)
	frames[0].Timestamp = 1500 * msec
	id, _ := m.AddStream(&stubProvider{frames: frames},
		StreamConfig{Width: 8, Height: 8, FrameRate: Fraction{10, 1}})
	m.SetSegmentOrigin(id, 1000*msec)

	if err := m.MixOnce(); err != nil {
		t.Fatalf("MixOnce: %v", err)
	}
	if got := sink.frames[0].Timestamp; got != 500*msec {
		t.Errorf("output timestamp = %d, want %d", got, 500*msec)
	}
}
