package mixer

import "errors"

// fillQueues tries to get a pending frame onto every stream that has none.
// A provider returning (nil, nil) leaves the stream empty; slower streams
// are not an error. A frame without a duration gets one derived from the
// stream framerate; with no framerate either, the stream's queued duration
// becomes infinite and the frame is held forever (a still image).
//
// Returns ready when every non-ended stream either has a frame or holds an
// infinite queue, and eos when every stream has ended with nothing pending.
//
// Callers hold the state lock.
func (m *Mixer) fillQueues() (ready, eos bool) {
	ready, eos = true, true
	for _, st := range m.streams {
		if st.pending == nil && !st.eos {
			frame, err := st.provider.PullFrame()
			switch {
			case errors.Is(err, ErrEndOfStream):
				st.eos = true
			case err != nil:
				// Transient provider failure, same as no frame yet.
			case frame != nil:
				st.pending = frame
				dur := frame.Duration
				if dur <= 0 {
					dur = st.fps.FrameDuration()
				}
				if dur != NoTimestamp {
					st.queued += dur
				} else if st.queued == 0 {
					st.queuedInfinite = true
				}
			}
		}
		if st.eos && st.pending == nil {
			continue
		}
		eos = false
		if st.pending == nil && !st.queuedInfinite {
			ready = false
		}
	}
	return ready, eos
}

// updateQueues charges one output interval against every stream's queued
// duration after a cycle. The interval is the master's queued duration
// when positive, else one output frame, else effectively forever. A stream
// whose queue runs out releases its pending frame and goes back to empty;
// this is how a fast stream holds a frame across several output ticks
// while a slow one is force-advanced. A frame already removed by an
// external flush drains as a no-op.
//
// Callers hold the state lock.
func (m *Mixer) updateQueues() {
	interval := int64(0)
	if m.master != nil {
		interval = m.master.queued
	}
	if interval <= 0 {
		interval = m.fps.FrameDuration()
		if interval == NoTimestamp {
			interval = 1<<63 - 1
		}
	}

	for _, st := range m.streams {
		if st.pending == nil || st.queuedInfinite {
			continue
		}
		st.queued -= interval
		if st.queued <= 0 {
			st.pending = nil
		}
	}
}
