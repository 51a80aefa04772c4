package mixer

// recomputeGeometry re-derives the output geometry from the attached
// streams. The biggest input geometry becomes the output geometry, each
// axis maximized independently. The fastest framerate wins, compared by
// 64-bit cross multiplication; the stream it belongs to becomes the master
// and its pixel aspect is adopted. Any change flags a downstream
// renegotiation, a timeline resend and a QoS reset.
//
// Callers hold the state lock. With no streams attached every field is
// zeroed and the mixer refuses to run a cycle.
func (m *Mixer) recomputeGeometry() {
	var master *Stream
	width, height := 0, 0
	var fps, par Fraction

	for _, st := range m.streams {
		if st.nativeW > width {
			width = st.nativeW
		}
		if st.nativeH > height {
			height = st.nativeH
		}
		if fps.IsZero() || fps.Less(st.fps) {
			fps = st.fps
			par = st.par
			master = st
		}
	}

	if m.master != master || m.outWidth != width || m.outHeight != height ||
		m.fps != fps || m.par != par {
		m.master = master
		m.outWidth = width
		m.outHeight = height
		m.fps = fps
		m.par = par
		m.needsNegotiate = true
		m.sendTimeline = true
		m.qos.reset()
	}
}
