// Package mixer composites multiple raw video streams into one.
//
// Key pieces include:
//   - Mixer: N-input compositor with per-stream position, size, opacity
//     and stacking order
//   - Blend/Overlay/Fill: per-format software compositing primitives
//   - Resample: nearest, bilinear and 4-tap scaling between arbitrary sizes
//   - PatternSource and Pipeline: synthetic inputs and a runner that feeds
//     sources into a mixer
//
// # Architecture
//
//	FrameProvider (per stream) -> Mixer (sync, scale, blend) -> Output
//
// Each attached stream supplies timestamped frames through a non-blocking
// FrameProvider. The mixer derives the output geometry and framerate from
// the attached streams, holds or advances each stream's current frame so
// that all inputs line up on the output clock, paints a background, and
// composites the streams in z-order onto a canvas allocated by the Output.
//
// All inputs and the output share one pixel format, chosen at
// construction. Twenty-odd packed, planar and subsampled layouts are
// supported; see PixelFormat.
//
// # Timing
//
// Timestamps and durations are int64 nanoseconds, NoTimestamp marking
// unknown. The fastest input is the master: its frames set the output
// timestamps, and downstream deadline feedback (UpdateQoS) can drop
// late output frames without stalling the inputs.
package mixer
