package mixer

// NoTimestamp marks an unknown timestamp or duration.
const NoTimestamp int64 = -1

// VideoFrame represents a raw video frame.
// The Data slices may point to externally owned memory. Callers must ensure
// the data remains valid for the lifetime of the frame.
type VideoFrame struct {
	Data      [][]byte    // Plane data (1-3 planes depending on format)
	Stride    []int       // Stride for each plane in bytes
	Width     int         // Frame width in pixels
	Height    int         // Frame height in pixels
	Format    PixelFormat // Pixel format
	Timestamp int64       // Presentation timestamp in nanoseconds, NoTimestamp if unknown
	Duration  int64       // Frame duration in nanoseconds, NoTimestamp if unknown
}

// NewVideoFrame allocates a tightly packed frame of the given geometry.
func NewVideoFrame(format PixelFormat, width, height int) *VideoFrame {
	planes := format.PlaneCount()
	f := &VideoFrame{
		Data:      make([][]byte, planes),
		Stride:    make([]int, planes),
		Width:     width,
		Height:    height,
		Format:    format,
		Timestamp: NoTimestamp,
		Duration:  NoTimestamp,
	}
	for p := 0; p < planes; p++ {
		f.Stride[p] = format.RowBytes(p, width)
		f.Data[p] = make([]byte, f.Stride[p]*format.PlaneHeight(p, height))
	}
	return f
}

// Clone creates a deep copy of the video frame.
// Use this when you need to keep the frame data beyond its original lifetime.
func (f *VideoFrame) Clone() *VideoFrame {
	clone := &VideoFrame{
		Data:      make([][]byte, len(f.Data)),
		Stride:    make([]int, len(f.Stride)),
		Width:     f.Width,
		Height:    f.Height,
		Format:    f.Format,
		Timestamp: f.Timestamp,
		Duration:  f.Duration,
	}
	copy(clone.Stride, f.Stride)
	for i, plane := range f.Data {
		if plane != nil {
			clone.Data[i] = make([]byte, len(plane))
			copy(clone.Data[i], plane)
		}
	}
	return clone
}

// plane returns an ImageView over one plane of the frame.
func (f *VideoFrame) plane(p int) ImageView {
	return ImageView{
		Pixels: f.Data[p],
		Stride: f.Stride[p],
		Width:  f.Format.PlaneWidth(p, f.Width),
		Height: f.Format.PlaneHeight(p, f.Height),
	}
}

// Fraction is a rational number, used for framerates and pixel aspect
// ratios. A zero denominator (or an all-zero Fraction) means "unset".
type Fraction struct {
	Num int
	Den int
}

// IsZero reports whether the fraction is unset.
func (fr Fraction) IsZero() bool { return fr.Num == 0 && fr.Den == 0 }

// Less compares two rates by 64-bit cross multiplication, avoiding floating
// point error.
func (fr Fraction) Less(other Fraction) bool {
	return int64(fr.Num)*int64(other.Den) < int64(other.Num)*int64(fr.Den)
}

// FrameDuration returns the duration of one frame at this rate in
// nanoseconds, or NoTimestamp when the rate is unset.
func (fr Fraction) FrameDuration() int64 {
	if fr.Num == 0 {
		return NoTimestamp
	}
	return int64(fr.Den) * 1e9 / int64(fr.Num)
}
