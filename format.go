package mixer

// PixelFormat identifies a raw video pixel layout. All streams attached to
// one Mixer must share the same format; it is fixed once the first
// downstream negotiation succeeds.
type PixelFormat int

const (
	FormatUnknown PixelFormat = iota

	// Packed 4-byte layouts with alpha.
	FormatAYUV
	FormatARGB
	FormatABGR
	FormatRGBA
	FormatBGRA

	// Packed 4-byte layouts with a padding byte instead of alpha.
	FormatXRGB
	FormatXBGR
	FormatRGBX
	FormatBGRX

	// Packed 3-byte layouts.
	FormatRGB
	FormatBGR

	// Planar YUV layouts (Y + U + V planes).
	FormatI420 // 4:2:0
	FormatYV12 // 4:2:0, V before U
	FormatY444 // 4:4:4
	FormatY42B // 4:2:2
	FormatY41B // 4:1:1

	// Packed 4:2:2 layouts (4 bytes per 2-pixel macropixel).
	FormatYUY2
	FormatUYVY
	FormatYVYU

	// Single-plane grayscale.
	FormatGray8
	FormatGray16 // little-endian

	// Packed 16-bit RGB.
	FormatRGB565
	FormatRGB555
)

type formatFamily int

const (
	famPacked formatFamily = iota // 3- or 4-byte packed, optional alpha
	famPlanar                     // per-plane 8-bit samples
	famPacked422                  // YUY2-style macropixels
	famGray8
	famGray16
	famRGB16 // RGB565 / RGB555
)

// formatInfo describes the memory layout of one pixel format. Blending,
// resampling and fills dispatch on this table instead of per-format
// functions.
type formatInfo struct {
	name   string
	family formatFamily
	planes int

	// famPacked only.
	bpp      int // bytes per pixel
	alphaOff int // byte offset of alpha, -1 if none

	// famPlanar only: per-plane subsampling shifts and the chroma channel
	// (0=Y 1=U 2=V) stored in each plane.
	hShift  [3]uint
	vShift  [3]uint
	channel [3]int

	// famPacked422 only: byte offsets inside a macropixel.
	y0, u, y1, v int

	// Background fill patterns. For packed families these are the first
	// bpp bytes of a pixel; for planar families index i is the value for
	// plane i; for 16-bit families the first two bytes hold the sample.
	black, white [4]byte
	// Checker tones, dark and light. Laid out like black/white.
	checkerD, checkerL [4]byte
}

var formatTable = map[PixelFormat]*formatInfo{
	FormatAYUV: {name: "AYUV", family: famPacked, planes: 1, bpp: 4, alphaOff: 0,
		black: [4]byte{255, 16, 128, 128}, white: [4]byte{255, 240, 128, 128},
		checkerD: [4]byte{255, 0x66, 128, 128}, checkerL: [4]byte{255, 0x99, 128, 128}},
	FormatARGB: {name: "ARGB", family: famPacked, planes: 1, bpp: 4, alphaOff: 0,
		black: [4]byte{255, 0, 0, 0}, white: [4]byte{255, 255, 255, 255},
		checkerD: [4]byte{255, 0x66, 0x66, 0x66}, checkerL: [4]byte{255, 0x99, 0x99, 0x99}},
	FormatABGR: {name: "ABGR", family: famPacked, planes: 1, bpp: 4, alphaOff: 0,
		black: [4]byte{255, 0, 0, 0}, white: [4]byte{255, 255, 255, 255},
		checkerD: [4]byte{255, 0x66, 0x66, 0x66}, checkerL: [4]byte{255, 0x99, 0x99, 0x99}},
	FormatRGBA: {name: "RGBA", family: famPacked, planes: 1, bpp: 4, alphaOff: 3,
		black: [4]byte{0, 0, 0, 255}, white: [4]byte{255, 255, 255, 255},
		checkerD: [4]byte{0x66, 0x66, 0x66, 255}, checkerL: [4]byte{0x99, 0x99, 0x99, 255}},
	FormatBGRA: {name: "BGRA", family: famPacked, planes: 1, bpp: 4, alphaOff: 3,
		black: [4]byte{0, 0, 0, 255}, white: [4]byte{255, 255, 255, 255},
		checkerD: [4]byte{0x66, 0x66, 0x66, 255}, checkerL: [4]byte{0x99, 0x99, 0x99, 255}},

	FormatXRGB: {name: "xRGB", family: famPacked, planes: 1, bpp: 4, alphaOff: -1,
		black: [4]byte{255, 0, 0, 0}, white: [4]byte{255, 255, 255, 255},
		checkerD: [4]byte{255, 0x66, 0x66, 0x66}, checkerL: [4]byte{255, 0x99, 0x99, 0x99}},
	FormatXBGR: {name: "xBGR", family: famPacked, planes: 1, bpp: 4, alphaOff: -1,
		black: [4]byte{255, 0, 0, 0}, white: [4]byte{255, 255, 255, 255},
		checkerD: [4]byte{255, 0x66, 0x66, 0x66}, checkerL: [4]byte{255, 0x99, 0x99, 0x99}},
	FormatRGBX: {name: "RGBx", family: famPacked, planes: 1, bpp: 4, alphaOff: -1,
		black: [4]byte{0, 0, 0, 255}, white: [4]byte{255, 255, 255, 255},
		checkerD: [4]byte{0x66, 0x66, 0x66, 255}, checkerL: [4]byte{0x99, 0x99, 0x99, 255}},
	FormatBGRX: {name: "BGRx", family: famPacked, planes: 1, bpp: 4, alphaOff: -1,
		black: [4]byte{0, 0, 0, 255}, white: [4]byte{255, 255, 255, 255},
		checkerD: [4]byte{0x66, 0x66, 0x66, 255}, checkerL: [4]byte{0x99, 0x99, 0x99, 255}},

	FormatRGB: {name: "RGB", family: famPacked, planes: 1, bpp: 3, alphaOff: -1,
		black: [4]byte{0, 0, 0}, white: [4]byte{255, 255, 255},
		checkerD: [4]byte{0x66, 0x66, 0x66}, checkerL: [4]byte{0x99, 0x99, 0x99}},
	FormatBGR: {name: "BGR", family: famPacked, planes: 1, bpp: 3, alphaOff: -1,
		black: [4]byte{0, 0, 0}, white: [4]byte{255, 255, 255},
		checkerD: [4]byte{0x66, 0x66, 0x66}, checkerL: [4]byte{0x99, 0x99, 0x99}},

	FormatI420: {name: "I420", family: famPlanar, planes: 3,
		hShift: [3]uint{0, 1, 1}, vShift: [3]uint{0, 1, 1}, channel: [3]int{0, 1, 2},
		black: [4]byte{16, 128, 128}, white: [4]byte{240, 128, 128},
		checkerD: [4]byte{0x66, 128, 128}, checkerL: [4]byte{0x99, 128, 128}},
	FormatYV12: {name: "YV12", family: famPlanar, planes: 3,
		hShift: [3]uint{0, 1, 1}, vShift: [3]uint{0, 1, 1}, channel: [3]int{0, 2, 1},
		black: [4]byte{16, 128, 128}, white: [4]byte{240, 128, 128},
		checkerD: [4]byte{0x66, 128, 128}, checkerL: [4]byte{0x99, 128, 128}},
	FormatY444: {name: "Y444", family: famPlanar, planes: 3,
		hShift: [3]uint{0, 0, 0}, vShift: [3]uint{0, 0, 0}, channel: [3]int{0, 1, 2},
		black: [4]byte{16, 128, 128}, white: [4]byte{240, 128, 128},
		checkerD: [4]byte{0x66, 128, 128}, checkerL: [4]byte{0x99, 128, 128}},
	FormatY42B: {name: "Y42B", family: famPlanar, planes: 3,
		hShift: [3]uint{0, 1, 1}, vShift: [3]uint{0, 0, 0}, channel: [3]int{0, 1, 2},
		black: [4]byte{16, 128, 128}, white: [4]byte{240, 128, 128},
		checkerD: [4]byte{0x66, 128, 128}, checkerL: [4]byte{0x99, 128, 128}},
	FormatY41B: {name: "Y41B", family: famPlanar, planes: 3,
		hShift: [3]uint{0, 2, 2}, vShift: [3]uint{0, 0, 0}, channel: [3]int{0, 1, 2},
		black: [4]byte{16, 128, 128}, white: [4]byte{240, 128, 128},
		checkerD: [4]byte{0x66, 128, 128}, checkerL: [4]byte{0x99, 128, 128}},

	FormatYUY2: {name: "YUY2", family: famPacked422, planes: 1,
		y0: 0, u: 1, y1: 2, v: 3,
		black: [4]byte{16, 128, 16, 128}, white: [4]byte{240, 128, 240, 128},
		checkerD: [4]byte{0x66, 128, 0x66, 128}, checkerL: [4]byte{0x99, 128, 0x99, 128}},
	FormatUYVY: {name: "UYVY", family: famPacked422, planes: 1,
		u: 0, y0: 1, v: 2, y1: 3,
		black: [4]byte{128, 16, 128, 16}, white: [4]byte{128, 240, 128, 240},
		checkerD: [4]byte{128, 0x66, 128, 0x66}, checkerL: [4]byte{128, 0x99, 128, 0x99}},
	FormatYVYU: {name: "YVYU", family: famPacked422, planes: 1,
		y0: 0, v: 1, y1: 2, u: 3,
		black: [4]byte{16, 128, 16, 128}, white: [4]byte{240, 128, 240, 128},
		checkerD: [4]byte{0x66, 128, 0x66, 128}, checkerL: [4]byte{0x99, 128, 0x99, 128}},

	FormatGray8: {name: "Gray8", family: famGray8, planes: 1,
		black: [4]byte{16}, white: [4]byte{240},
		checkerD: [4]byte{0x66}, checkerL: [4]byte{0x99}},
	FormatGray16: {name: "Gray16", family: famGray16, planes: 1,
		black: [4]byte{0x00, 0x10}, white: [4]byte{0x00, 0xf0},
		checkerD: [4]byte{0x00, 0x66}, checkerL: [4]byte{0x00, 0x99}},

	FormatRGB565: {name: "RGB565", family: famRGB16, planes: 1,
		black:    pack565bytes(0, 0, 0),
		white:    pack565bytes(255, 255, 255),
		checkerD: pack565bytes(0x66, 0x66, 0x66),
		checkerL: pack565bytes(0x99, 0x99, 0x99)},
	FormatRGB555: {name: "RGB555", family: famRGB16, planes: 1,
		black:    pack555bytes(0, 0, 0),
		white:    pack555bytes(255, 255, 255),
		checkerD: pack555bytes(0x66, 0x66, 0x66),
		checkerL: pack555bytes(0x99, 0x99, 0x99)},
}

func pack565bytes(r, g, b byte) [4]byte {
	v := pack565(r, g, b)
	return [4]byte{byte(v), byte(v >> 8)}
}

func pack555bytes(r, g, b byte) [4]byte {
	v := pack555(r, g, b)
	return [4]byte{byte(v), byte(v >> 8)}
}

func (f PixelFormat) String() string {
	if fi, ok := formatTable[f]; ok {
		return fi.name
	}
	return "Unknown"
}

func (f PixelFormat) info() *formatInfo { return formatTable[f] }

// Valid reports whether f is one of the supported layouts.
func (f PixelFormat) Valid() bool {
	_, ok := formatTable[f]
	return ok
}

// HasAlpha reports whether the format carries a per-pixel alpha channel.
func (f PixelFormat) HasAlpha() bool {
	fi := formatTable[f]
	return fi != nil && fi.family == famPacked && fi.alphaOff >= 0
}

// PlaneCount returns the number of planes for this pixel format.
func (f PixelFormat) PlaneCount() int {
	if fi, ok := formatTable[f]; ok {
		return fi.planes
	}
	return 0
}

// PlaneWidth returns the sample width of a plane for a frame width. Packed
// 4:2:2 widths are rounded up to a full macropixel.
func (f PixelFormat) PlaneWidth(plane, width int) int {
	fi := formatTable[f]
	if fi == nil {
		return 0
	}
	switch fi.family {
	case famPlanar:
		s := fi.hShift[plane]
		return (width + int(1<<s) - 1) >> s
	case famPacked422:
		return (width + 1) &^ 1
	default:
		return width
	}
}

// PlaneHeight returns the sample height of a plane for a frame height.
func (f PixelFormat) PlaneHeight(plane, height int) int {
	fi := formatTable[f]
	if fi == nil {
		return 0
	}
	if fi.family == famPlanar {
		s := fi.vShift[plane]
		return (height + int(1<<s) - 1) >> s
	}
	return height
}

// RowBytes returns the tightly packed stride of a plane.
func (f PixelFormat) RowBytes(plane, width int) int {
	fi := formatTable[f]
	if fi == nil {
		return 0
	}
	switch fi.family {
	case famPacked:
		return width * fi.bpp
	case famPlanar:
		return f.PlaneWidth(plane, width)
	case famPacked422:
		return f.PlaneWidth(0, width) * 2
	case famGray8:
		return width
	case famGray16, famRGB16:
		return width * 2
	default:
		return 0
	}
}

// FrameSize returns the total buffer size of a tightly packed frame.
func (f PixelFormat) FrameSize(width, height int) int {
	size := 0
	for p := 0; p < f.PlaneCount(); p++ {
		size += f.RowBytes(p, width) * f.PlaneHeight(p, height)
	}
	return size
}

func pack565(r, g, b byte) uint16 {
	return uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
}

func unpack565(v uint16) (r, g, b byte) {
	r = byte(v>>11) << 3
	g = byte(v>>5&0x3f) << 2
	b = byte(v&0x1f) << 3
	return r | r>>5, g | g>>6, b | b>>5
}

func pack555(r, g, b byte) uint16 {
	return uint16(r>>3)<<10 | uint16(g>>3)<<5 | uint16(b>>3)
}

func unpack555(v uint16) (r, g, b byte) {
	r = byte(v>>10&0x1f) << 3
	g = byte(v>>5&0x1f) << 3
	b = byte(v&0x1f) << 3
	return r | r>>5, g | g>>5, b | b>>5
}
