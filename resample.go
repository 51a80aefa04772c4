package mixer

import "sync"

// ScaleMethod selects the resampling filter used when a stream's placed
// size differs from its native size.
type ScaleMethod int

const (
	ScaleNearest  ScaleMethod = iota // Nearest neighbour
	ScaleBilinear                    // 2-tap linear interpolation
	ScaleFourTap                     // 4-tap cubic interpolation
)

func (m ScaleMethod) String() string {
	switch m {
	case ScaleNearest:
		return "Nearest"
	case ScaleBilinear:
		return "Bilinear"
	case ScaleFourTap:
		return "FourTap"
	default:
		return "Unknown"
	}
}

// ImageView is a rectangular region descriptor over one plane: raw bytes, a
// row stride and a logical sample geometry. Planar formats get one view per
// plane with plane-specific subsampling.
type ImageView struct {
	Pixels []byte
	Stride int
	Width  int
	Height int
}

// ScratchSize returns the scratch buffer size required to resample images
// whose largest source or destination dimension is maxDim. The buffer is
// owned by the caller and reused across frames.
func ScratchSize(maxDim int) int { return maxDim * 8 * 4 }

// Resample scales src into dst. Both frames must share a pixel format.
// Degenerate sources force a filter downgrade: a native width of 1 always
// uses Nearest, and FourTap needs at least 4 samples on each axis or it
// falls back to Bilinear. tmp is the caller-owned scratch buffer, sized by
// ScratchSize.
func Resample(dst, src *VideoFrame, method ScaleMethod, tmp []byte) error {
	fi := src.Format.info()
	if fi == nil || dst.Format != src.Format {
		return &FormatError{Format: src.Format, Method: method,
			Width: src.Width, Height: src.Height, Op: "resample"}
	}

	if src.Width == 1 {
		method = ScaleNearest
	}
	if method == ScaleFourTap && (src.Width < 4 || src.Height < 4) {
		method = ScaleBilinear
	}

	switch fi.family {
	case famPacked:
		scalePlane(dst.plane(0), src.plane(0), fi.bpp, method, tmp)
	case famPlanar:
		for p := 0; p < fi.planes; p++ {
			scalePlane(dst.plane(p), src.plane(p), 1, method, tmp)
		}
	case famPacked422:
		// Whole macropixels: chroma siting moves with its two luma samples.
		d, s := dst.plane(0), src.plane(0)
		d.Width = (dst.Width + 1) / 2
		s.Width = (src.Width + 1) / 2
		scalePlane(d, s, 4, method, tmp)
	case famGray8:
		scalePlane(dst.plane(0), src.plane(0), 1, method, tmp)
	case famGray16:
		scaleSample16(dst.plane(0), src.plane(0), method, unpackGray16, packGray16)
	case famRGB16:
		if src.Format == FormatRGB565 {
			scaleSample16(dst.plane(0), src.plane(0), method, unpackSample565, packSample565)
		} else {
			scaleSample16(dst.plane(0), src.plane(0), method, unpackSample555, packSample555)
		}
	default:
		return &FormatError{Format: src.Format, Method: method,
			Width: src.Width, Height: src.Height, Op: "resample"}
	}
	return nil
}

// scalePlane scales one plane of byte-sized channels. bpp is the number of
// interleaved channels per sample.
func scalePlane(dst, src ImageView, bpp int, method ScaleMethod, tmp []byte) {
	if dst.Width <= 0 || dst.Height <= 0 || src.Width <= 0 || src.Height <= 0 {
		return
	}
	switch method {
	case ScaleNearest:
		scaleNearest(dst, src, bpp)
	case ScaleBilinear:
		scaleBilinear(dst, src, bpp)
	case ScaleFourTap:
		scaleFourTap(dst, src, bpp, tmp)
	}
}

func scaleNearest(dst, src ImageView, bpp int) {
	xRatio := (src.Width << 16) / dst.Width
	yRatio := (src.Height << 16) / dst.Height
	for y := 0; y < dst.Height; y++ {
		sy := (y * yRatio) >> 16
		srow := src.Pixels[sy*src.Stride:]
		drow := dst.Pixels[y*dst.Stride:]
		for x := 0; x < dst.Width; x++ {
			sx := (x * xRatio) >> 16
			copy(drow[x*bpp:(x+1)*bpp], srow[sx*bpp:(sx+1)*bpp])
		}
	}
}

// scaleBilinear interpolates in 16.16 fixed point. Edge samples clamp to
// the last valid source row and column.
func scaleBilinear(dst, src ImageView, bpp int) {
	xRatio := (src.Width << 16) / dst.Width
	yRatio := (src.Height << 16) / dst.Height

	for y := 0; y < dst.Height; y++ {
		syFP := y * yRatio
		y0 := syFP >> 16
		yw := syFP & 0xffff
		y1 := y0 + 1
		if y1 >= src.Height {
			y1 = y0
		}
		row0 := src.Pixels[y0*src.Stride:]
		row1 := src.Pixels[y1*src.Stride:]
		drow := dst.Pixels[y*dst.Stride:]

		for x := 0; x < dst.Width; x++ {
			sxFP := x * xRatio
			x0 := sxFP >> 16
			xw := sxFP & 0xffff
			x1 := x0 + 1
			if x1 >= src.Width {
				x1 = x0
			}
			for c := 0; c < bpp; c++ {
				p00 := int(row0[x0*bpp+c])
				p10 := int(row0[x1*bpp+c])
				p01 := int(row1[x0*bpp+c])
				p11 := int(row1[x1*bpp+c])
				top := (p00*(0x10000-xw) + p10*xw) >> 16
				bottom := (p01*(0x10000-xw) + p11*xw) >> 16
				drow[x*bpp+c] = byte((top*(0x10000-yw) + bottom*yw) >> 16)
			}
		}
	}
}

// Cubic (Catmull-Rom) tap table, 256 phases of 4 weights scaled so each row
// sums to exactly 256. Phase 0 is (0, 256, 0, 0), keeping identity scaling
// bit-exact.
var (
	fourTapTable [256][4]int
	fourTapOnce  sync.Once
)

func fourTapInit() {
	for i := 0; i < 256; i++ {
		t := float64(i) / 256
		w := [4]float64{
			-0.5*t*t*t + t*t - 0.5*t,
			1.5*t*t*t - 2.5*t*t + 1,
			-1.5*t*t*t + 2*t*t + 0.5*t,
			0.5*t*t*t - 0.5*t*t,
		}
		sum := 0
		for j := 0; j < 4; j++ {
			fourTapTable[i][j] = int(w[j]*256 + 0.5)
			sum += fourTapTable[i][j]
		}
		fourTapTable[i][1] += 256 - sum
	}
}

// scaleFourTap is a separable 4-tap scaler. The horizontal pass writes
// scaled source rows into a four-row ring inside tmp; the vertical pass
// combines them. Row slots are keyed by source row index modulo 4, which is
// collision-free because the four rows a destination row needs are
// consecutive.
func scaleFourTap(dst, src ImageView, bpp int, tmp []byte) {
	fourTapOnce.Do(fourTapInit)

	rowBytes := dst.Width * bpp
	if len(tmp) < 4*rowBytes {
		tmp = make([]byte, 4*rowBytes)
	}
	yRatio := (src.Height << 16) / dst.Height
	cached := [4]int{-1, -1, -1, -1}

	getRow := func(sy int) []byte {
		if sy < 0 {
			sy = 0
		} else if sy >= src.Height {
			sy = src.Height - 1
		}
		slot := sy & 3
		out := tmp[slot*rowBytes : (slot+1)*rowBytes]
		if cached[slot] != sy {
			hscaleFourTap(out, src, sy, dst.Width, bpp)
			cached[slot] = sy
		}
		return out
	}

	for y := 0; y < dst.Height; y++ {
		syFP := y * yRatio
		yi := syFP >> 16
		phase := (syFP >> 8) & 0xff
		taps := &fourTapTable[phase]
		r0 := getRow(yi - 1)
		r1 := getRow(yi)
		r2 := getRow(yi + 1)
		r3 := getRow(yi + 2)
		drow := dst.Pixels[y*dst.Stride : y*dst.Stride+rowBytes]
		for i := 0; i < rowBytes; i++ {
			v := (int(r0[i])*taps[0] + int(r1[i])*taps[1] +
				int(r2[i])*taps[2] + int(r3[i])*taps[3]) >> 8
			drow[i] = clampByte(v)
		}
	}
}

func hscaleFourTap(out []byte, src ImageView, sy, dstWidth, bpp int) {
	xRatio := (src.Width << 16) / dstWidth
	srow := src.Pixels[sy*src.Stride:]
	for x := 0; x < dstWidth; x++ {
		sxFP := x * xRatio
		xi := sxFP >> 16
		phase := (sxFP >> 8) & 0xff
		taps := &fourTapTable[phase]
		for c := 0; c < bpp; c++ {
			v := 0
			for j := 0; j < 4; j++ {
				sx := xi - 1 + j
				if sx < 0 {
					sx = 0
				} else if sx >= src.Width {
					sx = src.Width - 1
				}
				v += int(srow[sx*bpp+c]) * taps[j]
			}
			out[x*bpp+c] = clampByte(v >> 8)
		}
	}
}

// scaleSample16 handles layouts whose pixel is a single 16-bit word
// (grayscale and packed RGB). Channels are unpacked before interpolation;
// interpolating the packed word byte-wise would bleed between bit fields.
func scaleSample16(dst, src ImageView, method ScaleMethod,
	unpack func(lo, hi byte) (int, int, int), pack func(c0, c1, c2 int) (byte, byte)) {

	if dst.Width <= 0 || dst.Height <= 0 || src.Width <= 0 || src.Height <= 0 {
		return
	}
	if method == ScaleNearest {
		scaleNearest(dst, src, 2)
		return
	}
	fourTapOnce.Do(fourTapInit)

	xRatio := (src.Width << 16) / dst.Width
	yRatio := (src.Height << 16) / dst.Height

	at := func(sx, sy int) (int, int, int) {
		if sx < 0 {
			sx = 0
		} else if sx >= src.Width {
			sx = src.Width - 1
		}
		if sy < 0 {
			sy = 0
		} else if sy >= src.Height {
			sy = src.Height - 1
		}
		off := sy*src.Stride + sx*2
		return unpack(src.Pixels[off], src.Pixels[off+1])
	}

	for y := 0; y < dst.Height; y++ {
		syFP := y * yRatio
		yi := syFP >> 16
		drow := dst.Pixels[y*dst.Stride:]
		for x := 0; x < dst.Width; x++ {
			sxFP := x * xRatio
			xi := sxFP >> 16
			var c0, c1, c2 int
			if method == ScaleBilinear {
				xw := sxFP & 0xffff
				yw := syFP & 0xffff
				a0, a1, a2 := at(xi, yi)
				b0, b1, b2 := at(xi+1, yi)
				d0, d1, d2 := at(xi, yi+1)
				e0, e1, e2 := at(xi+1, yi+1)
				lerp2 := func(p00, p10, p01, p11 int) int {
					top := (p00*(0x10000-xw) + p10*xw) >> 16
					bottom := (p01*(0x10000-xw) + p11*xw) >> 16
					return (top*(0x10000-yw) + bottom*yw) >> 16
				}
				c0 = lerp2(a0, b0, d0, e0)
				c1 = lerp2(a1, b1, d1, e1)
				c2 = lerp2(a2, b2, d2, e2)
			} else {
				hx := &fourTapTable[(sxFP>>8)&0xff]
				hy := &fourTapTable[(syFP>>8)&0xff]
				for j := 0; j < 4; j++ {
					for k := 0; k < 4; k++ {
						w := hy[j] * hx[k]
						p0, p1, p2 := at(xi-1+k, yi-1+j)
						c0 += p0 * w
						c1 += p1 * w
						c2 += p2 * w
					}
				}
				c0 >>= 16
				c1 >>= 16
				c2 >>= 16
			}
			lo, hi := pack(c0, c1, c2)
			drow[x*2] = lo
			drow[x*2+1] = hi
		}
	}
}

func unpackGray16(lo, hi byte) (int, int, int) { return int(lo) | int(hi)<<8, 0, 0 }

func packGray16(c0, _, _ int) (byte, byte) {
	if c0 < 0 {
		c0 = 0
	} else if c0 > 0xffff {
		c0 = 0xffff
	}
	return byte(c0), byte(c0 >> 8)
}

func unpackSample565(lo, hi byte) (int, int, int) {
	r, g, b := unpack565(uint16(lo) | uint16(hi)<<8)
	return int(r), int(g), int(b)
}

func packSample565(c0, c1, c2 int) (byte, byte) {
	v := pack565(clampByte(c0), clampByte(c1), clampByte(c2))
	return byte(v), byte(v >> 8)
}

func unpackSample555(lo, hi byte) (int, int, int) {
	r, g, b := unpack555(uint16(lo) | uint16(hi)<<8)
	return int(r), int(g), int(b)
}

func packSample555(c0, c1, c2 int) (byte, byte) {
	v := pack555(clampByte(c0), clampByte(c1), clampByte(c2))
	return byte(v), byte(v >> 8)
}

func clampByte(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

