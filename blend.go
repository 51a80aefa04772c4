package mixer

// Background selects how the canvas is initialized before streams are
// composited onto it.
type Background int

const (
	BackgroundChecker     Background = iota // Checker pattern
	BackgroundBlack                         // Solid black
	BackgroundWhite                         // Solid white
	BackgroundTransparent                   // Zero fill, for further mixing
)

func (b Background) String() string {
	switch b {
	case BackgroundChecker:
		return "Checker"
	case BackgroundBlack:
		return "Black"
	case BackgroundWhite:
		return "White"
	case BackgroundTransparent:
		return "Transparent"
	default:
		return "Unknown"
	}
}

// checkerBlock is the side of one checker square in luma pixels.
const checkerBlock = 8

// Blend composites src over dst at (xpos, ypos) with a global opacity in
// [0, 1]. The overlapping rectangle is computed first; sources placed fully
// or partially off-canvas are clipped silently. For formats with a per-pixel
// alpha channel the source alpha is multiplied into the opacity.
func Blend(dst, src *VideoFrame, xpos, ypos int, alpha float64) {
	fi := src.Format.info()
	if fi == nil {
		return
	}
	ga := clampAlpha(alpha)
	if ga == 0 {
		return
	}

	switch fi.family {
	case famPacked:
		sx, sy, dx, dy, w, h := clipRect(xpos, ypos, src.Width, src.Height, dst.Width, dst.Height)
		if w <= 0 || h <= 0 {
			return
		}
		if fi.alphaOff >= 0 {
			blendPackedAlpha(dst, src, sx, sy, dx, dy, w, h, fi.bpp, fi.alphaOff, ga)
		} else {
			blendRows(dst, src, 0, sx*fi.bpp, sy, dx*fi.bpp, dy, w*fi.bpp, h, ga)
		}
	case famPlanar:
		for p := 0; p < fi.planes; p++ {
			hs, vs := fi.hShift[p], fi.vShift[p]
			sx, sy, dx, dy, w, h := clipRect(xpos>>hs, ypos>>vs,
				src.Format.PlaneWidth(p, src.Width), src.Format.PlaneHeight(p, src.Height),
				dst.Format.PlaneWidth(p, dst.Width), dst.Format.PlaneHeight(p, dst.Height))
			if w <= 0 || h <= 0 {
				continue
			}
			blendRows(dst, src, p, sx, sy, dx, dy, w, h, ga)
		}
	case famPacked422:
		// Work in whole macropixels; positions snap down to even x.
		sx, sy, dx, dy, w, h := clipRect((xpos&^1)/2, ypos, (src.Width+1)/2, src.Height,
			(dst.Width+1)/2, dst.Height)
		if w <= 0 || h <= 0 {
			return
		}
		blendRows(dst, src, 0, sx*4, sy, dx*4, dy, w*4, h, ga)
	case famGray8:
		sx, sy, dx, dy, w, h := clipRect(xpos, ypos, src.Width, src.Height, dst.Width, dst.Height)
		if w <= 0 || h <= 0 {
			return
		}
		blendRows(dst, src, 0, sx, sy, dx, dy, w, h, ga)
	case famGray16:
		sx, sy, dx, dy, w, h := clipRect(xpos, ypos, src.Width, src.Height, dst.Width, dst.Height)
		if w <= 0 || h <= 0 {
			return
		}
		blendGray16(dst, src, sx, sy, dx, dy, w, h, ga)
	case famRGB16:
		sx, sy, dx, dy, w, h := clipRect(xpos, ypos, src.Width, src.Height, dst.Width, dst.Height)
		if w <= 0 || h <= 0 {
			return
		}
		blendRGB16(dst, src, sx, sy, dx, dy, w, h, ga, src.Format == FormatRGB565)
	}
}

// Overlay composites src over dst accumulating alpha associatively, so that
// the result can itself be overlaid onto a further transparent canvas
// without double-counting transparency. A resulting alpha of zero yields a
// fully transparent black pixel. Formats without an alpha channel fall back
// to Blend.
func Overlay(dst, src *VideoFrame, xpos, ypos int, alpha float64) {
	fi := src.Format.info()
	if fi == nil {
		return
	}
	if fi.family != famPacked || fi.alphaOff < 0 {
		Blend(dst, src, xpos, ypos, alpha)
		return
	}
	ga := clampAlpha(alpha)
	sx, sy, dx, dy, w, h := clipRect(xpos, ypos, src.Width, src.Height, dst.Width, dst.Height)
	if w <= 0 || h <= 0 {
		return
	}

	bpp, ao := fi.bpp, fi.alphaOff
	for row := 0; row < h; row++ {
		s := src.Data[0][(sy+row)*src.Stride[0]+sx*bpp:]
		d := dst.Data[0][(dy+row)*dst.Stride[0]+dx*bpp:]
		for i := 0; i < w*bpp; i += bpp {
			as := int(s[i+ao]) * ga / 255
			ad := int(d[i+ao]) * (255 - as) / 255
			ao2 := as + ad
			if ao2 == 0 {
				for c := 0; c < bpp; c++ {
					d[i+c] = 0
				}
				continue
			}
			for c := 0; c < bpp; c++ {
				if c == ao {
					continue
				}
				d[i+c] = byte((int(s[i+c])*as + int(d[i+c])*ad) / ao2)
			}
			d[i+ao] = byte(ao2)
		}
	}
}

// Fill initializes a canvas with the given background. Transparent zero
// fills every plane, which is the identity element of Overlay.
func Fill(dst *VideoFrame, bg Background) {
	fi := dst.Format.info()
	if fi == nil {
		return
	}
	switch bg {
	case BackgroundChecker:
		fillChecker(dst, fi)
	case BackgroundBlack:
		fillPattern(dst, fi, &fi.black)
	case BackgroundWhite:
		fillPattern(dst, fi, &fi.white)
	case BackgroundTransparent:
		for _, p := range dst.Data {
			for i := range p {
				p[i] = 0
			}
		}
	}
}

func clampAlpha(alpha float64) int {
	if alpha <= 0 {
		return 0
	}
	if alpha >= 1 {
		return 255
	}
	return int(alpha*255 + 0.5)
}

// clipRect intersects a src rectangle placed at (xpos, ypos) with the dst
// bounds. Returned offsets are in samples of the respective plane.
func clipRect(xpos, ypos, sw, sh, dw, dh int) (sx, sy, dx, dy, w, h int) {
	sx, sy = 0, 0
	dx, dy = xpos, ypos
	w, h = sw, sh
	if dx < 0 {
		sx -= dx
		w += dx
		dx = 0
	}
	if dy < 0 {
		sy -= dy
		h += dy
		dy = 0
	}
	if dx+w > dw {
		w = dw - dx
	}
	if dy+h > dh {
		h = dh - dy
	}
	return sx, sy, dx, dy, w, h
}

// blendRows linearly interpolates n bytes per row with a constant alpha.
// Byte meaning is irrelevant to the math, so this serves packed-without-
// alpha, planar, packed 4:2:2 and 8-bit gray layouts alike.
func blendRows(dst, src *VideoFrame, p, sx, sy, dx, dy, n, h, ga int) {
	for row := 0; row < h; row++ {
		s := src.Data[p][(sy+row)*src.Stride[p]+sx:]
		d := dst.Data[p][(dy+row)*dst.Stride[p]+dx:]
		if ga == 255 {
			copy(d[:n], s[:n])
			continue
		}
		for i := 0; i < n; i++ {
			d[i] = byte(int(d[i]) + (int(s[i])-int(d[i]))*ga/255)
		}
	}
}

func blendPackedAlpha(dst, src *VideoFrame, sx, sy, dx, dy, w, h, bpp, ao, ga int) {
	for row := 0; row < h; row++ {
		s := src.Data[0][(sy+row)*src.Stride[0]+sx*bpp:]
		d := dst.Data[0][(dy+row)*dst.Stride[0]+dx*bpp:]
		for i := 0; i < w*bpp; i += bpp {
			a := int(s[i+ao]) * ga / 255
			if a == 0 {
				continue
			}
			for c := 0; c < bpp; c++ {
				d[i+c] = byte(int(d[i+c]) + (int(s[i+c])-int(d[i+c]))*a/255)
			}
		}
	}
}

func blendGray16(dst, src *VideoFrame, sx, sy, dx, dy, w, h, ga int) {
	for row := 0; row < h; row++ {
		s := src.Data[0][(sy+row)*src.Stride[0]+sx*2:]
		d := dst.Data[0][(dy+row)*dst.Stride[0]+dx*2:]
		for i := 0; i < w*2; i += 2 {
			sv := int(s[i]) | int(s[i+1])<<8
			dv := int(d[i]) | int(d[i+1])<<8
			dv += (sv - dv) * ga / 255
			d[i] = byte(dv)
			d[i+1] = byte(dv >> 8)
		}
	}
}

func blendRGB16(dst, src *VideoFrame, sx, sy, dx, dy, w, h, ga int, is565 bool) {
	for row := 0; row < h; row++ {
		s := src.Data[0][(sy+row)*src.Stride[0]+sx*2:]
		d := dst.Data[0][(dy+row)*dst.Stride[0]+dx*2:]
		for i := 0; i < w*2; i += 2 {
			sv := uint16(s[i]) | uint16(s[i+1])<<8
			dv := uint16(d[i]) | uint16(d[i+1])<<8
			var sr, sg, sb, dr, dg, db byte
			if is565 {
				sr, sg, sb = unpack565(sv)
				dr, dg, db = unpack565(dv)
			} else {
				sr, sg, sb = unpack555(sv)
				dr, dg, db = unpack555(dv)
			}
			dr = byte(int(dr) + (int(sr)-int(dr))*ga/255)
			dg = byte(int(dg) + (int(sg)-int(dg))*ga/255)
			db = byte(int(db) + (int(sb)-int(db))*ga/255)
			var out uint16
			if is565 {
				out = pack565(dr, dg, db)
			} else {
				out = pack555(dr, dg, db)
			}
			d[i] = byte(out)
			d[i+1] = byte(out >> 8)
		}
	}
}

func fillChecker(dst *VideoFrame, fi *formatInfo) {
	switch fi.family {
	case famPacked:
		bpp := fi.bpp
		for y := 0; y < dst.Height; y++ {
			row := dst.Data[0][y*dst.Stride[0]:]
			for x := 0; x < dst.Width; x++ {
				pat := &fi.checkerD
				if (x/checkerBlock+y/checkerBlock)&1 == 1 {
					pat = &fi.checkerL
				}
				copy(row[x*bpp:(x+1)*bpp], pat[:bpp])
			}
		}
	case famPlanar:
		for p := 0; p < fi.planes; p++ {
			v := dst.plane(p)
			// Chroma planes of both tones are identical; only luma checkers.
			if fi.checkerD[p] == fi.checkerL[p] {
				fillPlane(v, fi.checkerD[p])
				continue
			}
			bw := checkerBlock >> fi.hShift[p]
			bh := checkerBlock >> fi.vShift[p]
			for y := 0; y < v.Height; y++ {
				row := v.Pixels[y*v.Stride:]
				for x := 0; x < v.Width; x++ {
					if (x/bw+y/bh)&1 == 1 {
						row[x] = fi.checkerL[p]
					} else {
						row[x] = fi.checkerD[p]
					}
				}
			}
		}
	case famPacked422:
		mw := (dst.Width + 1) / 2
		for y := 0; y < dst.Height; y++ {
			row := dst.Data[0][y*dst.Stride[0]:]
			for mx := 0; mx < mw; mx++ {
				pat := &fi.checkerD
				if (mx*2/checkerBlock+y/checkerBlock)&1 == 1 {
					pat = &fi.checkerL
				}
				copy(row[mx*4:mx*4+4], pat[:4])
			}
		}
	case famGray8:
		for y := 0; y < dst.Height; y++ {
			row := dst.Data[0][y*dst.Stride[0]:]
			for x := 0; x < dst.Width; x++ {
				if (x/checkerBlock+y/checkerBlock)&1 == 1 {
					row[x] = fi.checkerL[0]
				} else {
					row[x] = fi.checkerD[0]
				}
			}
		}
	case famGray16, famRGB16:
		for y := 0; y < dst.Height; y++ {
			row := dst.Data[0][y*dst.Stride[0]:]
			for x := 0; x < dst.Width; x++ {
				pat := &fi.checkerD
				if (x/checkerBlock+y/checkerBlock)&1 == 1 {
					pat = &fi.checkerL
				}
				row[x*2] = pat[0]
				row[x*2+1] = pat[1]
			}
		}
	}
}

func fillPattern(dst *VideoFrame, fi *formatInfo, pat *[4]byte) {
	switch fi.family {
	case famPacked:
		fillRepeat(dst.plane(0), pat[:fi.bpp], fi.bpp)
	case famPlanar:
		for p := 0; p < fi.planes; p++ {
			fillPlane(dst.plane(p), pat[p])
		}
	case famPacked422:
		v := dst.plane(0)
		v.Width = (dst.Width + 1) / 2
		fillRepeat(v, pat[:4], 4)
	case famGray8:
		fillPlane(dst.plane(0), pat[0])
	case famGray16, famRGB16:
		fillRepeat(dst.plane(0), pat[:2], 2)
	}
}

func fillPlane(v ImageView, val byte) {
	for y := 0; y < v.Height; y++ {
		row := v.Pixels[y*v.Stride : y*v.Stride+v.Width]
		for i := range row {
			row[i] = val
		}
	}
}

func fillRepeat(v ImageView, pat []byte, unit int) {
	for y := 0; y < v.Height; y++ {
		row := v.Pixels[y*v.Stride : y*v.Stride+v.Width*unit]
		for x := 0; x < len(row); x += unit {
			copy(row[x:x+unit], pat)
		}
	}
}
