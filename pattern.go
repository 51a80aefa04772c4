package mixer

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// PatternType defines the type of test pattern to generate.
type PatternType int

const (
	PatternColorBars    PatternType = iota // SMPTE color bars
	PatternGradient                        // Horizontal gradient
	PatternCheckerboard                    // Checkerboard pattern
	PatternSolidColor                      // Solid color
	PatternMovingBox                       // Moving box (animated)
)

func (p PatternType) String() string {
	switch p {
	case PatternColorBars:
		return "ColorBars"
	case PatternGradient:
		return "Gradient"
	case PatternCheckerboard:
		return "Checkerboard"
	case PatternSolidColor:
		return "SolidColor"
	case PatternMovingBox:
		return "MovingBox"
	default:
		return "Unknown"
	}
}

// PatternConfig configures a test pattern source.
type PatternConfig struct {
	Width   int         // Frame width (default: 1280)
	Height  int         // Frame height (default: 720)
	FPS     Fraction    // Frames per second (default: 30/1)
	Format  PixelFormat // Pixel format (default: I420)
	Pattern PatternType // Pattern type (default: ColorBars)

	// FrameCount limits the stream length; 0 means unbounded.
	FrameCount int

	// For SolidColor pattern
	SolidR, SolidG, SolidB uint8

	// For Checkerboard pattern
	CheckerSize int // Size of each checker square (default: 32)
}

// DefaultPatternConfig returns a default pattern configuration.
func DefaultPatternConfig() PatternConfig {
	return PatternConfig{
		Width:       1280,
		Height:      720,
		FPS:         Fraction{30, 1},
		Format:      FormatI420,
		Pattern:     PatternColorBars,
		CheckerSize: 32,
	}
}

// PatternSource generates synthetic video frames with test patterns. It is
// a VideoSource; wrap it in a Pipeline or pull via ReadFrame. Every
// delivered frame owns its pixel data.
type PatternSource struct {
	config PatternConfig

	// Scratch frame the patterns paint into; deliveries are clones.
	scratch *VideoFrame

	frameDuration time.Duration
	frameCount    uint64

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	frameCh chan *VideoFrame
	doneCh  chan struct{}

	mu sync.Mutex
}

// NewPatternSource creates a new test pattern video source.
func NewPatternSource(config PatternConfig) (*PatternSource, error) {
	if config.Width <= 0 {
		config.Width = 1280
	}
	if config.Height <= 0 {
		config.Height = 720
	}
	if config.FPS.Num <= 0 || config.FPS.Den <= 0 {
		config.FPS = Fraction{30, 1}
	}
	if config.Format == FormatUnknown {
		config.Format = FormatI420
	}
	if config.CheckerSize <= 0 {
		config.CheckerSize = 32
	}
	if !config.Format.Valid() {
		return nil, &FormatError{Format: config.Format, Op: "pattern"}
	}

	s := &PatternSource{
		config:        config,
		scratch:       NewVideoFrame(config.Format, config.Width, config.Height),
		frameDuration: time.Duration(config.FPS.FrameDuration()),
		frameCh:       make(chan *VideoFrame, 2),
	}
	s.generatePattern(0)
	return s, nil
}

// Config returns the source's stream configuration.
func (s *PatternSource) Config() StreamConfig {
	return StreamConfig{
		Width:       s.config.Width,
		Height:      s.config.Height,
		FrameRate:   s.config.FPS,
		PixelAspect: Fraction{1, 1},
	}
}

// TotalDuration returns the stream length, or NoTimestamp when unbounded.
func (s *PatternSource) TotalDuration() int64 {
	if s.config.FrameCount <= 0 {
		return NoTimestamp
	}
	return int64(s.config.FrameCount) * s.frameDuration.Nanoseconds()
}

// Start begins generating frames.
func (s *PatternSource) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("source already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.doneCh = make(chan struct{})
	s.running.Store(true)
	s.frameCount = 0

	go s.generateLoop()

	return nil
}

// Stop stops generating frames and waits for the goroutine to exit.
func (s *PatternSource) Stop() error {
	if !s.running.Load() {
		return nil
	}

	s.running.Store(false)
	if s.cancel != nil {
		s.cancel()
	}
	if s.doneCh != nil {
		<-s.doneCh
	}

	return nil
}

// Close closes the source.
func (s *PatternSource) Close() error {
	s.Stop()
	s.mu.Lock()
	if s.frameCh != nil {
		close(s.frameCh)
		s.frameCh = nil
	}
	s.mu.Unlock()
	return nil
}

// ReadFrame reads the next frame (blocking). It returns ErrEndOfStream
// once the configured frame count is exhausted or the source is closed.
func (s *PatternSource) ReadFrame(ctx context.Context) (*VideoFrame, error) {
	s.mu.Lock()
	ch := s.frameCh
	s.mu.Unlock()
	if ch == nil {
		return nil, ErrEndOfStream
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case frame, ok := <-ch:
		if !ok || frame == nil {
			return nil, ErrEndOfStream
		}
		return frame, nil
	}
}

func (s *PatternSource) generateLoop() {
	defer close(s.doneCh)

	// Snapshot the delivery channel once; Close nils s.frameCh under the
	// lock after this goroutine has exited.
	s.mu.Lock()
	ch := s.frameCh
	s.mu.Unlock()
	if ch == nil {
		return
	}

	ticker := time.NewTicker(s.frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.config.FrameCount > 0 && s.frameCount >= uint64(s.config.FrameCount) {
				s.mu.Lock()
				if s.frameCh != nil {
					close(s.frameCh)
					s.frameCh = nil
				}
				s.mu.Unlock()
				return
			}

			if s.config.Pattern == PatternMovingBox {
				s.generatePattern(s.frameCount)
			}

			frame := s.scratch.Clone()
			frame.Timestamp = int64(s.frameCount) * s.frameDuration.Nanoseconds()
			frame.Duration = s.frameDuration.Nanoseconds()
			s.frameCount++

			// Block rather than drop; the reader provides backpressure.
			select {
			case <-s.ctx.Done():
				return
			case ch <- frame:
			}
		}
	}
}

func (s *PatternSource) generatePattern(frameNum uint64) {
	switch s.config.Pattern {
	case PatternGradient:
		s.generateGradient()
	case PatternCheckerboard:
		s.generateCheckerboard()
	case PatternSolidColor:
		s.generateSolidColor(s.config.SolidR, s.config.SolidG, s.config.SolidB)
	case PatternMovingBox:
		s.generateMovingBox(frameNum)
	default:
		s.generateColorBars()
	}
}

// SMPTE color bars (simplified 8-bar pattern)
var colorBarsRGB = [8][3]uint8{
	{192, 192, 192}, // White (75%)
	{192, 192, 0},   // Yellow
	{0, 192, 192},   // Cyan
	{0, 192, 0},     // Green
	{192, 0, 192},   // Magenta
	{192, 0, 0},     // Red
	{0, 0, 192},     // Blue
	{16, 16, 16},    // Black
}

func (s *PatternSource) generateColorBars() {
	w := s.config.Width
	barWidth := w / 8
	if barWidth == 0 {
		barWidth = 1
	}
	s.paint(func(x, y int) (r, g, b uint8) {
		barIdx := x / barWidth
		if barIdx >= 8 {
			barIdx = 7
		}
		rgb := colorBarsRGB[barIdx]
		return rgb[0], rgb[1], rgb[2]
	})
}

func (s *PatternSource) generateGradient() {
	w := s.config.Width
	s.paint(func(x, y int) (r, g, b uint8) {
		v := uint8((x * 255) / w)
		return v, v, v
	})
}

func (s *PatternSource) generateCheckerboard() {
	size := s.config.CheckerSize
	s.paint(func(x, y int) (r, g, b uint8) {
		if ((x/size)+(y/size))%2 == 0 {
			return 235, 235, 235
		}
		return 16, 16, 16
	})
}

func (s *PatternSource) generateSolidColor(r, g, b uint8) {
	s.paint(func(int, int) (uint8, uint8, uint8) { return r, g, b })
}

func (s *PatternSource) generateMovingBox(frameNum uint64) {
	w, h := s.config.Width, s.config.Height

	boxSize := 100
	radius := float64(w) / 4
	if h < w {
		radius = float64(h) / 4
	}
	angle := float64(frameNum) * 0.05 // Radians per frame
	boxX := w/2 + int(radius*math.Cos(angle)) - boxSize/2
	boxY := h/2 + int(radius*math.Sin(angle)) - boxSize/2

	s.paint(func(x, y int) (r, g, b uint8) {
		if x >= boxX && x < boxX+boxSize && y >= boxY && y < boxY+boxSize {
			return 235, 235, 235
		}
		return 16, 16, 16
	})
}

// paint fills the scratch frame by evaluating color once per pixel and
// storing it in the frame's native layout.
func (s *PatternSource) paint(color func(x, y int) (r, g, b uint8)) {
	frame := s.scratch
	fi := frame.Format.info()
	w, h := frame.Width, frame.Height

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b := color(x, y)
			storePixel(frame, fi, x, y, r, g, b)
		}
	}
}

// storePixel writes one pixel at full opacity. Chroma of subsampled
// layouts is written from the top-left pixel of each subsample block.
func storePixel(frame *VideoFrame, fi *formatInfo, x, y int, r, g, b uint8) {
	switch fi.family {
	case famPacked:
		row := frame.Data[0][y*frame.Stride[0]:]
		px := row[x*fi.bpp : x*fi.bpp+fi.bpp]
		if frame.Format == FormatAYUV {
			yv, u, v := rgbToYUV(r, g, b)
			px[0], px[1], px[2], px[3] = 255, yv, u, v
			return
		}
		ro, go_, bo, ao := rgbOffsets(frame.Format)
		px[ro], px[go_], px[bo] = r, g, b
		if ao >= 0 {
			px[ao] = 255
		}

	case famPlanar:
		yv, u, v := rgbToYUV(r, g, b)
		frame.Data[0][y*frame.Stride[0]+x] = yv
		for p := 1; p < 3; p++ {
			hs, vs := fi.hShift[p], fi.vShift[p]
			if x&(1<<hs-1) != 0 || y&(1<<vs-1) != 0 {
				continue
			}
			val := u
			if fi.channel[p] == 2 {
				val = v
			}
			frame.Data[p][(y>>vs)*frame.Stride[p]+(x>>hs)] = val
		}

	case famPacked422:
		yv, u, v := rgbToYUV(r, g, b)
		mp := frame.Data[0][y*frame.Stride[0]+(x>>1)*4:]
		if x&1 == 0 {
			mp[fi.y0] = yv
			mp[fi.u] = u
			mp[fi.v] = v
		} else {
			mp[fi.y1] = yv
		}

	case famGray8:
		yv, _, _ := rgbToYUV(r, g, b)
		frame.Data[0][y*frame.Stride[0]+x] = yv

	case famGray16:
		yv, _, _ := rgbToYUV(r, g, b)
		v16 := uint16(yv) << 8
		off := y*frame.Stride[0] + x*2
		frame.Data[0][off] = byte(v16)
		frame.Data[0][off+1] = byte(v16 >> 8)

	case famRGB16:
		var v16 uint16
		if frame.Format == FormatRGB565 {
			v16 = pack565(r, g, b)
		} else {
			v16 = pack555(r, g, b)
		}
		off := y*frame.Stride[0] + x*2
		frame.Data[0][off] = byte(v16)
		frame.Data[0][off+1] = byte(v16 >> 8)
	}
}

// rgbOffsets returns the byte offsets of the color channels inside one
// packed RGB pixel, alpha offset -1 when absent.
func rgbOffsets(f PixelFormat) (r, g, b, a int) {
	switch f {
	case FormatARGB:
		return 1, 2, 3, 0
	case FormatABGR:
		return 3, 2, 1, 0
	case FormatRGBA:
		return 0, 1, 2, 3
	case FormatBGRA:
		return 2, 1, 0, 3
	case FormatXRGB:
		return 1, 2, 3, -1
	case FormatXBGR:
		return 3, 2, 1, -1
	case FormatRGBX:
		return 0, 1, 2, -1
	case FormatBGRX:
		return 2, 1, 0, -1
	case FormatRGB:
		return 0, 1, 2, -1
	case FormatBGR:
		return 2, 1, 0, -1
	default:
		return 0, 1, 2, -1
	}
}

// rgbToYUV converts RGB to YUV (BT.601)
func rgbToYUV(r, g, b uint8) (y, u, v uint8) {
	yf := 16.0 + 65.481*float64(r)/255.0 + 128.553*float64(g)/255.0 + 24.966*float64(b)/255.0
	uf := 128.0 - 37.797*float64(r)/255.0 - 74.203*float64(g)/255.0 + 112.0*float64(b)/255.0
	vf := 128.0 + 112.0*float64(r)/255.0 - 93.786*float64(g)/255.0 - 18.214*float64(b)/255.0

	y = uint8(fclamp(yf, 16, 235))
	u = uint8(fclamp(uf, 16, 240))
	v = uint8(fclamp(vf, 16, 240))
	return
}

func fclamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
