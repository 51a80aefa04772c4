package mixer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// PipelineState represents the state of a mixing pipeline.
type PipelineState int

const (
	PipelineStateIdle    PipelineState = iota // Not started
	PipelineStateRunning                      // Processing media
	PipelineStateStopped                      // Stopped
)

func (s PipelineState) String() string {
	switch s {
	case PipelineStateIdle:
		return "idle"
	case PipelineStateRunning:
		return "running"
	case PipelineStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// VideoSource produces raw video frames.
type VideoSource interface {
	// Start begins capture/generation.
	Start(ctx context.Context) error

	// Stop halts capture/generation.
	Stop() error

	// ReadFrame reads the next frame (blocking). It returns ErrEndOfStream
	// when the source has ended. The returned frame must stay valid after
	// the next ReadFrame call.
	ReadFrame(ctx context.Context) (*VideoFrame, error)

	// Config returns the source's stream configuration.
	Config() StreamConfig
}

// Pipeline feeds one or more video sources into a Mixer and drives its mix
// cycles: Sources -> per-stream feeders -> Mixer -> Output.
//
// Each source gets a feeder goroutine that pulls frames and buffers them
// behind a non-blocking FrameProvider, so slow sources never stall the mix
// loop. The pipeline runs until every source ends, the context is
// cancelled, or a cycle fails.
type Pipeline struct {
	mix     *Mixer
	sources []*pipelineSource

	state  atomic.Int32
	cancel context.CancelFunc
	group  *errgroup.Group
}

type pipelineSource struct {
	source   VideoSource
	provider *chanProvider
	streamID int
}

// NewPipeline creates a pipeline driving mix.
func NewPipeline(mix *Mixer) *Pipeline {
	p := &Pipeline{mix: mix}
	p.state.Store(int32(PipelineStateIdle))
	return p
}

// AddSource attaches a source as a new mixer stream and returns the stream
// id, usable with the mixer's per-stream setters. Sources must be added
// before Start.
func (p *Pipeline) AddSource(src VideoSource) (int, error) {
	if PipelineState(p.state.Load()) != PipelineStateIdle {
		return 0, fmt.Errorf("pipeline already started")
	}
	cfg := src.Config()
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, fmt.Errorf("source config missing geometry: %dx%d", cfg.Width, cfg.Height)
	}

	provider := &chanProvider{
		frames: make(chan *VideoFrame, 4),
		src:    src,
	}
	id, err := p.mix.AddStream(provider, cfg)
	if err != nil {
		return 0, err
	}
	p.sources = append(p.sources, &pipelineSource{
		source:   src,
		provider: provider,
		streamID: id,
	})
	return id, nil
}

// Start starts all sources and the mix loop.
func (p *Pipeline) Start(ctx context.Context) error {
	if PipelineState(p.state.Load()) == PipelineStateRunning {
		return fmt.Errorf("pipeline already running")
	}
	if len(p.sources) == 0 {
		return ErrNoStreams
	}

	ctx, cancel := context.WithCancel(ctx)
	group, ctx := errgroup.WithContext(ctx)
	p.cancel = cancel
	p.group = group
	p.state.Store(int32(PipelineStateRunning))

	for _, ps := range p.sources {
		if err := ps.source.Start(ctx); err != nil {
			cancel()
			p.state.Store(int32(PipelineStateIdle))
			return fmt.Errorf("start source: %w", err)
		}
	}

	for _, ps := range p.sources {
		ps := ps
		group.Go(func() error { return p.feed(ctx, ps) })
	}
	group.Go(func() error { return p.mixLoop(ctx) })

	return nil
}

// Wait blocks until the pipeline finishes: every source ended, the context
// was cancelled, or a feeder or mix cycle failed.
func (p *Pipeline) Wait() error {
	if p.group == nil {
		return nil
	}
	err := p.group.Wait()
	p.state.Store(int32(PipelineStateStopped))
	return err
}

// Stop cancels the pipeline and waits for all goroutines and sources.
func (p *Pipeline) Stop() error {
	if PipelineState(p.state.Load()) != PipelineStateRunning {
		return nil
	}
	p.cancel()
	err := p.Wait()
	for _, ps := range p.sources {
		ps.source.Stop()
	}
	return err
}

// Run is the blocking convenience form: Start, then Wait, stopping the
// sources on the way out.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.Start(ctx); err != nil {
		return err
	}
	err := p.Wait()
	for _, ps := range p.sources {
		ps.source.Stop()
	}
	return err
}

// State returns the current pipeline state.
func (p *Pipeline) State() PipelineState {
	return PipelineState(p.state.Load())
}

// feed pulls frames from one source into its provider buffer until the
// source ends or the context is cancelled.
func (p *Pipeline) feed(ctx context.Context, ps *pipelineSource) error {
	defer close(ps.provider.frames)
	for {
		frame, err := ps.source.ReadFrame(ctx)
		switch {
		case errors.Is(err, ErrEndOfStream):
			return nil
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		case err != nil:
			return fmt.Errorf("stream %d: read frame: %w", ps.streamID, err)
		}
		select {
		case <-ctx.Done():
			return nil
		case ps.provider.frames <- frame:
		}
	}
}

// mixLoop drives cycles until all streams end. A starved cycle backs off
// briefly instead of spinning; real pacing comes from the sources.
func (p *Pipeline) mixLoop(ctx context.Context) error {
	const backoff = 2 * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := p.mix.MixOnce()
		switch {
		case err == nil:
		case errors.Is(err, ErrEndOfStream):
			return nil
		case errors.Is(err, ErrNotReady):
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
		default:
			return err
		}
	}
}

// chanProvider adapts a buffered frame channel to the mixer's non-blocking
// pull interface. A closed channel drains its buffer, then reports end of
// stream.
type chanProvider struct {
	frames chan *VideoFrame
	src    VideoSource
}

func (c *chanProvider) PullFrame() (*VideoFrame, error) {
	select {
	case frame, ok := <-c.frames:
		if !ok {
			return nil, ErrEndOfStream
		}
		return frame, nil
	default:
		return nil, nil
	}
}

func (c *chanProvider) TotalDuration() int64 {
	if dr, ok := c.src.(DurationReporter); ok {
		return dr.TotalDuration()
	}
	return NoTimestamp
}
