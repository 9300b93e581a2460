package hwcodec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pion/logging"
	"golang.org/x/sync/errgroup"
)

// Capturer produces GPU surfaces for encoding.
type Capturer interface {
	// Capture waits up to timeout for the next surface. A zero Surface with a
	// nil error means the timeout elapsed. io.EOF ends the capture stage.
	Capture(timeout time.Duration) (Surface, error)
}

// Renderer consumes decoded frames. Conversion from NV12 for display is the
// renderer's concern.
type Renderer interface {
	Render(frame DecodeFrame) error
}

// PacketSink consumes encoded packets in encode order.
type PacketSink interface {
	WritePacket(pkt EncodeFrame) error
}

// PipelineState represents the state of a pipeline.
type PipelineState int

const (
	PipelineStateIdle    PipelineState = iota // Not started
	PipelineStateRunning                      // Processing frames
	PipelineStateStopped                      // Stopped or drained
	PipelineStateClosed                       // Codecs released
)

func (s PipelineState) String() string {
	switch s {
	case PipelineStateIdle:
		return "idle"
	case PipelineStateRunning:
		return "running"
	case PipelineStateStopped:
		return "stopped"
	case PipelineStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// PipelineStats provides pipeline statistics.
type PipelineStats struct {
	FramesCaptured  uint64
	CaptureTimeouts uint64
	FramesEncoded   uint64
	PacketsEncoded  uint64
	BytesEncoded    uint64
	PacketsWritten  uint64 // Packets accepted by the sink
	FramesDecoded   uint64
	FramesRendered  uint64
	FramesDropped   uint64 // Packets or frames dropped on a full queue
	DecoderResets   uint64
	EncodeTimeUs    uint64
	DecodeTimeUs    uint64
	Errors          uint64
}

// PipelineConfig configures a Pipeline.
//
// Encode is always required. Decode and Renderer go together: when Renderer
// is nil no decoder is created and the pipeline only encodes into Sink.
type PipelineConfig struct {
	Capturer Capturer
	Encode   EncodeContext
	Sink     PacketSink // Optional

	Decode   DecodeContext
	Renderer Renderer // Optional

	QueueDepth     int           // Capacity of each inter-stage queue, default 4
	CaptureTimeout time.Duration // Default 100ms
	OnError        func(error)   // Called from one goroutine per run; errors past QueueDepth pending are dropped

	newEncoder func(EncodeContext) (*Encoder, error)
	newDecoder func(DecodeContext) (*Decoder, error)
}

const (
	defaultQueueDepth     = 4
	defaultCaptureTimeout = 100 * time.Millisecond

	// maxCaptureErrors consecutive capture failures end the capture stage.
	maxCaptureErrors = 5
)

// Pipeline runs capture, encode, sink, decode and render as separate stages
// joined by bounded queues. Each codec instance is only touched by its own
// stage goroutine.
type Pipeline struct {
	cfg PipelineConfig
	log logging.LeveledLogger

	enc *Encoder
	dec *Decoder // owned by the decode stage while running

	state  atomic.Int32
	cancel context.CancelFunc
	group  *errgroup.Group
	errs   chan error // OnError queue of the current run

	stats   PipelineStats
	statsMu sync.Mutex

	mu sync.Mutex
}

// NewPipeline creates the codec instances and returns an idle pipeline.
func NewPipeline(config PipelineConfig) (*Pipeline, error) {
	if config.Capturer == nil {
		return nil, fmt.Errorf("%w: capturer is required", ErrInvalidConfig)
	}
	if config.Sink == nil && config.Renderer == nil {
		return nil, fmt.Errorf("%w: sink or renderer is required", ErrInvalidConfig)
	}
	if config.QueueDepth <= 0 {
		config.QueueDepth = defaultQueueDepth
	}
	if config.CaptureTimeout <= 0 {
		config.CaptureTimeout = defaultCaptureTimeout
	}
	if config.newEncoder == nil {
		config.newEncoder = NewEncoder
	}
	if config.newDecoder == nil {
		config.newDecoder = NewDecoder
	}

	enc, err := config.newEncoder(config.Encode)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg: config,
		log: newLogger("pipeline"),
		enc: enc,
	}
	if config.Renderer != nil {
		dec, err := config.newDecoder(config.Decode)
		if err != nil {
			enc.Close()
			return nil, err
		}
		p.dec = dec
	}
	p.state.Store(int32(PipelineStateIdle))
	return p, nil
}

// Start launches the stage goroutines.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch PipelineState(p.state.Load()) {
	case PipelineStateRunning:
		return fmt.Errorf("pipeline already running")
	case PipelineStateClosed:
		return ErrClosed
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.group = &errgroup.Group{}
	p.errs = nil
	if cb := p.cfg.OnError; cb != nil {
		p.errs = make(chan error, p.cfg.QueueDepth)
		go func(errs <-chan error) {
			for err := range errs {
				cb(err)
			}
		}(p.errs)
	}

	packets := make(chan EncodeFrame, p.cfg.QueueDepth)
	p.group.Go(func() error { return p.encodeLoop(ctx, packets) })

	if p.cfg.Renderer != nil {
		frames := make(chan DecodeFrame, p.cfg.QueueDepth)
		p.group.Go(func() error { return p.decodeLoop(packets, frames) })
		p.group.Go(func() error { return p.renderLoop(frames) })
	} else {
		p.group.Go(func() error {
			for range packets {
			}
			return nil
		})
	}

	if errs := p.errs; errs != nil {
		g := p.group
		go func() {
			g.Wait()
			close(errs)
		}()
	}

	p.state.Store(int32(PipelineStateRunning))
	p.log.Infof("started %s", p.cfg.Encode.FeatureContext)
	return nil
}

// Wait blocks until every stage has finished, either because the capturer
// returned io.EOF or because Stop was called. It returns the capture error
// when the capturer kept failing.
func (p *Pipeline) Wait() error {
	p.mu.Lock()
	g := p.group
	p.mu.Unlock()
	if g == nil {
		return nil
	}
	err := g.Wait()
	p.state.CompareAndSwap(int32(PipelineStateRunning), int32(PipelineStateStopped))
	return err
}

// Stop ends capture and waits for queued work to drain.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	return p.Wait()
}

// Close stops the pipeline and destroys its codec instances. Sinks and
// renderers are left to the caller.
func (p *Pipeline) Close() error {
	var result *multierror.Error
	if err := p.Stop(); err != nil {
		result = multierror.Append(result, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if PipelineState(p.state.Swap(int32(PipelineStateClosed))) == PipelineStateClosed {
		return nil
	}
	if p.enc != nil {
		if err := p.enc.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("encoder: %w", err))
		}
	}
	if p.dec != nil {
		if err := p.dec.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("decoder: %w", err))
		}
	}
	return result.ErrorOrNil()
}

// State returns the current pipeline state.
func (p *Pipeline) State() PipelineState {
	return PipelineState(p.state.Load())
}

// Stats returns pipeline statistics.
func (p *Pipeline) Stats() PipelineStats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

func (p *Pipeline) encodeLoop(ctx context.Context, out chan<- EncodeFrame) error {
	defer close(out)

	var failures int
	for ctx.Err() == nil {
		surface, err := p.cfg.Capturer.Capture(p.cfg.CaptureTimeout)
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.log.Debug("capture finished")
				return nil
			}
			failures++
			err = fmt.Errorf("capture: %w", err)
			p.handleError(err)
			if failures >= maxCaptureErrors {
				p.log.Errorf("giving up after %d consecutive capture failures: %v", failures, err)
				return err
			}
			select {
			case <-ctx.Done():
			case <-time.After(p.cfg.CaptureTimeout):
			}
			continue
		}
		failures = 0
		if surface == 0 {
			p.count(func(s *PipelineStats) { s.CaptureTimeouts++ })
			continue
		}

		start := time.Now()
		packets, err := p.enc.Encode(surface)
		elapsed := time.Since(start)
		p.count(func(s *PipelineStats) {
			s.FramesCaptured++
			s.EncodeTimeUs += uint64(elapsed.Microseconds())
		})
		if err != nil {
			p.handleError(err)
			continue
		}
		p.count(func(s *PipelineStats) { s.FramesEncoded++ })

		for _, pkt := range packets {
			p.count(func(s *PipelineStats) {
				s.PacketsEncoded++
				s.BytesEncoded += uint64(len(pkt.Data))
			})
			if p.cfg.Sink != nil {
				if err := p.cfg.Sink.WritePacket(pkt); err != nil {
					p.handleError(fmt.Errorf("sink: %w", err))
				} else {
					p.count(func(s *PipelineStats) { s.PacketsWritten++ })
				}
			}
			select {
			case out <- pkt:
			default:
				p.count(func(s *PipelineStats) { s.FramesDropped++ })
			}
		}
	}
	return nil
}

func (p *Pipeline) decodeLoop(in <-chan EncodeFrame, out chan<- DecodeFrame) error {
	defer close(out)

	for pkt := range in {
		if p.dec == nil && !p.resetDecoder() {
			continue
		}

		start := time.Now()
		frames, err := p.dec.Decode(pkt.Data)
		elapsed := time.Since(start)
		p.count(func(s *PipelineStats) { s.DecodeTimeUs += uint64(elapsed.Microseconds()) })
		if err != nil {
			p.handleError(err)
			p.resetDecoder()
			continue
		}

		for _, f := range frames {
			p.count(func(s *PipelineStats) { s.FramesDecoded++ })
			select {
			case out <- f:
			default:
				p.count(func(s *PipelineStats) { s.FramesDropped++ })
			}
		}
	}
	return nil
}

// resetDecoder replaces a failed decoder with a fresh one built from the same
// context. It reports whether a decoder is available afterwards.
func (p *Pipeline) resetDecoder() bool {
	ctx := p.cfg.Decode
	if p.dec != nil {
		ctx = p.dec.Context()
		if err := p.dec.Close(); err != nil {
			p.handleError(fmt.Errorf("decoder: %w", err))
		}
		p.dec = nil
	}

	dec, err := p.cfg.newDecoder(ctx)
	if err != nil {
		p.handleError(err)
		return false
	}
	p.dec = dec
	p.count(func(s *PipelineStats) { s.DecoderResets++ })
	p.log.Warnf("decoder rebuilt for %s", ctx)
	return true
}

func (p *Pipeline) renderLoop(in <-chan DecodeFrame) error {
	for f := range in {
		if err := p.cfg.Renderer.Render(f); err != nil {
			p.handleError(fmt.Errorf("render: %w", err))
			continue
		}
		p.count(func(s *PipelineStats) { s.FramesRendered++ })
	}
	return nil
}

func (p *Pipeline) count(update func(*PipelineStats)) {
	p.statsMu.Lock()
	update(&p.stats)
	p.statsMu.Unlock()
}

func (p *Pipeline) handleError(err error) {
	p.count(func(s *PipelineStats) { s.Errors++ })
	p.log.Debugf("stage error: %v", err)

	if p.errs != nil {
		select {
		case p.errs <- err:
		default:
			p.log.Warnf("error callback behind, dropped: %v", err)
		}
	}
}
