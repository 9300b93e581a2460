package hwcodec

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeCapturer hands out surfaces in order, then io.EOF. A zero entry is a
// capture timeout. The first fails calls return an error; err fails every
// call.
type fakeCapturer struct {
	mu       sync.Mutex
	surfaces []Surface
	next     int
	timeouts []time.Duration
	endless  bool
	fails    int
	err      error
}

func (c *fakeCapturer) Capture(timeout time.Duration) (Surface, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeouts = append(c.timeouts, timeout)
	if c.err != nil {
		return 0, c.err
	}
	if c.fails > 0 {
		c.fails--
		return 0, errors.New("device busy")
	}
	if c.endless {
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	if c.next >= len(c.surfaces) {
		return 0, io.EOF
	}
	s := c.surfaces[c.next]
	c.next++
	return s, nil
}

func (c *fakeCapturer) captures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timeouts)
}

type recordingSink struct {
	mu      sync.Mutex
	packets []EncodeFrame
	err     error
}

func (s *recordingSink) WritePacket(pkt EncodeFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.packets = append(s.packets, pkt)
	return nil
}

type recordingRenderer struct {
	mu     sync.Mutex
	frames []DecodeFrame
}

func (r *recordingRenderer) Render(f DecodeFrame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
	return nil
}

// packetFor encodes a surface as a single packet whose last byte is the
// surface value.
func packetFor(s Surface) [][]byte {
	return [][]byte{{0, 0, 0, 1, 0x65, byte(s)}}
}

func newTestPipeline(t *testing.T, cfg PipelineConfig, enc *fakeEncodeCalls, dec *fakeDecodeCalls) *Pipeline {
	t.Helper()
	cfg.Encode = testEncodeContext()
	cfg.Decode = testDecodeContext()
	if cfg.QueueDepth == 0 {
		cfg.QueueDepth = 64
	}
	cfg.newEncoder = func(ctx EncodeContext) (*Encoder, error) { return newEncoder(enc, ctx) }
	cfg.newDecoder = func(ctx DecodeContext) (*Decoder, error) { return newDecoder(dec, ctx) }

	p, err := NewPipeline(cfg)
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func runToEnd(t *testing.T, p *Pipeline) {
	t.Helper()
	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- p.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not drain")
	}
}

func TestPipeline_EncodeOnly(t *testing.T) {
	capturer := &fakeCapturer{surfaces: []Surface{1, 0, 2, 3}}
	sink := &recordingSink{}
	enc := &fakeEncodeCalls{output: packetFor}

	p := newTestPipeline(t, PipelineConfig{Capturer: capturer, Sink: sink}, enc, &fakeDecodeCalls{})
	if p.State() != PipelineStateIdle {
		t.Errorf("State() = %v, want idle", p.State())
	}
	runToEnd(t, p)

	if p.State() != PipelineStateStopped {
		t.Errorf("State() = %v, want stopped", p.State())
	}
	if len(sink.packets) != 3 {
		t.Fatalf("sink received %d packets, want 3", len(sink.packets))
	}
	for i, want := range []byte{1, 2, 3} {
		if got := sink.packets[i].Data[5]; got != want {
			t.Errorf("packet %d from surface %d, want %d", i, got, want)
		}
	}

	stats := p.Stats()
	want := PipelineStats{
		FramesCaptured:  3,
		CaptureTimeouts: 1,
		FramesEncoded:   3,
		PacketsEncoded:  3,
		BytesEncoded:    18,
		PacketsWritten:  3,
	}
	stats.EncodeTimeUs = 0
	if stats != want {
		t.Errorf("Stats() = %+v, want %+v", stats, want)
	}
	for _, d := range capturer.timeouts {
		if d != 100*time.Millisecond {
			t.Errorf("capture timeout = %v, want the 100ms default", d)
			break
		}
	}
}

func TestPipeline_EncodeDecodeRender(t *testing.T) {
	capturer := &fakeCapturer{surfaces: []Surface{1, 2, 3, 4, 5}}
	renderer := &recordingRenderer{}
	enc := &fakeEncodeCalls{output: packetFor}
	dec := &fakeDecodeCalls{output: func(data []byte) []fakeFrame {
		return []fakeFrame{nv12Frame(64, 64, 64, data[5] == 1)}
	}}

	p := newTestPipeline(t, PipelineConfig{Capturer: capturer, Renderer: renderer}, enc, dec)
	runToEnd(t, p)

	if len(renderer.frames) != 5 {
		t.Fatalf("renderer received %d frames, want 5", len(renderer.frames))
	}
	if !renderer.frames[0].Key || renderer.frames[1].Key {
		t.Error("only the first frame should be a key frame")
	}
	stats := p.Stats()
	if stats.FramesDecoded != 5 || stats.FramesRendered != 5 || stats.FramesDropped != 0 {
		t.Errorf("Stats() = %+v, want 5 decoded, 5 rendered, 0 dropped", stats)
	}
	if stats.Errors != 0 || stats.DecoderResets != 0 {
		t.Errorf("Stats() = %+v, want no errors or resets", stats)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if enc.destroyed != 1 || dec.destroyCount() != 1 {
		t.Errorf("destroys = %d encoder, %d decoder, want 1 each", enc.destroyed, dec.destroyCount())
	}
}

func TestPipeline_DecoderReset(t *testing.T) {
	capturer := &fakeCapturer{surfaces: []Surface{1, 2, 3, 4}}
	renderer := &recordingRenderer{}
	enc := &fakeEncodeCalls{output: packetFor}
	dec := &fakeDecodeCalls{
		ret: func(data []byte) int32 {
			if data[5] == 2 {
				return -5
			}
			return 0
		},
		output: func([]byte) []fakeFrame { return []fakeFrame{nv12Frame(32, 32, 32, false)} },
	}
	errs := make(chan error, 8)

	p := newTestPipeline(t, PipelineConfig{
		Capturer: capturer,
		Renderer: renderer,
		OnError:  func(err error) { errs <- err },
	}, enc, dec)
	runToEnd(t, p)

	stats := p.Stats()
	if stats.DecoderResets != 1 || stats.Errors != 1 {
		t.Errorf("Stats() = %+v, want 1 reset and 1 error", stats)
	}
	if len(renderer.frames) != 3 {
		t.Errorf("renderer received %d frames, want 3", len(renderer.frames))
	}
	if n := dec.createdCount(); n != 2 {
		t.Errorf("decoder constructs = %d, want 2", n)
	}

	select {
	case err := <-errs:
		var ce *CodecError
		if !errors.As(err, &ce) || ce.Code != -5 {
			t.Errorf("OnError() got %v, want decode CodecError -5", err)
		}
	case <-time.After(time.Second):
		t.Error("OnError was not called")
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if n := dec.destroyCount(); n != 2 {
		t.Errorf("decoder destroys = %d, want 2", n)
	}
}

func TestPipeline_StageErrors(t *testing.T) {
	t.Run("sink", func(t *testing.T) {
		sink := &recordingSink{err: errors.New("disk full")}
		enc := &fakeEncodeCalls{output: packetFor}
		p := newTestPipeline(t, PipelineConfig{Capturer: &fakeCapturer{surfaces: []Surface{1, 2}}, Sink: sink}, enc, nil)
		runToEnd(t, p)

		stats := p.Stats()
		if stats.PacketsEncoded != 2 || stats.PacketsWritten != 0 || stats.Errors != 2 {
			t.Errorf("Stats() = %+v, want 2 encoded, 0 written, 2 errors", stats)
		}
	})

	t.Run("encoder", func(t *testing.T) {
		sink := &recordingSink{}
		enc := &fakeEncodeCalls{output: packetFor, ret: -1}
		p := newTestPipeline(t, PipelineConfig{Capturer: &fakeCapturer{surfaces: []Surface{1, 2, 3}}, Sink: sink}, enc, nil)
		runToEnd(t, p)

		stats := p.Stats()
		if stats.FramesCaptured != 3 || stats.FramesEncoded != 0 || stats.Errors != 3 {
			t.Errorf("Stats() = %+v, want 3 captured, 0 encoded, 3 errors", stats)
		}
		if enc.encodes != 3 {
			t.Errorf("encode calls = %d, want 3; a failed encode must not stop the encoder", enc.encodes)
		}
	})

	t.Run("capture", func(t *testing.T) {
		const timeout = 5 * time.Millisecond
		capturer := &fakeCapturer{err: errors.New("device lost")}
		release := make(chan struct{})
		var inCallback atomic.Int32
		p := newTestPipeline(t, PipelineConfig{
			Capturer:       capturer,
			Sink:           &recordingSink{},
			CaptureTimeout: timeout,
			OnError: func(error) {
				inCallback.Add(1)
				<-release
			},
		}, &fakeEncodeCalls{output: packetFor}, nil)
		t.Cleanup(func() { close(release) })

		start := time.Now()
		if err := p.Start(); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		done := make(chan error, 1)
		go func() { done <- p.Wait() }()

		var err error
		select {
		case err = <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("a failing capturer did not end the pipeline")
		}
		if !errors.Is(err, capturer.err) {
			t.Errorf("Wait() error = %v, want %v", err, capturer.err)
		}
		if elapsed := time.Since(start); elapsed < (maxCaptureErrors-1)*timeout {
			t.Errorf("gave up after %v, want a %v wait between failures", elapsed, timeout)
		}
		if n := capturer.captures(); n != maxCaptureErrors {
			t.Errorf("capture calls = %d, want %d", n, maxCaptureErrors)
		}
		if stats := p.Stats(); stats.Errors != maxCaptureErrors {
			t.Errorf("Stats().Errors = %d, want %d", stats.Errors, maxCaptureErrors)
		}
		if n := inCallback.Load(); n > 1 {
			t.Errorf("%d OnError calls running at once, want at most 1", n)
		}
		if p.State() != PipelineStateStopped {
			t.Errorf("State() = %v, want stopped", p.State())
		}
	})

	t.Run("capture recovers", func(t *testing.T) {
		capturer := &fakeCapturer{fails: maxCaptureErrors - 1, surfaces: []Surface{1, 2}}
		p := newTestPipeline(t, PipelineConfig{
			Capturer:       capturer,
			Sink:           &recordingSink{},
			CaptureTimeout: time.Millisecond,
		}, &fakeEncodeCalls{output: packetFor}, nil)
		runToEnd(t, p)

		stats := p.Stats()
		if stats.FramesEncoded != 2 || stats.Errors != maxCaptureErrors-1 {
			t.Errorf("Stats() = %+v, want 2 encoded and %d errors", stats, maxCaptureErrors-1)
		}
	})
}

func TestPipeline_StartStop(t *testing.T) {
	capturer := &fakeCapturer{endless: true}
	p := newTestPipeline(t, PipelineConfig{Capturer: capturer, Sink: &recordingSink{}}, &fakeEncodeCalls{}, nil)

	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := p.Start(); err == nil {
		t.Error("second Start() succeeded")
	}
	if p.State() != PipelineStateRunning {
		t.Errorf("State() = %v, want running", p.State())
	}

	time.Sleep(10 * time.Millisecond)
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if p.State() != PipelineStateStopped {
		t.Errorf("State() = %v, want stopped", p.State())
	}
	if p.Stats().CaptureTimeouts == 0 {
		t.Error("no capture timeouts recorded")
	}

	// A stopped pipeline can run again.
	if err := p.Start(); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if p.State() != PipelineStateClosed {
		t.Errorf("State() = %v, want closed", p.State())
	}
	if err := p.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after Close error = %v, want ErrClosed", err)
	}
}

func TestNewPipeline_Errors(t *testing.T) {
	build := func(cfg PipelineConfig, enc *fakeEncodeCalls, dec *fakeDecodeCalls) error {
		cfg.Encode = testEncodeContext()
		cfg.Decode = testDecodeContext()
		cfg.newEncoder = func(ctx EncodeContext) (*Encoder, error) { return newEncoder(enc, ctx) }
		cfg.newDecoder = func(ctx DecodeContext) (*Decoder, error) { return newDecoder(dec, ctx) }
		p, err := NewPipeline(cfg)
		if err == nil {
			p.Close()
		}
		return err
	}

	if err := build(PipelineConfig{Sink: &recordingSink{}}, &fakeEncodeCalls{}, nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("no capturer error = %v, want ErrInvalidConfig", err)
	}
	if err := build(PipelineConfig{Capturer: &fakeCapturer{}}, &fakeEncodeCalls{}, nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("no sink or renderer error = %v, want ErrInvalidConfig", err)
	}

	rejecting := &fakeEncodeCalls{reject: func(encoderParams) bool { return true }}
	dec := &fakeDecodeCalls{}
	err := build(PipelineConfig{Capturer: &fakeCapturer{}, Renderer: &recordingRenderer{}}, rejecting, dec)
	if !errors.Is(err, ErrConstruction) {
		t.Errorf("encoder construct error = %v, want ErrConstruction", err)
	}
	if dec.createdCount() != 0 {
		t.Error("decoder built after the encoder failed")
	}

	enc := &fakeEncodeCalls{}
	badDec := &fakeDecodeCalls{reject: func(decoderParams) bool { return true }}
	err = build(PipelineConfig{Capturer: &fakeCapturer{}, Renderer: &recordingRenderer{}}, enc, badDec)
	if !errors.Is(err, ErrConstruction) {
		t.Errorf("decoder construct error = %v, want ErrConstruction", err)
	}
	if enc.destroyed != 1 {
		t.Errorf("encoder destroys = %d, want 1 after decoder failure", enc.destroyed)
	}
}

func TestPipelineState_String(t *testing.T) {
	tests := []struct {
		state PipelineState
		want  string
	}{
		{PipelineStateIdle, "idle"},
		{PipelineStateRunning, "running"},
		{PipelineStateStopped, "stopped"},
		{PipelineStateClosed, "closed"},
		{PipelineState(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("PipelineState.String() = %v, want %v", got, tt.want)
		}
	}
}
