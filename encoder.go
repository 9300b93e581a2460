package hwcodec

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"
)

// EncoderStats provides encoding metrics.
type EncoderStats struct {
	FramesEncoded    uint64 // Surfaces accepted by the driver
	PacketsEmitted   uint64
	KeyframesEncoded uint64
	BytesEncoded     uint64
	Errors           uint64
	EncodingTimeUs   uint64
}

// Encoder owns one native hardware encoder.
//
// An Encoder must not be copied. Encode results alias an internal buffer that
// is reused by the next Encode call.
type Encoder struct {
	ctx   EncodeContext
	calls encodeCalls
	id    string
	log   logging.LeveledLogger

	handle uintptr
	route  uintptr
	sink   *packetSink

	stats   EncoderStats
	statsMu sync.Mutex

	mu sync.Mutex
}

// NewEncoder creates an encoder for ctx. It fails with ErrConstruction when the
// driver is not compiled in, its runtime is missing, or the backend rejects
// the combination.
func NewEncoder(ctx EncodeContext) (*Encoder, error) {
	calls, err := resolveEncodeCalls(ctx.Driver)
	if err != nil {
		return nil, err
	}
	return newEncoder(calls, ctx)
}

func newEncoder(calls encodeCalls, ctx EncodeContext) (*Encoder, error) {
	if err := ctx.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConstruction, err)
	}

	handle := calls.newEncoder(encoderParams{
		device:    ctx.Device,
		luid:      ctx.LUID,
		api:       ctx.API,
		format:    ctx.DataFormat,
		width:     clampInt32(ctx.Width),
		height:    clampInt32(ctx.Height),
		kbitrate:  clampInt32(ctx.Kbitrate),
		framerate: clampInt32(ctx.Framerate),
		gop:       clampInt32(ctx.GOP),
	})
	if handle == 0 {
		return nil, fmt.Errorf("%w: encoder %s: %s", ErrConstruction, ctx.FeatureContext, nativeReason(calls.lastError()))
	}

	e := &Encoder{
		ctx:    ctx,
		calls:  calls,
		id:     uuid.NewString()[:8],
		log:    newLogger("encoder"),
		handle: handle,
	}
	e.sink = &packetSink{log: e.log}
	e.route = registerSink(e.sink)
	e.log.Debugf("[%s] created %s %dx%d %dkbps %dfps gop %d", e.id, ctx.FeatureContext,
		ctx.Width, ctx.Height, ctx.Kbitrate, ctx.Framerate, ctx.GOP)
	return e, nil
}

func clampInt32(v int) int32 {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(v)
}

// Encode submits one GPU surface. The surface stays owned by the caller and
// must remain valid for the duration of the call. The driver may buffer, so
// zero or more packets are returned; the slice is valid until the next Encode.
// A driver failure is returned as a *CodecError and the encoder stays usable.
func (e *Encoder) Encode(surface Surface) ([]EncodeFrame, error) {
	if surface == 0 {
		return nil, ErrInvalidSurface
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle == 0 {
		return nil, ErrClosed
	}

	e.sink.reset()
	start := time.Now()
	ret := e.calls.encode(e.handle, surface, e.route)
	elapsed := time.Since(start)

	e.statsMu.Lock()
	e.stats.EncodingTimeUs += uint64(elapsed.Microseconds())
	if ret < 0 {
		e.stats.Errors++
	} else {
		e.stats.FramesEncoded++
		for i := range e.sink.packets {
			e.stats.PacketsEmitted++
			e.stats.BytesEncoded += uint64(len(e.sink.packets[i].Data))
			if e.sink.packets[i].Key {
				e.stats.KeyframesEncoded++
			}
		}
	}
	e.statsMu.Unlock()

	if ret < 0 {
		e.sink.reset()
		err := &CodecError{Op: "encode", Driver: e.ctx.Driver.String(), Code: ret}
		e.log.Errorf("[%s] %v: %s", e.id, err, nativeReason(e.calls.lastError()))
		return nil, err
	}
	return e.sink.packets, nil
}

// SetBitrate changes the target bitrate in kbit/s.
func (e *Encoder) SetBitrate(kbitrate int) error {
	if kbitrate <= 0 {
		return fmt.Errorf("%w: kbitrate %d", ErrInvalidContext, kbitrate)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle == 0 {
		return ErrClosed
	}
	if ret := e.calls.setBitrate(e.handle, clampInt32(kbitrate)); ret < 0 {
		return &CodecError{Op: "set_bitrate", Driver: e.ctx.Driver.String(), Code: ret}
	}
	e.ctx.Kbitrate = kbitrate
	e.log.Debugf("[%s] bitrate %dkbps", e.id, kbitrate)
	return nil
}

// SetFramerate changes the target framerate.
func (e *Encoder) SetFramerate(framerate int) error {
	if framerate <= 0 {
		return fmt.Errorf("%w: framerate %d", ErrInvalidContext, framerate)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle == 0 {
		return ErrClosed
	}
	if ret := e.calls.setFramerate(e.handle, clampInt32(framerate)); ret < 0 {
		return &CodecError{Op: "set_framerate", Driver: e.ctx.Driver.String(), Code: ret}
	}
	e.ctx.Framerate = framerate
	e.log.Debugf("[%s] framerate %d", e.id, framerate)
	return nil
}

// Close destroys the native encoder. It is safe to call more than once.
func (e *Encoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle == 0 {
		return nil
	}
	ret := e.calls.destroyEncoder(e.handle)
	e.handle = 0
	unregisterSink(e.route)
	e.sink.reset()
	e.sink.packets = nil
	e.log.Debugf("[%s] destroyed", e.id)

	if ret < 0 {
		return &CodecError{Op: "destroy", Driver: e.ctx.Driver.String(), Code: ret}
	}
	return nil
}

// Context returns the current context, including bitrate and framerate
// changes applied since construction.
func (e *Encoder) Context() EncodeContext {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctx
}

// Stats returns encoding statistics.
func (e *Encoder) Stats() EncoderStats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}
