package hwcodec

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"
)

// DecoderStats provides decoding metrics.
type DecoderStats struct {
	PacketsDecoded   uint64 // Decode calls that reached the driver
	FramesDecoded    uint64 // Frames copied out
	KeyframesDecoded uint64
	BytesDecoded     uint64 // Compressed input bytes
	DroppedFrames    uint64 // Frames the driver produced but could not be copied out
	Errors           uint64
	DecodeTimeUs     uint64
}

// Add accumulates o into s, for totals across decoders rebuilt after a
// failure.
func (s *DecoderStats) Add(o DecoderStats) {
	s.PacketsDecoded += o.PacketsDecoded
	s.FramesDecoded += o.FramesDecoded
	s.KeyframesDecoded += o.KeyframesDecoded
	s.BytesDecoded += o.BytesDecoded
	s.DroppedFrames += o.DroppedFrames
	s.Errors += o.Errors
	s.DecodeTimeUs += o.DecodeTimeUs
}

// maxDecodePacket is the largest input the driver's int32 length can carry.
var maxDecodePacket = math.MaxInt32

// Decoder owns one native hardware decoder.
//
// A Decoder must not be copied. Decode results alias an internal buffer that
// is reused by the next Decode call.
type Decoder struct {
	ctx   DecodeContext
	calls decodeCalls
	id    string
	log   logging.LeveledLogger

	handle uintptr
	route  uintptr
	sink   *frameSink
	failed error

	stats   DecoderStats
	statsMu sync.Mutex

	mu sync.Mutex
}

// NewDecoder creates a decoder for ctx. It fails with ErrConstruction when the
// driver is not compiled in, its runtime is missing, or the backend rejects
// the combination.
func NewDecoder(ctx DecodeContext) (*Decoder, error) {
	calls, err := resolveDecodeCalls(ctx.Driver)
	if err != nil {
		return nil, err
	}
	return newDecoder(calls, ctx)
}

func newDecoder(calls decodeCalls, ctx DecodeContext) (*Decoder, error) {
	if err := ctx.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConstruction, err)
	}

	device := ctx.Device
	if ctx.OutputSharedHandle {
		device = NoDevice
	}
	handle := calls.newDecoder(decoderParams{
		device: device,
		luid:   ctx.LUID,
		api:    ctx.API,
		format: ctx.DataFormat,
		shared: ctx.OutputSharedHandle,
		pixfmt: PixelFormatNV12,
	})
	if handle == 0 {
		return nil, fmt.Errorf("%w: decoder %s: %s", ErrConstruction, ctx, nativeReason(calls.lastError()))
	}

	d := &Decoder{
		ctx:    ctx,
		calls:  calls,
		id:     uuid.NewString()[:8],
		log:    newLogger("decoder"),
		handle: handle,
	}
	d.sink = &frameSink{log: d.log}
	d.route = registerSink(d.sink)
	d.log.Debugf("[%s] created %s", d.id, ctx)
	return d, nil
}

// Decode feeds one compressed packet (an access unit for H.264/H.265) and
// returns the frames the driver produced for it, possibly none. The returned
// slice is valid until the next Decode call; plane data inside each frame is
// owned by the caller.
//
// After a driver failure the decoder stays failed: later calls return
// ErrDecoderFailed and a new Decoder must be created from Context().
func (d *Decoder) Decode(data []byte) ([]DecodeFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle == 0 {
		return nil, ErrClosed
	}
	if d.failed != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecoderFailed, d.failed)
	}

	d.sink.reset()
	if len(data) == 0 {
		return d.sink.frames, nil
	}
	if len(data) > maxDecodePacket {
		return nil, fmt.Errorf("%w: packet of %d bytes exceeds %d", ErrInvalidContext, len(data), maxDecodePacket)
	}

	start := time.Now()
	ret := d.calls.decode(d.handle, data, d.route)
	elapsed := time.Since(start)

	d.statsMu.Lock()
	d.stats.DecodeTimeUs += uint64(elapsed.Microseconds())
	d.stats.DroppedFrames += d.sink.dropped
	if ret < 0 {
		d.stats.Errors++
	} else {
		d.stats.PacketsDecoded++
		d.stats.BytesDecoded += uint64(len(data))
		d.stats.FramesDecoded += uint64(len(d.sink.frames))
		for i := range d.sink.frames {
			if d.sink.frames[i].Key {
				d.stats.KeyframesDecoded++
			}
		}
	}
	d.statsMu.Unlock()

	if ret < 0 {
		err := &CodecError{Op: "decode", Driver: d.ctx.Driver.String(), Code: ret}
		d.failed = err
		d.sink.reset()
		d.log.Errorf("[%s] %v: %s", d.id, err, nativeReason(d.calls.lastError()))
		return nil, err
	}
	return d.sink.frames, nil
}

// Close destroys the native decoder. It is safe to call more than once.
func (d *Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle == 0 {
		return nil
	}
	ret := d.calls.destroyDecoder(d.handle)
	d.handle = 0
	unregisterSink(d.route)
	d.sink.reset()
	d.sink.frames = nil
	d.log.Debugf("[%s] destroyed", d.id)

	if ret < 0 {
		return &CodecError{Op: "destroy", Driver: d.ctx.Driver.String(), Code: ret}
	}
	return nil
}

// Context returns the context the decoder was created with.
func (d *Decoder) Context() DecodeContext { return d.ctx }

// Failed reports whether a driver failure has made the decoder unusable.
func (d *Decoder) Failed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failed != nil
}

// Stats returns decoding statistics.
func (d *Decoder) Stats() DecoderStats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}
