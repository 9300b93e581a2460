package hwcodec

import (
	"fmt"
	"runtime"
	"sync"
	"testing"
	"unsafe"

	"github.com/pion/logging"
)

// fakeFrame describes one callback a fakeDecodeCalls makes during decode.
type fakeFrame struct {
	format  PixelFormat
	width   int32
	height  int32
	strides [maxPlanes]int32
	key     bool
	planes  int // number of non-null planes, default 2
}

func nv12Frame(width, height, stride int32, key bool) fakeFrame {
	return fakeFrame{
		format:  PixelFormatNV12,
		width:   width,
		height:  height,
		strides: [maxPlanes]int32{stride, stride},
		key:     key,
	}
}

// fakeDecodeCalls is an in-memory vendor backend. Its decode invokes the real
// onDecodedFrame entry point with Go-allocated planes laid out the way a
// native library would pass them.
type fakeDecodeCalls struct {
	mu sync.Mutex

	unsupported bool
	reject      func(decoderParams) bool
	output      func(data []byte) []fakeFrame
	ret         func(data []byte) int32
	destroyRet  int32
	candidates  []codecCandidate
	lastErr     string

	nextHandle uintptr
	created    []decoderParams
	decodes    int
	destroyed  map[uintptr]int

	// Last planes handed to the callback, kept reachable from the heap so
	// their addresses stay valid across the call.
	planes  [][]byte
	ptrs    *[maxPlanes]uintptr
	strides *[maxPlanes]int32
}

func (f *fakeDecodeCalls) newDecoder(p decoderParams) uintptr {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, p)
	if f.reject != nil && f.reject(p) {
		return 0
	}
	f.nextHandle++
	return 0x1000 + f.nextHandle
}

func (f *fakeDecodeCalls) decode(codec uintptr, data []byte, obj uintptr) int32 {
	f.mu.Lock()
	f.decodes++
	output, ret := f.output, f.ret
	f.mu.Unlock()

	if ret != nil {
		if r := ret(data); r < 0 {
			return r
		}
	}
	if output == nil {
		return 0
	}
	for i, fr := range output(data) {
		f.emit(fr, obj, byte(i))
	}
	return 0
}

// emit fills each plane with a running byte pattern offset by seed and calls
// the decode callback.
func (f *fakeDecodeCalls) emit(fr fakeFrame, obj uintptr, seed byte) {
	planes := fr.planes
	if planes == 0 {
		planes = 2
	}
	f.ptrs = new([maxPlanes]uintptr)
	f.strides = new([maxPlanes]int32)
	f.planes = f.planes[:0]
	*f.strides = fr.strides

	for p := 0; p < planes; p++ {
		rows := int(fr.height)
		if p > 0 {
			rows = (rows + 1) / 2
		}
		n := int(fr.strides[p]) * rows
		if n <= 0 {
			n = 1
		}
		buf := make([]byte, n)
		for i := range buf {
			buf[i] = byte(i) + seed + byte(p)*0x40
		}
		f.planes = append(f.planes, buf)
		f.ptrs[p] = uintptr(unsafe.Pointer(&buf[0]))
	}

	onDecodedFrame(uintptr(unsafe.Pointer(f.ptrs)), uintptr(unsafe.Pointer(f.strides)),
		int32(fr.format), fr.width, fr.height, obj, boolToInt32(fr.key))
	runtime.KeepAlive(f.planes)
}

func (f *fakeDecodeCalls) destroyDecoder(codec uintptr) int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyed == nil {
		f.destroyed = make(map[uintptr]int)
	}
	f.destroyed[codec]++
	return f.destroyRet
}

func (f *fakeDecodeCalls) decoderCandidates() []codecCandidate { return f.candidates }
func (f *fakeDecodeCalls) driverSupport() bool                 { return !f.unsupported }
func (f *fakeDecodeCalls) lastError() string                   { return f.lastErr }

func (f *fakeDecodeCalls) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *fakeDecodeCalls) decodeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.decodes
}

func (f *fakeDecodeCalls) destroyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.destroyed {
		n += c
	}
	return n
}

// fakeEncodeCalls is the encoder counterpart of fakeDecodeCalls.
type fakeEncodeCalls struct {
	mu sync.Mutex

	reject     func(encoderParams) bool
	output     func(surface Surface) [][]byte
	ret        int32
	rateRet    int32
	candidates []codecCandidate
	lastErr    string

	nextHandle uintptr
	created    []encoderParams
	encodes    int
	destroyed  int
	bitrates   []int32
	framerates []int32
	pts        int64

	buf []byte
}

func (f *fakeEncodeCalls) newEncoder(p encoderParams) uintptr {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, p)
	if f.reject != nil && f.reject(p) {
		return 0
	}
	f.nextHandle++
	return 0x2000 + f.nextHandle
}

func (f *fakeEncodeCalls) encode(codec uintptr, surface Surface, obj uintptr) int32 {
	f.mu.Lock()
	f.encodes++
	output, ret := f.output, f.ret
	f.mu.Unlock()

	if ret < 0 {
		return ret
	}
	if output == nil {
		return 0
	}
	for i, pkt := range output(surface) {
		f.pts++
		if len(pkt) == 0 {
			onEncodedPacket(0, 0, f.pts, 0, obj)
			continue
		}
		f.buf = append(f.buf[:0], pkt...)
		onEncodedPacket(uintptr(unsafe.Pointer(&f.buf[0])), int32(len(f.buf)), f.pts, boolToInt32(i == 0), obj)
		runtime.KeepAlive(f.buf)
	}
	return 0
}

func (f *fakeEncodeCalls) destroyEncoder(codec uintptr) int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed++
	return 0
}

func (f *fakeEncodeCalls) setBitrate(codec uintptr, kbitrate int32) int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bitrates = append(f.bitrates, kbitrate)
	return f.rateRet
}

func (f *fakeEncodeCalls) setFramerate(codec uintptr, framerate int32) int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.framerates = append(f.framerates, framerate)
	return f.rateRet
}

func (f *fakeEncodeCalls) encoderCandidates() []codecCandidate { return f.candidates }
func (f *fakeEncodeCalls) lastError() string                   { return f.lastErr }

// recordingLogger counts log calls per level.
type recordingLogger struct {
	mu       sync.Mutex
	warnings []string
	errors   []string
}

func (l *recordingLogger) Trace(string)          {}
func (l *recordingLogger) Tracef(string, ...any) {}
func (l *recordingLogger) Debug(string)          {}
func (l *recordingLogger) Debugf(string, ...any) {}
func (l *recordingLogger) Info(string)           {}
func (l *recordingLogger) Infof(string, ...any)  {}

func (l *recordingLogger) Warn(msg string) { l.Warnf("%s", msg) }

func (l *recordingLogger) Warnf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Error(msg string) { l.Errorf("%s", msg) }

func (l *recordingLogger) Errorf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) warnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.warnings)
}

func (l *recordingLogger) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

type recordingFactory struct{ log *recordingLogger }

func (f recordingFactory) NewLogger(string) logging.LeveledLogger { return f.log }

// recordLogs routes every logger created during the test to one recorder.
func recordLogs(t *testing.T) *recordingLogger {
	t.Helper()
	rec := &recordingLogger{}
	SetLoggerFactory(recordingFactory{rec})
	t.Cleanup(func() { SetLoggerFactory(nil) })
	return rec
}

func testDecodeContext() DecodeContext {
	return DecodeContext{
		Driver:     DecodeDriverCUVID,
		API:        APIDX11,
		DataFormat: DataFormatH264,
	}
}

func testEncodeContext() EncodeContext {
	return EncodeContext{
		FeatureContext: FeatureContext{Driver: EncodeDriverNVENC, API: APIDX11, DataFormat: DataFormatH264},
		DynamicContext: DynamicContext{Device: 0xd3d, Width: 1280, Height: 720, Kbitrate: 2000, Framerate: 30, GOP: 60},
	}
}

func newFakeDecoder(t *testing.T, calls *fakeDecodeCalls) *Decoder {
	t.Helper()
	d, err := newDecoder(calls, testDecodeContext())
	if err != nil {
		t.Fatalf("newDecoder() error = %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func newFakeEncoder(t *testing.T, calls *fakeEncodeCalls) *Encoder {
	t.Helper()
	e, err := newEncoder(calls, testEncodeContext())
	if err != nil {
		t.Fatalf("newEncoder() error = %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}
