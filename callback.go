package hwcodec

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/pion/logging"
)

// maxPlanes is the length of the plane pointer and linesize arrays the
// native decode callback passes.
const maxPlanes = 4

// Live sinks keyed by the obj value handed to native code. Native code only
// ever sees the id, never a Go pointer.
var (
	activeSinks sync.Map // uintptr -> *frameSink | *packetSink
	sinkSeq     atomic.Uintptr
)

func registerSink(sink any) uintptr {
	id := sinkSeq.Add(1)
	activeSinks.Store(id, sink)
	return id
}

func unregisterSink(id uintptr) {
	activeSinks.Delete(id)
}

// frameSink collects the frames of one Decode call.
type frameSink struct {
	log     logging.LeveledLogger
	frames  []DecodeFrame
	dropped uint64
}

func (s *frameSink) reset() {
	clear(s.frames)
	s.frames = s.frames[:0]
	s.dropped = 0
}

// onDecodedFrame is the target of the native decode callback. It runs
// synchronously inside the native decode call, so the sink is guarded by the
// owning Decoder's mutex.
func onDecodedFrame(datas, linesizes uintptr, format, width, height int32, obj uintptr, key int32) uintptr {
	v, ok := activeSinks.Load(obj)
	if !ok {
		return 0
	}
	sink, ok := v.(*frameSink)
	if !ok {
		return 0
	}

	var planes [maxPlanes]uintptr
	var strides [maxPlanes]int32
	if datas != 0 {
		planes = *(*[maxPlanes]uintptr)(unsafe.Pointer(datas))
	}
	if linesizes != 0 {
		strides = *(*[maxPlanes]int32)(unsafe.Pointer(linesizes))
	}
	sink.deliver(PixelFormat(format), int(width), int(height), planes, strides, key != 0)
	return 0
}

// deliver copies one native frame into Go memory. The native buffers may be
// reused as soon as the callback returns.
func (s *frameSink) deliver(format PixelFormat, width, height int, planes [maxPlanes]uintptr, strides [maxPlanes]int32, key bool) {
	if format != PixelFormatNV12 {
		s.dropped++
		s.log.Warnf("unsupported pixel format %s, frame dropped", format)
		return
	}

	lumaSize, chromaSize, ok := NV12PlaneSizes(height, int(strides[0]), int(strides[1]))
	if !ok || width <= 0 || planes[0] == 0 || planes[1] == 0 {
		s.dropped++
		s.log.Warnf("invalid NV12 frame %dx%d linesize %d/%d, frame dropped", width, height, strides[0], strides[1])
		return
	}

	s.frames = append(s.frames, DecodeFrame{
		Format:   PixelFormatNV12,
		Width:    width,
		Height:   height,
		Data:     [][]byte{copyNative(planes[0], lumaSize), copyNative(planes[1], chromaSize)},
		Linesize: []int{int(strides[0]), int(strides[1])},
		Key:      key,
	})
}

// packetSink collects the packets of one Encode call.
type packetSink struct {
	log     logging.LeveledLogger
	packets []EncodeFrame
}

func (s *packetSink) reset() {
	clear(s.packets)
	s.packets = s.packets[:0]
}

// onEncodedPacket is the target of the native encode callback.
func onEncodedPacket(data uintptr, length int32, pts int64, key int32, obj uintptr) uintptr {
	v, ok := activeSinks.Load(obj)
	if !ok {
		return 0
	}
	sink, ok := v.(*packetSink)
	if !ok {
		return 0
	}
	if data == 0 || length <= 0 {
		sink.log.Warnf("empty packet from encoder (len %d), ignored", length)
		return 0
	}
	sink.packets = append(sink.packets, EncodeFrame{
		Data: copyNative(data, int(length)),
		PTS:  pts,
		Key:  key != 0,
	})
	return 0
}

func copyNative(ptr uintptr, n int) []byte {
	out := make([]byte, n)
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(ptr)), n))
	return out
}
