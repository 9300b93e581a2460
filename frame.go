// Raw and encoded frame types exchanged with codec instances.
package hwcodec

// PixelFormat is the layout of a decoded frame. Values are shared with the
// native ABI (HWCODEC_PIXFMT_*).
type PixelFormat int32

const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatNV12                // YUV 4:2:0 semi-planar (Y + interleaved UV)
	PixelFormatI420                // YUV 4:2:0 planar (Y + U + V)
	PixelFormatP010                // 10-bit 4:2:0 semi-planar
	PixelFormatBGRA                // Packed BGRA, 4 bytes per pixel
	PixelFormatRGBA                // Packed RGBA, 4 bytes per pixel
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatNV12:
		return "NV12"
	case PixelFormatI420:
		return "I420"
	case PixelFormatP010:
		return "P010"
	case PixelFormatBGRA:
		return "BGRA"
	case PixelFormatRGBA:
		return "RGBA"
	default:
		return "Unknown"
	}
}

// PlaneCount returns the number of planes for this pixel format.
func (p PixelFormat) PlaneCount() int {
	switch p {
	case PixelFormatNV12, PixelFormatP010:
		return 2 // Y, UV
	case PixelFormatI420:
		return 3
	case PixelFormatBGRA, PixelFormatRGBA:
		return 1
	default:
		return 0
	}
}

// NV12PlaneSizes returns the byte length of the luma and chroma planes of an
// NV12 frame: lumaStride*height and chromaStride*height/2. Frames with odd
// height or non-positive dimensions are rejected with ok == false.
func NV12PlaneSizes(height, lumaStride, chromaStride int) (luma, chroma int, ok bool) {
	if height <= 0 || height%2 != 0 || lumaStride <= 0 || chromaStride <= 0 {
		return 0, 0, false
	}
	return lumaStride * height, chromaStride * height / 2, true
}

// DecodeFrame is a decoded picture copied out of native memory.
// Plane data is owned by the frame.
type DecodeFrame struct {
	Format   PixelFormat
	Width    int
	Height   int
	Data     [][]byte // Plane data, luma first
	Linesize []int    // Stride of each plane in bytes
	Key      bool
}

// Clone creates a deep copy of the frame.
func (f *DecodeFrame) Clone() *DecodeFrame {
	clone := &DecodeFrame{
		Format:   f.Format,
		Width:    f.Width,
		Height:   f.Height,
		Data:     make([][]byte, len(f.Data)),
		Linesize: make([]int, len(f.Linesize)),
		Key:      f.Key,
	}
	copy(clone.Linesize, f.Linesize)
	for i, plane := range f.Data {
		if plane != nil {
			clone.Data[i] = make([]byte, len(plane))
			copy(clone.Data[i], plane)
		}
	}
	return clone
}

// EncodeFrame is one encoded packet emitted by an Encoder.
type EncodeFrame struct {
	Data []byte // Encoded bitstream, Annex-B for H.264/H.265
	PTS  int64  // Presentation timestamp reported by the driver
	Key  bool
}

// Clone creates a deep copy of the packet.
func (f *EncodeFrame) Clone() *EncodeFrame {
	clone := &EncodeFrame{PTS: f.PTS, Key: f.Key}
	if f.Data != nil {
		clone.Data = make([]byte, len(f.Data))
		copy(clone.Data, f.Data)
	}
	return clone
}
