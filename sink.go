package hwcodec

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/pion/randutil"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
)

// ElementaryStreamWriter appends encoded packets to a raw elementary-stream
// file (.264, .265, .obu) in encode order.
type ElementaryStreamWriter struct {
	mu      sync.Mutex
	f       *os.File
	w       *bufio.Writer
	packets uint64
	bytes   uint64
}

// CreateElementaryStream opens path for appending, creating it if needed.
func CreateElementaryStream(path string) (*ElementaryStreamWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &ElementaryStreamWriter{f: f, w: bufio.NewWriter(f)}, nil
}

// WritePacket implements PacketSink.
func (w *ElementaryStreamWriter) WritePacket(pkt EncodeFrame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return ErrClosed
	}
	n, err := w.w.Write(pkt.Data)
	w.bytes += uint64(n)
	if err != nil {
		return err
	}
	w.packets++
	return nil
}

// Written returns the number of packets and bytes written so far.
func (w *ElementaryStreamWriter) Written() (packets, bytes uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.packets, w.bytes
}

// Close flushes buffered data and closes the file.
func (w *ElementaryStreamWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	ferr := w.w.Flush()
	cerr := w.f.Close()
	w.f = nil
	if ferr != nil {
		return ferr
	}
	return cerr
}

// RTPWriter receives marshaled RTP packets.
type RTPWriter interface {
	WriteRTP(pkt *rtp.Packet) error
}

// RTPPacketSink packetizes encoded packets for network hand-off. Timestamps
// advance by one frame interval per packet at the format's 90 kHz clock.
type RTPPacketSink struct {
	packetizer rtp.Packetizer
	writer     RTPWriter
	ssrc       uint32
	samples    uint32

	mu      sync.Mutex
	packets uint64
}

var ssrcGenerator = randutil.NewMathRandomGenerator()

// RTPSinkConfig configures an RTPPacketSink.
type RTPSinkConfig struct {
	Format      DataFormat
	Framerate   int
	PayloadType uint8  // 0 selects the format default
	SSRC        uint32 // 0 selects a random SSRC
	MTU         uint16 // 0 selects 1200
}

// NewRTPPacketSink creates an RTP sink writing to w.
func NewRTPPacketSink(cfg RTPSinkConfig, w RTPWriter) (*RTPPacketSink, error) {
	if w == nil {
		return nil, fmt.Errorf("%w: rtp writer is required", ErrInvalidConfig)
	}
	if cfg.Framerate <= 0 {
		return nil, fmt.Errorf("%w: framerate %d", ErrInvalidConfig, cfg.Framerate)
	}

	var payloader rtp.Payloader
	switch cfg.Format {
	case DataFormatH264:
		payloader = &codecs.H264Payloader{}
	case DataFormatH265:
		payloader = &codecs.H265Payloader{}
	case DataFormatAV1:
		payloader = &codecs.AV1Payloader{}
	default:
		return nil, fmt.Errorf("%w: no RTP payloader for %s", ErrInvalidConfig, cfg.Format)
	}

	if cfg.PayloadType == 0 {
		cfg.PayloadType = cfg.Format.DefaultPayloadType()
	}
	if cfg.MTU == 0 {
		cfg.MTU = 1200
	}
	for cfg.SSRC == 0 {
		cfg.SSRC = ssrcGenerator.Uint32()
	}

	return &RTPPacketSink{
		packetizer: rtp.NewPacketizer(cfg.MTU, cfg.PayloadType, cfg.SSRC, payloader, rtp.NewRandomSequencer(), cfg.Format.ClockRate()),
		writer:     w,
		ssrc:       cfg.SSRC,
		samples:    cfg.Format.ClockRate() / uint32(cfg.Framerate),
	}, nil
}

// SSRC returns the synchronization source stamped on every packet.
func (s *RTPPacketSink) SSRC() uint32 {
	return s.ssrc
}

// WritePacket implements PacketSink.
func (s *RTPPacketSink) WritePacket(pkt EncodeFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.packetizer.Packetize(pkt.Data, s.samples) {
		if err := s.writer.WriteRTP(p); err != nil {
			return err
		}
		s.packets++
	}
	return nil
}

// PacketsSent returns the number of RTP packets written.
func (s *RTPPacketSink) PacketsSent() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packets
}

// RawFrameWriter is a Renderer that writes NV12 frames to w as tightly
// packed planes (stride padding removed), the layout raw .yuv players expect.
type RawFrameWriter struct {
	mu     sync.Mutex
	w      io.Writer
	frames uint64
}

// NewRawFrameWriter returns a RawFrameWriter writing to w.
func NewRawFrameWriter(w io.Writer) *RawFrameWriter {
	return &RawFrameWriter{w: w}
}

// Render implements Renderer.
func (r *RawFrameWriter) Render(frame DecodeFrame) error {
	if frame.Format != PixelFormatNV12 || len(frame.Data) < 2 || len(frame.Linesize) < 2 {
		return fmt.Errorf("raw writer: unsupported frame %s", frame.Format)
	}
	// NV12 chroma rows hold interleaved U/V, so both planes are Width bytes wide.
	if frame.Linesize[0] < frame.Width || frame.Linesize[1] < frame.Width {
		return fmt.Errorf("raw writer: linesize %d/%d below width %d", frame.Linesize[0], frame.Linesize[1], frame.Width)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := writePlane(r.w, frame.Data[0], frame.Linesize[0], frame.Width, frame.Height); err != nil {
		return err
	}
	if err := writePlane(r.w, frame.Data[1], frame.Linesize[1], frame.Width, frame.Height/2); err != nil {
		return err
	}
	r.frames++
	return nil
}

// Frames returns the number of frames written.
func (r *RawFrameWriter) Frames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

func writePlane(w io.Writer, plane []byte, stride, width, rows int) error {
	if len(plane) < stride*(rows-1)+width {
		return fmt.Errorf("raw writer: plane of %d bytes too short for %d rows", len(plane), rows)
	}
	if stride == width {
		_, err := w.Write(plane[:width*rows])
		return err
	}
	for y := 0; y < rows; y++ {
		if _, err := w.Write(plane[y*stride : y*stride+width]); err != nil {
			return err
		}
	}
	return nil
}
