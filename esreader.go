package hwcodec

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pion/webrtc/v4/pkg/media/h264reader"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
)

var annexBStartCode = []byte{0, 0, 0, 1}

// AccessUnitReader splits a recorded elementary stream into the units
// Decoder.Decode expects: Annex-B access units for H.264 and H.265, temporal
// units from an IVF file for AV1.
type AccessUnitReader struct {
	format DataFormat

	h264 *h264reader.H264Reader
	h265 *annexBScanner
	ivf  *ivfreader.IVFReader

	au     []byte
	hasVCL bool
	units  uint64
}

// NewAccessUnitReader returns a reader for r. With DataFormatUnknown the
// format is detected from the head of the stream.
func NewAccessUnitReader(r io.Reader, format DataFormat) (*AccessUnitReader, error) {
	br := bufio.NewReaderSize(r, detectScanLimit)
	if format == DataFormatUnknown {
		head, err := br.Peek(detectScanLimit)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
			return nil, err
		}
		if format = DetectDataFormat(head); format == DataFormatUnknown {
			return nil, fmt.Errorf("%w: unrecognised elementary stream", ErrInvalidConfig)
		}
	}

	a := &AccessUnitReader{format: format}
	switch format {
	case DataFormatH264:
		rd, err := h264reader.NewReader(br)
		if err != nil {
			return nil, err
		}
		a.h264 = rd
	case DataFormatH265:
		a.h265 = &annexBScanner{r: br}
	case DataFormatAV1:
		rd, hdr, err := ivfreader.NewWith(br)
		if err != nil {
			return nil, fmt.Errorf("av1 streams must be IVF: %w", err)
		}
		if hdr.FourCC != "AV01" {
			return nil, fmt.Errorf("%w: IVF fourcc %q is not AV1", ErrInvalidConfig, hdr.FourCC)
		}
		a.ivf = rd
	default:
		return nil, fmt.Errorf("%w: no reader for %s", ErrInvalidConfig, format)
	}
	return a, nil
}

// OpenAccessUnitReader opens path and detects its format. Closing the
// returned closer closes the file.
func OpenAccessUnitReader(path string) (*AccessUnitReader, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	r, err := NewAccessUnitReader(f, DataFormatUnknown)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, f, nil
}

// Format returns the stream's data format.
func (a *AccessUnitReader) Format() DataFormat { return a.format }

// Units returns the number of units returned so far.
func (a *AccessUnitReader) Units() uint64 { return a.units }

// Next returns the next unit, or io.EOF at the end of the stream. The
// returned slice is owned by the caller.
func (a *AccessUnitReader) Next() ([]byte, error) {
	var (
		unit []byte
		err  error
	)
	if a.ivf != nil {
		unit, _, err = a.ivf.ParseNextFrame()
	} else {
		unit, err = a.nextAccessUnit()
	}
	if err != nil {
		return nil, err
	}
	a.units++
	return unit, nil
}

func (a *AccessUnitReader) nextNAL() ([]byte, error) {
	if a.h264 != nil {
		nal, err := a.h264.NextNAL()
		if err != nil {
			return nil, err
		}
		if nal == nil {
			return nil, io.EOF
		}
		return nal.Data, nil
	}
	return a.h265.next()
}

func (a *AccessUnitReader) nextAccessUnit() ([]byte, error) {
	for {
		nal, err := a.nextNAL()
		if errors.Is(err, io.EOF) {
			if len(a.au) == 0 {
				return nil, io.EOF
			}
			return a.flush(), nil
		}
		if err != nil {
			return nil, err
		}
		if len(nal) == 0 {
			continue
		}

		vcl, first := a.classify(nal)
		if len(a.au) > 0 && a.startsAccessUnit(nal, vcl, first) {
			out := a.flush()
			a.appendNAL(nal, vcl)
			return out, nil
		}
		a.appendNAL(nal, vcl)
	}
}

// classify reports whether nal is a slice and, if so, whether it is the
// first slice of its picture.
func (a *AccessUnitReader) classify(nal []byte) (vcl, first bool) {
	if a.format == DataFormatH265 {
		t := h265NALType(nal[0])
		if t > 31 || len(nal) < 3 {
			return false, false
		}
		return true, nal[2]&0x80 != 0 // first_slice_segment_in_pic_flag
	}

	switch nal[0] & 0x1f {
	case 1, 5:
		// first_mb_in_slice is ue(v); a leading 1 bit encodes 0.
		return true, len(nal) > 1 && nal[1]&0x80 != 0
	}
	return false, false
}

// startsAccessUnit applies the access unit boundary rules of H.264 7.4.1.2.3
// and H.265 7.4.2.4.4 for the NAL types an encoder actually emits.
func (a *AccessUnitReader) startsAccessUnit(nal []byte, vcl, first bool) bool {
	if vcl {
		return a.hasVCL && first
	}
	if a.format == DataFormatH265 {
		switch h265NALType(nal[0]) {
		case 35: // AUD
			return true
		case 32, 33, 34, 39: // VPS, SPS, PPS, prefix SEI
			return a.hasVCL
		}
		return false
	}
	switch nal[0] & 0x1f {
	case 9: // AUD
		return true
	case 6, 7, 8: // SEI, SPS, PPS
		return a.hasVCL
	}
	return false
}

func (a *AccessUnitReader) appendNAL(nal []byte, vcl bool) {
	a.au = append(a.au, annexBStartCode...)
	a.au = append(a.au, nal...)
	a.hasVCL = a.hasVCL || vcl
}

func (a *AccessUnitReader) flush() []byte {
	out := a.au
	a.au = nil
	a.hasVCL = false
	return out
}

// annexBScanner splits an Annex-B byte stream into NAL units without
// interpreting NAL headers.
type annexBScanner struct {
	r       *bufio.Reader
	buf     []byte
	zeros   int
	started bool
}

func (s *annexBScanner) next() ([]byte, error) {
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return nil, err
			}
			nal := s.buf[:len(s.buf)-s.zeros]
			s.buf, s.zeros = nil, 0
			if !s.started || len(nal) == 0 {
				return nil, io.EOF
			}
			return nal, nil
		}

		switch {
		case b == 0:
			s.zeros++
			s.buf = append(s.buf, b)
		case b == 1 && s.zeros >= 2:
			nal := s.buf[:len(s.buf)-s.zeros]
			started := s.started
			s.buf, s.zeros, s.started = nil, 0, true
			if started && len(nal) > 0 {
				return nal, nil
			}
		default:
			s.zeros = 0
			s.buf = append(s.buf, b)
		}
	}
}
