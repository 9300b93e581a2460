package hwcodec

import (
	"fmt"
	"strings"
)

// DataFormat identifies the compressed bitstream format of a codec.
// Values are shared with the native ABI (HWCODEC_FORMAT_*).
type DataFormat int32

const (
	DataFormatUnknown DataFormat = iota
	DataFormatH264
	DataFormatH265
	DataFormatAV1
	dataFormatCount
)

func (f DataFormat) String() string {
	switch f {
	case DataFormatH264:
		return "H264"
	case DataFormatH265:
		return "H265"
	case DataFormatAV1:
		return "AV1"
	default:
		return "Unknown"
	}
}

// MimeType returns the MIME type for this format.
func (f DataFormat) MimeType() string {
	switch f {
	case DataFormatH264:
		return "video/H264"
	case DataFormatH265:
		return "video/H265"
	case DataFormatAV1:
		return "video/AV1"
	default:
		return ""
	}
}

// ClockRate returns the RTP clock rate for this format.
func (f DataFormat) ClockRate() uint32 {
	return 90000
}

// DefaultPayloadType returns a typical dynamic payload type for this format.
// The real payload type is negotiated out of band.
func (f DataFormat) DefaultPayloadType() uint8 {
	switch f {
	case DataFormatH264:
		return 102
	case DataFormatH265:
		return 104
	case DataFormatAV1:
		return 35
	default:
		return 96
	}
}

// MarshalText implements encoding.TextMarshaler.
func (f DataFormat) MarshalText() ([]byte, error) {
	if f <= DataFormatUnknown || f >= dataFormatCount {
		return nil, fmt.Errorf("%w: data format %d", ErrInvalidConfig, int32(f))
	}
	return []byte(strings.ToLower(f.String())), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. "avc" and "hevc" are
// accepted as aliases.
func (f *DataFormat) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	switch s {
	case "avc":
		*f = DataFormatH264
		return nil
	case "hevc":
		*f = DataFormatH265
		return nil
	}
	for v := DataFormatH264; v < dataFormatCount; v++ {
		if s == strings.ToLower(v.String()) {
			*f = v
			return nil
		}
	}
	return fmt.Errorf("%w: unknown data format %q", ErrInvalidConfig, text)
}

// API identifies the graphics or compute API a codec instance runs on.
// Values are shared with the native ABI (HWCODEC_API_*).
type API int32

const (
	APIUnknown API = iota
	APIDX11
	APICUDA
	APIVAAPI
	APIVulkan
	apiCount
)

func (a API) String() string {
	switch a {
	case APIDX11:
		return "DX11"
	case APICUDA:
		return "CUDA"
	case APIVAAPI:
		return "VAAPI"
	case APIVulkan:
		return "Vulkan"
	default:
		return "Unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a API) MarshalText() ([]byte, error) {
	if a <= APIUnknown || a >= apiCount {
		return nil, fmt.Errorf("%w: api %d", ErrInvalidConfig, int32(a))
	}
	return []byte(strings.ToLower(a.String())), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *API) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for v := APIDX11; v < apiCount; v++ {
		if s == strings.ToLower(v.String()) {
			*a = v
			return nil
		}
	}
	return fmt.Errorf("%w: unknown api %q", ErrInvalidConfig, text)
}

// EncodeDriver selects the vendor encoder backend.
type EncodeDriver uint8

const (
	EncodeDriverUnknown EncodeDriver = iota
	EncodeDriverNVENC                // NVIDIA Video Codec SDK encoder
	EncodeDriverAMF                  // AMD Advanced Media Framework
	EncodeDriverMFX                  // Intel Media SDK / oneVPL
	encodeDriverCount
)

// DecodeDriver selects the vendor decoder backend.
type DecodeDriver uint8

const (
	DecodeDriverUnknown DecodeDriver = iota
	DecodeDriverCUVID                // NVIDIA NVDEC via CUVID
	DecodeDriverAMF                  // AMD Advanced Media Framework
	DecodeDriverMFX                  // Intel Media SDK / oneVPL
	decodeDriverCount
)

func (d EncodeDriver) String() string {
	if d == EncodeDriverUnknown || d >= encodeDriverCount {
		return "unknown"
	}
	return encodeDriverInfo[d].Name
}

func (d DecodeDriver) String() string {
	if d == DecodeDriverUnknown || d >= decodeDriverCount {
		return "unknown"
	}
	return decodeDriverInfo[d].Name
}

// MarshalText implements encoding.TextMarshaler.
func (d EncodeDriver) MarshalText() ([]byte, error) {
	if d == EncodeDriverUnknown || d >= encodeDriverCount {
		return nil, fmt.Errorf("%w: encode driver %d", ErrInvalidConfig, d)
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *EncodeDriver) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for v := EncodeDriverNVENC; v < encodeDriverCount; v++ {
		if s == v.String() {
			*d = v
			return nil
		}
	}
	return fmt.Errorf("%w: unknown encode driver %q", ErrInvalidConfig, text)
}

// MarshalText implements encoding.TextMarshaler.
func (d DecodeDriver) MarshalText() ([]byte, error) {
	if d == DecodeDriverUnknown || d >= decodeDriverCount {
		return nil, fmt.Errorf("%w: decode driver %d", ErrInvalidConfig, d)
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DecodeDriver) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for v := DecodeDriverCUVID; v < decodeDriverCount; v++ {
		if s == v.String() {
			*d = v
			return nil
		}
	}
	return fmt.Errorf("%w: unknown decode driver %q", ErrInvalidConfig, text)
}
