package hwcodec

import (
	"fmt"
	"math"
)

// MaxGOP disables periodic key frames; the encoder emits one at start and on
// driver demand only.
const MaxGOP = math.MaxInt32

// Device is a borrowed native device handle (ID3D11Device*, CUcontext,
// VADisplay, ...). Codec instances never take ownership of it; the caller
// keeps it alive for as long as any instance referencing it is in use.
type Device uintptr

// NoDevice means the codec creates and owns its device internally.
const NoDevice Device = 0

// Surface is a caller-owned GPU texture handed to Encoder.Encode.
type Surface uintptr

// FeatureContext identifies which backend and adapter an encoder targets.
type FeatureContext struct {
	Driver     EncodeDriver
	API        API
	DataFormat DataFormat
	LUID       int64 // Adapter LUID, 0 for the default adapter
}

// DynamicContext holds per-session encoder tunables.
type DynamicContext struct {
	Device    Device
	Width     int
	Height    int
	Kbitrate  int
	Framerate int
	GOP       int
}

// EncodeContext describes how to construct an Encoder.
type EncodeContext struct {
	FeatureContext
	DynamicContext
}

// DecodeContext describes how to construct a Decoder.
//
// When OutputSharedHandle is set the decoder owns its device and exports
// frames as shared surfaces; Device is then ignored. This is what lets
// an encoder and decoder on different adapters exchange frames.
type DecodeContext struct {
	Driver             DecodeDriver
	Device             Device
	API                API
	DataFormat         DataFormat
	OutputSharedHandle bool
	LUID               int64
}

func (c FeatureContext) String() string {
	return fmt.Sprintf("%s/%s/%s@%x", c.Driver, c.API, c.DataFormat, c.LUID)
}

func (c DecodeContext) String() string {
	s := fmt.Sprintf("%s/%s/%s@%x", c.Driver, c.API, c.DataFormat, c.LUID)
	if c.OutputSharedHandle {
		s += "+shared"
	}
	return s
}

func (c FeatureContext) validate() error {
	if c.Driver == EncodeDriverUnknown || c.Driver >= encodeDriverCount {
		return fmt.Errorf("%w: encode driver %d", ErrInvalidContext, c.Driver)
	}
	if c.API <= APIUnknown || c.API >= apiCount {
		return fmt.Errorf("%w: api %d", ErrInvalidContext, int32(c.API))
	}
	if c.DataFormat <= DataFormatUnknown || c.DataFormat >= dataFormatCount {
		return fmt.Errorf("%w: data format %d", ErrInvalidContext, int32(c.DataFormat))
	}
	return nil
}

func (c EncodeContext) validate() error {
	if err := c.FeatureContext.validate(); err != nil {
		return err
	}
	// NV12 input needs even dimensions.
	if c.Width <= 0 || c.Height <= 0 || c.Width%2 != 0 || c.Height%2 != 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidContext, c.Width, c.Height)
	}
	if c.Kbitrate <= 0 || c.Framerate <= 0 || c.GOP <= 0 {
		return fmt.Errorf("%w: kbitrate %d framerate %d gop %d", ErrInvalidContext, c.Kbitrate, c.Framerate, c.GOP)
	}
	return nil
}

func (c DecodeContext) validate() error {
	if c.Driver == DecodeDriverUnknown || c.Driver >= decodeDriverCount {
		return fmt.Errorf("%w: decode driver %d", ErrInvalidContext, c.Driver)
	}
	if c.API <= APIUnknown || c.API >= apiCount {
		return fmt.Errorf("%w: api %d", ErrInvalidContext, int32(c.API))
	}
	if c.DataFormat <= DataFormatUnknown || c.DataFormat >= dataFormatCount {
		return fmt.Errorf("%w: data format %d", ErrInvalidContext, int32(c.DataFormat))
	}
	return nil
}
