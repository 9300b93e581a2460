package hwcodec

import (
	"fmt"
	"slices"
	"sync"
)

// codecCandidate is one statically declared (API, format) pair a driver may
// support. Declaration says nothing about the current machine.
type codecCandidate struct {
	API        API
	DataFormat DataFormat
}

type decoderParams struct {
	device Device
	luid   int64
	api    API
	format DataFormat
	shared bool
	pixfmt PixelFormat
}

type encoderParams struct {
	device    Device
	luid      int64
	api       API
	format    DataFormat
	width     int32
	height    int32
	kbitrate  int32
	framerate int32
	gop       int32
}

// decodeCalls is the decoder half of a vendor backend. A value is bound to a
// Decoder at construction and used for its whole lifetime.
type decodeCalls interface {
	// newDecoder returns an opaque handle, or 0 when the backend rejects
	// the combination.
	newDecoder(p decoderParams) uintptr
	// decode feeds one packet. The backend invokes onDecodedFrame with obj
	// zero or more times before returning. Negative results are failures.
	decode(codec uintptr, data []byte, obj uintptr) int32
	destroyDecoder(codec uintptr) int32
	decoderCandidates() []codecCandidate
	driverSupport() bool
	lastError() string
}

// encodeCalls is the encoder half of a vendor backend.
type encodeCalls interface {
	newEncoder(p encoderParams) uintptr
	// encode submits one surface; packets arrive through onEncodedPacket.
	encode(codec uintptr, surface Surface, obj uintptr) int32
	destroyEncoder(codec uintptr) int32
	setBitrate(codec uintptr, kbitrate int32) int32
	setFramerate(codec uintptr, framerate int32) int32
	encoderCandidates() []codecCandidate
	lastError() string
}

type driverRegistry struct {
	mu      sync.RWMutex
	decoder map[DecodeDriver]decodeCalls
	encoder map[EncodeDriver]encodeCalls
}

var globalDriverRegistry = &driverRegistry{
	decoder: make(map[DecodeDriver]decodeCalls),
	encoder: make(map[EncodeDriver]encodeCalls),
}

// registerDecodeDriver binds a backend to a driver, returning the previous one.
func registerDecodeDriver(d DecodeDriver, calls decodeCalls) decodeCalls {
	globalDriverRegistry.mu.Lock()
	defer globalDriverRegistry.mu.Unlock()
	prev := globalDriverRegistry.decoder[d]
	if calls == nil {
		delete(globalDriverRegistry.decoder, d)
	} else {
		globalDriverRegistry.decoder[d] = calls
	}
	return prev
}

// registerEncodeDriver binds a backend to a driver, returning the previous one.
func registerEncodeDriver(d EncodeDriver, calls encodeCalls) encodeCalls {
	globalDriverRegistry.mu.Lock()
	defer globalDriverRegistry.mu.Unlock()
	prev := globalDriverRegistry.encoder[d]
	if calls == nil {
		delete(globalDriverRegistry.encoder, d)
	} else {
		globalDriverRegistry.encoder[d] = calls
	}
	return prev
}

func resolveDecodeCalls(d DecodeDriver) (decodeCalls, error) {
	globalDriverRegistry.mu.RLock()
	calls, ok := globalDriverRegistry.decoder[d]
	globalDriverRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %w: decoder %s", ErrConstruction, ErrDriverNotFound, d)
	}
	return calls, nil
}

func resolveEncodeCalls(d EncodeDriver) (encodeCalls, error) {
	globalDriverRegistry.mu.RLock()
	calls, ok := globalDriverRegistry.encoder[d]
	globalDriverRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %w: encoder %s", ErrConstruction, ErrDriverNotFound, d)
	}
	return calls, nil
}

// registeredDecodeDrivers returns a snapshot of the decoder table.
func registeredDecodeDrivers() map[DecodeDriver]decodeCalls {
	globalDriverRegistry.mu.RLock()
	defer globalDriverRegistry.mu.RUnlock()
	out := make(map[DecodeDriver]decodeCalls, len(globalDriverRegistry.decoder))
	for d, calls := range globalDriverRegistry.decoder {
		out[d] = calls
	}
	return out
}

// DecodeDrivers returns the decode drivers compiled into this build.
func DecodeDrivers() []DecodeDriver {
	globalDriverRegistry.mu.RLock()
	defer globalDriverRegistry.mu.RUnlock()
	drivers := make([]DecodeDriver, 0, len(globalDriverRegistry.decoder))
	for d := range globalDriverRegistry.decoder {
		drivers = append(drivers, d)
	}
	slices.Sort(drivers)
	return drivers
}

// EncodeDrivers returns the encode drivers compiled into this build.
func EncodeDrivers() []EncodeDriver {
	globalDriverRegistry.mu.RLock()
	defer globalDriverRegistry.mu.RUnlock()
	drivers := make([]EncodeDriver, 0, len(globalDriverRegistry.encoder))
	for d := range globalDriverRegistry.encoder {
		drivers = append(drivers, d)
	}
	slices.Sort(drivers)
	return drivers
}

// PossibleEncoders lists every statically declared encoder combination of the
// compiled-in drivers. Unlike AvailableDecoders nothing is probed.
func PossibleEncoders() []FeatureContext {
	var out []FeatureContext
	for _, d := range EncodeDrivers() {
		calls, err := resolveEncodeCalls(d)
		if err != nil {
			continue
		}
		for _, c := range calls.encoderCandidates() {
			out = append(out, FeatureContext{Driver: d, API: c.API, DataFormat: c.DataFormat})
		}
	}
	return out
}

// nativeReason formats a backend diagnostic for construction errors.
func nativeReason(msg string) string {
	if msg == "" {
		return "backend rejected the combination"
	}
	return msg
}
