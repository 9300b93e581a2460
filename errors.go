package hwcodec

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrConstruction   = errors.New("codec construction failed")
	ErrCodecOperation = errors.New("codec operation failed")
	ErrDecoderFailed  = errors.New("decoder failed earlier and must be recreated")
	ErrClosed         = errors.New("codec closed")
	ErrDriverNotFound = errors.New("driver not registered")
	ErrInvalidContext = errors.New("invalid codec context")
	ErrInvalidSurface = errors.New("invalid surface")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// CodecError reports a negative return code from a native codec call.
type CodecError struct {
	Op     string // decode, encode, destroy, set_bitrate, set_framerate
	Driver string
	Code   int32
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("%s %s returned %d", e.Driver, e.Op, e.Code)
}

// Unwrap makes errors.Is(err, ErrCodecOperation) hold.
func (e *CodecError) Unwrap() error { return ErrCodecOperation }
