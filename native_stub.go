//go:build !((darwin || linux || windows) && (amd64 || arm64))

package hwcodec

import (
	"errors"
	"runtime"
)

var errNativeUnsupported = errors.New("native codec libraries are not supported on " + runtime.GOOS + "/" + runtime.GOARCH)

func openLibrary(string) (uintptr, error) { return 0, errNativeUnsupported }

func closeLibrary(uintptr) {}

func (l *nativeLib) bind(uintptr) error { return errNativeUnsupported }

func callbackPointers() (decode, encode uintptr) { return 0, 0 }
