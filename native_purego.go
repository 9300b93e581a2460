//go:build (darwin || linux || windows) && (amd64 || arm64)

package hwcodec

import (
	"sync"

	"github.com/ebitengine/purego"
)

func (l *nativeLib) bind(handle uintptr) error {
	prefix := vendorInfo[l.vendor].Prefix
	for _, sym := range l.symbols() {
		addr, err := lookupSymbol(handle, prefix+"_"+sym.name)
		if err != nil {
			return err
		}
		purego.RegisterFunc(sym.fptr, addr)
	}
	return nil
}

// One native trampoline per callback kind for the whole process; purego can
// only create a bounded number of them. Instances are routed by the obj id.
var (
	callbackOnce      sync.Once
	decodeCallbackPtr uintptr
	encodeCallbackPtr uintptr
)

func callbackPointers() (decode, encode uintptr) {
	callbackOnce.Do(func() {
		decodeCallbackPtr = purego.NewCallback(onDecodedFrame)
		encodeCallbackPtr = purego.NewCallback(onEncodedPacket)
	})
	return decodeCallbackPtr, encodeCallbackPtr
}
