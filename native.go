package hwcodec

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"unsafe"
)

// nativeLib is one vendor shim library (hwcodec_<vendor>) exporting the
// <prefix>_* ABI from clib/hwcodec.h. It loads on first use.
type nativeLib struct {
	vendor Vendor

	once   sync.Once
	handle uintptr
	path   string
	err    error

	fnDriverSupport  func() int32
	fnNewEncoder     func(device uintptr, luid int64, api, format, width, height, kbitrate, framerate, gop int32) uintptr
	fnEncode         func(codec, texture, callback, obj uintptr) int32
	fnDestroyEncoder func(codec uintptr) int32
	fnSetBitrate     func(codec uintptr, kbitrate int32) int32
	fnSetFramerate   func(codec uintptr, framerate int32) int32
	fnNewDecoder     func(device uintptr, luid int64, api, format, shared, pixfmt int32) uintptr
	fnDecode         func(codec, data uintptr, length int32, callback, obj uintptr) int32
	fnDestroyDecoder func(codec uintptr) int32
	fnLastError      func() uintptr
}

func (l *nativeLib) load() error {
	l.once.Do(func() {
		l.err = l.open()
		if l.err == nil {
			vendorLoaded[l.vendor].Store(true)
		}
	})
	return l.err
}

func (l *nativeLib) open() error {
	name := vendorInfo[l.vendor].Library

	var lastErr error
	for _, path := range libraryPaths(name) {
		handle, err := openLibrary(path)
		if err != nil {
			lastErr = err
			continue
		}
		if err := l.bind(handle); err != nil {
			closeLibrary(handle)
			lastErr = err
			continue
		}
		l.handle = handle
		l.path = path
		return nil
	}

	if lastErr != nil {
		return fmt.Errorf("failed to load %s: %w", libraryFileName(name), lastErr)
	}
	return fmt.Errorf("%s not found in any standard location", libraryFileName(name))
}

func (l *nativeLib) symbols() []nativeSymbol {
	return []nativeSymbol{
		{&l.fnDriverSupport, "driver_support"},
		{&l.fnNewEncoder, "new_encoder"},
		{&l.fnEncode, "encode"},
		{&l.fnDestroyEncoder, "destroy_encoder"},
		{&l.fnSetBitrate, "set_bitrate"},
		{&l.fnSetFramerate, "set_framerate"},
		{&l.fnNewDecoder, "new_decoder"},
		{&l.fnDecode, "decode"},
		{&l.fnDestroyDecoder, "destroy_decoder"},
		{&l.fnLastError, "last_error"},
	}
}

type nativeSymbol struct {
	fptr any
	name string
}

func (l *nativeLib) lastError() string {
	if err := l.load(); err != nil {
		return err.Error()
	}
	return goStringFromPtr(l.fnLastError())
}

func libraryFileName(name string) string {
	switch runtime.GOOS {
	case "windows":
		return name + ".dll"
	case "darwin":
		return "lib" + name + ".dylib"
	default:
		return "lib" + name + ".so"
	}
}

func libraryPaths(name string) []string {
	file := libraryFileName(name)
	var paths []string

	// Environment variable override (highest priority)
	if dir := os.Getenv("HWCODEC_LIB_PATH"); dir != "" {
		paths = append(paths, filepath.Join(dir, file))
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, file),
			filepath.Join(exeDir, "..", "lib", file),
		)
	}

	if wd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(wd, "build", file))
	}
	if root := findModuleRoot(); root != "" {
		paths = append(paths, filepath.Join(root, "build", file))
	}

	switch runtime.GOOS {
	case "darwin":
		paths = append(paths, "/usr/local/lib/"+file, "/opt/homebrew/lib/"+file)
	case "linux":
		paths = append(paths, "/usr/local/lib/"+file, "/usr/lib/"+file)
	}

	// Bare name last: the platform loader applies its own search order.
	return append(paths, file)
}

// findModuleRoot walks up from the working directory to the directory
// containing go.mod.
func findModuleRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// goStringFromPtr converts a NUL-terminated C string to a Go string.
func goStringFromPtr(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	p := unsafe.Pointer(ptr)
	var n int
	for *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
		if n > 1024 { // Safety limit
			break
		}
	}
	return string(unsafe.Slice((*byte)(p), n))
}

func boolToInt32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// nativeDecodeCalls binds a decode driver to its vendor library.
type nativeDecodeCalls struct {
	lib        *nativeLib
	candidates []codecCandidate
}

func (c *nativeDecodeCalls) newDecoder(p decoderParams) uintptr {
	if c.lib.load() != nil {
		return 0
	}
	return c.lib.fnNewDecoder(uintptr(p.device), p.luid, int32(p.api), int32(p.format), boolToInt32(p.shared), int32(p.pixfmt))
}

func (c *nativeDecodeCalls) decode(codec uintptr, data []byte, obj uintptr) int32 {
	callback, _ := callbackPointers()
	ret := c.lib.fnDecode(codec, uintptr(unsafe.Pointer(unsafe.SliceData(data))), int32(len(data)), callback, obj)
	runtime.KeepAlive(data)
	return ret
}

func (c *nativeDecodeCalls) destroyDecoder(codec uintptr) int32 {
	return c.lib.fnDestroyDecoder(codec)
}

func (c *nativeDecodeCalls) decoderCandidates() []codecCandidate { return c.candidates }

func (c *nativeDecodeCalls) driverSupport() bool {
	if c.lib.load() != nil {
		return false
	}
	return c.lib.fnDriverSupport() != 0
}

func (c *nativeDecodeCalls) lastError() string { return c.lib.lastError() }

// nativeEncodeCalls binds an encode driver to its vendor library.
type nativeEncodeCalls struct {
	lib        *nativeLib
	candidates []codecCandidate
}

func (c *nativeEncodeCalls) newEncoder(p encoderParams) uintptr {
	if c.lib.load() != nil {
		return 0
	}
	return c.lib.fnNewEncoder(uintptr(p.device), p.luid, int32(p.api), int32(p.format),
		p.width, p.height, p.kbitrate, p.framerate, p.gop)
}

func (c *nativeEncodeCalls) encode(codec uintptr, surface Surface, obj uintptr) int32 {
	_, callback := callbackPointers()
	return c.lib.fnEncode(codec, uintptr(surface), callback, obj)
}

func (c *nativeEncodeCalls) destroyEncoder(codec uintptr) int32 {
	return c.lib.fnDestroyEncoder(codec)
}

func (c *nativeEncodeCalls) setBitrate(codec uintptr, kbitrate int32) int32 {
	return c.lib.fnSetBitrate(codec, kbitrate)
}

func (c *nativeEncodeCalls) setFramerate(codec uintptr, framerate int32) int32 {
	return c.lib.fnSetFramerate(codec, framerate)
}

func (c *nativeEncodeCalls) encoderCandidates() []codecCandidate { return c.candidates }

func (c *nativeEncodeCalls) lastError() string { return c.lib.lastError() }
