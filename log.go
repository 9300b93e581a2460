package hwcodec

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/pion/logging"
)

var (
	loggerMu      sync.RWMutex
	loggerFactory logging.LoggerFactory = logging.NewDefaultLoggerFactory()
)

// SetLoggerFactory replaces the factory used for loggers of codec instances,
// the prober and pipelines created afterwards. The default honours the
// PION_LOG_* environment variables.
func SetLoggerFactory(f logging.LoggerFactory) {
	if f == nil {
		f = logging.NewDefaultLoggerFactory()
	}
	loggerMu.Lock()
	loggerFactory = f
	loggerMu.Unlock()
}

func newLogger(scope string) logging.LeveledLogger {
	loggerMu.RLock()
	f := loggerFactory
	loggerMu.RUnlock()
	return f.NewLogger("hwcodec-" + scope)
}

// ParseLogLevel maps disable, error, warn, info, debug and trace to a level.
func ParseLogLevel(s string) (logging.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disable", "disabled", "off":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn", "warning":
		return logging.LogLevelWarn, nil
	case "", "info":
		return logging.LogLevelInfo, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	default:
		return logging.LogLevelDisabled, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, s)
	}
}

// NewLoggerFactory returns a factory logging at level to w (stderr if nil).
func NewLoggerFactory(level logging.LogLevel, w io.Writer) logging.LoggerFactory {
	if w == nil {
		w = os.Stderr
	}
	return &logging.DefaultLoggerFactory{
		Writer:          w,
		DefaultLogLevel: level,
		ScopeLevels:     make(map[string]logging.LogLevel),
	}
}
