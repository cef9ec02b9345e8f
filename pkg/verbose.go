package dupecache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

var globalVerboseLevel int
var debugFlags map[string]bool

var (
	logLevel = new(slog.LevelVar)
	logger   = newLogger(os.Stderr)
)

func init() {
	logLevel.Set(slog.LevelWarn)
}

// newLogger builds a tint logger; colour only when w is a terminal
func newLogger(w io.Writer) *slog.Logger {
	noColor := true
	timeFormat := time.RFC3339
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		noColor = false
		timeFormat = time.Stamp
	}

	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      logLevel,
		NoColor:    noColor,
		TimeFormat: timeFormat,
	}))
}

// SetLogOutput redirects all package logging to w
func SetLogOutput(w io.Writer) {
	logger = newLogger(w)
}

// SetVerboseLevel sets the global verbose level
func SetVerboseLevel(level int) {
	globalVerboseLevel = level
	switch {
	case level <= 0:
		logLevel.Set(slog.LevelWarn)
	case level == 1:
		logLevel.Set(slog.LevelInfo)
	default:
		logLevel.Set(slog.LevelDebug)
	}
}

// GetVerboseLevel returns the current verbose level
func GetVerboseLevel() int {
	return globalVerboseLevel
}

// VerboseEnter logs function entry at level 3+ and returns a defer function for exit logging
func VerboseEnter() func() {
	if globalVerboseLevel < 3 {
		return func() {}
	}

	pc, _, _, ok := runtime.Caller(1)
	if !ok {
		return func() {}
	}

	funcName := runtime.FuncForPC(pc).Name()
	if idx := strings.LastIndex(funcName, "."); idx != -1 {
		funcName = funcName[idx+1:]
	}

	logger.Debug("enter", "func", funcName)
	return func() {
		logger.Debug("exit", "func", funcName)
	}
}

// VerboseLog logs a message at the specified verbose level
func VerboseLog(level int, format string, args ...interface{}) {
	if globalVerboseLevel < level {
		return
	}

	slogLevel := slog.LevelDebug
	if level <= 1 {
		slogLevel = slog.LevelInfo
	}
	logger.Log(context.Background(), slogLevel, strings.TrimSuffix(fmt.Sprintf(format, args...), "\n"), "v", level)
}

// Warnf logs a non-fatal problem regardless of verbose level
func Warnf(format string, args ...interface{}) {
	logger.Warn(strings.TrimSuffix(fmt.Sprintf(format, args...), "\n"))
}

// SetDebugFlags sets the debug flags from a comma-separated string
// Supports both simple flags ("router,cache") and key:value format ("router:true,cache:false")
func SetDebugFlags(flagsStr string) {
	debugFlags = make(map[string]bool)
	if flagsStr == "" {
		return
	}

	for _, flag := range strings.Split(flagsStr, ",") {
		flag = strings.TrimSpace(flag)
		if flag == "" {
			continue
		}

		parts := strings.SplitN(flag, ":", 2)
		flagName := strings.ToLower(parts[0])
		flagValue := true

		if len(parts) > 1 {
			switch strings.ToLower(parts[1]) {
			case "false", "0", "no", "off":
				flagValue = false
			}
		}

		debugFlags[flagName] = flagValue
	}
}

// IsDebugEnabled returns true if the specified debug flag is enabled
func IsDebugEnabled(flag string) bool {
	if debugFlags == nil {
		return false
	}
	return debugFlags[strings.ToLower(flag)]
}

// debugLog logs when the named debug flag is on, whatever the verbose level
func debugLog(flag string, format string, args ...interface{}) {
	if !IsDebugEnabled(flag) {
		return
	}
	logger.Log(context.Background(), slog.LevelWarn, fmt.Sprintf(format, args...), "debug", flag)
}
