// Package logger builds the process-wide zap logger.
package logger

import (
	"io"
	"os"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects level, encoder and sinks.
type Options struct {
	Level string
	Dev   bool
	// File enables a daily-rotated JSON file sink in addition to stdout, e.g. /var/log/account-core/server.log.
	File   string
	MaxAge time.Duration
}

// ParseLevel maps a config string to a zap level. Unknown values map to info.
func ParseLevel(l string) zapcore.Level {
	switch l {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New returns a logger for opts. Caller should defer Sync.
func New(opts Options) (*zap.Logger, error) {
	lvl := ParseLevel(opts.Level)
	if opts.Dev && opts.File == "" {
		c := zap.NewDevelopmentConfig()
		c.Level = zap.NewAtomicLevelAt(lvl)
		return c.Build()
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var sink io.Writer = os.Stdout
	if opts.File != "" {
		w, err := rotatingFile(opts.File, opts.MaxAge)
		if err != nil {
			return nil, err
		}
		sink = io.MultiWriter(os.Stdout, w)
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(sink), lvl)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func rotatingFile(path string, maxAge time.Duration) (io.Writer, error) {
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	return rotatelogs.New(
		path+".%Y%m%d",
		rotatelogs.WithLinkName(path),
		rotatelogs.WithRotationTime(24*time.Hour),
		rotatelogs.WithMaxAge(maxAge),
	)
}
