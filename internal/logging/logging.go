package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Logger *zap.SugaredLogger

// Init builds the process logger. The auditor narrates progress at info
// level; debug switches to the development config with caller annotations.
func Init(debug bool) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		cfg.DisableCaller = true
		cfg.DisableStacktrace = true
	}
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	Logger = logger.Sugar()
}

// Sync flushes buffered log entries. Errors are ignored, stdout and stderr
// do not support fsync on every platform.
func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}
