// Package observability builds the zap loggers subwatch uses throughout
// the CLI and the watcher pipeline.
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/3leaps/subwatch/internal/config"
)

// CLILogger is the process-wide logger used by cmd/subwatch and
// internal/cmd. It is nil until InitCLILogger runs.
var CLILogger *zap.Logger

// InitCLILogger builds CLILogger for appName, at debug level when debug is
// true, otherwise info level. Safe to call more than once; the most recent
// call wins.
func InitCLILogger(appName string, debug bool) {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	CLILogger = New(LoggingConfig{Level: level.String(), Profile: "STRUCTURED"}).With(zap.String("app", appName))
}

// LoggingConfig is the minimal shape New needs, decoupled from
// internal/config so this package can be used without a full Config.
type LoggingConfig struct {
	Level   string
	Profile string
}

// FromConfig adapts a config.LoggingConfig into a LoggingConfig.
func FromConfig(cfg config.LoggingConfig) LoggingConfig {
	return LoggingConfig{Level: cfg.Level, Profile: cfg.Profile}
}

// New builds a zap.Logger for cfg. Profile "STRUCTURED" (the default)
// produces JSON output suitable for log aggregation; any other profile
// produces a human-readable console encoding, useful for local runs.
func New(cfg LoggingConfig) *zap.Logger {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Profile == "STRUCTURED" || cfg.Profile == "" {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		consoleCfg := zap.NewDevelopmentEncoderConfig()
		consoleCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewConsoleEncoder(consoleCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(newStdoutSink())), level)
	return zap.New(core, zap.AddCaller())
}

func newStdoutSink() zapcore.WriteSyncer {
	ws, _, err := zap.Open("stdout")
	if err != nil {
		panic(fmt.Sprintf("observability: open stdout sink: %v", err))
	}
	return ws
}
