// Package logger создаёт zap логгер приложения.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New создаёт логгер в консольном формате с выводом в stderr.
// verbose включает уровень Debug.
func New(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.DisableStacktrace = true
	cfg.Sampling = nil

	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
		cfg.DisableCaller = false
	} else {
		cfg.DisableCaller = true
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	return cfg.Build()
}
