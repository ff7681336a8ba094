// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package commons

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the application-wide logging contract. Every component receives
// one by construction; nothing logs through package-level state.
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})

	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})

	// Fatalf logs and exits; reserved for unrecoverable bootstrap failures.
	Fatalf(template string, args ...interface{})

	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})

	// Benchmark records the elapsed time of a named stage at debug level.
	Benchmark(stage string, elapsed time.Duration)

	Sync() error
}

type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewApplicationLogger builds a zap-backed Logger. When logPath is non-empty
// output is rotated through lumberjack, otherwise it goes to stderr.
func NewApplicationLogger(serviceName, level, logPath string) Logger {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var sink zapcore.WriteSyncer
	if logPath != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		})
	} else {
		sink = zapcore.AddSync(os.Stderr)
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		sink,
		zapLevel,
	)

	logger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).
		With(zap.String("service", serviceName))

	return &zapLogger{sugar: logger.Sugar()}
}

func (l *zapLogger) Debug(args ...interface{}) { l.sugar.Debug(args...) }
func (l *zapLogger) Info(args ...interface{})  { l.sugar.Info(args...) }
func (l *zapLogger) Warn(args ...interface{})  { l.sugar.Warn(args...) }
func (l *zapLogger) Error(args ...interface{}) { l.sugar.Error(args...) }

func (l *zapLogger) Debugf(template string, args ...interface{}) { l.sugar.Debugf(template, args...) }
func (l *zapLogger) Infof(template string, args ...interface{})  { l.sugar.Infof(template, args...) }
func (l *zapLogger) Warnf(template string, args ...interface{})  { l.sugar.Warnf(template, args...) }
func (l *zapLogger) Errorf(template string, args ...interface{}) { l.sugar.Errorf(template, args...) }
func (l *zapLogger) Fatalf(template string, args ...interface{}) { l.sugar.Fatalf(template, args...) }

func (l *zapLogger) Infow(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}
func (l *zapLogger) Warnw(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}
func (l *zapLogger) Errorw(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

func (l *zapLogger) Benchmark(stage string, elapsed time.Duration) {
	l.sugar.Debugw("benchmark", "stage", stage, "elapsed", elapsed.String())
}

func (l *zapLogger) Sync() error {
	return l.sugar.Sync()
}
