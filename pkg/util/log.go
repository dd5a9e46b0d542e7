// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package util

import (
	"sync/atomic"

	"github.com/petermattis/goid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	gLevel  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	gLogger atomic.Pointer[zap.Logger]
)

func init() {
	logger, err := newLogger(LogOptions{Format: "console"})
	if err != nil {
		logger = zap.NewNop()
	}
	gLogger.Store(logger)
}

func newLogger(opts LogOptions) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = gLevel
	cfg.Sampling = nil
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if opts.Format != "" {
		cfg.Encoding = opts.Format
	}
	if opts.Output != "" {
		cfg.OutputPaths = []string{opts.Output}
	}
	return cfg.Build(zap.AddCallerSkip(1))
}

// InitLogger replaces the process logger according to opts.
func InitLogger(opts LogOptions) error {
	if opts.Level != "" {
		if err := SetLogLevel(opts.Level); err != nil {
			return err
		}
	}
	logger, err := newLogger(opts)
	if err != nil {
		return err
	}
	old := gLogger.Swap(logger)
	if old != nil {
		_ = old.Sync()
	}
	return nil
}

func SetLogLevel(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}
	gLevel.SetLevel(lvl)
	return nil
}

func DebugEnabled() bool {
	return gLevel.Enabled(zapcore.DebugLevel)
}

func Logger() *zap.Logger {
	return gLogger.Load()
}

func Debug(msg string, fields ...zap.Field) {
	gLogger.Load().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	gLogger.Load().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	gLogger.Load().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	gLogger.Load().Error(msg, fields...)
}

// GoID tags a log entry with the calling goroutine.
func GoID() zap.Field {
	return zap.Int64("goid", goid.Get())
}
