// Package logger — единый вывод логов randsync с префиксом и учётом quiet.
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Quiet при true отключает информационные и отладочные сообщения; Error и Warn выводятся всегда.
var Quiet bool

var (
	mu    sync.Mutex
	level = zap.NewAtomicLevelAt(zap.InfoLevel)
	sugar = newSugar(zapcore.Lock(os.Stderr))
)

func newSugar(w zapcore.WriteSyncer) *zap.SugaredLogger {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), w, level)
	return zap.New(core).Named("randsync").Sugar()
}

// SetOutput перенаправляет логи (используется в тестах).
func SetOutput(w zapcore.WriteSyncer) {
	mu.Lock()
	defer mu.Unlock()
	sugar = newSugar(w)
}

// SetLevel задаёт минимальный уровень: debug, info, warn, error.
func SetLevel(s string) error {
	return level.UnmarshalText([]byte(s))
}

func get() *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()
	return sugar
}

// Debug выводит отладочное сообщение, если Quiet == false и уровень debug включён.
func Debug(format string, args ...interface{}) {
	if Quiet {
		return
	}
	get().Debugf(format, args...)
}

// Info выводит сообщение, если Quiet == false.
func Info(format string, args ...interface{}) {
	if Quiet {
		return
	}
	get().Infof(format, args...)
}

// Warn выводит предупреждение всегда.
func Warn(format string, args ...interface{}) {
	get().Warnf(format, args...)
}

// Error выводит сообщение об ошибке всегда.
func Error(format string, args ...interface{}) {
	get().Errorf(format, args...)
}

// Sync сбрасывает буферы.
func Sync() {
	_ = get().Sync()
}
