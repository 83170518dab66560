package logging

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Loggers stay no-op until InitLogger runs, so library packages can log from tests.
var (
	AppLogger     = zap.NewNop()
	RequestLogger = zap.NewNop()
	TimerLogger   = zap.NewNop()
	ErrorLogger   = zap.NewNop()
)

type traceKey struct{}

// WithTraceID stores a trace id that LogDuration attaches to its entries.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey{}, traceID)
}

// ensureLogsDir makes sure the log folder exists
func ensureLogsDir(dir string) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		panic("Failed to create logs directory: " + err.Error())
	}
}

func rotating(dir, name string, maxSize, maxAge int) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename: dir + "/" + name, MaxSize: maxSize, MaxAge: maxAge, Compress: true,
	})
}

// InitLogger writes every logger to its own rotated JSON file under dir.
func InitLogger(dir string) {
	if dir == "" {
		dir = "./logs"
	}
	ensureLogsDir(dir)
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderConfig)

	// app.log (general logs)
	AppLogger = zap.New(zapcore.NewCore(encoder, rotating(dir, "app.log", 100, 28), zap.InfoLevel))

	// request.log
	RequestLogger = zap.New(zapcore.NewCore(encoder, rotating(dir, "request.log", 50, 7), zap.InfoLevel))

	// timer.log
	TimerLogger = zap.New(zapcore.NewCore(encoder, rotating(dir, "timer.log", 50, 7), zap.InfoLevel))

	// error.log also receives warnings from the chat store
	ErrorLogger = zap.New(zapcore.NewCore(encoder, rotating(dir, "error.log", 100, 30), zap.WarnLevel))
}

// Sync flushes all loggers; call it before the process exits.
func Sync() {
	for _, l := range []*zap.Logger{AppLogger, RequestLogger, TimerLogger, ErrorLogger} {
		_ = l.Sync()
	}
}

// LogDuration lets you do: defer logging.LogDuration(ctx, "FuncName")()
func LogDuration(ctx context.Context, name string) func() {
	start := time.Now()

	traceID, _ := ctx.Value(traceKey{}).(string)

	return func() {
		duration := time.Since(start).Milliseconds()
		fields := []zap.Field{
			zap.String("func", name),
			zap.Int64("duration_ms", duration),
		}
		if traceID != "" {
			fields = append(fields, zap.String("trace_id", traceID))
		}

		// write ONLY to timer.log
		TimerLogger.Info("Function timed", fields...)
	}
}
