package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger 创建 Logger
// level: "debug", "info", "warn", "error"（默认 info）
// format: "json" 或 "console"（默认 json）
// serviceName: 作为 service_name 字段附加到每条日志
func NewLogger(level, format, serviceName string) (*zap.Logger, error) {
	return newLogger(level, format, serviceName, "stdout")
}

// NewStderrLogger 同 NewLogger，但日志写到 stderr（命令行工具的 stdout 留给输出结果）
func NewStderrLogger(level, format, serviceName string) (*zap.Logger, error) {
	return newLogger(level, format, serviceName, "stderr")
}

func newLogger(level, format, serviceName, output string) (*zap.Logger, error) {
	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.ErrorOutputPaths = []string{"stderr"}
	}
	cfg.OutputPaths = []string{output}
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(level))

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if serviceName != "" {
		l = l.With(zap.String("service_name", serviceName))
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		l = l.With(zap.String("hostname", hostname))
	}
	return l, nil
}

// ParseLevel 未知级别回退到 info
func ParseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
