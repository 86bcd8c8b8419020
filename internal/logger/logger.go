package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// 全局记录器实例
	log *zap.Logger
	// 日志级别，可在配置热更新时调整
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	// 确保只初始化一次
	once sync.Once
)

// Init 初始化全局记录器
func Init() {
	once.Do(func() {
		encoderConfig := zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		}

		consoleCore := zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.AddSync(os.Stdout),
			level,
		)

		log = zap.New(
			consoleCore,
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
		)
	})
}

// SetLevel 按名称设置级别，无法识别时保持不变
func SetLevel(name string) bool {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return false
	}
	level.SetLevel(l)
	return true
}

// Level 返回当前级别
func Level() zapcore.Level {
	return level.Level()
}

// GetLogger 获取指定模块的记录器
func GetLogger(module string) *zap.SugaredLogger {
	Init()
	return log.Named(module).Sugar()
}

// Sync 同步日志缓冲区
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}
