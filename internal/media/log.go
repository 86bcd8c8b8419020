package media

import (
	"sync"
	"time"
)

// Level 日志级别
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// timestampFormat ISO-8601，毫秒精度，UTC
const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

// LogEntry 操作日志条目
type LogEntry struct {
	Level     Level             `json:"level"`
	Message   string            `json:"message"`
	Timestamp string            `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
}

// OperationLog 一次上传或测试的操作日志，只追加
type OperationLog struct {
	mu      sync.Mutex
	entries []LogEntry
	now     func() time.Time
}

// NewOperationLog 创建操作日志
func NewOperationLog(now func() time.Time) *OperationLog {
	if now == nil {
		now = time.Now
	}
	return &OperationLog{now: now}
}

// ContinueLog 在已有日志之后继续追加，调用方用于记录存储之后的步骤
func ContinueLog(entries []LogEntry, now func() time.Time) *OperationLog {
	l := NewOperationLog(now)
	l.entries = append(l.entries, entries...)
	return l
}

// Add 追加一条日志
func (l *OperationLog) Add(level Level, message string, details map[string]string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{
		Level:     level,
		Message:   message,
		Timestamp: l.now().UTC().Format(timestampFormat),
		Details:   details,
	})
}

func (l *OperationLog) Info(message string)    { l.Add(LevelInfo, message, nil) }
func (l *OperationLog) Success(message string) { l.Add(LevelSuccess, message, nil) }
func (l *OperationLog) Warning(message string) { l.Add(LevelWarning, message, nil) }
func (l *OperationLog) Error(message string)   { l.Add(LevelError, message, nil) }

// Entries 返回按时间顺序的日志副本
func (l *OperationLog) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
