package logs

import (
	"fmt"
	"log"
	"os"
	"sync"
)

// 定义日志级别常量（数值越大，级别越高）
const (
	LevelTrace   = iota // 0（最低，最详细）
	LevelDebug          // 1
	LevelVerbose        // 2
	LevelInfo           // 3
	LevelWarning        // 4
	LevelError          // 5（最高，最严重）
)

var (
	levelMu  sync.RWMutex
	logLevel = LevelInfo // 全局日志级别
)

// Logger 组件注入用的日志接口
// settlement / db 等模块只依赖这个接口，测试里可以换成带历史缓冲的 NodeLogger
type Logger interface {
	Trace(format string, v ...interface{})
	Debug(format string, v ...interface{})
	Verbose(format string, v ...interface{})
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
}

// 全局 Logger 实例
var std *levelLogger

type levelLogger struct {
	traceLogger   *log.Logger
	debugLogger   *log.Logger
	verboseLogger *log.Logger
	infoLogger    *log.Logger
	warnLogger    *log.Logger
	errorLogger   *log.Logger
}

func newLevelLogger(prefix string) *levelLogger {
	flags := log.Ldate | log.Ltime | log.Lmicroseconds
	return &levelLogger{
		traceLogger:   log.New(os.Stdout, "[TRACE]   "+prefix, flags),
		debugLogger:   log.New(os.Stdout, "[DEBUG]   "+prefix, flags),
		verboseLogger: log.New(os.Stdout, "[VERBOSE] "+prefix, flags),
		infoLogger:    log.New(os.Stdout, "[INFO]    "+prefix, flags),
		warnLogger:    log.New(os.Stdout, "[WARN]    "+prefix, flags),
		errorLogger:   log.New(os.Stderr, "[ERROR]   "+prefix, flags),
	}
}

// 初始化全局 Logger 实例
func init() {
	std = newLevelLogger("")
}

// SetLevel 调整全局日志级别
func SetLevel(level int) {
	levelMu.Lock()
	logLevel = level
	levelMu.Unlock()
}

// Level 返回当前全局日志级别
func Level() int {
	levelMu.RLock()
	defer levelMu.RUnlock()
	return logLevel
}

func enabled(level int) bool {
	return Level() <= level
}

// 包级别的日志方法
func Trace(format string, v ...interface{}) {
	if enabled(LevelTrace) {
		std.traceLogger.Printf(format, v...)
	}
}

func Debug(format string, v ...interface{}) {
	if enabled(LevelDebug) {
		std.debugLogger.Printf(format, v...)
	}
}

func Verbose(format string, v ...interface{}) {
	if enabled(LevelVerbose) {
		std.verboseLogger.Printf(format, v...)
	}
}

func Info(format string, v ...interface{}) {
	if enabled(LevelInfo) {
		std.infoLogger.Printf(format, v...)
	}
}

func Warn(format string, v ...interface{}) {
	if enabled(LevelWarning) {
		std.warnLogger.Printf(format, v...)
	}
}

func Error(format string, v ...interface{}) {
	if enabled(LevelError) {
		std.errorLogger.Printf(format, v...)
	}
}

// ============================================
// NodeLogger：带名字前缀 + 最近 N 条历史
// ============================================

// NodeLogger 每个组件/节点一个，输出时带上名字，同时在内存里保留最近的日志行
type NodeLogger struct {
	name string
	out  *levelLogger

	mu      sync.Mutex
	history []string // 环形缓冲区
	next    int
	filled  bool
}

// NewNodeLogger 创建带历史缓冲的 Logger，historySize<=0 时不保留历史
func NewNodeLogger(name string, historySize int) *NodeLogger {
	l := &NodeLogger{
		name: name,
		out:  newLevelLogger("[" + name + "] "),
	}
	if historySize > 0 {
		l.history = make([]string, historySize)
	}
	return l
}

func (l *NodeLogger) record(tag, format string, v ...interface{}) {
	if len(l.history) == 0 {
		return
	}
	line := tag + " " + fmt.Sprintf(format, v...)
	l.mu.Lock()
	l.history[l.next] = line
	l.next = (l.next + 1) % len(l.history)
	if l.next == 0 {
		l.filled = true
	}
	l.mu.Unlock()
}

// History 按时间顺序返回缓冲区里的日志（不受日志级别过滤影响）
func (l *NodeLogger) History() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.filled {
		out := make([]string, l.next)
		copy(out, l.history[:l.next])
		return out
	}
	out := make([]string, 0, len(l.history))
	out = append(out, l.history[l.next:]...)
	out = append(out, l.history[:l.next]...)
	return out
}

func (l *NodeLogger) Trace(format string, v ...interface{}) {
	l.record("TRACE", format, v...)
	if enabled(LevelTrace) {
		l.out.traceLogger.Printf(format, v...)
	}
}

func (l *NodeLogger) Debug(format string, v ...interface{}) {
	l.record("DEBUG", format, v...)
	if enabled(LevelDebug) {
		l.out.debugLogger.Printf(format, v...)
	}
}

func (l *NodeLogger) Verbose(format string, v ...interface{}) {
	l.record("VERBOSE", format, v...)
	if enabled(LevelVerbose) {
		l.out.verboseLogger.Printf(format, v...)
	}
}

func (l *NodeLogger) Info(format string, v ...interface{}) {
	l.record("INFO", format, v...)
	if enabled(LevelInfo) {
		l.out.infoLogger.Printf(format, v...)
	}
}

func (l *NodeLogger) Warn(format string, v ...interface{}) {
	l.record("WARN", format, v...)
	if enabled(LevelWarning) {
		l.out.warnLogger.Printf(format, v...)
	}
}

func (l *NodeLogger) Error(format string, v ...interface{}) {
	l.record("ERROR", format, v...)
	if enabled(LevelError) {
		l.out.errorLogger.Printf(format, v...)
	}
}
