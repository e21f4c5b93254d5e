package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ducminhle1904/paper-exchange/pkg/types"
)

// DefaultLogDir is used when no directory is configured
const DefaultLogDir = "logs"

// Logger writes session logs for the candle pipeline and the backtester.
// A nil *Logger is valid and discards everything.
type Logger struct {
	session  string
	symbol   string
	interval string
	logDir   string
	logPath  string
	logFile  *os.File
	logger   *log.Logger
	mu       sync.Mutex
}

// LogLevel represents different types of log entries
type LogLevel string

const (
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARN"
	LogLevelError   LogLevel = "ERROR"
	LogLevelTrade   LogLevel = "TRADE"
	LogLevelStatus  LogLevel = "STATUS"
)

// NewLogger creates a log file named <session>_<symbol>_<interval>_<date>.log
// under logDir.
func NewLogger(logDir, session, symbol, interval string) (*Logger, error) {
	if logDir == "" {
		logDir = DefaultLogDir
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filename := fmt.Sprintf("%s_%s_%s_%s.log", session, symbol, interval, time.Now().Format("2006-01-02"))
	logPath := filepath.Join(logDir, filename)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := &Logger{
		session:  session,
		symbol:   symbol,
		interval: interval,
		logDir:   logDir,
		logPath:  logPath,
		logFile:  file,
		logger:   log.New(file, "", 0),
	}
	l.writeSessionHeader()

	return l, nil
}

func (l *Logger) writeSessionHeader() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logger.Print(fmt.Sprintf(`
================================================================================
🚀 %s SESSION STARTED
================================================================================
Symbol: %s | Interval: %s
Started: %s
Log File: %s
================================================================================
`, l.session, l.symbol, l.interval, time.Now().Format("2006-01-02 15:04:05"), filepath.Base(l.logPath)))
}

// Log writes a formatted log entry with the specified level
func (l *Logger) Log(level LogLevel, format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	l.logger.Println(fmt.Sprintf("[%s] [%s] %s", timestamp, level, fmt.Sprintf(format, args...)))
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.Log(LogLevelInfo, format, args...)
}

// Warning logs a warning message
func (l *Logger) Warning(format string, args ...interface{}) {
	l.Log(LogLevelWarning, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.Log(LogLevelError, format, args...)
}

// Trade logs a trading action
func (l *Logger) Trade(format string, args ...interface{}) {
	l.Log(LogLevelTrade, format, args...)
}

// Status logs market status information
func (l *Logger) Status(format string, args ...interface{}) {
	l.Log(LogLevelStatus, format, args...)
}

// LogCandles logs one builder output
func (l *Logger) LogCandles(candles []types.Candle, lag int) {
	if l == nil || len(candles) == 0 {
		return
	}
	first, last := candles[0], candles[len(candles)-1]
	synthetic := 0
	for _, c := range candles {
		if c.Trades == 0 {
			synthetic++
		}
	}
	l.Info("Built %d candles (%d synthetic) %s -> %s, last close %.8f, lag %ds",
		len(candles), synthetic,
		first.Start.Format(time.RFC3339), last.Start.Format(time.RFC3339), last.Close, lag)
}

// LogFill logs one simulated execution
func (l *Logger) LogFill(fill types.FilledTrade) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logger.Println(fmt.Sprintf(`
[%s] [TRADE] ==================== %s %s FILLED ====================
✅ Order ID: %d | Status: %s
📦 Amount: %s %s
💰 Price: %s
💵 Value: %s | Fee: %s
🕐 Candle: %s
=============================================================`,
		time.Now().Format("2006-01-02 15:04:05"), fill.Side, fill.Type,
		fill.OrderID, fill.Status,
		fill.Amount.String(), l.symbol,
		fill.Price.String(),
		fill.Cost().StringFixed(8), fill.Fee.StringFixed(8),
		fill.Time.Format(time.RFC3339)))
}

// LogPortfolio logs the account after a candle
func (l *Logger) LogPortfolio(at time.Time, price float64, balances []types.Balance, value float64) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	status := fmt.Sprintf(`
[%s] [STATUS] ==================== PORTFOLIO ====================
🕐 Candle: %s | Close: %.8f`, time.Now().Format("2006-01-02 15:04:05"), at.Format(time.RFC3339), price)
	for _, b := range balances {
		status += fmt.Sprintf("\n💼 %s: free %.8f | locked %.8f", b.Asset, b.Free, b.Locked)
	}
	status += fmt.Sprintf("\n📊 Value: %.8f", value)
	status += "\n=========================================================="

	l.logger.Println(status)
}

// LogError logs error with context
func (l *Logger) LogError(context string, err error) {
	l.Error("%s: %v", context, err)
}

// LogWarning logs warning with context
func (l *Logger) LogWarning(context string, message string, args ...interface{}) {
	l.Warning("%s", fmt.Sprintf(context+": "+message, args...))
}

// Close writes the session footer and closes the log file
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile == nil {
		return nil
	}
	l.logger.Print(fmt.Sprintf(`
================================================================================
🛑 %s SESSION ENDED
================================================================================
Ended: %s
================================================================================

`, l.session, time.Now().Format("2006-01-02 15:04:05")))

	err := l.logFile.Close()
	l.logFile = nil
	return err
}

// GetLogPath returns the current log file path
func (l *Logger) GetLogPath() string {
	if l == nil {
		return ""
	}
	return l.logPath
}
