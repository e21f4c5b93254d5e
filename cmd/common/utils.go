package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ducminhle1904/paper-exchange/internal/monitoring"
)

// LogLevel represents different logging levels
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// Logger provides console output for CLI applications
type Logger struct {
	Level      LogLevel
	ShowEmojis bool
	SilentMode bool
	Out        io.Writer
}

// NewLogger creates a new logger with default settings
func NewLogger() *Logger {
	return &Logger{
		Level:      LogLevelInfo,
		ShowEmojis: true,
		Out:        os.Stdout,
	}
}

func (l *Logger) print(emoji, plain, format string, args ...interface{}) {
	prefix := emoji
	if !l.ShowEmojis {
		prefix = plain
	}
	fmt.Fprintf(l.Out, "%s %s\n", prefix, fmt.Sprintf(format, args...))
}

// Header prints a formatted header
func (l *Logger) Header(title string) {
	if l.SilentMode {
		return
	}
	emoji := "🎯"
	if !l.ShowEmojis {
		emoji = "***"
	}
	fmt.Fprintf(l.Out, "\n%s %s\n%s\n", emoji, strings.ToUpper(title), strings.Repeat("=", len(title)+5))
}

// Section prints a formatted section header
func (l *Logger) Section(title string) {
	if l.SilentMode {
		return
	}
	emoji := "📋"
	if !l.ShowEmojis {
		emoji = "---"
	}
	fmt.Fprintf(l.Out, "\n%s %s\n%s\n", emoji, title, strings.Repeat("-", len(title)+5))
}

// Info prints an info message
func (l *Logger) Info(format string, args ...interface{}) {
	if l.SilentMode || l.Level < LogLevelInfo {
		return
	}
	l.print("ℹ️ ", "[INFO]", format, args...)
}

// Error prints an error message, even in silent mode
func (l *Logger) Error(format string, args ...interface{}) {
	l.print("❌", "[ERROR]", format, args...)
}

// Success prints a success message
func (l *Logger) Success(format string, args ...interface{}) {
	if l.SilentMode {
		return
	}
	l.print("✅", "[SUCCESS]", format, args...)
}

// Warn prints a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.Level < LogLevelWarn {
		return
	}
	l.print("⚠️ ", "[WARN]", format, args...)
}

// Debug prints a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.Level < LogLevelDebug {
		return
	}
	l.print("🔍", "[DEBUG]", format, args...)
}

// Progress prints a progress message
func (l *Logger) Progress(format string, args ...interface{}) {
	if l.SilentMode {
		return
	}
	l.print("🔄", "[PROGRESS]", format, args...)
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%.1fh", d.Hours())
	}
	return fmt.Sprintf("%.1fd", d.Hours()/24)
}

// SignalContext returns a context canceled on SIGINT or SIGTERM
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Printf("Received %s, shutting down...", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// MonitoringMux serves /health from health and /metrics from the
// Prometheus registry
func MonitoringMux(health *monitoring.HealthChecker) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/health", health)
	mux.Handle("/metrics", monitoring.NewMetricsHandler())
	return mux
}

// StartMonitoring serves the monitoring mux on port in the background.
// The returned server is stopped with Shutdown.
func StartMonitoring(port int, health *monitoring.HealthChecker) (*http.Server, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("monitoring server on port %d: %w", port, err)
	}

	srv := &http.Server{
		Handler:           MonitoringMux(health),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("Starting monitoring server on %s (/health, /metrics)", ln.Addr())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Monitoring server error: %v", err)
		}
	}()
	return srv, nil
}

// StopMonitoring shuts srv down, waiting at most timeout
func StopMonitoring(srv *http.Server, timeout time.Duration) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Error stopping monitoring server: %v", err)
	}
}
