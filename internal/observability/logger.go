package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// NewLogger builds the service logger. Level is one of debug|info|warn|error;
// format is "json" for machine ingestion or anything else for text.
func NewLogger(level, format string) *log.Logger {
	return NewLoggerWithWriter(os.Stderr, level, format)
}

func NewLoggerWithWriter(w io.Writer, level, format string) *log.Logger {
	opts := log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		opts.Formatter = log.JSONFormatter
	}

	logger := log.NewWithOptions(w, opts)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}
	return logger
}
