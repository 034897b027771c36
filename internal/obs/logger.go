package obs

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the process logger
// format is "json" or "text"; unknown levels fall back to info
func NewLogger(level, format string) *logrus.Logger {
	return newLogger(os.Stdout, level, format)
}

func newLogger(out io.Writer, level, format string) *logrus.Logger {
	lg := logrus.New()
	lg.SetOutput(out)

	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	lg.SetLevel(lvl)

	if strings.EqualFold(format, "text") {
		lg.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		lg.SetFormatter(&logrus.JSONFormatter{})
	}
	return lg
}

// NopLogger returns a logger that discards everything (tests, optional wiring)
func NopLogger() *logrus.Logger {
	lg := logrus.New()
	lg.SetOutput(io.Discard)
	return lg
}
