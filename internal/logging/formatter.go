// Package logging configures the process-wide logrus.Logger used by
// every component, rendering log lines as
// "[YYYY.MM.DD HH:MM:SS] LEVEL message".
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Formatter renders a logrus.Entry as "[YYYY.MM.DD HH:MM:SS] LEVEL
// message", followed by any structured fields as "key=value" pairs.
type Formatter struct{}

// Format implements logrus.Formatter.
func (Formatter) Format(e *logrus.Entry) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	buf.WriteString(e.Time.Format("2006.01.02 15:04:05"))
	buf.WriteString("] ")
	buf.WriteString(strings.ToUpper(e.Level.String()))
	buf.WriteByte(' ')
	buf.WriteString(e.Message)
	for k, v := range e.Data {
		fmt.Fprintf(&buf, " %s=%v", k, v)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// New builds a logrus.Logger using Formatter, writing to out (or
// stderr if out is nil), at the given level.
func New(out io.Writer, level logrus.Level) *logrus.Logger {
	if out == nil {
		out = os.Stderr
	}
	l := logrus.New()
	l.SetFormatter(Formatter{})
	l.SetOutput(out)
	l.SetLevel(level)
	return l
}

// OpenLogFile opens path for appending, creating it if necessary, for
// the -l/--log flag.
func OpenLogFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
