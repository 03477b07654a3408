package logging

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	colorRed    = 31
	colorYellow = 33
	colorBlue   = 36
	colorGray   = 37
)

const defaultTimestampFormat = "2006-01-02 15:04:05"

func colorFor(level logrus.Level) int {
	switch level {
	case logrus.DebugLevel, logrus.TraceLevel:
		return colorGray
	case logrus.WarnLevel:
		return colorYellow
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return colorRed
	default:
		return colorBlue
	}
}

// Formatter renders "time [LEVEL] [file:line] message key=value ..." lines.
// Fields are sorted by key.
type Formatter struct {
	DisableColor    bool
	HideLogTime     bool
	HideLogPath     bool
	TimestampFormat string
}

// Format implements logrus.Formatter.
func (f *Formatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := entry.Buffer
	if b == nil {
		b = &bytes.Buffer{}
	}

	if !f.HideLogTime {
		format := f.TimestampFormat
		if format == "" {
			format = defaultTimestampFormat
		}
		b.WriteString(entry.Time.Format(format))
		b.WriteByte(' ')
	}

	var line strings.Builder
	fmt.Fprintf(&line, "[%s]", strings.ToUpper(entry.Level.String()))
	if !f.HideLogPath && entry.HasCaller() {
		fmt.Fprintf(&line, " [%s:%d]", filepath.Base(entry.Caller.File), entry.Caller.Line)
	}
	line.WriteByte(' ')
	line.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&line, " %s=%v", k, entry.Data[k])
	}

	if f.DisableColor {
		b.WriteString(line.String())
	} else {
		fmt.Fprintf(b, "\033[%dm%s\033[0m", colorFor(entry.Level), line.String())
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}
