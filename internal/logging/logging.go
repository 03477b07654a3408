// Package logging configures the logrus loggers used by the CLI and handed
// to cursors.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Options configures New.
type Options struct {
	// Verbose enables debug output.
	Verbose bool
	// Level overrides Verbose when set (trace, debug, info, warn, error).
	Level string
	// Format is "text" (default) or "json".
	Format string
	// DisableColor turns off ANSI colors in text output.
	DisableColor bool
	// HideCaller drops the file:line prefix.
	HideCaller bool
	// File additionally appends every entry to this path.
	File string
	// Output defaults to os.Stderr.
	Output io.Writer
}

// New builds a logger from opts. The returned closer releases the log file,
// if any.
func New(opts Options) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()
	level := logrus.InfoLevel
	if opts.Verbose {
		level = logrus.DebugLevel
	}
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "log level %q", opts.Level)
		}
		level = parsed
	}
	logger.SetLevel(level)
	logger.SetReportCaller(!opts.HideCaller)

	switch strings.ToLower(opts.Format) {
	case "", "text":
		logger.SetFormatter(&Formatter{DisableColor: opts.DisableColor, HideLogPath: opts.HideCaller})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, nil, errors.Errorf("unknown log format %q", opts.Format)
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open log file")
		}
		out = io.MultiWriter(out, f)
		closer = f
	}
	logger.SetOutput(out)
	return logger, closer, nil
}

// Init applies opts to the logrus standard logger.
func Init(opts Options) error {
	logger, _, err := New(opts)
	if err != nil {
		return err
	}
	std := logrus.StandardLogger()
	std.SetLevel(logger.GetLevel())
	std.SetFormatter(logger.Formatter)
	std.SetReportCaller(logger.ReportCaller)
	std.SetOutput(logger.Out)
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
