package core

import (
	"github.com/sirupsen/logrus"
)

// Option customises a Cursor.
type Option func(*options)

type options struct {
	dialect  string
	hooks    map[Event][]HookFunc
	initArgs []any
	logger   logrus.FieldLogger
	metrics  MetricsRecorder
	tracer   Tracer
}

// WithDialect sets the dialect datasets inherit when their source leaves it
// empty.
func WithDialect(dialect string) Option {
	return func(o *options) { o.dialect = dialect }
}

// WithHook registers fn for event. Hooks for one event run in registration
// order.
func WithHook(event Event, fn HookFunc) Option {
	return func(o *options) {
		if o.hooks == nil {
			o.hooks = make(map[Event][]HookFunc)
		}
		o.hooks[event] = append(o.hooks[event], fn)
	}
}

// WithInitArgs sets the arguments passed to init hooks.
func WithInitArgs(args ...any) Option {
	return func(o *options) { o.initArgs = append([]any(nil), args...) }
}

// WithLogger sets the logger used for cache and navigation events. The
// logrus standard logger is used by default.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the recorder for source calls and cache lookups.
func WithMetrics(recorder MetricsRecorder) Option {
	return func(o *options) {
		if recorder != nil {
			o.metrics = recorder
		}
	}
}

// WithTracer sets the tracer wrapped around every source call.
func WithTracer(tracer Tracer) Option {
	return func(o *options) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

func defaultOptions() options {
	return options{
		logger:  logrus.StandardLogger(),
		metrics: noopMetrics{},
		tracer:  noopTracer{},
	}
}
