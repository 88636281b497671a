package app

import (
	"log/slog"
	"time"
)

// Option configures a service.
type Option func(*options)

type options struct {
	now    func() time.Time
	logger *slog.Logger
}

func newOptions(opts []Option) options {
	o := options{
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock overrides the time source used for transition timestamps and
// SLA checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger used for failures that do not fail the call,
// such as event publication after commit.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}
