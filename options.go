// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package fiberrt

// config holds the resolved configuration for a Scheduler.
type config struct {
	defaultStackSize int
	maxTLSKeys       int
	minPollFDsHint   int
	eventBufferSize  int
	randomizeStacks  bool
	utimeFunc        func() uint64
	timecache        bool
	logger           Logger
	metricsEnabled   bool
}

// --- Scheduler Options ---

// Option configures a Scheduler instance.
type Option interface {
	apply(*config) error
}

// optionFunc implements Option.
type optionFunc struct {
	fn func(*config) error
}

func (o *optionFunc) apply(cfg *config) error { return o.fn(cfg) }

// WithDefaultStackSize overrides the default fiber stack size (bytes),
// used when Spawn is called with size 0. Rounded up to a page multiple
// by the stack arena.
func WithDefaultStackSize(n int) Option {
	return &optionFunc{func(cfg *config) error {
		if n <= 0 {
			return &InvalidError{Op: "WithDefaultStackSize", Reason: "size must be positive"}
		}
		cfg.defaultStackSize = n
		return nil
	}}
}

// WithMaxTLSKeys overrides the maximum number of thread-local-storage
// keys (default 16, matching the reference runtime).
func WithMaxTLSKeys(n int) Option {
	return &optionFunc{func(cfg *config) error {
		if n <= 0 {
			return &InvalidError{Op: "WithMaxTLSKeys", Reason: "count must be positive"}
		}
		cfg.maxTLSKeys = n
		return nil
	}}
}

// WithMinPollFDsHint sets the initial size of the reactor's descriptor
// table (default 64).
func WithMinPollFDsHint(n int) Option {
	return &optionFunc{func(cfg *config) error {
		if n <= 0 {
			return &InvalidError{Op: "WithMinPollFDsHint", Reason: "hint must be positive"}
		}
		cfg.minPollFDsHint = n
		return nil
	}}
}

// WithEventBufferSize overrides the reactor's kernel event buffer
// capacity (default 4096).
func WithEventBufferSize(n int) Option {
	return &optionFunc{func(cfg *config) error {
		if n <= 0 {
			return &InvalidError{Op: "WithEventBufferSize", Reason: "size must be positive"}
		}
		cfg.eventBufferSize = n
		return nil
	}}
}

// WithRandomizedStacks enables a randomized 16-byte-aligned offset
// (< one page) added to each newly allocated stack, reducing cache
// aliasing between fibers of the same size class.
func WithRandomizedStacks(on bool) Option {
	return &optionFunc{func(cfg *config) error {
		cfg.randomizeStacks = on
		return nil
	}}
}

// WithLogger attaches a structured Logger. The default is NoOpLogger.
func WithLogger(l Logger) Option {
	return &optionFunc{func(cfg *config) error {
		if l == nil {
			l = NoOpLogger{}
		}
		cfg.logger = l
		return nil
	}}
}

// WithMetrics enables the dispatch counter reported as
// Stats().DispatchCount. Disabled by default; the other Stats fields are
// read directly from scheduler state and do not depend on it.
func WithMetrics(enabled bool) Option {
	return &optionFunc{func(cfg *config) error {
		cfg.metricsEnabled = enabled
		return nil
	}}
}

// WithTimeCache enables dispatch's amortized clock read (one
// gettimeofday-equivalent per dispatch pass rather than per Now() call),
// matching original_source/sync.c's st_timecache_set. Off by default:
// a cached clock can lag real time by up to one dispatch quantum.
func WithTimeCache(on bool) Option {
	return &optionFunc{func(cfg *config) error {
		cfg.timecache = on
		return nil
	}}
}

// resolveOptions applies Option instances over the runtime defaults.
func resolveOptions(opts []Option) (*config, error) {
	cfg := &config{
		defaultStackSize: DefaultStackSize,
		maxTLSKeys:       MaxTLSKeys,
		minPollFDsHint:   MinPollFDsHint,
		eventBufferSize:  DefaultEventBufferSize,
		logger:           NoOpLogger{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
