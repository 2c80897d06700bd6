package pvm

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/procvm/pvm/emit"
	"github.com/dshills/procvm/pvm/history"
)

// Option is a functional option for configuring an Engine.
//
// Example:
//
//	engine, err := pvm.New(
//	    pvm.WithLogger(logger),
//	    pvm.WithHistory(history.NewMemStore()),
//	    pvm.WithMaxSteps(10000),
//	)
type Option func(*engineConfig) error

// engineConfig collects options before they are applied to an Engine.
type engineConfig struct {
	logger    zerolog.Logger
	emitter   emit.Emitter
	metrics   *PrometheusMetrics
	history   history.Sink
	maxSteps  int
	clock     func() time.Time
	ids       IDGenerator
	listeners *ListenerRegistry
	mapping   *MappingExecutor
}

func defaultConfig() engineConfig {
	return engineConfig{
		logger:  zerolog.Nop(),
		emitter: emit.NewNullEmitter(),
		clock:   time.Now,
		ids:     UUIDGenerator{},
	}
}

// WithLogger sets the structured logger. Each atomic operation is logged at
// debug level; aborted step chains at warn.
//
// Default: zerolog.Nop().
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *engineConfig) error {
		cfg.logger = logger
		return nil
	}
}

// WithEmitter sets the observability emitter.
//
// Default: emit.NullEmitter.
func WithEmitter(emitter emit.Emitter) Option {
	return func(cfg *engineConfig) error {
		if emitter == nil {
			return errors.New("emitter cannot be nil")
		}
		cfg.emitter = emitter
		return nil
	}
}

// WithMetrics enables Prometheus metrics collection.
//
// Example:
//
//	registry := prometheus.NewRegistry()
//	engine, _ := pvm.New(pvm.WithMetrics(pvm.NewPrometheusMetrics(registry)))
func WithMetrics(metrics *PrometheusMetrics) Option {
	return func(cfg *engineConfig) error {
		cfg.metrics = metrics
		return nil
	}
}

// WithHistory sets the historic-audit sink. Sink errors abort the step chain
// that produced the record.
//
// Default: none, no audit records are produced.
func WithHistory(sink history.Sink) Option {
	return func(cfg *engineConfig) error {
		cfg.history = sink
		return nil
	}
}

// WithMaxSteps limits the number of atomic operations a single step chain may
// run. Exceeding it aborts the chain with ErrMaxStepsExceeded.
//
// Default: 0 (no limit). Process graphs with loops should set a limit large
// enough for their longest legitimate run.
func WithMaxSteps(n int) Option {
	return func(cfg *engineConfig) error {
		if n < 0 {
			return errors.New("max steps cannot be negative")
		}
		cfg.maxSteps = n
		return nil
	}
}

// WithClock sets the time source for history records.
//
// Default: time.Now.
func WithClock(clock func() time.Time) Option {
	return func(cfg *engineConfig) error {
		if clock == nil {
			return errors.New("clock cannot be nil")
		}
		cfg.clock = clock
		return nil
	}
}

// WithIDGenerator sets the generator for execution and history record ids.
//
// Default: UUIDGenerator.
func WithIDGenerator(ids IDGenerator) Option {
	return func(cfg *engineConfig) error {
		if ids == nil {
			return errors.New("id generator cannot be nil")
		}
		cfg.ids = ids
		return nil
	}
}

// WithListeners shares an existing listener registry with the engine.
//
// Default: a new empty registry, reachable through Engine.Listeners.
func WithListeners(registry *ListenerRegistry) Option {
	return func(cfg *engineConfig) error {
		cfg.listeners = registry
		return nil
	}
}

// WithMappingExecutor shares a mapping executor (and its compiled expression
// cache) between engines.
func WithMappingExecutor(m *MappingExecutor) Option {
	return func(cfg *engineConfig) error {
		cfg.mapping = m
		return nil
	}
}
