// Package readthrough caches serialized read responses in front of a
// loader and drops them again by key pattern when the data changes.
//
// The store is an optimization only: every store failure degrades to a
// miss (reads) or a skipped removal (invalidation) and never reaches the
// caller.
package readthrough

import (
	"context"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/aryan0dhankhar/usersvc/internal/observability/metrics"
	"github.com/aryan0dhankhar/usersvc/internal/observability/tracing"
	"github.com/aryan0dhankhar/usersvc/internal/reliability/circuitbreaker"
)

// Store is the key/value collaborator behind the layer.
// Patterns use glob syntax: * any run, ? one character, [...] a class.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	KeysMatching(ctx context.Context, pattern string) ([]string, error)
	DeleteMany(ctx context.Context, keys ...string) error
}

// Loader produces the authoritative value on a miss
type Loader func(ctx context.Context) ([]byte, error)

// Lookup results reported to metrics
const (
	ResultHit    = "hit"
	ResultMiss   = "miss"
	ResultError  = "error"
	ResultBypass = "bypass"
)

// DefaultLoadTimeout bounds a shared load once it no longer follows any
// single caller's context
const DefaultLoadTimeout = 30 * time.Second

// Layer is a read-through cache over a Store
type Layer struct {
	store       Store
	breaker     *circuitbreaker.CircuitBreaker
	group       singleflight.Group
	loadTimeout time.Duration
	logger      *slog.Logger

	// generation advances on every Invalidate. A load that began under an
	// older generation must not leave its value in the store.
	generation atomic.Uint64
}

// Option configures a Layer
type Option func(*Layer)

// WithBreaker gates store calls behind cb and reports its transitions
func WithBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(l *Layer) {
		l.breaker = cb
		cb.SetStateChangeCallback(func(from, to circuitbreaker.State) {
			metrics.SetCacheBreakerState(int(to))
			l.logger.Warn("cache store breaker changed state",
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		})
	}
}

// WithLogger sets the logger for swallowed store errors
func WithLogger(logger *slog.Logger) Option {
	return func(l *Layer) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithLoadTimeout bounds each shared load
func WithLoadTimeout(d time.Duration) Option {
	return func(l *Layer) {
		if d > 0 {
			l.loadTimeout = d
		}
	}
}

// New creates a layer over store. A nil store disables caching: every
// lookup calls the loader and invalidation is a no-op.
func New(store Store, opts ...Option) *Layer {
	l := &Layer{
		store:       store,
		loadTimeout: DefaultLoadTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Enabled reports whether a store is configured
func (l *Layer) Enabled() bool {
	return l.store != nil
}

// ReadThrough returns the cached value under key or, on a miss, the
// loader's value after storing it for ttl. Loader errors are returned and
// nothing is cached; a non-positive ttl disables caching for the call.
//
// Concurrent misses on one key share a single load. The load runs detached
// from any one caller, so a caller that gives up returns its own ctx error
// without failing the others.
func (l *Layer) ReadThrough(ctx context.Context, key string, ttl time.Duration, load Loader) ([]byte, error) {
	ctx, span := tracing.Tracer().Start(ctx, "cache.ReadThrough")
	defer span.End()
	span.SetAttributes(attribute.String("cache.key", key))

	if !l.Enabled() || ttl <= 0 {
		metrics.ObserveCacheLookup(ResultBypass)
		return load(ctx)
	}

	if value, ok := l.lookup(ctx, key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return value, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	// Callers arriving after an invalidation start a new flight instead of
	// joining one that may have read pre-write data.
	gen := l.generation.Load()
	flight := key + "@" + strconv.FormatUint(gen, 10)

	ch := l.group.DoChan(flight, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.loadTimeout)
		defer cancel()

		value, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		l.setIfCurrent(loadCtx, key, value, ttl, gen)
		return value, nil
	})

	select {
	case <-ctx.Done():
		err := ctx.Err()
		span.RecordError(err)
		span.SetStatus(codes.Error, "caller gave up")
		return nil, err
	case res := <-ch:
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, "loader failed")
			return nil, res.Err
		}
		span.SetAttributes(attribute.Bool("cache.shared_load", res.Shared))
		return res.Val.([]byte), nil
	}
}

// Invalidate removes every key matching pattern and returns how many were
// removed. Matching nothing is not an error, and repeating a call has the
// same effect as making it once.
func (l *Layer) Invalidate(ctx context.Context, pattern string) int {
	if !l.Enabled() {
		return 0
	}
	l.generation.Add(1)

	ctx, span := tracing.Tracer().Start(ctx, "cache.Invalidate")
	defer span.End()
	span.SetAttributes(attribute.String("cache.pattern", pattern))

	if !l.allow() {
		l.logger.Warn("cache invalidation skipped: store unavailable",
			slog.String("pattern", pattern),
		)
		return 0
	}

	keys, err := l.store.KeysMatching(ctx, pattern)
	l.record(err)
	if err != nil {
		l.logger.Warn("cache invalidation scan failed",
			slog.String("pattern", pattern),
			slog.String("error", err.Error()),
		)
		return 0
	}
	if len(keys) == 0 {
		return 0
	}

	err = l.store.DeleteMany(ctx, keys...)
	l.record(err)
	if err != nil {
		l.logger.Warn("cache invalidation delete failed",
			slog.String("pattern", pattern),
			slog.Int("keys", len(keys)),
			slog.String("error", err.Error()),
		)
		return 0
	}

	metrics.ObserveInvalidation(pattern, len(keys))
	span.SetAttributes(attribute.Int("cache.removed", len(keys)))
	l.logger.Debug("cache invalidated",
		slog.String("pattern", pattern),
		slog.Int("keys", len(keys)),
	)
	return len(keys)
}

func (l *Layer) lookup(ctx context.Context, key string) ([]byte, bool) {
	if !l.allow() {
		metrics.ObserveCacheLookup(ResultBypass)
		return nil, false
	}

	value, ok, err := l.store.Get(ctx, key)
	l.record(err)
	switch {
	case err != nil:
		metrics.ObserveCacheLookup(ResultError)
		l.logger.Warn("cache lookup failed, treating as miss",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, false
	case !ok:
		metrics.ObserveCacheLookup(ResultMiss)
		return nil, false
	default:
		metrics.ObserveCacheLookup(ResultHit)
		return value, true
	}
}

func (l *Layer) set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if !l.allow() {
		return
	}
	err := l.store.SetWithTTL(ctx, key, value, ttl)
	l.record(err)
	if err != nil {
		l.logger.Warn("cache store failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// setIfCurrent stores a loaded value unless an invalidation ran since the
// load began. The second check covers an invalidation whose scan ran
// between the first check and the write.
func (l *Layer) setIfCurrent(ctx context.Context, key string, value []byte, ttl time.Duration, gen uint64) {
	if l.generation.Load() != gen {
		l.logger.Debug("cache write skipped: invalidated during load", slog.String("key", key))
		return
	}
	l.set(ctx, key, value, ttl)
	if l.generation.Load() != gen && l.allow() {
		err := l.store.DeleteMany(ctx, key)
		l.record(err)
		if err != nil {
			l.logger.Warn("cache cleanup after concurrent invalidation failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (l *Layer) allow() bool {
	return l.breaker == nil || l.breaker.AllowRequest()
}

func (l *Layer) record(err error) {
	if l.breaker == nil {
		return
	}
	if err != nil {
		l.breaker.RecordFailure()
		return
	}
	l.breaker.RecordSuccess()
}
