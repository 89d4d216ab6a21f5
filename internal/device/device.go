// Package device exposes a ring.Ring as a shared log device with per-session
// read cursors. Every Open hands out a Handle that behaves like an open file:
// writes append messages, reads drain the buffered stream exactly once.
package device

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/klogger/internal/log"
	"github.com/zjrosen/klogger/internal/ring"
)

// Sentinel errors for session bookkeeping.
var (
	// ErrTooManyHandles is returned by Open when the open-handle limit is reached.
	ErrTooManyHandles = errors.New("too many open handles")

	// ErrNotOpen is returned when closing a handle that is not open.
	ErrNotOpen = errors.New("handle not open")

	// ErrClosed is returned by I/O on a closed handle.
	ErrClosed = errors.New("handle closed")
)

// DefaultName is the device name used in logs and spans.
const DefaultName = "klogger"

// Config configures a Device.
type Config struct {
	// Name identifies the device in logs and spans. Defaults to DefaultName.
	Name string

	// MaxOpen caps concurrently open handles. Zero means math.MaxInt32.
	MaxOpen int64

	// IdleTimeout closes sessions that see no I/O for this long.
	// Zero disables reaping.
	IdleTimeout time.Duration
}

// Device multiplexes sessions over one shared ring.
type Device struct {
	name    string
	ring    *ring.Ring
	maxOpen int64
	idle    time.Duration

	// open is advisory; the ring never consults it.
	open     atomic.Int64
	sessions *cache.Cache
	tracer   trace.Tracer
}

// Option customizes a Device.
type Option func(*Device)

// WithTracer sets the tracer used for device spans.
// By default the global otel tracer provider is used.
func WithTracer(tracer trace.Tracer) Option {
	return func(d *Device) {
		d.tracer = tracer
	}
}

// New wraps r in a Device.
func New(r *ring.Ring, cfg Config, opts ...Option) *Device {
	name := cfg.Name
	if name == "" {
		name = DefaultName
	}
	maxOpen := cfg.MaxOpen
	if maxOpen <= 0 {
		maxOpen = math.MaxInt32
	}

	expiration, cleanup := cache.NoExpiration, time.Duration(0)
	if cfg.IdleTimeout > 0 {
		expiration = cfg.IdleTimeout
		cleanup = cfg.IdleTimeout / 2
	}

	d := &Device{
		name:     name,
		ring:     r,
		maxOpen:  maxOpen,
		idle:     cfg.IdleTimeout,
		sessions: cache.New(expiration, cleanup),
		tracer:   otel.Tracer("github.com/zjrosen/klogger/internal/device"),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.sessions.OnEvicted(d.evicted)
	return d
}

// Name returns the device name.
func (d *Device) Name() string {
	return d.name
}

// Ring returns the underlying ring.
func (d *Device) Ring() *ring.Ring {
	return d.ring
}

// OpenCount returns the number of open handles.
func (d *Device) OpenCount() int64 {
	return d.open.Load()
}

// Open starts a new session with its cursor at the start of the stream.
func (d *Device) Open(ctx context.Context) (*Handle, error) {
	_, span := d.tracer.Start(ctx, "device.open",
		trace.WithAttributes(attribute.String("device.name", d.name)))
	defer span.End()

	count, err := d.acquire()
	if err != nil {
		recordError(span, err)
		log.Warn(log.CatDevice, "open rejected", "device", d.name, "open", count, "max", d.maxOpen)
		return nil, fmt.Errorf("open %s: %w", d.name, err)
	}

	h := &Handle{
		id:     uuid.New().String(),
		dev:    d,
		parent: trace.SpanContextFromContext(ctx),
	}
	d.sessions.Set(h.id, h, cache.DefaultExpiration)

	span.SetAttributes(attribute.String("session.id", h.id), attribute.Int64("device.open", count))
	log.Debug(log.CatDevice, "session opened", "device", d.name, "session", h.id, "open", count)
	return h, nil
}

// Lookup returns the open session with the given id.
func (d *Device) Lookup(id string) (*Handle, bool) {
	v, ok := d.sessions.Get(id)
	if !ok {
		return nil, false
	}
	h, ok := v.(*Handle)
	if !ok || h.closed.Load() {
		return nil, false
	}
	return h, true
}

// Shutdown closes every session still open. Leftover handles are logged
// since they indicate a caller that never closed.
func (d *Device) Shutdown() {
	d.sessions.DeleteExpired()

	for id, item := range d.sessions.Items() {
		h, ok := item.Object.(*Handle)
		if !ok {
			continue
		}
		log.Warn(log.CatDevice, "closing session at shutdown", "device", d.name, "session", id)
		_ = h.Close()
	}

	if n := d.open.Load(); n != 0 {
		log.Warn(log.CatDevice, "open handles remain after shutdown", "device", d.name, "open", n)
	}
}

// Stats combines the ring bookkeeping with session counters.
type Stats struct {
	ring.Stats  `yaml:",inline"`
	OpenHandles int64 `yaml:"open_handles"`
	Sessions    int   `yaml:"sessions"`
}

// Stats returns the current device statistics.
func (d *Device) Stats() Stats {
	return Stats{
		Stats:       d.ring.Stats(),
		OpenHandles: d.open.Load(),
		Sessions:    d.sessions.ItemCount(),
	}
}

// acquire increments the open counter unless it would pass maxOpen.
func (d *Device) acquire() (int64, error) {
	for {
		n := d.open.Load()
		if n >= d.maxOpen {
			return n, ErrTooManyHandles
		}
		if d.open.CompareAndSwap(n, n+1) {
			return n + 1, nil
		}
	}
}

// release decrements the open counter, refusing to go below zero.
func (d *Device) release() (int64, error) {
	for {
		n := d.open.Load()
		if n <= 0 {
			return n, ErrNotOpen
		}
		if d.open.CompareAndSwap(n, n-1) {
			return n - 1, nil
		}
	}
}

// touch refreshes a session's idle deadline. Replace fails once Close or
// the janitor has removed the entry, so a closed handle is never re-added.
func (d *Device) touch(h *Handle) {
	if d.idle <= 0 || h.closed.Load() {
		return
	}
	_ = d.sessions.Replace(h.id, h, cache.DefaultExpiration)
}

// evicted runs for explicit deletes and idle expiry alike; only the latter
// still has an open handle to release.
func (d *Device) evicted(id string, v any) {
	h, ok := v.(*Handle)
	if !ok || !h.closed.CompareAndSwap(false, true) {
		return
	}
	count, err := d.release()
	if err != nil {
		log.Warn(log.CatDevice, "reaped session without open count", "device", d.name, "session", id)
		return
	}
	log.Info(log.CatDevice, "idle session reaped", "device", d.name, "session", id, "open", count)
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
