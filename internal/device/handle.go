package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/klogger/internal/log"
	"github.com/zjrosen/klogger/internal/ring"
)

// Compile-time checks for the io interfaces a Handle provides.
var (
	_ io.ReadWriteCloser = (*Handle)(nil)
	_ io.ReaderFrom      = (*Handle)(nil)
	_ io.WriterTo        = (*Handle)(nil)
)

// minCopyBuffer is the smallest chunk WriteTo reads per call.
const minCopyBuffer = 32 * 1024

// Handle is one open session on a Device. Each Write stores one message;
// reads advance the session cursor until io.EOF.
//
// A Handle may be shared between goroutines; reads on the same handle are
// serialized so the cursor never skips or repeats bytes.
type Handle struct {
	id     string
	dev    *Device
	parent trace.SpanContext // span active at Open

	mu     sync.Mutex // guards cursor
	cursor int64

	closed atomic.Bool
}

// spanContext parents session spans under the span active at Open.
func (h *Handle) spanContext() context.Context {
	return trace.ContextWithSpanContext(context.Background(), h.parent)
}

// ID returns the session id.
func (h *Handle) ID() string {
	return h.id
}

// Cursor returns the session's offset into the buffered stream.
func (h *Handle) Cursor() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor
}

// Rewind moves the cursor back to the start of the stream.
func (h *Handle) Rewind() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cursor = 0
}

// Write stores p as a single message and reports len(p), even when only the
// trailing part of an oversized message is kept.
func (h *Handle) Write(p []byte) (int, error) {
	if h.closed.Load() {
		return 0, ErrClosed
	}

	_, span := h.dev.tracer.Start(h.spanContext(), "device.write", trace.WithAttributes(
		attribute.String("session.id", h.id),
		attribute.Int("bytes.requested", len(p)),
	))
	defer span.End()

	n := h.dev.ring.Write(p)
	span.SetAttributes(attribute.Bool("message.truncated", n > h.dev.ring.MaxMessage()))
	h.dev.touch(h)
	return n, nil
}

// ReadFrom reads r to EOF and stores everything read as one message.
// If r fails the ring is not modified and the error wraps ring.ErrFault.
func (h *Handle) ReadFrom(r io.Reader) (int64, error) {
	msg, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ring.ErrFault, err)
	}
	n, err := h.Write(msg)
	return int64(n), err
}

// Read copies whole messages from the cursor into p and advances the cursor.
// It returns io.EOF at the end of the buffered stream and an error wrapping
// ring.ErrShortBuffer when the next message does not fit in p. A failed read
// leaves the cursor where it was.
func (h *Handle) Read(p []byte) (int, error) {
	if h.closed.Load() {
		return 0, ErrClosed
	}

	_, span := h.dev.tracer.Start(h.spanContext(), "device.read", trace.WithAttributes(
		attribute.String("session.id", h.id),
		attribute.Int("bytes.requested", len(p)),
	))
	defer span.End()

	h.mu.Lock()
	defer h.mu.Unlock()

	n, err := h.dev.ring.ReadAt(p, h.cursor)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			recordError(span, err)
		}
		return 0, err
	}
	h.cursor += int64(n)
	span.SetAttributes(attribute.Int("bytes.read", n), attribute.Int64("session.cursor", h.cursor))
	h.dev.touch(h)
	return n, nil
}

// WriteTo drains the stream from the cursor into w. The cursor only moves
// past bytes w accepted; if w fails the error wraps ring.ErrFault.
func (h *Handle) WriteTo(w io.Writer) (int64, error) {
	if h.closed.Load() {
		return 0, ErrClosed
	}

	_, span := h.dev.tracer.Start(h.spanContext(), "device.drain",
		trace.WithAttributes(attribute.String("session.id", h.id)))
	defer span.End()

	h.mu.Lock()
	defer h.mu.Unlock()

	buf := make([]byte, max(h.dev.ring.SlotSize(), minCopyBuffer))
	var total int64
	for {
		n, err := h.dev.ring.ReadAt(buf, h.cursor)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			recordError(span, err)
			return total, err
		}

		written, werr := w.Write(buf[:n])
		if werr == nil && written < n {
			werr = io.ErrShortWrite
		}
		if werr != nil {
			err := fmt.Errorf("%w: %w", ring.ErrFault, werr)
			recordError(span, err)
			return total, err
		}
		h.cursor += int64(n)
		total += int64(n)
	}

	span.SetAttributes(attribute.Int64("bytes.read", total))
	h.dev.touch(h)
	return total, nil
}

// Close ends the session. Closing twice returns ErrNotOpen and is logged;
// the open counter is left untouched in that case.
func (h *Handle) Close() error {
	_, span := h.dev.tracer.Start(h.spanContext(), "device.close",
		trace.WithAttributes(attribute.String("session.id", h.id)))
	defer span.End()

	if !h.closed.CompareAndSwap(false, true) {
		recordError(span, ErrNotOpen)
		log.Warn(log.CatDevice, "close without open", "device", h.dev.name, "session", h.id)
		return ErrNotOpen
	}

	count, err := h.dev.release()
	h.dev.sessions.Delete(h.id)
	if err != nil {
		recordError(span, err)
		log.Warn(log.CatDevice, "close with open count at zero", "device", h.dev.name, "session", h.id)
		return err
	}

	log.Debug(log.CatDevice, "session closed", "device", h.dev.name, "session", h.id, "open", count)
	return nil
}
