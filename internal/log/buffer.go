package log

import (
	"math/bits"

	"github.com/zjrosen/klogger/internal/ring"
)

// bufferSlotSize bounds one retained log line. Longer lines keep their tail.
const bufferSlotSize = 1024

// lineBuffer keeps the most recent log lines. The ring's slot count is the
// next power of two; keep is the count callers asked for and caps Last.
type lineBuffer struct {
	ring *ring.Ring
	keep int
}

// newBuffer creates the in-memory store for recent log lines.
// Values <= 0 keep a single line.
func newBuffer(entries int) *lineBuffer {
	entries = max(entries, 1)
	slots := 1 << bits.Len(uint(entries-1))
	r, err := ring.New(ring.Config{
		SlotSize:  bufferSlotSize,
		TotalSize: bufferSlotSize * slots,
	})
	if err != nil {
		// Unreachable: geometry above is always valid.
		panic(err)
	}
	return &lineBuffer{ring: r, keep: entries}
}

// Write stores one line without its terminator.
func (b *lineBuffer) Write(line []byte) {
	b.ring.Write(line)
}

// Last returns up to n of the newest lines, oldest first, never more than
// the configured count.
func (b *lineBuffer) Last(n int) []string {
	return b.ring.Last(min(n, b.keep))
}

// Reset drops every line.
func (b *lineBuffer) Reset() {
	b.ring.Reset()
}
