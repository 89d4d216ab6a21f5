// Package ring implements the fixed-capacity message store behind the klogger
// device. Messages live in equally sized slots carved out of one byte region;
// writers take the lock exclusively and overwrite the oldest slot once the ring
// is full, readers share the lock and see whole messages only.
package ring

import (
	"fmt"
	"io"
	"sync"
)

// Terminator is appended to every stored message.
const Terminator = '\n'

const (
	// DefaultSlotSize is the default length of one slot, terminator included.
	DefaultSlotSize = 256
	// DefaultTotalSize is the default size of the slot region (1024 slots).
	DefaultTotalSize = 256 * 1024
)

// Config fixes the ring geometry. It cannot change after New.
type Config struct {
	// SlotSize is the length of one slot in bytes. Must be >= 2.
	SlotSize int
	// TotalSize is the size of the slot region in bytes. Must be a multiple
	// of SlotSize, and TotalSize/SlotSize must be a power of two.
	TotalSize int
}

// DefaultConfig returns 256 byte slots over 256 KiB.
func DefaultConfig() Config {
	return Config{
		SlotSize:  DefaultSlotSize,
		TotalSize: DefaultTotalSize,
	}
}

// Validate reports whether the geometry can form a ring.
func (c Config) Validate() error {
	if c.SlotSize < 2 {
		return fmt.Errorf("%w: slot size %d is below 2", ErrConfig, c.SlotSize)
	}
	if c.TotalSize < c.SlotSize || c.TotalSize%c.SlotSize != 0 {
		return fmt.Errorf("%w: total size %d is not a multiple of slot size %d", ErrConfig, c.TotalSize, c.SlotSize)
	}
	_, err := NewIndex(c.TotalSize / c.SlotSize)
	return err
}

// Ring is a fixed set of message slots plus head/tail bookkeeping.
// All methods are safe for concurrent use.
type Ring struct {
	mu sync.RWMutex

	storage  []byte
	lengths  []int // bytes used in each slot, terminator included
	slotSize int
	idx      Index

	head        int // next slot to write
	tail        int // oldest valid slot
	lastWritten int
	entries     int // saturates at idx.Len()
}

// New allocates a zeroed ring. It returns an error wrapping ErrConfig and no
// ring when the geometry is invalid.
func New(cfg Config) (*Ring, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	idx, err := NewIndex(cfg.TotalSize / cfg.SlotSize)
	if err != nil {
		return nil, err
	}
	return &Ring{
		storage:  make([]byte, cfg.TotalSize),
		lengths:  make([]int, idx.Len()),
		slotSize: cfg.SlotSize,
		idx:      idx,
	}, nil
}

// Capacity returns the number of slots.
func (r *Ring) Capacity() int {
	return r.idx.Len()
}

// SlotSize returns the slot length in bytes.
func (r *Ring) SlotSize() int {
	return r.slotSize
}

// MaxMessage returns the longest message content a slot retains.
func (r *Ring) MaxMessage() int {
	return r.slotSize - 1
}

// slot returns the bytes of slot i. Caller must hold mu.
func (r *Ring) slot(i int) []byte {
	off := i * r.slotSize
	return r.storage[off : off+r.slotSize : off+r.slotSize]
}

// Write stores msg as one entry, evicting the oldest entry when the ring is
// full. Messages longer than MaxMessage keep only their trailing bytes.
// The returned count is always len(msg).
func (r *Ring) Write(msg []byte) int {
	n := len(msg)
	if n > r.MaxMessage() {
		msg = msg[n-r.MaxMessage():]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entries == r.idx.Len() && r.head == r.tail {
		r.tail = r.idx.Next(r.tail)
	}

	s := r.slot(r.head)
	clear(s)
	c := copy(s, msg)
	s[c] = Terminator
	r.lengths[r.head] = c + 1

	if r.entries < r.idx.Len() {
		r.entries++
	}
	r.lastWritten = r.head
	r.head = r.idx.Next(r.head)
	return n
}

// ReadAt copies buffered messages into p starting at cursor, an offset into
// the concatenation of all current entries, oldest first. Only whole message
// remainders are copied, so a successful read always ends on a Terminator.
//
// It returns io.EOF once cursor reaches the end of the buffered stream and
// ErrShortBuffer when the next message alone does not fit in p. The caller
// owns the cursor and advances it by the returned count.
func (r *Ring) ReadAt(p []byte, cursor int64) (int, error) {
	if len(p) == 0 {
		return 0, fmt.Errorf("%w: empty destination", ErrInvalidArgument)
	}
	if cursor < 0 {
		return 0, fmt.Errorf("%w: negative cursor %d", ErrInvalidArgument, cursor)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		off  int64 // snapshot offset of slot i
		n    int
		full bool
	)
	i := r.tail
	for k := 0; k < r.entries; k++ {
		used := r.lengths[i]
		end := off + int64(used)
		if end > cursor {
			start := 0
			if cursor > off {
				start = int(cursor - off)
			}
			chunk := r.slot(i)[start:used]
			if n+len(chunk) > len(p) {
				full = true
				break
			}
			n += copy(p[n:], chunk)
		}
		off = end
		i = r.idx.Next(i)
	}

	switch {
	case n > 0:
		return n, nil
	case full:
		return 0, ErrShortBuffer
	default:
		return 0, io.EOF
	}
}

// Len returns the number of valid entries.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries
}

// Size returns the length of the buffered stream in bytes.
func (r *Ring) Size() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size()
}

func (r *Ring) size() int64 {
	var total int64
	i := r.tail
	for k := 0; k < r.entries; k++ {
		total += int64(r.lengths[i])
		i = r.idx.Next(i)
	}
	return total
}

// Last returns the content of the newest n entries, oldest first, without
// terminators.
func (r *Ring) Last(n int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n > r.entries {
		n = r.entries
	}
	if n <= 0 {
		return nil
	}

	result := make([]string, 0, n)
	i := r.tail
	for k := 0; k < r.entries; k++ {
		if k >= r.entries-n {
			result = append(result, string(r.slot(i)[:r.lengths[i]-1]))
		}
		i = r.idx.Next(i)
	}
	return result
}

// WriteTo writes the whole buffered stream to w. It implements io.WriterTo.
func (r *Ring) WriteTo(w io.Writer) (int64, error) {
	r.mu.RLock()
	buf := make([]byte, 0, r.size())
	i := r.tail
	for k := 0; k < r.entries; k++ {
		buf = append(buf, r.slot(i)[:r.lengths[i]]...)
		i = r.idx.Next(i)
	}
	r.mu.RUnlock()

	n, err := w.Write(buf)
	if err != nil {
		return int64(n), fmt.Errorf("%w: %w", ErrFault, err)
	}
	return int64(n), nil
}

// Reset drops every entry and zeroes the slots.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.storage)
	clear(r.lengths)
	r.head = 0
	r.tail = 0
	r.lastWritten = 0
	r.entries = 0
}

// Stats is a point-in-time view of the ring bookkeeping.
type Stats struct {
	Capacity    int   `yaml:"capacity"`
	SlotSize    int   `yaml:"slot_size"`
	Entries     int   `yaml:"entries"`
	Head        int   `yaml:"head"`
	Tail        int   `yaml:"tail"`
	LastWritten int   `yaml:"last_written"`
	Bytes       int64 `yaml:"bytes"`
	Wrapped     bool  `yaml:"wrapped"`
}

// Stats returns a consistent snapshot of the bookkeeping.
func (r *Ring) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		Capacity:    r.idx.Len(),
		SlotSize:    r.slotSize,
		Entries:     r.entries,
		Head:        r.head,
		Tail:        r.tail,
		LastWritten: r.lastWritten,
		Bytes:       r.size(),
		Wrapped:     r.entries == r.idx.Len(),
	}
}
