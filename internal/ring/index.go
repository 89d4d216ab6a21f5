package ring

import "fmt"

// Index performs wraparound arithmetic over a ring of power-of-two length.
// The zero value is not usable; build one with NewIndex.
type Index struct {
	mask int
}

// NewIndex returns an Index for a ring of n slots.
// n must be a positive power of two.
func NewIndex(n int) (Index, error) {
	if n <= 0 || n&(n-1) != 0 {
		return Index{}, fmt.Errorf("%w: slot count %d is not a power of two", ErrConfig, n)
	}
	return Index{mask: n - 1}, nil
}

// Len returns the number of slots the index covers.
func (x Index) Len() int {
	return x.mask + 1
}

// Next returns the slot after i, wrapping to 0.
func (x Index) Next(i int) int {
	return (i + 1) & x.mask
}
