package ring

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the ring and by callers that adapt it to io interfaces.
var (
	// ErrConfig is returned by New when the slot or total size cannot form a ring.
	ErrConfig = errors.New("invalid ring configuration")

	// ErrInvalidArgument is returned for an empty destination or a negative cursor.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrShortBuffer is returned when the next message does not fit in the
	// destination at all. It wraps ErrInvalidArgument.
	ErrShortBuffer = fmt.Errorf("%w: buffer smaller than next message", ErrInvalidArgument)

	// ErrFault is returned when copying to or from the caller's buffer fails.
	ErrFault = errors.New("bad caller buffer")
)
