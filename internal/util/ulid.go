package util

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// NewID generates a ULID; lexical order follows creation time, which keeps
// the FIFO tie-break on notifications stable.
func NewID() string {
	return NewIDAt(time.Now())
}

// NewIDAt generates a ULID stamped with t. DefaultEntropy is monotonic and
// safe for concurrent use, so ids minted in the same millisecond still sort.
func NewIDAt(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}
