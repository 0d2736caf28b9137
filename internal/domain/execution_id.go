package domain

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ExecutionID identifies one submitted plan. It is a ULID, so the string
// form sorts by creation time.
type ExecutionID string

func (id ExecutionID) String() string { return string(id) }

// Time returns the creation timestamp encoded in the id.
func (id ExecutionID) Time() (time.Time, error) {
	u, err := ulid.ParseStrict(string(id))
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}

// ParseExecutionID validates s as an execution id.
func ParseExecutionID(s string) (ExecutionID, error) {
	if _, err := ulid.ParseStrict(s); err != nil {
		return "", fmt.Errorf("%w: execution id %q: %v", ErrInvalid, s, err)
	}
	return ExecutionID(s), nil
}

// IDSource mints strictly increasing execution ids. Monotonic entropy keeps
// ids minted within the same millisecond ordered; the timestamp never moves
// backwards, so a clock step back reuses the last millisecond.
type IDSource struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
	last    uint64
}

func NewIDSource() *IDSource {
	return &IDSource{entropy: ulid.Monotonic(rand.Reader, 0), now: time.Now}
}

// Next returns a fresh id.
func (s *IDSource) Next() ExecutionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms := ulid.Timestamp(s.now())
	if ms < s.last {
		ms = s.last
	}
	s.last = ms
	return ExecutionID(ulid.MustNew(ms, s.entropy).String())
}
