// Package broadcast provides a single-producer, many-subscriber line feed.
// Publishing never blocks: each topic keeps a bounded ring of recent
// messages, and a subscriber that falls behind by more than the ring size is
// told how many messages it missed and resumes at the oldest retained one.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultCapacity is the ring size used when New is given a non-positive size.
const DefaultCapacity = 128

// ErrClosed is returned by Recv once the topic is closed and drained.
var ErrClosed = errors.New("broadcast: topic closed")

// LaggedError reports messages a subscriber missed because it fell behind.
type LaggedError struct {
	Missed uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("broadcast: subscriber lagged, missed %d messages", e.Missed)
}

// Topic is a broadcast channel of strings.
type Topic struct {
	mu     sync.Mutex
	ring   []string
	next   uint64        // sequence number of the next published message
	closed bool          // no further messages will be published
	wake   chan struct{} // closed and replaced on every publish and on Close
}

func New(capacity int) *Topic {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Topic{ring: make([]string, capacity), wake: make(chan struct{})}
}

// Publish appends msg and wakes all waiting subscribers. It is a no-op after Close.
func (t *Topic) Publish(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.ring[t.next%uint64(len(t.ring))] = msg
	t.next++
	close(t.wake)
	t.wake = make(chan struct{})
}

// Close marks the end of the feed. Subscribers drain what they can still
// reach and then receive ErrClosed.
func (t *Topic) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	close(t.wake)
}

// Closed reports whether Close was called.
func (t *Topic) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Subscribe returns a subscription that receives messages published from now on.
func (t *Topic) Subscribe() *Subscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	return &Subscription{topic: t, next: t.next}
}

// Subscription is one reader's cursor into a Topic. It is not safe for
// concurrent use by multiple goroutines.
type Subscription struct {
	topic *Topic
	next  uint64
}

// Recv blocks until the next message is available, the topic is closed, or
// ctx is done. A *LaggedError is returned once per gap; the following call
// continues with the oldest retained message.
func (s *Subscription) Recv(ctx context.Context) (string, error) {
	t := s.topic
	for {
		t.mu.Lock()
		size := uint64(len(t.ring))
		if t.next > size && s.next < t.next-size {
			oldest := t.next - size
			missed := oldest - s.next
			s.next = oldest
			t.mu.Unlock()
			return "", &LaggedError{Missed: missed}
		}
		if s.next < t.next {
			msg := t.ring[s.next%size]
			s.next++
			t.mu.Unlock()
			return msg, nil
		}
		if t.closed {
			t.mu.Unlock()
			return "", ErrClosed
		}
		wake := t.wake
		t.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
