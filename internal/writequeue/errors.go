package writequeue

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Submit after Stop has been called.
var ErrClosed = errors.New("writequeue: executor closed")

// ErrQueueFull is the sentinel all *QueueFullError values match via errors.Is.
var ErrQueueFull = errors.New("writequeue: shard queue full")

// QueueFullError reports that a shard queue stayed full for the whole enqueue
// timeout.
type QueueFullError struct {
	Shard    int
	Length   int
	Capacity int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("writequeue: shard %d full (%d/%d)", e.Shard, e.Length, e.Capacity)
}

// Is lets errors.Is(err, ErrQueueFull) match.
func (e *QueueFullError) Is(target error) bool { return target == ErrQueueFull }
