package playback

import (
	"fmt"
	"math/bits"
	"sync/atomic"

	whiteroom "github.com/bretbouchard/white-room-pedalboard-sub008"
)

// CommandChannel is the single hand-off between the control context and the
// audio context: a lock-free, wait-free single-producer/single-consumer ring
// of commands. Exactly one goroutine may call Push and exactly one other may
// call Pop; there is deliberately no runtime guard for this, as guarding
// would require the locking the channel exists to avoid.
//
// The capacity is a power of two so index wraparound is a bitmask instead of
// a division. The write index is advanced only after the slot is fully
// written and the read index only after the slot is fully read; the atomic
// loads and stores order the two sides so the consumer never observes a
// partially written command. No allocation happens after construction.
type CommandChannel struct {
	buf  []whiteroom.Command
	mask int64

	_     [56]byte // keep the two indices on separate cache lines
	read  atomic.Int64
	_     [56]byte
	write atomic.Int64
}

// NewCommandChannel builds a channel holding at least capacity commands; the
// actual capacity is rounded up to the next power of two.
func NewCommandChannel(capacity int) (*CommandChannel, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("command channel capacity must be positive, got %d", capacity)
	}
	size := 1 << bits.Len(uint(capacity-1))
	return &CommandChannel{
		buf:  make([]whiteroom.Command, size),
		mask: int64(size - 1),
	}, nil
}

// Cap returns the fixed capacity of the channel.
func (c *CommandChannel) Cap() int { return len(c.buf) }

// Push enqueues a command. It returns false and leaves the channel unchanged
// when the channel is full; that is back-pressure for the control context to
// handle, not an error. Producer side only.
func (c *CommandChannel) Push(cmd whiteroom.Command) bool {
	w := c.write.Load()
	if w-c.read.Load() >= int64(len(c.buf)) {
		return false
	}
	c.buf[w&c.mask] = cmd
	c.write.Store(w + 1)
	return true
}

// Pop dequeues the oldest command into *cmd, returning false when the
// channel is empty. Consumer side only.
func (c *CommandChannel) Pop(cmd *whiteroom.Command) bool {
	r := c.read.Load()
	if r >= c.write.Load() {
		return false
	}
	*cmd = c.buf[r&c.mask]
	c.read.Store(r + 1)
	return true
}

// ApproximateLen returns a snapshot of the queue length for monitoring. The
// value may be stale by the time it is read and must not drive control flow.
func (c *CommandChannel) ApproximateLen() int {
	n := c.write.Load() - c.read.Load()
	if n < 0 {
		n = 0
	}
	return int(n)
}
