package playback

import (
	"sync"
	"time"

	whiteroom "github.com/bretbouchard/white-room-pedalboard-sub008"
)

// MaxMonitorVoices bounds the per-voice level array in monitor messages, so
// the message stays a fixed-size value and publishing it never allocates.
const MaxMonitorVoices = 64

type (
	// Broker is the monitoring hand-off from the audio context to the
	// control context. The engine publishes a MsgToMonitor every block with
	// a non-blocking send; a slow or absent consumer only means dropped
	// monitor frames, never a stalled audio thread. The broker also pools
	// audio buffers so block-sized scratch buffers can be passed around
	// without allocating new memory every time.
	//
	// CloseMonitor has capacity 1, so requesting closure never blocks; a
	// full channel means someone already asked. FinishedMonitor is closed
	// by the monitor goroutine when it has cleaned up.
	Broker struct {
		ToMonitor chan MsgToMonitor

		CloseMonitor    chan struct{}
		FinishedMonitor chan struct{}

		bufferPool sync.Pool
	}

	// MsgToMonitor is the per-block status snapshot. The frequently sent
	// fields are unboxed to avoid allocations; Data carries infrequent
	// boxed messages (pointer casts to any are cheap).
	MsgToMonitor struct {
		Position       whiteroom.TransportPosition
		State          whiteroom.TransportState
		VoiceLevels    [MaxMonitorVoices]float32
		Sounding       int
		PolyphonyUsage float64
		QueueLen       int
		DroppedStale   int64
		StolenVoices   int64

		Data any
	}
)

func NewBroker() *Broker {
	return &Broker{
		ToMonitor:       make(chan MsgToMonitor, 1024),
		CloseMonitor:    make(chan struct{}, 1),
		FinishedMonitor: make(chan struct{}),
		bufferPool:      sync.Pool{New: func() any { return &whiteroom.AudioBuffer{} }},
	}
}

// GetAudioBuffer returns an empty buffer from the pool; return it with
// PutAudioBuffer when done.
func (b *Broker) GetAudioBuffer() *whiteroom.AudioBuffer {
	return b.bufferPool.Get().(*whiteroom.AudioBuffer)
}

// PutAudioBuffer resets the buffer's length (keeping capacity) and returns
// it to the pool.
func (b *Broker) PutAudioBuffer(buf *whiteroom.AudioBuffer) {
	if len(*buf) > 0 {
		*buf = (*buf)[:0]
	}
	b.bufferPool.Put(buf)
}

// TrySend sends v to c if it is not full. It is guaranteed to be
// non-blocking; it returns false when the value was dropped.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}

// TimeoutReceive blocks until a value arrives or the timeout passes; ok is
// false on timeout or a closed channel.
func TimeoutReceive[T any](c <-chan T, t time.Duration) (v T, ok bool) {
	select {
	case v, ok = <-c:
		return v, ok
	case <-time.After(t):
		return v, false
	}
}
