package playback_test

import (
	"testing"
	"time"

	"github.com/bretbouchard/white-room-pedalboard-sub008/playback"
)

func TestTrySendNeverBlocks(t *testing.T) {
	c := make(chan int, 1)
	if !playback.TrySend(c, 1) {
		t.Fatalf("TrySend failed on an empty channel")
	}
	if playback.TrySend(c, 2) {
		t.Fatalf("TrySend claimed success on a full channel")
	}
	if got := <-c; got != 1 {
		t.Fatalf("received %d, expected the first sent value 1", got)
	}
}

func TestTimeoutReceive(t *testing.T) {
	c := make(chan int, 1)
	c <- 42
	if v, ok := playback.TimeoutReceive(c, time.Second); !ok || v != 42 {
		t.Fatalf("TimeoutReceive = %d, %v; expected 42, true", v, ok)
	}
	if _, ok := playback.TimeoutReceive(c, time.Millisecond); ok {
		t.Fatalf("TimeoutReceive claimed a value from an empty channel")
	}
	close(c)
	if _, ok := playback.TimeoutReceive(c, time.Second); ok {
		t.Fatalf("TimeoutReceive claimed a value from a closed channel")
	}
}

func TestBrokerBufferPool(t *testing.T) {
	broker := playback.NewBroker()
	buf := broker.GetAudioBuffer()
	*buf = append(*buf, [2]float32{1, 2})
	broker.PutAudioBuffer(buf)
	got := broker.GetAudioBuffer()
	if len(*got) != 0 {
		t.Fatalf("pooled buffer came back with %d frames, expected it reset", len(*got))
	}
}
