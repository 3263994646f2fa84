package playback_test

import (
	"testing"

	whiteroom "github.com/bretbouchard/white-room-pedalboard-sub008"
	"github.com/bretbouchard/white-room-pedalboard-sub008/playback"
)

func TestCommandChannelRoundsCapacityUp(t *testing.T) {
	for _, tc := range []struct{ asked, got int }{
		{1, 1}, {2, 2}, {3, 4}, {100, 128}, {1024, 1024}, {1025, 2048},
	} {
		c, err := playback.NewCommandChannel(tc.asked)
		if err != nil {
			t.Fatalf("NewCommandChannel(%d) failed: %v", tc.asked, err)
		}
		if c.Cap() != tc.got {
			t.Errorf("NewCommandChannel(%d).Cap() = %d, expected %d", tc.asked, c.Cap(), tc.got)
		}
	}
	if _, err := playback.NewCommandChannel(0); err == nil {
		t.Errorf("NewCommandChannel(0) should have failed")
	}
}

func TestCommandChannelFIFO(t *testing.T) {
	c, err := playback.NewCommandChannel(64)
	if err != nil {
		t.Fatalf("NewCommandChannel failed: %v", err)
	}
	for i := 0; i < 50; i++ {
		if !c.Push(whiteroom.NoteOn(int64(i), whiteroom.NoteData{Pitch: i})) {
			t.Fatalf("Push %d rejected on a non-full channel", i)
		}
	}
	if c.ApproximateLen() != 50 {
		t.Errorf("ApproximateLen = %d, expected 50", c.ApproximateLen())
	}
	var cmd whiteroom.Command
	for i := 0; i < 50; i++ {
		if !c.Pop(&cmd) {
			t.Fatalf("Pop %d failed on a non-empty channel", i)
		}
		if cmd.Time != int64(i) {
			t.Fatalf("popped command %d has time %d, expected %d", i, cmd.Time, i)
		}
	}
	if c.Pop(&cmd) {
		t.Errorf("Pop succeeded on an empty channel")
	}
}

func TestCommandChannelFullPushRejected(t *testing.T) {
	c, err := playback.NewCommandChannel(4)
	if err != nil {
		t.Fatalf("NewCommandChannel failed: %v", err)
	}
	for i := 0; i < 4; i++ {
		if !c.Push(whiteroom.NoteOn(int64(i), whiteroom.NoteData{})) {
			t.Fatalf("Push %d rejected before the channel was full", i)
		}
	}
	if c.Push(whiteroom.NoteOn(99, whiteroom.NoteData{})) {
		t.Fatalf("Push succeeded on a full channel")
	}
	// the rejected push must not have disturbed the queued commands
	var cmd whiteroom.Command
	for i := 0; i < 4; i++ {
		if !c.Pop(&cmd) || cmd.Time != int64(i) {
			t.Fatalf("after a rejected push, pop %d gave time %d", i, cmd.Time)
		}
	}
}

func TestCommandChannelWrapsAround(t *testing.T) {
	c, err := playback.NewCommandChannel(8)
	if err != nil {
		t.Fatalf("NewCommandChannel failed: %v", err)
	}
	var cmd whiteroom.Command
	// push/pop more than the capacity so the indices wrap the ring
	for i := 0; i < 100; i++ {
		if !c.Push(whiteroom.NoteOn(int64(i), whiteroom.NoteData{})) {
			t.Fatalf("Push %d rejected", i)
		}
		if !c.Pop(&cmd) {
			t.Fatalf("Pop %d failed", i)
		}
		if cmd.Time != int64(i) {
			t.Fatalf("pop %d gave time %d", i, cmd.Time)
		}
	}
}

func BenchmarkCommandChannelPushPop(b *testing.B) {
	c, err := playback.NewCommandChannel(1024)
	if err != nil {
		b.Fatalf("NewCommandChannel failed: %v", err)
	}
	cmd := whiteroom.NoteOn(0, whiteroom.NoteData{Pitch: 60, Velocity: 100})
	var out whiteroom.Command
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		c.Push(cmd)
		c.Pop(&out)
	}
}
