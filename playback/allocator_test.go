package playback_test

import (
	"testing"

	whiteroom "github.com/bretbouchard/white-room-pedalboard-sub008"
	"github.com/bretbouchard/white-room-pedalboard-sub008/playback"
)

func newTestAllocator(t *testing.T, cfg whiteroom.PoolConfig) *playback.VoiceAllocator {
	t.Helper()
	a, err := playback.NewVoiceAllocator(cfg, 44100)
	if err != nil {
		t.Fatalf("NewVoiceAllocator failed: %v", err)
	}
	return a
}

func TestAllocatorAssignsDistinctSlots(t *testing.T) {
	a := newTestAllocator(t, whiteroom.PoolConfig{MaxPolyphony: 4, StealingPolicy: whiteroom.StealOldest})
	seen := map[int32]bool{}
	for i := 0; i < 4; i++ {
		idx := a.Allocate(whiteroom.NoteData{Pitch: 60 + i, Velocity: 100}, int64(i*100), false, 0)
		if idx < 0 {
			t.Fatalf("allocation %d failed with idle slots left", i)
		}
		if seen[idx] {
			t.Fatalf("slot %d assigned twice", idx)
		}
		seen[idx] = true
	}
	if a.ActiveCount() != 4 {
		t.Errorf("ActiveCount = %d, expected 4", a.ActiveCount())
	}
}

func TestAllocatorFullPoolWithoutStealing(t *testing.T) {
	a := newTestAllocator(t, whiteroom.PoolConfig{MaxPolyphony: 4, StealingEnabled: false})
	for i := 0; i < 4; i++ {
		a.Allocate(whiteroom.NoteData{Pitch: 60 + i}, int64(i), false, 0)
	}
	if idx := a.Allocate(whiteroom.NoteData{Pitch: 72}, 100, false, 0); idx != -1 {
		t.Fatalf("full pool with stealing disabled allocated slot %d, expected -1", idx)
	}
	if a.StolenCount() != 0 {
		t.Errorf("StolenCount = %d, expected 0", a.StolenCount())
	}
}

func TestAllocatorStealsOldest(t *testing.T) {
	a := newTestAllocator(t, whiteroom.PoolConfig{
		MaxPolyphony: 4, StealingPolicy: whiteroom.StealOldest, StealingEnabled: true,
	})
	starts := []int64{300, 100, 200, 400}
	for i, start := range starts {
		a.Allocate(whiteroom.NoteData{Pitch: 60 + i, Velocity: 100}, start, false, 0)
	}
	idx := a.Allocate(whiteroom.NoteData{Pitch: 72, Velocity: 100}, 500, false, 0)
	if idx != 1 {
		t.Fatalf("stole slot %d, expected slot 1 with the oldest start", idx)
	}
	slot, _ := a.VoiceInfo(idx)
	if slot.State != whiteroom.VoiceActive || slot.Pitch != 72 || slot.StartSample != 500 {
		t.Errorf("stolen slot not reinitialized: %+v", slot)
	}
	if a.StolenCount() != 1 {
		t.Errorf("StolenCount = %d, expected 1", a.StolenCount())
	}
	if a.ActiveCount() != 4 {
		t.Errorf("ActiveCount = %d, expected 4 after steal", a.ActiveCount())
	}
}

func TestAllocatorStealsLowestPriority(t *testing.T) {
	a := newTestAllocator(t, whiteroom.PoolConfig{
		MaxPolyphony: 4, StealingPolicy: whiteroom.StealLowestPriority, StealingEnabled: true,
	})
	priorities := []whiteroom.VoicePriority{
		whiteroom.PriorityPrimary, whiteroom.PrioritySecondary,
		whiteroom.PriorityTertiary, whiteroom.PrioritySecondary,
	}
	for i, p := range priorities {
		a.Allocate(whiteroom.NoteData{Pitch: 60 + i, Velocity: 100, Priority: p}, int64(i), false, 0)
	}
	if idx := a.Allocate(whiteroom.NoteData{Pitch: 72}, 10, false, 0); idx != 2 {
		t.Fatalf("stole slot %d, expected the tertiary slot 2", idx)
	}
}

func TestAllocatorStealsQuietest(t *testing.T) {
	a := newTestAllocator(t, whiteroom.PoolConfig{
		MaxPolyphony: 4, StealingPolicy: whiteroom.StealQuietest, StealingEnabled: true,
	})
	velocities := []int{100, 40, 90, 40}
	for i, v := range velocities {
		a.Allocate(whiteroom.NoteData{Pitch: 60 + i, Velocity: v}, int64(i), false, 0)
	}
	// ties break to the lowest slot index
	if idx := a.Allocate(whiteroom.NoteData{Pitch: 72, Velocity: 100}, 10, false, 0); idx != 1 {
		t.Fatalf("stole slot %d, expected the quieter slot 1", idx)
	}
}

func TestAllocatorStealExcludesRole(t *testing.T) {
	a := newTestAllocator(t, whiteroom.PoolConfig{
		MaxPolyphony: 2, StealingPolicy: whiteroom.StealOldest, StealingEnabled: true,
	})
	a.Allocate(whiteroom.NoteData{Pitch: 60, Role: 1}, 0, false, 0)
	a.Allocate(whiteroom.NoteData{Pitch: 62, Role: 2}, 100, false, 0)
	// the older voice belongs to the protected role, so the newer one goes
	if idx := a.Allocate(whiteroom.NoteData{Pitch: 64, Role: 3}, 200, true, 1); idx != 1 {
		t.Fatalf("stole slot %d, expected slot 1 with role 1 excluded", idx)
	}
}

func TestAllocatorReleaseLifecycle(t *testing.T) {
	a := newTestAllocator(t, whiteroom.PoolConfig{
		MaxPolyphony: 2, DefaultReleaseMs: 100, StealingPolicy: whiteroom.StealOldest,
	})
	idx := a.Allocate(whiteroom.NoteData{Pitch: 60, Velocity: 100}, 0, false, 0)
	a.Release(idx, 1000)
	slot, _ := a.VoiceInfo(idx)
	if slot.State != whiteroom.VoiceReleasing {
		t.Fatalf("state after release = %v, expected Releasing", slot.State)
	}
	// 100 ms at 44100 Hz is 4410 samples of tail
	a.Update(1000 + 4410)
	if slot, _ = a.VoiceInfo(idx); slot.State != whiteroom.VoiceReleasing {
		t.Fatalf("state at the end of the tail = %v, expected still Releasing", slot.State)
	}
	a.Update(1000 + 4411)
	if slot, _ = a.VoiceInfo(idx); slot.State != whiteroom.VoiceIdle {
		t.Fatalf("state past the tail = %v, expected Idle", slot.State)
	}
}

func TestAllocatorReleaseOverride(t *testing.T) {
	a := newTestAllocator(t, whiteroom.PoolConfig{MaxPolyphony: 1, DefaultReleaseMs: 100})
	idx := a.Allocate(whiteroom.NoteData{Pitch: 60}, 0, false, 0)
	a.SetReleaseOverride(idx, 10)
	a.Release(idx, 100)
	a.Update(111)
	if slot, _ := a.VoiceInfo(idx); slot.State != whiteroom.VoiceIdle {
		t.Fatalf("state = %v, expected Idle after the overridden 10-sample tail", slot.State)
	}
}

func TestAllocatorScheduledStopStartsRelease(t *testing.T) {
	a := newTestAllocator(t, whiteroom.PoolConfig{MaxPolyphony: 1, DefaultReleaseMs: 100})
	a.Allocate(whiteroom.NoteData{Pitch: 60, Duration: 500}, 100, false, 0)
	a.Update(599)
	if slot, _ := a.VoiceInfo(0); slot.State != whiteroom.VoiceActive {
		t.Fatalf("state before the scheduled stop = %v, expected Active", slot.State)
	}
	a.Update(600)
	slot, _ := a.VoiceInfo(0)
	if slot.State != whiteroom.VoiceReleasing || slot.ReleaseStart != 600 {
		t.Fatalf("state at the scheduled stop = %v (release start %d), expected Releasing from 600",
			slot.State, slot.ReleaseStart)
	}
}

func TestAllocatorReleaseOfNonActiveIsNoop(t *testing.T) {
	a := newTestAllocator(t, whiteroom.PoolConfig{MaxPolyphony: 2, DefaultReleaseMs: 100})
	a.Release(0, 100) // idle
	if slot, _ := a.VoiceInfo(0); slot.State != whiteroom.VoiceIdle {
		t.Errorf("releasing an idle slot changed its state to %v", slot.State)
	}
	a.Release(5, 100)  // out of range
	a.Release(-1, 100) // out of range
}

func TestAllocatorFindVoice(t *testing.T) {
	a := newTestAllocator(t, whiteroom.PoolConfig{MaxPolyphony: 4})
	a.Allocate(whiteroom.NoteData{Pitch: 60, Role: 1}, 0, false, 0)
	a.Allocate(whiteroom.NoteData{Pitch: 60, Role: 2}, 0, false, 0)
	if idx := a.FindVoice(2, 60); idx != 1 {
		t.Errorf("FindVoice(2, 60) = %d, expected 1", idx)
	}
	if idx := a.FindVoice(1, 99); idx != -1 {
		t.Errorf("FindVoice(1, 99) = %d, expected -1", idx)
	}
}

func TestAllocatorStopRole(t *testing.T) {
	a := newTestAllocator(t, whiteroom.PoolConfig{MaxPolyphony: 4})
	a.Allocate(whiteroom.NoteData{Pitch: 60, Role: 1}, 0, false, 0)
	a.Allocate(whiteroom.NoteData{Pitch: 62, Role: 2}, 0, false, 0)
	a.StopRole(1)
	if slot, _ := a.VoiceInfo(0); slot.State != whiteroom.VoiceIdle {
		t.Errorf("role 1 voice not stopped, state %v", slot.State)
	}
	if slot, _ := a.VoiceInfo(1); slot.State != whiteroom.VoiceActive {
		t.Errorf("role 2 voice stopped too, state %v", slot.State)
	}
	if a.ActiveCount() != 1 {
		t.Errorf("ActiveCount = %d, expected 1", a.ActiveCount())
	}
}

func TestAllocatorMaxPolyphonyClamped(t *testing.T) {
	a := newTestAllocator(t, whiteroom.PoolConfig{MaxPolyphony: 4})
	a.SetMaxPolyphony(2)
	a.Allocate(whiteroom.NoteData{Pitch: 60}, 0, false, 0)
	a.Allocate(whiteroom.NoteData{Pitch: 62}, 0, false, 0)
	if idx := a.Allocate(whiteroom.NoteData{Pitch: 64}, 0, false, 0); idx != -1 {
		t.Fatalf("allocation above the lowered limit gave slot %d, expected -1", idx)
	}
	a.SetMaxPolyphony(100)
	if a.MaxPolyphony() != 4 {
		t.Errorf("MaxPolyphony = %d, expected clamp to the slot table size 4", a.MaxPolyphony())
	}
	if idx := a.Allocate(whiteroom.NoteData{Pitch: 64}, 0, false, 0); idx < 0 {
		t.Errorf("allocation failed after raising the limit back")
	}
}

func TestAllocatorRejectsInvalidConfig(t *testing.T) {
	if _, err := playback.NewVoiceAllocator(whiteroom.PoolConfig{MaxPolyphony: 0}, 44100); err == nil {
		t.Errorf("zero polyphony accepted")
	}
	if _, err := playback.NewVoiceAllocator(whiteroom.DefaultPoolConfig(), 0); err == nil {
		t.Errorf("zero sample rate accepted")
	}
}
