package playback

import (
	"fmt"

	whiteroom "github.com/bretbouchard/white-room-pedalboard-sub008"
)

// VoiceAllocator arbitrates the fixed pool of voice slots. The slot table is
// allocated once at construction and owned by the audio context; every
// method except the documented monitoring queries is allocation- and
// lock-free. Slot indices are stable identities: a slot keeps its index for
// the lifetime of the allocator and is reused in place, never moved.
type VoiceAllocator struct {
	slots      []whiteroom.VoiceSlot
	limit      int // effective polyphony, <= len(slots)
	policy     whiteroom.StealingPolicy
	stealing   bool
	releaseLen int64 // default release tail in samples
	sampleRate int

	activeCount int
	stolenCount int64
}

// NewVoiceAllocator builds the slot table. An invalid config is a
// configuration bug and fails fast, before any audio context exists.
func NewVoiceAllocator(cfg whiteroom.PoolConfig, sampleRate int) (*VoiceAllocator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid voice pool config: %w", err)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	a := &VoiceAllocator{
		slots:      make([]whiteroom.VoiceSlot, cfg.MaxPolyphony),
		limit:      cfg.MaxPolyphony,
		policy:     cfg.StealingPolicy,
		stealing:   cfg.StealingEnabled,
		releaseLen: int64(cfg.DefaultReleaseMs) * int64(sampleRate) / 1000,
		sampleRate: sampleRate,
	}
	for i := range a.slots {
		a.slots[i].Index = int32(i)
	}
	return a, nil
}

// Allocate turns a note request into a slot assignment. It prefers an idle
// slot; under pressure it steals per the configured policy, excluding slots
// of excludeRole when exclude is set. The stolen slot is reinitialized for
// the new note immediately. It returns -1 when no slot is available even
// after stealing, which the caller must treat as "note dropped", not an
// error.
func (a *VoiceAllocator) Allocate(data whiteroom.NoteData, startSample int64, exclude bool, excludeRole int32) int32 {
	idx := a.findIdle()
	if idx < 0 {
		if !a.stealing {
			return -1
		}
		idx = a.findVictim(startSample, exclude, excludeRole)
		if idx < 0 {
			return -1
		}
		a.slots[idx].State = whiteroom.VoiceStolen
		a.stolenCount++
		a.activeCount--
	}
	slot := &a.slots[idx]
	slot.State = whiteroom.VoiceActive
	slot.Priority = data.Priority
	slot.Pitch = data.Pitch
	slot.Velocity = data.Velocity
	slot.Role = data.Role
	slot.Pan = data.Pan
	slot.StartSample = startSample
	if data.Duration > 0 {
		slot.StopSample = startSample + data.Duration
	} else {
		slot.StopSample = 0
	}
	slot.ReleaseStart = 0
	slot.ReleaseSamples = 0
	a.activeCount++
	return idx
}

func (a *VoiceAllocator) findIdle() int32 {
	for i := 0; i < a.limit; i++ {
		if a.slots[i].State == whiteroom.VoiceIdle {
			return int32(i)
		}
	}
	return -1
}

// findVictim applies the stealing policy over Active slots, never Releasing
// or already Stolen ones. Ties break to the lowest slot index, which the
// scan order gives for free with strict comparisons.
func (a *VoiceAllocator) findVictim(now int64, exclude bool, excludeRole int32) int32 {
	best := int32(-1)
	var bestKey int64
	for i := 0; i < a.limit; i++ {
		slot := &a.slots[i]
		if slot.State != whiteroom.VoiceActive {
			continue
		}
		if exclude && slot.Role == excludeRole {
			continue
		}
		key := a.stealKey(slot, now)
		if best < 0 || key < bestKey {
			best = int32(i)
			bestKey = key
		}
	}
	return best
}

// stealKey maps a slot to a comparable value where the minimum is the
// preferred victim under the configured policy.
func (a *VoiceAllocator) stealKey(slot *whiteroom.VoiceSlot, now int64) int64 {
	switch a.policy {
	case whiteroom.StealLowestPriority:
		return -int64(slot.Priority)
	case whiteroom.StealQuietest:
		return int64(slot.Velocity)
	case whiteroom.StealFurthest:
		return -(now - slot.StartSample)
	default: // StealOldest
		return slot.StartSample
	}
}

// Release moves an Active slot into its release tail starting at
// releaseSample. Out-of-range or non-Active indices are a no-op.
func (a *VoiceAllocator) Release(index int32, releaseSample int64) {
	if index < 0 || int(index) >= len(a.slots) {
		return
	}
	slot := &a.slots[index]
	if slot.State != whiteroom.VoiceActive {
		return
	}
	slot.State = whiteroom.VoiceReleasing
	slot.ReleaseStart = releaseSample
	a.activeCount--
}

// SetReleaseOverride sets a per-voice release tail in samples for the next
// Release of that slot; zero restores the pool default.
func (a *VoiceAllocator) SetReleaseOverride(index int32, samples int64) {
	if index < 0 || int(index) >= len(a.slots) || samples < 0 {
		return
	}
	a.slots[index].ReleaseSamples = samples
}

// Update advances slot life-cycles to currentTime: Active slots past their
// scheduled stop start releasing, Releasing slots past their tail go Idle,
// and slots left in Stolen are reclaimed. Called once per audio block from
// the audio context; performs no allocation and no locking.
func (a *VoiceAllocator) Update(currentTime int64) {
	for i := 0; i < len(a.slots); i++ {
		slot := &a.slots[i]
		switch slot.State {
		case whiteroom.VoiceActive:
			if slot.StopSample != 0 && slot.StopSample <= currentTime {
				slot.State = whiteroom.VoiceReleasing
				slot.ReleaseStart = slot.StopSample
				a.activeCount--
			}
		case whiteroom.VoiceReleasing:
			tail := slot.ReleaseSamples
			if tail == 0 {
				tail = a.releaseLen
			}
			if currentTime-slot.ReleaseStart > tail {
				slot.State = whiteroom.VoiceIdle
			}
		case whiteroom.VoiceStolen:
			// a stolen slot gets no release tail; reclaim after one block
			slot.State = whiteroom.VoiceIdle
		}
	}
}

// FindVoice returns the lowest-index Active slot playing pitch for role, or
// -1. The scheduler uses it to resolve an implicit NoteOff target.
func (a *VoiceAllocator) FindVoice(role int32, pitch int) int32 {
	for i := 0; i < len(a.slots); i++ {
		slot := &a.slots[i]
		if slot.State == whiteroom.VoiceActive && slot.Role == role && slot.Pitch == pitch {
			return int32(i)
		}
	}
	return -1
}

// StopAll forces every non-idle slot back to Idle immediately, without
// release tails. Used on transport stop.
func (a *VoiceAllocator) StopAll() {
	for i := range a.slots {
		a.slots[i].State = whiteroom.VoiceIdle
	}
	a.activeCount = 0
}

// StopRole does the same as StopAll for a single role.
func (a *VoiceAllocator) StopRole(role int32) {
	for i := range a.slots {
		slot := &a.slots[i]
		if slot.Role != role || slot.State == whiteroom.VoiceIdle {
			continue
		}
		if slot.State == whiteroom.VoiceActive {
			a.activeCount--
		}
		slot.State = whiteroom.VoiceIdle
	}
}

// SetStealingPolicy, SetStealingEnabled and SetMaxPolyphony apply drained
// configuration commands. SetMaxPolyphony clamps the effective limit to the
// construction capacity: the slot table never grows on the audio context,
// and slots above the new limit finish sounding but are not reallocated.

func (a *VoiceAllocator) SetStealingPolicy(p whiteroom.StealingPolicy) {
	if p >= whiteroom.StealOldest && p <= whiteroom.StealFurthest {
		a.policy = p
	}
}

func (a *VoiceAllocator) SetStealingEnabled(enabled bool) { a.stealing = enabled }

func (a *VoiceAllocator) SetMaxPolyphony(n int) {
	if n < 1 {
		n = 1
	}
	if n > len(a.slots) {
		n = len(a.slots)
	}
	a.limit = n
}

/* queries */

// VoiceInfo returns a copy of the slot at index. The copy is stale the
// moment it is returned; re-validate State before acting on it.
func (a *VoiceAllocator) VoiceInfo(index int32) (whiteroom.VoiceSlot, bool) {
	if index < 0 || int(index) >= len(a.slots) {
		return whiteroom.VoiceSlot{}, false
	}
	return a.slots[index], true
}

// Slots exposes the slot table to the batch grouper. Audio context only.
func (a *VoiceAllocator) Slots() []whiteroom.VoiceSlot { return a.slots }

// ActiveVoices returns the indices of all Active and Releasing slots. It
// allocates a fresh slice and is not real-time safe; it exists for UI and
// monitoring use from the control context, tolerating staleness.
func (a *VoiceAllocator) ActiveVoices() []int32 {
	voices := make([]int32, 0, a.activeCount)
	for i := range a.slots {
		switch a.slots[i].State {
		case whiteroom.VoiceActive, whiteroom.VoiceReleasing:
			voices = append(voices, int32(i))
		}
	}
	return voices
}

// ActiveCount returns the number of Active slots.
func (a *VoiceAllocator) ActiveCount() int { return a.activeCount }

// SoundingCount returns the number of slots that still produce audio.
func (a *VoiceAllocator) SoundingCount() int {
	n := 0
	for i := range a.slots {
		switch a.slots[i].State {
		case whiteroom.VoiceActive, whiteroom.VoiceReleasing:
			n++
		}
	}
	return n
}

// StolenCount returns how many voices have been stolen since construction.
func (a *VoiceAllocator) StolenCount() int64 { return a.stolenCount }

// PolyphonyUsage returns the Active fraction of the effective limit.
func (a *VoiceAllocator) PolyphonyUsage() float64 {
	if a.limit == 0 {
		return 0
	}
	return float64(a.activeCount) / float64(a.limit)
}

// MaxPolyphony returns the effective polyphony limit.
func (a *VoiceAllocator) MaxPolyphony() int { return a.limit }
