package playback

import (
	"github.com/chewxy/math32"

	whiteroom "github.com/bretbouchard/white-room-pedalboard-sub008"
)

// BatchWidth is the fixed number of voices per batch, chosen to match four
// lane wide SIMD processing downstream.
const BatchWidth = 4

type (
	// Batch is a snapshot of up to BatchWidth sounding voices laid out as
	// parallel arrays, with stereo gains precomputed from each voice's pan.
	// It owns no long-lived state and is safe to discard every block.
	Batch struct {
		Indices  [BatchWidth]int32
		Pitch    [BatchWidth]int32
		Velocity [BatchWidth]float32
		GainL    [BatchWidth]float32
		GainR    [BatchWidth]float32
		Count    int
	}

	// Batcher reorganizes the allocator's sounding slots into fixed-size
	// groups for cache-efficient, vectorizable downstream processing. It is
	// a read-only projection: it never mutates slot state. Audio context
	// only, like the slot table it reads.
	Batcher struct {
		alloc *VoiceAllocator
	}
)

func NewBatcher(alloc *VoiceAllocator) *Batcher {
	return &Batcher{alloc: alloc}
}

// NextBatch scans the slot table from startIndex collecting up to
// BatchWidth Active or Releasing slots. It returns the number of slots
// filled; 0 means no more sounding voices at or past startIndex. Resume the
// scan at the last returned index plus one, or use All.
func (b *Batcher) NextBatch(startIndex int32) (Batch, int) {
	var batch Batch
	slots := b.alloc.Slots()
	if startIndex < 0 {
		startIndex = 0
	}
	for i := int(startIndex); i < len(slots) && batch.Count < BatchWidth; i++ {
		slot := &slots[i]
		switch slot.State {
		case whiteroom.VoiceActive, whiteroom.VoiceReleasing:
		default:
			continue
		}
		k := batch.Count
		batch.Indices[k] = slot.Index
		batch.Pitch[k] = int32(slot.Pitch)
		batch.Velocity[k] = float32(slot.Velocity) / 127
		batch.GainL[k], batch.GainR[k] = PanGains(slot.Pan)
		batch.Count = k + 1
	}
	return batch, batch.Count
}

// All yields every non-empty batch in slot order.
func (b *Batcher) All(yield func(Batch) bool) {
	start := int32(0)
	for {
		batch, count := b.NextBatch(start)
		if count == 0 {
			return
		}
		if !yield(batch) {
			return
		}
		start = batch.Indices[count-1] + 1
	}
}

// PanGains returns constant-power stereo gains for a pan position, clamped
// to [-1, 1]: equal loudness across the pan range, -3 dB per side at the
// center.
func PanGains(pan float32) (left, right float32) {
	if pan < -1 {
		pan = -1
	} else if pan > 1 {
		pan = 1
	}
	left = math32.Sqrt(0.5 * (1 - pan))
	right = math32.Sqrt(0.5 * (1 + pan))
	return left, right
}
