// Package synth is a small reference implementation of the DSP stage the
// playback core drives: one sine oscillator and a linear release envelope
// per voice slot, mixed to stereo through the batch grouper's precomputed
// pan gains. It exists so the core can be exercised end to end; it is not a
// serious instrument.
package synth

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/viterin/vek/vek32"

	whiteroom "github.com/bretbouchard/white-room-pedalboard-sub008"
	"github.com/bretbouchard/white-room-pedalboard-sub008/playback"
)

// Parameter ids understood by SetParameter.
const (
	ParamGain = iota // linear gain, default 1
)

const (
	attackSeconds  = 0.005
	releaseSeconds = 0.2
)

type voiceState int

const (
	voiceOff voiceState = iota
	voiceHeld
	voiceReleasing
)

type voice struct {
	state       voiceState
	phase       float32
	step        float32 // phase increment per sample, in radians
	env         float32
	attackStep  float32
	releaseStep float32
	gain        float32
}

// Synth renders the sounding voice slots of one allocator. The voice array
// is indexed by slot index, so the trigger/release calls from the engine
// address voices directly.
type Synth struct {
	sampleRate int
	batcher    *playback.Batcher
	voices     []voice

	left, right []float32
	mono        []float32
	tmp         []float32
	peak        float32
}

// New builds a synth for numVoices slots, pre-warming scratch buffers for
// blocks up to maxBlock samples.
func New(sampleRate, numVoices, maxBlock int, batcher *playback.Batcher) (*Synth, error) {
	if sampleRate <= 0 || numVoices <= 0 {
		return nil, fmt.Errorf("invalid synth size %d voices at %d Hz", numVoices, sampleRate)
	}
	if maxBlock <= 0 {
		maxBlock = 4096
	}
	s := &Synth{
		sampleRate: sampleRate,
		batcher:    batcher,
		voices:     make([]voice, numVoices),
		left:       make([]float32, maxBlock),
		right:      make([]float32, maxBlock),
		mono:       make([]float32, maxBlock),
		tmp:        make([]float32, maxBlock),
	}
	for i := range s.voices {
		s.voices[i].gain = 1
	}
	return s, nil
}

// PitchToFrequency converts a MIDI pitch to Hz with A4 = 440.
func PitchToFrequency(pitch int) float32 {
	return 440 * math32.Exp2(float32(pitch-69)/12)
}

func (s *Synth) Trigger(idx int32, pitch, velocity int) {
	if int(idx) >= len(s.voices) || idx < 0 {
		return
	}
	v := &s.voices[idx]
	v.state = voiceHeld
	v.phase = 0
	v.step = 2 * math32.Pi * PitchToFrequency(pitch) / float32(s.sampleRate)
	v.env = 0
	v.attackStep = 1 / (attackSeconds * float32(s.sampleRate))
	v.releaseStep = 1 / (releaseSeconds * float32(s.sampleRate))
}

func (s *Synth) Release(idx int32) {
	if int(idx) >= len(s.voices) || idx < 0 {
		return
	}
	if s.voices[idx].state == voiceHeld {
		s.voices[idx].state = voiceReleasing
	}
}

func (s *Synth) Cut(idx int32) {
	if int(idx) >= len(s.voices) || idx < 0 {
		return
	}
	s.voices[idx].state = voiceOff
	s.voices[idx].env = 0
}

func (s *Synth) SetParameter(idx int32, param int32, value float32) {
	if param != ParamGain {
		return
	}
	if idx < 0 {
		for i := range s.voices {
			s.voices[i].gain = value
		}
		return
	}
	if int(idx) < len(s.voices) {
		s.voices[idx].gain = value
	}
}

// Render mixes all sounding voices into the buffer. It walks the batch
// grouper's fixed-width groups and applies velocity and constant-power pan
// gains lane by lane with vectorized multiply-adds.
func (s *Synth) Render(buffer whiteroom.AudioBuffer) error {
	n := len(buffer)
	if n == 0 {
		return nil
	}
	if n > len(s.mono) {
		return fmt.Errorf("block of %d samples exceeds the pre-warmed maximum %d", n, len(s.mono))
	}
	left := vek32.Zeros_Into(s.left, n)
	right := vek32.Zeros_Into(s.right, n)

	for start := int32(0); ; {
		batch, count := s.batcher.NextBatch(start)
		if count == 0 {
			break
		}
		for k := 0; k < count; k++ {
			idx := batch.Indices[k]
			v := &s.voices[idx]
			if v.state == voiceOff {
				continue
			}
			mono := s.mono[:n]
			s.renderVoice(v, mono)
			amp := batch.Velocity[k] * v.gain
			vek32.MulNumber_Into(s.tmp[:n], mono, amp*batch.GainL[k])
			vek32.Add_Inplace(left, s.tmp[:n])
			vek32.MulNumber_Into(s.tmp[:n], mono, amp*batch.GainR[k])
			vek32.Add_Inplace(right, s.tmp[:n])
		}
		start = batch.Indices[count-1] + 1
	}

	for i := 0; i < n; i++ {
		buffer[i][0] = left[i]
		buffer[i][1] = right[i]
	}
	copy(s.tmp[:n], left)
	vek32.Abs_Inplace(s.tmp[:n])
	s.peak = vek32.Max(s.tmp[:n])
	return nil
}

// renderVoice writes the voice's next len(mono) samples with the envelope
// applied, advancing its phase and envelope state.
func (s *Synth) renderVoice(v *voice, mono []float32) {
	for i := range mono {
		switch v.state {
		case voiceHeld:
			if v.env < 1 {
				v.env += v.attackStep
				if v.env > 1 {
					v.env = 1
				}
			}
		case voiceReleasing:
			v.env -= v.releaseStep
			if v.env <= 0 {
				v.env = 0
				v.state = voiceOff
			}
		default:
			mono[i] = 0
			continue
		}
		mono[i] = math32.Sin(v.phase) * v.env
		v.phase += v.step
		if v.phase > 2*math32.Pi {
			v.phase -= 2 * math32.Pi
		}
	}
}

// LastPeak returns the peak absolute sample of the last rendered block's
// left channel, for metering.
func (s *Synth) LastPeak() float32 { return s.peak }
