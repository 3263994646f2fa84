package whiteroom

import (
	"errors"
	"math"
)

// TransportState is the play state of the timeline.
type TransportState int

const (
	Stopped TransportState = iota
	Playing
	Paused
)

func (s TransportState) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Playing:
		return "Playing"
	case Paused:
		return "Paused"
	}
	return "Unknown"
}

// TicksPerBeat is the musical tick resolution used when deriving bar/beat/tick
// from a sample position.
const TicksPerBeat = 960

type (
	// TransportPosition is a snapshot of the playback position. Bar, Beat and
	// Tick are always derived from SampleTime, TempoBPM and the time
	// signature; they are never mutated independently. Bar and Beat are
	// 1-based, as they would be displayed.
	TransportPosition struct {
		SampleTime int64
		TempoBPM   float64
		TimeSigNum int
		TimeSigDen int
		Bar        int
		Beat       int
		Tick       int
	}

	// LoopRegion is a half-open [Start, End) sample range the transport
	// wraps within while playing.
	LoopRegion struct {
		Enabled bool  `yaml:"enabled"`
		Start   int64 `yaml:"start"`
		End     int64 `yaml:"end"`
	}
)

var ErrInvalidLoop = errors.New("loop start must be before loop end")

func (l LoopRegion) Validate() error {
	if l.Enabled && l.Start >= l.End {
		return ErrInvalidLoop
	}
	return nil
}

// Contains reports whether the sample time falls inside the loop.
func (l LoopRegion) Contains(t int64) bool {
	return l.Enabled && t >= l.Start && t < l.End
}

// SamplesPerBeat returns the length of one beat in samples. The BPM counts
// quarter notes per minute; the beat length follows the time signature
// denominator, so e.g. 6/8 at 120 BPM has eighth-note beats.
func SamplesPerBeat(sampleRate int, bpm float64, timeSigDen int) float64 {
	if bpm <= 0 || timeSigDen <= 0 {
		return 0
	}
	return float64(sampleRate) * 60 / bpm * 4 / float64(timeSigDen)
}

// PositionAt derives the full musical position for a sample time. A
// non-positive tempo or signature yields a position with zeroed musical
// fields, never a division by zero.
func PositionAt(sampleTime int64, sampleRate int, bpm float64, timeSigNum, timeSigDen int) TransportPosition {
	pos := TransportPosition{
		SampleTime: sampleTime,
		TempoBPM:   bpm,
		TimeSigNum: timeSigNum,
		TimeSigDen: timeSigDen,
	}
	spb := SamplesPerBeat(sampleRate, bpm, timeSigDen)
	if spb <= 0 || timeSigNum <= 0 {
		return pos
	}
	beats := float64(sampleTime) / spb
	whole := int64(math.Floor(beats))
	pos.Bar = int(whole/int64(timeSigNum)) + 1
	pos.Beat = int(whole%int64(timeSigNum)) + 1
	pos.Tick = int(math.Floor((beats - float64(whole)) * TicksPerBeat))
	return pos
}
