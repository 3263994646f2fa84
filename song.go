package whiteroom

import (
	"errors"
	"fmt"
	"math"
)

type (
	// Song is a schedulable cue sheet: playback parameters plus a list of
	// notes with musical start times and durations. It is what the note
	// projection layer would hand to the playback core; the CLI reads songs
	// from YAML files.
	Song struct {
		SampleRate int        `yaml:"sampleRate"`
		BPM        float64    `yaml:"bpm"`
		TimeSigNum int        `yaml:"timeSigNum"`
		TimeSigDen int        `yaml:"timeSigDen"`
		Loop       LoopRegion `yaml:"loop,omitempty"`
		Pool       PoolConfig `yaml:"pool"`
		Notes      []Note     `yaml:"notes,flow"`
	}

	// Note is one scheduled note. Start and Duration are in beats; they are
	// converted to sample times against the song tempo when scheduling.
	Note struct {
		Pitch    int           `yaml:"pitch"`
		Velocity int           `yaml:"velocity"`
		Priority VoicePriority `yaml:"priority,omitempty"`
		Role     int32         `yaml:"role,omitempty"`
		Pan      float32       `yaml:"pan,omitempty"`
		Start    float64       `yaml:"start"`
		Duration float64       `yaml:"duration"`
	}
)

// NewSong returns an empty song with sane defaults.
func NewSong() Song {
	return Song{
		SampleRate: 44100,
		BPM:        120,
		TimeSigNum: 4,
		TimeSigDen: 4,
		Pool:       DefaultPoolConfig(),
	}
}

func (s *Song) Validate() error {
	if s.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", s.SampleRate)
	}
	if s.BPM <= 0 {
		return fmt.Errorf("BPM must be positive, got %g", s.BPM)
	}
	if s.TimeSigNum <= 0 || s.TimeSigDen <= 0 {
		return fmt.Errorf("invalid time signature %d/%d", s.TimeSigNum, s.TimeSigDen)
	}
	if err := s.Loop.Validate(); err != nil {
		return err
	}
	if err := s.Pool.Validate(); err != nil {
		return err
	}
	for i, n := range s.Notes {
		if n.Pitch < 0 || n.Pitch > 127 {
			return fmt.Errorf("note %d: pitch %d out of range", i, n.Pitch)
		}
		if n.Velocity < 0 || n.Velocity > 127 {
			return fmt.Errorf("note %d: velocity %d out of range", i, n.Velocity)
		}
		if n.Start < 0 {
			return fmt.Errorf("note %d: negative start %g", i, n.Start)
		}
		if n.Duration <= 0 {
			return fmt.Errorf("note %d: duration must be positive, got %g", i, n.Duration)
		}
	}
	return nil
}

// BeatsToSamples converts a beat position to a sample time against the song
// tempo and time signature.
func (s *Song) BeatsToSamples(beats float64) int64 {
	return int64(math.Round(beats * SamplesPerBeat(s.SampleRate, s.BPM, s.TimeSigDen)))
}

// LengthSamples returns the sample time at which the last note (including
// its duration) ends, ignoring release tails.
func (s *Song) LengthSamples() int64 {
	var end float64
	for _, n := range s.Notes {
		if e := n.Start + n.Duration; e > end {
			end = e
		}
	}
	return s.BeatsToSamples(end)
}

// Scheduler is the part of the playback core a song schedules itself into.
// It is satisfied by *playback.Scheduler; the indirection keeps the root
// package free of a dependency on the playback package.
type Scheduler interface {
	ScheduleNoteOn(time int64, data NoteData) bool
	ScheduleNoteOff(time int64, pitch int, role int32) bool
}

var ErrSongNotScheduled = errors.New("some notes could not be scheduled")

// Schedule pushes all notes of the song onto the scheduler as note on/off
// command pairs. It returns ErrSongNotScheduled if any push was rejected,
// e.g. due to command channel back-pressure; already pushed notes stay
// scheduled.
func (s *Song) Schedule(sched Scheduler) error {
	dropped := false
	for _, n := range s.Notes {
		start := s.BeatsToSamples(n.Start)
		duration := s.BeatsToSamples(n.Start+n.Duration) - start
		ok := sched.ScheduleNoteOn(start, NoteData{
			Pitch:    n.Pitch,
			Velocity: n.Velocity,
			Priority: n.Priority,
			Role:     n.Role,
			Pan:      n.Pan,
			Duration: duration,
		})
		ok = sched.ScheduleNoteOff(start+duration, n.Pitch, n.Role) && ok
		if !ok {
			dropped = true
		}
	}
	if dropped {
		return ErrSongNotScheduled
	}
	return nil
}
