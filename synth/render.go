package synth

import (
	"fmt"

	whiteroom "github.com/bretbouchard/white-room-pedalboard-sub008"
	"github.com/bretbouchard/white-room-pedalboard-sub008/playback"
)

// NewEngine wires a playback engine and a reference synth around a song's
// parameters: pool and transport settings come from the song, the synth is
// sized to the pool. The song itself is not scheduled; callers decide when.
func NewEngine(song *whiteroom.Song, broker *playback.Broker, blockSize int) (*playback.Engine, *Synth, error) {
	if err := song.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid song: %w", err)
	}
	cfg := playback.DefaultEngineConfig(song.SampleRate)
	cfg.Pool = song.Pool
	cfg.Scheduler.TempoBPM = song.BPM
	cfg.Scheduler.TimeSigNum = song.TimeSigNum
	cfg.Scheduler.TimeSigDen = song.TimeSigDen
	engine, err := playback.NewEngine(cfg, broker, nil)
	if err != nil {
		return nil, nil, err
	}
	s, err := New(song.SampleRate, song.Pool.MaxPolyphony, blockSize, engine.Batcher())
	if err != nil {
		return nil, nil, err
	}
	engine.SetSynth(s)
	return engine, s, nil
}

// RenderSong renders the whole song offline to a stereo buffer, block by
// block, including the release tails past the last note. Loop regions are
// ignored offline; a looped song would never end.
func RenderSong(song *whiteroom.Song, blockSize int) (whiteroom.AudioBuffer, error) {
	if blockSize <= 0 {
		blockSize = 512
	}
	engine, _, err := NewEngine(song, nil, blockSize)
	if err != nil {
		return nil, err
	}
	sched := engine.Scheduler()
	if err := song.Schedule(sched); err != nil {
		return nil, err
	}
	sched.Play()

	tail := int64(float64(song.SampleRate)*releaseSeconds) + int64(blockSize)
	total := song.LengthSamples() + tail
	buffer := make(whiteroom.AudioBuffer, 0, total)
	block := make(whiteroom.AudioBuffer, blockSize)
	for int64(len(buffer)) < total {
		if err := engine.Process(block); err != nil {
			return nil, err
		}
		buffer = append(buffer, block...)
	}
	return buffer[:total], nil
}
