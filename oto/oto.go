// Package oto adapts github.com/ebitengine/oto/v3 to the engine's audio
// interfaces: a pull-style player reading interleaved float32 stereo from an
// AudioSource.
package oto

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	whiteroom "github.com/bretbouchard/white-room-pedalboard-sub008"
)

type Context struct {
	ctx        *oto.Context
	sampleRate int
}

// NewContext opens the audio device for stereo float32 output.
func NewContext(sampleRate int) (*Context, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	return &Context{ctx: ctx, sampleRate: sampleRate}, nil
}

// Play starts pulling from the source until it returns io.EOF or the
// returned CloserWaiter is closed.
func (c *Context) Play(source whiteroom.AudioSource) whiteroom.CloserWaiter {
	r := &sourceReader{source: source, done: make(chan struct{})}
	p := c.ctx.NewPlayer(r)
	p.Play()
	return &playing{player: p, reader: r}
}

// Close implements whiteroom.AudioContext. The oto context itself cannot be
// torn down; suspending it releases the device.
func (c *Context) Close() error {
	if err := c.ctx.Suspend(); err != nil {
		return fmt.Errorf("cannot suspend oto context: %w", err)
	}
	return nil
}

// sourceReader converts an AudioSource to the io.Reader oto pulls from.
type sourceReader struct {
	source  whiteroom.AudioSource
	scratch []float32
	once    sync.Once
	done    chan struct{}
}

func (r *sourceReader) Read(p []byte) (int, error) {
	want := len(p) / 4
	if want == 0 {
		return 0, nil
	}
	want &^= 1 // whole stereo frames
	if len(r.scratch) < want {
		r.scratch = make([]float32, want)
	}
	n, err := r.source.ReadAudio(r.scratch[:want])
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(r.scratch[i]))
	}
	if err == io.EOF {
		r.once.Do(func() { close(r.done) })
	}
	return n * 4, err
}

type playing struct {
	player *oto.Player
	reader *sourceReader
}

// Wait blocks until the source is exhausted and the device buffer has
// drained.
func (p *playing) Wait() {
	<-p.reader.done
	for p.player.IsPlaying() && p.player.BufferedSize() > 0 {
		time.Sleep(10 * time.Millisecond)
	}
}

func (p *playing) Close() error {
	p.reader.once.Do(func() { close(p.reader.done) })
	if err := p.player.Close(); err != nil {
		return fmt.Errorf("cannot close oto player: %w", err)
	}
	return nil
}
