package whiteroom

import "io"

type (
	// AudioBuffer is a block of stereo samples.
	AudioBuffer [][2]float32

	// AudioSource is a pull-style source of interleaved stereo float32
	// audio. ReadAudio returns the number of float32 values written, which
	// is always even; it returns io.EOF when the source is exhausted.
	AudioSource interface {
		ReadAudio(buffer []float32) (n int, err error)
		io.Closer
	}

	// AudioContext is an audio output device. Play starts pulling from the
	// source in a backend goroutine until the source is exhausted or the
	// returned CloserWaiter is closed.
	AudioContext interface {
		Play(source AudioSource) CloserWaiter
		io.Closer
	}

	// CloserWaiter controls one ongoing playback.
	CloserWaiter interface {
		io.Closer
		Wait()
	}

	// Synth is the downstream signal-processing stage, out of scope for the
	// playback core itself. The engine resolves commands into voice slot
	// indices and drives the synth with them; Render is called once per
	// block with the samples that fall between command dispatch points.
	Synth interface {
		// Trigger starts pitch on the given voice slot.
		Trigger(voice int32, pitch, velocity int)
		// Release starts the release tail of the voice.
		Release(voice int32)
		// Cut silences the voice immediately, without a release tail. Used
		// for stolen voices and hard transport stops.
		Cut(voice int32)
		// SetParameter applies a parameter change to one voice, or to all
		// voices when voice is negative.
		SetParameter(voice int32, param int32, value float32)
		// Render renders the next len(buffer) samples.
		Render(buffer AudioBuffer) error
	}
)

// Source returns an AudioSource reading the buffer from the start.
func (buf AudioBuffer) Source() AudioSource {
	return &bufferSource{buf: buf}
}

type bufferSource struct {
	buf AudioBuffer
	pos int
}

func (s *bufferSource) ReadAudio(buffer []float32) (int, error) {
	if s.pos >= len(s.buf) {
		return 0, io.EOF
	}
	n := 0
	for n+1 < len(buffer) && s.pos < len(s.buf) {
		buffer[n] = s.buf[s.pos][0]
		buffer[n+1] = s.buf[s.pos][1]
		n += 2
		s.pos++
	}
	return n, nil
}

func (s *bufferSource) Close() error {
	s.pos = len(s.buf)
	return nil
}
