package playback

import (
	"fmt"
	"math"

	whiteroom "github.com/bretbouchard/white-room-pedalboard-sub008"
)

type (
	// Engine runs the playback core once per audio block: it drains the
	// scheduler, resolves note commands into voice slots, drives the synth
	// with segment-accurate trigger/release calls, advances the voice
	// life-cycles and publishes a monitor snapshot. Process is the only
	// method meant for the audio context; everything control-side goes
	// through Scheduler().
	Engine struct {
		sched   *Scheduler
		alloc   *VoiceAllocator
		batcher *Batcher
		broker  *Broker
		synth   whiteroom.Synth

		custom func(whiteroom.Command)

		voiceLevels [MaxMonitorVoices]float32
	}

	// EngineConfig bundles the scheduler and voice pool configuration.
	EngineConfig struct {
		Scheduler SchedulerConfig
		Pool      whiteroom.PoolConfig

		// Custom receives drained Custom commands; nil ignores them.
		Custom func(whiteroom.Command)
	}
)

// DefaultEngineConfig returns a config with the scheduler and pool defaults.
func DefaultEngineConfig(sampleRate int) EngineConfig {
	return EngineConfig{
		Scheduler: DefaultSchedulerConfig(sampleRate),
		Pool:      whiteroom.DefaultPoolConfig(),
	}
}

// NewEngine wires a scheduler, allocator and batcher around the synth.
// Configuration errors fail fast here, before any audio runs.
func NewEngine(cfg EngineConfig, broker *Broker, synth whiteroom.Synth) (*Engine, error) {
	alloc, err := NewVoiceAllocator(cfg.Pool, cfg.Scheduler.SampleRate)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		alloc:   alloc,
		batcher: NewBatcher(alloc),
		broker:  broker,
		synth:   synth,
		custom:  cfg.Custom,
	}
	e.sched, err = NewScheduler(cfg.Scheduler, e.applyControl)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// SetSynth installs the DSP stage. A nil synth is allowed and renders
// silence; set the synth before the audio context starts calling Process.
func (e *Engine) SetSynth(synth whiteroom.Synth) { e.synth = synth }

// Scheduler returns the control surface of the engine.
func (e *Engine) Scheduler() *Scheduler { return e.sched }

// Allocator exposes the voice pool for monitoring queries.
func (e *Engine) Allocator() *VoiceAllocator { return e.alloc }

// Batcher returns the batch grouper the DSP stage iterates each block.
func (e *Engine) Batcher() *Batcher { return e.batcher }

// applyControl handles the control commands the scheduler forwards: voice
// pool configuration and the hard reset on transport stop. Audio context.
func (e *Engine) applyControl(cmd whiteroom.Command) {
	switch cmd.Kind {
	case whiteroom.KindStop:
		e.cutAll()
	case whiteroom.KindSetStealingPolicy:
		e.alloc.SetStealingPolicy(cmd.CtrlPolicy())
	case whiteroom.KindSetStealingEnabled:
		e.alloc.SetStealingEnabled(cmd.CtrlEnabled())
	case whiteroom.KindSetMaxPolyphony:
		e.alloc.SetMaxPolyphony(cmd.CtrlPolyphony())
	}
}

func (e *Engine) cutAll() {
	slots := e.alloc.Slots()
	for i := range slots {
		if slots[i].State != whiteroom.VoiceIdle && e.synth != nil {
			e.synth.Cut(int32(i))
		}
	}
	e.alloc.StopAll()
	for i := range e.voiceLevels {
		e.voiceLevels[i] = 0
	}
}

// Process renders one audio block. It delivers every command due in the
// block at its exact sample offset: the synth renders up to each command
// time, the command is dispatched, and rendering resumes, so a note
// starting mid-block starts mid-block. Returns the synth's render error,
// if any, with the voices left consistent.
func (e *Engine) Process(buffer whiteroom.AudioBuffer) error {
	cmds := e.sched.ProcessEvents(len(buffer))
	frames := e.sched.DueFrames()
	offset := 0
	var renderErr error
	for i := range cmds {
		cmd := &cmds[i]
		frame := frames[i]
		if frame > len(buffer) {
			frame = len(buffer)
		}
		if frame > offset && renderErr == nil {
			renderErr = e.render(buffer[offset:frame])
		}
		if frame > offset {
			offset = frame
		}
		e.dispatch(cmd)
	}
	if offset < len(buffer) && renderErr == nil {
		renderErr = e.render(buffer[offset:])
	}

	e.alloc.Update(e.sched.position)
	e.decayLevels(len(buffer))
	e.publish()
	if renderErr != nil {
		return fmt.Errorf("synth render: %w", renderErr)
	}
	return nil
}

// render forwards a segment to the synth, or fills silence without one.
func (e *Engine) render(segment whiteroom.AudioBuffer) error {
	if e.synth == nil {
		for i := range segment {
			segment[i] = [2]float32{}
		}
		return nil
	}
	return e.synth.Render(segment)
}

func (e *Engine) dispatch(cmd *whiteroom.Command) {
	switch cmd.Kind {
	case whiteroom.KindNoteOn:
		note, _ := cmd.Note()
		idx := e.alloc.Allocate(note, cmd.Time, false, 0)
		if idx < 0 {
			return // note dropped; audible-domain-correct under overload
		}
		if e.synth != nil {
			// the slot may have been stolen from a sounding voice
			e.synth.Cut(idx)
			e.synth.Trigger(idx, note.Pitch, note.Velocity)
		}
		if int(idx) < len(e.voiceLevels) {
			e.voiceLevels[idx] = 1
		}
	case whiteroom.KindNoteOff:
		note, _ := cmd.Note()
		idx := cmd.Voice
		if idx < 0 {
			idx = e.alloc.FindVoice(note.Role, note.Pitch)
		}
		if idx < 0 {
			return // the voice ended or was stolen; nothing to stop
		}
		e.alloc.Release(idx, cmd.Time)
		if e.synth != nil {
			e.synth.Release(idx)
		}
	case whiteroom.KindParamChange:
		param, _ := cmd.Param()
		if e.synth != nil {
			e.synth.SetParameter(cmd.Voice, param.Param, param.Value)
		}
	case whiteroom.KindCustom:
		if e.custom != nil {
			e.custom(*cmd)
		}
	}
}

// decayLevels ages the per-voice monitor levels the way a VU meter would,
// holding sounding voices around the midpoint.
func (e *Engine) decayLevels(rendered int) {
	alpha := float32(math.Exp(-float64(rendered) / 15000))
	slots := e.alloc.Slots()
	for i := 0; i < len(slots) && i < len(e.voiceLevels); i++ {
		if slots[i].State == whiteroom.VoiceActive {
			e.voiceLevels[i] = (e.voiceLevels[i]-0.5)*alpha + 0.5
		} else {
			e.voiceLevels[i] *= alpha
		}
	}
}

// publish sends the per-block monitor snapshot, never blocking.
func (e *Engine) publish() {
	if e.broker == nil {
		return
	}
	msg := MsgToMonitor{
		Position:       e.sched.TransportPosition(),
		State:          e.sched.state,
		VoiceLevels:    e.voiceLevels,
		Sounding:       e.alloc.SoundingCount(),
		PolyphonyUsage: e.alloc.PolyphonyUsage(),
		QueueLen:       e.sched.Channel().ApproximateLen(),
		DroppedStale:   e.sched.DroppedStale(),
		StolenVoices:   e.alloc.StolenCount(),
	}
	TrySend(e.broker.ToMonitor, msg)
}

// Source adapts the engine to an AudioSource for live playback: each read
// processes one block. The scratch block is sized once; oto pulls whatever
// it needs and the adapter slices blocks to fit.
func (e *Engine) Source(blockSize int) whiteroom.AudioSource {
	if blockSize <= 0 {
		blockSize = 512
	}
	return &engineSource{engine: e, block: make(whiteroom.AudioBuffer, blockSize)}
}

type engineSource struct {
	engine *Engine
	block  whiteroom.AudioBuffer
}

func (s *engineSource) ReadAudio(buffer []float32) (int, error) {
	frames := len(buffer) / 2
	if frames > len(s.block) {
		frames = len(s.block)
	}
	if frames == 0 {
		return 0, nil
	}
	block := s.block[:frames]
	if err := s.engine.Process(block); err != nil {
		return 0, err
	}
	for i, frame := range block {
		buffer[i*2] = frame[0]
		buffer[i*2+1] = frame[1]
	}
	return frames * 2, nil
}

func (s *engineSource) Close() error { return nil }
