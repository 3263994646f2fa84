package playback

import (
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	whiteroom "github.com/bretbouchard/white-room-pedalboard-sub008"
)

type (
	// Scheduler owns the transport state and the time-ordered command store.
	// The control context talks to it only through the command channel: the
	// Schedule*, transport and configuration methods push commands and
	// return immediately, and the audio context applies them at the next
	// block boundary when ProcessEvents drains the channel. After
	// construction the store, loop and transport fields are touched by the
	// audio context alone.
	//
	// The scheduler publishes its position and state through atomics so the
	// control context can reject stale commands and display the transport
	// without locking.
	Scheduler struct {
		channel *CommandChannel
		control ControlFunc

		sampleRate int

		// audio context only
		state     whiteroom.TransportState
		position  int64
		tempo     float64
		timeSig   [2]int
		loop      whiteroom.LoopRegion
		store     []whiteroom.Command
		due       []whiteroom.Command
		dueFrames []int // frame offset within the block per due command
		ahead     []whiteroom.Command
		aheadSpan int64

		// published snapshots for the control context
		posShared       atomic.Int64
		stateShared     atomic.Int32
		tempoShared     atomic.Uint64
		sigShared       atomic.Uint64
		loopStartShared atomic.Int64 // start == end means no loop
		loopEndShared   atomic.Int64

		droppedStale atomic.Int64 // commands that arrived too late to deliver
	}

	// ControlFunc receives the drained control commands the scheduler does
	// not consume itself: voice pool configuration changes and the stop
	// notification, which the engine turns into a hard voice reset. Called
	// on the audio context; must not allocate or block.
	ControlFunc func(cmd whiteroom.Command)

	// SchedulerConfig sizes the scheduler at construction. All capacities
	// are fixed for the lifetime of the scheduler; the pre-warmed store and
	// result slices are the only amortized growth in the audio path.
	SchedulerConfig struct {
		SampleRate      int
		TempoBPM        float64
		TimeSigNum      int
		TimeSigDen      int
		ChannelCapacity int   // command channel slots, rounded up to a power of two
		StoreCapacity   int   // pre-warmed ordered store entries
		LookaheadSpan   int64 // samples covered by LookaheadEvents
	}
)

// DefaultSchedulerConfig returns the configuration used by the engine when
// the caller does not override it.
func DefaultSchedulerConfig(sampleRate int) SchedulerConfig {
	return SchedulerConfig{
		SampleRate:      sampleRate,
		TempoBPM:        120,
		TimeSigNum:      4,
		TimeSigDen:      4,
		ChannelCapacity: 1024,
		StoreCapacity:   4096,
		LookaheadSpan:   int64(sampleRate), // one second
	}
}

func NewScheduler(cfg SchedulerConfig, control ControlFunc) (*Scheduler, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.TempoBPM <= 0 {
		return nil, fmt.Errorf("tempo must be positive, got %g", cfg.TempoBPM)
	}
	if cfg.TimeSigNum <= 0 || cfg.TimeSigDen <= 0 {
		return nil, fmt.Errorf("invalid time signature %d/%d", cfg.TimeSigNum, cfg.TimeSigDen)
	}
	if cfg.StoreCapacity <= 0 {
		cfg.StoreCapacity = 4096
	}
	if cfg.ChannelCapacity <= 0 {
		cfg.ChannelCapacity = 1024
	}
	channel, err := NewCommandChannel(cfg.ChannelCapacity)
	if err != nil {
		return nil, err
	}
	s := &Scheduler{
		channel:    channel,
		control:    control,
		sampleRate: cfg.SampleRate,
		state:      whiteroom.Stopped,
		tempo:      cfg.TempoBPM,
		timeSig:    [2]int{cfg.TimeSigNum, cfg.TimeSigDen},
		store:      make([]whiteroom.Command, 0, cfg.StoreCapacity),
		due:        make([]whiteroom.Command, 0, cfg.StoreCapacity),
		dueFrames:  make([]int, 0, cfg.StoreCapacity),
		ahead:      make([]whiteroom.Command, 0, cfg.StoreCapacity),
		aheadSpan:  cfg.LookaheadSpan,
	}
	s.publishTransport()
	return s, nil
}

// Channel exposes the command channel for monitoring.
func (s *Scheduler) Channel() *CommandChannel { return s.channel }

// SampleRate returns the sample rate the scheduler was built with.
func (s *Scheduler) SampleRate() int { return s.sampleRate }

/* control context side */

// ScheduleEvent pushes a command for delivery at its sample time. It returns
// false without pushing when the command is stale (due strictly before the
// current transport position and outside the loop region, so it would never
// be delivered) or when the channel is full. It never blocks.
func (s *Scheduler) ScheduleEvent(cmd whiteroom.Command) bool {
	if cmd.Kind.Musical() && cmd.Time < s.posShared.Load() && !s.loopSharedContains(cmd.Time) {
		return false
	}
	return s.channel.Push(cmd)
}

// loopSharedContains reports whether t lies inside the published loop region.
// A command behind the position but inside the loop still plays on the next
// lap. The two loads are not atomic together; a torn read only affects this
// pre-check, the audio-side drain applies the authoritative test.
func (s *Scheduler) loopSharedContains(t int64) bool {
	start, end := s.loopStartShared.Load(), s.loopEndShared.Load()
	return start < end && t >= start && t < end
}

// ScheduleNoteOn schedules a note start. The allocator picks the voice slot
// when the command comes due.
func (s *Scheduler) ScheduleNoteOn(time int64, data whiteroom.NoteData) bool {
	return s.ScheduleEvent(whiteroom.NoteOn(time, data))
}

// ScheduleNoteOff schedules a note stop matched by pitch and role.
func (s *Scheduler) ScheduleNoteOff(time int64, pitch int, role int32) bool {
	return s.ScheduleEvent(whiteroom.NoteOff(time, pitch, role))
}

// ScheduleParameterChange schedules a parameter change for one voice slot,
// or for all voices when voice is negative.
func (s *Scheduler) ScheduleParameterChange(time int64, voice int32, param int32, value float32) bool {
	return s.ScheduleEvent(whiteroom.ParamChange(time, voice, param, value))
}

// Transport methods. Each pushes a control command that takes effect at the
// next block boundary, in queue order with everything scheduled around it;
// they return false when the channel is full.

func (s *Scheduler) Play() bool  { return s.channel.Push(whiteroom.PlayCommand()) }
func (s *Scheduler) Pause() bool { return s.channel.Push(whiteroom.PauseCommand()) }
func (s *Scheduler) Stop() bool  { return s.channel.Push(whiteroom.StopCommand()) }

func (s *Scheduler) Seek(target int64) bool {
	if target < 0 {
		target = 0
	}
	return s.channel.Push(whiteroom.SeekCommand(target))
}

func (s *Scheduler) SetTempo(bpm float64) bool {
	if bpm <= 0 {
		return false
	}
	return s.channel.Push(whiteroom.TempoCommand(bpm))
}

func (s *Scheduler) SetTimeSignature(num, den int) bool {
	if num <= 0 || den <= 0 {
		return false
	}
	return s.channel.Push(whiteroom.TimeSignatureCommand(num, den))
}

func (s *Scheduler) SetLoopPoints(start, end int64) bool {
	loop := whiteroom.LoopRegion{Enabled: true, Start: start, End: end}
	if loop.Validate() != nil {
		return false
	}
	return s.channel.Push(whiteroom.LoopCommand(loop))
}

func (s *Scheduler) ClearLoop() bool {
	return s.channel.Push(whiteroom.LoopCommand(whiteroom.LoopRegion{}))
}

// ClearEvents removes all pending commands at the next block boundary.
// Scheduled commands pushed after the clear survive it, because the channel
// preserves the order the control context issued them in.
func (s *Scheduler) ClearEvents() bool { return s.channel.Push(whiteroom.ClearCommand()) }

// ClearRoleEvents removes pending note commands belonging to one role.
func (s *Scheduler) ClearRoleEvents(role int32) bool {
	return s.channel.Push(whiteroom.ClearRoleCommand(role))
}

// Voice pool configuration changes ride the same channel so they apply at a
// deterministic point of the timeline; the scheduler forwards them to the
// engine's control hook when drained.

func (s *Scheduler) SetStealingPolicy(p whiteroom.StealingPolicy) bool {
	return s.channel.Push(whiteroom.StealingPolicyCommand(p))
}

func (s *Scheduler) SetStealingEnabled(enabled bool) bool {
	return s.channel.Push(whiteroom.StealingEnabledCommand(enabled))
}

func (s *Scheduler) SetMaxPolyphony(n int) bool {
	if n <= 0 {
		return false
	}
	return s.channel.Push(whiteroom.MaxPolyphonyCommand(n))
}

// Position returns a stale-tolerant snapshot of the transport for display
// and stale-command rejection.
func (s *Scheduler) Position() whiteroom.TransportPosition {
	sig := s.sigShared.Load()
	return whiteroom.PositionAt(
		s.posShared.Load(),
		s.sampleRate,
		math.Float64frombits(s.tempoShared.Load()),
		int(sig>>32),
		int(sig&0xffffffff),
	)
}

// State returns the last published transport state.
func (s *Scheduler) State() whiteroom.TransportState {
	return whiteroom.TransportState(s.stateShared.Load())
}

// DroppedStale returns how many commands arrived too late to deliver.
func (s *Scheduler) DroppedStale() int64 { return s.droppedStale.Load() }

/* audio context side */

// ProcessEvents drains the command channel, applies control commands, and
// returns every musical command due in the next samplesToProcess samples,
// advancing the transport past them. The returned slice is reused by the
// next call. While the transport is not playing the position does not
// advance and no musical commands come due, but control commands still
// apply, so play/stop/seek keep working block by block.
//
// With looping enabled, a block that crosses the loop end is processed as
// two windows: [position, loopEnd) and [loopStart, loopStart+overshoot), so
// no sample is skipped or played twice and commands scheduled for the next
// lap inside the wrapped window are delivered in the same block, after the
// pre-wrap ones.
func (s *Scheduler) ProcessEvents(samplesToProcess int) []whiteroom.Command {
	s.drain()
	return s.deliver(samplesToProcess)
}

// deliver collects the commands due in the next samplesToProcess samples
// and advances the transport. Callers must have drained the channel first
// so control commands have settled the transport.
func (s *Scheduler) deliver(samplesToProcess int) []whiteroom.Command {
	s.due = s.due[:0]
	s.dueFrames = s.dueFrames[:0]
	if s.state != whiteroom.Playing {
		s.publishTransport()
		return s.due
	}
	remaining := int64(samplesToProcess)
	var consumed int64
	for remaining > 0 {
		end := s.position + remaining
		wrap := s.loop.Enabled && s.position < s.loop.End && end >= s.loop.End
		if wrap {
			end = s.loop.End
		}
		before := len(s.due)
		s.collectDue(end)
		for i := before; i < len(s.due); i++ {
			s.dueFrames = append(s.dueFrames, int(consumed+s.due[i].Time-s.position))
		}
		remaining -= end - s.position
		consumed += end - s.position
		if wrap {
			s.position = s.loop.Start
		} else {
			s.position = end
		}
	}
	s.publishTransport()
	return s.due
}

// DueFrames returns, for each command in the slice returned by the last
// ProcessEvents call, the frame offset within that block where the command
// falls. Offsets are cumulative across loop-wrap windows inside the block.
// Audio context only; valid until the next ProcessEvents call.
func (s *Scheduler) DueFrames() []int { return s.dueFrames }

// LookaheadEvents returns the commands due within the lookahead span ahead
// of the current position without consuming them. It is advisory: commands
// it returns are still delivered by ProcessEvents. It must only be called
// from the goroutine that calls ProcessEvents, as it reads the
// audio-context-owned store. The returned slice is reused by the next call.
func (s *Scheduler) LookaheadEvents() []whiteroom.Command {
	s.ahead = s.ahead[:0]
	horizon := s.position + s.aheadSpan
	for i := range s.store {
		if s.store[i].Time >= horizon {
			break
		}
		if s.store[i].Time >= s.position {
			s.ahead = append(s.ahead, s.store[i])
		}
	}
	return s.ahead
}

// Pending returns the number of commands in the ordered store.
func (s *Scheduler) Pending() int { return len(s.store) }

// collectDue moves every stored command with time in [position, end) to the
// due list. Commands before the position stay in the store; with a loop
// enabled they belong to the next lap and come due after the wrap.
func (s *Scheduler) collectDue(end int64) {
	lo := sort.Search(len(s.store), func(i int) bool {
		return s.store[i].Time >= s.position
	})
	hi := lo
	for hi < len(s.store) && s.store[hi].Time < end {
		hi++
	}
	if lo == hi {
		return
	}
	s.due = append(s.due, s.store[lo:hi]...)
	rest := copy(s.store[lo:], s.store[hi:])
	s.store = s.store[:lo+rest]
}

// drain empties the command channel into the ordered store, applying
// control commands on the spot in queue order.
func (s *Scheduler) drain() {
	var cmd whiteroom.Command
	for s.channel.Pop(&cmd) {
		if cmd.Kind.Musical() {
			if cmd.Time < s.position && !s.loop.Contains(cmd.Time) {
				// arrived too late; it would never match a window
				s.droppedStale.Add(1)
				continue
			}
			s.insert(cmd)
			continue
		}
		s.applyControl(&cmd)
	}
}

// insert places cmd into the store keeping it ordered by time, ties broken
// by kind rank, commands pushed later sorting after equal earlier ones.
func (s *Scheduler) insert(cmd whiteroom.Command) {
	i := sort.Search(len(s.store), func(i int) bool {
		return cmd.Before(&s.store[i])
	})
	s.store = append(s.store, whiteroom.Command{})
	copy(s.store[i+1:], s.store[i:])
	s.store[i] = cmd
}

func (s *Scheduler) applyControl(cmd *whiteroom.Command) {
	switch cmd.Kind {
	case whiteroom.KindPlay:
		if s.state != whiteroom.Playing {
			s.state = whiteroom.Playing
		}
	case whiteroom.KindPause:
		if s.state == whiteroom.Playing {
			s.state = whiteroom.Paused
		}
	case whiteroom.KindStop:
		s.prunePast()
		s.position = 0
		s.state = whiteroom.Stopped
		s.notifyControl(cmd)
	case whiteroom.KindSeek:
		s.position = cmd.CtrlSeek()
		s.prunePast()
	case whiteroom.KindSetTempo:
		if bpm := cmd.CtrlTempo(); bpm > 0 {
			s.tempo = bpm
		}
	case whiteroom.KindSetTimeSignature:
		if num, den := cmd.CtrlTimeSignature(); num > 0 && den > 0 {
			s.timeSig = [2]int{num, den}
		}
	case whiteroom.KindSetLoop:
		if loop := cmd.CtrlLoop(); loop.Validate() == nil {
			s.loop = loop
			s.prunePast()
		}
	case whiteroom.KindClearEvents:
		s.store = s.store[:0]
	case whiteroom.KindClearRoleEvents:
		s.clearRole(cmd.CtrlRole())
	default:
		// voice pool configuration; the engine owns the allocator
		s.notifyControl(cmd)
	}
	s.publishTransport()
}

func (s *Scheduler) notifyControl(cmd *whiteroom.Command) {
	if s.control != nil {
		s.control(*cmd)
	}
}

// prunePast removes stored commands the transport has moved past; they
// would never match a window again. Commands inside an enabled loop region
// stay, the wrap brings the transport back to them.
func (s *Scheduler) prunePast() {
	kept := s.store[:0]
	var dropped int64
	for i := range s.store {
		if s.store[i].Time < s.position && !s.loop.Contains(s.store[i].Time) {
			dropped++
			continue
		}
		kept = append(kept, s.store[i])
	}
	s.store = kept
	if dropped > 0 {
		s.droppedStale.Add(dropped)
	}
}

func (s *Scheduler) clearRole(role int32) {
	kept := s.store[:0]
	for i := range s.store {
		if note, ok := s.store[i].Note(); ok && note.Role == role {
			continue
		}
		kept = append(kept, s.store[i])
	}
	s.store = kept
}

func (s *Scheduler) publishTransport() {
	s.posShared.Store(s.position)
	s.stateShared.Store(int32(s.state))
	s.tempoShared.Store(math.Float64bits(s.tempo))
	s.sigShared.Store(uint64(s.timeSig[0])<<32 | uint64(uint32(s.timeSig[1])))
	if s.loop.Enabled {
		s.loopStartShared.Store(s.loop.Start)
		s.loopEndShared.Store(s.loop.End)
	} else {
		s.loopStartShared.Store(0)
		s.loopEndShared.Store(0)
	}
}

// TransportPosition returns the audio-context view of the position with the
// musical fields derived. Audio context only; the control context uses
// Position instead.
func (s *Scheduler) TransportPosition() whiteroom.TransportPosition {
	return whiteroom.PositionAt(s.position, s.sampleRate, s.tempo, s.timeSig[0], s.timeSig[1])
}
