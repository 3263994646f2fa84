package whiteroom

// CommandKind tells which payload of a Command is active. The numeric order
// of the musical kinds is also their delivery order when several commands
// share the same sample time: a NoteOff scheduled at the same sample as a
// NoteOn is delivered first, so a stop never leaves a stuck voice behind a
// simultaneous start.
type CommandKind uint8

const (
	KindNoteOff CommandKind = iota
	KindNoteOn
	KindParamChange
	KindCustom

	// Control kinds below are transport and configuration changes routed
	// through the same channel as musical commands, so that they apply at a
	// deterministic point of the audio timeline, in queue order. They are
	// applied immediately when drained and never enter the ordered store.
	KindPlay
	KindPause
	KindStop
	KindSeek
	KindSetTempo
	KindSetTimeSignature
	KindSetLoop
	KindClearEvents
	KindClearRoleEvents
	KindSetStealingPolicy
	KindSetStealingEnabled
	KindSetMaxPolyphony
)

// Musical reports whether the command is a note/parameter command that is
// matched against a sample window, as opposed to a control command that takes
// effect immediately when drained.
func (k CommandKind) Musical() bool { return k <= KindCustom }

func (k CommandKind) String() string {
	switch k {
	case KindNoteOff:
		return "NoteOff"
	case KindNoteOn:
		return "NoteOn"
	case KindParamChange:
		return "ParamChange"
	case KindCustom:
		return "Custom"
	case KindPlay:
		return "Play"
	case KindPause:
		return "Pause"
	case KindStop:
		return "Stop"
	case KindSeek:
		return "Seek"
	case KindSetTempo:
		return "SetTempo"
	case KindSetTimeSignature:
		return "SetTimeSignature"
	case KindSetLoop:
		return "SetLoop"
	case KindClearEvents:
		return "ClearEvents"
	case KindClearRoleEvents:
		return "ClearRoleEvents"
	case KindSetStealingPolicy:
		return "SetStealingPolicy"
	case KindSetStealingEnabled:
		return "SetStealingEnabled"
	case KindSetMaxPolyphony:
		return "SetMaxPolyphony"
	}
	return "Unknown"
}

type (
	// Command is one timestamped instruction flowing from the control
	// context to the audio context. The active payload is determined solely
	// by Kind; the accessors return ok == false when asked for an inactive
	// payload, so a misread is a checked failure instead of garbage data.
	// Commands are immutable once pushed.
	Command struct {
		Time  int64       // sample time the command is due at
		Kind  CommandKind // selects the active payload
		Voice int32       // target voice slot; -1 means "allocate one"

		note   NoteData
		param  ParamData
		custom CustomData
		ctrl   ctrlData
	}

	// NoteData is the payload of NoteOn and NoteOff commands. For a NoteOff,
	// only Pitch and Role are meaningful.
	NoteData struct {
		Pitch    int
		Velocity int
		Priority VoicePriority
		Role     int32
		Duration int64 // samples; 0 means "until an explicit NoteOff"
		Pan      float32
	}

	// ParamData is the payload of a ParamChange command.
	ParamData struct {
		Param int32
		Value float32
	}

	// CustomData is an opaque payload passed through to the DSP stage.
	CustomData struct {
		Code  int32
		Value float64
	}

	ctrlData struct {
		seek      int64
		tempo     float64
		num, den  int
		loop      LoopRegion
		role      int32
		policy    StealingPolicy
		enabled   bool
		polyphony int
	}
)

// Before reports whether c should be delivered before other; commands are
// ordered by sample time, ties broken by kind rank for determinism.
func (c *Command) Before(other *Command) bool {
	if c.Time != other.Time {
		return c.Time < other.Time
	}
	return c.Kind < other.Kind
}

func (c *Command) Note() (NoteData, bool) {
	if c.Kind == KindNoteOn || c.Kind == KindNoteOff {
		return c.note, true
	}
	return NoteData{}, false
}

func (c *Command) Param() (ParamData, bool) {
	if c.Kind == KindParamChange {
		return c.param, true
	}
	return ParamData{}, false
}

func (c *Command) Custom() (CustomData, bool) {
	if c.Kind == KindCustom {
		return c.custom, true
	}
	return CustomData{}, false
}

// NoteOn builds a command that starts a note at the given sample time. A
// negative voice leaves the slot choice to the allocator.
func NoteOn(time int64, data NoteData) Command {
	return Command{Time: time, Kind: KindNoteOn, Voice: -1, note: data}
}

// NoteOff builds a command that stops the voice playing pitch for role at
// the given sample time. Voice may be set afterwards by the scheduler when
// the slot is already known.
func NoteOff(time int64, pitch int, role int32) Command {
	return Command{Time: time, Kind: KindNoteOff, Voice: -1, note: NoteData{Pitch: pitch, Role: role}}
}

// ParamChange builds a parameter change command targeting a voice slot, or
// all voices when voice is negative.
func ParamChange(time int64, voice int32, param int32, value float32) Command {
	return Command{Time: time, Kind: KindParamChange, Voice: voice, param: ParamData{Param: param, Value: value}}
}

// CustomCommand builds a pass-through command delivered to the caller of
// ProcessEvents like any other, but with no meaning to the core itself.
func CustomCommand(time int64, code int32, value float64) Command {
	return Command{Time: time, Kind: KindCustom, Voice: -1, custom: CustomData{Code: code, Value: value}}
}

func PlayCommand() Command  { return Command{Kind: KindPlay, Voice: -1} }
func PauseCommand() Command { return Command{Kind: KindPause, Voice: -1} }
func StopCommand() Command  { return Command{Kind: KindStop, Voice: -1} }

func SeekCommand(target int64) Command {
	return Command{Kind: KindSeek, Voice: -1, ctrl: ctrlData{seek: target}}
}

func TempoCommand(bpm float64) Command {
	return Command{Kind: KindSetTempo, Voice: -1, ctrl: ctrlData{tempo: bpm}}
}

func TimeSignatureCommand(num, den int) Command {
	return Command{Kind: KindSetTimeSignature, Voice: -1, ctrl: ctrlData{num: num, den: den}}
}

func LoopCommand(loop LoopRegion) Command {
	return Command{Kind: KindSetLoop, Voice: -1, ctrl: ctrlData{loop: loop}}
}

func ClearCommand() Command { return Command{Kind: KindClearEvents, Voice: -1} }

func ClearRoleCommand(role int32) Command {
	return Command{Kind: KindClearRoleEvents, Voice: -1, ctrl: ctrlData{role: role}}
}

func StealingPolicyCommand(p StealingPolicy) Command {
	return Command{Kind: KindSetStealingPolicy, Voice: -1, ctrl: ctrlData{policy: p}}
}

func StealingEnabledCommand(enabled bool) Command {
	return Command{Kind: KindSetStealingEnabled, Voice: -1, ctrl: ctrlData{enabled: enabled}}
}

func MaxPolyphonyCommand(n int) Command {
	return Command{Kind: KindSetMaxPolyphony, Voice: -1, ctrl: ctrlData{polyphony: n}}
}

// Ctrl accessors used by the playback package when applying drained control
// commands. They do not check the kind; the scheduler switches on Kind first.

func (c *Command) CtrlSeek() int64               { return c.ctrl.seek }
func (c *Command) CtrlTempo() float64            { return c.ctrl.tempo }
func (c *Command) CtrlTimeSignature() (int, int) { return c.ctrl.num, c.ctrl.den }
func (c *Command) CtrlLoop() LoopRegion          { return c.ctrl.loop }
func (c *Command) CtrlRole() int32               { return c.ctrl.role }
func (c *Command) CtrlPolicy() StealingPolicy    { return c.ctrl.policy }
func (c *Command) CtrlEnabled() bool             { return c.ctrl.enabled }
func (c *Command) CtrlPolyphony() int            { return c.ctrl.polyphony }
