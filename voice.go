package whiteroom

import (
	"fmt"
)

// VoiceState is the life-cycle state of a voice slot.
type VoiceState int

const (
	VoiceIdle VoiceState = iota
	VoiceActive
	VoiceReleasing
	VoiceStolen
)

func (s VoiceState) String() string {
	switch s {
	case VoiceIdle:
		return "Idle"
	case VoiceActive:
		return "Active"
	case VoiceReleasing:
		return "Releasing"
	case VoiceStolen:
		return "Stolen"
	}
	return "Unknown"
}

// VoicePriority ranks voices for stealing; a numerically larger priority is
// stolen first, so a Primary voice is never stolen while a Secondary or
// Tertiary candidate exists.
type VoicePriority int

const (
	PriorityPrimary VoicePriority = iota
	PrioritySecondary
	PriorityTertiary
)

var priorityNames = [...]string{"primary", "secondary", "tertiary"}

func (p VoicePriority) String() string {
	if p < 0 || int(p) >= len(priorityNames) {
		return "unknown"
	}
	return priorityNames[p]
}

func (p VoicePriority) MarshalYAML() (any, error) { return p.String(), nil }

func (p *VoicePriority) UnmarshalYAML(unmarshal func(any) error) error {
	var name string
	if err := unmarshal(&name); err != nil {
		return err
	}
	for i, n := range priorityNames {
		if n == name {
			*p = VoicePriority(i)
			return nil
		}
	}
	return fmt.Errorf("unknown voice priority %q", name)
}

// StealingPolicy selects the victim voice when the pool is full.
type StealingPolicy int

const (
	// StealOldest picks the voice with the smallest start sample.
	StealOldest StealingPolicy = iota
	// StealLowestPriority picks the voice with the numerically largest
	// priority (Tertiary before Secondary before Primary).
	StealLowestPriority
	// StealQuietest picks the voice with the smallest velocity.
	StealQuietest
	// StealFurthest picks the voice that has been sounding longest relative
	// to the current time.
	StealFurthest
)

var policyNames = [...]string{"oldest", "lowestPriority", "quietest", "furthest"}

func (p StealingPolicy) String() string {
	if p < 0 || int(p) >= len(policyNames) {
		return "unknown"
	}
	return policyNames[p]
}

func (p StealingPolicy) MarshalYAML() (any, error) { return p.String(), nil }

func (p *StealingPolicy) UnmarshalYAML(unmarshal func(any) error) error {
	var name string
	if err := unmarshal(&name); err != nil {
		return err
	}
	for i, n := range policyNames {
		if n == name {
			*p = StealingPolicy(i)
			return nil
		}
	}
	return fmt.Errorf("unknown stealing policy %q", name)
}

// VoiceSlot is one entry in the allocator's fixed slot table. Index is the
// slot's stable identity; external code must not hold a slot copy across an
// Update call without re-validating its state, as slots are reused.
type VoiceSlot struct {
	Index       int32
	State       VoiceState
	Priority    VoicePriority
	Pitch       int
	Velocity    int
	Role        int32
	Pan         float32
	StartSample int64
	StopSample  int64 // scheduled stop; 0 means "no scheduled stop"

	// ReleaseStart records when the slot entered Releasing. ReleaseSamples
	// overrides the pool's default release tail when non-zero.
	ReleaseStart   int64
	ReleaseSamples int64
}

// PoolConfig is the voice pool configuration, fixed at construction.
// MaxPolyphony bounds the slot table size for the lifetime of the allocator.
type PoolConfig struct {
	MaxPolyphony     int            `yaml:"maxPolyphony"`
	DefaultReleaseMs int            `yaml:"defaultReleaseMs"`
	StealingPolicy   StealingPolicy `yaml:"stealingPolicy"`
	StealingEnabled  bool           `yaml:"stealingEnabled"`
}

// DefaultPoolConfig returns the configuration used when a song does not
// specify one.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxPolyphony:     32,
		DefaultReleaseMs: 200,
		StealingPolicy:   StealOldest,
		StealingEnabled:  true,
	}
}

// Validate checks the construction-time invariants. A violation is a
// configuration bug and the only fatal condition in the playback core, so
// constructors refuse to build an allocator from an invalid config.
func (c PoolConfig) Validate() error {
	if c.MaxPolyphony <= 0 {
		return fmt.Errorf("maxPolyphony must be positive, got %d", c.MaxPolyphony)
	}
	if c.DefaultReleaseMs < 0 {
		return fmt.Errorf("defaultReleaseMs cannot be negative, got %d", c.DefaultReleaseMs)
	}
	if c.StealingPolicy < StealOldest || c.StealingPolicy > StealFurthest {
		return fmt.Errorf("unknown stealing policy %d", c.StealingPolicy)
	}
	return nil
}
