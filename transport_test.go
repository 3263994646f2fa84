package whiteroom_test

import (
	"math"
	"testing"

	whiteroom "github.com/bretbouchard/white-room-pedalboard-sub008"
)

func TestSamplesPerBeat(t *testing.T) {
	for _, tc := range []struct {
		rate   int
		bpm    float64
		den    int
		expect float64
	}{
		{44100, 120, 4, 22050},
		{44100, 60, 4, 44100},
		{48000, 120, 4, 24000},
		{44100, 120, 8, 11025}, // eighth-note beats
		{44100, 0, 4, 0},
		{44100, 120, 0, 0},
	} {
		got := whiteroom.SamplesPerBeat(tc.rate, tc.bpm, tc.den)
		if math.Abs(got-tc.expect) > 1e-9 {
			t.Errorf("SamplesPerBeat(%d, %g, %d) = %g, expected %g",
				tc.rate, tc.bpm, tc.den, got, tc.expect)
		}
	}
}

func TestPositionAt(t *testing.T) {
	for _, tc := range []struct {
		sample          int64
		num, den        int
		bar, beat, tick int
	}{
		{0, 4, 4, 1, 1, 0},
		{22049, 4, 4, 1, 1, 959},
		{22050, 4, 4, 1, 2, 0},
		{22050 * 3, 4, 4, 1, 4, 0},
		{22050 * 4, 4, 4, 2, 1, 0},
		{22050*4 + 11025, 4, 4, 2, 1, 480},
		{11025 * 5, 6, 8, 1, 6, 0}, // 6/8: beats are eighths, 11025 samples each
		{11025 * 6, 6, 8, 2, 1, 0},
		{22050 * 2, 3, 4, 1, 3, 0},
		{22050 * 3, 3, 4, 2, 1, 0},
	} {
		pos := whiteroom.PositionAt(tc.sample, 44100, 120, tc.num, tc.den)
		if pos.Bar != tc.bar || pos.Beat != tc.beat || pos.Tick != tc.tick {
			t.Errorf("PositionAt(%d, %d/%d) = %d.%d.%d, expected %d.%d.%d",
				tc.sample, tc.num, tc.den, pos.Bar, pos.Beat, pos.Tick, tc.bar, tc.beat, tc.tick)
		}
	}
}

func TestPositionAtDegenerateInputs(t *testing.T) {
	pos := whiteroom.PositionAt(1000, 44100, 0, 4, 4)
	if pos.Bar != 0 || pos.Beat != 0 || pos.Tick != 0 {
		t.Errorf("zero tempo gave %d.%d.%d, expected zeroed musical fields", pos.Bar, pos.Beat, pos.Tick)
	}
	if pos.SampleTime != 1000 {
		t.Errorf("sample time %d not preserved", pos.SampleTime)
	}
}

func TestLoopRegionValidate(t *testing.T) {
	if err := (whiteroom.LoopRegion{}).Validate(); err != nil {
		t.Errorf("disabled loop rejected: %v", err)
	}
	if err := (whiteroom.LoopRegion{Enabled: true, Start: 0, End: 100}).Validate(); err != nil {
		t.Errorf("valid loop rejected: %v", err)
	}
	if err := (whiteroom.LoopRegion{Enabled: true, Start: 100, End: 100}).Validate(); err != whiteroom.ErrInvalidLoop {
		t.Errorf("empty loop gave %v, expected ErrInvalidLoop", err)
	}
}

func TestLoopRegionContains(t *testing.T) {
	loop := whiteroom.LoopRegion{Enabled: true, Start: 100, End: 200}
	for _, tc := range []struct {
		t      int64
		expect bool
	}{
		{99, false}, {100, true}, {199, true}, {200, false},
	} {
		if got := loop.Contains(tc.t); got != tc.expect {
			t.Errorf("Contains(%d) = %v, expected %v", tc.t, got, tc.expect)
		}
	}
	if (whiteroom.LoopRegion{Start: 100, End: 200}).Contains(150) {
		t.Errorf("disabled loop claims to contain 150")
	}
}
