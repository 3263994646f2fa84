// Package gomidi feeds live MIDI input into the playback scheduler. It runs
// entirely on the control context: the driver callback buffers messages into
// a channel, and the application's control goroutine pumps them into the
// scheduler, keeping the command channel strictly single-producer.
package gomidi

import (
	"errors"
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	whiteroom "github.com/bretbouchard/white-room-pedalboard-sub008"
	"github.com/bretbouchard/white-room-pedalboard-sub008/playback"
)

type (
	Context struct {
		driver             *rtmididrv.Driver
		currentIn          drivers.In
		inputDevices       []Device
		devicesInitialized bool
		events             chan midi.Message
	}

	Device struct {
		context *Context
		in      drivers.In
	}
)

// NewContext opens the MIDI driver. A nil driver (no MIDI support on the
// system) is not an error; the context just never yields devices.
func NewContext() *Context {
	c := &Context{events: make(chan midi.Message, 1024)}
	c.driver, _ = rtmididrv.New()
	return c
}

func (c *Context) InputDevices(yield func(Device) bool) {
	if c.devicesInitialized {
		for _, device := range c.inputDevices {
			if !yield(device) {
				break
			}
		}
		return
	}
	if c.driver == nil {
		return
	}
	ins, err := c.driver.Ins()
	if err != nil {
		return
	}
	for _, in := range ins {
		device := Device{context: c, in: in}
		c.inputDevices = append(c.inputDevices, device)
		if !yield(device) {
			break
		}
	}
	c.devicesInitialized = true
}

// Open starts listening on the device, closing the previously open one.
func (d Device) Open() error {
	if d.context.currentIn == d.in {
		return nil
	}
	if d.context.driver == nil {
		return errors.New("no MIDI driver available")
	}
	if d.context.HasDeviceOpen() {
		d.context.currentIn.Close()
	}
	d.context.currentIn = d.in
	if err := d.in.Open(); err != nil {
		d.context.currentIn = nil
		return fmt.Errorf("opening MIDI input failed: %w", err)
	}
	if _, err := midi.ListenTo(d.in, d.context.handleMessage); err != nil {
		d.in.Close()
		d.context.currentIn = nil
		return fmt.Errorf("listening to MIDI input failed: %w", err)
	}
	return nil
}

func (d Device) String() string { return d.in.String() }

func (c *Context) HasDeviceOpen() bool {
	return c.currentIn != nil && c.currentIn.IsOpen()
}

// TryToOpenBy opens the first device whose name starts with namePrefix, or
// simply the first device when takeFirst is set.
func (c *Context) TryToOpenBy(namePrefix string, takeFirst bool) error {
	if namePrefix == "" && !takeFirst {
		return nil
	}
	var opened bool
	var err error
	c.InputDevices(func(device Device) bool {
		if takeFirst || strings.HasPrefix(device.String(), namePrefix) {
			err = device.Open()
			opened = true
			return false
		}
		return true
	})
	if !opened && err == nil {
		return fmt.Errorf("no MIDI input matching %q", namePrefix)
	}
	return err
}

// handleMessage runs on the driver goroutine; it only buffers. A full
// buffer drops the message rather than blocking the driver.
func (c *Context) handleMessage(msg midi.Message, timestampms int32) {
	select {
	case c.events <- msg:
	default:
	}
}

// Pump drains buffered MIDI messages into the scheduler, placing each at
// the published transport position plus latency samples so it lands in an
// upcoming block. The MIDI channel becomes the voice role. Returns how many
// commands were scheduled; messages the channel rejected are dropped, as is
// correct for late live input.
func (c *Context) Pump(sched *playback.Scheduler, latency int64) int {
	scheduled := 0
	for {
		select {
		case msg := <-c.events:
			var channel, key, velocity uint8
			at := sched.Position().SampleTime + latency
			switch {
			case msg.GetNoteOn(&channel, &key, &velocity):
				ok := sched.ScheduleNoteOn(at, whiteroom.NoteData{
					Pitch:    int(key),
					Velocity: int(velocity),
					Role:     int32(channel),
				})
				if ok {
					scheduled++
				}
			case msg.GetNoteOff(&channel, &key, &velocity):
				if sched.ScheduleNoteOff(at, int(key), int32(channel)) {
					scheduled++
				}
			}
		default:
			return scheduled
		}
	}
}

func (c *Context) Close() {
	if c.driver == nil {
		return
	}
	if c.currentIn != nil && c.currentIn.IsOpen() {
		c.currentIn.Close()
	}
	c.driver.Close()
}
