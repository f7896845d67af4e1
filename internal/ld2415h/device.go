package ld2415h

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/ld2415h/internal/monitoring"
	"github.com/banshee-data/ld2415h/internal/timeutil"
)

var configRequestCommand = []byte{0x43, 0x46, 0x07, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

// ConfigRequestCommand returns the command that asks the radar to report its
// firmware and configuration. It is written to the port as-is.
func ConfigRequestCommand() []byte {
	return append([]byte(nil), configRequestCommand...)
}

// Event is published for every frame that decoded into new state. Config
// events carry a snapshot of the whole mirrored configuration.
type Event struct {
	Kind     FrameKind `json:"kind"`
	Time     time.Time `json:"time"`
	Raw      string    `json:"raw"`
	Velocity *Velocity `json:"velocity,omitempty"`
	Config   *Config   `json:"config,omitempty"`
}

// Observer receives decoded events. Observers are called after the device
// has released its lock, so they may call back into the Device.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// Option configures a Device.
type Option func(*Device)

// WithObserver registers an observer at construction time.
func WithObserver(o Observer) Option {
	return func(d *Device) { d.observers = append(d.observers, o) }
}

// WithClock sets the clock used to timestamp events.
func WithClock(c timeutil.Clock) Option {
	return func(d *Device) { d.clock = c }
}

// WithFrameCapacity sets the maximum frame length.
func WithFrameCapacity(n int) Option {
	return func(d *Device) { d.frames = NewFrameBuffer(n) }
}

// WithLogger replaces the diagnostics sink. By default diagnostics go to
// monitoring.Logf.
func WithLogger(logf func(format string, v ...interface{})) Option {
	return func(d *Device) { d.logf = logf }
}

// Device owns the frame buffer and the mirrored state of one connected radar.
// Feed runs the whole drain, dispatch and decode sequence under a single lock.
type Device struct {
	mu         sync.Mutex
	frames     *FrameBuffer
	cfg        Config
	reading    Velocity
	hasReading bool
	observers  []Observer
	clock      timeutil.Clock
	logf       func(format string, v ...interface{})
}

// NewDevice returns a Device with an empty configuration mirror.
func NewDevice(opts ...Option) *Device {
	d := &Device{
		frames: NewFrameBuffer(DefaultFrameCapacity),
		clock:  timeutil.RealClock{},
		logf: func(format string, v ...interface{}) {
			monitoring.Logf(format, v...)
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// AddObserver registers o to receive subsequent events.
func (d *Device) AddObserver(o Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, o)
}

// Feed pushes raw bytes from the UART through the framer and decoders. Bytes
// of an unterminated frame are kept until a later call completes it. Decode
// errors are reported to the diagnostics sink and never returned.
func (d *Device) Feed(p []byte) {
	if len(p) == 0 {
		return
	}

	d.mu.Lock()
	var events []Event
	for _, c := range p {
		if !d.frames.Accumulate(c) {
			continue
		}
		if ev, ok := d.handleFrame(); ok {
			events = append(events, ev)
		}
	}
	observers := append([]Observer(nil), d.observers...)
	d.mu.Unlock()

	monitoring.AddBytes(len(p))
	for _, ev := range events {
		for _, o := range observers {
			o.Observe(ev)
		}
	}
}

// FeedByte pushes a single byte.
func (d *Device) FeedByte(c byte) {
	d.Feed([]byte{c})
}

// Reset drops any partially received frame. Mirrored state is kept.
func (d *Device) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames.Reset()
}

// Config returns a copy of the mirrored configuration.
func (d *Device) Config() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// Reading returns the most recent velocity reading, if any has been decoded.
func (d *Device) Reading() (Velocity, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reading, d.hasReading
}

// handleFrame dispatches the frame just completed in d.frames. It reports
// whether the frame produced an event. The caller holds d.mu.
func (d *Device) handleFrame() (Event, bool) {
	frame := d.frames.Frame()
	raw := string(frame)
	if d.frames.Overflowed() {
		d.report(fmt.Errorf("%w: truncated to %d bytes: %q", ErrFrameOverflow, len(frame), raw))
	}

	kind := Classify(frame)
	monitoring.RecordFrame(kind.String())
	ev := Event{Kind: kind, Time: d.clock.Now(), Raw: raw}

	switch kind {
	case FrameFirmware:
		d.logf("Firmware Response: %s", raw)
		if err := DecodeFirmware(frame, &d.cfg); err != nil {
			d.report(err)
			if errors.Is(err, ErrFirmwareFormat) {
				return ev, false
			}
		}
		cfg := d.cfg
		ev.Config = &cfg

	case FrameConfig:
		d.logf("Config Response: %s", raw)
		if err := DecodeConfig(frame, &d.cfg); err != nil {
			d.report(err)
		}
		cfg := d.cfg
		ev.Config = &cfg

	case FrameVelocity:
		v, err := DecodeVelocity(frame)
		if err != nil {
			d.report(err)
			return ev, false
		}
		v.Unit = d.cfg.Unit
		v.Time = ev.Time
		d.reading = v
		d.hasReading = true
		monitoring.SetLastSpeed(v.Direction.String(), v.Unit.String(), v.Speed)
		d.logf("Speed Response: %s (%.1f %s)", raw, v.Speed, v.Direction)
		ev.Velocity = &v

	default:
		d.report(fmt.Errorf("%w: length %d: %q", ErrUnrecognizedFrame, len(frame), raw))
		return ev, false
	}
	return ev, true
}

func (d *Device) report(err error) {
	for _, label := range ErrorLabels(err) {
		monitoring.RecordDecodeError(label)
	}
	d.logf("ld2415h: %v", err)
}
