package ld2415h

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/ld2415h/internal/testutil"
	"github.com/banshee-data/ld2415h/internal/timeutil"
)

// captureLog collects diagnostics written by a Device.
type captureLog struct {
	mu    sync.Mutex
	lines []string
}

func (c *captureLog) logf(format string, v ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, fmt.Sprintf(format, v...))
}

func (c *captureLog) contains(substr string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range c.lines {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

func newTestDevice(t *testing.T, opts ...Option) (*Device, *[]Event, *captureLog) {
	t.Helper()
	var events []Event
	logs := &captureLog{}
	clock := timeutil.NewMockClock(time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC))
	opts = append([]Option{
		WithClock(clock),
		WithLogger(logs.logf),
		WithObserver(ObserverFunc(func(e Event) { events = append(events, e) })),
	}, opts...)
	return NewDevice(opts...), &events, logs
}

func TestDevice_DecodesStartupStream(t *testing.T) {
	d, events, logs := newTestDevice(t)

	d.Feed([]byte(testutil.StartupStream))

	require.Len(t, *events, 2)
	assert.Equal(t, FrameFirmware, (*events)[0].Kind)
	assert.Equal(t, FrameConfig, (*events)[1].Kind)
	require.NotNil(t, (*events)[1].Config)
	assert.Equal(t, "20230801E v5.0", (*events)[1].Config.Firmware)

	cfg := d.Config()
	assert.Equal(t, "20230801E v5.0", cfg.Firmware)
	assert.Equal(t, KilometersPerHour, cfg.Unit)
	assert.Equal(t, Approaching, cfg.TrackingMode)
	assert.True(t, logs.contains("Firmware Response: No.:20230801E v5.0"))
	assert.True(t, logs.contains("Config Response: X1:01"))
}

func TestDevice_VelocityReading(t *testing.T) {
	d, events, _ := newTestDevice(t)

	_, ok := d.Reading()
	assert.False(t, ok)

	d.Feed([]byte("X6:01\r\nV+001.9\r\n"))
	v, ok := d.Reading()
	require.True(t, ok)
	assert.InDelta(t, 1.9, v.Speed, 1e-9)
	assert.Equal(t, DirectionApproaching, v.Direction)
	assert.Equal(t, MilesPerHour, v.Unit)
	assert.Equal(t, time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC), v.Time)

	d.Feed([]byte("V-003.2\n"))
	v, _ = d.Reading()
	assert.InDelta(t, 3.2, v.Speed, 1e-9)
	assert.Equal(t, DirectionRetreating, v.Direction)

	require.Len(t, *events, 3)
	require.NotNil(t, (*events)[2].Velocity)
	assert.Equal(t, v, *(*events)[2].Velocity)
}

func TestDevice_BadVelocityKeepsPreviousReading(t *testing.T) {
	d, events, logs := newTestDevice(t)

	d.Feed([]byte("V+004.0\nV+abc\n"))
	v, ok := d.Reading()
	require.True(t, ok)
	assert.InDelta(t, 4.0, v.Speed, 1e-9)
	assert.Len(t, *events, 1)
	assert.True(t, logs.contains(ErrVelocityValue.Error()))
}

func TestDevice_MalformedFrameDoesNotBlockLaterFrames(t *testing.T) {
	d, events, logs := newTestDevice(t)

	d.Feed([]byte("X1:0 X2:00\r\n?garbage\r\nNo.missing-colon\r\nX1:05\r\nV+002.6\r\n"))

	assert.True(t, logs.contains(ErrConfigTokenLength.Error()))
	assert.True(t, logs.contains(ErrUnrecognizedFrame.Error()))
	assert.True(t, logs.contains(ErrFirmwareFormat.Error()))

	assert.Equal(t, uint8(5), d.Config().MinSpeed)
	v, ok := d.Reading()
	require.True(t, ok)
	assert.InDelta(t, 2.6, v.Speed, 1e-9)

	kinds := make([]FrameKind, 0, len(*events))
	for _, e := range *events {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []FrameKind{FrameConfig, FrameConfig, FrameVelocity}, kinds)
}

func TestDevice_OverflowDispatchesTruncatedFrame(t *testing.T) {
	d, events, logs := newTestDevice(t, WithFrameCapacity(7))

	d.Feed([]byte("V+001.9999999\nV+002.5\n"))

	assert.True(t, logs.contains(ErrFrameOverflow.Error()))
	require.Len(t, *events, 2)
	assert.Equal(t, "V+001.9", (*events)[0].Raw)
	assert.InDelta(t, 1.9, (*events)[0].Velocity.Speed, 1e-9)
	assert.Equal(t, "V+002.5", (*events)[1].Raw)
}

func TestDevice_FeedByteAcrossCalls(t *testing.T) {
	d, events, _ := newTestDevice(t)
	for _, c := range []byte("V+0\x0003.2\r\n") {
		d.FeedByte(c)
	}
	require.Len(t, *events, 1)
	assert.InDelta(t, 3.2, (*events)[0].Velocity.Speed, 1e-9)
}

func TestDevice_ResetDropsPartialFrame(t *testing.T) {
	d, events, logs := newTestDevice(t)
	d.Feed([]byte("garb"))
	d.Reset()
	d.Feed([]byte("V+001.0\n"))

	require.Len(t, *events, 1)
	assert.Equal(t, "V+001.0", (*events)[0].Raw)
	assert.False(t, logs.contains(ErrUnrecognizedFrame.Error()))
}

func TestDevice_ObserverMayCallBack(t *testing.T) {
	d := NewDevice(WithLogger(testutil.Quiet))
	var seen Config
	d.AddObserver(ObserverFunc(func(e Event) {
		seen = d.Config()
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Feed([]byte("X1:07\n"))
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("observer calling back into device deadlocked")
	}
	assert.Equal(t, uint8(7), seen.MinSpeed)
}

func TestDevice_ConcurrentFeeds(t *testing.T) {
	d := NewDevice(WithLogger(testutil.Quiet))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				d.Config()
				d.Reading()
				d.Feed([]byte("\n"))
			}
		}()
	}
	wg.Wait()
	_, ok := d.Reading()
	assert.False(t, ok)
}

func TestConfigRequestCommand(t *testing.T) {
	cmd := ConfigRequestCommand()
	assert.Equal(t, []byte{0x43, 0x46, 0x07, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, cmd)

	// callers cannot mutate the shared command
	cmd[0] = 0
	assert.Equal(t, byte(0x43), ConfigRequestCommand()[0])
}
