package ld2415h

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DecodeFirmware parses a firmware frame such as "No.:20230801E v5.0". The
// text after the first colon replaces cfg.Firmware verbatim, truncated to
// MaxFirmwareLen. Without a colon cfg is left untouched.
func DecodeFirmware(frame []byte, cfg *Config) error {
	i := bytes.IndexByte(frame, ':')
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrFirmwareFormat, frame)
	}

	tail := frame[i+1:]
	if len(tail) > MaxFirmwareLen {
		cfg.Firmware = string(tail[:MaxFirmwareLen])
		return fmt.Errorf("%w: %d bytes, kept %q", ErrFirmwareTruncated, len(tail), cfg.Firmware)
	}
	cfg.Firmware = string(tail)
	return nil
}

// DecodeConfig parses a configuration frame such as
// "X1:01 X2:00 X3:05 X4:01 X5:00 X6:00 X7:05 X8:03 X9:01 X0:01" into cfg.
//
// Pairs are applied as they are read. A key or value that is not exactly two
// characters, or a key with no value, stops decoding and leaves earlier pairs
// applied. Unknown keys, non-hex values and out-of-range enum codes are
// reported but do not stop decoding. All conditions are returned joined.
func DecodeConfig(frame []byte, cfg *Config) error {
	var errs []error
	tok := configTokenizer{s: frame}
	for {
		key, ok := tok.next()
		if !ok {
			break
		}
		val, ok := tok.next()
		if !ok {
			errs = append(errs, fmt.Errorf("%w: key %q has no value", ErrConfigTokenLength, key))
			break
		}
		if len(key) != 2 || len(val) != 2 {
			errs = append(errs, fmt.Errorf("%w: %q:%q", ErrConfigTokenLength, key, val))
			break
		}

		raw, err := strconv.ParseUint(string(val), 16, 8)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s:%q", ErrConfigValue, key, val))
			continue
		}
		if err := cfg.apply(key, uint8(raw)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// apply routes one decoded pair to its setting by the key's second character.
func (c *Config) apply(key []byte, raw uint8) error {
	if key[0] != 'X' {
		return fmt.Errorf("%w: %q", ErrUnknownConfigKey, key)
	}

	var err error
	switch key[1] {
	case '1':
		c.MinSpeed = raw
	case '2':
		c.AngleCompensation = raw
	case '3':
		c.Sensitivity = raw
	case '4':
		c.TrackingMode, err = CoerceTrackingMode(raw)
	case '5':
		c.SampleRate = raw
	case '6':
		c.Unit, err = CoerceSpeedUnit(raw)
	case '7':
		c.VibrationCorrection = raw
	case '8':
		c.RelayDuration = raw
	case '9':
		c.RelaySpeed = raw
	case '0':
		c.NegotiationMode, err = CoerceNegotiationMode(raw)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownConfigKey, key)
	}
	return err
}

// configTokenizer scans a config frame treating ':' and ' ' as equivalent
// delimiters. Runs of delimiters produce no empty tokens.
type configTokenizer struct {
	s   []byte
	pos int
}

func isConfigDelim(c byte) bool { return c == ':' || c == ' ' }

func (t *configTokenizer) next() ([]byte, bool) {
	for t.pos < len(t.s) && isConfigDelim(t.s[t.pos]) {
		t.pos++
	}
	if t.pos >= len(t.s) {
		return nil, false
	}
	start := t.pos
	for t.pos < len(t.s) && !isConfigDelim(t.s[t.pos]) {
		t.pos++
	}
	return t.s[start:t.pos], true
}

// Direction is the travel direction of a detected target.
type Direction uint8

const (
	DirectionApproaching Direction = iota
	DirectionRetreating
)

func (d Direction) String() string {
	if d == DirectionApproaching {
		return "approaching"
	}
	return "retreating"
}

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// Velocity is a single speed reading. Speed is the unsigned magnitude in Unit;
// the sign byte of the frame only sets Direction.
type Velocity struct {
	Speed     float64   `json:"speed"`
	Direction Direction `json:"direction"`
	Unit      SpeedUnit `json:"unit"`
	Time      time.Time `json:"time"`
}

// DecodeVelocity parses a velocity frame such as "V+001.9". A '+' after the
// marker means approaching and any other byte means retreating. Unit and Time
// are left for the caller to fill in.
func DecodeVelocity(frame []byte) (Velocity, error) {
	i := bytes.IndexByte(frame, 'V')
	if i < 0 || i+1 >= len(frame) {
		return Velocity{}, fmt.Errorf("%w: %q", ErrVelocityFormat, frame)
	}

	v := Velocity{Direction: DirectionRetreating}
	if frame[i+1] == '+' {
		v.Direction = DirectionApproaching
	}

	speed, err := strconv.ParseFloat(strings.TrimSpace(string(frame[i+2:])), 64)
	if err != nil || math.IsNaN(speed) || math.IsInf(speed, 0) {
		return Velocity{}, fmt.Errorf("%w: %q", ErrVelocityValue, frame)
	}
	v.Speed = speed
	return v, nil
}
