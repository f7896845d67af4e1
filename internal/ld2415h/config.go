package ld2415h

import (
	"fmt"
	"strings"
)

// MaxFirmwareLen bounds the stored firmware identifier.
const MaxFirmwareLen = 32

// Config mirrors the settings last reported by the device. Fields are updated
// individually as their key/value pairs decode, so a malformed response can
// leave a mix of old and new values.
type Config struct {
	Firmware            string          `json:"firmware"`
	MinSpeed            uint8           `json:"min_speed"`
	AngleCompensation   uint8           `json:"angle_compensation"`
	Sensitivity         uint8           `json:"sensitivity"`
	TrackingMode        TrackingMode    `json:"tracking_mode"`
	SampleRate          uint8           `json:"sample_rate"`
	Unit                SpeedUnit       `json:"unit"`
	VibrationCorrection uint8           `json:"vibration_correction"`
	RelayDuration       uint8           `json:"relay_duration"`
	RelaySpeed          uint8           `json:"relay_speed"`
	NegotiationMode     NegotiationMode `json:"negotiation_mode"`
}

// String renders the configuration as a multi-line human-readable dump.
func (c Config) String() string {
	var b strings.Builder
	c.Dump(func(format string, v ...interface{}) {
		fmt.Fprintf(&b, format, v...)
		b.WriteByte('\n')
	})
	return b.String()
}

// Dump writes one line per setting to logf.
func (c Config) Dump(logf func(format string, v ...interface{})) {
	logf("LD2415H:")
	logf("  Firmware: %s", c.Firmware)
	logf("  Minimum Speed Reported: %d", c.MinSpeed)
	logf("  Angle Compensation: %d", c.AngleCompensation)
	logf("  Sensitivity: %d", c.Sensitivity)
	logf("  Tracking Mode: %s", c.TrackingMode)
	logf("  Sampling Rate: %d", c.SampleRate)
	logf("  Unit of Measure: %s", c.Unit)
	logf("  Vibration Correction: %d", c.VibrationCorrection)
	logf("  Relay Trigger Duration: %d", c.RelayDuration)
	logf("  Relay Trigger Speed: %d", c.RelaySpeed)
	logf("  Negotiation Mode: %s", c.NegotiationMode)
}

// TrackingMode selects which target directions the radar reports. The zero
// value is the default member.
type TrackingMode uint8

const (
	ApproachingAndRetreating TrackingMode = iota
	Approaching
	Retreating
)

var (
	trackingModeCodes = []uint8{ApproachingAndRetreating: 0x00, Approaching: 0x01, Retreating: 0x02}
	trackingModeNames = []string{"APPROACHING_AND_RETREATING", "APPROACHING", "RETREATING"}
)

// CoerceTrackingMode maps a raw device code to a TrackingMode.
func CoerceTrackingMode(raw uint8) (TrackingMode, error) {
	return coerce[TrackingMode]("tracking mode", raw, trackingModeCodes)
}

// Code returns the device's wire code for m.
func (m TrackingMode) Code() uint8 { return trackingModeCodes[m] }

func (m TrackingMode) String() string { return enumName("TrackingMode", trackingModeNames, m) }

func (m TrackingMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// SpeedUnit is the unit the device reports velocity in. The zero value is the
// default member.
type SpeedUnit uint8

const (
	MetersPerSecond SpeedUnit = iota
	MilesPerHour
	KilometersPerHour
)

var (
	speedUnitCodes = []uint8{MetersPerSecond: 0x02, MilesPerHour: 0x01, KilometersPerHour: 0x00}
	speedUnitNames = []string{"METERS_PER_SECOND", "MILES_PER_HOUR", "KILOMETERS_PER_HOUR"}
)

// CoerceSpeedUnit maps a raw device code to a SpeedUnit.
func CoerceSpeedUnit(raw uint8) (SpeedUnit, error) {
	return coerce[SpeedUnit]("unit of measure", raw, speedUnitCodes)
}

// Code returns the device's wire code for u.
func (u SpeedUnit) Code() uint8 { return speedUnitCodes[u] }

func (u SpeedUnit) String() string { return enumName("SpeedUnit", speedUnitNames, u) }

func (u SpeedUnit) MarshalText() ([]byte, error) { return []byte(u.String()), nil }

// NegotiationMode is the device's serial output protocol. The zero value is
// the default member.
type NegotiationMode uint8

const (
	CustomAgreement NegotiationMode = iota
	StandardProtocol
)

var (
	negotiationModeCodes = []uint8{CustomAgreement: 0x01, StandardProtocol: 0x02}
	negotiationModeNames = []string{"CUSTOM_AGREEMENT", "STANDARD_PROTOCOL"}
)

// CoerceNegotiationMode maps a raw device code to a NegotiationMode.
func CoerceNegotiationMode(raw uint8) (NegotiationMode, error) {
	return coerce[NegotiationMode]("negotiation mode", raw, negotiationModeCodes)
}

// Code returns the device's wire code for m.
func (m NegotiationMode) Code() uint8 { return negotiationModeCodes[m] }

func (m NegotiationMode) String() string {
	return enumName("NegotiationMode", negotiationModeNames, m)
}

func (m NegotiationMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// coerce is the single validation point for enumerated settings. codes is
// indexed by member; a raw value matching none of them yields the zero member
// and ErrInvalidEnumValue.
func coerce[T ~uint8](field string, raw uint8, codes []uint8) (T, error) {
	for member, code := range codes {
		if code == raw {
			return T(member), nil
		}
	}
	return T(0), fmt.Errorf("%w: %s 0x%02X", ErrInvalidEnumValue, field, raw)
}

func enumName[T ~uint8](typ string, names []string, v T) string {
	if int(v) < len(names) {
		return names[v]
	}
	return fmt.Sprintf("%s(%d)", typ, uint8(v))
}
