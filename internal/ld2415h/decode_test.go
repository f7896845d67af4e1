package ld2415h

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/ld2415h/internal/testutil"
)

const fullConfigFrame = testutil.ConfigFrame

func TestDecodeFirmware(t *testing.T) {
	var cfg Config
	require.NoError(t, DecodeFirmware([]byte("No.:20230801E v5.0"), &cfg))
	assert.Equal(t, "20230801E v5.0", cfg.Firmware)

	// a later frame replaces the value wholesale
	require.NoError(t, DecodeFirmware([]byte("No.:v6"), &cfg))
	assert.Equal(t, "v6", cfg.Firmware)
}

func TestDecodeFirmware_KeepsTextAfterFirstColonVerbatim(t *testing.T) {
	var cfg Config
	require.NoError(t, DecodeFirmware([]byte("No.: a:b "), &cfg))
	assert.Equal(t, " a:b ", cfg.Firmware)
}

func TestDecodeFirmware_MissingColon(t *testing.T) {
	cfg := Config{Firmware: "20230801E v5.0"}
	err := DecodeFirmware([]byte("No.20230801E"), &cfg)
	assert.ErrorIs(t, err, ErrFirmwareFormat)
	assert.Equal(t, "20230801E v5.0", cfg.Firmware)
}

func TestDecodeFirmware_Truncates(t *testing.T) {
	var cfg Config
	long := strings.Repeat("A", MaxFirmwareLen+10)
	err := DecodeFirmware([]byte("No.:"+long), &cfg)
	assert.ErrorIs(t, err, ErrFirmwareTruncated)
	assert.Equal(t, long[:MaxFirmwareLen], cfg.Firmware)
}

func TestDecodeConfig_FullFrame(t *testing.T) {
	var cfg Config
	require.NoError(t, DecodeConfig([]byte(fullConfigFrame), &cfg))

	want := Config{
		MinSpeed:            1,
		AngleCompensation:   0,
		Sensitivity:         5,
		TrackingMode:        Approaching,
		SampleRate:          0,
		Unit:                KilometersPerHour,
		VibrationCorrection: 5,
		RelayDuration:       3,
		RelaySpeed:          1,
		NegotiationMode:     CustomAgreement,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeConfig_HexValues(t *testing.T) {
	var cfg Config
	require.NoError(t, DecodeConfig([]byte("X1:0A X3:ff X8:1f X9:7F"), &cfg))
	assert.Equal(t, uint8(0x0A), cfg.MinSpeed)
	assert.Equal(t, uint8(0xFF), cfg.Sensitivity)
	assert.Equal(t, uint8(0x1F), cfg.RelayDuration)
	assert.Equal(t, uint8(0x7F), cfg.RelaySpeed)
}

func TestDecodeConfig_EveryFieldMatchesItsToken(t *testing.T) {
	var cfg Config
	require.NoError(t, DecodeConfig([]byte("X1:11 X2:22 X3:33 X4:02 X5:55 X6:01 X7:77 X8:88 X9:99 X0:02"), &cfg))

	assert.Equal(t, uint8(0x11), cfg.MinSpeed)
	assert.Equal(t, uint8(0x22), cfg.AngleCompensation)
	assert.Equal(t, uint8(0x33), cfg.Sensitivity)
	assert.Equal(t, Retreating, cfg.TrackingMode)
	assert.Equal(t, uint8(0x55), cfg.SampleRate)
	assert.Equal(t, MilesPerHour, cfg.Unit)
	assert.Equal(t, uint8(0x77), cfg.VibrationCorrection)
	assert.Equal(t, uint8(0x88), cfg.RelayDuration)
	assert.Equal(t, uint8(0x99), cfg.RelaySpeed)
	assert.Equal(t, StandardProtocol, cfg.NegotiationMode)
}

func TestDecodeConfig_MalformedTokenStopsDecoding(t *testing.T) {
	cfg := Config{MinSpeed: 9, AngleCompensation: 9, Sensitivity: 9}
	err := DecodeConfig([]byte("X3:04 X1:0 X2:00"), &cfg)
	assert.ErrorIs(t, err, ErrConfigTokenLength)

	// pairs before the violation stay applied, nothing after it is
	assert.Equal(t, uint8(4), cfg.Sensitivity)
	assert.Equal(t, uint8(9), cfg.MinSpeed)
	assert.Equal(t, uint8(9), cfg.AngleCompensation)
}

func TestDecodeConfig_LongKey(t *testing.T) {
	cfg := Config{MinSpeed: 9}
	err := DecodeConfig([]byte("X10:01 X1:02"), &cfg)
	assert.ErrorIs(t, err, ErrConfigTokenLength)
	assert.Equal(t, uint8(9), cfg.MinSpeed)
}

func TestDecodeConfig_TrailingKeyWithoutValue(t *testing.T) {
	var cfg Config
	err := DecodeConfig([]byte("X1:02 X2"), &cfg)
	assert.ErrorIs(t, err, ErrConfigTokenLength)
	assert.Equal(t, uint8(2), cfg.MinSpeed)
}

func TestDecodeConfig_UnknownKeyIsSkipped(t *testing.T) {
	var cfg Config
	err := DecodeConfig([]byte("X1:02 XA:05 Y2:07 X3:04"), &cfg)
	assert.ErrorIs(t, err, ErrUnknownConfigKey)
	assert.Equal(t, uint8(2), cfg.MinSpeed)
	assert.Equal(t, uint8(0), cfg.AngleCompensation)
	assert.Equal(t, uint8(4), cfg.Sensitivity)
	assert.Equal(t, []string{"unknown_config_key", "unknown_config_key"}, ErrorLabels(err))
}

func TestDecodeConfig_NonHexValueIsSkipped(t *testing.T) {
	cfg := Config{MinSpeed: 9}
	err := DecodeConfig([]byte("X1:G1 X2:03"), &cfg)
	assert.ErrorIs(t, err, ErrConfigValue)
	assert.Equal(t, uint8(9), cfg.MinSpeed)
	assert.Equal(t, uint8(3), cfg.AngleCompensation)
}

func TestDecodeConfig_InvalidEnumUsesDefault(t *testing.T) {
	cfg := Config{TrackingMode: Retreating, Unit: KilometersPerHour, NegotiationMode: StandardProtocol}
	err := DecodeConfig([]byte("X4:07 X6:09 X0:00 X1:03"), &cfg)
	assert.ErrorIs(t, err, ErrInvalidEnumValue)

	assert.Equal(t, ApproachingAndRetreating, cfg.TrackingMode)
	assert.Equal(t, MetersPerSecond, cfg.Unit)
	assert.Equal(t, CustomAgreement, cfg.NegotiationMode)
	// decoding continued past the invalid codes
	assert.Equal(t, uint8(3), cfg.MinSpeed)
	assert.Len(t, ErrorLabels(err), 3)
}

func TestDecodeConfig_CollapsesRepeatedDelimiters(t *testing.T) {
	var cfg Config
	require.NoError(t, DecodeConfig([]byte("X1::05  X2 : 06 "), &cfg))
	assert.Equal(t, uint8(5), cfg.MinSpeed)
	assert.Equal(t, uint8(6), cfg.AngleCompensation)
}

func TestDecodeVelocity(t *testing.T) {
	tests := []struct {
		frame string
		speed float64
		dir   Direction
	}{
		{"V+001.9", 1.9, DirectionApproaching},
		{"V-003.2", 3.2, DirectionRetreating},
		{"V 012.0", 12.0, DirectionRetreating},
		{"V+000.0", 0, DirectionApproaching},
		{"V+15", 15, DirectionApproaching},
	}
	for _, tt := range tests {
		t.Run(tt.frame, func(t *testing.T) {
			v, err := DecodeVelocity([]byte(tt.frame))
			require.NoError(t, err)
			assert.InDelta(t, tt.speed, v.Speed, 1e-9)
			assert.Equal(t, tt.dir, v.Direction)
		})
	}
}

func TestDecodeVelocity_Errors(t *testing.T) {
	tests := []struct {
		frame string
		want  error
	}{
		{"+001.9", ErrVelocityFormat},
		{"V", ErrVelocityFormat},
		{"V+", ErrVelocityValue},
		{"V+abc", ErrVelocityValue},
		{"V+NaN", ErrVelocityValue},
	}
	for _, tt := range tests {
		t.Run(tt.frame, func(t *testing.T) {
			_, err := DecodeVelocity([]byte(tt.frame))
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}
}
