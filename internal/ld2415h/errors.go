package ld2415h

import (
	"errors"
)

// Decode conditions. None of them are fatal: the Device reports them to the
// diagnostics sink and carries on with the next frame.
var (
	ErrFrameOverflow     = errors.New("frame exceeds buffer capacity")
	ErrUnrecognizedFrame = errors.New("unrecognized frame")
	ErrFirmwareFormat    = errors.New("firmware value invalid")
	ErrFirmwareTruncated = errors.New("firmware value truncated")
	ErrConfigTokenLength = errors.New("config key/value length invalid")
	ErrConfigValue       = errors.New("config value is not hexadecimal")
	ErrUnknownConfigKey  = errors.New("unknown config parameter")
	ErrInvalidEnumValue  = errors.New("invalid enum value")
	ErrVelocityFormat    = errors.New("velocity marker missing")
	ErrVelocityValue     = errors.New("velocity value invalid")
)

const otherErrorLabel = "other"

var errorLabels = []struct {
	err   error
	label string
}{
	{ErrFrameOverflow, "frame_overflow"},
	{ErrUnrecognizedFrame, "unrecognized_frame"},
	{ErrFirmwareFormat, "firmware_format"},
	{ErrFirmwareTruncated, "firmware_truncated"},
	{ErrConfigTokenLength, "config_token_length"},
	{ErrConfigValue, "config_value"},
	{ErrUnknownConfigKey, "unknown_config_key"},
	{ErrInvalidEnumValue, "invalid_enum_value"},
	{ErrVelocityFormat, "velocity_format"},
	{ErrVelocityValue, "velocity_value"},
}

// ErrorLabels returns a short metric label for every decode condition wrapped
// in err. A joined error yields one label per member.
func ErrorLabels(err error) []string {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var labels []string
		for _, e := range joined.Unwrap() {
			labels = append(labels, ErrorLabels(e)...)
		}
		return labels
	}
	for _, l := range errorLabels {
		if errors.Is(err, l.err) {
			return []string{l.label}
		}
	}
	return []string{otherErrorLabel}
}
