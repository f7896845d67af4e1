package ld2415h

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorLabels(t *testing.T) {
	assert.Nil(t, ErrorLabels(nil))
	assert.Equal(t, []string{"frame_overflow"}, ErrorLabels(ErrFrameOverflow))
	assert.Equal(t, []string{"invalid_enum_value"}, ErrorLabels(fmt.Errorf("%w: unit 0x07", ErrInvalidEnumValue)))
	assert.Equal(t, []string{"other"}, ErrorLabels(errors.New("boom")))

	joined := errors.Join(ErrConfigValue, fmt.Errorf("X4: %w", ErrInvalidEnumValue))
	assert.Equal(t, []string{"config_value", "invalid_enum_value"}, ErrorLabels(joined))
}

func TestFrameKind_Text(t *testing.T) {
	for kind, want := range map[FrameKind]string{
		FrameUnknown:  "unknown",
		FrameFirmware: "firmware",
		FrameConfig:   "config",
		FrameVelocity: "velocity",
		FrameKind(42): "unknown",
	} {
		assert.Equal(t, want, kind.String())
	}

	b, err := json.Marshal(struct {
		Kind FrameKind `json:"kind"`
	}{FrameVelocity})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"velocity"}`, string(b))
}
