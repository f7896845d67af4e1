package ld2415h

// FrameKind identifies which response grammar a frame belongs to.
type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FrameFirmware
	FrameConfig
	FrameVelocity
)

func (k FrameKind) String() string {
	switch k {
	case FrameFirmware:
		return "firmware"
	case FrameConfig:
		return "config"
	case FrameVelocity:
		return "velocity"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name.
func (k FrameKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Classify selects a grammar by the first byte of frame. It does not inspect
// or modify the rest of the frame.
func Classify(frame []byte) FrameKind {
	if len(frame) == 0 {
		return FrameUnknown
	}
	switch frame[0] {
	case 'N':
		return FrameFirmware
	case 'X':
		return FrameConfig
	case 'V':
		return FrameVelocity
	default:
		return FrameUnknown
	}
}
