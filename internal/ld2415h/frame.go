// Package ld2415h decodes the line-oriented ASCII protocol of the HLK-LD2415H
// Doppler speed radar and mirrors the device's reported configuration and live
// velocity reading.
//
// Bytes from the UART are fed one at a time into a FrameBuffer. Each completed
// line is classified by its first byte and handed to one of three decoders:
// firmware ("No.:..."), configuration ("X1:01 X2:00 ...") or velocity
// ("V+001.9"). A Device ties these together and owns the mirrored state.
package ld2415h

// DefaultFrameCapacity is large enough for the longest legal frame, the
// ten-pair configuration response (59 bytes).
const DefaultFrameCapacity = 64

// FrameBuffer accumulates raw bytes until a line-feed terminator completes a
// frame. Padding bytes (0x00, 0xFF) and carriage returns are dropped. Bytes
// past capacity are discarded and the frame is marked as overflowed.
type FrameBuffer struct {
	buf        []byte
	length     int
	frameLen   int
	overflow   bool
	overflowed bool
}

// NewFrameBuffer returns an empty buffer holding at most capacity bytes per
// frame. A non-positive capacity selects DefaultFrameCapacity.
func NewFrameBuffer(capacity int) *FrameBuffer {
	if capacity <= 0 {
		capacity = DefaultFrameCapacity
	}
	return &FrameBuffer{buf: make([]byte, capacity)}
}

// Accumulate consumes one byte and reports whether a complete frame is ready.
// When it returns true the frame is available from Frame until the next call
// to Accumulate appends a byte.
func (f *FrameBuffer) Accumulate(c byte) bool {
	switch c {
	case 0x00, 0xFF, '\r':
		return false

	case '\n':
		if f.length == 0 {
			// empty line
			return false
		}
		f.frameLen = f.length
		f.overflowed = f.overflow
		f.clearFrom(f.length)
		return true

	default:
		if f.length >= len(f.buf) {
			f.overflow = true
			return false
		}
		// the previous frame is no longer readable once filling resumes
		f.frameLen = 0
		f.overflowed = false
		f.buf[f.length] = c
		f.length++
		return false
	}
}

// Frame returns the most recently completed frame without its terminator. The
// returned slice aliases the buffer and is only valid until the next byte is
// appended.
func (f *FrameBuffer) Frame() []byte {
	return f.buf[:f.frameLen]
}

// Overflowed reports whether the most recently completed frame was truncated
// because it exceeded the buffer capacity.
func (f *FrameBuffer) Overflowed() bool {
	return f.overflowed
}

// Len returns the number of bytes accumulated toward the frame in progress.
func (f *FrameBuffer) Len() int {
	return f.length
}

// Cap returns the maximum frame length.
func (f *FrameBuffer) Cap() int {
	return len(f.buf)
}

// Reset discards any partially accumulated frame.
func (f *FrameBuffer) Reset() {
	f.clearFrom(0)
	f.frameLen = 0
	f.overflowed = false
}

// clearFrom zero-fills the buffer from pos to capacity and rewinds the fill
// counter so the next frame starts at the beginning.
func (f *FrameBuffer) clearFrom(pos int) {
	clear(f.buf[pos:])
	f.length = 0
	f.overflow = false
}
