package serialmux

import (
	"go.bug.st/serial"

	"github.com/banshee-data/ld2415h/internal/ld2415h"
)

// OpenSerialPort opens a real serial port at path using go.bug.st/serial.
func OpenSerialPort(path string, opts PortOptions) (SerialPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	return serial.Open(path, mode)
}

// NewRealSerialMux creates a SerialMux instance backed by a real serial port at the
// given path using the provided serial options.
func NewRealSerialMux(path string, opts PortOptions, deviceOpts ...ld2415h.Option) (*SerialMux[SerialPorter], error) {
	return NewSerialMuxWithOpener(OpenSerialPort, path, opts, deviceOpts...)
}

// NewSerialMuxWithOpener opens path with open and wraps the port in a
// SerialMux.
func NewSerialMuxWithOpener(open SerialPortOpener, path string, opts PortOptions, deviceOpts ...ld2415h.Option) (*SerialMux[SerialPorter], error) {
	port, err := open(path, opts)
	if err != nil {
		return nil, err
	}
	return NewSerialMux(port, deviceOpts...), nil
}
