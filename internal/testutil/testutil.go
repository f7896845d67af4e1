// Package testutil provides shared test helpers and LD2415H wire fixtures.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// Lines a factory-fresh LD2415H sends after a configuration request.
const (
	FirmwareFrame = "No.:20230801E v5.0"
	ConfigFrame   = "X1:01 X2:00 X3:05 X4:01 X5:00 X6:00 X7:05 X8:03 X9:01 X0:01"
)

// StartupStream is the byte stream seen on the UART at power on: line noise
// followed by the firmware and configuration responses.
const StartupStream = "\xFF\xFF\r\n" + FirmwareFrame + "\r\n" + ConfigFrame + "\r\n"

// LocalRequest creates a test request that appears to come from localhost, so
// it passes the tsweb debug access check.
func LocalRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// Quiet is a logger that discards everything.
func Quiet(string, ...interface{}) {}
