// Serialmux provides an abstraction over the LD2415H radar's serial port. Raw
// bytes read from the port are pumped through an ld2415h.Device and every
// decoded event is fanned out to any number of subscribers. Commands to the
// radar are serialised through a single writer.
package serialmux

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/ld2415h/internal/ld2415h"
	"github.com/banshee-data/ld2415h/internal/monitoring"
	"github.com/banshee-data/ld2415h/internal/timeutil"
)

var ErrWriteFailed = fmt.Errorf("failed to write to serial port")

// readChunkSize bounds a single read from the port. Each chunk is fed to the
// device in full before the next read is handed over.
const readChunkSize = 256

// subscriberBuffer is the number of events a slow subscriber may lag behind
// before events are dropped for it.
const subscriberBuffer = 32

// SerialMux is a generic serial port multiplexer that allows multiple clients to
// subscribe to decoded radar events from a single serial port.
type SerialMux[T SerialPorter] struct {
	port         T
	device       *ld2415h.Device
	clock        timeutil.Clock
	subscribers  map[string]chan ld2415h.Event
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// SerialMuxInterface defines the interface for the SerialMux type.
type SerialMuxInterface interface {
	// Subscribe creates a new channel for receiving decoded events from the
	// radar. The channel ID is used to identify the unique channel when
	// unsubscribing.
	Subscribe() (string, chan ld2415h.Event)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// SendCommand writes the provided bytes to the serial port verbatim.
	SendCommand([]byte) error
	// RequestConfig asks the radar to report its firmware and settings.
	RequestConfig() error
	// Monitor reads bytes from the serial port and feeds them to the device
	// until the context is cancelled or the port fails.
	Monitor(context.Context) error
	// Poll re-requests the radar configuration every interval.
	Poll(context.Context, time.Duration) error
	// Device returns the decoder holding the mirrored radar state.
	Device() *ld2415h.Device
	// Close closes all subscribed channels and closes the serial port.
	Close() error

	// AttachAdminRoutes attaches admin debugging endpoints to the given HTTP
	// mux served at /debug/. These routes are accessible only over
	// localhost/via Tailscale and are not publicly accessible.
	AttachAdminRoutes(*http.ServeMux)
}

// NewSerialMux creates a SerialMux backed by port. deviceOpts configure the
// decoder; the mux registers itself as an observer to fan events out.
func NewSerialMux[T SerialPorter](port T, deviceOpts ...ld2415h.Option) *SerialMux[T] {
	s := &SerialMux[T]{
		port:        port,
		clock:       timeutil.RealClock{},
		subscribers: make(map[string]chan ld2415h.Event),
	}
	s.device = ld2415h.NewDevice(deviceOpts...)
	s.device.AddObserver(ld2415h.ObserverFunc(s.publish))
	return s
}

// SetClock replaces the clock driving Poll.
func (s *SerialMux[T]) SetClock(c timeutil.Clock) {
	s.clock = c
}

// Device returns the decoder holding the mirrored radar state.
func (s *SerialMux[T]) Device() *ld2415h.Device {
	return s.device
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SerialMux[T]) Subscribe() (string, chan ld2415h.Event) {
	id := randomID()
	ch := make(chan ld2415h.Event, subscriberBuffer)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// publish delivers e to every subscriber without blocking the byte pump.
func (s *SerialMux[T]) publish(e ld2415h.Event) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- e:
		default:
			// if the channel is full skip so as not to block the byte pump
		}
	}
}

// SendCommand writes command to the serial port as-is.
func (s *SerialMux[T]) SendCommand(command []byte) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	n, err := s.port.Write(command)
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// RequestConfig discards any partially received frame and sends the
// configuration request. The radar answers with a firmware line followed by
// a configuration line.
func (s *SerialMux[T]) RequestConfig() error {
	s.device.Reset()
	if err := s.SendCommand(ld2415h.ConfigRequestCommand()); err != nil {
		return fmt.Errorf("failed to request radar config: %w", err)
	}
	return nil
}

// Poll calls RequestConfig every interval until ctx is done. A non-positive
// interval disables polling and Poll returns immediately.
func (s *SerialMux[T]) Poll(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			if s.isClosing() {
				return nil
			}
			if err := s.RequestConfig(); err != nil {
				monitoring.Logf("%v", err)
			}
		}
	}
}

// Monitor drains bytes from the serial port into the device. A partially
// received frame is kept across reads until its terminator arrives.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	chunkChan := make(chan []byte)
	readErrChan := make(chan error, 1)

	// the blocking Read will not interfere with our outer loop awaiting
	// chunks & context cancellation.
	go func() {
		defer close(chunkChan)
		buf := make([]byte, readChunkSize)
		for {
			n, err := s.port.Read(buf)
			if n > 0 {
				chunk := append([]byte(nil), buf[:n]...)
				select {
				case chunkChan <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErrChan <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case chunk, ok := <-chunkChan:
			// if the channel is closed, we're done reading from the serial port
			if !ok {
				select {
				case err := <-readErrChan:
					if errors.Is(err, io.EOF) || s.isClosing() {
						return nil
					}
					return err
				default:
					return ctx.Err()
				}
			}
			if s.isClosing() {
				return nil
			}
			s.device.Feed(chunk)
		}
	}
}

func (s *SerialMux[T]) isClosing() bool {
	s.closingMu.Lock()
	defer s.closingMu.Unlock()
	return s.closing
}

func (s *SerialMux[T]) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return s.port.Close()
}

// radarState is the JSON body of the radar-state debug endpoint.
type radarState struct {
	Config  ld2415h.Config    `json:"config"`
	Reading *ld2415h.Velocity `json:"reading,omitempty"`
}

func deviceState(d *ld2415h.Device) radarState {
	state := radarState{Config: d.Config()}
	if v, ok := d.Reading(); ok {
		state.Reading = &v
	}
	return state
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("radar-state", "mirrored radar configuration and last reading", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(deviceState(s.device)); err != nil {
			http.Error(w, "Failed to encode radar state", http.StatusInternalServerError)
		}
	})

	// API endpoint to ask the radar for a configuration dump
	debug.HandleSilentFunc("request-config", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := s.RequestConfig(); err != nil {
			http.Error(w, "Failed to request config", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, "Requested radar configuration")
	})

	// API endpoint to write raw hex-encoded bytes to the serial port
	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.ReplaceAll(strings.TrimSpace(r.FormValue("command")), " ", "")
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		b, err := hex.DecodeString(command)
		if err != nil {
			http.Error(w, "Command must be hex encoded", http.StatusBadRequest)
			return
		}
		if err := s.SendCommand(b); err != nil {
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote command % X to serial port", b))
	})

	// API endpoint to issue Server-Side Events (SSE) for every decoded frame.
	debug.HandleFunc("tail", "live tail of decoded radar frames", func(w http.ResponseWriter, r *http.Request) {
		serveEventStream(w, r, s)
	})
}

// eventSource is the part of SerialMuxInterface needed to stream events.
type eventSource interface {
	Subscribe() (string, chan ld2415h.Event)
	Unsubscribe(string)
}

func serveEventStream(w http.ResponseWriter, r *http.Request, src eventSource) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	id, c := src.Subscribe()
	defer src.Unsubscribe(id)

	// Send initial ping to establish connection
	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	for {
		select {
		case event, ok := <-c:
			if !ok {
				// Channel closed, exit gracefully
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
