package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/ld2415h/internal/db"
	"github.com/banshee-data/ld2415h/internal/serialmux"
	"github.com/banshee-data/ld2415h/internal/timeutil"
	"github.com/banshee-data/ld2415h/internal/units"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const (
	defaultReadingsLimit = 100
	maxReadingsLimit     = 5000
	defaultHours         = 24
)

type Server struct {
	m     serialmux.SerialMuxInterface
	db    *db.DB
	units string
	clock timeutil.Clock
}

func NewServer(m serialmux.SerialMuxInterface, db *db.DB, units string) *Server {
	return &Server{
		m:     m,
		db:    db,
		units: units,
		clock: timeutil.RealClock{},
	}
}

// SetClock replaces the clock used to resolve ?hours= windows.
func (s *Server) SetClock(c timeutil.Clock) {
	s.clock = c
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/radar/reading", s.showReading)
	mux.HandleFunc("/api/radar/config", s.showRadarConfig)
	mux.HandleFunc("/api/radar/config/request", s.requestRadarConfig)
	mux.HandleFunc("/api/radar/readings", s.listReadings)
	mux.HandleFunc("/api/radar/stats", s.showSpeedStats)
	mux.HandleFunc("/api/radar/chart", s.showSpeedChart)
	mux.HandleFunc("/api/radar/histogram.png", s.showSpeedHistogram)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any, what string) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write "+what)
	}
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, map[string]interface{}{
		"units":       s.units,
		"valid_units": units.ValidUnits,
	}, "config")
}

// ReadingAPI is a velocity reading expressed in the server's display units.
type ReadingAPI struct {
	Speed     float64   `json:"speed"`
	Direction string    `json:"direction"`
	Units     string    `json:"units"`
	Time      time.Time `json:"time"`
}

func (s *Server) showReading(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	v, ok := s.m.Device().Reading()
	if !ok {
		s.writeJSONError(w, http.StatusNotFound, "No reading received yet")
		return
	}
	s.writeJSON(w, ReadingAPI{
		Speed:     units.ConvertSpeed(units.ReadingToMPS(v), s.units),
		Direction: v.Direction.String(),
		Units:     s.units,
		Time:      v.Time,
	}, "reading")
}

func (s *Server) showRadarConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, s.m.Device().Config(), "radar config")
}

func (s *Server) requestRadarConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if err := s.m.RequestConfig(); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to request radar config: %v", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "requested"})
}

func (s *Server) listReadings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := defaultReadingsLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > maxReadingsLimit {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	readings, err := s.db.Readings(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve readings: %v", err))
		return
	}

	out := make([]ReadingAPI, len(readings))
	for i, rd := range readings {
		out[i] = ReadingAPI{
			Speed:     units.ConvertSpeed(rd.SpeedMPS, s.units),
			Direction: rd.Direction,
			Units:     s.units,
			Time:      rd.RecordedAt,
		}
	}
	s.writeJSON(w, out, "readings")
}

// parseHours reads the ?hours= window, defaulting to a day.
func parseHours(r *http.Request) (int, error) {
	h := r.URL.Query().Get("hours")
	if h == "" {
		return defaultHours, nil
	}
	hours, err := strconv.Atoi(h)
	if err != nil || hours < 1 {
		return 0, fmt.Errorf("invalid 'hours' parameter")
	}
	return hours, nil
}

// speedsInWindow returns display-unit speeds recorded in the last hours.
func (s *Server) speedsInWindow(hours int) ([]float64, error) {
	since := s.clock.Now().Add(-time.Duration(hours) * time.Hour)
	speeds, err := s.db.SpeedsSince(since)
	if err != nil {
		return nil, err
	}
	for i := range speeds {
		speeds[i] = units.ConvertSpeed(speeds[i], s.units)
	}
	return speeds, nil
}

// SpeedStats summarises the speeds recorded in a window.
type SpeedStats struct {
	Hours    int     `json:"hours"`
	Count    int     `json:"count"`
	MaxSpeed float64 `json:"max_speed"`
	P50Speed float64 `json:"p50_speed"`
	P85Speed float64 `json:"p85_speed"`
	P98Speed float64 `json:"p98_speed"`
	Units    string  `json:"units"`
}

// computeSpeedStats sorts speeds in place and fills in the percentiles.
func computeSpeedStats(speeds []float64) SpeedStats {
	st := SpeedStats{Count: len(speeds)}
	if len(speeds) == 0 {
		return st
	}
	sort.Float64s(speeds)
	st.MaxSpeed = speeds[len(speeds)-1]
	st.P50Speed = stat.Quantile(0.50, stat.Empirical, speeds, nil)
	st.P85Speed = stat.Quantile(0.85, stat.Empirical, speeds, nil)
	st.P98Speed = stat.Quantile(0.98, stat.Empirical, speeds, nil)
	return st
}

func (s *Server) showSpeedStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	hours, err := parseHours(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'hours' parameter")
		return
	}
	speeds, err := s.speedsInWindow(hours)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve radar stats: %v", err))
		return
	}

	st := computeSpeedStats(speeds)
	st.Hours = hours
	st.Units = s.units
	s.writeJSON(w, st, "radar stats")
}
