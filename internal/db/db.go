package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/ld2415h/internal/ld2415h"
	"github.com/banshee-data/ld2415h/internal/units"
)

type DB struct {
	*sql.DB
}

// NewDB opens (or creates) the sqlite database at path and applies any
// pending migrations.
func NewDB(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

func fromUnixSeconds(s float64) time.Time {
	return time.UnixMicro(int64(math.Round(s * 1e6))).UTC()
}

// StartSession records the start of a monitoring run on port and returns its
// ID. Readings and config snapshots are grouped by session.
func (db *DB) StartSession(port string, startedAt time.Time) (string, error) {
	id := uuid.New().String()
	_, err := db.Exec(
		`INSERT INTO radar_sessions (session_id, port, started_at) VALUES (?, ?, ?)`,
		id, port, unixSeconds(startedAt),
	)
	if err != nil {
		return "", fmt.Errorf("failed to start session: %w", err)
	}
	return id, nil
}

// Reading is a stored velocity reading.
type Reading struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Speed      float64   `json:"speed"`
	SpeedMPS   float64   `json:"speed_mps"`
	Direction  string    `json:"direction"`
	Unit       string    `json:"unit"`
	RecordedAt time.Time `json:"recorded_at"`
}

// RecordReading stores v along with its speed normalised to m/s.
func (db *DB) RecordReading(sessionID string, v ld2415h.Velocity) error {
	_, err := db.Exec(
		`INSERT INTO radar_readings (session_id, speed, speed_mps, direction, unit, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, v.Speed, units.ReadingToMPS(v), v.Direction.String(), units.FromDevice(v.Unit), unixSeconds(v.Time),
	)
	if err != nil {
		return fmt.Errorf("failed to record reading: %w", err)
	}
	return nil
}

// Readings returns up to limit of the most recent readings, newest first.
func (db *DB) Readings(limit int) ([]Reading, error) {
	rows, err := db.Query(
		`SELECT reading_id, session_id, speed, speed_mps, direction, unit, recorded_at
		FROM radar_readings
		ORDER BY recorded_at DESC, reading_id DESC
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var readings []Reading
	for rows.Next() {
		var r Reading
		var recordedAt float64
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Speed, &r.SpeedMPS, &r.Direction, &r.Unit, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		r.RecordedAt = fromUnixSeconds(recordedAt)
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// SpeedsSince returns the m/s speed of every reading recorded at or after
// since, oldest first.
func (db *DB) SpeedsSince(since time.Time) ([]float64, error) {
	rows, err := db.Query(
		`SELECT speed_mps FROM radar_readings WHERE recorded_at >= ? ORDER BY recorded_at ASC`,
		unixSeconds(since),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query speeds: %w", err)
	}
	defer rows.Close()

	var speeds []float64
	for rows.Next() {
		var s float64
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan speed: %w", err)
		}
		speeds = append(speeds, s)
	}
	return speeds, rows.Err()
}

// ConfigSnapshot is a stored copy of the radar's mirrored configuration.
type ConfigSnapshot struct {
	ID         int64          `json:"id"`
	SessionID  string         `json:"session_id"`
	Config     ld2415h.Config `json:"config"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// RecordConfig stores a snapshot of cfg.
func (db *DB) RecordConfig(sessionID string, cfg ld2415h.Config, at time.Time) error {
	_, err := db.Exec(
		`INSERT INTO radar_config_snapshots (
			session_id, firmware, min_speed, angle_compensation, sensitivity,
			tracking_mode, sample_rate, unit, vibration_correction,
			relay_duration, relay_speed, negotiation_mode, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, cfg.Firmware, cfg.MinSpeed, cfg.AngleCompensation, cfg.Sensitivity,
		cfg.TrackingMode.Code(), cfg.SampleRate, cfg.Unit.Code(), cfg.VibrationCorrection,
		cfg.RelayDuration, cfg.RelaySpeed, cfg.NegotiationMode.Code(), unixSeconds(at),
	)
	if err != nil {
		return fmt.Errorf("failed to record config: %w", err)
	}
	return nil
}

// LatestConfig returns the most recent config snapshot, or nil if none has
// been recorded.
func (db *DB) LatestConfig() (*ConfigSnapshot, error) {
	var s ConfigSnapshot
	var trackingMode, unit, negotiationMode uint8
	var recordedAt float64
	err := db.QueryRow(
		`SELECT snapshot_id, session_id, firmware, min_speed, angle_compensation, sensitivity,
			tracking_mode, sample_rate, unit, vibration_correction,
			relay_duration, relay_speed, negotiation_mode, recorded_at
		FROM radar_config_snapshots
		ORDER BY recorded_at DESC, snapshot_id DESC
		LIMIT 1`,
	).Scan(&s.ID, &s.SessionID, &s.Config.Firmware, &s.Config.MinSpeed, &s.Config.AngleCompensation,
		&s.Config.Sensitivity, &trackingMode, &s.Config.SampleRate, &unit, &s.Config.VibrationCorrection,
		&s.Config.RelayDuration, &s.Config.RelaySpeed, &negotiationMode, &recordedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest config: %w", err)
	}

	// stored codes went through the same coercion on the way in; decode them
	// the same way on the way out
	s.Config.TrackingMode, _ = ld2415h.CoerceTrackingMode(trackingMode)
	s.Config.Unit, _ = ld2415h.CoerceSpeedUnit(unit)
	s.Config.NegotiationMode, _ = ld2415h.CoerceNegotiationMode(negotiationMode)
	s.RecordedAt = fromUnixSeconds(recordedAt)
	return &s, nil
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://radar.db", db.DB, &tailsql.DBOptions{
		Label: "Radar DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupPath := fmt.Sprintf("%s/ld2415h-backup-%d.db", os.TempDir(), time.Now().Unix())
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		// close the backup file after sending it
		// and remove it from the filesystem
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", "radar-backup.db"))
		w.Header().Set("Content-Type", "application/gzip")

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			log.Printf("Failed to write backup file: %v", err)
		}
	}))
}
