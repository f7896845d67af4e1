package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/ld2415h/internal/db"
	"github.com/banshee-data/ld2415h/internal/ld2415h"
	"github.com/banshee-data/ld2415h/internal/serialmux"
	"github.com/banshee-data/ld2415h/internal/testutil"
)

func TestRadarEndToEnd(t *testing.T) {
	d, err := db.NewDB(t.TempDir() + "/test_radar.db")
	require.NoError(t, err)
	defer func() {
		if err := d.Close(); err != nil {
			t.Errorf("Failed to close test database: %v", err)
		}
	}()

	sessionID, err := d.StartSession("fake", time.Now())
	require.NoError(t, err)

	radarSerial := serialmux.NewMockSerialMux([]string{"V+036.0", "V-018.0"}, 5*time.Millisecond,
		ld2415h.WithLogger(testutil.Quiet))
	defer radarSerial.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		recordEvents(ctx, radarSerial, d, sessionID)
	}()
	go func() {
		defer wg.Done()
		radarSerial.Monitor(ctx)
	}()

	require.NoError(t, radarSerial.RequestConfig())

	require.Eventually(t, func() bool {
		snap, err := d.LatestConfig()
		if err != nil || snap == nil || snap.Config.Firmware == "" {
			return false
		}
		readings, err := d.Readings(10)
		return err == nil && len(readings) >= 2
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	wg.Wait()

	snap, err := d.LatestConfig()
	require.NoError(t, err)
	want := ld2415h.Config{
		Firmware:            "20230801E v5.0",
		MinSpeed:            1,
		Sensitivity:         5,
		TrackingMode:        ld2415h.Approaching,
		Unit:                ld2415h.KilometersPerHour,
		VibrationCorrection: 5,
		RelayDuration:       3,
		RelaySpeed:          1,
		NegotiationMode:     ld2415h.CustomAgreement,
	}
	if diff := cmp.Diff(want, snap.Config); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}

	readings, err := d.Readings(100)
	require.NoError(t, err)
	for _, r := range readings {
		assert.Equal(t, sessionID, r.SessionID)
		assert.Contains(t, []string{"approaching", "retreating"}, r.Direction)
	}

	// readings taken after the config arrived are in km/h
	var kph []db.Reading
	for _, r := range readings {
		if r.Unit == "kph" {
			kph = append(kph, r)
		}
	}
	if len(kph) > 0 {
		got := kph[0]
		wantMPS := map[float64]float64{36: 10, 18: 5}[got.Speed]
		if diff := cmp.Diff(wantMPS, got.SpeedMPS, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
			t.Errorf("speed_mps mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestNewHandler(t *testing.T) {
	d, err := db.NewDB(t.TempDir() + "/handler.db")
	require.NoError(t, err)
	defer d.Close()

	radarSerial := serialmux.NewDisabledSerialMux()
	defer radarSerial.Close()
	h := newHandler(radarSerial, d, "kph")

	for path, wantType := range map[string]string{
		"/api/config":       "application/json",
		"/metrics":          "text/plain",
		"/debug/radar-state": "application/json",
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, testutil.LocalRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Header().Get("Content-Type"), wantType, path)
	}
}
