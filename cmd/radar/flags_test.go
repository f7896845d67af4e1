package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/ld2415h/internal/serialmux"
)

func parse(t *testing.T, args ...string) (*options, *flag.FlagSet) {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	o := registerFlags(fs)
	require.NoError(t, fs.Parse(args))
	return o, fs
}

func TestFlagDefaults(t *testing.T) {
	o, fs := parse(t)
	cfg, err := o.serviceConfig(fs)
	require.NoError(t, err)

	assert.False(t, o.devMode)
	assert.Equal(t, ":8080", cfg.GetListen())
	assert.Equal(t, "/dev/ttyUSB0", cfg.GetPort())
	assert.Equal(t, "mph", cfg.GetDisplayUnits())
	assert.Equal(t, 10*time.Minute, cfg.GetConfigPollInterval())
	assert.False(t, cfg.GetDisableRadar())
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "radar.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: /dev/ttyAMA0\nlisten: \":9000\"\ndisplay_units: kph\n"), 0o644))

	o, fs := parse(t, "--config", path, "--units", "mps", "--config-poll-interval", "0s")
	cfg, err := o.serviceConfig(fs)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyAMA0", cfg.GetPort())
	assert.Equal(t, ":9000", cfg.GetListen())
	assert.Equal(t, "mps", cfg.GetDisplayUnits())
	assert.Equal(t, time.Duration(0), cfg.GetConfigPollInterval())
}

func TestInvalidFlagValue(t *testing.T) {
	o, fs := parse(t, "--units", "furlongs")
	_, err := o.serviceConfig(fs)
	assert.Error(t, err)
}

func TestMissingConfigFile(t *testing.T) {
	o, fs := parse(t, "--config", filepath.Join(t.TempDir(), "nope.toml"))
	_, err := o.serviceConfig(fs)
	assert.Error(t, err)
}

func TestDisableRadarFlag(t *testing.T) {
	o, fs := parse(t, "--disable-radar")
	cfg, err := o.serviceConfig(fs)
	require.NoError(t, err)

	m, err := newRadarSerial(cfg, false)
	require.NoError(t, err)
	defer m.Close()
	_, ok := m.(*serialmux.DisabledSerialMux)
	assert.True(t, ok, "expected a DisabledSerialMux, got %T", m)
}
