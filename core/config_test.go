package core

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero cruise", func(c *Config) { c.CruiseSpeed = 0 }, "cruise_speed"},
		{"corner above cruise", func(c *Config) { c.CornerSpeed = 6 }, "corner_speed"},
		{"corner equal cruise", func(c *Config) { c.CornerSpeed = c.CruiseSpeed }, "corner_speed"},
		{"negative acceptance", func(c *Config) { c.AcceptanceRadius = -1 }, "acceptance_radius"},
		{"unknown yaw mode", func(c *Config) { c.YawMode = YawMode(42) }, "yaw_mode"},
		{"zero max speed", func(c *Config) { c.MaxSpeedXY = 0 }, "max_speed_xy"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
			assert.Contains(t, err.Error(), tc.field)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "task.json")
	body := `{"cruise_speed": 8, "corner_speed": 2, "yaw_mode": "along_track"}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 8.0, cfg.CruiseSpeed)
	assert.Equal(t, 2.0, cfg.CornerSpeed)
	assert.Equal(t, YawModeAlongTrack, cfg.YawMode)
	assert.Equal(t, DefaultConfig().AcceptanceRadius, cfg.AcceptanceRadius, "missing fields keep defaults")
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
		return p
	}

	_, err := LoadConfig(write("task.yaml", "cruise_speed: 3"))
	assert.ErrorContains(t, err, ".json extension")

	_, err = LoadConfig(write("bad.json", `{"yaw_mode": "sideways"}`))
	assert.ErrorContains(t, err, "unknown yaw mode")

	_, err = LoadConfig(write("invalid.json", `{"corner_speed": 9}`))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = LoadConfig(filepath.Join(dir, "missing.json"))
	assert.ErrorContains(t, err, "read config")
}

func TestYawModeRoundTrip(t *testing.T) {
	for m := YawModeTowardWaypoint; m <= YawModeLocked; m++ {
		parsed, err := ParseYawMode(strings.ToUpper(m.String()))
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}
}

func TestEffectiveCruiseSpeed(t *testing.T) {
	cfg := DefaultConfig()
	for _, tc := range []struct {
		name     string
		override float64
		want     float64
	}{
		{"no override", math.NaN(), cfg.CruiseSpeed},
		{"negative", -1, cfg.CruiseSpeed},
		{"zero", 0, cfg.CruiseSpeed},
		{"slower", 2.5, 2.5},
		{"faster within limit", 8, 8},
		{"at limit", cfg.MaxSpeedXY, cfg.MaxSpeedXY},
		{"above limit", cfg.MaxSpeedXY + 0.5, cfg.CruiseSpeed},
		{"infinite", math.Inf(1), cfg.CruiseSpeed},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, cfg.EffectiveCruiseSpeed(tc.override))
		})
	}
}
