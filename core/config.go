package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// YawMode selects how the heading setpoint is derived.
type YawMode int

const (
	// YawModeTowardWaypoint points the nose from the vehicle to the current target.
	YawModeTowardWaypoint YawMode = iota
	// YawModeTowardHome points the nose at the home position.
	YawModeTowardHome
	// YawModeAwayFromHome points the nose away from the home position.
	YawModeAwayFromHome
	// YawModeAlongTrack follows the direction of the previous->target segment.
	YawModeAlongTrack
	// YawModeTowardNext points from the target toward the next waypoint.
	YawModeTowardNext
	// YawModeLocked keeps whatever heading was last set.
	YawModeLocked
)

var yawModeNames = [...]string{
	YawModeTowardWaypoint: "toward_waypoint",
	YawModeTowardHome:     "toward_home",
	YawModeAwayFromHome:   "away_from_home",
	YawModeAlongTrack:     "along_track",
	YawModeTowardNext:     "toward_next",
	YawModeLocked:         "locked",
}

func (m YawMode) String() string {
	if m >= 0 && int(m) < len(yawModeNames) {
		return yawModeNames[m]
	}
	return fmt.Sprintf("YawMode(%d)", int(m))
}

// ParseYawMode converts a mode name into a YawMode.
func ParseYawMode(value string) (YawMode, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for i, name := range yawModeNames {
		if name == normalized {
			return YawMode(i), nil
		}
	}
	return YawModeTowardWaypoint, fmt.Errorf("unknown yaw mode %q", value)
}

// UnmarshalJSON allows yaw modes to be loaded from JSON strings.
func (m *YawMode) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return fmt.Errorf("yaw mode must be a string: %w", err)
	}
	parsed, err := ParseYawMode(name)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MarshalJSON writes the yaw mode name.
func (m YawMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// Config is the per-cycle parameter snapshot. It is passed by value; the host
// may swap in a new one between cycles.
type Config struct {
	// CruiseSpeed is the horizontal cruise speed in m/s.
	CruiseSpeed float64 `json:"cruise_speed"`
	// CornerSpeed is the speed at a 90 degree corner in m/s.
	CornerSpeed float64 `json:"corner_speed"`
	// AcceptanceRadius is the distance at which a waypoint counts as reached.
	AcceptanceRadius float64 `json:"acceptance_radius"`
	YawMode          YawMode `json:"yaw_mode"`
	// MaxSpeedXY is the vehicle's horizontal speed limit in m/s.
	MaxSpeedXY float64 `json:"max_speed_xy"`
}

// DefaultConfig returns the stock multicopter parameters.
func DefaultConfig() Config {
	return Config{
		CruiseSpeed:      5,
		CornerSpeed:      3,
		AcceptanceRadius: 2,
		YawMode:          YawModeTowardWaypoint,
		MaxSpeedXY:       12,
	}
}

// EffectiveCruiseSpeed resolves the cruise speed requested by a waypoint. An
// override that is finite, positive and within MaxSpeedXY replaces
// CruiseSpeed; anything else leaves the configured value.
func (c Config) EffectiveCruiseSpeed(override float64) float64 {
	if isFinite(override) && override > 0 && override <= c.MaxSpeedXY {
		return override
	}
	return c.CruiseSpeed
}

// Validate checks the configuration for values the task cannot work with.
func (c Config) Validate() error {
	var errs []error
	if !(c.CruiseSpeed > 0) || math.IsInf(c.CruiseSpeed, 0) {
		errs = append(errs, fmt.Errorf("cruise_speed must be > 0, got %v", c.CruiseSpeed))
	}
	if !(c.CornerSpeed > 0) || c.CornerSpeed >= c.CruiseSpeed {
		errs = append(errs, fmt.Errorf("corner_speed must be in (0, cruise_speed), got %v", c.CornerSpeed))
	}
	if !(c.AcceptanceRadius > 0) || math.IsInf(c.AcceptanceRadius, 0) {
		errs = append(errs, fmt.Errorf("acceptance_radius must be > 0, got %v", c.AcceptanceRadius))
	}
	if c.YawMode < 0 || int(c.YawMode) >= len(yawModeNames) {
		errs = append(errs, fmt.Errorf("yaw_mode %d out of range", int(c.YawMode)))
	}
	if !(c.MaxSpeedXY > 0) {
		errs = append(errs, fmt.Errorf("max_speed_xy must be > 0, got %v", c.MaxSpeedXY))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// LoadConfig reads a JSON config from disk. Fields missing from the file keep
// their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return cfg, fmt.Errorf("config file must have .json extension, got %q", ext)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
