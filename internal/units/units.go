// Package units provides shared constants, validation and conversion for
// speed units.
package units

import (
	"github.com/banshee-data/ld2415h/internal/ld2415h"
)

// Unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "mps, mph, kmph, kph"
}

const mpsPerMPH = 0.44704

// FromDevice returns the unit name for the radar's configured unit of measure.
func FromDevice(u ld2415h.SpeedUnit) string {
	switch u {
	case ld2415h.MilesPerHour:
		return MPH
	case ld2415h.KilometersPerHour:
		return KPH
	default:
		return MPS
	}
}

// ToMPS converts a speed reported in the given unit to meters per second.
// The database stores speeds in m/s.
func ToMPS(speed float64, unit string) float64 {
	switch unit {
	case MPH:
		return speed * mpsPerMPH
	case KMPH, KPH:
		return speed / 3.6
	default:
		return speed
	}
}

// ReadingToMPS converts a decoded radar reading to meters per second.
func ReadingToMPS(v ld2415h.Velocity) float64 {
	return ToMPS(v.Speed, FromDevice(v.Unit))
}

// ConvertSpeed converts a speed from meters per second to the target units.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedMPS / mpsPerMPH
	case KMPH, KPH:
		return speedMPS * 3.6
	default:
		return speedMPS
	}
}
