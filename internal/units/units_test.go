package units

import (
	"math"
	"testing"

	"github.com/banshee-data/ld2415h/internal/ld2415h"
)

func TestConvertSpeed(t *testing.T) {
	tests := []struct {
		name     string
		speedMPS float64
		units    string
		expected float64
	}{
		{"10 m/s to mph", 10.0, MPH, 22.3694},
		{"10 m/s to kmph", 10.0, KMPH, 36.0},
		{"10 m/s to kph", 10.0, KPH, 36.0},
		{"10 m/s to mps", 10.0, MPS, 10.0},
		{"unknown units default to mps", 10.0, "unknown", 10.0},
		{"highway speed 31.29 m/s to mph", 31.29, MPH, 70.0},
		{"city speed 13.89 m/s to kmph", 13.89, KMPH, 50.004},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertSpeed(tt.speedMPS, tt.units)
			if math.Abs(result-tt.expected) > 0.01 {
				t.Errorf("ConvertSpeed(%f, %s) = %f, want %f", tt.speedMPS, tt.units, result, tt.expected)
			}
		})
	}
}

func TestToMPS_RoundTrip(t *testing.T) {
	for _, unit := range ValidUnits {
		got := ConvertSpeed(ToMPS(42.5, unit), unit)
		if math.Abs(got-42.5) > 1e-9 {
			t.Errorf("ConvertSpeed(ToMPS(42.5, %s)) = %f", unit, got)
		}
	}
}

func TestFromDevice(t *testing.T) {
	tests := []struct {
		in   ld2415h.SpeedUnit
		want string
	}{
		{ld2415h.MetersPerSecond, MPS},
		{ld2415h.MilesPerHour, MPH},
		{ld2415h.KilometersPerHour, KPH},
	}
	for _, tt := range tests {
		if got := FromDevice(tt.in); got != tt.want {
			t.Errorf("FromDevice(%v) = %q, want %q", tt.in, got, tt.want)
		}
		if !IsValid(FromDevice(tt.in)) {
			t.Errorf("FromDevice(%v) returned an invalid unit", tt.in)
		}
	}
}

func TestReadingToMPS(t *testing.T) {
	v := ld2415h.Velocity{Speed: 36, Unit: ld2415h.KilometersPerHour}
	if got := ReadingToMPS(v); math.Abs(got-10) > 1e-9 {
		t.Errorf("ReadingToMPS(36 km/h) = %f, want 10", got)
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name     string
		unit     string
		expected bool
	}{
		{"valid mps", MPS, true},
		{"valid mph", MPH, true},
		{"valid kmph", KMPH, true},
		{"valid kph", KPH, true},
		{"invalid unit", "invalid", false},
		{"empty string", "", false},
		{"case sensitive", "MPH", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValid(tt.unit); got != tt.expected {
				t.Errorf("IsValid(%q) = %v, want %v", tt.unit, got, tt.expected)
			}
		})
	}
}
