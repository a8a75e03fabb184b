package domain

import "strings"

// Machine quality variants accepted by the prediction models.
const (
	MachineTypeLow    = "L"
	MachineTypeMedium = "M"
	MachineTypeHigh   = "H"
)

// SensorReading is one normalized measurement submitted for classification.
// It carries no identity; identity is assigned when the classified reading
// is recorded.
type SensorReading struct {
	MachineType        string
	AirTemperature     float64
	ProcessTemperature float64
	RotationalSpeed    int
	Torque             float64
	ToolWear           int
}

// NormalizeMachineType uppercases and trims a submitted machine type.
func NormalizeMachineType(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}

// ValidMachineType reports whether t is a recognized machine quality variant.
func ValidMachineType(t string) bool {
	switch t {
	case MachineTypeLow, MachineTypeMedium, MachineTypeHigh:
		return true
	}
	return false
}
