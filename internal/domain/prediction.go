package domain

import "time"

// Overall status values reported by the oracle and stored on records.
const (
	StatusNormal  = "NORMAL"
	StatusFailure = "FAILURE"
)

// ModeFlags holds the five model-specific failure causes. Each flag is
// independent; any number of them may be set on a FAILURE classification.
type ModeFlags struct {
	TWF bool
	HDF bool
	PWF bool
	OSF bool
	RNF bool
}

// Classification is the oracle's verdict for one reading: the overall
// machine status plus the per-mode failure flags. Probabilities carries the
// per-mode confidence scores when the oracle reports them; it is
// informational only and never persisted.
type Classification struct {
	Status        string
	Modes         ModeFlags
	Probabilities map[string]float64
}

// FailureFlags is the client-facing shape of a classification outcome:
// the machine-level flag plus the five mode flags.
type FailureFlags struct {
	Machine bool `json:"machine"`
	TWF     bool `json:"twf"`
	HDF     bool `json:"hdf"`
	PWF     bool `json:"pwf"`
	OSF     bool `json:"osf"`
	RNF     bool `json:"rnf"`
}

// PredictionRecord is the durable, immutable result of one accepted
// prediction request. CreatedAt is assigned by the store on insert.
type PredictionRecord struct {
	ID                 string
	CreatedAt          time.Time
	MachineType        string
	AirTemperature     float64
	ProcessTemperature float64
	RotationalSpeed    int
	Torque             float64
	ToolWear           int
	Status             string
	FailureMachine     bool
	FailureTWF         bool
	FailureHDF         bool
	FailurePWF         bool
	FailureOSF         bool
	FailureRNF         bool
}

// Flags returns the record's failure flags in client-facing form.
func (r *PredictionRecord) Flags() FailureFlags {
	return FailureFlags{
		Machine: r.FailureMachine,
		TWF:     r.FailureTWF,
		HDF:     r.FailureHDF,
		PWF:     r.FailurePWF,
		OSF:     r.FailureOSF,
		RNF:     r.FailureRNF,
	}
}

// Reading reconstructs the sensor reading the record was built from.
func (r *PredictionRecord) Reading() SensorReading {
	return SensorReading{
		MachineType:        r.MachineType,
		AirTemperature:     r.AirTemperature,
		ProcessTemperature: r.ProcessTemperature,
		RotationalSpeed:    r.RotationalSpeed,
		Torque:             r.Torque,
		ToolWear:           r.ToolWear,
	}
}
