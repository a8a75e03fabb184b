package prediction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/factorybrain/api/internal/domain"
	"github.com/factorybrain/api/internal/repository"
)

// Classifier obtains a failure classification for one reading.
type Classifier interface {
	Classify(ctx context.Context, reading domain.SensorReading) (domain.Classification, error)
}

// FeedPublisher receives recorded predictions for live streaming. May be nil.
type FeedPublisher interface {
	Broadcast(payload []byte)
}

// ErrRecordingFailed means classification succeeded but the durable write
// did not. The caller must report failure: a prediction that is not
// recorded would silently drop out of every dashboard aggregate.
var ErrRecordingFailed = errors.New("prediction could not be recorded")

// ValidationError reports a rejected input field. The oracle is never
// contacted for readings that fail validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IngestInput is the decoded /predict payload. Pointer fields distinguish
// absent values from zero values.
type IngestInput struct {
	Type               *string  `json:"type"`
	AirTemperature     *float64 `json:"air_temperature"`
	ProcessTemperature *float64 `json:"process_temperature"`
	RotationalSpeed    *int     `json:"rotational_speed"`
	Torque             *float64 `json:"torque"`
	ToolWear           *int     `json:"tool_wear"`
}

// Reading validates the input and converts it into a SensorReading.
func (in IngestInput) Reading() (domain.SensorReading, error) {
	if in.Type == nil {
		return domain.SensorReading{}, &ValidationError{Field: "type", Reason: "required"}
	}
	machineType := domain.NormalizeMachineType(*in.Type)
	if !domain.ValidMachineType(machineType) {
		return domain.SensorReading{}, &ValidationError{Field: "type", Reason: "must be one of L, M, H"}
	}
	if in.AirTemperature == nil {
		return domain.SensorReading{}, &ValidationError{Field: "air_temperature", Reason: "required"}
	}
	if in.ProcessTemperature == nil {
		return domain.SensorReading{}, &ValidationError{Field: "process_temperature", Reason: "required"}
	}
	if in.RotationalSpeed == nil {
		return domain.SensorReading{}, &ValidationError{Field: "rotational_speed", Reason: "required"}
	}
	if in.Torque == nil {
		return domain.SensorReading{}, &ValidationError{Field: "torque", Reason: "required"}
	}
	if in.ToolWear == nil {
		return domain.SensorReading{}, &ValidationError{Field: "tool_wear", Reason: "required"}
	}
	return domain.SensorReading{
		MachineType:        machineType,
		AirTemperature:     *in.AirTemperature,
		ProcessTemperature: *in.ProcessTemperature,
		RotationalSpeed:    *in.RotationalSpeed,
		Torque:             *in.Torque,
		ToolWear:           *in.ToolWear,
	}, nil
}

// Result is the client-facing outcome of a completed ingestion. It is
// derived from the classification alone; Record additionally carries the
// persisted row for feeds and tests.
type Result struct {
	Status   string                   `json:"status"`
	Failures domain.FailureFlags      `json:"failures"`
	Record   *domain.PredictionRecord `json:"-"`
}

// Service runs the ingestion pipeline: validate, classify, record. It is
// stateless; any number of requests may run it concurrently.
type Service struct {
	repo         repository.PredictionRepository
	classifier   Classifier
	feed         FeedPublisher
	logger       *slog.Logger
	writeTimeout time.Duration
}

// New returns a prediction service.
func New(repo repository.PredictionRepository, classifier Classifier, feed FeedPublisher, logger *slog.Logger, writeTimeout time.Duration) Service {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return Service{
		repo:         repo,
		classifier:   classifier,
		feed:         feed,
		logger:       logger,
		writeTimeout: writeTimeout,
	}
}

// Ingest processes one inbound request end to end. Errors are typed:
// *ValidationError, the oracle client's error types, or ErrRecordingFailed.
func (s Service) Ingest(ctx context.Context, input IngestInput) (*Result, error) {
	reading, err := input.Reading()
	if err != nil {
		return nil, err
	}
	classification, err := s.classifier.Classify(ctx, reading)
	if err != nil {
		s.logger.Warn("classification failed", "machine_type", reading.MachineType, "error", err)
		return nil, err
	}
	record, err := s.Record(ctx, reading, classification)
	if err != nil {
		return nil, err
	}
	return &Result{
		Status:   classification.Status,
		Failures: record.Flags(),
		Record:   record,
	}, nil
}

// Record builds the durable record for a classified reading and writes it
// exactly once. The machine flag is derived, never taken from the oracle.
// The write deliberately outlives the request context: once a reading is
// classified, abandoning the insert on client disconnect would leave the
// aggregates missing a real outcome.
func (s Service) Record(ctx context.Context, reading domain.SensorReading, classification domain.Classification) (*domain.PredictionRecord, error) {
	record := &domain.PredictionRecord{
		ID:                 uuid.NewString(),
		MachineType:        reading.MachineType,
		AirTemperature:     reading.AirTemperature,
		ProcessTemperature: reading.ProcessTemperature,
		RotationalSpeed:    reading.RotationalSpeed,
		Torque:             reading.Torque,
		ToolWear:           reading.ToolWear,
		Status:             classification.Status,
		FailureMachine:     classification.Status == domain.StatusFailure,
		FailureTWF:         classification.Modes.TWF,
		FailureHDF:         classification.Modes.HDF,
		FailurePWF:         classification.Modes.PWF,
		FailureOSF:         classification.Modes.OSF,
		FailureRNF:         classification.Modes.RNF,
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
	defer cancel()
	if err := s.repo.InsertPrediction(writeCtx, record); err != nil {
		s.logger.Error("prediction insert failed", "prediction_id", record.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrRecordingFailed, err)
	}

	s.logger.Info("prediction recorded",
		"prediction_id", record.ID,
		"machine_type", record.MachineType,
		"status", record.Status,
	)
	s.publish(record)
	return record, nil
}

// feedEvent is the wire shape streamed to websocket subscribers.
type feedEvent struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Input     feedReading `json:"input"`
	Result    feedResult  `json:"result"`
}

type feedReading struct {
	Type               string  `json:"type"`
	AirTemperature     float64 `json:"air_temperature"`
	ProcessTemperature float64 `json:"process_temperature"`
	RotationalSpeed    int     `json:"rotational_speed"`
	Torque             float64 `json:"torque"`
	ToolWear           int     `json:"tool_wear"`
}

type feedResult struct {
	Status   string              `json:"status"`
	Failures domain.FailureFlags `json:"failures"`
}

func (s Service) publish(record *domain.PredictionRecord) {
	if s.feed == nil {
		return
	}
	event := feedEvent{
		ID:        record.ID,
		Timestamp: record.CreatedAt,
		Input: feedReading{
			Type:               record.MachineType,
			AirTemperature:     record.AirTemperature,
			ProcessTemperature: record.ProcessTemperature,
			RotationalSpeed:    record.RotationalSpeed,
			Torque:             record.Torque,
			ToolWear:           record.ToolWear,
		},
		Result: feedResult{
			Status:   record.Status,
			Failures: record.Flags(),
		},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("failed to encode feed event", "prediction_id", record.ID, "error", err)
		return
	}
	s.feed.Broadcast(payload)
}
