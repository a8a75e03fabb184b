// Package oracle wraps the external ML classification service. The service
// accepts one reading per call and answers with an overall machine status
// plus a per-failure-mode verdict nested under a per-mode object:
//
//	{"overall_status": "FAILURE",
//	 "predictions": {"twf": {"failure": 0, "failure_probability": 0.12},
//	                 "hdf": {"failure": 1, "failure_probability": 0.87}, ...}}
//
// A missing mode object means the mode did not fire. The older flat shape
// ("predictions": {"twf": true}) is not accepted; one wire contract only.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/factorybrain/api/internal/domain"
)

// wireFieldByReading maps each ingestion field name to the field name the
// oracle's input schema expects. Values pass through unchanged; the _K /
// _rpm / _Nm / _min suffixes describe units the caller already uses, no
// conversion happens here.
var wireFieldByReading = map[string]string{
	"type":                "Type",
	"air_temperature":     "Air_temperature_K",
	"process_temperature": "Process_temperature_K",
	"rotational_speed":    "Rotational_speed_rpm",
	"torque":              "Torque_Nm",
	"tool_wear":           "Tool_wear_min",
}

const maxErrorBody = 4 << 10

// Client issues classification calls to the oracle. Single attempt,
// fail fast; retry policy, if any, belongs to the caller.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient constructs a Client against the oracle base URL with a bounded
// per-call timeout.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// RejectedError means the oracle answered but with a non-success status or
// an unusable body.
type RejectedError struct {
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("oracle rejected request: status %d", e.StatusCode)
}

// UnreachableError means the call never produced an oracle response:
// connection refused, DNS failure, timeout.
type UnreachableError struct {
	Err error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("oracle unreachable: %v", e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// wireBool tolerates the oracle encoding verdicts as JSON booleans or as
// 0/1 numbers (the model service emits ints).
type wireBool bool

func (b *wireBool) UnmarshalJSON(data []byte) error {
	switch strings.TrimSpace(string(data)) {
	case "true", "1":
		*b = true
	case "false", "0", "null":
		*b = false
	default:
		return fmt.Errorf("invalid boolean value %q", data)
	}
	return nil
}

type wireVerdict struct {
	Failure            wireBool `json:"failure"`
	FailureProbability float64  `json:"failure_probability"`
}

type wireResponse struct {
	OverallStatus string                 `json:"overall_status"`
	Predictions   map[string]wireVerdict `json:"predictions"`
}

func buildPayload(reading domain.SensorReading) map[string]any {
	return map[string]any{
		wireFieldByReading["type"]:                reading.MachineType,
		wireFieldByReading["air_temperature"]:     reading.AirTemperature,
		wireFieldByReading["process_temperature"]: reading.ProcessTemperature,
		wireFieldByReading["rotational_speed"]:    reading.RotationalSpeed,
		wireFieldByReading["torque"]:              reading.Torque,
		wireFieldByReading["tool_wear"]:           reading.ToolWear,
	}
}

// Classify submits one reading and returns the oracle's verdict. Errors are
// *RejectedError or *UnreachableError; no record-keeping happens here.
func (c *Client) Classify(ctx context.Context, reading domain.SensorReading) (domain.Classification, error) {
	body, err := json.Marshal(buildPayload(reading))
	if err != nil {
		return domain.Classification{}, fmt.Errorf("encode oracle payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return domain.Classification{}, fmt.Errorf("build oracle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Classification{}, &UnreachableError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return domain.Classification{}, &RejectedError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return domain.Classification{}, &RejectedError{StatusCode: resp.StatusCode, Body: fmt.Sprintf("malformed response: %v", err)}
	}
	if wire.OverallStatus != domain.StatusNormal && wire.OverallStatus != domain.StatusFailure {
		return domain.Classification{}, &RejectedError{StatusCode: resp.StatusCode, Body: fmt.Sprintf("unknown overall_status %q", wire.OverallStatus)}
	}

	classification := domain.Classification{
		Status: wire.OverallStatus,
		Modes: domain.ModeFlags{
			TWF: bool(wire.Predictions["twf"].Failure),
			HDF: bool(wire.Predictions["hdf"].Failure),
			PWF: bool(wire.Predictions["pwf"].Failure),
			OSF: bool(wire.Predictions["osf"].Failure),
			RNF: bool(wire.Predictions["rnf"].Failure),
		},
	}
	if len(wire.Predictions) > 0 {
		probabilities := make(map[string]float64, len(wire.Predictions))
		for mode, verdict := range wire.Predictions {
			probabilities[mode] = verdict.FailureProbability
		}
		classification.Probabilities = probabilities
		if c.logger != nil {
			c.logger.Debug("oracle classification", "status", classification.Status, "probabilities", probabilities)
		}
	}
	return classification, nil
}

// Healthy probes the oracle's liveness route.
func (c *Client) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &UnreachableError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RejectedError{StatusCode: resp.StatusCode}
	}
	return nil
}
