// Package stats computes dashboard aggregates. Every view is derived from
// the record store at request time; nothing here caches or mutates.
package stats

import (
	"context"
	"errors"
	"time"

	"log/slog"

	"github.com/factorybrain/api/internal/domain"
	"github.com/factorybrain/api/internal/repository"
)

const (
	// DefaultRecentLimit bounds the recent feed when the caller does not
	// ask for a specific size.
	DefaultRecentLimit = 10
	maxRecentLimit     = 500
)

// ErrInvalidLimit rejects non-positive or oversized feed limits.
var ErrInvalidLimit = errors.New("limit must be a positive integer no greater than 500")

// MachineHealth buckets the record set for the dashboard's health tiles.
type MachineHealth struct {
	Healthy  int64 `json:"healthy"`
	AtRisk   int64 `json:"atRisk"`
	Critical int64 `json:"critical"`
}

// FailureTotals carries per-mode failure sums.
type FailureTotals struct {
	TWF int64 `json:"twf"`
	HDF int64 `json:"hdf"`
	PWF int64 `json:"pwf"`
	OSF int64 `json:"osf"`
	RNF int64 `json:"rnf"`
}

// ReadingView is the input portion of a recent feed entry.
type ReadingView struct {
	Type               string  `json:"type"`
	AirTemperature     float64 `json:"air_temperature"`
	ProcessTemperature float64 `json:"process_temperature"`
	RotationalSpeed    int     `json:"rotational_speed"`
	Torque             float64 `json:"torque"`
	ToolWear           int     `json:"tool_wear"`
}

// ResultView is the outcome portion of a recent feed entry.
type ResultView struct {
	Status   string              `json:"status"`
	Failures domain.FailureFlags `json:"failures"`
}

// RecentPrediction is one reshaped entry of the recent activity feed.
type RecentPrediction struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Input     ReadingView `json:"input"`
	Result    ResultView  `json:"result"`
}

// Snapshot is the full dashboard payload, computed in one request so the
// client never sees counts and feed from different points in time mixed
// with an error.
type Snapshot struct {
	MachineHealth     MachineHealth      `json:"machineHealth"`
	TotalPredictions  int64              `json:"totalPredictions"`
	FailureStats      FailureTotals      `json:"failureStats"`
	RecentPredictions []RecentPrediction `json:"recentPredictions"`
}

// Service answers dashboard queries. Stateless; parameterized only by the
// record repository.
type Service struct {
	repo   repository.PredictionRepository
	logger *slog.Logger
}

// New returns a stats service.
func New(repo repository.PredictionRepository, logger *slog.Logger) Service {
	return Service{repo: repo, logger: logger}
}

// HealthSummary buckets all records into healthy, at-risk and critical.
func (s Service) HealthSummary(ctx context.Context) (MachineHealth, error) {
	counts, err := s.repo.StatusCounts(ctx)
	if err != nil {
		return MachineHealth{}, err
	}
	return s.healthFrom(counts), nil
}

// healthFrom derives the health buckets from raw status counts. atRisk is
// failures that did not trip the machine-level flag; it clamps at zero when
// the stored flags are inconsistent.
func (s Service) healthFrom(counts domain.StatusCounts) MachineHealth {
	atRisk := counts.Failure - counts.Machine
	if atRisk < 0 {
		s.logger.Warn("machine flag count exceeds failure count",
			"failure", counts.Failure,
			"machine", counts.Machine,
		)
		atRisk = 0
	}
	return MachineHealth{
		Healthy:  counts.Normal,
		AtRisk:   atRisk,
		Critical: counts.Machine,
	}
}

// FailureModeTotals sums each failure mode across all records.
func (s Service) FailureModeTotals(ctx context.Context) (FailureTotals, error) {
	totals, err := s.repo.FailureModeTotals(ctx)
	if err != nil {
		return FailureTotals{}, err
	}
	return FailureTotals{
		TWF: totals.TWF,
		HDF: totals.HDF,
		PWF: totals.PWF,
		OSF: totals.OSF,
		RNF: totals.RNF,
	}, nil
}

// RecentFeed returns the newest records first, reshaped for the dashboard.
// The limit must be explicit and positive; silently defaulting here could
// return unbounded rows to a caller that sent garbage.
func (s Service) RecentFeed(ctx context.Context, limit int) ([]RecentPrediction, error) {
	if limit <= 0 || limit > maxRecentLimit {
		return nil, ErrInvalidLimit
	}
	records, err := s.repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}
	feed := make([]RecentPrediction, 0, len(records))
	for i := range records {
		feed = append(feed, recentView(&records[i]))
	}
	return feed, nil
}

// DashboardSnapshot computes the whole dashboard in one call. Either every
// part succeeds or the caller gets an error; partial aggregates are never
// returned as if complete.
func (s Service) DashboardSnapshot(ctx context.Context) (*Snapshot, error) {
	counts, err := s.repo.StatusCounts(ctx)
	if err != nil {
		return nil, err
	}
	failureStats, err := s.FailureModeTotals(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := s.RecentFeed(ctx, DefaultRecentLimit)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		MachineHealth:     s.healthFrom(counts),
		TotalPredictions:  counts.Total,
		FailureStats:      failureStats,
		RecentPredictions: recent,
	}, nil
}

func recentView(record *domain.PredictionRecord) RecentPrediction {
	return RecentPrediction{
		ID:        record.ID,
		Timestamp: record.CreatedAt,
		Input: ReadingView{
			Type:               record.MachineType,
			AirTemperature:     record.AirTemperature,
			ProcessTemperature: record.ProcessTemperature,
			RotationalSpeed:    record.RotationalSpeed,
			Torque:             record.Torque,
			ToolWear:           record.ToolWear,
		},
		Result: ResultView{
			Status:   record.Status,
			Failures: record.Flags(),
		},
	}
}
