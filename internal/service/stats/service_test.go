package stats

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"log/slog"

	"github.com/factorybrain/api/internal/domain"
)

type stubRepository struct {
	counts      domain.StatusCounts
	countsErr   error
	modes       domain.FailureModeTotals
	modesErr    error
	recent      []domain.PredictionRecord
	recentErr   error
	recentLimit int
}

func (s *stubRepository) InsertPrediction(ctx context.Context, record *domain.PredictionRecord) error {
	return nil
}

func (s *stubRepository) StatusCounts(ctx context.Context) (domain.StatusCounts, error) {
	return s.counts, s.countsErr
}

func (s *stubRepository) FailureModeTotals(ctx context.Context) (domain.FailureModeTotals, error) {
	return s.modes, s.modesErr
}

func (s *stubRepository) ListRecent(ctx context.Context, limit int) ([]domain.PredictionRecord, error) {
	s.recentLimit = limit
	if s.recentErr != nil {
		return nil, s.recentErr
	}
	if limit < len(s.recent) {
		return s.recent[:limit], nil
	}
	return s.recent, nil
}

func (s *stubRepository) DeleteAllPredictions(ctx context.Context) (int64, error) {
	return 0, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHealthSummaryBuckets(t *testing.T) {
	repo := &stubRepository{counts: domain.StatusCounts{Total: 10, Normal: 6, Failure: 4, Machine: 3}}
	svc := New(repo, testLogger())

	health, err := svc.HealthSummary(context.Background())
	if err != nil {
		t.Fatalf("HealthSummary returned error: %v", err)
	}
	want := MachineHealth{Healthy: 6, AtRisk: 1, Critical: 3}
	if health != want {
		t.Errorf("health = %+v, want %+v", health, want)
	}
	if health.Healthy+health.AtRisk+health.Critical != repo.counts.Total {
		t.Error("health buckets do not sum to total")
	}
}

func TestHealthSummaryClampsInconsistentCounts(t *testing.T) {
	// More machine flags than FAILURE rows should never happen, but a
	// negative bucket must not reach the dashboard.
	repo := &stubRepository{counts: domain.StatusCounts{Total: 5, Normal: 2, Failure: 2, Machine: 3}}
	svc := New(repo, testLogger())

	health, err := svc.HealthSummary(context.Background())
	if err != nil {
		t.Fatalf("HealthSummary returned error: %v", err)
	}
	if health.AtRisk != 0 {
		t.Errorf("atRisk = %d, want 0", health.AtRisk)
	}
	if health.Critical != 3 {
		t.Errorf("critical = %d, want 3", health.Critical)
	}
}

func TestFailureModeTotals(t *testing.T) {
	repo := &stubRepository{modes: domain.FailureModeTotals{TWF: 1, HDF: 2, PWF: 3, OSF: 4, RNF: 5}}
	svc := New(repo, testLogger())

	totals, err := svc.FailureModeTotals(context.Background())
	if err != nil {
		t.Fatalf("FailureModeTotals returned error: %v", err)
	}
	want := FailureTotals{TWF: 1, HDF: 2, PWF: 3, OSF: 4, RNF: 5}
	if totals != want {
		t.Errorf("totals = %+v, want %+v", totals, want)
	}
}

func TestRecentFeedRejectsInvalidLimits(t *testing.T) {
	svc := New(&stubRepository{}, testLogger())
	for _, limit := range []int{0, -1, 501} {
		if _, err := svc.RecentFeed(context.Background(), limit); !errors.Is(err, ErrInvalidLimit) {
			t.Errorf("limit %d: expected ErrInvalidLimit, got %v", limit, err)
		}
	}
}

func TestRecentFeedReshapesRecords(t *testing.T) {
	created := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	repo := &stubRepository{recent: []domain.PredictionRecord{
		{
			ID:                 "rec-1",
			CreatedAt:          created,
			MachineType:        domain.MachineTypeHigh,
			AirTemperature:     298.4,
			ProcessTemperature: 308.9,
			RotationalSpeed:    1282,
			Torque:             60.7,
			ToolWear:           216,
			Status:             domain.StatusFailure,
			FailureMachine:     true,
			FailureOSF:         true,
		},
	}}
	svc := New(repo, testLogger())

	feed, err := svc.RecentFeed(context.Background(), 25)
	if err != nil {
		t.Fatalf("RecentFeed returned error: %v", err)
	}
	if repo.recentLimit != 25 {
		t.Errorf("repository queried with limit %d, want 25", repo.recentLimit)
	}
	if len(feed) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(feed))
	}

	entry := feed[0]
	if entry.ID != "rec-1" || !entry.Timestamp.Equal(created) {
		t.Errorf("unexpected entry identity: %+v", entry)
	}
	if entry.Input.Type != "H" || entry.Input.ToolWear != 216 {
		t.Errorf("unexpected entry input: %+v", entry.Input)
	}
	if entry.Result.Status != domain.StatusFailure || !entry.Result.Failures.Machine || !entry.Result.Failures.OSF {
		t.Errorf("unexpected entry result: %+v", entry.Result)
	}
}

func TestDashboardSnapshot(t *testing.T) {
	repo := &stubRepository{
		counts: domain.StatusCounts{Total: 3, Normal: 2, Failure: 1, Machine: 1},
		modes:  domain.FailureModeTotals{OSF: 1},
		recent: []domain.PredictionRecord{
			{ID: "rec-1", Status: domain.StatusNormal, MachineType: domain.MachineTypeLow},
		},
	}
	svc := New(repo, testLogger())

	snapshot, err := svc.DashboardSnapshot(context.Background())
	if err != nil {
		t.Fatalf("DashboardSnapshot returned error: %v", err)
	}
	if snapshot.TotalPredictions != 3 {
		t.Errorf("total = %d, want 3", snapshot.TotalPredictions)
	}
	if snapshot.MachineHealth != (MachineHealth{Healthy: 2, AtRisk: 0, Critical: 1}) {
		t.Errorf("unexpected machine health: %+v", snapshot.MachineHealth)
	}
	if snapshot.FailureStats != (FailureTotals{OSF: 1}) {
		t.Errorf("unexpected failure stats: %+v", snapshot.FailureStats)
	}
	if len(snapshot.RecentPredictions) != 1 {
		t.Fatalf("expected 1 recent entry, got %d", len(snapshot.RecentPredictions))
	}
	if repo.recentLimit != DefaultRecentLimit {
		t.Errorf("snapshot queried recent with limit %d, want %d", repo.recentLimit, DefaultRecentLimit)
	}
}

func TestDashboardSnapshotFailsClosed(t *testing.T) {
	wantErr := errors.New("connection reset")
	repo := &stubRepository{modesErr: wantErr}
	svc := New(repo, testLogger())

	if _, err := svc.DashboardSnapshot(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("expected repository error, got %v", err)
	}
}
