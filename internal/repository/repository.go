package repository

import (
	"context"

	"github.com/factorybrain/api/internal/domain"
)

// PredictionRepository persists classification outcomes and answers the
// aggregate queries the dashboard is built from. Records are insert-only;
// DeleteAllPredictions exists for administrative tooling and never runs in
// the serving path.
type PredictionRepository interface {
	InsertPrediction(ctx context.Context, record *domain.PredictionRecord) error
	StatusCounts(ctx context.Context) (domain.StatusCounts, error)
	FailureModeTotals(ctx context.Context) (domain.FailureModeTotals, error)
	ListRecent(ctx context.Context, limit int) ([]domain.PredictionRecord, error)
	DeleteAllPredictions(ctx context.Context) (int64, error)
}
