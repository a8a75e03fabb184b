package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/factorybrain/api/internal/domain"
	"github.com/factorybrain/api/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var _ repository.PredictionRepository = (*Repository)(nil)

const recordColumns = `id, created_at, machine_type, air_temperature, process_temperature,
	rotational_speed, torque, tool_wear, status,
	failure_machine, failure_twf, failure_hdf, failure_pwf, failure_osf, failure_rnf`

// InsertPrediction writes one record as a single atomic insert and fills in
// the server-assigned creation timestamp.
func (r *Repository) InsertPrediction(ctx context.Context, record *domain.PredictionRecord) error {
	const query = `INSERT INTO predictions
		(id, machine_type, air_temperature, process_temperature, rotational_speed, torque, tool_wear, status,
		 failure_machine, failure_twf, failure_hdf, failure_pwf, failure_osf, failure_rnf)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at`
	err := r.pool.QueryRow(ctx, query,
		record.ID,
		record.MachineType,
		record.AirTemperature,
		record.ProcessTemperature,
		record.RotationalSpeed,
		record.Torque,
		record.ToolWear,
		record.Status,
		record.FailureMachine,
		record.FailureTWF,
		record.FailureHDF,
		record.FailurePWF,
		record.FailureOSF,
		record.FailureRNF,
	).Scan(&record.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repository.ErrDuplicateID
		}
		return err
	}
	return nil
}

// StatusCounts computes the status distribution in one scan.
func (r *Repository) StatusCounts(ctx context.Context) (domain.StatusCounts, error) {
	const query = `SELECT
		COUNT(*),
		COUNT(*) FILTER (WHERE status = $1),
		COUNT(*) FILTER (WHERE status = $2),
		COUNT(*) FILTER (WHERE failure_machine)
		FROM predictions`
	var counts domain.StatusCounts
	row := r.pool.QueryRow(ctx, query, domain.StatusNormal, domain.StatusFailure)
	if err := row.Scan(&counts.Total, &counts.Normal, &counts.Failure, &counts.Machine); err != nil {
		return domain.StatusCounts{}, err
	}
	return counts, nil
}

// FailureModeTotals sums each failure mode flag across all records.
func (r *Repository) FailureModeTotals(ctx context.Context) (domain.FailureModeTotals, error) {
	const query = `SELECT
		COUNT(*) FILTER (WHERE failure_twf),
		COUNT(*) FILTER (WHERE failure_hdf),
		COUNT(*) FILTER (WHERE failure_pwf),
		COUNT(*) FILTER (WHERE failure_osf),
		COUNT(*) FILTER (WHERE failure_rnf)
		FROM predictions`
	var totals domain.FailureModeTotals
	row := r.pool.QueryRow(ctx, query)
	if err := row.Scan(&totals.TWF, &totals.HDF, &totals.PWF, &totals.OSF, &totals.RNF); err != nil {
		return domain.FailureModeTotals{}, err
	}
	return totals, nil
}

// ListRecent returns the newest records first, ties broken by id so the
// ordering is stable when timestamps collide.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]domain.PredictionRecord, error) {
	const query = `SELECT ` + recordColumns + `
		FROM predictions ORDER BY created_at DESC, id DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.PredictionRecord, 0, limit)
	for rows.Next() {
		var rec domain.PredictionRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.CreatedAt,
			&rec.MachineType,
			&rec.AirTemperature,
			&rec.ProcessTemperature,
			&rec.RotationalSpeed,
			&rec.Torque,
			&rec.ToolWear,
			&rec.Status,
			&rec.FailureMachine,
			&rec.FailureTWF,
			&rec.FailureHDF,
			&rec.FailurePWF,
			&rec.FailureOSF,
			&rec.FailureRNF,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteAllPredictions removes every record. Admin/test tooling only.
func (r *Repository) DeleteAllPredictions(ctx context.Context) (int64, error) {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM predictions`)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}
