package main

import (
	"context"
	"flag"
	"os"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/factorybrain/api/internal/app/migrate"
	"github.com/factorybrain/api/internal/domain"
	"github.com/factorybrain/api/internal/repository/postgres"
	"github.com/factorybrain/api/pkg/config"
	"github.com/factorybrain/api/pkg/logger"
)

func main() {
	command := flag.String("command", "up", "command (up|status|down|seed|clear|stats)")
	timeout := flag.Duration("timeout", time.Minute, "command timeout")
	target := flag.Int64("target", 0, "target version for down command (optional)")
	flag.Parse()

	cfg := config.LoadAPIConfig()
	log := logger.New("migrate", slog.LevelInfo)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	dsn := cfg.DatabaseURL()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, dsn, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migration runner", "error", err)
		os.Exit(1)
	}
	defer runner.Close()

	switch *command {
	case "up":
		if err := runner.Ensure(ctx); err != nil {
			log.Error("failed to apply migrations", "error", err)
			os.Exit(1)
		}
	case "status":
		if err := runner.Status(ctx); err != nil {
			log.Error("failed to fetch migration status", "error", err)
			os.Exit(1)
		}
	case "down":
		if err := runner.Down(ctx, *target); err != nil {
			log.Error("failed to roll back migrations", "error", err)
			os.Exit(1)
		}
	case "seed":
		if err := seed(ctx, pool, log); err != nil {
			log.Error("failed to seed predictions", "error", err)
			os.Exit(1)
		}
	case "clear":
		repo := postgres.New(pool)
		deleted, err := repo.DeleteAllPredictions(ctx)
		if err != nil {
			log.Error("failed to clear predictions", "error", err)
			os.Exit(1)
		}
		log.Info("predictions cleared", "deleted", deleted)
	case "stats":
		if err := reportStats(ctx, pool, log); err != nil {
			log.Error("failed to read stats", "error", err)
			os.Exit(1)
		}
	default:
		log.Error("unsupported command", "command", *command)
		os.Exit(1)
	}

	log.Info("command completed", "command", *command)
}

// seed inserts a small fixed batch of records so a fresh environment has
// something on the dashboard.
func seed(ctx context.Context, pool *pgxpool.Pool, log *slog.Logger) error {
	repo := postgres.New(pool)
	samples := []domain.PredictionRecord{
		{
			MachineType:        domain.MachineTypeMedium,
			AirTemperature:     298.1,
			ProcessTemperature: 308.6,
			RotationalSpeed:    1551,
			Torque:             42.8,
			ToolWear:           0,
			Status:             domain.StatusNormal,
		},
		{
			MachineType:        domain.MachineTypeLow,
			AirTemperature:     298.2,
			ProcessTemperature: 308.7,
			RotationalSpeed:    1408,
			Torque:             46.3,
			ToolWear:           3,
			Status:             domain.StatusNormal,
		},
		{
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
	}

	for i := range samples {
		samples[i].ID = uuid.NewString()
		if err := repo.InsertPrediction(ctx, &samples[i]); err != nil {
			return err
		}
	}
	log.Info("seeded predictions", "count", len(samples))
	return nil
}

func reportStats(ctx context.Context, pool *pgxpool.Pool, log *slog.Logger) error {
	repo := postgres.New(pool)
	counts, err := repo.StatusCounts(ctx)
	if err != nil {
		return err
	}
	modes, err := repo.FailureModeTotals(ctx)
	if err != nil {
		return err
	}
	log.Info("status counts",
		"total", counts.Total,
		"normal", counts.Normal,
		"failure", counts.Failure,
		"machine", counts.Machine,
	)
	log.Info("failure mode totals",
		"twf", modes.TWF,
		"hdf", modes.HDF,
		"pwf", modes.PWF,
		"osf", modes.OSF,
		"rnf", modes.RNF,
	)
	return nil
}
