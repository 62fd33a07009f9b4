package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis-signal/internal/contracts"
)

// ErrContractNotFound is returned when no persisted contract exists for a symbol
var ErrContractNotFound = errors.New("contract not found")

// schemaDDL creates the tables written by SaveRun and read by calibration
const schemaDDL = `
CREATE SCHEMA IF NOT EXISTS signal;

CREATE TABLE IF NOT EXISTS signal.analysis_runs (
	run_id            TEXT PRIMARY KEY,
	symbol            TEXT NOT NULL,
	started_at        TIMESTAMPTZ NOT NULL,
	duration_ms       BIGINT NOT NULL,
	task_count        INT NOT NULL,
	success_count     INT NOT NULL,
	persistable       BOOLEAN NOT NULL,
	validation_errors JSONB,
	synthesis         JSONB
);

CREATE TABLE IF NOT EXISTS signal.task_results (
	run_id       TEXT NOT NULL REFERENCES signal.analysis_runs(run_id) ON DELETE CASCADE,
	task_name    TEXT NOT NULL,
	success      BOOLEAN NOT NULL,
	data         JSONB,
	error        TEXT,
	duration_ms  BIGINT NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, task_name)
);

CREATE TABLE IF NOT EXISTS signal.signal_contracts (
	run_id         TEXT PRIMARY KEY REFERENCES signal.analysis_runs(run_id) ON DELETE CASCADE,
	symbol         TEXT NOT NULL,
	recommendation TEXT NOT NULL,
	generated_at   TIMESTAMPTZ NOT NULL,
	confidence_raw DOUBLE PRECISION,
	ev_score_7d    DOUBLE PRECISION,
	payload        JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_signal_contracts_symbol ON signal.signal_contracts (symbol, generated_at DESC);

CREATE TABLE IF NOT EXISTS signal.signal_outcomes (
	run_id      TEXT NOT NULL REFERENCES signal.signal_contracts(run_id) ON DELETE CASCADE,
	horizon     TEXT NOT NULL,
	confidence  DOUBLE PRECISION NOT NULL,
	hit         BOOLEAN NOT NULL,
	resolved_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, horizon)
);
`

// Repository persists analysis runs
// ⭐ SSOT: 분석 결과 저장은 이 저장소에서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureSchema creates tables when missing
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveRun writes the run, its task results and, only when persistable, the contract.
// Everything happens in one transaction.
func (r *Repository) SaveRun(ctx context.Context, record *contracts.AnalysisRecord) error {
	row, err := newRunRow(record)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
		INSERT INTO signal.analysis_runs
			(run_id, symbol, started_at, duration_ms, task_count, success_count, persistable, validation_errors, synthesis)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id) DO UPDATE SET
			duration_ms = EXCLUDED.duration_ms,
			success_count = EXCLUDED.success_count,
			persistable = EXCLUDED.persistable,
			validation_errors = EXCLUDED.validation_errors,
			synthesis = EXCLUDED.synthesis`,
		row.RunID, row.Symbol, row.StartedAt, row.DurationMS, row.TaskCount, row.SuccessCount,
		row.Persistable, row.ValidationErrors, row.Synthesis,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if len(row.Tasks) > 0 {
		batch := &pgx.Batch{}
		for _, t := range row.Tasks {
			batch.Queue(`
				INSERT INTO signal.task_results
					(run_id, task_name, success, data, error, duration_ms, completed_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (run_id, task_name) DO UPDATE SET
					success = EXCLUDED.success,
					data = EXCLUDED.data,
					error = EXCLUDED.error,
					duration_ms = EXCLUDED.duration_ms,
					completed_at = EXCLUDED.completed_at`,
				row.RunID, t.Name, t.Success, t.Data, t.Error, t.DurationMS, t.CompletedAt)
		}
		br := tx.SendBatch(ctx, batch)
		for range row.Tasks {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("insert task result: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("close batch: %w", err)
		}
	}

	if c := row.Contract; c != nil {
		_, err = tx.Exec(ctx, `
			INSERT INTO signal.signal_contracts
				(run_id, symbol, recommendation, generated_at, confidence_raw, ev_score_7d, payload)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (run_id) DO UPDATE SET payload = EXCLUDED.payload`,
			row.RunID, c.Symbol, c.Recommendation, c.GeneratedAt, c.ConfidenceRaw, c.EVScore7D, c.Payload,
		)
		if err != nil {
			return fmt.Errorf("insert contract: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LatestContract returns the newest persisted contract for symbol
func (r *Repository) LatestContract(ctx context.Context, symbol string) (*contracts.SignalContract, error) {
	var payload []byte
	err := r.pool.QueryRow(ctx, `
		SELECT payload FROM signal.signal_contracts
		WHERE symbol = $1
		ORDER BY generated_at DESC
		LIMIT 1`, symbol).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrContractNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query latest contract: %w", err)
	}

	var c contracts.SignalContract
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, fmt.Errorf("decode contract: %w", err)
	}
	return &c, nil
}
