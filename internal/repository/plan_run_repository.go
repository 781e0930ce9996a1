package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-council-planner/internal/models"
)

const planRunSummaryColumns = `id, fingerprint, source, teacher_column, max_group_size, group_count, invalid_rows, created_at`

// PlanRunRepository persists planner runs in PostgreSQL.
type PlanRunRepository struct {
	db *sqlx.DB
}

// NewPlanRunRepository constructs the repository.
func NewPlanRunRepository(db *sqlx.DB) *PlanRunRepository {
	return &PlanRunRepository{db: db}
}

// Create inserts a run, filling the id, counters and timestamp when unset.
func (r *PlanRunRepository) Create(ctx context.Context, run *models.PlanRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	run.GroupCount = len(run.Result.Groups)
	run.InvalidRows = run.Result.InvalidRows

	const query = `INSERT INTO council_plan_runs (id, fingerprint, source, teacher_column, max_group_size, group_count, invalid_rows, result, created_at)
VALUES (:id, :fingerprint, :source, :teacher_column, :max_group_size, :group_count, :invalid_rows, :result, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("create plan run: %w", err)
	}
	return nil
}

// GetByID returns a run with its full result.
func (r *PlanRunRepository) GetByID(ctx context.Context, id string) (*models.PlanRun, error) {
	const query = `SELECT ` + planRunSummaryColumns + `, result
FROM council_plan_runs WHERE id = $1`
	var run models.PlanRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, fmt.Errorf("get plan run: %w", err)
	}
	return &run, nil
}

// ListRecent returns the newest runs first, without their result bodies.
func (r *PlanRunRepository) ListRecent(ctx context.Context, limit int) ([]models.PlanRunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT ` + planRunSummaryColumns + `
FROM council_plan_runs ORDER BY created_at DESC LIMIT $1`
	runs := make([]models.PlanRunSummary, 0)
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("list plan runs: %w", err)
	}
	return runs, nil
}

// DeleteCreatedBefore prunes runs older than cutoff and reports how many went.
func (r *PlanRunRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM council_plan_runs WHERE created_at < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete plan runs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete plan runs: %w", err)
	}
	return affected, nil
}
