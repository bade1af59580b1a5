package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/netwatch-io/console-api/internal/models"
)

// ExportRepository persists report-export job metadata.
type ExportRepository struct {
	db *sqlx.DB
}

// NewExportRepository constructs the repository.
func NewExportRepository(db *sqlx.DB) *ExportRepository {
	return &ExportRepository{db: db}
}

// Create inserts a queued export job.
func (r *ExportRepository) Create(ctx context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.Status == "" {
		job.Status = models.ExportStatusQueued
	}
	const query = `INSERT INTO export_jobs (id, params, status, created_by, created_at) VALUES (:id, :params, :status, :created_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create export job: %w", err)
	}
	return nil
}

// GetByID fetches a single job.
func (r *ExportRepository) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	const query = `SELECT id, params, status, result_path, created_by, created_at, finished_at, error_message FROM export_jobs WHERE id = $1 LIMIT 1`
	var job models.ExportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find export job: %w", err)
	}
	return &job, nil
}

// ListByUser returns the caller's jobs, newest first.
func (r *ExportRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.ExportJob, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT id, params, status, result_path, created_by, created_at, finished_at, error_message FROM export_jobs WHERE created_by = $1 ORDER BY created_at DESC LIMIT $2`
	var jobs []models.ExportJob
	if err := r.db.SelectContext(ctx, &jobs, query, userID, limit); err != nil {
		return nil, fmt.Errorf("list export jobs: %w", err)
	}
	return jobs, nil
}

// MarkProcessing transitions a queued job to PROCESSING.
func (r *ExportRepository) MarkProcessing(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE export_jobs SET status = $2 WHERE id = $1 AND status = $3`,
		id, models.ExportStatusProcessing, models.ExportStatusQueued,
	)
	if err != nil {
		return fmt.Errorf("mark export job processing: %w", err)
	}
	return requireRows(result)
}

// MarkFinished records the rendered artifact path.
func (r *ExportRepository) MarkFinished(ctx context.Context, id, resultPath string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE export_jobs SET status = $2, result_path = $3, finished_at = $4 WHERE id = $1`,
		id, models.ExportStatusFinished, resultPath, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("mark export job finished: %w", err)
	}
	return requireRows(result)
}

// MarkFailed records a terminal failure with its message.
func (r *ExportRepository) MarkFailed(ctx context.Context, id, message string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE export_jobs SET status = $2, error_message = $3, finished_at = $4 WHERE id = $1`,
		id, models.ExportStatusFailed, message, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("mark export job failed: %w", err)
	}
	return requireRows(result)
}
