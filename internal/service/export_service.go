package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/netwatch-io/console-api/internal/dto"
	"github.com/netwatch-io/console-api/internal/models"
	appErrors "github.com/netwatch-io/console-api/pkg/errors"
	"github.com/netwatch-io/console-api/pkg/export"
	"github.com/netwatch-io/console-api/pkg/jobs"
	"github.com/netwatch-io/console-api/pkg/storage"
)

// exportMaxRows bounds how many report rows a single export renders.
const exportMaxRows = 5000

type reportSource interface {
	ListHistory(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryEntry, int, error)
}

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]models.ExportJob, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkFinished(ctx context.Context, id, resultPath string) error
	MarkFailed(ctx context.Context, id, message string) error
}

type exportFileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix  string
	ResultTTL  time.Duration
	MaxRetries int
}

// ExportDownload aggregates resolved download data.
type ExportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ExportFormat
	ExpiresAt time.Time
}

// ExportService manages asynchronous report exports: job creation, queue
// handling, rendering, and token-gated downloads.
type ExportService struct {
	jobs      exportJobStore
	report    reportSource
	storage   exportFileStorage
	queue     jobDispatcher
	signer    *storage.SignedURLSigner
	csv       csvRenderer
	pdf       pdfRenderer
	validator *validator.Validate
	activity  activityRecorder
	logger    *zap.Logger
	cfg       ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(jobStore exportJobStore, report reportSource, fileStore exportFileStorage, queue jobDispatcher, signer *storage.SignedURLSigner, activity activityRecorder, validate *validator.Validate, logger *zap.Logger, cfg ExportConfig) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &ExportService{
		jobs:      jobStore,
		report:    report,
		storage:   fileStore,
		queue:     queue,
		signer:    signer,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		validator: validate,
		activity:  activity,
		logger:    logger,
		cfg:       cfg,
	}
}

// CreateJob persists an export job and enqueues it for processing.
func (s *ExportService) CreateJob(ctx context.Context, req dto.CreateExportRequest, actorID string, meta models.LoginRequest) (*dto.ExportJobResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload")
	}

	params := models.ExportJobParams{
		Format:       models.ExportFormat(req.Format),
		Account:      req.Account,
		IsLocked:     req.IsLocked,
		CreatedFrom:  req.CreatedFrom,
		CreatedTo:    req.CreatedTo,
		ModifiedFrom: req.ModifiedFrom,
		ModifiedTo:   req.ModifiedTo,
	}
	if req.Role != "" {
		role := models.UserRole(req.Role)
		if !role.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role filter")
		}
		params.Role = &role
	}

	job := &models.ExportJob{
		Params:    params,
		Status:    models.ExportStatusQueued,
		CreatedBy: actorID,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(params.Format)}); err != nil {
		if markErr := s.jobs.MarkFailed(ctx, job.ID, "failed to enqueue job"); markErr != nil {
			s.logger.Warn("failed to mark unenqueued job failed", zap.Error(markErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}

	if err := s.activity.CreateActivityLog(ctx, &models.ActivityLog{
		UserID:     &actorID,
		Action:     models.ActivityActionExportRequest,
		Resource:   "exports",
		ResourceID: &job.ID,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record export request", zap.Error(err))
	}

	return &dto.ExportJobResponse{ID: job.ID, Status: string(job.Status)}, nil
}

// GetStatus reports job state. The download URL is only minted once the job
// finished, so polling clients follow a single field.
func (s *ExportService) GetStatus(ctx context.Context, id, actorID string, role models.UserRole) (*dto.ExportJobResponse, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if job.CreatedBy != actorID && !role.AtLeast(models.RoleAdmin) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export job belongs to another user")
	}

	resp := &dto.ExportJobResponse{ID: job.ID, Status: string(job.Status), Error: job.ErrorMessage}
	if job.Status == models.ExportStatusFinished && job.ResultPath != nil {
		token, expiresAt, err := s.signer.Generate(job.ID, *job.ResultPath)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
		}
		url := fmt.Sprintf("%s/exports/download/%s", strings.TrimRight(s.cfg.APIPrefix, "/"), token)
		resp.DownloadURL = &url
		resp.ExpiresAt = &expiresAt
	}
	return resp, nil
}

// List returns the caller's recent export jobs.
func (s *ExportService) List(ctx context.Context, actorID string) ([]models.ExportJob, error) {
	jobs, err := s.jobs.ListByUser(ctx, actorID, 20)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list export jobs")
	}
	return jobs, nil
}

// ResolveDownload validates the token and opens the stored export file.
func (s *ExportService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	jobID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if job.Status != models.ExportStatusFinished || job.ResultPath == nil || *job.ResultPath != relPath {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export not ready")
	}

	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &ExportDownload{
		File:      file,
		Filename:  filepath.Base(relPath),
		Format:    job.Params.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// Handle processes a queue job: render the report snapshot and persist the
// artifact. Errors are retried by the queue; the final failure is recorded on
// the job row.
func (s *ExportService) Handle(ctx context.Context, job jobs.Job) error {
	record, err := s.jobs.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if err := s.jobs.MarkProcessing(ctx, job.ID); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	payload, err := s.render(ctx, record)
	if err != nil {
		if job.Attempt >= s.cfg.MaxRetries {
			if markErr := s.jobs.MarkFailed(ctx, job.ID, err.Error()); markErr != nil {
				s.logger.Warn("failed to mark export job failed", zap.String("job_id", job.ID), zap.Error(markErr))
			}
		}
		return err
	}

	filename := fmt.Sprintf("audit_report_%s.%s", time.Now().UTC().Format("20060102_150405"), record.Params.Format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		if markErr := s.jobs.MarkFailed(ctx, job.ID, err.Error()); markErr != nil {
			s.logger.Warn("failed to mark export job failed", zap.String("job_id", job.ID), zap.Error(markErr))
		}
		return err
	}

	return s.jobs.MarkFinished(ctx, job.ID, relPath)
}

// Cleanup removes stored artifacts older than the configured TTL.
func (s *ExportService) Cleanup() ([]string, error) {
	return s.storage.CleanupOlderThan(s.cfg.ResultTTL)
}

// StartCleanup boots a goroutine that purges expired exports periodically.
func (s *ExportService) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed, err := s.Cleanup(); err != nil {
					s.logger.Warn("export cleanup failed", zap.Error(err))
				} else if len(removed) > 0 {
					s.logger.Info("export cleanup removed files", zap.Int("count", len(removed)))
				}
			}
		}
	}()
}

func (s *ExportService) render(ctx context.Context, record *models.ExportJob) ([]byte, error) {
	filter := record.Params.Filter()
	filter.Page = 1
	filter.PageSize = exportMaxRows
	entries, _, err := s.report.ListHistory(ctx, filter)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]string, 0, len(entries))
	for _, entry := range entries {
		locked := "no"
		if entry.IsLocked {
			locked = "yes"
		}
		rows = append(rows, map[string]string{
			"Account":       entry.Account,
			"Full Name":     entry.FullName,
			"Role":          string(entry.Role),
			"Description":   entry.Description,
			"Locked":        locked,
			"Created At":    entry.CreatedAt.UTC().Format(time.RFC3339),
			"Last Modified": entry.LastModified.UTC().Format(time.RFC3339),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Account", "Full Name", "Role", "Description", "Locked", "Created At", "Last Modified"},
		Rows:    rows,
	}

	switch record.Params.Format {
	case models.ExportFormatCSV:
		return s.csv.Render(dataset)
	case models.ExportFormatPDF:
		return s.pdf.Render(dataset, "Audit Report")
	default:
		return nil, fmt.Errorf("unsupported format %s", record.Params.Format)
	}
}
