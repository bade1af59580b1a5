package service

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/netwatch-io/console-api/internal/dto"
	"github.com/netwatch-io/console-api/internal/models"
	appErrors "github.com/netwatch-io/console-api/pkg/errors"
	"github.com/netwatch-io/console-api/pkg/jobs"
	"github.com/netwatch-io/console-api/pkg/storage"
)

type exportJobStoreStub struct {
	jobs   map[string]*models.ExportJob
	nextID int
}

func newExportJobStoreStub() *exportJobStoreStub {
	return &exportJobStoreStub{jobs: make(map[string]*models.ExportJob)}
}

func (s *exportJobStoreStub) Create(ctx context.Context, job *models.ExportJob) error {
	s.nextID++
	job.ID = fmt.Sprintf("job-%d", s.nextID)
	job.CreatedAt = time.Now()
	s.jobs[job.ID] = job
	return nil
}

func (s *exportJobStoreStub) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	if job, ok := s.jobs[id]; ok {
		clone := *job
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (s *exportJobStoreStub) ListByUser(ctx context.Context, userID string, limit int) ([]models.ExportJob, error) {
	var result []models.ExportJob
	for _, job := range s.jobs {
		if job.CreatedBy == userID {
			result = append(result, *job)
		}
	}
	return result, nil
}

func (s *exportJobStoreStub) MarkProcessing(ctx context.Context, id string) error {
	job, ok := s.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	job.Status = models.ExportStatusProcessing
	return nil
}

func (s *exportJobStoreStub) MarkFinished(ctx context.Context, id, resultPath string) error {
	job, ok := s.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	job.Status = models.ExportStatusFinished
	job.ResultPath = &resultPath
	return nil
}

func (s *exportJobStoreStub) MarkFailed(ctx context.Context, id, message string) error {
	job, ok := s.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	job.Status = models.ExportStatusFailed
	job.ErrorMessage = &message
	return nil
}

type reportSourceStub struct {
	entries []models.HistoryEntry
	err     error
}

func (s *reportSourceStub) ListHistory(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryEntry, int, error) {
	if s.err != nil {
		return nil, 0, s.err
	}
	return s.entries, len(s.entries), nil
}

type dispatcherStub struct {
	enqueued []jobs.Job
	fail     bool
}

func (d *dispatcherStub) Enqueue(job jobs.Job) error {
	if d.fail {
		return fmt.Errorf("queue full")
	}
	d.enqueued = append(d.enqueued, job)
	return nil
}

func newTestExportService(t *testing.T, store *exportJobStoreStub, report *reportSourceStub, queue *dispatcherStub) *ExportService {
	t.Helper()
	fileStore, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	return NewExportService(store, report, fileStore, queue, signer, &activityStub{}, nil, nil, ExportConfig{APIPrefix: "/api/v1"})
}

func TestExportServiceCreateJob(t *testing.T) {
	store := newExportJobStoreStub()
	queue := &dispatcherStub{}
	svc := newTestExportService(t, store, &reportSourceStub{}, queue)

	resp, err := svc.CreateJob(context.Background(), dto.CreateExportRequest{Format: "csv"}, "admin-1", models.LoginRequest{})
	require.NoError(t, err)
	require.Equal(t, string(models.ExportStatusQueued), resp.Status)
	require.Len(t, queue.enqueued, 1)
	require.Equal(t, resp.ID, queue.enqueued[0].ID)

	_, err = svc.CreateJob(context.Background(), dto.CreateExportRequest{Format: "xlsx"}, "admin-1", models.LoginRequest{})
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.CreateJob(context.Background(), dto.CreateExportRequest{Format: "csv", Role: "WIZARD"}, "admin-1", models.LoginRequest{})
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestExportServiceEnqueueFailureMarksJobFailed(t *testing.T) {
	store := newExportJobStoreStub()
	queue := &dispatcherStub{fail: true}
	svc := newTestExportService(t, store, &reportSourceStub{}, queue)

	_, err := svc.CreateJob(context.Background(), dto.CreateExportRequest{Format: "csv"}, "admin-1", models.LoginRequest{})
	require.Error(t, err)
	require.Len(t, store.jobs, 1)
	for _, job := range store.jobs {
		require.Equal(t, models.ExportStatusFailed, job.Status)
	}
}

func TestExportServiceHandleRendersCSV(t *testing.T) {
	store := newExportJobStoreStub()
	now := time.Now()
	report := &reportSourceStub{entries: []models.HistoryEntry{
		{ID: "log-1", Account: "analyst1", FullName: "Analyst One", Role: models.RoleUser, IsLocked: true, CreatedAt: now, LastModified: now},
	}}
	queue := &dispatcherStub{}
	svc := newTestExportService(t, store, report, queue)

	resp, err := svc.CreateJob(context.Background(), dto.CreateExportRequest{Format: "csv"}, "admin-1", models.LoginRequest{})
	require.NoError(t, err)

	require.NoError(t, svc.Handle(context.Background(), jobs.Job{ID: resp.ID}))

	job := store.jobs[resp.ID]
	require.Equal(t, models.ExportStatusFinished, job.Status)
	require.NotNil(t, job.ResultPath)

	download, err := resolveDownload(t, svc, resp.ID)
	require.NoError(t, err)
	defer download.File.Close()

	content, err := os.ReadFile(download.File.Name())
	require.NoError(t, err)
	require.True(t, strings.Contains(string(content), "analyst1"))
	require.True(t, strings.Contains(string(content), "Account"))
}

// resolveDownload fetches status to mint a token, then resolves it.
func resolveDownload(t *testing.T, svc *ExportService, jobID string) (*ExportDownload, error) {
	t.Helper()
	status, err := svc.GetStatus(context.Background(), jobID, "admin-1", models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if status.DownloadURL == nil {
		return nil, fmt.Errorf("no download url")
	}
	parts := strings.Split(*status.DownloadURL, "/")
	return svc.ResolveDownload(context.Background(), parts[len(parts)-1])
}

func TestExportServiceHandleRetriesBeforeFailing(t *testing.T) {
	store := newExportJobStoreStub()
	report := &reportSourceStub{err: fmt.Errorf("report backend unavailable")}
	queue := &dispatcherStub{}
	svc := newTestExportService(t, store, report, queue)

	resp, err := svc.CreateJob(context.Background(), dto.CreateExportRequest{Format: "csv"}, "admin-1", models.LoginRequest{})
	require.NoError(t, err)

	// Early attempts bubble the error up so the queue retries without
	// touching the failure column.
	require.Error(t, svc.Handle(context.Background(), jobs.Job{ID: resp.ID, Attempt: 1}))
	require.Equal(t, models.ExportStatusProcessing, store.jobs[resp.ID].Status)
	require.Nil(t, store.jobs[resp.ID].ErrorMessage)

	// The final attempt records the failure.
	require.Error(t, svc.Handle(context.Background(), jobs.Job{ID: resp.ID, Attempt: 3}))
	require.Equal(t, models.ExportStatusFailed, store.jobs[resp.ID].Status)
	require.NotNil(t, store.jobs[resp.ID].ErrorMessage)
}

func TestExportServiceStatusOwnership(t *testing.T) {
	store := newExportJobStoreStub()
	queue := &dispatcherStub{}
	svc := newTestExportService(t, store, &reportSourceStub{}, queue)

	resp, err := svc.CreateJob(context.Background(), dto.CreateExportRequest{Format: "pdf"}, "admin-1", models.LoginRequest{})
	require.NoError(t, err)

	_, err = svc.GetStatus(context.Background(), resp.ID, "user-2", models.RoleUser)
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	status, err := svc.GetStatus(context.Background(), resp.ID, "admin-1", models.RoleUser)
	require.NoError(t, err)
	require.Equal(t, string(models.ExportStatusQueued), status.Status)
}
