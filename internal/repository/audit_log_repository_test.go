package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/netwatch-io/console-api/internal/models"
)

// lastModifiedPattern pins the aggregation both history queries must carry:
// a log's last modification is the maximum over its own updated_at and every
// descendant group/item updated_at.
const lastModifiedPattern = `(?s)GREATEST\(l\.updated_at,.+MAX\(gl\.updated_at\) FROM audit_group_logs gl WHERE gl\.audit_log_id = l\.id.+MAX\(il\.updated_at\) FROM audit_item_logs il.+g2\.audit_log_id = l\.id.+ AS last_modified`

func newAuditLogRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func sampleDefinition() *models.Audit {
	return &models.Audit{
		ID:       "audit-1",
		IsActive: true,
		Groups: []models.AuditGroup{
			{
				ID: "group-1", AuditID: "audit-1", Name: "Sensors", Color: models.GroupColorBlue, SortOrder: 0,
				Items: []models.AuditItem{
					{ID: "item-1", AuditGroupID: "group-1", Name: "Antenna alignment", SortOrder: 0},
					{ID: "item-2", AuditGroupID: "group-1", Name: "Gain calibration", SortOrder: 1},
				},
			},
		},
	}
}

func TestAuditLogRepositoryCreateFromDefinition(t *testing.T) {
	db, mock, cleanup := newAuditLogRepoMock(t)
	defer cleanup()

	repo := NewAuditLogRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_group_logs")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_item_logs")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_item_logs")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	log, err := repo.CreateFromDefinition(context.Background(), "user-1", sampleDefinition())
	require.NoError(t, err)
	require.False(t, log.IsLocked)
	require.Equal(t, "user-1", log.UserID)
	require.Len(t, log.Groups, 1)
	require.Equal(t, "Sensors", log.Groups[0].Name)
	require.Len(t, log.Groups[0].Items, 2)
	require.False(t, log.Groups[0].Items[0].IsChecked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditLogRepositoryCreateDuplicateUnlocked(t *testing.T) {
	db, mock, cleanup := newAuditLogRepoMock(t)
	defer cleanup()

	repo := NewAuditLogRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "audit_logs_one_unlocked"})
	mock.ExpectRollback()

	_, err := repo.CreateFromDefinition(context.Background(), "user-1", sampleDefinition())
	require.ErrorIs(t, err, ErrUnlockedExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditLogRepositoryLockGuard(t *testing.T) {
	db, mock, cleanup := newAuditLogRepoMock(t)
	defer cleanup()

	repo := NewAuditLogRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE audit_logs SET is_locked = TRUE")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Lock(context.Background(), "log-1"))

	// A second lock observes zero affected rows.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE audit_logs SET is_locked = TRUE")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.Lock(context.Background(), "log-1"), sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditLogRepositoryUpdateItemCheckedGuard(t *testing.T) {
	db, mock, cleanup := newAuditLogRepoMock(t)
	defer cleanup()

	repo := NewAuditLogRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE audit_item_logs il SET is_checked = $2")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateItemChecked(context.Background(), "item-log-1", true))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE audit_item_logs il SET is_checked = $2")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.UpdateItemChecked(context.Background(), "item-log-1", true), sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditLogRepositoryFindUnlockedByUser(t *testing.T) {
	db, mock, cleanup := newAuditLogRepoMock(t)
	defer cleanup()

	repo := NewAuditLogRepository(db)
	now := time.Now()
	auditID := "audit-1"
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, audit_id, user_id, description, is_locked, created_at, updated_at FROM audit_logs WHERE user_id = $1 AND NOT is_locked")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "audit_id", "user_id", "description", "is_locked", "created_at", "updated_at"}).
			AddRow("log-1", auditID, "user-1", "", false, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, audit_log_id, audit_group_id, name, color, sort_order, description, updated_at FROM audit_group_logs")).
		WithArgs("log-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "audit_log_id", "audit_group_id", "name", "color", "sort_order", "description", "updated_at"}).
			AddRow("group-log-1", "log-1", "group-1", "Sensors", models.GroupColorBlue, 0, "", now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT il.id, il.audit_group_log_id, il.audit_item_id, il.name, il.sort_order, il.is_checked, il.updated_at")).
		WithArgs("log-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "audit_group_log_id", "audit_item_id", "name", "sort_order", "is_checked", "updated_at"}).
			AddRow("item-log-1", "group-log-1", "item-1", "Antenna alignment", 0, true, now))

	log, err := repo.FindUnlockedByUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, log.Groups, 1)
	require.Len(t, log.Groups[0].Items, 1)
	require.True(t, log.Groups[0].Items[0].IsChecked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditLogRepositoryListHistory(t *testing.T) {
	db, mock, cleanup := newAuditLogRepoMock(t)
	defer cleanup()

	repo := NewAuditLogRepository(db)
	created := time.Now().Add(-2 * time.Hour)
	itemTouched := time.Now()
	locked := true
	rows := sqlmock.NewRows([]string{"id", "user_id", "account", "full_name", "role", "description", "is_locked", "created_at", "last_modified"}).
		AddRow("log-1", "user-1", "analyst1", "Analyst One", models.RoleUser, "shift done", true, created, itemTouched)
	mock.ExpectQuery(lastModifiedPattern).
		WithArgs("%analyst%", locked).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("%analyst%", locked).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	entries, total, err := repo.ListHistory(context.Background(), models.HistoryFilter{
		Account:  "Analyst",
		IsLocked: &locked,
		Page:     1,
		PageSize: 10,
	})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, entries, 1)
	require.Equal(t, "analyst1", entries[0].Account)
	// A descendant edit, not the log row itself, drives the display timestamp.
	require.True(t, entries[0].LastModified.After(entries[0].CreatedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditLogRepositoryListHistoryByUserAggregatesLastModified(t *testing.T) {
	db, mock, cleanup := newAuditLogRepoMock(t)
	defer cleanup()

	repo := NewAuditLogRepository(db)
	created := time.Now().Add(-time.Hour)
	itemTouched := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "account", "full_name", "role", "description", "is_locked", "created_at", "last_modified"}).
		AddRow("log-1", "user-1", "analyst1", "Analyst One", models.RoleUser, "", false, created, itemTouched)
	mock.ExpectQuery(lastModifiedPattern).
		WithArgs("user-1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_logs WHERE user_id = $1")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	entries, total, err := repo.ListHistoryByUser(context.Background(), "user-1", 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, entries, 1)
	require.True(t, entries[0].LastModified.After(entries[0].CreatedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}
