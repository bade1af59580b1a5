package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/netwatch-io/console-api/internal/models"
)

func newAuditRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAuditRepositoryGetByIDLoadsStructure(t *testing.T) {
	db, mock, cleanup := newAuditRepoMock(t)
	defer cleanup()

	repo := NewAuditRepository(db)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, comment, is_active, created_by, created_at FROM audits WHERE id = $1")).
		WithArgs("audit-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "comment", "is_active", "created_by", "created_at"}).
			AddRow("audit-1", "weekly checks", true, "admin-1", now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, audit_id, name, color, sort_order FROM audit_groups")).
		WithArgs("audit-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "audit_id", "name", "color", "sort_order"}).
			AddRow("group-1", "audit-1", "Sensors", models.GroupColorBlue, 0).
			AddRow("group-2", "audit-1", "Storage", models.GroupColorRed, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT i.id, i.audit_group_id, i.name, i.sort_order")).
		WithArgs("audit-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "audit_group_id", "name", "sort_order"}).
			AddRow("item-1", "group-1", "Antenna alignment", 0).
			AddRow("item-2", "group-2", "Disk headroom", 0))

	audit, err := repo.GetByID(context.Background(), "audit-1")
	require.NoError(t, err)
	require.True(t, audit.IsActive)
	require.Len(t, audit.Groups, 2)
	require.Equal(t, "Sensors", audit.Groups[0].Name)
	require.Len(t, audit.Groups[0].Items, 1)
	require.Equal(t, "Disk headroom", audit.Groups[1].Items[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryActivate(t *testing.T) {
	db, mock, cleanup := newAuditRepoMock(t)
	defer cleanup()

	repo := NewAuditRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE audits SET is_active = FALSE WHERE is_active")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE audits SET is_active = TRUE WHERE id = $1")).
		WithArgs("audit-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	require.NoError(t, repo.Activate(context.Background(), "audit-2"))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE audits SET is_active = FALSE WHERE is_active")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE audits SET is_active = TRUE WHERE id = $1")).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()
	require.ErrorIs(t, repo.Activate(context.Background(), "ghost"), sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryDeleteRefusesActive(t *testing.T) {
	db, mock, cleanup := newAuditRepoMock(t)
	defer cleanup()

	repo := NewAuditRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM audits WHERE id = $1 AND NOT is_active")).
		WithArgs("audit-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.Delete(context.Background(), "audit-1"), sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryUpdateGroupPartial(t *testing.T) {
	db, mock, cleanup := newAuditRepoMock(t)
	defer cleanup()

	repo := NewAuditRepository(db)
	name := "Capture nodes"
	color := models.GroupColorGreen
	mock.ExpectExec(regexp.QuoteMeta("UPDATE audit_groups SET name = $2, color = $3 WHERE id = $1")).
		WithArgs("group-1", name, color).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateGroup(context.Background(), "group-1", UpdateGroupParams{Name: &name, Color: &color}))

	// No fields set is a no-op without touching the database.
	require.NoError(t, repo.UpdateGroup(context.Background(), "group-1", UpdateGroupParams{}))
	require.NoError(t, mock.ExpectationsWereMet())
}
