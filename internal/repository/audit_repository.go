package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/netwatch-io/console-api/internal/models"
)

// AuditRepository persists checklist definitions and their group/item
// structure.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create inserts a new inactive definition.
func (r *AuditRepository) Create(ctx context.Context, audit *models.Audit) error {
	if audit.ID == "" {
		audit.ID = uuid.NewString()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now().UTC()
	}
	audit.IsActive = false
	const query = `INSERT INTO audits (id, comment, is_active, created_by, created_at) VALUES (:id, :comment, :is_active, :created_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, audit); err != nil {
		return fmt.Errorf("create audit: %w", err)
	}
	return nil
}

// GetByID fetches a definition with its nested groups and items, ordered.
func (r *AuditRepository) GetByID(ctx context.Context, id string) (*models.Audit, error) {
	const query = `SELECT id, comment, is_active, created_by, created_at FROM audits WHERE id = $1 LIMIT 1`
	var audit models.Audit
	if err := r.db.GetContext(ctx, &audit, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find audit: %w", err)
	}

	groups, err := r.loadStructure(ctx, id)
	if err != nil {
		return nil, err
	}
	audit.Groups = groups
	return &audit, nil
}

// List returns all definitions, newest first, without nested structure.
func (r *AuditRepository) List(ctx context.Context) ([]models.Audit, error) {
	const query = `SELECT id, comment, is_active, created_by, created_at FROM audits ORDER BY created_at DESC`
	var audits []models.Audit
	if err := r.db.SelectContext(ctx, &audits, query); err != nil {
		return nil, fmt.Errorf("list audits: %w", err)
	}
	return audits, nil
}

// FindLatest returns the most recently created definition, or sql.ErrNoRows.
func (r *AuditRepository) FindLatest(ctx context.Context) (*models.Audit, error) {
	const query = `SELECT id, comment, is_active, created_by, created_at FROM audits ORDER BY created_at DESC LIMIT 1`
	var audit models.Audit
	if err := r.db.GetContext(ctx, &audit, query); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find latest audit: %w", err)
	}
	return &audit, nil
}

// FindActive returns the single active definition, or sql.ErrNoRows.
func (r *AuditRepository) FindActive(ctx context.Context) (*models.Audit, error) {
	const query = `SELECT id, comment, is_active, created_by, created_at FROM audits WHERE is_active LIMIT 1`
	var audit models.Audit
	if err := r.db.GetContext(ctx, &audit, query); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find active audit: %w", err)
	}
	return &audit, nil
}

// Activate promotes the definition in a single transaction: every other
// definition is demoted first so the partial unique index never trips.
func (r *AuditRepository) Activate(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin activate: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `UPDATE audits SET is_active = FALSE WHERE is_active`); err != nil {
		return fmt.Errorf("demote audits: %w", err)
	}
	result, err := tx.ExecContext(ctx, `UPDATE audits SET is_active = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("promote audit: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check promote rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}

// Delete removes an inactive definition; groups and items cascade. Returns
// sql.ErrNoRows when nothing matched (missing or still active).
func (r *AuditRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM audits WHERE id = $1 AND NOT is_active`, id)
	if err != nil {
		return fmt.Errorf("delete audit: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check delete rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateComment updates the definition comment.
func (r *AuditRepository) UpdateComment(ctx context.Context, id, comment string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE audits SET comment = $2 WHERE id = $1`, id, comment)
	if err != nil {
		return fmt.Errorf("update audit comment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check comment rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CloneStructure copies every group and item of src into dst with fresh ids.
func (r *AuditRepository) CloneStructure(ctx context.Context, srcID, dstID string) error {
	groups, err := r.loadStructure(ctx, srcID)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clone: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, group := range groups {
		groupID := uuid.NewString()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO audit_groups (id, audit_id, name, color, sort_order) VALUES ($1, $2, $3, $4, $5)`,
			groupID, dstID, group.Name, group.Color, group.SortOrder,
		); err != nil {
			return fmt.Errorf("clone group: %w", err)
		}
		for _, item := range group.Items {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO audit_items (id, audit_group_id, name, sort_order) VALUES ($1, $2, $3, $4)`,
				uuid.NewString(), groupID, item.Name, item.SortOrder,
			); err != nil {
				return fmt.Errorf("clone item: %w", err)
			}
		}
	}
	return tx.Commit()
}

// CreateGroup appends a group at the end of the definition's order.
func (r *AuditRepository) CreateGroup(ctx context.Context, group *models.AuditGroup) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	const query = `INSERT INTO audit_groups (id, audit_id, name, color, sort_order)
	VALUES ($1, $2, $3, $4, (SELECT COALESCE(MAX(sort_order) + 1, 0) FROM audit_groups WHERE audit_id = $2))`
	if _, err := r.db.ExecContext(ctx, query, group.ID, group.AuditID, group.Name, group.Color); err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	return r.db.GetContext(ctx, &group.SortOrder, `SELECT sort_order FROM audit_groups WHERE id = $1`, group.ID)
}

// GetGroupByID returns a single group.
func (r *AuditRepository) GetGroupByID(ctx context.Context, id string) (*models.AuditGroup, error) {
	const query = `SELECT id, audit_id, name, color, sort_order FROM audit_groups WHERE id = $1 LIMIT 1`
	var group models.AuditGroup
	if err := r.db.GetContext(ctx, &group, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find group: %w", err)
	}
	return &group, nil
}

// UpdateGroupParams groups the mutable columns of a definition group.
type UpdateGroupParams struct {
	Name      *string
	Color     *models.GroupColor
	SortOrder *int
}

// UpdateGroup applies a partial update to a group.
func (r *AuditRepository) UpdateGroup(ctx context.Context, id string, params UpdateGroupParams) error {
	columns := make([]column, 0, 3)
	if params.Name != nil {
		columns = append(columns, column{"name", *params.Name})
	}
	if params.Color != nil {
		columns = append(columns, column{"color", *params.Color})
	}
	if params.SortOrder != nil {
		columns = append(columns, column{"sort_order", *params.SortOrder})
	}
	return r.partialUpdate(ctx, "audit_groups", id, columns)
}

// DeleteGroup removes a group; items cascade.
func (r *AuditRepository) DeleteGroup(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM audit_groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check group delete rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CreateItem appends an item at the end of the group's order.
func (r *AuditRepository) CreateItem(ctx context.Context, item *models.AuditItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	const query = `INSERT INTO audit_items (id, audit_group_id, name, sort_order)
	VALUES ($1, $2, $3, (SELECT COALESCE(MAX(sort_order) + 1, 0) FROM audit_items WHERE audit_group_id = $2))`
	if _, err := r.db.ExecContext(ctx, query, item.ID, item.AuditGroupID, item.Name); err != nil {
		return fmt.Errorf("create item: %w", err)
	}
	return r.db.GetContext(ctx, &item.SortOrder, `SELECT sort_order FROM audit_items WHERE id = $1`, item.ID)
}

// GetItemByID returns a single item.
func (r *AuditRepository) GetItemByID(ctx context.Context, id string) (*models.AuditItem, error) {
	const query = `SELECT id, audit_group_id, name, sort_order FROM audit_items WHERE id = $1 LIMIT 1`
	var item models.AuditItem
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find item: %w", err)
	}
	return &item, nil
}

// UpdateItemParams groups the mutable columns of a definition item.
type UpdateItemParams struct {
	Name      *string
	SortOrder *int
}

// UpdateItem applies a partial update to an item.
func (r *AuditRepository) UpdateItem(ctx context.Context, id string, params UpdateItemParams) error {
	columns := make([]column, 0, 2)
	if params.Name != nil {
		columns = append(columns, column{"name", *params.Name})
	}
	if params.SortOrder != nil {
		columns = append(columns, column{"sort_order", *params.SortOrder})
	}
	return r.partialUpdate(ctx, "audit_items", id, columns)
}

// DeleteItem removes an item.
func (r *AuditRepository) DeleteItem(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM audit_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check item delete rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *AuditRepository) loadStructure(ctx context.Context, auditID string) ([]models.AuditGroup, error) {
	const groupQuery = `SELECT id, audit_id, name, color, sort_order FROM audit_groups WHERE audit_id = $1 ORDER BY sort_order, id`
	var groups []models.AuditGroup
	if err := r.db.SelectContext(ctx, &groups, groupQuery, auditID); err != nil {
		return nil, fmt.Errorf("load groups: %w", err)
	}
	if len(groups) == 0 {
		return groups, nil
	}

	const itemQuery = `SELECT i.id, i.audit_group_id, i.name, i.sort_order
	FROM audit_items i
	JOIN audit_groups g ON g.id = i.audit_group_id
	WHERE g.audit_id = $1
	ORDER BY i.sort_order, i.id`
	var items []models.AuditItem
	if err := r.db.SelectContext(ctx, &items, itemQuery, auditID); err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}

	byGroup := make(map[string][]models.AuditItem, len(groups))
	for _, item := range items {
		byGroup[item.AuditGroupID] = append(byGroup[item.AuditGroupID], item)
	}
	for i := range groups {
		groups[i].Items = byGroup[groups[i].ID]
	}
	return groups, nil
}

type column struct {
	name  string
	value interface{}
}

func (r *AuditRepository) partialUpdate(ctx context.Context, table, id string, columns []column) error {
	if len(columns) == 0 {
		return nil
	}
	setParts := make([]string, 0, len(columns))
	args := []interface{}{id}
	for _, col := range columns {
		args = append(args, col.value)
		setParts = append(setParts, fmt.Sprintf("%s = $%d", col.name, len(args)))
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $1", table, strings.Join(setParts, ", "))
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check %s update rows: %w", table, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
