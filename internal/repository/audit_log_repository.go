package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/netwatch-io/console-api/internal/models"
)

// ErrUnlockedExists signals that the caller already owns an unlocked
// instance. It is raised by the partial unique index on
// audit_logs(user_id) WHERE NOT is_locked, so the guarantee holds even when
// two createInstance calls race.
var ErrUnlockedExists = errors.New("unlocked audit log already exists for user")

const uniqueViolation = "23505"

// lastModifiedExpr aggregates an instance's own updated_at with every
// descendant group/item updated_at. Editing a nested item does not bump the
// parent row, so the display timestamp must be the maximum of all three.
const lastModifiedExpr = `GREATEST(l.updated_at,
	COALESCE((SELECT MAX(gl.updated_at) FROM audit_group_logs gl WHERE gl.audit_log_id = l.id), l.updated_at),
	COALESCE((SELECT MAX(il.updated_at) FROM audit_item_logs il JOIN audit_group_logs g2 ON g2.id = il.audit_group_log_id WHERE g2.audit_log_id = l.id), l.updated_at))`

// AuditLogRepository persists per-user checklist instances.
type AuditLogRepository struct {
	db *sqlx.DB
}

// NewAuditLogRepository constructs the repository.
func NewAuditLogRepository(db *sqlx.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// CreateFromDefinition clones the definition's structure into a fresh
// unlocked instance inside one transaction. Group and item names, colors and
// ordering are copied by value so the snapshot is decoupled from later
// definition edits.
func (r *AuditLogRepository) CreateFromDefinition(ctx context.Context, userID string, def *models.Audit) (*models.AuditLog, error) {
	now := time.Now().UTC()
	log := &models.AuditLog{
		ID:        uuid.NewString(),
		AuditID:   &def.ID,
		UserID:    userID,
		IsLocked:  false,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create instance: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO audit_logs (id, audit_id, user_id, description, is_locked, created_at, updated_at) VALUES ($1, $2, $3, '', FALSE, $4, $4)`,
		log.ID, def.ID, userID, now,
	); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return nil, ErrUnlockedExists
		}
		return nil, fmt.Errorf("create audit log: %w", err)
	}

	for _, group := range def.Groups {
		groupLog := models.AuditGroupLog{
			ID:           uuid.NewString(),
			AuditLogID:   log.ID,
			AuditGroupID: strPtr(group.ID),
			Name:         group.Name,
			Color:        group.Color,
			SortOrder:    group.SortOrder,
			UpdatedAt:    now,
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO audit_group_logs (id, audit_log_id, audit_group_id, name, color, sort_order, description, updated_at) VALUES ($1, $2, $3, $4, $5, $6, '', $7)`,
			groupLog.ID, groupLog.AuditLogID, group.ID, group.Name, group.Color, group.SortOrder, now,
		); err != nil {
			return nil, fmt.Errorf("clone group log: %w", err)
		}
		for _, item := range group.Items {
			itemLog := models.AuditItemLog{
				ID:              uuid.NewString(),
				AuditGroupLogID: groupLog.ID,
				AuditItemID:     strPtr(item.ID),
				Name:            item.Name,
				SortOrder:       item.SortOrder,
				UpdatedAt:       now,
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO audit_item_logs (id, audit_group_log_id, audit_item_id, name, sort_order, is_checked, updated_at) VALUES ($1, $2, $3, $4, $5, FALSE, $6)`,
				itemLog.ID, itemLog.AuditGroupLogID, item.ID, item.Name, item.SortOrder, now,
			); err != nil {
				return nil, fmt.Errorf("clone item log: %w", err)
			}
			groupLog.Items = append(groupLog.Items, itemLog)
		}
		log.Groups = append(log.Groups, groupLog)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create instance: %w", err)
	}
	return log, nil
}

// GetByID returns an instance header without nested structure.
func (r *AuditLogRepository) GetByID(ctx context.Context, id string) (*models.AuditLog, error) {
	const query = `SELECT id, audit_id, user_id, description, is_locked, created_at, updated_at FROM audit_logs WHERE id = $1 LIMIT 1`
	var log models.AuditLog
	if err := r.db.GetContext(ctx, &log, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find audit log: %w", err)
	}
	return &log, nil
}

// FindUnlockedByUser returns the caller's unlocked instance with nested
// groups and items, or sql.ErrNoRows.
func (r *AuditLogRepository) FindUnlockedByUser(ctx context.Context, userID string) (*models.AuditLog, error) {
	const query = `SELECT id, audit_id, user_id, description, is_locked, created_at, updated_at FROM audit_logs WHERE user_id = $1 AND NOT is_locked LIMIT 1`
	var log models.AuditLog
	if err := r.db.GetContext(ctx, &log, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find unlocked audit log: %w", err)
	}
	groups, err := r.loadStructure(ctx, log.ID)
	if err != nil {
		return nil, err
	}
	log.Groups = groups
	return &log, nil
}

// GetWithStructure returns an instance with nested groups and items.
func (r *AuditLogRepository) GetWithStructure(ctx context.Context, id string) (*models.AuditLog, error) {
	log, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	groups, err := r.loadStructure(ctx, id)
	if err != nil {
		return nil, err
	}
	log.Groups = groups
	return log, nil
}

// FindByGroupLogID resolves the parent instance header of a group log.
func (r *AuditLogRepository) FindByGroupLogID(ctx context.Context, groupLogID string) (*models.AuditLog, error) {
	const query = `SELECT l.id, l.audit_id, l.user_id, l.description, l.is_locked, l.created_at, l.updated_at
	FROM audit_logs l JOIN audit_group_logs gl ON gl.audit_log_id = l.id
	WHERE gl.id = $1 LIMIT 1`
	var log models.AuditLog
	if err := r.db.GetContext(ctx, &log, query, groupLogID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find audit log by group log: %w", err)
	}
	return &log, nil
}

// FindByItemLogID resolves the parent instance header of an item log.
func (r *AuditLogRepository) FindByItemLogID(ctx context.Context, itemLogID string) (*models.AuditLog, error) {
	const query = `SELECT l.id, l.audit_id, l.user_id, l.description, l.is_locked, l.created_at, l.updated_at
	FROM audit_logs l
	JOIN audit_group_logs gl ON gl.audit_log_id = l.id
	JOIN audit_item_logs il ON il.audit_group_log_id = gl.id
	WHERE il.id = $1 LIMIT 1`
	var log models.AuditLog
	if err := r.db.GetContext(ctx, &log, query, itemLogID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find audit log by item log: %w", err)
	}
	return &log, nil
}

// UpdateDescription writes the instance free text. The NOT is_locked guard
// makes the write a no-op once the instance is locked; 0 rows surfaces as
// sql.ErrNoRows for the service to translate.
func (r *AuditLogRepository) UpdateDescription(ctx context.Context, id, description string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE audit_logs SET description = $2, updated_at = $3 WHERE id = $1 AND NOT is_locked`,
		id, description, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update audit log description: %w", err)
	}
	return requireRows(result)
}

// UpdateGroupDescription writes a group log's free text, guarded by the
// parent's lock state.
func (r *AuditLogRepository) UpdateGroupDescription(ctx context.Context, groupLogID, description string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE audit_group_logs gl SET description = $2, updated_at = $3
		FROM audit_logs l
		WHERE gl.id = $1 AND l.id = gl.audit_log_id AND NOT l.is_locked`,
		groupLogID, description, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update group log description: %w", err)
	}
	return requireRows(result)
}

// UpdateItemChecked toggles an item log, guarded by the parent's lock state.
func (r *AuditLogRepository) UpdateItemChecked(ctx context.Context, itemLogID string, checked bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE audit_item_logs il SET is_checked = $2, updated_at = $3
		FROM audit_group_logs gl, audit_logs l
		WHERE il.id = $1 AND gl.id = il.audit_group_log_id AND l.id = gl.audit_log_id AND NOT l.is_locked`,
		itemLogID, checked, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update item log checked: %w", err)
	}
	return requireRows(result)
}

// Lock performs the terminal transition. The NOT is_locked guard serialises
// concurrent callers: exactly one UPDATE wins, the rest observe 0 rows.
func (r *AuditLogRepository) Lock(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE audit_logs SET is_locked = TRUE, updated_at = $2 WHERE id = $1 AND NOT is_locked`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("lock audit log: %w", err)
	}
	return requireRows(result)
}

// Delete removes an instance; group and item logs cascade. Lock-state and
// ownership policy is enforced by the service.
func (r *AuditLogRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete audit log: %w", err)
	}
	return requireRows(result)
}

// ListHistoryByUser returns one page of the caller's own instances, newest
// first, with total count.
func (r *AuditLogRepository) ListHistoryByUser(ctx context.Context, userID string, page, pageSize int) ([]models.HistoryEntry, int, error) {
	offset := pageOffset(page, pageSize)
	query := fmt.Sprintf(`SELECT l.id, l.user_id, u.account, u.full_name, u.role, l.description, l.is_locked, l.created_at, %s AS last_modified
	FROM audit_logs l JOIN users u ON u.id = l.user_id
	WHERE l.user_id = $1
	ORDER BY l.created_at DESC LIMIT %d OFFSET %d`, lastModifiedExpr, pageSize, offset)

	var entries []models.HistoryEntry
	if err := r.db.SelectContext(ctx, &entries, query, userID); err != nil {
		return nil, 0, fmt.Errorf("list user history: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM audit_logs WHERE user_id = $1`, userID); err != nil {
		return nil, 0, fmt.Errorf("count user history: %w", err)
	}
	return entries, total, nil
}

// ListHistory returns one page of the admin report across all users. Filters
// combine with AND semantics; the modified-range filter applies to the
// aggregated last_modified value, so it wraps the inner query.
func (r *AuditLogRepository) ListHistory(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryEntry, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Account != "" {
		args = append(args, "%"+strings.ToLower(filter.Account)+"%")
		conditions = append(conditions, fmt.Sprintf("LOWER(u.account) LIKE $%d", len(args)))
	}
	if filter.Role != nil {
		args = append(args, *filter.Role)
		conditions = append(conditions, fmt.Sprintf("u.role = $%d", len(args)))
	}
	if filter.IsLocked != nil {
		args = append(args, *filter.IsLocked)
		conditions = append(conditions, fmt.Sprintf("l.is_locked = $%d", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		conditions = append(conditions, fmt.Sprintf("l.created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		conditions = append(conditions, fmt.Sprintf("l.created_at <= $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	inner := fmt.Sprintf(`SELECT l.id, l.user_id, u.account, u.full_name, u.role, l.description, l.is_locked, l.created_at, %s AS last_modified
	FROM audit_logs l JOIN users u ON u.id = l.user_id%s`, lastModifiedExpr, where)

	var outerConditions []string
	if filter.ModifiedFrom != nil {
		args = append(args, *filter.ModifiedFrom)
		outerConditions = append(outerConditions, fmt.Sprintf("h.last_modified >= $%d", len(args)))
	}
	if filter.ModifiedTo != nil {
		args = append(args, *filter.ModifiedTo)
		outerConditions = append(outerConditions, fmt.Sprintf("h.last_modified <= $%d", len(args)))
	}
	outerWhere := ""
	if len(outerConditions) > 0 {
		outerWhere = " WHERE " + strings.Join(outerConditions, " AND ")
	}

	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	offset := pageOffset(filter.Page, pageSize)

	listQuery := fmt.Sprintf("SELECT * FROM (%s) h%s ORDER BY h.created_at DESC LIMIT %d OFFSET %d", inner, outerWhere, pageSize, offset)
	var entries []models.HistoryEntry
	if err := r.db.SelectContext(ctx, &entries, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list history: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM (%s) h%s", inner, outerWhere)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count history: %w", err)
	}
	return entries, total, nil
}

func (r *AuditLogRepository) loadStructure(ctx context.Context, logID string) ([]models.AuditGroupLog, error) {
	const groupQuery = `SELECT id, audit_log_id, audit_group_id, name, color, sort_order, description, updated_at FROM audit_group_logs WHERE audit_log_id = $1 ORDER BY sort_order, id`
	var groups []models.AuditGroupLog
	if err := r.db.SelectContext(ctx, &groups, groupQuery, logID); err != nil {
		return nil, fmt.Errorf("load group logs: %w", err)
	}
	if len(groups) == 0 {
		return groups, nil
	}

	const itemQuery = `SELECT il.id, il.audit_group_log_id, il.audit_item_id, il.name, il.sort_order, il.is_checked, il.updated_at
	FROM audit_item_logs il
	JOIN audit_group_logs gl ON gl.id = il.audit_group_log_id
	WHERE gl.audit_log_id = $1
	ORDER BY il.sort_order, il.id`
	var items []models.AuditItemLog
	if err := r.db.SelectContext(ctx, &items, itemQuery, logID); err != nil {
		return nil, fmt.Errorf("load item logs: %w", err)
	}

	byGroup := make(map[string][]models.AuditItemLog, len(groups))
	for _, item := range items {
		byGroup[item.AuditGroupLogID] = append(byGroup[item.AuditGroupLogID], item)
	}
	for i := range groups {
		groups[i].Items = byGroup[groups[i].ID]
	}
	return groups, nil
}

func requireRows(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check affected rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func pageOffset(page, pageSize int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageSize
}

func strPtr(s string) *string {
	return &s
}
