package models

import "time"

// AuditLog is a per-user working copy of a definition. The group/item
// structure is snapshotted at creation time and never resynchronised with
// the definition; once locked the instance is immutable.
type AuditLog struct {
	ID          string    `db:"id" json:"id"`
	AuditID     *string   `db:"audit_id" json:"audit_id,omitempty"`
	UserID      string    `db:"user_id" json:"user_id"`
	Description string    `db:"description" json:"description"`
	IsLocked    bool      `db:"is_locked" json:"is_locked"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`

	Groups []AuditGroupLog `db:"-" json:"groups,omitempty"`
}

// AuditGroupLog is the per-instance copy of a definition group. Name, color
// and order are denormalised at clone time so the snapshot survives later
// definition edits or deletion.
type AuditGroupLog struct {
	ID           string     `db:"id" json:"id"`
	AuditLogID   string     `db:"audit_log_id" json:"audit_log_id"`
	AuditGroupID *string    `db:"audit_group_id" json:"audit_group_id,omitempty"`
	Name         string     `db:"name" json:"name"`
	Color        GroupColor `db:"color" json:"color"`
	SortOrder    int        `db:"sort_order" json:"sort_order"`
	Description  string     `db:"description" json:"description"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`

	Items []AuditItemLog `db:"-" json:"items,omitempty"`
}

// AuditItemLog is the per-instance copy of a definition item.
type AuditItemLog struct {
	ID              string    `db:"id" json:"id"`
	AuditGroupLogID string    `db:"audit_group_log_id" json:"audit_group_log_id"`
	AuditItemID     *string   `db:"audit_item_id" json:"audit_item_id,omitempty"`
	Name            string    `db:"name" json:"name"`
	SortOrder       int       `db:"sort_order" json:"sort_order"`
	IsChecked       bool      `db:"is_checked" json:"is_checked"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// HistoryEntry is the list-view projection of an instance. LastModified is
// the maximum of the instance's own updated_at and every descendant group
// and item updated_at.
type HistoryEntry struct {
	ID           string    `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"user_id"`
	Account      string    `db:"account" json:"account"`
	FullName     string    `db:"full_name" json:"full_name"`
	Role         UserRole  `db:"role" json:"role"`
	Description  string    `db:"description" json:"description"`
	IsLocked     bool      `db:"is_locked" json:"is_locked"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	LastModified time.Time `db:"last_modified" json:"last_modified"`
}

// HistoryFilter constrains the admin report query. All fields are optional
// and combine with AND semantics.
type HistoryFilter struct {
	Account      string
	Role         *UserRole
	IsLocked     *bool
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	ModifiedFrom *time.Time
	ModifiedTo   *time.Time
	Page         int
	PageSize     int
}
