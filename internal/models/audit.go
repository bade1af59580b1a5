package models

import "time"

// GroupColor enumerates the display colors assignable to a checklist group.
type GroupColor string

const (
	GroupColorRed    GroupColor = "RED"
	GroupColorOrange GroupColor = "ORANGE"
	GroupColorYellow GroupColor = "YELLOW"
	GroupColorGreen  GroupColor = "GREEN"
	GroupColorBlue   GroupColor = "BLUE"
	GroupColorPurple GroupColor = "PURPLE"
	GroupColorGray   GroupColor = "GRAY"
)

var groupColors = map[GroupColor]struct{}{
	GroupColorRed:    {},
	GroupColorOrange: {},
	GroupColorYellow: {},
	GroupColorGreen:  {},
	GroupColorBlue:   {},
	GroupColorPurple: {},
	GroupColorGray:   {},
}

// Valid reports whether the color is a known one.
func (c GroupColor) Valid() bool {
	_, ok := groupColors[c]
	return ok
}

// Audit is an admin-authored checklist definition. At most one definition
// is active system-wide; new per-user instances always clone the active one.
type Audit struct {
	ID        string    `db:"id" json:"id"`
	Comment   string    `db:"comment" json:"comment"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`

	Groups []AuditGroup `db:"-" json:"groups,omitempty"`
}

// AuditGroup is an ordered section of a definition.
type AuditGroup struct {
	ID        string     `db:"id" json:"id"`
	AuditID   string     `db:"audit_id" json:"audit_id"`
	Name      string     `db:"name" json:"name"`
	Color     GroupColor `db:"color" json:"color"`
	SortOrder int        `db:"sort_order" json:"sort_order"`

	Items []AuditItem `db:"-" json:"items,omitempty"`
}

// AuditItem is a checklist leaf inside a group.
type AuditItem struct {
	ID           string `db:"id" json:"id"`
	AuditGroupID string `db:"audit_group_id" json:"audit_group_id"`
	Name         string `db:"name" json:"name"`
	SortOrder    int    `db:"sort_order" json:"sort_order"`
}
