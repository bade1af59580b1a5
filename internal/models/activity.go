package models

import "time"

// Activity actions recorded in the admin trail.
const (
	ActivityActionLogin          = "LOGIN"
	ActivityActionLogout         = "LOGOUT"
	ActivityActionUserCreate     = "USER_CREATE"
	ActivityActionUserUpdate     = "USER_UPDATE"
	ActivityActionUserDelete     = "USER_DELETE"
	ActivityActionPasswordChange = "PASSWORD_CHANGE"
	ActivityActionAuditActivate  = "AUDIT_ACTIVATE"
	ActivityActionAuditDelete    = "AUDIT_DELETE"
	ActivityActionExportRequest  = "EXPORT_REQUEST"
)

// ActivityLog represents an admin activity trail record.
type ActivityLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	Detail     []byte    `db:"detail" json:"detail,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
