package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleGuest UserRole = "GUEST"
	RoleUser  UserRole = "USER"
	RoleAdmin UserRole = "ADMIN"
)

var roleRanks = map[UserRole]int{
	RoleGuest: 0,
	RoleUser:  1,
	RoleAdmin: 2,
}

// Rank returns the position of the role in the GUEST < USER < ADMIN order.
// Unknown roles rank below GUEST.
func (r UserRole) Rank() int {
	if rank, ok := roleRanks[r]; ok {
		return rank
	}
	return -1
}

// AtLeast reports whether the role grants at least the given role's access.
func (r UserRole) AtLeast(min UserRole) bool {
	return r.Rank() >= min.Rank()
}

// Valid reports whether the role is a known one.
func (r UserRole) Valid() bool {
	_, ok := roleRanks[r]
	return ok
}

// User represents a console account stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Account      string     `db:"account" json:"account"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
