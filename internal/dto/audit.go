package dto

// UpdateAuditRequest renames a definition's comment.
type UpdateAuditRequest struct {
	Comment string `json:"comment" validate:"required"`
}

// CreateGroupRequest appends a group to a definition.
type CreateGroupRequest struct {
	Name  string `json:"name" validate:"required"`
	Color string `json:"color" validate:"required"`
}

// UpdateGroupRequest renames, recolors, or reorders a group. Nil fields are
// left untouched.
type UpdateGroupRequest struct {
	Name      *string `json:"name,omitempty"`
	Color     *string `json:"color,omitempty"`
	SortOrder *int    `json:"sort_order,omitempty"`
}

// CreateItemRequest appends an item to a group.
type CreateItemRequest struct {
	Name string `json:"name" validate:"required"`
}

// UpdateItemRequest renames or reorders an item.
type UpdateItemRequest struct {
	Name      *string `json:"name,omitempty"`
	SortOrder *int    `json:"sort_order,omitempty"`
}
