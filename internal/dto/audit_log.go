package dto

// UpdateLogDescriptionRequest updates the instance-level free text.
type UpdateLogDescriptionRequest struct {
	Description string `json:"description"`
}

// UpdateGroupLogRequest updates a group log's free text.
type UpdateGroupLogRequest struct {
	Description string `json:"description"`
}

// UpdateItemLogRequest toggles an item check.
type UpdateItemLogRequest struct {
	IsChecked bool `json:"is_checked"`
}
