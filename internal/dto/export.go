package dto

import "time"

// CreateExportRequest asks for an asynchronous export of the report view.
type CreateExportRequest struct {
	Format       string     `json:"format" validate:"required,oneof=csv pdf"`
	Account      string     `json:"account,omitempty"`
	Role         string     `json:"role,omitempty"`
	IsLocked     *bool      `json:"is_locked,omitempty"`
	CreatedFrom  *time.Time `json:"created_from,omitempty"`
	CreatedTo    *time.Time `json:"created_to,omitempty"`
	ModifiedFrom *time.Time `json:"modified_from,omitempty"`
	ModifiedTo   *time.Time `json:"modified_to,omitempty"`
}

// ExportJobResponse reports job state to the caller.
type ExportJobResponse struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	DownloadURL *string    `json:"download_url,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
}
