package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ExportFormat enumerates supported export formats.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportStatus captures background job lifecycle states.
type ExportStatus string

const (
	ExportStatusQueued     ExportStatus = "QUEUED"
	ExportStatusProcessing ExportStatus = "PROCESSING"
	ExportStatusFinished   ExportStatus = "FINISHED"
	ExportStatusFailed     ExportStatus = "FAILED"
)

// ExportJob persists background report-export job metadata.
type ExportJob struct {
	ID           string          `db:"id" json:"id"`
	Params       ExportJobParams `db:"params" json:"params"`
	Status       ExportStatus    `db:"status" json:"status"`
	ResultPath   *string         `db:"result_path" json:"-"`
	CreatedBy    string          `db:"created_by" json:"created_by"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
}

// ExportJobParams stores the report filter snapshot persisted as JSONB.
type ExportJobParams struct {
	Format       ExportFormat `json:"format"`
	Account      string       `json:"account,omitempty"`
	Role         *UserRole    `json:"role,omitempty"`
	IsLocked     *bool        `json:"isLocked,omitempty"`
	CreatedFrom  *time.Time   `json:"createdFrom,omitempty"`
	CreatedTo    *time.Time   `json:"createdTo,omitempty"`
	ModifiedFrom *time.Time   `json:"modifiedFrom,omitempty"`
	ModifiedTo   *time.Time   `json:"modifiedTo,omitempty"`
}

// Value marshals params to JSON for persistence.
func (p ExportJobParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal export job params: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the params struct.
func (p *ExportJobParams) Scan(value interface{}) error {
	if value == nil {
		*p = ExportJobParams{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for ExportJobParams", value)
	}
	if len(data) == 0 {
		*p = ExportJobParams{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal export job params: %w", err)
	}
	return nil
}

// Filter converts the persisted params back into a report filter.
func (p ExportJobParams) Filter() HistoryFilter {
	return HistoryFilter{
		Account:      p.Account,
		Role:         p.Role,
		IsLocked:     p.IsLocked,
		CreatedFrom:  p.CreatedFrom,
		CreatedTo:    p.CreatedTo,
		ModifiedFrom: p.ModifiedFrom,
		ModifiedTo:   p.ModifiedTo,
	}
}
