package dto

import (
	"encoding/json"
	"time"
)

// Widget wraps an upstream payload for a dashboard widget. When the upstream
// is unreachable the widget degrades to Available=false with an inline error
// instead of failing the request.
type Widget struct {
	Available bool            `json:"available"`
	Source    string          `json:"source"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	FetchedAt time.Time       `json:"fetched_at"`
	Cached    bool            `json:"cached"`
}
