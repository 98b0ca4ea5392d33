package models

import (
	"time"

	"github.com/soltixdb/ledgercast/internal/analytics"
	"github.com/soltixdb/ledgercast/internal/analytics/forecast"
	"github.com/soltixdb/ledgercast/internal/session"
)

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime,omitempty"`
}

// HistoryResponse represents an aggregated historical series
type HistoryResponse struct {
	DataSource    string                      `json:"data_source"`
	Periodicity   string                      `json:"periodicity"`
	StartDate     string                      `json:"start_date"`
	EndDate       string                      `json:"end_date"`
	Points        []analytics.TimeSeriesPoint `json:"points"`
	Count         int                         `json:"count"`
	OriginalCount int                         `json:"original_count,omitempty"` // set when downsampled
	Downsampling  string                      `json:"downsampling,omitempty"`
}

// SessionSummary is the list view of a session
type SessionSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	DataSource   string    `json:"data_source"`
	Periodicity  string    `json:"periodicity"`
	StartDate    string    `json:"start_date"`
	EndDate      string    `json:"end_date"`
	Scenarios    int       `json:"scenarios"`
	CreatedAt    time.Time `json:"created_at"`
	LastModified time.Time `json:"last_modified"`
}

// NewSessionSummary builds the list view of s
func NewSessionSummary(s *session.Session) SessionSummary {
	return SessionSummary{
		ID:           s.ID,
		Name:         s.Name,
		DataSource:   string(s.DataSource),
		Periodicity:  string(s.Periodicity),
		StartDate:    s.DateRange.From.Format(analytics.DateLayout),
		EndDate:      s.DateRange.To.Format(analytics.DateLayout),
		Scenarios:    len(s.Scenarios),
		CreatedAt:    s.CreatedAt,
		LastModified: s.LastModified,
	}
}

// SessionListResponse represents list sessions response
type SessionListResponse struct {
	Sessions []SessionSummary `json:"sessions"`
	Count    int              `json:"count"`
}

// ResultsResponse represents stored forecast rows of a session
type ResultsResponse struct {
	SessionID string              `json:"session_id"`
	Rows      []session.ResultRow `json:"rows"`
	Count     int                 `json:"count"`
}

// BestScenarioResponse represents the best scored scenario of a session
type BestScenarioResponse struct {
	SessionID string             `json:"session_id"`
	Scenario  session.Scenario   `json:"scenario"`
	Results   []forecast.Result  `json:"results"`
	Accuracy  *forecast.Accuracy `json:"accuracy_metrics"`
}

// CacheRefreshResponse represents the outcome of a cache refresh
type CacheRefreshResponse struct {
	Refreshed []string          `json:"refreshed"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// ErrorResponse represents error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Path      string                 `json:"path,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}
