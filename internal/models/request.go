package models

import (
	"github.com/soltixdb/ledgercast/internal/session"
)

// CreateSessionRequest represents a new forecast session
type CreateSessionRequest struct {
	Name        string             `json:"name"`
	DataSource  string             `json:"data_source"`
	Periodicity string             `json:"periodicity"`
	StartDate   string             `json:"start_date"` // YYYY-MM-DD
	EndDate     string             `json:"end_date"`   // YYYY-MM-DD
	Scenarios   []session.Scenario `json:"scenarios"`
}

// RerunSessionRequest selects the scenarios to re-run; empty means all
type RerunSessionRequest struct {
	ScenarioIDs []string `json:"scenario_ids,omitempty"`
}

// AddScenariosRequest appends scenarios to a session
type AddScenariosRequest struct {
	Scenarios []session.Scenario `json:"scenarios"`
}
