package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/soltixdb/ledgercast/internal/analytics/forecast"
	"github.com/soltixdb/ledgercast/internal/ledger"
	"github.com/soltixdb/ledgercast/internal/session"
)

func TestNewServiceError(t *testing.T) {
	err := NewServiceError(CodeSessionNotFound, "session missing")

	if err.Code != CodeSessionNotFound {
		t.Errorf("Expected code %s, got '%s'", CodeSessionNotFound, err.Code)
	}
	if err.Error() != "session missing" {
		t.Errorf("Expected message 'session missing', got '%s'", err.Error())
	}
	if err.Details != nil {
		t.Errorf("Expected nil details, got %v", err.Details)
	}
}

func TestServiceError_JSON(t *testing.T) {
	err := NewServiceErrorWithDetails(CodeValidation, "Validation failed", map[string]interface{}{
		"field": "scenarios",
	})

	data, jsonErr := json.Marshal(err)
	if jsonErr != nil {
		t.Fatalf("Marshal failed: %v", jsonErr)
	}

	var decoded map[string]interface{}
	if jsonErr := json.Unmarshal(data, &decoded); jsonErr != nil {
		t.Fatalf("Unmarshal failed: %v", jsonErr)
	}
	if decoded["code"] != CodeValidation {
		t.Errorf("Expected code %s, got %v", CodeValidation, decoded["code"])
	}
	details, ok := decoded["details"].(map[string]interface{})
	if !ok || details["field"] != "scenarios" {
		t.Errorf("Expected details.field 'scenarios', got %v", decoded["details"])
	}

	data, _ = json.Marshal(NewServiceError("X", "y"))
	if string(data) != `{"code":"X","message":"y"}` {
		t.Errorf("Expected details to be omitted, got %s", data)
	}
}

func TestTypedErrors_Unwrap(t *testing.T) {
	root := errors.New("connection refused")

	var persistence *PersistenceError
	if !errors.As(persistenceError("save session", root), &persistence) {
		t.Fatal("Expected PersistenceError")
	}
	if !errors.Is(persistence, root) {
		t.Error("PersistenceError should unwrap to its cause")
	}
	if persistence.Error() != "save session: connection refused" {
		t.Errorf("Unexpected message %q", persistence.Error())
	}
	if persistenceError("noop", nil) != nil {
		t.Error("persistenceError(nil) should be nil")
	}

	regen := &CacheRegenerationError{Source: ledger.Revenue, Err: root}
	if !errors.Is(regen, root) {
		t.Error("CacheRegenerationError should unwrap to its cause")
	}

	insufficient := &InsufficientHistoryError{Have: 2, Need: 3}
	if insufficient.Error() != "insufficient history: need at least 3 aggregated points, have 2" {
		t.Errorf("Unexpected message %q", insufficient.Error())
	}

	if got := (&ValidationError{Reason: "empty body"}).Error(); got != "invalid request: empty body" {
		t.Errorf("Unexpected message %q", got)
	}
}

func TestAsServiceError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"service error passes through", NewServiceError(CodeScenarioNotFound, "x"), CodeScenarioNotFound},
		{"unknown data source", &UnknownDataSourceError{Source: "payroll"}, CodeUnknownDataSource},
		{"insufficient history", &InsufficientHistoryError{Have: 1, Need: 3}, CodeInsufficientHistory},
		{"wrapped session not found", fmt.Errorf("session s1: %w", session.ErrSessionNotFound), CodeSessionNotFound},
		{"no scored scenario", fmt.Errorf("session s1: %w", ErrNoScoredScenario), CodeNoScoredScenario},
		{"validation", &ValidationError{Field: "name", Reason: "required"}, CodeValidation},
		{"unknown method", fmt.Errorf("%w: %q", forecast.ErrUnknownMethod, "arima"), CodeValidation},
		{"persistence", &PersistenceError{Op: "list sessions", Err: errors.New("io")}, CodePersistence},
		{"anything else", errors.New("boom"), CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AsServiceError(tt.err)
			if got == nil {
				t.Fatal("Expected a ServiceError")
			}
			if got.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, got.Code)
			}
		})
	}

	if AsServiceError(nil) != nil {
		t.Error("AsServiceError(nil) should be nil")
	}
}

func TestAsServiceError_Details(t *testing.T) {
	got := AsServiceError(&InsufficientHistoryError{Have: 2, Need: 3})
	if got.Details["have"] != 2 || got.Details["need"] != 3 {
		t.Errorf("Unexpected details %v", got.Details)
	}

	got = AsServiceError(&PersistenceError{Op: "save session", Err: errors.New("disk full")})
	if got.Details["op"] != "save session" || got.Details["error"] != "disk full" {
		t.Errorf("Unexpected details %v", got.Details)
	}
}
