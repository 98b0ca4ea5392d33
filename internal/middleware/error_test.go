package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/soltixdb/ledgercast/internal/logging"
	"github.com/soltixdb/ledgercast/internal/models"
	"github.com/soltixdb/ledgercast/internal/services"
	"github.com/soltixdb/ledgercast/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveError(t *testing.T, err error) (int, models.ErrorResponse) {
	t.Helper()

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.NewNop())})
	app.Get("/test", func(c *fiber.Ctx) error { return err })

	resp, testErr := app.Test(httptest.NewRequest("GET", "/test", nil))
	require.NoError(t, testErr)
	defer resp.Body.Close()

	var body models.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestErrorHandler_FiberError(t *testing.T) {
	tests := []struct {
		err        *fiber.Error
		wantStatus int
		wantMsg    string
	}{
		{fiber.ErrBadRequest, fiber.StatusBadRequest, "Bad Request"},
		{fiber.ErrNotFound, fiber.StatusNotFound, "Not Found"},
		{fiber.NewError(fiber.StatusTeapot, "I'm a teapot"), fiber.StatusTeapot, "I'm a teapot"},
	}

	for _, tt := range tests {
		t.Run(tt.wantMsg, func(t *testing.T) {
			status, body := serveError(t, tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, "ERROR", body.Error.Code)
			assert.Equal(t, tt.wantMsg, body.Error.Message)
			assert.Equal(t, "/test", body.Error.Path)
		})
	}
}

func TestErrorHandler_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", &services.ValidationError{Field: "name", Reason: "required"}, fiber.StatusBadRequest, services.CodeValidation},
		{"unknown source", &services.UnknownDataSourceError{Source: "payroll"}, fiber.StatusBadRequest, services.CodeUnknownDataSource},
		{"insufficient history", &services.InsufficientHistoryError{Have: 2, Need: 3}, fiber.StatusUnprocessableEntity, services.CodeInsufficientHistory},
		{"session not found", fmt.Errorf("session x: %w", session.ErrSessionNotFound), fiber.StatusNotFound, services.CodeSessionNotFound},
		{"scenario not found", services.NewServiceError(services.CodeScenarioNotFound, "missing"), fiber.StatusNotFound, services.CodeScenarioNotFound},
		{"no scored scenario", services.ErrNoScoredScenario, fiber.StatusUnprocessableEntity, services.CodeNoScoredScenario},
		{"persistence", &services.PersistenceError{Op: "save session", Err: errors.New("disk full")}, fiber.StatusServiceUnavailable, services.CodePersistence},
		{"unexpected", errors.New("boom"), fiber.StatusInternalServerError, services.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := serveError(t, tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, body.Error.Code)
		})
	}
}

func TestErrorHandler_Details(t *testing.T) {
	_, body := serveError(t, &services.InsufficientHistoryError{Have: 2, Need: 3})

	// numbers decode as float64
	assert.Equal(t, 2.0, body.Error.Details["have"])
	assert.Equal(t, 3.0, body.Error.Details["need"])
}

func TestErrorHandler_EchoesRequestID(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.NewNop())})
	app.Use(logging.FiberMiddleware(logging.NewNop(), logging.DefaultMiddlewareConfig()))
	app.Get("/test", func(c *fiber.Ctx) error { return services.ErrNoScoredScenario })

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", "req-42")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body models.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "req-42", body.Error.RequestID)
}
