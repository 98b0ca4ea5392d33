// Package handlers exposes the forecasting engine over HTTP.
package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/soltixdb/ledgercast/internal/analytics"
	"github.com/soltixdb/ledgercast/internal/logging"
	"github.com/soltixdb/ledgercast/internal/services"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// Handler contains all HTTP handlers
type Handler struct {
	logger    *logging.Logger
	service   *services.ForecastService
	startedAt time.Time
}

// New creates a new handler instance
func New(logger *logging.Logger, service *services.ForecastService) *Handler {
	return &Handler{
		logger:    logger.Component("http"),
		service:   service,
		startedAt: time.Now(),
	}
}

// parseBody decodes a JSON body, reporting malformed input as a validation error
func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return &services.ValidationError{Reason: "malformed request body: " + err.Error()}
	}
	return nil
}

// dateRangeQuery reads start_date and end_date, falling back to the given defaults
func dateRangeQuery(c *fiber.Ctx, defaultStart, defaultEnd string) (analytics.DateRange, error) {
	start := c.Query("start_date", defaultStart)
	end := c.Query("end_date", defaultEnd)
	if start == "" || end == "" {
		return analytics.DateRange{}, &services.ValidationError{Field: "date_range", Reason: "start_date and end_date are required"}
	}
	r, err := analytics.ParseDateRange(start, end)
	if err != nil {
		return analytics.DateRange{}, &services.ValidationError{Field: "date_range", Reason: err.Error()}
	}
	return r, nil
}
