package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/soltixdb/ledgercast/internal/analytics"
	"github.com/soltixdb/ledgercast/internal/ledger"
	"github.com/soltixdb/ledgercast/internal/logging"
	"github.com/soltixdb/ledgercast/internal/models"
	"github.com/soltixdb/ledgercast/internal/services"
	"github.com/soltixdb/ledgercast/internal/session"
)

// Bounds applied when a results query omits its dates
const (
	resultsFrom = "1900-01-01"
	resultsTo   = "9999-12-31"
)

// CreateSession runs a new forecast session
// POST /v1/sessions
func (h *Handler) CreateSession(c *fiber.Ctx) error {
	var req models.CreateSessionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	r, err := analytics.ParseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		return &services.ValidationError{Field: "date_range", Reason: err.Error()}
	}

	sess, err := h.service.CreateSession(c.UserContext(), services.CreateSessionRequest{
		Name:        req.Name,
		DataSource:  ledger.DataSource(req.DataSource),
		Periodicity: analytics.Periodicity(req.Periodicity),
		DateRange:   r,
		Scenarios:   req.Scenarios,
	})
	if err != nil {
		return err
	}

	logging.InfoCtx(logging.WithSessionID(c.UserContext(), sess.ID), "Session created over HTTP",
		"data_source", req.DataSource,
		"scenarios", len(sess.Scenarios))

	return c.Status(fiber.StatusCreated).JSON(sess)
}

// ListSessions lists sessions, newest first
// GET /v1/sessions?data_source=revenue
func (h *Handler) ListSessions(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var (
		list []*session.Session
		err  error
	)
	if source := c.Query("data_source"); source != "" {
		list, err = h.service.ListSessionsByDataSource(ctx, ledger.DataSource(source))
	} else {
		list, err = h.service.ListSessions(ctx)
	}
	if err != nil {
		return err
	}

	resp := models.SessionListResponse{Sessions: make([]models.SessionSummary, 0, len(list))}
	for _, s := range list {
		resp.Sessions = append(resp.Sessions, models.NewSessionSummary(s))
	}
	resp.Count = len(resp.Sessions)
	return c.JSON(resp)
}

// GetSession returns a full session. include_history=false omits the historical series.
// GET /v1/sessions/:id
func (h *Handler) GetSession(c *fiber.Ctx) error {
	sess, err := h.service.GetSession(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if !c.QueryBool("include_history", true) {
		sess.HistoricalData = nil
	}
	return c.JSON(sess)
}

// DeleteSession removes a session and its results
// DELETE /v1/sessions/:id
func (h *Handler) DeleteSession(c *fiber.Ctx) error {
	ctx := logging.WithSessionID(c.UserContext(), c.Params("id"))
	if err := h.service.DeleteSession(ctx, c.Params("id")); err != nil {
		return err
	}
	logging.InfoCtx(ctx, "Session deleted over HTTP")
	return c.SendStatus(fiber.StatusNoContent)
}

// RerunSession re-evaluates scenarios of a session against its stored history
// POST /v1/sessions/:id/rerun
func (h *Handler) RerunSession(c *fiber.Ctx) error {
	var req models.RerunSessionRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}

	sess, err := h.service.RerunSession(c.UserContext(), c.Params("id"), req.ScenarioIDs)
	if err != nil {
		return err
	}
	return c.JSON(sess)
}

// AddScenarios evaluates and appends scenarios to a session
// POST /v1/sessions/:id/scenarios
func (h *Handler) AddScenarios(c *fiber.Ctx) error {
	var req models.AddScenariosRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	sess, err := h.service.AddScenarios(c.UserContext(), c.Params("id"), req.Scenarios)
	if err != nil {
		return err
	}
	return c.JSON(sess)
}

// GetResults returns stored forecast rows of a session
// GET /v1/sessions/:id/results?scenario_id=...&start_date=...&end_date=...
func (h *Handler) GetResults(c *fiber.Ctx) error {
	id := c.Params("id")

	r, err := dateRangeQuery(c, resultsFrom, resultsTo)
	if err != nil {
		return err
	}

	rows, err := h.service.QueryResults(c.UserContext(), id, c.Query("scenario_id"), r)
	if err != nil {
		return err
	}
	if rows == nil {
		rows = make([]session.ResultRow, 0)
	}
	return c.JSON(models.ResultsResponse{SessionID: id, Rows: rows, Count: len(rows)})
}

// BestScenario returns the scenario with the highest R²
// GET /v1/sessions/:id/best
func (h *Handler) BestScenario(c *fiber.Ctx) error {
	id := c.Params("id")

	best, err := h.service.BestScenario(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(models.BestScenarioResponse{
		SessionID: id,
		Scenario:  best.Scenario,
		Results:   best.Results,
		Accuracy:  best.Accuracy,
	})
}

// AccuracySummary returns the per-scenario accuracy of a session
// GET /v1/sessions/:id/accuracy
func (h *Handler) AccuracySummary(c *fiber.Ctx) error {
	summary, err := h.service.AccuracySummary(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(summary)
}
