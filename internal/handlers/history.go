package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/soltixdb/ledgercast/internal/analytics"
	"github.com/soltixdb/ledgercast/internal/downsampling"
	"github.com/soltixdb/ledgercast/internal/ledger"
	"github.com/soltixdb/ledgercast/internal/models"
	"github.com/soltixdb/ledgercast/internal/services"
)

// GetHistory returns the aggregated series of one data source, optionally
// downsampled to max_points for charting
// GET /v1/history/:source?periodicity=monthly&start_date=2024-01-01&end_date=2024-12-31&max_points=200&downsample=lttb
func (h *Handler) GetHistory(c *fiber.Ctx) error {
	source := ledger.DataSource(c.Params("source"))
	periodicity := analytics.Periodicity(c.Query("periodicity", string(analytics.Monthly)))

	r, err := dateRangeQuery(c, "", "")
	if err != nil {
		return err
	}

	maxPoints := c.QueryInt("max_points", 0)
	if maxPoints != 0 && maxPoints < downsampling.MinPoints {
		return &services.ValidationError{
			Field:  "max_points",
			Reason: fmt.Sprintf("must be at least %d", downsampling.MinPoints),
		}
	}
	mode, err := downsampling.ParseMode(c.Query("downsample"))
	if err != nil {
		return &services.ValidationError{Field: "downsample", Reason: err.Error()}
	}

	points, err := h.service.GetHistoricalData(c.UserContext(), source, r, periodicity)
	if err != nil {
		return err
	}

	resp := models.HistoryResponse{
		DataSource:  string(source),
		Periodicity: string(periodicity),
		StartDate:   r.From.Format(analytics.DateLayout),
		EndDate:     r.To.Format(analytics.DateLayout),
		Points:      points,
		Count:       len(points),
	}

	if maxPoints > 0 && len(points) > maxPoints && mode != downsampling.ModeNone {
		sampled, err := downsampling.Apply(points, mode, maxPoints)
		if err != nil {
			return &services.ValidationError{Field: "downsample", Reason: err.Error()}
		}
		resp.Points = sampled
		resp.Count = len(sampled)
		resp.OriginalCount = len(points)
		resp.Downsampling = string(mode)
	}

	return c.JSON(resp)
}

// RefreshCache regenerates the historical cache of every data source
// POST /admin/cache/refresh
func (h *Handler) RefreshCache(c *fiber.Ctx) error {
	report, err := h.service.RefreshCache(c.UserContext())
	if err != nil {
		return err
	}

	resp := models.CacheRefreshResponse{Refreshed: make([]string, 0, len(report.Refreshed))}
	for _, src := range report.Refreshed {
		resp.Refreshed = append(resp.Refreshed, string(src))
	}
	if len(report.Failed) > 0 {
		resp.Failed = make(map[string]string, len(report.Failed))
		for _, f := range report.Failed {
			resp.Failed[string(f.Source)] = f.Err.Error()
		}
	}
	return c.JSON(resp)
}

// InvalidateCache drops the cached series of one data source
// DELETE /admin/cache/:source
func (h *Handler) InvalidateCache(c *fiber.Ctx) error {
	if err := h.service.InvalidateSource(c.UserContext(), ledger.DataSource(c.Params("source"))); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
