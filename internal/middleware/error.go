package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/soltixdb/ledgercast/internal/logging"
	"github.com/soltixdb/ledgercast/internal/models"
	"github.com/soltixdb/ledgercast/internal/services"
)

// StatusForCode maps a service error code to its HTTP status
func StatusForCode(code string) int {
	switch code {
	case services.CodeValidation, services.CodeUnknownDataSource:
		return fiber.StatusBadRequest
	case services.CodeSessionNotFound, services.CodeScenarioNotFound:
		return fiber.StatusNotFound
	case services.CodeInsufficientHistory, services.CodeNoScoredScenario:
		return fiber.StatusUnprocessableEntity
	case services.CodePersistence:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandler renders fiber errors and engine errors as ErrorResponse
func ErrorHandler(logger *logging.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			logger.Warn("Request rejected",
				"path", c.Path(),
				"method", c.Method(),
				"status", fe.Code,
				"request_id", logging.RequestID(c.UserContext()),
				"error", fe.Message)
			return c.Status(fe.Code).JSON(models.ErrorResponse{
				Error: models.ErrorDetail{
					Code:    "ERROR",
					Message: fe.Message,
					Path:    c.Path(),
				},
			})
		}

		svcErr := services.AsServiceError(err)
		status := StatusForCode(svcErr.Code)
		requestID := logging.RequestID(c.UserContext())

		if status >= fiber.StatusInternalServerError {
			logger.Error("Request failed",
				"path", c.Path(),
				"method", c.Method(),
				"status", status,
				"code", svcErr.Code,
				"request_id", requestID,
				"error", err)
		} else {
			logger.Debug("Request failed",
				"path", c.Path(),
				"method", c.Method(),
				"status", status,
				"code", svcErr.Code,
				"request_id", requestID,
				"error", err)
		}

		return c.Status(status).JSON(models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:      svcErr.Code,
				Message:   svcErr.Message,
				Path:      c.Path(),
				RequestID: requestID,
				Details:   svcErr.Details,
			},
		})
	}
}
