package controller

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docgen/docgen-sub000/internal/adapters/primary/http/dto"
	"github.com/docgen/docgen-sub000/internal/adapters/primary/http/middleware"
	"github.com/docgen/docgen-sub000/internal/core/errkind"
)

// HandleError maps a domain error to its HTTP status and body, per §7's
// kind table. Unrecognized errors are treated as internal and logged.
func HandleError(c *gin.Context, err error) {
	correlationID := middleware.GetCorrelationID(c)

	kind, ok := errkind.As(err)
	if !ok {
		slog.ErrorContext(c.Request.Context(), "unhandled error", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: dto.ErrorBody{
			Kind:          string(errkind.Internal),
			Message:       "internal error",
			CorrelationID: correlationID,
			Retryable:     false,
		}})
		return
	}

	if kind.Kind == errkind.Internal {
		slog.ErrorContext(c.Request.Context(), "unhandled error", slog.Any("error", err))
	}

	c.JSON(kind.Kind.HTTPStatus(), dto.ErrorResponse{Error: dto.ErrorBody{
		Kind:          string(kind.Kind),
		Message:       kind.Message,
		CorrelationID: correlationID,
		Retryable:     kind.Retryable(),
	}})
}
