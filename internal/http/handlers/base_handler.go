// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"park/internal/logging"
	"park/internal/modules/billing"
	"park/internal/modules/facility"
	"park/internal/modules/session"
	"park/internal/modules/spot"
	"park/internal/modules/traffic"
)

type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeFacilityError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, spot.ErrSpotUnavailable):
		writeJSON(c, http.StatusConflict, errorResponse{Error: err.Error(), Retryable: true})
	case errors.Is(err, session.ErrDuplicateSession):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrUnknownSession):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrInvalidTimestamp),
		errors.Is(err, session.ErrSpanTooLong),
		errors.Is(err, session.ErrEmptyPlate),
		errors.Is(err, spot.ErrUnknownCategory),
		errors.Is(err, billing.ErrNegativeDuration),
		errors.Is(err, traffic.ErrInvalidHour):
		writeError(c, http.StatusBadRequest, err.Error())
	default:
		if errors.Is(err, facility.ErrInvariant) {
			logging.Error(c.Request.Context()).Err(err).Msg("facility invariant violated")
		} else {
			logging.Error(c.Request.Context()).Err(err).Msg("unexpected facility error")
		}
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// parseAt reads an optional RFC3339 timestamp; empty means "now" (zero time).
func parseAt(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}
