// README: Per-plate read handlers (receipts, active session, live quote).
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"park/internal/modules/facility"
)

type PlateHandler struct {
	facility *facility.Facility
}

func NewPlateHandler(f *facility.Facility) *PlateHandler {
	return &PlateHandler{facility: f}
}

func (h *PlateHandler) Receipts(c *gin.Context) {
	plate := facility.NormalizePlate(c.Param("plate"))
	if plate == "" {
		writeError(c, http.StatusBadRequest, "missing plate")
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{
		"plate":    plate,
		"receipts": h.facility.History(c.Request.Context(), plate),
	})
}

func (h *PlateHandler) Session(c *gin.Context) {
	s, err := h.facility.Session(c.Request.Context(), c.Param("plate"))
	if err != nil {
		writeFacilityError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, s)
}

func (h *PlateHandler) Quote(c *gin.Context) {
	at, err := parseAt(c.Query("at"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "at must be RFC3339")
		return
	}
	q, err := h.facility.Quote(c.Request.Context(), c.Param("plate"), at)
	if err != nil {
		writeFacilityError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, q)
}
