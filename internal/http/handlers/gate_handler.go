// README: Gate handlers for vehicle entry and exit.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"park/internal/modules/facility"
	"park/internal/modules/spot"
)

type GateHandler struct {
	facility *facility.Facility
}

func NewGateHandler(f *facility.Facility) *GateHandler {
	return &GateHandler{facility: f}
}

type entryReq struct {
	Plate    string `json:"plate"`
	Category string `json:"category"`
	At       string `json:"at"`
}

type entryResp struct {
	SpotID    spot.ID       `json:"spot_id"`
	Plate     string        `json:"plate"`
	Category  spot.Category `json:"category"`
	EnteredAt time.Time     `json:"entered_at"`
}

func (h *GateHandler) Entry(c *gin.Context) {
	var req entryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	category, err := spot.ParseCategory(req.Category)
	if err != nil {
		writeFacilityError(c, err)
		return
	}
	at, err := parseAt(req.At)
	if err != nil {
		writeError(c, http.StatusBadRequest, "at must be RFC3339")
		return
	}
	s, err := h.facility.Admit(c.Request.Context(), facility.EntryCommand{
		Plate:    req.Plate,
		Category: category,
		At:       at,
	})
	if err != nil {
		writeFacilityError(c, err)
		return
	}
	resp := entryResp{SpotID: s.SpotID, Plate: s.Plate, Category: s.Category, EnteredAt: s.EnteredAt}
	writeJSON(c, http.StatusCreated, resp)
}

type exitReq struct {
	Plate string `json:"plate"`
	At    string `json:"at"`
}

func (h *GateHandler) Exit(c *gin.Context) {
	var req exitReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	at, err := parseAt(req.At)
	if err != nil {
		writeError(c, http.StatusBadRequest, "at must be RFC3339")
		return
	}
	r, err := h.facility.Exit(c.Request.Context(), facility.ExitCommand{Plate: req.Plate, At: at})
	if err != nil {
		writeFacilityError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}
