// README: Facility-wide handlers (status, spots, traffic, invariant check).
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"park/internal/logging"
	"park/internal/modules/facility"
	"park/internal/modules/receipt"
)

// ArchiveStats reports the receipt archive queue; nil when archiving is off.
type ArchiveStats interface {
	Stats() receipt.ArchiverStats
}

type FacilityHandler struct {
	facility *facility.Facility
	archive  ArchiveStats
}

func NewFacilityHandler(f *facility.Facility, archive ArchiveStats) *FacilityHandler {
	return &FacilityHandler{facility: f, archive: archive}
}

func (h *FacilityHandler) Status(c *gin.Context) {
	resp := map[string]any{"facility": h.facility.Status(c.Request.Context())}
	if h.archive != nil {
		resp["archive"] = h.archive.Stats()
	}
	writeJSON(c, http.StatusOK, resp)
}

func (h *FacilityHandler) Spots(c *gin.Context) {
	writeJSON(c, http.StatusOK, map[string]any{"spots": h.facility.Spots(c.Request.Context())})
}

type trafficResp struct {
	Hours     []uint64 `json:"hours"`
	Total     uint64   `json:"total"`
	PeakHour  int      `json:"peak_hour"`
	PeakCount uint64   `json:"peak_count"`
}

func (h *FacilityHandler) Traffic(c *gin.Context) {
	snap := h.facility.TrafficSnapshot(c.Request.Context())
	peak, count := snap.Peak()
	writeJSON(c, http.StatusOK, trafficResp{
		Hours:     snap[:],
		Total:     snap.Total(),
		PeakHour:  peak,
		PeakCount: count,
	})
}

func (h *FacilityHandler) Invariants(c *gin.Context) {
	if err := h.facility.CheckInvariants(); err != nil {
		logging.Error(c.Request.Context()).Err(err).Msg("invariant check failed")
		writeJSON(c, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"ok": true})
}
