package httpapi

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"campusattend/internal/attendance"
	"campusattend/internal/metrics"
	"campusattend/internal/qrtoken"
	"campusattend/internal/schedule"
	"campusattend/internal/store"
)

// writeError translates domain errors into HTTP responses. Validation and
// uniqueness failures become 400s, missing rows 404s; anything else is a
// server fault that gets logged and surfaced as 500, never masked.
func writeError(c *gin.Context, err error) {
	var conflict *schedule.ConflictError
	switch {
	case errors.As(err, &conflict):
		metrics.ScheduleConflicts.Inc()
		c.JSON(http.StatusBadRequest, gin.H{
			"error":                   conflict.Error(),
			"conflicting_schedule_id": conflict.Conflicting.ID,
		})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, attendance.ErrInvalidToken),
		errors.Is(err, attendance.ErrDuplicateAttendance),
		errors.Is(err, attendance.ErrInvalidStatus),
		errors.Is(err, qrtoken.ErrExpiryInPast),
		errors.Is(err, schedule.ErrInvalidSlot):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
