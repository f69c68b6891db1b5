package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campusattend/internal/schedule"
)

type createScheduleRequest struct {
	CourseID      int64  `json:"course_id" binding:"required"`
	RoomID        *int64 `json:"room_id"`
	DayOfWeek     string `json:"day_of_week" binding:"required"`
	StartTime     string `json:"start_time" binding:"required"`
	EndTime       string `json:"end_time" binding:"required"`
	RepeatPattern string `json:"repeat_pattern"`
}

func (a *API) createSchedule(c *gin.Context) {
	var req createScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	slot := &schedule.Slot{
		CourseID:      req.CourseID,
		RoomID:        req.RoomID,
		DayOfWeek:     req.DayOfWeek,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		RepeatPattern: req.RepeatPattern,
	}
	if err := a.schedules.Create(c.Request.Context(), slot); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, slot)
}

type updateScheduleRequest struct {
	CourseID      *int64  `json:"course_id"`
	RoomID        *int64  `json:"room_id"` // 0 unassigns the room
	DayOfWeek     *string `json:"day_of_week"`
	StartTime     *string `json:"start_time"`
	EndTime       *string `json:"end_time"`
	RepeatPattern *string `json:"repeat_pattern"`
}

func (a *API) updateSchedule(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req updateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ur := schedule.UpdateRequest{
		CourseID:      req.CourseID,
		DayOfWeek:     req.DayOfWeek,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		RepeatPattern: req.RepeatPattern,
	}
	if req.RoomID != nil {
		if *req.RoomID == 0 {
			ur.ClearRoom = true
		} else {
			ur.RoomID = req.RoomID
		}
	}
	slot, err := a.schedules.Update(c.Request.Context(), id, ur)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, slot)
}

func (a *API) getSchedule(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	slot, err := a.schedules.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, slot)
}

func (a *API) listSchedules(c *gin.Context) {
	slots, err := a.schedules.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedule": slots})
}

func (a *API) listSchedulesByCourse(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	slots, err := a.schedules.ListByCourse(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedule": slots})
}

func (a *API) deleteSchedule(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := a.schedules.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "schedule deleted successfully"})
}
