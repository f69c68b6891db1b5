package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"campusattend/internal/attendance"
	"campusattend/internal/metrics"
)

type recordRequest struct {
	QRCode     string          `json:"qr_code" binding:"required"`
	StudentID  int64           `json:"student_id" binding:"required"`
	DeviceInfo json.RawMessage `json:"device_info"`
	Location   json.RawMessage `json:"location"`
}

func (a *API) recordAttendance(c *gin.Context) {
	var req recordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := a.attendance.Record(c.Request.Context(), attendance.RecordRequest{
		QRCode:     req.QRCode,
		StudentID:  req.StudentID,
		DeviceInfo: req.DeviceInfo,
		Location:   req.Location,
		IPAddress:  c.ClientIP(),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	metrics.AttendanceRecords.WithLabelValues("qr").Inc()
	c.JSON(http.StatusCreated, rec)
}

type createAttendanceRequest struct {
	StudentID   int64  `json:"student_id" binding:"required"`
	CourseID    int64  `json:"course_id" binding:"required"`
	Status      string `json:"status" binding:"required"`
	SessionDate string `json:"session_date" binding:"required"`
	Notes       string `json:"notes"`
	Reason      string `json:"reason"`
}

func (a *API) createAttendance(c *gin.Context) {
	var req createAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sessionDate, err := time.Parse("2006-01-02", req.SessionDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_date must be YYYY-MM-DD"})
		return
	}
	rec, err := a.attendance.CreateManual(c.Request.Context(), attendance.CreateRequest{
		StudentID:   req.StudentID,
		CourseID:    req.CourseID,
		Status:      attendance.Status(req.Status),
		SessionDate: sessionDate,
		Notes:       req.Notes,
		Reason:      req.Reason,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	metrics.AttendanceRecords.WithLabelValues("manual").Inc()
	c.JSON(http.StatusCreated, rec)
}

type amendAttendanceRequest struct {
	Status *string `json:"status"`
	Notes  *string `json:"notes"`
	Reason *string `json:"reason"`
}

func (a *API) amendAttendance(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req amendAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var status *attendance.Status
	if req.Status != nil {
		s := attendance.Status(*req.Status)
		status = &s
	}
	rec, err := a.attendance.Amend(c.Request.Context(), id, status, req.Notes, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (a *API) getAttendance(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	rec, err := a.attendance.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (a *API) deleteAttendance(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := a.attendance.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "attendance record deleted successfully"})
}

func (a *API) listAttendanceByStudent(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	recs, err := a.attendance.ListByStudent(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attendance": recs})
}

func (a *API) listAttendanceBySchedule(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	recs, err := a.attendance.ListBySchedule(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attendance": recs})
}

func (a *API) listAttendanceByDateRange(c *gin.Context) {
	from, err1 := time.Parse("2006-01-02", c.Query("from"))
	to, err2 := time.Parse("2006-01-02", c.Query("to"))
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from and to must be YYYY-MM-DD"})
		return
	}
	recs, err := a.attendance.ListByDateRange(c.Request.Context(), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attendance": recs})
}

func (a *API) attendanceStatistics(c *gin.Context) {
	var courseID *int64
	if v := c.Query("course_id"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid course_id"})
			return
		}
		courseID = &parsed
	}
	stats, err := a.attendance.Statistics(c.Request.Context(), courseID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
