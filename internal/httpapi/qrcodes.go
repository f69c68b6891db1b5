package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"campusattend/internal/auth"
	"campusattend/internal/qrtoken"
)

type mintRequest struct {
	ScheduleID  int64      `json:"schedule_id" binding:"required"`
	ExpiresAt   *time.Time `json:"expires_at"`
	Duration    int        `json:"duration"` // minutes
	SessionDate string     `json:"session_date"`
}

func (a *API) mintQRCode(c *gin.Context) {
	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mr := qrtoken.MintRequest{
		ScheduleID: req.ScheduleID,
		Duration:   time.Duration(req.Duration) * time.Minute,
	}
	if req.ExpiresAt != nil {
		mr.ExpiresAt = *req.ExpiresAt
	}
	if req.SessionDate != "" {
		d, err := time.Parse("2006-01-02", req.SessionDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_date must be YYYY-MM-DD"})
			return
		}
		mr.SessionDate = d
	}
	if claims, ok := auth.FromContext(c); ok && claims.UserID != 0 {
		mr.IssuerID = &claims.UserID
	}

	token, err := a.tokens.Mint(c.Request.Context(), mr)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, token)
}

func (a *API) listQRCodes(c *gin.Context) {
	tokens, err := a.tokens.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"qr_codes": tokens})
}

func (a *API) getQRCode(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	token, err := a.tokens.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, token)
}

type updateQRCodeRequest struct {
	IsActive  *bool      `json:"is_active"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// updateQRCode supports two mutations: deactivating a token, and extending
// its validity. An extension is a reissue: the old row is retired and a new
// ciphertext is minted, since the ciphertext is the lookup key and never
// changes in place.
func (a *API) updateQRCode(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req updateQRCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.IsActive != nil && *req.IsActive {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a deactivated QR code cannot be reactivated"})
		return
	}

	ctx := c.Request.Context()
	if req.ExpiresAt != nil {
		token, err := a.tokens.Reissue(ctx, id, *req.ExpiresAt)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, token)
		return
	}
	if req.IsActive != nil {
		if err := a.tokens.Deactivate(ctx, id); err != nil {
			writeError(c, err)
			return
		}
		token, err := a.tokens.Get(ctx, id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, token)
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
}

func (a *API) deleteQRCode(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := a.tokens.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "QR code deleted successfully"})
}

type validateRequest struct {
	QRCode string `json:"qr_code" binding:"required"`
}

func (a *API) validateQRCode(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	v, err := a.tokens.Validate(c.Request.Context(), req.QRCode)
	if err != nil {
		writeError(c, err)
		return
	}
	observeValidation(v.IsValid)
	c.JSON(http.StatusOK, v)
}

// pathID parses the :id segment, writing a 400 on failure.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}
