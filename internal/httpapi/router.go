// Package httpapi wires the REST surface over the domain services.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campusattend/internal/attendance"
	"campusattend/internal/auth"
	"campusattend/internal/config"
	"campusattend/internal/httpmiddleware"
	"campusattend/internal/metrics"
	"campusattend/internal/qrtoken"
	"campusattend/internal/schedule"
	"campusattend/internal/store"
)

// API holds the handlers' dependencies.
type API struct {
	cfg        config.App
	tokens     *qrtoken.Service
	attendance *attendance.Service
	schedules  *schedule.Service
	db         *store.DB
	redis      *store.Redis
}

// New creates the API.
func New(cfg config.App, tokens *qrtoken.Service, att *attendance.Service, sched *schedule.Service, db *store.DB, redis *store.Redis) *API {
	return &API{cfg: cfg, tokens: tokens, attendance: att, schedules: sched, db: db, redis: redis}
}

// Router builds the gin engine with the full middleware stack and routes.
func (a *API) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(httpmiddleware.RequestID())
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewRateLimiter(a.cfg.RateLimitRPS, a.cfg.RateLimitBurst).Middleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", a.healthz)

	authed := r.Group("/", auth.Bearer(a.cfg.JWTSigningKey, a.cfg.JWTIssuer))
	staff := authed.Group("/", auth.RequireRoles(auth.RoleAdmin, auth.RoleInstructor))

	// QR tokens: minting and management is staff-only, validation is open to
	// any authenticated role since students' clients perform it on scan.
	staff.POST("/qr-codes", a.mintQRCode)
	staff.GET("/qr-codes", a.listQRCodes)
	staff.GET("/qr-codes/:id", a.getQRCode)
	staff.PATCH("/qr-codes/:id", a.updateQRCode)
	staff.DELETE("/qr-codes/:id", a.deleteQRCode)
	authed.POST("/qr-codes/validate", a.validateQRCode)

	authed.POST("/attendance/record", a.recordAttendance)
	staff.POST("/attendance", a.createAttendance)
	staff.PATCH("/attendance/:id", a.amendAttendance)
	staff.DELETE("/attendance/:id", a.deleteAttendance)
	staff.GET("/attendance/statistics", a.attendanceStatistics)
	staff.GET("/attendance/range", a.listAttendanceByDateRange)
	staff.GET("/attendance/schedule/:id", a.listAttendanceBySchedule)
	authed.GET("/attendance/student/:id", a.listAttendanceByStudent)
	authed.GET("/attendance/:id", a.getAttendance)

	staff.POST("/schedule", a.createSchedule)
	staff.PATCH("/schedule/:id", a.updateSchedule)
	staff.DELETE("/schedule/:id", a.deleteSchedule)
	authed.GET("/schedule", a.listSchedules)
	authed.GET("/schedule/:id", a.getSchedule)
	authed.GET("/schedule/course/:id", a.listSchedulesByCourse)

	return r
}

func (a *API) healthz(c *gin.Context) {
	redisHealthy := a.redis.Healthy(c.Request.Context())
	dbHealthy := a.db != nil && a.db.Client.PingContext(c.Request.Context()) == nil
	status := http.StatusOK
	if !redisHealthy || !dbHealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
}

func observeValidation(valid bool) {
	result := "invalid"
	if valid {
		result = "valid"
	}
	metrics.QRValidations.WithLabelValues(result).Inc()
}

// CORS middleware for browser requests.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
