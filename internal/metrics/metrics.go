// Package metrics registers the prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QRValidations counts token validations by result ("valid"/"invalid").
	QRValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qr_validations_total",
		Help: "QR token validations by result.",
	}, []string{"result"})

	// AttendanceRecords counts persisted records by path ("qr"/"manual").
	AttendanceRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_records_total",
		Help: "Attendance records created by path.",
	}, []string{"path"})

	// ScheduleConflicts counts schedule writes rejected by the conflict
	// detector.
	ScheduleConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "schedule_conflicts_total",
		Help: "Schedule writes rejected due to room/time conflicts.",
	})
)
