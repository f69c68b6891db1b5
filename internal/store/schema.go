package store

// schemaStatements bootstraps the tables the core depends on. The attendance
// uniqueness constraint on (student_id, course_id, session_date) is the
// authoritative guard against double recording; services only pre-check it
// for a friendlier error.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS students (
		student_id   BIGSERIAL PRIMARY KEY,
		student_code VARCHAR(20) UNIQUE,
		full_name    TEXT,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS courses (
		course_id   BIGSERIAL PRIMARY KEY,
		course_code VARCHAR(20) UNIQUE,
		course_name TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS schedule (
		schedule_id    BIGSERIAL PRIMARY KEY,
		course_id      BIGINT NOT NULL,
		room_id        BIGINT,
		day_of_week    VARCHAR(10) NOT NULL,
		start_time     TIME NOT NULL,
		end_time       TIME NOT NULL,
		repeat_pattern VARCHAR(50) NOT NULL DEFAULT 'weekly',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS qr_codes (
		qr_id            BIGSERIAL PRIMARY KEY,
		course_id        BIGINT NOT NULL,
		schedule_id      BIGINT NOT NULL,
		qr_code          TEXT NOT NULL UNIQUE,
		qr_image_url     TEXT,
		session_date     DATE NOT NULL,
		expires_at       TIMESTAMPTZ NOT NULL,
		duration_minutes INT,
		is_active        BOOLEAN NOT NULL DEFAULT TRUE,
		created_by       BIGINT,
		generated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS attendance (
		attendance_id BIGSERIAL PRIMARY KEY,
		student_id    BIGINT NOT NULL,
		course_id     BIGINT NOT NULL,
		schedule_id   BIGINT,
		qr_id         BIGINT,
		status        VARCHAR(10) NOT NULL DEFAULT 'present',
		session_date  DATE NOT NULL,
		scanned_at    TIMESTAMPTZ,
		location      TEXT,
		device_info   TEXT,
		ip_address    TEXT,
		notes         TEXT,
		reason        TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT attendance_student_course_date_key
			UNIQUE (student_id, course_id, session_date)
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		notification_id BIGSERIAL PRIMARY KEY,
		user_id         BIGINT NOT NULL,
		title           TEXT NOT NULL,
		message         TEXT NOT NULL,
		type            VARCHAR(30) NOT NULL DEFAULT 'attendance',
		is_read         BOOLEAN NOT NULL DEFAULT FALSE,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_schedule_room_day ON schedule (room_id, day_of_week)`,
	`CREATE INDEX IF NOT EXISTS idx_qr_codes_expires ON qr_codes (expires_at)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_student ON attendance (student_id, session_date)`,
}
