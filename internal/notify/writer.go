package notify

import (
	"context"
	"database/sql"
	"fmt"
)

// Notification mirrors a row of the notifications table.
type Notification struct {
	ID      int64  `json:"notification_id"`
	UserID  int64  `json:"user_id"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Type    string `json:"type"`
	IsRead  bool   `json:"is_read"`
}

// Writer persists notifications produced from queue messages.
type Writer struct {
	db *sql.DB
}

// NewWriter creates a writer.
func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// Process turns a queue message into a stored notification. Unknown message
// types are ignored so old workers tolerate new producers.
func (w *Writer) Process(ctx context.Context, msg Message) error {
	switch msg.Type {
	case "attendance.recorded":
		n := Notification{
			UserID: msg.StudentID,
			Title:  "Attendance recorded",
			Message: fmt.Sprintf("Attendance marked %s for course %d on %s",
				msg.Status, msg.CourseID, msg.SessionDate),
			Type: "attendance",
		}
		return w.insert(ctx, &n)
	default:
		return nil
	}
}

func (w *Writer) insert(ctx context.Context, n *Notification) error {
	row := w.db.QueryRowContext(ctx, `
		INSERT INTO notifications (user_id, title, message, type)
		VALUES ($1,$2,$3,$4)
		RETURNING notification_id
	`, n.UserID, n.Title, n.Message, n.Type)
	return row.Scan(&n.ID)
}
