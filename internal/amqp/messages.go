package amqp

import (
	"encoding/json"
	"time"
)

// SummaryNotification is a lightweight pointer to a monthly summary row.
// It carries only identifiers; the worker fetches the full summary and
// share detail from the database before rendering the statement.
type SummaryNotification struct {
	SummaryID int64     `json:"summary_id"`
	UserID    int64     `json:"user_id"`
	Year      int       `json:"year"`
	Month     int       `json:"month"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSummaryNotification creates a notification for one user's summary.
func NewSummaryNotification(summaryID, userID int64, year, month int) *SummaryNotification {
	return &SummaryNotification{
		SummaryID: summaryID,
		UserID:    userID,
		Year:      year,
		Month:     month,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the notification to JSON bytes
func (m *SummaryNotification) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SummaryNotificationFromJSON creates a notification from JSON bytes
func SummaryNotificationFromJSON(data []byte) (*SummaryNotification, error) {
	var msg SummaryNotification
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
