package audit

import "time"

type EventType string

const (
	EventRefreshReplay EventType = "refresh-replay"
	EventUnknownKey    EventType = "unknown-kid"
	EventAccountLocked EventType = "account-locked"
	EventIPLocked      EventType = "ip-locked"
	EventTOTPEnrolled  EventType = "totp-enrolled"
	EventKeyRotated    EventType = "key-rotated"
)

// Event is one append-only security audit record.
type Event struct {
	ID        string    `gorm:"primaryKey;type:uuid"`
	EventType EventType `gorm:"column:event_type;index;not null"`
	AccountID *string   `gorm:"type:uuid;index"`
	FamilyID  *string   `gorm:"type:uuid"`
	IP        *string
	Detail    string
	CreatedAt time.Time
}

func (Event) TableName() string {
	return "security_events"
}
