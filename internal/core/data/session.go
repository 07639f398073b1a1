package data

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// SessionRecord is one run of a server, client or host.
type SessionRecord struct {
	ID        string `gorm:"primaryKey"`
	Mode      string `gorm:"not null"`
	Address   string
	StartedAt time.Time
	StoppedAt *time.Time
}

// FindSession returns the session with the given ID, or nil if there isn't one.
func FindSession(db *gorm.DB, id string) (*SessionRecord, error) {
	var session SessionRecord
	err := db.First(&session, "id = ?", id).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &session, nil
}

func CreateSession(db *gorm.DB, session *SessionRecord) error {
	return db.Create(session).Error
}

// StopSession records the time a session ended.
func StopSession(db *gorm.DB, id string, at time.Time) error {
	return db.Model(&SessionRecord{}).Where("id = ?", id).Update("stopped_at", at).Error
}
