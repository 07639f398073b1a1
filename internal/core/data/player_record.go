package data

import (
	"time"

	"gorm.io/gorm"
)

// PlayerRecord tracks one player object from spawn to removal.
type PlayerRecord struct {
	ID           uint64 `gorm:"primaryKey"`
	SessionID    string `gorm:"index; not null"`
	ConnectionID int
	Slot         int16
	NetID        uint32
	AddedAt      time.Time
	RemovedAt    *time.Time
}

func CreatePlayerRecord(db *gorm.DB, player *PlayerRecord) error {
	return db.Create(player).Error
}

// RemovePlayerRecord marks the live player in slot of the connection as removed.
func RemovePlayerRecord(db *gorm.DB, sessionID string, connID int, slot int16, at time.Time) error {
	return db.Model(&PlayerRecord{}).
		Where("session_id = ? AND connection_id = ? AND slot = ? AND removed_at IS NULL", sessionID, connID, slot).
		Update("removed_at", at).Error
}

// FindActivePlayers returns the players of a session that haven't been removed.
func FindActivePlayers(db *gorm.DB, sessionID string) ([]PlayerRecord, error) {
	var players []PlayerRecord
	err := db.Where("session_id = ? AND removed_at IS NULL", sessionID).Order("id").Find(&players).Error
	return players, err
}
