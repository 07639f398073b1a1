package data

import (
	"time"

	"gorm.io/gorm"
)

// SceneTransition is one scene load, from the moment it was issued until it
// completed. CompletedAt stays nil for loads that never finished.
type SceneTransition struct {
	ID          uint64 `gorm:"primaryKey"`
	SessionID   string `gorm:"index; not null"`
	Scene       string `gorm:"not null"`
	Server      bool
	RequestedAt time.Time
	CompletedAt *time.Time
	Duration    time.Duration
}

func CreateSceneTransition(db *gorm.DB, transition *SceneTransition) error {
	return db.Create(transition).Error
}

// CompleteSceneTransition marks the most recent unfinished load of scene as done.
func CompleteSceneTransition(db *gorm.DB, sessionID, scene string, at time.Time, took time.Duration) error {
	var transition SceneTransition
	err := db.Where("session_id = ? AND scene = ? AND completed_at IS NULL", sessionID, scene).
		Order("id desc").
		First(&transition).Error
	if err != nil {
		return err
	}
	return db.Model(&transition).Updates(map[string]interface{}{
		"completed_at": at,
		"duration":     took,
	}).Error
}

// FindSceneTransitions returns every load of the session in the order they were issued.
func FindSceneTransitions(db *gorm.DB, sessionID string) ([]SceneTransition, error) {
	var transitions []SceneTransition
	err := db.Where("session_id = ?", sessionID).Order("id").Find(&transitions).Error
	return transitions, err
}
