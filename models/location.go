package models

import "time"

// UserLocation is one accepted reading from the location feed. Readings
// implying an implausible travel speed are rejected before a row is
// written (see services.LocationService).
type UserLocation struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"index;not null" json:"user_id"`

	Latitude  float64 `gorm:"not null" json:"latitude"`
	Longitude float64 `gorm:"not null" json:"longitude"`

	RecordedAt time.Time `gorm:"index;not null" json:"recorded_at"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
}
