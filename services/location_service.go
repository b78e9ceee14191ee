package services

import (
	"errors"
	"log"
	"math"
	"time"

	"treasure-match-engine/game"
	"treasure-match-engine/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// MaxSpeedKMH is the plausibility ceiling for movement between two
	// consecutive readings. Anything faster is a spoofed coordinate.
	MaxSpeedKMH = 1000.0

	// minSpeedCheckGap: readings closer together than this are too
	// noisy to derive a meaningful speed from, so they pass unchecked.
	minSpeedCheckGap = 6 * time.Second

	// locationRetention: accepted readings older than this are swept.
	locationRetention = 24 * time.Hour
)

// LocationService guards the location feed that gates treasure finds.
// A reading implying implausible speed relative to the previous one is
// rejected, not stored.
type LocationService struct {
	DB *gorm.DB
}

func NewLocationService(db *gorm.DB) *LocationService {
	return &LocationService{DB: db}
}

// HaversineKM is the great-circle distance between two coordinates.
func HaversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKM = 6371.0

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKM * c
}

func toRad(degrees float64) float64 {
	return degrees * (math.Pi / 180)
}

// SpeedKMH derives the implied speed between two readings. Zero when
// the readings are too close in time to judge.
func SpeedKMH(prev, next *models.UserLocation) float64 {
	gap := next.RecordedAt.Sub(prev.RecordedAt)
	if gap < minSpeedCheckGap {
		return 0
	}
	distance := HaversineKM(prev.Latitude, prev.Longitude, next.Latitude, next.Longitude)
	return distance / gap.Hours()
}

// checkMovement validates a reading against the previous accepted one.
// Timestamps must move strictly forward: a backdated or replayed
// reading would shrink the measured gap under the check threshold, so
// it is treated as spoofing, not noise.
func checkMovement(prev, next *models.UserLocation) error {
	if !next.RecordedAt.After(prev.RecordedAt) {
		return game.ErrSuspiciousMovement
	}
	if SpeedKMH(prev, next) > MaxSpeedKMH {
		return game.ErrSuspiciousMovement
	}
	return nil
}

// ReportLocation validates a reading against the user's previous one
// and stores it. Returns ErrSuspiciousMovement for implausible jumps
// and for timestamps that run backwards. Client timestamps ahead of
// server time are clamped to now.
func (ls *LocationService) ReportLocation(userID string, lat, lon float64, recordedAt time.Time) (*models.UserLocation, error) {
	now := time.Now().UTC()
	recordedAt = recordedAt.UTC()
	if recordedAt.After(now) {
		recordedAt = now
	}

	reading := &models.UserLocation{
		ID:         uuid.NewString(),
		UserID:     userID,
		Latitude:   lat,
		Longitude:  lon,
		RecordedAt: recordedAt,
	}

	var prev models.UserLocation
	err := ls.DB.Where("user_id = ?", userID).
		Order("recorded_at DESC").
		First(&prev).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if err == nil {
		if err := checkMovement(&prev, reading); err != nil {
			log.Printf("[Location] 🚨 Rejected reading for user %s: (%.5f, %.5f) at %s after (%.5f, %.5f) at %s",
				userID, lat, lon, reading.RecordedAt.Format(time.RFC3339),
				prev.Latitude, prev.Longitude, prev.RecordedAt.Format(time.RFC3339))
			return nil, err
		}
	}

	if err := ls.DB.Create(reading).Error; err != nil {
		return nil, err
	}
	return reading, nil
}

// CleanupHistory drops readings past the retention window. Run from
// the scheduler; stateless and safe on any instance.
func (ls *LocationService) CleanupHistory() {
	cutoff := time.Now().UTC().Add(-locationRetention)
	res := ls.DB.Where("recorded_at < ?", cutoff).Delete(&models.UserLocation{})
	if res.Error != nil {
		log.Printf("[Location] ❌ History cleanup failed: %v", res.Error)
		return
	}
	if res.RowsAffected > 0 {
		log.Printf("[Location] 🧹 Removed %d location reading(s) older than %s", res.RowsAffected, locationRetention)
	}
}

// ---- HTTP handlers ----

type reportLocationRequest struct {
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	RecordedAt *time.Time `json:"recorded_at,omitempty"`
}

func (ls *LocationService) ReportLocationHandler(c *fiber.Ctx) error {
	var req reportLocationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	userID := c.Locals("user_id").(string)

	recordedAt := time.Now().UTC()
	if req.RecordedAt != nil {
		recordedAt = *req.RecordedAt
	}

	reading, err := ls.ReportLocation(userID, req.Latitude, req.Longitude, recordedAt)
	if err != nil {
		return matchErrorResponse(c, err)
	}
	return c.Status(201).JSON(reading)
}
