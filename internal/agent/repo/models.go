package repo

import (
	"strconv"
	"time"

	"github.com/taxi-assistant/server/internal/agent/model"
)

// POIRecord is a point of interest known to the simulator.
type POIRecord struct {
	ID       string   `gorm:"primaryKey;size:32"`
	IDUnity  int      `gorm:"index"`
	Name     string   `gorm:"size:128;index"`
	Category string   `gorm:"size:64;index"`
	Rating   *float64
	X        float64
	Y        float64
}

func (POIRecord) TableName() string { return "pois" }

// CategoryRecord is a POI category.
type CategoryRecord struct {
	Name string `gorm:"primaryKey;size:64"`
}

func (CategoryRecord) TableName() string { return "categories" }

// NeedCategory links a need to a category it can satisfy, weighted by priority.
type NeedCategory struct {
	Need     string  `gorm:"primaryKey;size:64"`
	Category string  `gorm:"primaryKey;size:64"`
	Priority float64 `gorm:"not null"`
}

func (NeedCategory) TableName() string { return "need_categories" }

// POITag labels a POI with a lowercase keyword.
type POITag struct {
	POIID string `gorm:"primaryKey;size:32"`
	Tag   string `gorm:"primaryKey;size:64;index"`
}

func (POITag) TableName() string { return "poi_tags" }

// UserRecord is a registered passenger.
type UserRecord struct {
	ID        string `gorm:"primaryKey;size:32"`
	Name      string `gorm:"size:128"`
	Age       int
	HomePOIID string `gorm:"size:32"`
}

func (UserRecord) TableName() string { return "users" }

// Like records that a user likes a POI.
type Like struct {
	UserID string `gorm:"primaryKey;size:32"`
	POIID  string `gorm:"primaryKey;size:32"`
}

func (Like) TableName() string { return "poi_likes" }

// CategoryLike is a category preference inferred from repeated visits.
type CategoryLike struct {
	UserID   string `gorm:"primaryKey;size:32"`
	Category string `gorm:"primaryKey;size:64"`
}

func (CategoryLike) TableName() string { return "category_likes" }

// Visit counts the visits of a user to a POI.
type Visit struct {
	UserID     string `gorm:"primaryKey;size:32"`
	POIID      string `gorm:"primaryKey;size:32"`
	VisitCount int    `gorm:"not null;default:1"`
	FirstAt    time.Time
	LastAt     time.Time
}

func (Visit) TableName() string { return "visits" }

// MusicPreference is a genre a user likes.
type MusicPreference struct {
	UserID string `gorm:"primaryKey;size:32"`
	Genre  string `gorm:"primaryKey;size:32"`
}

func (MusicPreference) TableName() string { return "music_preferences" }

// Condition is a medical or safety condition of a user, such as "pregnancy".
type Condition struct {
	UserID string `gorm:"primaryKey;size:32"`
	Name   string `gorm:"primaryKey;size:64"`
}

func (Condition) TableName() string { return "user_conditions" }

// PolicyRecord holds the vehicle dynamics of a driving policy.
type PolicyRecord struct {
	Name                  string `gorm:"primaryKey;size:32"`
	MaxSpeed              float64
	Acceleration          float64
	BrakePower            float64
	SteeringSpeed         float64
	ConsumptionMultiplier float64 `gorm:"not null;default:1"`
}

func (PolicyRecord) TableName() string { return "driving_policies" }

// Models lists every table owned by the repository, in migration order.
func Models() []any {
	return []any{
		&CategoryRecord{},
		&POIRecord{},
		&NeedCategory{},
		&POITag{},
		&UserRecord{},
		&Like{},
		&CategoryLike{},
		&Visit{},
		&MusicPreference{},
		&Condition{},
		&PolicyRecord{},
	}
}

func (r PolicyRecord) toModel() model.PolicyParameters {
	return model.PolicyParameters{
		Name:                  r.Name,
		MaxSpeed:              r.MaxSpeed,
		Acceleration:          r.Acceleration,
		BrakePower:            r.BrakePower,
		SteeringSpeed:         r.SteeringSpeed,
		ConsumptionMultiplier: r.ConsumptionMultiplier,
	}
}

func (r POIRecord) toModel() model.POI {
	return model.POI{
		ID:       r.ID,
		Name:     r.Name,
		IDUnity:  strconv.Itoa(r.IDUnity),
		Category: r.Category,
		Rating:   r.Rating,
		X:        r.X,
		Y:        r.Y,
	}
}
