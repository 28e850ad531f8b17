package repo

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	errx "github.com/taxi-assistant/server/internal/core/error"
	logx "github.com/taxi-assistant/server/pkg/logger"
)

//go:embed seed.yaml
var seedYAML []byte

// Fixtures is the knowledge base loaded by Seed.
type Fixtures struct {
	Categories []string                 `yaml:"categories"`
	Needs      map[string][]NeedFixture `yaml:"needs"`
	POIs       []POIFixture             `yaml:"pois"`
	Genres     []string                 `yaml:"genres"`
	Users      []UserFixture            `yaml:"users"`
	Policies   []PolicyFixture          `yaml:"policies"`
}

type NeedFixture struct {
	Category string  `yaml:"category"`
	Priority float64 `yaml:"priority"`
}

type POIFixture struct {
	ID       string   `yaml:"id"`
	IDUnity  int      `yaml:"id_unity"`
	Name     string   `yaml:"name"`
	Category string   `yaml:"category"`
	Rating   float64  `yaml:"rating"`
	Tags     []string `yaml:"tags"`
}

type PolicyFixture struct {
	Name                  string  `yaml:"name"`
	MaxSpeed              float64 `yaml:"max_speed"`
	Acceleration          float64 `yaml:"acceleration"`
	BrakePower            float64 `yaml:"brake_power"`
	SteeringSpeed         float64 `yaml:"steering_speed"`
	ConsumptionMultiplier float64 `yaml:"consumption_multiplier"`
}

type UserFixture struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	Age        int      `yaml:"age"`
	Genre      string   `yaml:"genre"`
	Home       string   `yaml:"home"`
	Likes      []string `yaml:"likes"`
	Visits     []string `yaml:"visits"`
	Conditions []string `yaml:"conditions"`
}

// DefaultFixtures decodes the embedded knowledge base.
func DefaultFixtures() (*Fixtures, error) {
	return ParseFixtures(seedYAML)
}

// ParseFixtures decodes a YAML knowledge base.
func ParseFixtures(data []byte) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode seed fixtures: %w", err)
	}
	return &f, nil
}

// Migrate creates or updates the repository tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return errx.WrapDatabase(fmt.Errorf("failed to migrate schema: %w", err))
	}
	return nil
}

// Seed replaces the whole knowledge base with f in a single transaction.
func Seed(ctx context.Context, db *gorm.DB, f *Fixtures) error {
	if err := Migrate(db); err != nil {
		return err
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := reset(tx); err != nil {
			return err
		}
		return insertFixtures(tx, f)
	})
	if err != nil {
		return errx.WrapDatabase(err)
	}
	logx.Info().
		Int("categories", len(f.Categories)).
		Int("needs", len(f.Needs)).
		Int("pois", len(f.POIs)).
		Int("users", len(f.Users)).
		Int("policies", len(f.Policies)).
		Msg("knowledge base seeded")
	return nil
}

// SeedIfEmpty seeds the knowledge base only when no POI is stored yet.
func SeedIfEmpty(ctx context.Context, db *gorm.DB, f *Fixtures) (bool, error) {
	if err := Migrate(db); err != nil {
		return false, err
	}
	var count int64
	if err := db.WithContext(ctx).Model(&POIRecord{}).Count(&count).Error; err != nil {
		return false, errx.WrapDatabase(err)
	}
	if count > 0 {
		return false, nil
	}
	return true, Seed(ctx, db, f)
}

func reset(tx *gorm.DB) error {
	models := Models()
	for i := len(models) - 1; i >= 0; i-- {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(models[i]).Error; err != nil {
			return fmt.Errorf("failed to reset %T: %w", models[i], err)
		}
	}
	return nil
}

func insertFixtures(tx *gorm.DB, f *Fixtures) error {
	now := time.Now().UTC()

	categories := make([]CategoryRecord, 0, len(f.Categories))
	for _, c := range f.Categories {
		categories = append(categories, CategoryRecord{Name: c})
	}
	if err := createAll(tx, categories); err != nil {
		return err
	}

	needNames := make([]string, 0, len(f.Needs))
	for n := range f.Needs {
		needNames = append(needNames, n)
	}
	sort.Strings(needNames)
	var rules []NeedCategory
	for _, n := range needNames {
		for _, r := range f.Needs[n] {
			rules = append(rules, NeedCategory{Need: n, Category: r.Category, Priority: r.Priority})
		}
	}
	if err := createAll(tx, rules); err != nil {
		return err
	}

	policies := make([]PolicyRecord, 0, len(f.Policies))
	for _, p := range f.Policies {
		policies = append(policies, PolicyRecord{
			Name:                  p.Name,
			MaxSpeed:              p.MaxSpeed,
			Acceleration:          p.Acceleration,
			BrakePower:            p.BrakePower,
			SteeringSpeed:         p.SteeringSpeed,
			ConsumptionMultiplier: p.ConsumptionMultiplier,
		})
	}
	if err := createAll(tx, policies); err != nil {
		return err
	}

	pois := make([]POIRecord, 0, len(f.POIs))
	var tags []POITag
	for _, p := range f.POIs {
		rating := p.Rating
		pois = append(pois, POIRecord{ID: p.ID, IDUnity: p.IDUnity, Name: p.Name, Category: p.Category, Rating: &rating})
		for _, t := range p.Tags {
			tags = append(tags, POITag{POIID: p.ID, Tag: strings.ToLower(t)})
		}
	}
	if err := createAll(tx, pois); err != nil {
		return err
	}
	if err := createAll(tx, tags); err != nil {
		return err
	}

	var (
		users      []UserRecord
		likes      []Like
		visits     []Visit
		prefs      []MusicPreference
		conditions []Condition
	)
	for _, u := range f.Users {
		users = append(users, UserRecord{ID: u.ID, Name: u.Name, Age: u.Age, HomePOIID: u.Home})
		if u.Genre != "" {
			prefs = append(prefs, MusicPreference{UserID: u.ID, Genre: u.Genre})
		}
		for _, id := range u.Likes {
			likes = append(likes, Like{UserID: u.ID, POIID: id})
		}
		for _, id := range u.Visits {
			visits = append(visits, Visit{UserID: u.ID, POIID: id, VisitCount: 1, FirstAt: now, LastAt: now})
		}
		for _, c := range u.Conditions {
			conditions = append(conditions, Condition{UserID: u.ID, Name: c})
		}
	}
	for _, batch := range []func() error{
		func() error { return createAll(tx, users) },
		func() error { return createAll(tx, likes) },
		func() error { return createAll(tx, visits) },
		func() error { return createAll(tx, prefs) },
		func() error { return createAll(tx, conditions) },
	} {
		if err := batch(); err != nil {
			return err
		}
	}
	return nil
}

// createAll inserts rows, skipping duplicates of composite keys.
func createAll[T any](tx *gorm.DB, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
		var zero T
		return fmt.Errorf("failed to insert %T: %w", zero, err)
	}
	return nil
}
