// Package repo is the relational knowledge base of places, passengers and
// their preferences.
package repo

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/taxi-assistant/server/internal/agent/model"
	errx "github.com/taxi-assistant/server/internal/core/error"
	logx "github.com/taxi-assistant/server/pkg/logger"
)

const (
	defaultRankLimit   = 4
	defaultSearchLimit = 5
	minSearchChars     = 2

	likeBoost     = 2.0
	visitBoost    = 1.5
	defaultRating = 3.0

	// categoryLikeVisits distinct visited POIs of a category infer a category preference.
	categoryLikeVisits = 3

	categoryResidential = "Residenziale"
	needLodging         = "Alloggio"
)

// needAliases maps alternative need names onto the stored ones.
var needAliases = map[string]string{
	"Hunger":        "Fame",
	"Thirst":        "Sete",
	"Entertainment": "Divertimento",
	"Health":        "Salute",
	"Transport":     "Trasporto",
	"Money":         "Denaro",
	"Culture":       "Cultura",
	"Accommodation": "Alloggio",
	"Work":          "Lavoro",
}

// nameStopwords are dropped from name lookups ("portami alla pizzeria da peppe").
var nameStopwords = map[string]bool{
	"al": true, "alla": true, "allo": true, "ai": true, "alle": true,
	"da": true, "dal": true, "dalla": true, "il": true, "la": true, "lo": true,
}

// NormalizeNeed maps an alternative need name onto the stored one.
func NormalizeNeed(need string) string {
	need = strings.TrimSpace(need)
	if n, ok := needAliases[need]; ok {
		return n
	}
	return need
}

// Repository implements model.POIRepository on gorm.
type Repository struct {
	db   *gorm.DB
	now  func() time.Time
	pick func(n int) int
}

// New returns a repository over db. Tables must already be migrated.
func New(db *gorm.DB) *Repository {
	return &Repository{
		db:   db,
		now:  func() time.Time { return time.Now().UTC() },
		pick: rand.IntN,
	}
}

type userMarks struct {
	liked   map[string]bool
	visited map[string]bool
	home    string
}

func (r *Repository) marks(ctx context.Context, userID string) (userMarks, error) {
	m := userMarks{liked: map[string]bool{}, visited: map[string]bool{}}
	if userID == "" {
		return m, nil
	}
	db := r.db.WithContext(ctx)

	var liked []string
	if err := db.Model(&Like{}).Where("user_id = ?", userID).Pluck("poi_id", &liked).Error; err != nil {
		return m, err
	}
	for _, id := range liked {
		m.liked[id] = true
	}

	var visited []string
	if err := db.Model(&Visit{}).Where("user_id = ?", userID).Pluck("poi_id", &visited).Error; err != nil {
		return m, err
	}
	for _, id := range visited {
		m.visited[id] = true
	}

	var homes []string
	if err := db.Model(&UserRecord{}).Where("id = ?", userID).Limit(1).Pluck("home_poi_id", &homes).Error; err != nil {
		return m, err
	}
	if len(homes) > 0 {
		m.home = homes[0]
	}
	return m, nil
}

func (m userMarks) score(rec POIRecord, priority float64) model.POI {
	p := rec.toModel()
	p.Liked = m.liked[rec.ID]
	p.Visited = m.visited[rec.ID]
	rating := defaultRating
	if rec.Rating != nil {
		rating = *rec.Rating
	}
	score := priority * rating
	if p.Liked {
		score *= likeBoost
	}
	if p.Visited {
		score *= visitBoost
	}
	p.Score = score
	return p
}

// rank orders by descending score, then by identifier.
func rank(pois []model.POI, limit int) []model.POI {
	sort.SliceStable(pois, func(i, j int) bool {
		if pois[i].Score != pois[j].Score {
			return pois[i].Score > pois[j].Score
		}
		return pois[i].ID < pois[j].ID
	})
	if limit > 0 && len(pois) > limit {
		pois = pois[:limit]
	}
	return pois
}

// POIsByNeed ranks the POIs of the categories suggested by need. For lodging
// the only residence offered is the user's own home.
func (r *Repository) POIsByNeed(ctx context.Context, userID, need string, limit int) ([]model.POI, error) {
	if limit <= 0 {
		limit = defaultRankLimit
	}
	need = NormalizeNeed(need)
	start := time.Now()
	db := r.db.WithContext(ctx)

	var rules []NeedCategory
	if err := db.Where("need = ?", need).Find(&rules).Error; err != nil {
		return nil, errx.WrapDatabase(err)
	}
	if len(rules) == 0 {
		return []model.POI{}, nil
	}
	priority := make(map[string]float64, len(rules))
	categories := make([]string, 0, len(rules))
	for _, rule := range rules {
		priority[rule.Category] = rule.Priority
		categories = append(categories, rule.Category)
	}

	var records []POIRecord
	if err := db.Where("category IN ?", categories).Find(&records).Error; err != nil {
		return nil, errx.WrapDatabase(err)
	}
	m, err := r.marks(ctx, userID)
	if err != nil {
		return nil, errx.WrapDatabase(err)
	}

	out := make([]model.POI, 0, len(records))
	for _, rec := range records {
		if need == needLodging && rec.Category == categoryResidential && rec.ID != m.home {
			continue
		}
		out = append(out, m.score(rec, priority[rec.Category]))
	}
	out = rank(out, limit)

	logx.Info().
		Str("need", need).
		Str("user_id", userID).
		Int("results", len(out)).
		Dur("elapsed", time.Since(start)).
		Msg("pois by need")
	return out, nil
}

// POIsByTag ranks the POIs labelled with tag, ignoring case.
func (r *Repository) POIsByTag(ctx context.Context, userID, tag string, limit int) ([]model.POI, error) {
	if limit <= 0 {
		limit = defaultRankLimit
	}
	tag = strings.ToLower(strings.TrimSpace(tag))
	start := time.Now()
	db := r.db.WithContext(ctx)

	var records []POIRecord
	err := db.Where("id IN (?)", db.Model(&POITag{}).Select("poi_id").Where("LOWER(tag) = ?", tag)).
		Find(&records).Error
	if err != nil {
		return nil, errx.WrapDatabase(err)
	}
	m, err := r.marks(ctx, userID)
	if err != nil {
		return nil, errx.WrapDatabase(err)
	}

	out := make([]model.POI, 0, len(records))
	for _, rec := range records {
		out = append(out, m.score(rec, 1))
	}
	out = rank(out, limit)

	logx.Info().
		Str("tag", tag).
		Str("user_id", userID).
		Int("results", len(out)).
		Dur("elapsed", time.Since(start)).
		Msg("pois by tag")
	return out, nil
}

// nameTokens splits a spoken place name into the tokens a POI name must contain.
func nameTokens(name string) []string {
	fields := strings.Fields(strings.ToLower(name))
	var tokens []string
	for _, f := range fields {
		if nameStopwords[f] || len([]rune(f)) <= 2 {
			continue
		}
		tokens = append(tokens, f)
	}
	if len(tokens) == 0 {
		if joined := strings.Join(fields, " "); joined != "" {
			tokens = []string{joined}
		}
	}
	return tokens
}

// likePattern builds a LIKE operand matching s anywhere, with wildcards escaped.
func likePattern(s string) string {
	s = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
	return "%" + s + "%"
}

// containing loads the POIs whose lowercase name contains every token.
func (r *Repository) containing(ctx context.Context, tokens ...string) ([]POIRecord, error) {
	q := r.db.WithContext(ctx).Model(&POIRecord{})
	for _, t := range tokens {
		q = q.Where(`LOWER(name) LIKE ? ESCAPE '\'`, likePattern(t))
	}
	var records []POIRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, errx.WrapDatabase(err)
	}
	return records, nil
}

func byLength(records []POIRecord, first func(POIRecord) bool) {
	sort.SliceStable(records, func(i, j int) bool {
		if first != nil {
			fi, fj := first(records[i]), first(records[j])
			if fi != fj {
				return fi
			}
		}
		li, lj := len([]rune(records[i].Name)), len([]rune(records[j].Name))
		if li != lj {
			return li < lj
		}
		return records[i].ID < records[j].ID
	})
}

func notFound(format string, args ...any) error {
	return errx.NotFound(fmt.Errorf(format, args...))
}

// FindPOIByName matches a spoken name token by token, so "antico forno"
// finds "Forno Antico". The shortest matching name wins.
func (r *Repository) FindPOIByName(ctx context.Context, name string) (*model.POI, error) {
	tokens := nameTokens(name)
	if len(tokens) == 0 {
		return nil, notFound("poi named %q not found", name)
	}
	records, err := r.containing(ctx, tokens...)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, notFound("poi named %q not found", name)
	}
	byLength(records, nil)
	p := records[0].toModel()
	logx.Debug().Str("query", name).Str("poi", p.Name).Msg("poi found by name")
	return &p, nil
}

// POIByName matches name as a substring, preferring an exact match.
func (r *Repository) POIByName(ctx context.Context, name string) (*model.POI, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" {
		return nil, notFound("poi named %q not found", name)
	}
	records, err := r.containing(ctx, lower)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, notFound("poi named %q not found", name)
	}
	byLength(records, func(rec POIRecord) bool { return strings.ToLower(rec.Name) == lower })
	p := records[0].toModel()
	return &p, nil
}

// POIByID loads a POI by identifier.
func (r *Repository) POIByID(ctx context.Context, id string) (*model.POI, error) {
	var rec POIRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, errx.WrapDatabase(err)
	}
	p := rec.toModel()
	return &p, nil
}

// SearchPOIs autocompletes a partial name. Prefix matches come first, then
// shorter names. Queries under two characters return nothing.
func (r *Repository) SearchPOIs(ctx context.Context, query string, limit int) ([]model.POI, error) {
	term := strings.ToLower(strings.TrimSpace(query))
	if len([]rune(term)) < minSearchChars {
		return []model.POI{}, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	records, err := r.containing(ctx, term)
	if err != nil {
		return nil, err
	}
	byLength(records, func(rec POIRecord) bool { return strings.HasPrefix(strings.ToLower(rec.Name), term) })
	if len(records) > limit {
		records = records[:limit]
	}
	out := make([]model.POI, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.toModel())
	}
	return out, nil
}

func (r *Repository) user(ctx context.Context, userID string) (*UserRecord, error) {
	var u UserRecord
	if err := r.db.WithContext(ctx).Where("id = ?", userID).First(&u).Error; err != nil {
		return nil, errx.WrapDatabase(err)
	}
	return &u, nil
}

// UserHome returns the POI the user lives at.
func (r *Repository) UserHome(ctx context.Context, userID string) (*model.POI, error) {
	u, err := r.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.HomePOIID == "" {
		return nil, notFound("user %s has no home", userID)
	}
	return r.POIByID(ctx, u.HomePOIID)
}

// User loads a passenger profile with their conditions.
func (r *Repository) User(ctx context.Context, userID string) (*model.User, error) {
	u, err := r.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	conditions, err := r.UserConditions(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &model.User{ID: u.ID, Name: u.Name, HomePOIID: u.HomePOIID, Conditions: conditions}, nil
}

// UserConditions lists the conditions of a user; unknown users have none.
func (r *Repository) UserConditions(ctx context.Context, userID string) ([]string, error) {
	conditions := []string{}
	err := r.db.WithContext(ctx).Model(&Condition{}).
		Where("user_id = ?", userID).
		Order("name").
		Pluck("name", &conditions).Error
	if err != nil {
		return nil, errx.WrapDatabase(err)
	}
	return conditions, nil
}

// MusicPreference returns one of the user's genres, chosen at random when
// several are stored, or "" when none is.
func (r *Repository) MusicPreference(ctx context.Context, userID string) (string, error) {
	var genres []string
	err := r.db.WithContext(ctx).Model(&MusicPreference{}).
		Where("user_id = ?", userID).
		Order("genre").
		Pluck("genre", &genres).Error
	if err != nil {
		return "", errx.WrapDatabase(err)
	}
	if len(genres) == 0 {
		return "", nil
	}
	selected := genres[r.pick(len(genres))]
	logx.Debug().Str("user_id", userID).Strs("genres", genres).Str("selected", selected).Msg("music preference")
	return selected, nil
}

// SetMusicPreference adds genre to the user's preferred genres.
func (r *Repository) SetMusicPreference(ctx context.Context, userID, genre string) error {
	if _, err := r.user(ctx, userID); err != nil {
		return err
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&MusicPreference{UserID: userID, Genre: genre}).Error
	return errx.WrapDatabase(err)
}

// RecordVisit increments the visit counter between user and POI. Once the
// user has visited enough distinct POIs of a category, the category is
// recorded as liked.
func (r *Repository) RecordVisit(ctx context.Context, userID, poiID string) error {
	now := r.now()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var poi POIRecord
		if err := tx.Where("id = ?", poiID).First(&poi).Error; err != nil {
			return err
		}
		var users int64
		if err := tx.Model(&UserRecord{}).Where("id = ?", userID).Count(&users).Error; err != nil {
			return err
		}
		if users == 0 {
			return gorm.ErrRecordNotFound
		}

		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "poi_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"visit_count": gorm.Expr("visits.visit_count + 1"),
				"last_at":     now,
			}),
		}).Create(&Visit{UserID: userID, POIID: poiID, VisitCount: 1, FirstAt: now, LastAt: now}).Error
		if err != nil {
			return err
		}
		if poi.Category == "" {
			return nil
		}

		var distinct int64
		err = tx.Model(&Visit{}).
			Joins("JOIN pois ON pois.id = visits.poi_id").
			Where("visits.user_id = ? AND pois.category = ?", userID, poi.Category).
			Count(&distinct).Error
		if err != nil {
			return err
		}
		if distinct < categoryLikeVisits {
			return nil
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&CategoryLike{UserID: userID, Category: poi.Category})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			logx.Info().Str("user_id", userID).Str("category", poi.Category).Msg("category preference inferred")
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errx.NotFound(fmt.Errorf("visit of %s to %s: %w", userID, poiID, err))
		}
		return errx.WrapDatabase(err)
	}
	return nil
}

// VisitCount returns how many visits of user to poi are recorded.
func (r *Repository) VisitCount(ctx context.Context, userID, poiID string) (int, error) {
	var v Visit
	err := r.db.WithContext(ctx).Where("user_id = ? AND poi_id = ?", userID, poiID).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errx.WrapDatabase(err)
	}
	return v.VisitCount, nil
}

// LikedCategories returns the categories inferred as liked for a user.
func (r *Repository) LikedCategories(ctx context.Context, userID string) ([]string, error) {
	out := []string{}
	err := r.db.WithContext(ctx).Model(&CategoryLike{}).
		Where("user_id = ?", userID).
		Order("category").
		Pluck("category", &out).Error
	if err != nil {
		return nil, errx.WrapDatabase(err)
	}
	return out, nil
}

// AllPOIs lists every POI ordered by simulator id.
func (r *Repository) AllPOIs(ctx context.Context) ([]model.POI, error) {
	var records []POIRecord
	if err := r.db.WithContext(ctx).Order("id_unity").Find(&records).Error; err != nil {
		return nil, errx.WrapDatabase(err)
	}
	out := make([]model.POI, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.toModel())
	}
	return out, nil
}

// PolicyParameters loads the vehicle dynamics of a driving policy. The
// name is matched case-insensitively.
func (r *Repository) PolicyParameters(ctx context.Context, name string) (*model.PolicyParameters, error) {
	var rec PolicyRecord
	err := r.db.WithContext(ctx).Where("LOWER(name) = ?", strings.ToLower(strings.TrimSpace(name))).First(&rec).Error
	if err != nil {
		return nil, errx.WrapDatabase(err)
	}
	p := rec.toModel()
	return &p, nil
}

// Ping checks the underlying connection.
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return errx.WrapDatabase(err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return errx.WrapDatabase(err)
	}
	return nil
}

var _ model.POIRepository = (*Repository)(nil)
