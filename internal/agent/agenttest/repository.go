package agenttest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/taxi-assistant/server/internal/agent/model"
	errx "github.com/taxi-assistant/server/internal/core/error"
)

// MemoryRepository is a POIRepository over plain maps. Needs and Tags list
// POI ids in ranked order; Err, when set, fails every call.
type MemoryRepository struct {
	mu          sync.Mutex
	POIs        map[string]model.POI
	Needs       map[string][]string
	Tags        map[string][]string
	Users       map[string]model.User
	Preferences map[string]string
	Visits      map[string]int
	Err         error
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		POIs:        map[string]model.POI{},
		Needs:       map[string][]string{},
		Tags:        map[string][]string{},
		Users:       map[string]model.User{},
		Preferences: map[string]string{},
		Visits:      map[string]int{},
	}
}

// AddPOI stores poi and indexes it under the given needs.
func (r *MemoryRepository) AddPOI(poi model.POI, needs ...string) *MemoryRepository {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.POIs[poi.ID] = poi
	for _, n := range needs {
		r.Needs[n] = append(r.Needs[n], poi.ID)
	}
	return r
}

// Tag indexes existing POIs under tag.
func (r *MemoryRepository) Tag(tag string, ids ...string) *MemoryRepository {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Tags[tag] = append(r.Tags[tag], ids...)
	return r
}

// VisitCount reports how many visits were recorded for user and poi.
func (r *MemoryRepository) VisitCount(userID, poiID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Visits[userID+"|"+poiID]
}

func (r *MemoryRepository) POIsByNeed(ctx context.Context, userID, need string, limit int) ([]model.POI, error) {
	return r.list(r.Needs, need, limit)
}

func (r *MemoryRepository) POIsByTag(ctx context.Context, userID, tag string, limit int) ([]model.POI, error) {
	return r.list(r.Tags, strings.ToLower(tag), limit)
}

func (r *MemoryRepository) list(index map[string][]string, key string, limit int) ([]model.POI, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	out := []model.POI{}
	for _, id := range index[key] {
		if limit > 0 && len(out) >= limit {
			break
		}
		if p, ok := r.POIs[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *MemoryRepository) FindPOIByName(ctx context.Context, name string) (*model.POI, error) {
	tokens := strings.Fields(strings.ToLower(name))
	return r.first(func(p model.POI) bool {
		lower := strings.ToLower(p.Name)
		for _, t := range tokens {
			if !strings.Contains(lower, t) {
				return false
			}
		}
		return len(tokens) > 0
	}, "")
}

func (r *MemoryRepository) POIByName(ctx context.Context, name string) (*model.POI, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	return r.first(func(p model.POI) bool {
		return lower != "" && strings.Contains(strings.ToLower(p.Name), lower)
	}, lower)
}

// first returns the shortest matching name, preferring an exact match.
func (r *MemoryRepository) first(match func(model.POI) bool, exact string) (*model.POI, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	var hits []model.POI
	for _, p := range r.POIs {
		if match(p) {
			hits = append(hits, p)
		}
	}
	if len(hits) == 0 {
		return nil, errx.NotFound(errors.New("poi not found"))
	}
	sort.Slice(hits, func(i, j int) bool {
		ei, ej := strings.ToLower(hits[i].Name) == exact, strings.ToLower(hits[j].Name) == exact
		if ei != ej {
			return ei
		}
		if len(hits[i].Name) != len(hits[j].Name) {
			return len(hits[i].Name) < len(hits[j].Name)
		}
		return hits[i].ID < hits[j].ID
	})
	return &hits[0], nil
}

func (r *MemoryRepository) POIByID(ctx context.Context, id string) (*model.POI, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	p, ok := r.POIs[id]
	if !ok {
		return nil, errx.NotFound(errors.New("poi not found: " + id))
	}
	return &p, nil
}

func (r *MemoryRepository) SearchPOIs(ctx context.Context, query string, limit int) ([]model.POI, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	lower := strings.ToLower(query)
	out := []model.POI{}
	for _, p := range r.POIs {
		if strings.Contains(strings.ToLower(p.Name), lower) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) UserHome(ctx context.Context, userID string) (*model.POI, error) {
	r.mu.Lock()
	u, ok := r.Users[userID]
	r.mu.Unlock()
	if !ok || u.HomePOIID == "" {
		return nil, errx.NotFound(errors.New("home not found"))
	}
	return r.POIByID(ctx, u.HomePOIID)
}

func (r *MemoryRepository) User(ctx context.Context, userID string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	u, ok := r.Users[userID]
	if !ok {
		return nil, errx.NotFound(errors.New("user not found"))
	}
	return &u, nil
}

func (r *MemoryRepository) MusicPreference(ctx context.Context, userID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return "", r.Err
	}
	return r.Preferences[userID], nil
}

func (r *MemoryRepository) SetMusicPreference(ctx context.Context, userID, genre string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Preferences[userID] = genre
	return nil
}

func (r *MemoryRepository) RecordVisit(ctx context.Context, userID, poiID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Visits[userID+"|"+poiID]++
	return nil
}

func (r *MemoryRepository) UserConditions(ctx context.Context, userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	return append([]string(nil), r.Users[userID].Conditions...), nil
}

var _ model.POIRepository = (*MemoryRepository)(nil)
