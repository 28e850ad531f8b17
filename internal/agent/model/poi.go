package model

import "strings"

// POI is a place the taxi can be rerouted to.
type POI struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	IDUnity  string   `json:"id_unity,omitempty"`
	Category string   `json:"category,omitempty"`
	Rating   *float64 `json:"rating,omitempty"`
	Liked    bool     `json:"liked"`
	Visited  bool     `json:"visited"`
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	Score    float64  `json:"score,omitempty"`
}

// RatingValue returns the rating or 0 when absent.
func (p POI) RatingValue() float64 {
	if p.Rating == nil {
		return 0
	}
	return *p.Rating
}

// User is a registered passenger.
type User struct {
	ID         string   `json:"id"`
	Name       string   `json:"nome"`
	HomePOIID  string   `json:"home_poi_id,omitempty"`
	Conditions []string `json:"conditions,omitempty"`
}

// MusicGenres is the fixed catalogue of playable genres.
var MusicGenres = []string{"Pop", "Rock", "Jazz", "Classica", "HipHop", "Elettronica"}

// NormalizeGenre maps a genre to its catalogue spelling, ignoring case,
// spaces and hyphens ("hip hop" is HipHop).
func NormalizeGenre(genre string) (string, bool) {
	key := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(genre))
	for _, g := range MusicGenres {
		if strings.EqualFold(g, key) {
			return g, true
		}
	}
	return "", false
}
