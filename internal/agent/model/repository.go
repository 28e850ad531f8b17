package model

import "context"

// POIRepository is the POI and preference store consumed by tools and the pipeline.
// Single-record lookups return an errx not-found error on a miss.
type POIRepository interface {
	// POIsByNeed ranks POIs serving a need for the given user.
	POIsByNeed(ctx context.Context, userID, need string, limit int) ([]POI, error)

	// POIsByTag ranks POIs carrying a tag for the given user.
	POIsByTag(ctx context.Context, userID, tag string, limit int) ([]POI, error)

	// FindPOIByName matches every significant token of name, shortest name first.
	FindPOIByName(ctx context.Context, name string) (*POI, error)

	// POIByName matches name as a substring, exact match first.
	POIByName(ctx context.Context, name string) (*POI, error)

	// POIByID loads a POI by identifier.
	POIByID(ctx context.Context, id string) (*POI, error)

	// SearchPOIs is the autocomplete search used by the booking screen.
	SearchPOIs(ctx context.Context, query string, limit int) ([]POI, error)

	// UserHome returns the registered home of a user.
	UserHome(ctx context.Context, userID string) (*POI, error)

	// User loads a passenger profile.
	User(ctx context.Context, userID string) (*User, error)

	// MusicPreference returns a preferred genre, or "" when none is stored.
	MusicPreference(ctx context.Context, userID string) (string, error)

	// SetMusicPreference stores a preferred genre.
	SetMusicPreference(ctx context.Context, userID, genre string) error

	// RecordVisit increments the visit counter between user and POI.
	RecordVisit(ctx context.Context, userID, poiID string) error

	// UserConditions returns medical or safety conditions of a user.
	UserConditions(ctx context.Context, userID string) ([]string, error)
}

// Simulator is the fire-and-forget sink toward the Unity simulator.
type Simulator interface {
	IsConnected() bool
	Send(ctx context.Context, msg any) bool
}

// ClientNotifier pushes unsolicited frames to the chat client of a session.
type ClientNotifier interface {
	Notify(ctx context.Context, sessionID string, msg any) bool
}

// SessionStore loads and persists sessions. Get creates a session lazily.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Delete(ctx context.Context, sessionID string) error
}

// Completer is the black-box LLM capability.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
