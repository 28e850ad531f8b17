package model

import (
	"slices"
	"time"
)

// Mode selects which tool categories a session may use.
type Mode string

const (
	// ModePreRide is the booking screen: only POI tools are available.
	ModePreRide Mode = "pre_ride"
	// ModeNormal is the in-ride mode with every tool available.
	ModeNormal Mode = "normal"
)

// Driving policies understood by the simulator.
const (
	PolicySport   = "Sport"
	PolicyComfort = "Comfort"
	PolicyEco     = "Eco"
)

// Pending question tags.
const (
	PendingMusicGenre    = "music_genre"
	PendingMusicFeedback = "music_feedback"
)

const (
	MinVolume     = 1
	MaxVolume     = 10
	DefaultVolume = 5
)

// Position is a point in simulator space.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// MusicState is the in-cabin audio sub-state.
type MusicState struct {
	Playing bool   `json:"playing"`
	Genre   string `json:"genre,omitempty"`
	Paused  bool   `json:"paused"`
	Volume  int    `json:"volume"`
}

// RideState tracks the active ride, if any.
type RideState struct {
	Active          bool       `json:"active"`
	DestinationName string     `json:"destination_name,omitempty"`
	DestinationID   string     `json:"destination_id,omitempty"`
	PassengerID     string     `json:"passenger_id,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
}

// Turn is one entry of the bounded conversation window.
type Turn struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Session is the full conversational state of one session id.
type Session struct {
	ID                 string     `json:"session_id"`
	UserID             string     `json:"user_id,omitempty"`
	RideID             string     `json:"ride_id,omitempty"`
	City               string     `json:"city,omitempty"`
	Taxi               Position   `json:"taxi"`
	History            []Turn     `json:"history"`
	PendingQuestion    string     `json:"pending_question,omitempty"`
	LastPOISuggestions []string   `json:"last_poi_suggestions"`
	LastUIOptions      []UIOption `json:"last_ui_options"`
	Mode               Mode       `json:"mode"`
	Music              MusicState `json:"music"`
	Ride               RideState  `json:"ride"`
	DrivingPolicy      string     `json:"driving_policy"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// NewSession returns a session with default sub-states.
func NewSession(id string) *Session {
	return &Session{
		ID:                 id,
		History:            []Turn{},
		LastPOISuggestions: []string{},
		LastUIOptions:      []UIOption{},
		Mode:               ModeNormal,
		Music:              MusicState{Volume: DefaultVolume},
		DrivingPolicy:      PolicySport,
		UpdatedAt:          time.Now().UTC(),
	}
}

// StateWriter is the narrow set of mutations tools are allowed to perform.
type StateWriter interface {
	StartMusic(genre string)
	StopMusic()
	PauseMusic()
	ResumeMusic()
	SetVolume(volume int) int
	AdjustVolume(delta int) int
	SetPending(question string)
	ClearPending()
	SetPOISuggestions(ids []string)
	ClearPOISuggestions()
	DrivingPolicyName() string
	RideActive() bool
}

var _ StateWriter = (*Session)(nil)

func (s *Session) StartMusic(genre string) {
	s.Music.Playing = true
	s.Music.Genre = genre
	s.Music.Paused = false
}

func (s *Session) StopMusic() {
	s.Music.Playing = false
	s.Music.Genre = ""
	s.Music.Paused = false
}

func (s *Session) PauseMusic() {
	s.Music.Paused = true
}

func (s *Session) ResumeMusic() {
	s.Music.Paused = false
}

// SetVolume stores the clamped volume and returns the stored value.
func (s *Session) SetVolume(volume int) int {
	s.Music.Volume = ClampVolume(volume)
	return s.Music.Volume
}

// AdjustVolume moves the volume by delta within [1,10] and returns the new value.
func (s *Session) AdjustVolume(delta int) int {
	return s.SetVolume(s.Music.Volume + delta)
}

// IsMusicAudible reports playing and not paused.
func (s *Session) IsMusicAudible() bool {
	return s.Music.Playing && !s.Music.Paused
}

func (s *Session) SetPending(question string) {
	s.PendingQuestion = question
}

func (s *Session) ClearPending() {
	s.PendingQuestion = ""
}

func (s *Session) SetPOISuggestions(ids []string) {
	s.LastPOISuggestions = slices.Clone(ids)
}

func (s *Session) ClearPOISuggestions() {
	s.LastPOISuggestions = []string{}
}

// ClearSelections drops both selectable lists together.
func (s *Session) ClearSelections() {
	s.LastPOISuggestions = []string{}
	s.LastUIOptions = []UIOption{}
}

// IsPOISuggested reports whether poiID is among the last suggestions.
func (s *Session) IsPOISuggested(poiID string) bool {
	return slices.Contains(s.LastPOISuggestions, poiID)
}

func (s *Session) DrivingPolicyName() string {
	return s.DrivingPolicy
}

func (s *Session) RideActive() bool {
	return s.Ride.Active
}

// StartRide activates the ride and switches the session to in-ride mode.
func (s *Session) StartRide(destinationName, destinationID, passengerID string) {
	now := time.Now().UTC()
	s.Ride = RideState{
		Active:          true,
		DestinationName: destinationName,
		DestinationID:   destinationID,
		PassengerID:     passengerID,
		StartedAt:       &now,
	}
	s.Mode = ModeNormal
}

// EndRide closes the ride and resets music.
func (s *Session) EndRide() {
	s.Ride = RideState{}
	s.StopMusic()
	s.Mode = ModeNormal
}

// EnterPreRide switches the session to the booking screen.
func (s *Session) EnterPreRide() {
	s.Mode = ModePreRide
}

// UpdateDestination changes the destination of an active ride.
func (s *Session) UpdateDestination(name, id string) bool {
	if !s.Ride.Active {
		return false
	}
	s.Ride.DestinationName = name
	s.Ride.DestinationID = id
	return true
}

// Reset clears the conversational state at ride end, keeping the id and identity fields.
func (s *Session) Reset() {
	s.PendingQuestion = ""
	s.ClearSelections()
	s.Mode = ModeNormal
	s.History = []Turn{}
	s.StopMusic()
	s.Ride = RideState{}
}

// AppendTurn adds a turn and evicts the oldest past maxTurns.
func (s *Session) AppendTurn(role, content string, maxTurns int) {
	s.History = append(s.History, Turn{Role: role, Content: content, At: time.Now().UTC()})
	if maxTurns > 0 && len(s.History) > maxTurns {
		s.History = slices.Clone(s.History[len(s.History)-maxTurns:])
	}
}

// MusicSnapshot returns a copy of the music sub-state.
func (s *Session) MusicSnapshot() MusicState {
	return s.Music
}

// ClampVolume limits v to [MinVolume, MaxVolume].
func ClampVolume(v int) int {
	if v < MinVolume {
		return MinVolume
	}
	if v > MaxVolume {
		return MaxVolume
	}
	return v
}

// Clone returns a deep copy so stores never share slices with callers.
func (s *Session) Clone() *Session {
	c := *s
	c.History = slices.Clone(s.History)
	c.LastPOISuggestions = slices.Clone(s.LastPOISuggestions)
	c.LastUIOptions = slices.Clone(s.LastUIOptions)
	if s.Ride.StartedAt != nil {
		t := *s.Ride.StartedAt
		c.Ride.StartedAt = &t
	}
	if c.History == nil {
		c.History = []Turn{}
	}
	if c.LastPOISuggestions == nil {
		c.LastPOISuggestions = []string{}
	}
	if c.LastUIOptions == nil {
		c.LastUIOptions = []UIOption{}
	}
	return &c
}
