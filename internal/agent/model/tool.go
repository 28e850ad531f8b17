package model

import (
	"strconv"
	"strings"
)

// Category groups tools for mode filtering.
type Category string

const (
	CategoryMusic Category = "music"
	CategoryPOI   Category = "poi"
	CategoryTaxi  Category = "taxi"
)

// CommandType tags a side-effect command for the simulator.
type CommandType string

const (
	CommandPlayMusic   CommandType = "PLAY_MUSIC"
	CommandStopMusic   CommandType = "STOP_MUSIC"
	CommandPauseMusic  CommandType = "PAUSE_MUSIC"
	CommandResumeMusic CommandType = "RESUME_MUSIC"
	CommandSetVolume   CommandType = "SET_VOLUME"
	CommandRerouteTo   CommandType = "REROUTE_TO"
	CommandEndRide     CommandType = "END_RIDE"
)

// UIOption is a selectable button.
type UIOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Command is a structured instruction produced by a tool.
type Command struct {
	Type    CommandType    `json:"type"`
	Payload map[string]any `json:"payload"`
}

func PlayMusic(genre string) Command {
	return Command{Type: CommandPlayMusic, Payload: map[string]any{"genre": genre, "url": "/music/" + genre}}
}

func SetVolume(volume int) Command {
	return Command{Type: CommandSetVolume, Payload: map[string]any{"volume": volume}}
}

func RerouteTo(poiID, name, idUnity string) Command {
	payload := map[string]any{"poi_id": poiID, "name": name, "id_unity": nil}
	if idUnity != "" {
		payload["id_unity"] = idUnity
	}
	return Command{Type: CommandRerouteTo, Payload: payload}
}

// Simple builds a command with an empty payload.
func Simple(t CommandType) Command {
	return Command{Type: t, Payload: map[string]any{}}
}

// ToolContext is assembled per dispatch and passed to a tool by value.
type ToolContext struct {
	SessionID string
	UserID    string
	Message   string
	City      string
	Taxi      Position
	Params    map[string]any
	Music     MusicState
	// State is the only path by which a tool mutates the session.
	State StateWriter
}

// Param returns a string parameter, or "" when missing or not a string.
func (tc ToolContext) Param(key string) string {
	if tc.Params == nil {
		return ""
	}
	v, _ := tc.Params[key].(string)
	return v
}

// IntParam returns an integer parameter decoded from JSON or set by extractors.
func (tc ToolContext) IntParam(key string) (int, bool) {
	if tc.Params == nil {
		return 0, false
	}
	switch v := tc.Params[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	}
	return 0, false
}

// ToolResult is the outcome of a tool execution.
type ToolResult struct {
	Message   string     `json:"message"`
	UIOptions []UIOption `json:"ui_options"`
	Commands  []Command  `json:"commands"`
}

// Text builds a result carrying only a message.
func Text(message string) *ToolResult {
	return &ToolResult{Message: message, UIOptions: []UIOption{}, Commands: []Command{}}
}

// WithOptions appends buttons and returns the result.
func (r *ToolResult) WithOptions(opts ...UIOption) *ToolResult {
	r.UIOptions = append(r.UIOptions, opts...)
	return r
}

// WithCommands appends commands and returns the result.
func (r *ToolResult) WithCommands(cmds ...Command) *ToolResult {
	r.Commands = append(r.Commands, cmds...)
	return r
}

// Response converts the result into the outbound envelope.
func (r *ToolResult) Response(sessionID string) *Response {
	resp := &Response{
		Type:      TypeAssistantResponse,
		SessionID: sessionID,
		Message:   r.Message,
		UIOptions: r.UIOptions,
		Commands:  r.Commands,
	}
	if resp.UIOptions == nil {
		resp.UIOptions = []UIOption{}
	}
	if resp.Commands == nil {
		resp.Commands = []Command{}
	}
	return resp
}
