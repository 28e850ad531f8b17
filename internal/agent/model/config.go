package model

import "time"

// ================ Config ================
type PipelineConfig struct {
	ToolThreshold        float64 `envconfig:"PIPELINE_TOOL_THRESHOLD" default:"0.70"`
	PreRideToolThreshold float64 `envconfig:"PIPELINE_PRE_RIDE_TOOL_THRESHOLD" default:"0.60"`
	NeedThreshold        float64 `envconfig:"PIPELINE_NEED_THRESHOLD" default:"0.65"`
	PreRideNeedThreshold float64 `envconfig:"PIPELINE_PRE_RIDE_NEED_THRESHOLD" default:"0.50"`
	DefaultCity          string  `envconfig:"PIPELINE_DEFAULT_CITY" default:"Palermo"`
}

type SessionConfig struct {
	Backend         string        `envconfig:"SESSION_BACKEND" default:"memory"`
	TTL             time.Duration `envconfig:"SESSION_TTL" default:"2h"`
	MaxHistoryTurns int           `envconfig:"SESSION_MAX_HISTORY_TURNS" default:"10"`
	JanitorSchedule string        `envconfig:"SESSION_JANITOR_SCHEDULE" default:"@every 10m"`
}

type POIConfig struct {
	DefaultLimit int `envconfig:"POI_DEFAULT_LIMIT" default:"5"`
	ToolLimit    int `envconfig:"POI_TOOL_LIMIT" default:"4"`
}

// DefaultPipelineConfig mirrors the envconfig defaults for tests and the console.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		ToolThreshold:        0.70,
		PreRideToolThreshold: 0.60,
		NeedThreshold:        0.65,
		PreRideNeedThreshold: 0.50,
		DefaultCity:          "Palermo",
	}
}
