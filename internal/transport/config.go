package transport

import "time"

// ================ Config ================
type Config struct {
	Addr              string        `envconfig:"HTTP_ADDR" default:":8000"`
	ReadHeaderTimeout time.Duration `envconfig:"HTTP_READ_HEADER_TIMEOUT" default:"5s"`
	ShutdownTimeout   time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
	WriteTimeout      time.Duration `envconfig:"WS_WRITE_TIMEOUT" default:"10s"`
	PingInterval      time.Duration `envconfig:"WS_PING_INTERVAL" default:"30s"`
	ReadLimit         int64         `envconfig:"WS_READ_LIMIT" default:"65536"`
	MusicDir          string        `envconfig:"MUSIC_DIR" default:"music"`
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":8000"
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = 5 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 64 << 10
	}
	return c
}
