package core

import "strings"

// Environment is the APP_ENV deployment mode. It picks the log format and
// the gin mode of the server.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

func (e Environment) String() string {
	return string(e)
}

// IsProduction reports whether JSON logs and gin release mode apply.
func (e Environment) IsProduction() bool {
	return e == Production
}

// Decode implements envconfig.Decoder for APP_ENV.
func (e *Environment) Decode(value string) error {
	*e = ParseEnvironment(value)
	return nil
}

// ParseEnvironment reads APP_ENV case-insensitively. Anything unrecognized
// runs as Development.
func ParseEnvironment(v string) Environment {
	switch Environment(strings.ToLower(strings.TrimSpace(v))) {
	case Production:
		return Production
	case Staging:
		return Staging
	case Testing:
		return Testing
	default:
		return Development
	}
}
