package appconf

import (
	"fmt"
	"strings"
)

// Environment selects cache headers, debug pages and log format.
type Environment int

const (
	Development Environment = iota
	Test
	Production
)

func (e Environment) String() string {
	switch e {
	case Development:
		return "development"
	case Test:
		return "test"
	case Production:
		return "production"
	default:
		return fmt.Sprintf("Environment(%d)", int(e))
	}
}

// ParseEnvironment accepts the long names and the usual short forms.
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "development", "dev":
		return Development, nil
	case "test":
		return Test, nil
	case "production", "prod":
		return Production, nil
	default:
		return Development, fmt.Errorf("unknown environment %q: expected development, test or production", s)
	}
}

// EnvFlagToEnvironment maps a flag value to an Environment, defaulting to
// Development for anything unrecognized.
func EnvFlagToEnvironment(s string) Environment {
	env, err := ParseEnvironment(s)
	if err != nil {
		return Development
	}
	return env
}
