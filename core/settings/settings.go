// Package settings loads the process settings that become container parameters.
package settings

import (
	"log/slog"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/sectrean/servicekit/internal/errors"
)

// Configuration directory kinds.
const (
	ConfigActive  = "active"
	ConfigStaging = "staging"
)

// ErrUnknownDirectory is returned by [Settings.ConfigDirectory] for an unknown kind.
var ErrUnknownDirectory = errors.New("unknown config directory")

// Settings is the typed process configuration.
type Settings struct {
	ConfigActiveDirectory  string `env:"CONFIG_ACTIVE_DIRECTORY" envDefault:"sites/default/config/active"`
	ConfigStagingDirectory string `env:"CONFIG_STAGING_DIRECTORY" envDefault:"sites/default/config/staging"`

	DatabaseDSN      string `env:"DATABASE_DSN" envDefault:"sites/default/servicekit.db"`
	DatabaseSlaveDSN string `env:"DATABASE_SLAVE_DSN"`

	// PasswordLog2Count is the log2 number of hashing iterations.
	PasswordLog2Count int `env:"PASSWORD_LOG2_COUNT" envDefault:"16"`

	DefaultLanguage    string   `env:"DEFAULT_LANGUAGE" envDefault:"en"`
	SupportedLanguages []string `env:"SUPPORTED_LANGUAGES" envDefault:"en" envSeparator:","`

	MaintenanceMode bool `env:"MAINTENANCE_MODE"`

	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
}

// Load reads the given .env files, then parses the process environment.
//
// Missing .env files are not an error: production hosts set the
// environment directly.
func Load(files ...string) (*Settings, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	_ = godotenv.Load(files...)

	s := &Settings{}
	if err := env.Parse(s); err != nil {
		return nil, errors.Wrap(err, "parse env")
	}
	return s, nil
}

// Parse builds Settings from the given variables only, ignoring the process environment.
func Parse(vars map[string]string) (*Settings, error) {
	s := &Settings{}
	if err := env.ParseWithOptions(s, env.Options{Environment: vars}); err != nil {
		return nil, errors.Wrap(err, "parse env")
	}
	return s, nil
}

// ConfigDirectory returns the configuration directory of the given kind.
func (s *Settings) ConfigDirectory(kind string) (string, error) {
	switch kind {
	case ConfigActive:
		return s.ConfigActiveDirectory, nil
	case ConfigStaging:
		return s.ConfigStagingDirectory, nil
	default:
		return "", errors.Wrapf(ErrUnknownDirectory, "config directory %q", kind)
	}
}

// Parameters returns the settings as container parameters.
func (s *Settings) Parameters() map[string]any {
	return map[string]any{
		"config.directory.active":  s.ConfigActiveDirectory,
		"config.directory.staging": s.ConfigStagingDirectory,
		"database.dsn.default":     s.DatabaseDSN,
		"database.dsn.slave":       s.DatabaseSlaveDSN,
		"password.log2_count":      s.PasswordLog2Count,
		"language.default":         s.DefaultLanguage,
		"language.supported":       s.SupportedLanguages,
		"maintenance_mode":         s.MaintenanceMode,
	}
}
