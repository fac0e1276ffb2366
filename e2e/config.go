package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// SERVER_URL points at a running devserver, the suites are skipped without it
	ServerURL string `envconfig:"SERVER_URL"`
	AnonKey   string `envconfig:"ANON_KEY"`
	// E2E_DEBUG_JSON allows dumping full request and response bodies
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
