package internal

import (
	"fmt"
	"net/url"
	"time"
)

// ServerConfig drives cmd/devserver: the self-hosted persistence, storage, realtime
// and push-function backend both participants talk to.
type ServerConfig struct {
	BadgerFilepath  string        `env:"BADGER_FILEPATH,required=true"`
	BlobRoot        string        `env:"BLOB_ROOT,default=./data/blobs"`
	SigningSecret   string        `env:"SIGNING_SECRET,required=true"`
	PublicURL       string        `env:"PUBLIC_URL,default=http://localhost:8080"`
	AnonKey         string        `env:"ANON_KEY,required=true"`
	ChangeBuffer    int           `env:"CHANGE_BUFFER,default=256"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=1s"`
	HealthInterval  time.Duration `env:"HEALTH_INTERVAL,default=5s"`
	LogLevel        string        `env:"LOG_LEVEL,default=INFO"`
	Host            string        `env:"HOST,default=0.0.0.0"`
	Port            int           `env:"PORT,default=8080"`
	DebugPort       int           `env:"DEBUG_PORT,default=8081"`
}

func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ClientConfig drives cmd/inspect, a terminal session for one of the two participants.
type ClientConfig struct {
	StoreURL        string        `env:"STORE_URL,default=http://localhost:8080"`
	RealtimeURL     string        `env:"REALTIME_URL"`
	AnonKey         string        `env:"ANON_KEY,required=true"`
	PrefsFilepath   string        `env:"PREFS_FILEPATH,default=./data/prefs"`
	PollInterval    time.Duration `env:"POLL_INTERVAL,default=5s"`
	TypingTimeout   time.Duration `env:"TYPING_TIMEOUT,default=2s"`
	Heartbeat       time.Duration `env:"HEARTBEAT,default=25s"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=1s"`
	LogLevel        string        `env:"LOG_LEVEL,default=INFO"`
}

// WebsocketURL returns RealtimeURL, or derives it from StoreURL when unset.
func (c ClientConfig) WebsocketURL() (string, error) {
	if c.RealtimeURL != "" {
		return c.RealtimeURL, nil
	}
	u, err := url.Parse(c.StoreURL)
	if err != nil {
		return "", fmt.Errorf("invalid STORE_URL %q: %w", c.StoreURL, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/realtime/v1/websocket"
	return u.String(), nil
}
