// Package push delivers notifications to devices through OneSignal.
package push

import (
	"bytes"
	"context"
	"duo-lab/domain"
	"duo-lab/errors"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AppID  string `envconfig:"ONESIGNAL_APP_ID" required:"true"`
	APIKey string `envconfig:"ONESIGNAL_API_KEY" required:"true"`
	URL    string `envconfig:"ONESIGNAL_URL" default:"https://onesignal.com/api/v1/notifications"`
	// ONESIGNAL_CLICK_URL is where tapping the notification leads.
	ClickURL string `envconfig:"ONESIGNAL_CLICK_URL" default:"https://bodevgit.github.io/angie/#/messages"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}

var basicPrefix = regexp.MustCompile(`(?i)^basic\s+`)

// fallbackMarkers are the error fragments telling that the alias route could
// not reach the user, in which case the legacy external id route is tried.
var fallbackMarkers = []string{"include_aliases", "invalid_external_user_ids", "not subscribed"}

type aliases struct {
	ExternalID []domain.Alias `json:"external_id"`
}

type notification struct {
	AppID                 string            `json:"app_id"`
	IncludeAliases        *aliases          `json:"include_aliases,omitempty"`
	IncludeExternalUserID []domain.Alias    `json:"include_external_user_ids,omitempty"`
	TargetChannel         string            `json:"target_channel"`
	Contents              map[string]string `json:"contents"`
	Headings              map[string]string `json:"headings"`
	URL                   string            `json:"url,omitempty"`
}

// OneSignal implements contract.PushProvider.
type OneSignal struct {
	log    *slog.Logger
	cfg    Config
	apiKey string
	http   *http.Client
}

func NewOneSignal(log *slog.Logger, cfg Config, httpClient *http.Client) *OneSignal {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &OneSignal{
		log:    log,
		cfg:    cfg,
		apiKey: basicPrefix.ReplaceAllString(strings.TrimSpace(cfg.APIKey), ""),
		http:   httpClient,
	}
}

// Deliver sends one notification to target and returns the provider response.
// A response reporting errors is still returned as data, not as an error.
func (o *OneSignal) Deliver(ctx context.Context, target domain.Alias, title, body string) ([]byte, error) {
	n := notification{
		AppID:          strings.TrimSpace(o.cfg.AppID),
		IncludeAliases: &aliases{ExternalID: []domain.Alias{target}},
		TargetChannel:  "push",
		Contents:       map[string]string{"en": body},
		Headings:       map[string]string{"en": title},
		URL:            o.cfg.ClickURL,
	}
	data, err := o.post(ctx, n)
	if err != nil {
		return nil, err
	}
	if !needsFallback(data) {
		return data, nil
	}

	o.log.Info("Alias route refused, trying legacy external ids", "target", target)
	n.IncludeAliases = nil
	n.IncludeExternalUserID = []domain.Alias{target}
	return o.post(ctx, n)
}

func (o *OneSignal) post(ctx context.Context, n notification) ([]byte, error) {
	body, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("encode notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+o.apiKey)

	resp, err := o.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", errors.ErrDeliveryFailed, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: status %d with non JSON body", errors.ErrDeliveryFailed, resp.StatusCode)
	}
	return data, nil
}

func needsFallback(data []byte) bool {
	var resp struct {
		Errors json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(data, &resp); err != nil || len(resp.Errors) == 0 || string(resp.Errors) == "null" {
		return false
	}
	text := string(resp.Errors)
	for _, marker := range fallbackMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
