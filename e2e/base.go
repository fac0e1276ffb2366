package e2e

import (
	"bytes"
	"context"
	"duo-lab/contract"
	"duo-lab/domain"
	"duo-lab/infrastructure/realtime"
	"duo-lab/infrastructure/rest"
	"duo-lab/infrastructure/storage"
	"duo-lab/internal"
	"duo-lab/runtime/workers"
	"duo-lab/services"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
)

type BaseSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.ServerURL == "" {
		s.T().Skip("SERVER_URL not set, start cmd/devserver and export it to run the e2e suites")
	}
}

// Step prints a colorized header for a scenario step in logs
func (s *BaseSuite) Step(t *testing.T, name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)
}

// loggingTransport logs every call with its status and duration,
// and the bodies when E2E_DEBUG_JSON is enabled.
type loggingTransport struct {
	t     *testing.T
	debug bool
	next  http.RoundTripper
}

func (l loggingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()
	var reqBody []byte
	if l.debug && r.Body != nil {
		reqBody, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(reqBody))
	}
	resp, err := l.next.RoundTrip(r)

	logBuilder := strings.Builder{}
	if err != nil {
		fmt.Fprintf(&logBuilder, "HTTP %s %s failed in %v: %v", r.Method, r.URL.Path, time.Since(start), err)
		l.t.Log(logBuilder.String())
		return nil, err
	}
	fmt.Fprintf(&logBuilder, "HTTP %s %s [%d] in %v", r.Method, r.URL.Path, resp.StatusCode, time.Since(start))
	if l.debug {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body = io.NopCloser(bytes.NewReader(respBody))
		fmt.Fprintln(&logBuilder, "\nREQUEST:")
		fmt.Fprintln(&logBuilder, string(reqBody))
		fmt.Fprintln(&logBuilder, "RESPONSE:")
		fmt.Fprintln(&logBuilder, string(respBody))
	}
	l.t.Log(logBuilder.String())
	return resp, nil
}

func (s *BaseSuite) HTTPClient(t *testing.T) *http.Client {
	return &http.Client{
		Timeout:   15 * time.Second,
		Transport: loggingTransport{t: t, debug: s.Config.DebugJSON, next: http.DefaultTransport},
	}
}

// inbox records what a session would have shown to its user.
type inbox struct {
	mu     sync.Mutex
	shown  []string
	alerts []string
}

func (i *inbox) Permission() contract.Permission { return contract.PermissionGranted }

func (i *inbox) RequestPermission(context.Context) (contract.Permission, error) {
	return contract.PermissionGranted, nil
}

func (i *inbox) Visible() bool { return false }

func (i *inbox) Show(title, body, _ string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.shown = append(i.shown, title+": "+body)
	return nil
}

func (i *inbox) Alert(message string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.alerts = append(i.alerts, message)
}

func (i *inbox) Shown() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.shown...)
}

// Participant is a signed-in session against the running server.
type Participant struct {
	Session *services.Session
	Remote  *rest.Client
	Inbox   *inbox
}

// Open signs user in with its own device preferences and realtime socket.
// Everything is torn down when the test ends.
func (s *BaseSuite) Open(t *testing.T, user domain.Alias) *Participant {
	log := logs.GetLoggerFromLevel(slog.LevelInfo)
	cfg := internal.ClientConfig{StoreURL: s.Config.ServerURL}
	wsURL, err := cfg.WebsocketURL()
	s.Require().NoError(err)

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	s.Require().NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	remote, err := rest.NewClient(log, s.Config.ServerURL, s.Config.AnonKey, s.HTTPClient(t))
	s.Require().NoError(err)
	socket, err := realtime.NewClient(log, wsURL, s.Config.AnonKey, realtime.DefaultHeartbeat)
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	sup := workers.NewSupervisor(log, 100*time.Millisecond)
	sup.Add(socket)
	done := make(chan struct{})
	go func() {
		defer close(done)
		sup.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	box := &inbox{}
	session, err := services.Open(ctx, log, user, services.Dependencies{
		Remote:   remote,
		Feed:     socket,
		Blobs:    remote,
		Presence: socket.Presence("typing", user),
		Invoker:  remote,
		Notifier: box,
		Alerter:  box,
		Prefs:    storage.NewPreferences(db),
	}, services.Options{
		PollInterval:    time.Second,
		TypingTimeout:   500 * time.Millisecond,
		RestartInterval: 100 * time.Millisecond,
	})
	s.Require().NoError(err)
	t.Cleanup(session.Close)
	return &Participant{Session: session, Remote: remote, Inbox: box}
}
