package main

import (
	"context"
	"duo-lab/domain"
	"duo-lab/infrastructure/realtime"
	"duo-lab/infrastructure/rest"
	"duo-lab/infrastructure/storage"
	"duo-lab/internal"
	"duo-lab/runtime/workers"
	"duo-lab/services"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Inspect terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run opens a session for one participant, optionally sends a message,
// prints the shared data and, with -watch, keeps printing what the partner does.
func run() (int, error) {
	userFlag := flag.String("user", "", "angy or bozy, defaults to the last user of this device")
	send := flag.String("send", "", "message to send once connected")
	watch := flag.Bool("watch", false, "stay connected and print incoming messages until interrupted")
	logout := flag.Bool("logout", false, "forget the remembered user and exit")
	flag.Parse()

	_ = godotenv.Load()
	var config internal.ClientConfig
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	db, err := badger.Open(badger.DefaultOptions(config.PrefsFilepath).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return exitRuntime, fmt.Errorf("preferences opening failed: %w", err)
	}
	defer func() { _ = db.Close() }()
	prefs := storage.NewPreferences(db)

	if *logout {
		if err := prefs.ClearLastUser(); err != nil {
			return exitRuntime, err
		}
		fmt.Println(muted.Render("Signed out"))
		return exitOK, nil
	}

	self, err := resolveUser(*userFlag, prefs)
	if err != nil {
		return exitConfig, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	remote, err := rest.NewClient(logger, config.StoreURL, config.AnonKey, &http.Client{Timeout: 15 * time.Second})
	if err != nil {
		return exitConfig, err
	}
	wsURL, err := config.WebsocketURL()
	if err != nil {
		return exitConfig, err
	}
	socket, err := realtime.NewClient(logger, wsURL, config.AnonKey, config.Heartbeat)
	if err != nil {
		return exitConfig, err
	}

	// The socket reconnects under supervision for as long as we run.
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	sup.Add(socket)
	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		sup.Run(ctx)
	}()
	defer func() {
		stop()
		<-supDone
	}()

	console := newConsole(*watch)
	session, err := services.Open(ctx, logger, self, services.Dependencies{
		Remote:   remote,
		Feed:     socket,
		Blobs:    remote,
		Presence: socket.Presence("typing", self),
		Invoker:  remote,
		Notifier: console,
		Alerter:  console,
		Prefs:    prefs,
	}, services.Options{
		PollInterval:    config.PollInterval,
		TypingTimeout:   config.TypingTimeout,
		RestartInterval: config.RestartInterval,
	})
	if err != nil {
		return exitRuntime, err
	}
	defer session.Close()

	if *send != "" {
		session.Type(ctx, *send)
		if err := session.Send(ctx); err != nil {
			return exitRuntime, err
		}
	}

	render(os.Stdout, session)

	if *watch {
		fmt.Println(muted.Render("Watching, press Ctrl+C to leave"))
		<-ctx.Done()
	}
	return exitOK, nil
}

func resolveUser(flagValue string, prefs *storage.Preferences) (domain.Alias, error) {
	if flagValue != "" {
		return domain.ParseAlias(flagValue)
	}
	if user, ok := services.RestoreUser(prefs); ok {
		return user, nil
	}
	return "", errors.New("no remembered user, pass -user angy or -user bozy")
}
