package realtime

import (
	"context"
	"duo-lab/domain"
	"duo-lab/infrastructure/storage"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "duo-lab/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type viewRecorder struct {
	mu   sync.Mutex
	last map[domain.Alias]domain.TypingState
}

func (v *viewRecorder) record(view map[domain.Alias]domain.TypingState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.last = view
}

func (v *viewRecorder) typing(user domain.Alias) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.last[user].IsTyping
}

func (v *viewRecorder) has(user domain.Alias) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.last[user]
	return ok
}

func TestMemoryHub_PresenceIsSharedPerRoom(t *testing.T) {
	req := require.New(t)
	hub := NewMemoryHub()
	angy, bozy, elsewhere := hub.Join("typing"), hub.Join("typing"), hub.Join("other")
	seenByBozy, seenElsewhere := &viewRecorder{}, &viewRecorder{}
	bozy.OnSync(seenByBozy.record)
	elsewhere.OnSync(seenElsewhere.record)

	// When angy announces typing
	req.NoError(angy.Announce(context.Background(), domain.TypingState{User: domain.Angy, IsTyping: true}))

	// Then only members of the same room see it
	req.True(seenByBozy.typing(domain.Angy))
	req.False(seenElsewhere.has(domain.Angy))

	// A late subscriber gets the current view at once
	late := &viewRecorder{}
	angy.OnSync(late.record)
	req.True(late.typing(domain.Angy))

	// Closing removes the member's state for the others
	req.NoError(angy.Close())
	req.False(seenByBozy.has(domain.Angy))
	req.ErrorIs(angy.Announce(context.Background(), domain.TypingState{User: domain.Angy}), apperrors.ErrChannelClosed)
}

func TestPresenceRoom_TypingWinsAcrossConnections(t *testing.T) {
	req := require.New(t)
	room := newPresenceRoom()
	room.track("phone", domain.TypingState{User: domain.Bozy, IsTyping: true})
	room.track("laptop", domain.TypingState{User: domain.Bozy, IsTyping: false})

	req.True(room.snapshot()[domain.Bozy].IsTyping)
	req.True(room.untrack("phone"))
	req.False(room.snapshot()[domain.Bozy].IsTyping)
	req.False(room.untrack("phone"))
}

type realtimeFixture struct {
	store *storage.TableStore
	url   string
}

func newRealtimeFixture(t *testing.T) *realtimeFixture {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := storage.NewTableStore(db, log, 64)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = store.Run(ctx) }()

	srv := httptest.NewServer(NewHub(log, store, 16))
	t.Cleanup(srv.Close)
	return &realtimeFixture{store: store, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func (f *realtimeFixture) connect(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(logs.GetLoggerFromLevel(slog.LevelDebug), f.url, "anon-key", 50*time.Millisecond)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return client
}

func TestClient_ReceivesChangesThroughHub(t *testing.T) {
	req := require.New(t)
	fixture := newRealtimeFixture(t)
	client := fixture.connect(t)

	var mu sync.Mutex
	var events []domain.ChangeEvent
	unsub, err := client.SubscribeChanges(domain.TableMessages, domain.EventInsert, func(evt domain.ChangeEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, evt)
	})
	req.NoError(err)
	defer unsub()

	// When messages are inserted until the join has been processed
	req.Eventually(func() bool {
		_ = fixture.store.Insert(context.Background(), domain.TableMessages, domain.OutgoingMessage{SenderID: domain.Bozy, Content: "hello"}.Row())
		mu.Lock()
		defer mu.Unlock()
		return len(events) > 0
	}, 2*time.Second, 20*time.Millisecond)

	// Then the event carries the inserted record
	mu.Lock()
	defer mu.Unlock()
	req.Equal(domain.TableMessages, events[0].Table)
	req.Equal(domain.ChangeInsert, events[0].Type)
	msg, err := domain.ChatMessageFromRow(events[0].Record)
	req.NoError(err)
	req.Equal("hello", msg.Content)
	req.Equal(domain.Bozy, msg.SenderID)
}

func TestClient_PresenceAcrossConnections(t *testing.T) {
	req := require.New(t)
	fixture := newRealtimeFixture(t)
	angyClient, bozyClient := fixture.connect(t), fixture.connect(t)

	angy := angyClient.Presence("typing", domain.Angy)
	bozy := bozyClient.Presence("typing", domain.Bozy)
	seenByBozy := &viewRecorder{}
	bozy.OnSync(seenByBozy.record)

	// When angy keeps announcing typing
	req.Eventually(func() bool {
		_ = angy.Announce(context.Background(), domain.TypingState{User: domain.Angy, IsTyping: true})
		return seenByBozy.typing(domain.Angy)
	}, 2*time.Second, 20*time.Millisecond)

	// Then stopping is seen too, and leaving removes angy from the view
	req.NoError(angy.Announce(context.Background(), domain.TypingState{User: domain.Angy, IsTyping: false}))
	req.Eventually(func() bool { return !seenByBozy.typing(domain.Angy) }, time.Second, 10*time.Millisecond)
	req.NoError(angy.Close())
	req.Eventually(func() bool { return !seenByBozy.has(domain.Angy) }, time.Second, 10*time.Millisecond)
	req.ErrorIs(angy.Announce(context.Background(), domain.TypingState{User: domain.Angy}), apperrors.ErrChannelClosed)
}

func TestClient_AnnounceWithoutConnectionFails(t *testing.T) {
	req := require.New(t)
	client, err := NewClient(logs.GetLoggerFromLevel(slog.LevelDebug), "ws://127.0.0.1:1/realtime/v1/websocket", "", 0)
	req.NoError(err)

	channel := client.Presence("typing", domain.Angy)
	err = channel.Announce(context.Background(), domain.TypingState{User: domain.Angy, IsTyping: true})

	req.ErrorIs(err, apperrors.ErrChannelClosed)
	req.Contains(client.url, "vsn=1.0.0")
}
