package storage

import (
	"context"
	"duo-lab/domain"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func openTableStore(t *testing.T) *TableStore {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewTableStore(db, logs.GetLoggerFromLevel(slog.LevelDebug), 64)
}

func TestTableStore_UpsertScheduleCell_KeepsOneCellPerKey(t *testing.T) {
	req := require.New(t)
	store := openTableStore(t)
	ctx := context.Background()

	first := domain.ScheduleCell{User: domain.Bozy, Day: "Monday", Period: "3rd", Subject: "Math"}
	second := domain.ScheduleCell{User: domain.Bozy, Day: "Monday", Period: "3rd", Subject: "Physics", Time: "10:00"}
	other := domain.ScheduleCell{User: domain.Angy, Day: "Monday", Period: "3rd", Subject: "Art"}

	// When the same key is written twice
	req.NoError(store.Upsert(ctx, domain.TableSchedules, first.Row(), domain.ScheduleConflictKey...))
	req.NoError(store.Upsert(ctx, domain.TableSchedules, other.Row(), domain.ScheduleConflictKey...))
	req.NoError(store.Upsert(ctx, domain.TableSchedules, second.Row(), domain.ScheduleConflictKey...))

	// Then exactly one cell holds the latest subject
	rows, err := store.Select(ctx, domain.TableSchedules, domain.Query{
		Filters: []domain.Filter{domain.Eq("user_profile", "bozy"), domain.Eq("day", "Monday"), domain.Eq("period", "3rd")},
	})
	req.NoError(err)
	req.Len(rows, 1)
	req.Equal("Physics", rows[0].String("subject"))
	req.Equal("10:00", rows[0].String("time"))

	all, err := store.Select(ctx, domain.TableSchedules, domain.Query{})
	req.NoError(err)
	req.Len(all, 2)
}

func TestTableStore_Insert_AssignsIdentityAndOrders(t *testing.T) {
	req := require.New(t)
	store := openTableStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for _, content := range []string{"one", "two", "three"} {
		req.NoError(store.Insert(ctx, domain.TableMessages, domain.OutgoingMessage{SenderID: domain.Angy, Content: content}.Row()))
	}

	rows, err := store.Select(ctx, domain.TableMessages, domain.Query{Order: &domain.Order{Column: "created_at", Ascending: true}})
	req.NoError(err)
	req.Len(rows, 3)
	req.Equal("one", rows[0].String("content"))
	req.Equal("three", rows[2].String("content"))
	for _, row := range rows {
		msg, err := domain.ChatMessageFromRow(row)
		req.NoError(err)
		req.NotEmpty(msg.ID)
	}

	desc, err := store.Select(ctx, domain.TableMessages, domain.Query{Order: &domain.Order{Column: "created_at", Ascending: false}})
	req.NoError(err)
	req.Equal("three", desc[0].String("content"))
}

func TestTableStore_UpdateAndDelete(t *testing.T) {
	req := require.New(t)
	store := openTableStore(t)
	ctx := context.Background()

	req.NoError(store.Insert(ctx, domain.TablePlans, domain.Row{"id": "p1", "title": "Picnic", "completed": false}))

	req.NoError(store.Update(ctx, domain.TablePlans, domain.Row{"completed": true, "id": "hijack"}, "p1"))
	// Unknown ids match nothing
	req.NoError(store.Update(ctx, domain.TablePlans, domain.Row{"completed": true}, "missing"))
	req.NoError(store.Delete(ctx, domain.TablePlans, "missing"))

	rows, err := store.Select(ctx, domain.TablePlans, domain.Query{})
	req.NoError(err)
	req.Len(rows, 1)
	req.Equal("p1", rows[0].String("id"))
	req.True(rows[0].Bool("completed"))
	req.Equal("Picnic", rows[0].String("title"))

	req.Error(store.Insert(ctx, domain.TablePlans, domain.Row{"id": "p1", "title": "Duplicate"}))

	req.NoError(store.Delete(ctx, domain.TablePlans, "p1"))
	rows, err = store.Select(ctx, domain.TablePlans, domain.Query{})
	req.NoError(err)
	req.Empty(rows)
}

func TestTableStore_ConfigUpsertByPrimaryKey(t *testing.T) {
	req := require.New(t)
	store := openTableStore(t)
	ctx := context.Background()

	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	second := first.Add(48 * time.Hour)
	req.NoError(store.Upsert(ctx, domain.TableConfig, domain.NextMeetingRow(first)))
	req.NoError(store.Upsert(ctx, domain.TableConfig, domain.NextMeetingRow(second)))

	rows, err := store.Select(ctx, domain.TableConfig, domain.Query{Filters: []domain.Filter{domain.Eq("key", domain.NextMeetingKey)}})
	req.NoError(err)
	req.Len(rows, 1)
	at, err := domain.NextMeetingFromRow(rows[0])
	req.NoError(err)
	req.True(at.Equal(second))

	// Config rows cannot be inserted without their key
	req.Error(store.Insert(ctx, domain.TableConfig, domain.Row{"value": "x"}))
}

func TestTableStore_ChangeFeed(t *testing.T) {
	req := require.New(t)
	store := openTableStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = store.Run(ctx) }()

	var mu sync.Mutex
	var received []domain.ChangeEvent
	unsub, err := store.SubscribeChanges(domain.TableDates, domain.EventInsert|domain.EventDelete, func(evt domain.ChangeEvent) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, evt)
	})
	req.NoError(err)
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(received)
	}

	// When a date is inserted, updated then deleted, and a plan is inserted
	req.NoError(store.Insert(ctx, domain.TableDates, domain.Row{"id": "d1", "title": "Dinner"}))
	req.NoError(store.Update(ctx, domain.TableDates, domain.Row{"title": "Lunch"}, "d1"))
	req.NoError(store.Delete(ctx, domain.TableDates, "d1"))
	req.NoError(store.Insert(ctx, domain.TablePlans, domain.Row{"title": "Walk"}))

	// Then only the masked events of the watched table are delivered
	req.Eventually(func() bool { return count() == 2 }, time.Second, 5*time.Millisecond)
	mu.Lock()
	req.Equal(domain.ChangeInsert, received[0].Type)
	req.Equal(domain.ChangeDelete, received[1].Type)
	req.Equal("d1", received[1].OldRecord.String("id"))
	mu.Unlock()

	// After unsubscribing nothing more arrives
	unsub()
	unsub()
	req.NoError(store.Insert(ctx, domain.TableDates, domain.Row{"id": "d2", "title": "Trip"}))
	req.Never(func() bool { return count() > 2 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestCodec_NormalizesNamedTypes(t *testing.T) {
	req := require.New(t)

	data, err := encodeRow(domain.Row{
		"sender_id": domain.Angy,
		"tags":      []string{"a", "b"},
		"at":        time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		"nested":    domain.Row{"ok": true},
		"count":     3,
	})
	req.NoError(err)

	row, err := decodeRow(data)
	req.NoError(err)
	req.Equal("angy", row.String("sender_id"))
	req.Equal([]any{"a", "b"}, row["tags"])
	req.Equal("2025-01-01T00:00:00.000000Z", row.String("at"))
	req.Equal(true, row.Map("nested")["ok"])
	req.Equal(float64(3), row["count"])
}

func TestTableStore_Subscriptions(t *testing.T) {
	req := require.New(t)
	store := openTableStore(t)
	noop := func(domain.ChangeEvent) {}

	unsubPlans, err := store.SubscribeChanges(domain.TablePlans, domain.EventAll, noop)
	req.NoError(err)
	_, err = store.SubscribeChanges(domain.TableMessages, domain.EventAll, noop)
	req.NoError(err)
	req.Equal(2, store.Subscriptions())

	unsubPlans()
	unsubPlans()
	req.Equal(1, store.Subscriptions())

	// Without Run nothing drains the buffer
	req.NoError(store.Insert(context.Background(), domain.TablePlans, domain.NewPlanItem{Title: "Zoo", Category: domain.PlanNature}.Row()))
	req.Equal(1, store.Backlog())
}
