package runtime

import (
	"context"
	"duo-lab/domain"
	"duo-lab/mocks"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var (
	dateRows = []domain.Row{
		{"id": "d1", "title": "Dinner", "date": "2025-06-01T19:00:00.000000Z", "type": "meetup"},
		{"id": "d2", "title": "Museum", "date": "2025-06-02T10:00:00.000000Z", "type": "itinerary"},
	}
	planRows = []domain.Row{
		{"id": "p1", "title": "Picnic", "completed": false, "category": "Food"},
	}
	scheduleRows = []domain.Row{
		{"id": "s1", "user_profile": "bozy", "day": "Monday", "period": "3rd", "subject": "Math"},
	}
	configRows = []domain.Row{
		{"key": "next_meeting", "value": map[string]any{"date": "2026-03-01T12:00:00.000000Z"}},
	}
)

func expectTable(remote *mocks.MockRemoteStore, table domain.Table, rows []domain.Row, err error) *gomock.Call {
	return remote.EXPECT().Select(gomock.Any(), table, gomock.Any()).Return(rows, err)
}

func TestDataStore_Refresh_PartialLoadTolerance(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	remote := mocks.NewMockRemoteStore(ctrl)

	// Given plans cannot be fetched while the other collections can
	expectTable(remote, domain.TableDates, dateRows, nil)
	expectTable(remote, domain.TablePlans, nil, errors.New("503 service unavailable"))
	expectTable(remote, domain.TableSchedules, scheduleRows, nil)
	expectTable(remote, domain.TableConfig, configRows, nil)

	store := NewDataStore(log, remote)
	req.True(store.Loading())

	// When
	store.Refresh(context.Background())

	// Then
	req.False(store.Loading())
	req.Len(store.Dates(), 2)
	req.Empty(store.Plans())
	req.Len(store.Schedules(), 1)
	next, set := store.NextMeeting()
	req.True(set)
	req.True(next.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
}

func TestDataStore_Refresh_Idempotent(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	remote := mocks.NewMockRemoteStore(ctrl)

	expectTable(remote, domain.TableDates, dateRows, nil).Times(3)
	expectTable(remote, domain.TablePlans, planRows, nil).Times(3)
	expectTable(remote, domain.TableSchedules, scheduleRows, nil).Times(3)
	expectTable(remote, domain.TableConfig, configRows, nil).Times(3)

	store := NewDataStore(log, remote)
	store.Refresh(context.Background())
	dates, plans, schedules := store.Dates(), store.Plans(), store.Schedules()

	// When refreshing again without any write
	store.Refresh(context.Background())
	store.Refresh(context.Background())

	// Then nothing is duplicated nor drifts
	req.Equal(dates, store.Dates())
	req.Equal(plans, store.Plans())
	req.Equal(schedules, store.Schedules())
}

func TestDataStore_Refresh_FailureKeepsPreviousSnapshot(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	remote := mocks.NewMockRemoteStore(ctrl)

	gomock.InOrder(
		expectTable(remote, domain.TablePlans, planRows, nil),
		expectTable(remote, domain.TablePlans, nil, errors.New("timeout")),
	)
	remote.EXPECT().Select(gomock.Any(), gomock.Not(domain.TablePlans), gomock.Any()).Return(nil, nil).AnyTimes()

	store := NewDataStore(log, remote)
	store.Refresh(context.Background())
	store.Refresh(context.Background())

	req.Len(store.Plans(), 1)
	_, set := store.NextMeeting()
	req.False(set)
}

func TestDataStore_AddDate_WritesThenRefreshes(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	remote := mocks.NewMockRemoteStore(ctrl)

	newDate := domain.NewDateEvent{
		Title:    "Dinner",
		At:       time.Date(2025, 6, 1, 19, 0, 0, 0, time.UTC),
		Category: domain.CategoryMeetup,
	}

	// Given the insert is awaited before the reload
	insert := remote.EXPECT().Insert(gomock.Any(), domain.TableDates, newDate.Row()).Return(nil)
	expectTable(remote, domain.TableDates, dateRows, nil).After(insert)
	expectTable(remote, domain.TablePlans, nil, nil).After(insert)
	expectTable(remote, domain.TableSchedules, nil, nil).After(insert)
	expectTable(remote, domain.TableConfig, nil, nil).After(insert)

	store := NewDataStore(log, remote)

	// When
	store.AddDate(context.Background(), newDate)

	// Then
	req.Len(store.Dates(), 2)
	req.Len(store.FlatDates(), 1)
	req.Len(store.Itinerary(time.UTC), 1)
}

func TestDataStore_Mutation_FailureIsSwallowed(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	remote := mocks.NewMockRemoteStore(ctrl)

	// Given the delete is rejected, no reload must follow
	remote.EXPECT().Delete(gomock.Any(), domain.TablePlans, "p1").Return(errors.New("permission denied"))
	remote.EXPECT().Select(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	store := NewDataStore(log, remote)

	// When / Then returns normally with an unchanged snapshot
	store.DeletePlan(context.Background(), "p1")
	req.Empty(store.Plans())
}

func TestDataStore_InvalidInputNeverReachesRemote(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	remote := mocks.NewMockRemoteStore(ctrl)

	remote.EXPECT().Upsert(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	store := NewDataStore(log, remote)
	store.UpsertSchedule(context.Background(), domain.ScheduleCell{User: "carol", Day: "Sunday", Period: "9th", Subject: "x"})
}

func TestDataStore_UpsertSchedule_UsesCompositeKey(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	remote := mocks.NewMockRemoteStore(ctrl)

	cell := domain.ScheduleCell{User: domain.Bozy, Day: "Monday", Period: "3rd", Subject: "Physics"}
	remote.EXPECT().
		Upsert(gomock.Any(), domain.TableSchedules, cell.Row(), "user_profile", "day", "period").
		Return(nil)
	remote.EXPECT().Select(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).Times(4)

	store := NewDataStore(log, remote)
	store.UpsertSchedule(context.Background(), cell)
}

func TestDataStore_TogglePlan(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	remote := mocks.NewMockRemoteStore(ctrl)

	remote.EXPECT().Select(gomock.Any(), domain.TablePlans, gomock.Any()).Return(planRows, nil).AnyTimes()
	remote.EXPECT().Select(gomock.Any(), gomock.Not(domain.TablePlans), gomock.Any()).Return(nil, nil).AnyTimes()
	remote.EXPECT().Update(gomock.Any(), domain.TablePlans, domain.Row{"completed": true}, "p1").Return(nil)

	store := NewDataStore(log, remote)
	store.Refresh(context.Background())
	req.False(store.Plans()[0].Completed)

	store.TogglePlan(context.Background(), "p1")
	// Unknown plans are ignored
	store.TogglePlan(context.Background(), "nope")
}
