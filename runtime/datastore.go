package runtime

import (
	"context"
	"duo-lab/contract"
	"duo-lab/domain"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc"
)

// DataStore owns the local snapshot of dates, plans, schedule cells and the next meeting.
// The snapshot is a cache of the remote store: mutations never patch it directly,
// they write remotely and then reload every collection.
type DataStore struct {
	log      *slog.Logger
	remote   contract.RemoteStore
	validate *validator.Validate

	mu          sync.RWMutex
	dates       []domain.DateEvent
	plans       []domain.PlanItem
	schedules   []domain.ScheduleCell
	nextMeeting *time.Time
	loaded      bool
	pending     int
}

func NewDataStore(log *slog.Logger, remote contract.RemoteStore) *DataStore {
	return &DataStore{log: log, remote: remote, validate: validator.New()}
}

// Refresh reloads the four collections in parallel.
// A failed sub-fetch keeps the previous value of its collection, empty before the first success,
// and never aborts the others. Loading turns false once every request has settled.
func (s *DataStore) Refresh(ctx context.Context) {
	s.mu.Lock()
	s.pending++
	s.mu.Unlock()

	var wg conc.WaitGroup
	wg.Go(func() { s.fetchDates(ctx) })
	wg.Go(func() { s.fetchPlans(ctx) })
	wg.Go(func() { s.fetchSchedules(ctx) })
	wg.Go(func() { s.fetchNextMeeting(ctx) })
	wg.Wait()

	s.mu.Lock()
	s.pending--
	s.loaded = true
	s.mu.Unlock()
}

func (s *DataStore) fetchDates(ctx context.Context) {
	rows, err := s.remote.Select(ctx, domain.TableDates, domain.Query{
		Order: &domain.Order{Column: "date", Ascending: true},
	})
	if err != nil {
		s.log.Error("Error fetching dates", "error", err)
		return
	}
	dates := make([]domain.DateEvent, 0, len(rows))
	for _, row := range rows {
		d, err := domain.DateEventFromRow(row)
		if err != nil {
			s.log.Warn("Skipping unreadable date", "error", err)
			continue
		}
		dates = append(dates, d)
	}
	s.mu.Lock()
	s.dates = dates
	s.mu.Unlock()
}

func (s *DataStore) fetchPlans(ctx context.Context) {
	rows, err := s.remote.Select(ctx, domain.TablePlans, domain.Query{
		Order: &domain.Order{Column: "created_at", Ascending: false},
	})
	if err != nil {
		s.log.Error("Error fetching plans", "error", err)
		return
	}
	plans := lo.Map(rows, func(row domain.Row, _ int) domain.PlanItem { return domain.PlanItemFromRow(row) })
	s.mu.Lock()
	s.plans = plans
	s.mu.Unlock()
}

func (s *DataStore) fetchSchedules(ctx context.Context) {
	rows, err := s.remote.Select(ctx, domain.TableSchedules, domain.Query{})
	if err != nil {
		s.log.Error("Error fetching schedules", "error", err)
		return
	}
	cells := lo.Map(rows, func(row domain.Row, _ int) domain.ScheduleCell { return domain.ScheduleCellFromRow(row) })
	s.mu.Lock()
	s.schedules = cells
	s.mu.Unlock()
}

func (s *DataStore) fetchNextMeeting(ctx context.Context) {
	rows, err := s.remote.Select(ctx, domain.TableConfig, domain.Query{
		Filters: []domain.Filter{domain.Eq("key", domain.NextMeetingKey)},
	})
	if err != nil {
		s.log.Error("Error fetching next meeting", "error", err)
		return
	}
	if len(rows) == 0 {
		s.log.Debug("No next meeting configured")
		return
	}
	at, err := domain.NextMeetingFromRow(rows[0])
	if err != nil {
		s.log.Warn("Unreadable next meeting", "error", err)
		return
	}
	s.mu.Lock()
	s.nextMeeting = &at
	s.mu.Unlock()
}

// Loading is true until the first refresh has settled and while one is in flight.
func (s *DataStore) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.loaded || s.pending > 0
}

func (s *DataStore) Dates() []domain.DateEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.dates)
}

// FlatDates is the chronological list, itinerary entries excluded.
func (s *DataStore) FlatDates() []domain.DateEvent {
	return domain.FlatDates(s.Dates())
}

func (s *DataStore) Itinerary(loc *time.Location) []domain.ItineraryDay {
	return domain.Itinerary(s.Dates(), loc)
}

func (s *DataStore) Plans() []domain.PlanItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.plans)
}

func (s *DataStore) Schedules() []domain.ScheduleCell {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.schedules)
}

func (s *DataStore) ScheduleGrid(user domain.Alias) []domain.ScheduleDay {
	return domain.ScheduleGrid(s.Schedules(), user)
}

// NextMeeting returns the configured meeting, or the default target when none is set.
func (s *DataStore) NextMeeting() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.nextMeeting == nil {
		return domain.DefaultNextMeeting, false
	}
	return *s.nextMeeting, true
}

// mutate validates input, performs the remote write and reloads on success.
// Failures are logged and swallowed, the snapshot stays as it was.
func (s *DataStore) mutate(ctx context.Context, op string, input any, write func() error) {
	if input != nil {
		if err := s.validate.Struct(input); err != nil {
			s.log.Error("Invalid input", "op", op, "error", err)
			return
		}
	}
	if err := write(); err != nil {
		s.log.Error("Remote write failed", "op", op, "error", err)
		return
	}
	s.Refresh(ctx)
}

func (s *DataStore) AddDate(ctx context.Context, d domain.NewDateEvent) {
	s.mutate(ctx, "add date", d, func() error {
		return s.remote.Insert(ctx, domain.TableDates, d.Row())
	})
}

func (s *DataStore) UpdateDate(ctx context.Context, id string, patch domain.DatePatch) {
	s.mutate(ctx, "update date", nil, func() error {
		return s.remote.Update(ctx, domain.TableDates, patch.Row(), id)
	})
}

func (s *DataStore) DeleteDate(ctx context.Context, id string) {
	s.mutate(ctx, "delete date", nil, func() error {
		return s.remote.Delete(ctx, domain.TableDates, id)
	})
}

func (s *DataStore) AddPlan(ctx context.Context, p domain.NewPlanItem) {
	s.mutate(ctx, "add plan", p, func() error {
		return s.remote.Insert(ctx, domain.TablePlans, p.Row())
	})
}

func (s *DataStore) UpdatePlan(ctx context.Context, id string, patch domain.PlanPatch) {
	s.mutate(ctx, "update plan", nil, func() error {
		return s.remote.Update(ctx, domain.TablePlans, patch.Row(), id)
	})
}

// TogglePlan flips the completion flag as currently seen in the snapshot.
func (s *DataStore) TogglePlan(ctx context.Context, id string) {
	plan, ok := lo.Find(s.Plans(), func(p domain.PlanItem) bool { return p.ID == id })
	if !ok {
		s.log.Warn("Toggling unknown plan", "id", id)
		return
	}
	completed := !plan.Completed
	s.UpdatePlan(ctx, id, domain.PlanPatch{Completed: &completed})
}

func (s *DataStore) DeletePlan(ctx context.Context, id string) {
	s.mutate(ctx, "delete plan", nil, func() error {
		return s.remote.Delete(ctx, domain.TablePlans, id)
	})
}

// UpsertSchedule writes the cell of its (user, day, period) key, replacing any previous subject.
func (s *DataStore) UpsertSchedule(ctx context.Context, cell domain.ScheduleCell) {
	s.mutate(ctx, "update schedule", cell, func() error {
		return s.remote.Upsert(ctx, domain.TableSchedules, cell.Row(), domain.ScheduleConflictKey...)
	})
}

func (s *DataStore) SetNextMeeting(ctx context.Context, at time.Time) {
	s.mutate(ctx, "update next meeting", nil, func() error {
		return s.remote.Upsert(ctx, domain.TableConfig, domain.NextMeetingRow(at))
	})
}
