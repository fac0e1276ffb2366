package storage

import (
	"cmp"
	"context"
	"duo-lab/contract"
	"duo-lab/domain"
	"duo-lab/errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	stderrors "errors"

	"github.com/avast/retry-go/v4"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type subscription struct {
	mask    domain.EventMask
	onEvent func(domain.ChangeEvent)
}

// TableStore is a row store on top of BadgerDB, used as the persistence service in
// development and tests. It implements contract.RemoteStore and contract.ChangeFeed.
//
// Rows are stored under "row:{table}:{primary key}" as protobuf Structs.
// Every committed write emits a change event on an internal buffered channel;
// Run fans those events out to the subscribers of the table.
type TableStore struct {
	db      *badger.DB
	log     *slog.Logger
	now     func() time.Time
	changes chan domain.ChangeEvent

	mu   sync.RWMutex
	subs map[domain.Table]map[string]subscription
}

func NewTableStore(db *badger.DB, log *slog.Logger, bufferSize int) *TableStore {
	return &TableStore{
		db:      db,
		log:     log,
		now:     time.Now,
		changes: make(chan domain.ChangeEvent, bufferSize),
		subs:    make(map[domain.Table]map[string]subscription),
	}
}

func rowKey(table domain.Table, pk string) []byte {
	return []byte(fmt.Sprintf("row:%s:%s", table, pk))
}

func tablePrefix(table domain.Table) []byte {
	return []byte(fmt.Sprintf("row:%s:", table))
}

// update runs fn in a read-write transaction, retrying on write conflicts.
func (s *TableStore) update(fn func(txn *badger.Txn) error) error {
	return retry.Do(
		func() error { return s.db.Update(fn) },
		retry.RetryIf(func(err error) bool { return stderrors.Is(err, badger.ErrConflict) }),
		retry.Attempts(5),
		retry.Delay(time.Millisecond),
		retry.LastErrorOnly(true),
	)
}

func getRow(txn *badger.Txn, key []byte) (domain.Row, error) {
	item, err := txn.Get(key)
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var row domain.Row
	err = item.Value(func(val []byte) error {
		row, err = decodeRow(val)
		return err
	})
	return row, err
}

func setRow(txn *badger.Txn, table domain.Table, row domain.Row) error {
	data, err := encodeRow(row)
	if err != nil {
		return err
	}
	return txn.Set(rowKey(table, row.String(table.PrimaryKey())), data)
}

func scanRows(txn *badger.Txn, table domain.Table) ([]domain.Row, error) {
	prefix := tablePrefix(table)
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	var rows []domain.Row
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		err := it.Item().Value(func(val []byte) error {
			row, err := decodeRow(val)
			if err != nil {
				return err
			}
			rows = append(rows, row)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// prepareInsert assigns the identifier and creation time the store owns.
func (s *TableStore) prepareInsert(table domain.Table, record domain.Row) (domain.Row, error) {
	row := normalize(map[string]any(record)).(map[string]any)
	pk := table.PrimaryKey()
	if domain.Row(row).String(pk) == "" {
		if pk != "id" {
			return nil, fmt.Errorf("%w: %s requires %s", errors.ErrInvalidRow, table, pk)
		}
		row[pk] = uuid.NewString()
	}
	if _, ok := row["created_at"]; !ok {
		row["created_at"] = domain.FormatTime(s.now())
	}
	return row, nil
}

func (s *TableStore) Select(_ context.Context, table domain.Table, query domain.Query) ([]domain.Row, error) {
	var rows []domain.Row
	err := s.db.View(func(txn *badger.Txn) error {
		all, err := scanRows(txn, table)
		if err != nil {
			return err
		}
		for _, row := range all {
			if query.Match(row) {
				rows = append(rows, row)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	if query.Order != nil {
		order := *query.Order
		slices.SortStableFunc(rows, func(a, b domain.Row) int {
			c := compareValues(a[order.Column], b[order.Column])
			if !order.Ascending {
				c = -c
			}
			return c
		})
	}
	return rows, nil
}

func (s *TableStore) Insert(_ context.Context, table domain.Table, record domain.Row) error {
	row, err := s.prepareInsert(table, record)
	if err != nil {
		return err
	}
	key := rowKey(table, row.String(table.PrimaryKey()))
	err = s.update(func(txn *badger.Txn) error {
		existing, err := getRow(txn, key)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: duplicate %s %s", errors.ErrInvalidRow, table.PrimaryKey(), row.String(table.PrimaryKey()))
		}
		return setRow(txn, table, row)
	})
	if err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	s.emit(domain.ChangeEvent{Table: table, Type: domain.ChangeInsert, Record: row})
	return nil
}

// Update merges patch into the row identified by id. Matching no row is not an error.
func (s *TableStore) Update(_ context.Context, table domain.Table, patch domain.Row, id string) error {
	patch = normalize(map[string]any(patch)).(map[string]any)
	delete(patch, table.PrimaryKey())

	var old, updated domain.Row
	err := s.update(func(txn *badger.Txn) error {
		var err error
		old, err = getRow(txn, rowKey(table, id))
		if err != nil || old == nil {
			return err
		}
		updated = old.Merge(patch)
		return setRow(txn, table, updated)
	})
	if err != nil {
		return fmt.Errorf("update %s %s: %w", table, id, err)
	}
	if old == nil {
		s.log.Debug("Update matched no row", "table", table, "id", id)
		return nil
	}
	s.emit(domain.ChangeEvent{Table: table, Type: domain.ChangeUpdate, Record: updated, OldRecord: old})
	return nil
}

// Delete removes the row identified by id. Matching no row is not an error.
func (s *TableStore) Delete(_ context.Context, table domain.Table, id string) error {
	var old domain.Row
	err := s.update(func(txn *badger.Txn) error {
		var err error
		key := rowKey(table, id)
		old, err = getRow(txn, key)
		if err != nil || old == nil {
			return err
		}
		return txn.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", table, id, err)
	}
	if old == nil {
		return nil
	}
	s.emit(domain.ChangeEvent{Table: table, Type: domain.ChangeDelete, OldRecord: old})
	return nil
}

// Upsert merges record into the row sharing its conflict columns, or inserts it.
// Without conflict columns the primary key decides.
func (s *TableStore) Upsert(_ context.Context, table domain.Table, record domain.Row, conflictKey ...string) error {
	if len(conflictKey) == 0 {
		conflictKey = []string{table.PrimaryKey()}
	}
	record = normalize(map[string]any(record)).(map[string]any)
	for _, column := range conflictKey {
		if record.String(column) == "" {
			return fmt.Errorf("%w: upsert into %s without %s", errors.ErrInvalidRow, table, column)
		}
	}

	var evt domain.ChangeEvent
	err := s.update(func(txn *badger.Txn) error {
		rows, err := scanRows(txn, table)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if sameKey(row, record, conflictKey) {
				patch := record.Merge(nil)
				delete(patch, table.PrimaryKey())
				updated := row.Merge(patch)
				evt = domain.ChangeEvent{Table: table, Type: domain.ChangeUpdate, Record: updated, OldRecord: row}
				return setRow(txn, table, updated)
			}
		}
		inserted, err := s.prepareInsert(table, record)
		if err != nil {
			return err
		}
		evt = domain.ChangeEvent{Table: table, Type: domain.ChangeInsert, Record: inserted}
		return setRow(txn, table, inserted)
	})
	if err != nil {
		return fmt.Errorf("upsert into %s: %w", table, err)
	}
	s.emit(evt)
	return nil
}

func sameKey(a, b domain.Row, columns []string) bool {
	for _, column := range columns {
		if a.String(column) != b.String(column) {
			return false
		}
	}
	return true
}

// compareValues orders numbers numerically, everything else by its string form.
// Instants are stored in a fixed width layout so string order is chronological.
func compareValues(a, b any) int {
	fa, aNum := a.(float64)
	fb, bNum := b.(float64)
	if aNum && bNum {
		return cmp.Compare(fa, fb)
	}
	return cmp.Compare(domain.Row{"v": a}.String("v"), domain.Row{"v": b}.String("v"))
}

// emit never blocks a writer: when the buffer is full the event is dropped.
func (s *TableStore) emit(evt domain.ChangeEvent) {
	select {
	case s.changes <- evt:
	default:
		s.log.Warn("Change event lost, buffer full", "table", evt.Table, "type", evt.Type)
	}
}

// SubscribeChanges registers onEvent for the change types of mask on table.
func (s *TableStore) SubscribeChanges(table domain.Table, mask domain.EventMask, onEvent func(domain.ChangeEvent)) (contract.Unsubscribe, error) {
	id := uuid.NewString()
	s.mu.Lock()
	if _, ok := s.subs[table]; !ok {
		s.subs[table] = make(map[string]subscription)
	}
	s.subs[table][id] = subscription{mask: mask, onEvent: onEvent}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if subs, ok := s.subs[table]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(s.subs, table)
				}
			}
		})
	}, nil
}

// Subscriptions is the number of live change subscriptions across tables.
func (s *TableStore) Subscriptions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, subs := range s.subs {
		n += len(subs)
	}
	return n
}

// Backlog is the number of change events waiting for fan-out.
func (s *TableStore) Backlog() int {
	return len(s.changes)
}

func (s *TableStore) subscribers(evt domain.ChangeEvent) []func(domain.ChangeEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var fns []func(domain.ChangeEvent)
	for _, sub := range s.subs[evt.Table] {
		if sub.mask.Matches(evt.Type) {
			fns = append(fns, sub.onEvent)
		}
	}
	return fns
}

// Run delivers change events to subscribers until ctx is done.
func (s *TableStore) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-s.changes:
			for _, fn := range s.subscribers(evt) {
				fn(evt)
			}
		case <-ctx.Done():
			s.log.Debug("Context done, stopping change fan-out")
			return nil
		}
	}
}
