package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Table names a collection of the remote store.
type Table string

const (
	TableDates     Table = "dates"
	TablePlans     Table = "plans"
	TableSchedules Table = "schedules"
	TableConfig    Table = "config"
	TableMessages  Table = "messages"
	TableProfiles  Table = "profiles"
)

// DataTables are the collections reloaded together by the data store.
var DataTables = []Table{TableDates, TablePlans, TableSchedules, TableConfig}

// PrimaryKey returns the column identifying a row of the table.
func (t Table) PrimaryKey() string {
	if t == TableConfig {
		return "key"
	}
	return "id"
}

// Row is a record as exchanged with the remote store.
// Values are plain JSON-compatible types; instants travel as ISO-8601 strings.
type Row map[string]any

func (r Row) String(column string) string {
	switch v := r[column].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func (r Row) Bool(column string) bool {
	switch v := r[column].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}

func (r Row) Time(column string) (time.Time, error) {
	return ParseTime(r.String(column))
}

// OptionalTime returns nil when the column is absent or empty.
func (r Row) OptionalTime(column string) (*time.Time, error) {
	if r.String(column) == "" {
		return nil, nil
	}
	t, err := r.Time(column)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r Row) Map(column string) map[string]any {
	if m, ok := r[column].(map[string]any); ok {
		return m
	}
	if m, ok := r[column].(Row); ok {
		return m
	}
	return nil
}

// Merge returns a copy of r overwritten by the columns of patch.
func (r Row) Merge(patch Row) Row {
	merged := make(Row, len(r)+len(patch))
	for k, v := range r {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	return merged
}

// TimeLayout is the fixed-width ISO-8601 layout used on the wire.
// Fixed width keeps lexicographic and chronological order identical.
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

var parseLayouts = []string{
	TimeLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func ParseTime(s string) (time.Time, error) {
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable instant %q", s)
}

type FilterOp string

const (
	OpEq FilterOp = "eq"
	OpIn FilterOp = "in"
)

// Filter restricts a select to rows whose column matches one of Values.
type Filter struct {
	Column string
	Op     FilterOp
	Values []string
}

func Eq(column, value string) Filter {
	return Filter{Column: column, Op: OpEq, Values: []string{value}}
}

func In(column string, values ...string) Filter {
	return Filter{Column: column, Op: OpIn, Values: values}
}

func (f Filter) Match(row Row) bool {
	return slices.Contains(f.Values, row.String(f.Column))
}

// Param renders the filter as a PostgREST query value, e.g. "eq.angy" or "in.(angy,bozy)".
func (f Filter) Param() string {
	if f.Op == OpIn {
		return fmt.Sprintf("in.(%s)", strings.Join(f.Values, ","))
	}
	return fmt.Sprintf("eq.%s", strings.Join(f.Values, ""))
}

// ParseFilter is the inverse of Param.
func ParseFilter(column, param string) (Filter, error) {
	op, value, ok := strings.Cut(param, ".")
	if !ok {
		return Filter{}, fmt.Errorf("filter %s=%s has no operator", column, param)
	}
	switch FilterOp(op) {
	case OpEq:
		return Eq(column, value), nil
	case OpIn:
		value = strings.TrimSuffix(strings.TrimPrefix(value, "("), ")")
		if value == "" {
			return In(column), nil
		}
		return In(column, strings.Split(value, ",")...), nil
	default:
		return Filter{}, fmt.Errorf("filter %s=%s has unsupported operator %q", column, param, op)
	}
}

type Order struct {
	Column    string
	Ascending bool
}

func (o Order) Param() string {
	if o.Ascending {
		return o.Column + ".asc"
	}
	return o.Column + ".desc"
}

func ParseOrder(param string) Order {
	column, dir, _ := strings.Cut(param, ".")
	return Order{Column: column, Ascending: dir != "desc"}
}

// Query describes a select: all filters must match, rows sorted by Order when set.
type Query struct {
	Filters []Filter
	Order   *Order
}

func (q Query) Match(row Row) bool {
	for _, f := range q.Filters {
		if !f.Match(row) {
			return false
		}
	}
	return true
}

type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// EventMask selects which change types a subscription receives.
type EventMask uint8

const (
	EventInsert EventMask = 1 << iota
	EventUpdate
	EventDelete

	EventAll = EventInsert | EventUpdate | EventDelete
)

func (m EventMask) Matches(t ChangeType) bool {
	switch t {
	case ChangeInsert:
		return m&EventInsert != 0
	case ChangeUpdate:
		return m&EventUpdate != 0
	case ChangeDelete:
		return m&EventDelete != 0
	default:
		return false
	}
}

// Param renders the mask as a realtime event filter ("*" or a single type).
func (m EventMask) Param() string {
	switch m {
	case EventInsert:
		return string(ChangeInsert)
	case EventUpdate:
		return string(ChangeUpdate)
	case EventDelete:
		return string(ChangeDelete)
	default:
		return "*"
	}
}

func ParseEventMask(param string) EventMask {
	switch ChangeType(strings.ToUpper(param)) {
	case ChangeInsert:
		return EventInsert
	case ChangeUpdate:
		return EventUpdate
	case ChangeDelete:
		return EventDelete
	default:
		return EventAll
	}
}

// ChangeEvent tells that a row of a watched table changed.
// Record is empty for deletes, OldRecord is only guaranteed to carry the primary key.
type ChangeEvent struct {
	Table     Table
	Type      ChangeType
	Record    Row
	OldRecord Row
}
