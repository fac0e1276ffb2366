//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"duo-lab/domain"
	"reflect"
	"time"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// RemoteStore is the row gateway to the persistence service.
// It owns the durable copy, every snapshot held by the core is a cache of it.
type RemoteStore interface {
	Select(ctx context.Context, table domain.Table, query domain.Query) ([]domain.Row, error)
	Insert(ctx context.Context, table domain.Table, record domain.Row) error
	Update(ctx context.Context, table domain.Table, patch domain.Row, id string) error
	Delete(ctx context.Context, table domain.Table, id string) error
	// Upsert replaces the row matching the conflict columns, or inserts it.
	// Without conflict columns the table's primary key is used.
	Upsert(ctx context.Context, table domain.Table, record domain.Row, conflictKey ...string) error
}

// Unsubscribe releases a subscription. Calling it more than once is harmless.
type Unsubscribe func()

// ChangeFeed delivers change events of one table asynchronously.
type ChangeFeed interface {
	SubscribeChanges(table domain.Table, mask domain.EventMask, onEvent func(domain.ChangeEvent)) (Unsubscribe, error)
}

type BlobStore interface {
	UploadBlob(ctx context.Context, bucket, path string, data []byte, upsert bool) error
	SignedURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error)
}

// PresenceChannel is an ephemeral broadcast channel with sync semantics:
// OnSync receives the full current membership state, never deltas.
type PresenceChannel interface {
	Announce(ctx context.Context, state domain.TypingState) error
	OnSync(callback func(map[domain.Alias]domain.TypingState)) Unsubscribe
	Close() error
}

// DeliveryInvoker calls a named server-side function, keeping vendor credentials out of the core.
type DeliveryInvoker interface {
	Invoke(ctx context.Context, function string, payload any) ([]byte, error)
}

// PushProvider delivers a notification to the devices registered for an alias.
type PushProvider interface {
	Deliver(ctx context.Context, target domain.Alias, title, body string) ([]byte, error)
}

type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Notifier shows local notifications on the device running the session.
type Notifier interface {
	Permission() Permission
	RequestPermission(ctx context.Context) (Permission, error)
	// Visible reports whether the app is in the foreground.
	Visible() bool
	Show(title, body, tag string) error
}

// Alerter raises a user-visible alert.
type Alerter interface {
	Alert(message string)
}

// Preferences is the local key-value persistence of the device.
type Preferences interface {
	LastUser() (domain.Alias, bool, error)
	SetLastUser(user domain.Alias) error
	ClearLastUser() error
	DarkMode() (bool, error)
	SetDarkMode(dark bool) error
	ThemeColors(user domain.Alias) (*domain.ThemeValues, error)
	SetThemeColors(user domain.Alias, colors *domain.ThemeValues) error
}

// Notifications is what the chat needs from notification dispatch.
type Notifications interface {
	SendPush(content string, target domain.Alias)
	ShowInbound(msg domain.ChatMessage)
}
