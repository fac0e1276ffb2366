package services

import (
	"context"
	"duo-lab/contract"
	"duo-lab/domain"
	"duo-lab/errors"
	"fmt"
	"log/slog"

	"github.com/sourcegraph/conc"
)

const (
	EnabledTitle = "Notifications Enabled!"
	EnabledBody  = "You will now receive alerts for new messages when the app is open."
)

// NameLookup resolves the display name of a participant.
type NameLookup interface {
	Name(user domain.Alias) string
}

// NotificationService dispatches push notifications and shows local ones.
// Push delivery is fire-and-forget: it runs in its own goroutine and a failure
// is only logged, the message it announces is already persisted.
type NotificationService struct {
	log      *slog.Logger
	self     domain.Alias
	invoker  contract.DeliveryInvoker
	notifier contract.Notifier
	names    NameLookup
	pending  conc.WaitGroup
}

func NewNotificationService(
	log *slog.Logger,
	self domain.Alias,
	invoker contract.DeliveryInvoker,
	notifier contract.Notifier,
	names NameLookup,
) *NotificationService {
	return &NotificationService{log: log, self: self, invoker: invoker, notifier: notifier, names: names}
}

// SendPush asks the push function to notify target. It never blocks the caller.
func (s *NotificationService) SendPush(content string, target domain.Alias) {
	s.pending.Go(func() {
		if err := s.deliver(context.Background(), content, target); err != nil {
			s.log.Warn("Error sending push notification", "target", target, "error", err)
		}
	})
}

func (s *NotificationService) deliver(ctx context.Context, content string, target domain.Alias) error {
	data, err := s.invoker.Invoke(ctx, domain.PushFunction, domain.PushRequest{Content: content, TargetUserID: target})
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrDeliveryFailed, err)
	}
	s.log.Debug("Push notification sent", "target", target, "response", string(data))
	return nil
}

// SendTestPush sends a fixed message to the partner.
func (s *NotificationService) SendTestPush() {
	s.SendPush(domain.TestPushBody, s.self.Partner())
}

// Wait blocks until every pending push attempt has finished.
func (s *NotificationService) Wait() {
	s.pending.Wait()
}

// ShowInbound raises a local notification for a partner's message while the app is hidden.
func (s *NotificationService) ShowInbound(msg domain.ChatMessage) {
	if msg.SenderID == s.self {
		return
	}
	if s.notifier.Permission() != contract.PermissionGranted || s.notifier.Visible() {
		return
	}
	title := fmt.Sprintf("New message from %s", s.names.Name(msg.SenderID))
	if err := s.notifier.Show(title, msg.Content, domain.InboundTag); err != nil {
		s.log.Warn("Cannot show local notification", "error", err)
	}
}

func (s *NotificationService) NotificationsEnabled() bool {
	return s.notifier.Permission() == contract.PermissionGranted
}

// EnableNotifications asks for permission once. A refusal leaves notifications disabled
// and is not retried, the user has to ask again.
func (s *NotificationService) EnableNotifications(ctx context.Context) error {
	permission, err := s.notifier.RequestPermission(ctx)
	if err != nil {
		return fmt.Errorf("request notification permission: %w", err)
	}
	if permission != contract.PermissionGranted {
		s.log.Info("Notification permission not granted", "permission", permission)
		return errors.ErrPermissionDenied
	}
	if err := s.notifier.Show(EnabledTitle, EnabledBody, ""); err != nil {
		s.log.Warn("Cannot show local notification", "error", err)
	}
	return nil
}
