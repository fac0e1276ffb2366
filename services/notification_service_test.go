package services

import (
	"context"
	"duo-lab/contract"
	"duo-lab/domain"
	"duo-lab/errors"
	"duo-lab/mocks"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type staticNames map[domain.Alias]string

func (n staticNames) Name(user domain.Alias) string {
	return n[user]
}

func TestNotificationService_SendPush(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	t.Run("should deliver to the target through the push function", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		invoker := mocks.NewMockDeliveryInvoker(ctrl)
		svc := NewNotificationService(log, domain.Angy, invoker, mocks.NewMockNotifier(ctrl), staticNames{})

		invoker.EXPECT().
			Invoke(gomock.Any(), domain.PushFunction, domain.PushRequest{Content: "hi", TargetUserID: domain.Bozy}).
			Return([]byte(`{"id":"n-1"}`), nil).
			Times(1)

		svc.SendPush("hi", domain.Bozy)
		svc.Wait()
		req.True(ctrl.Satisfied())
	})

	t.Run("should return before a slow delivery completes and swallow its failure", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		invoker := mocks.NewMockDeliveryInvoker(ctrl)
		svc := NewNotificationService(log, domain.Angy, invoker, mocks.NewMockNotifier(ctrl), staticNames{})
		release := make(chan struct{})

		invoker.EXPECT().
			Invoke(gomock.Any(), domain.PushFunction, gomock.Any()).
			DoAndReturn(func(context.Context, string, any) ([]byte, error) {
				<-release
				return nil, fmt.Errorf("boom")
			})

		start := time.Now()
		svc.SendPush("hi", domain.Bozy)
		req.Less(time.Since(start), 100*time.Millisecond)

		close(release)
		svc.Wait()
	})

	t.Run("should send the test push to the partner", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		invoker := mocks.NewMockDeliveryInvoker(ctrl)
		svc := NewNotificationService(log, domain.Bozy, invoker, mocks.NewMockNotifier(ctrl), staticNames{})

		invoker.EXPECT().
			Invoke(gomock.Any(), domain.PushFunction, domain.PushRequest{Content: domain.TestPushBody, TargetUserID: domain.Angy}).
			Return(nil, nil)

		svc.SendTestPush()
		svc.Wait()
	})
}

func TestNotificationService_ShowInbound(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	names := staticNames{domain.Bozy: "Bozy"}
	inbound := domain.ChatMessage{ID: "m1", SenderID: domain.Bozy, Content: "coucou"}

	t.Run("should notify when granted and hidden", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		notifier := mocks.NewMockNotifier(ctrl)
		svc := NewNotificationService(log, domain.Angy, mocks.NewMockDeliveryInvoker(ctrl), notifier, names)

		notifier.EXPECT().Permission().Return(contract.PermissionGranted)
		notifier.EXPECT().Visible().Return(false)
		notifier.EXPECT().Show("New message from Bozy", "coucou", domain.InboundTag).Return(nil).Times(1)

		svc.ShowInbound(inbound)
	})

	t.Run("should stay silent while the app is visible", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		notifier := mocks.NewMockNotifier(ctrl)
		svc := NewNotificationService(log, domain.Angy, mocks.NewMockDeliveryInvoker(ctrl), notifier, names)

		notifier.EXPECT().Permission().Return(contract.PermissionGranted)
		notifier.EXPECT().Visible().Return(true)
		notifier.EXPECT().Show(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		svc.ShowInbound(inbound)
	})

	t.Run("should stay silent without permission", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		notifier := mocks.NewMockNotifier(ctrl)
		svc := NewNotificationService(log, domain.Angy, mocks.NewMockDeliveryInvoker(ctrl), notifier, names)

		notifier.EXPECT().Permission().Return(contract.PermissionDefault)
		notifier.EXPECT().Visible().Return(false).AnyTimes()
		notifier.EXPECT().Show(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		svc.ShowInbound(inbound)
	})

	t.Run("should never notify about own messages", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		notifier := mocks.NewMockNotifier(ctrl)
		svc := NewNotificationService(log, domain.Bozy, mocks.NewMockDeliveryInvoker(ctrl), notifier, names)

		notifier.EXPECT().Show(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		svc.ShowInbound(inbound)
	})
}

func TestNotificationService_EnableNotifications(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	t.Run("should confirm once granted", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		notifier := mocks.NewMockNotifier(ctrl)
		svc := NewNotificationService(log, domain.Angy, mocks.NewMockDeliveryInvoker(ctrl), notifier, staticNames{})

		notifier.EXPECT().RequestPermission(gomock.Any()).Return(contract.PermissionGranted, nil)
		notifier.EXPECT().Show(EnabledTitle, EnabledBody, "").Return(nil)
		notifier.EXPECT().Permission().Return(contract.PermissionGranted)

		req.NoError(svc.EnableNotifications(context.Background()))
		req.True(svc.NotificationsEnabled())
	})

	t.Run("should stay disabled when denied", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		notifier := mocks.NewMockNotifier(ctrl)
		svc := NewNotificationService(log, domain.Angy, mocks.NewMockDeliveryInvoker(ctrl), notifier, staticNames{})

		notifier.EXPECT().RequestPermission(gomock.Any()).Return(contract.PermissionDenied, nil).Times(1)
		notifier.EXPECT().Show(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
		notifier.EXPECT().Permission().Return(contract.PermissionDenied)

		err := svc.EnableNotifications(context.Background())

		req.ErrorIs(err, errors.ErrPermissionDenied)
		req.False(svc.NotificationsEnabled())
	})
}
