package runtime

import (
	"context"
	"duo-lab/domain"
	"duo-lab/mocks"
	"errors"
	"log/slog"
	"strings"
	"testing"

	apperrors "duo-lab/errors"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func messageRow(id string, sender domain.Alias, content, createdAt string) domain.Row {
	return domain.Row{"id": id, "sender_id": string(sender), "content": content, "created_at": createdAt}
}

type chatFixture struct {
	remote        *mocks.MockRemoteStore
	notifications *mocks.MockNotifications
	alerter       *mocks.MockAlerter
	room          *ChatRoom
}

func newChatFixture(t *testing.T, self domain.Alias) chatFixture {
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	f := chatFixture{
		remote:        mocks.NewMockRemoteStore(ctrl),
		notifications: mocks.NewMockNotifications(ctrl),
		alerter:       mocks.NewMockAlerter(ctrl),
	}
	f.room = NewChatRoom(log, self, f.remote, f.notifications, f.alerter)
	return f
}

func TestChatRoom_Receive_DeduplicatesByID(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, domain.Angy)

	msg, err := domain.ChatMessageFromRow(messageRow("m1", domain.Bozy, "hi", "2025-06-01T10:00:00.000000Z"))
	req.NoError(err)

	// Given the partner's message is announced only once
	f.notifications.EXPECT().ShowInbound(msg).Times(1)

	// When it arrives through realtime then through polling
	req.True(f.room.Receive(msg))
	f.remote.EXPECT().Select(gomock.Any(), domain.TableMessages, gomock.Any()).
		Return([]domain.Row{messageRow("m1", domain.Bozy, "hi", "2025-06-01T10:00:00.000000Z")}, nil)
	added, err := f.room.Poll(context.Background())

	// Then it is kept once
	req.NoError(err)
	req.Zero(added)
	req.Len(f.room.Messages(), 1)
}

func TestChatRoom_Poll_SurfacesMissedMessagesInOrder(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, domain.Angy)

	f.remote.EXPECT().Select(gomock.Any(), domain.TableMessages, gomock.Any()).Return([]domain.Row{
		messageRow("m2", domain.Angy, "second", "2025-06-01T10:01:00.000000Z"),
		messageRow("m1", domain.Bozy, "first", "2025-06-01T10:00:00.000000Z"),
	}, nil)
	// Own messages never notify
	f.notifications.EXPECT().ShowInbound(gomock.Any()).Times(1)

	added, err := f.room.Poll(context.Background())

	req.NoError(err)
	req.Equal(2, added)
	msgs := f.room.Messages()
	req.Equal("m1", msgs[0].ID)
	req.Equal("m2", msgs[1].ID)
}

func TestChatRoom_Load_DoesNotNotify(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, domain.Angy)
	req.True(f.room.Loading())

	f.remote.EXPECT().Select(gomock.Any(), domain.TableMessages, gomock.Any()).Return([]domain.Row{
		messageRow("m1", domain.Bozy, "first", "2025-06-01T10:00:00.000000Z"),
	}, nil)
	f.notifications.EXPECT().ShowInbound(gomock.Any()).Times(0)

	f.room.Load(context.Background())

	req.False(f.room.Loading())
	req.Len(f.room.Messages(), 1)
}

func TestChatRoom_Send_ClearsDraftAndPushesToPartner(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, domain.Angy)
	f.room.SetDraft("  see you soon  ")

	insert := f.remote.EXPECT().
		Insert(gomock.Any(), domain.TableMessages, domain.Row{"sender_id": "angy", "content": "see you soon"}).
		DoAndReturn(func(ctx context.Context, table domain.Table, record domain.Row) error {
			// The input is already empty while the write is in flight
			req.Empty(f.room.Draft())
			return nil
		})
	f.notifications.EXPECT().SendPush("see you soon", domain.Bozy).After(insert)

	req.NoError(f.room.Send(context.Background()))

	req.Empty(f.room.Draft())
	// Not appended locally, the change feed brings it back
	req.Empty(f.room.Messages())
}

func TestChatRoom_Send_FailureRestoresDraft(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, domain.Bozy)
	original := "  miss you  "
	f.room.SetDraft(original)

	// Given the store rejects the insert
	f.remote.EXPECT().Insert(gomock.Any(), domain.TableMessages, gomock.Any()).Return(errors.New("network error"))
	f.alerter.EXPECT().Alert(SendFailedAlert)
	f.notifications.EXPECT().SendPush(gomock.Any(), gomock.Any()).Times(0)

	// When
	err := f.room.Send(context.Background())

	// Then the exact text is back and no message was added
	req.Error(err)
	req.Equal(original, f.room.Draft())
	req.Empty(f.room.Messages())
}

func TestChatRoom_Send_EmptyDraft(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, domain.Bozy)
	f.room.SetDraft("   ")

	err := f.room.Send(context.Background())

	req.ErrorIs(err, apperrors.ErrEmptyMessage)
	req.Equal("   ", f.room.Draft())
}

func TestChatRoom_Send_RejectsOverlongMessage(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, domain.Angy)
	original := strings.Repeat("a", 5000)
	f.room.SetDraft(original)

	// Given a draft longer than a message may be
	f.remote.EXPECT().Insert(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	f.notifications.EXPECT().SendPush(gomock.Any(), gomock.Any()).Times(0)

	// When
	err := f.room.Send(context.Background())

	// Then nothing is written and the draft is kept
	req.ErrorIs(err, apperrors.ErrInvalidRow)
	req.Equal(original, f.room.Draft())
}

func TestChatRoom_HandleChange(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, domain.Angy)
	f.notifications.EXPECT().ShowInbound(gomock.Any()).Times(1)

	insert := domain.ChangeEvent{
		Table:  domain.TableMessages,
		Type:   domain.ChangeInsert,
		Record: messageRow("m1", domain.Bozy, "hi", "2025-06-01T10:00:00.000000Z"),
	}
	f.room.HandleChange(insert)
	f.room.HandleChange(insert)
	req.Len(f.room.Messages(), 1)

	f.room.HandleChange(domain.ChangeEvent{
		Table:     domain.TableMessages,
		Type:      domain.ChangeDelete,
		OldRecord: domain.Row{"id": "m1"},
	})
	req.Empty(f.room.Messages())
}

func TestChatRoom_Delete_OnlyOwnMessages(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t, domain.Angy)
	f.notifications.EXPECT().ShowInbound(gomock.Any()).AnyTimes()

	mine, _ := domain.ChatMessageFromRow(messageRow("m1", domain.Angy, "mine", "2025-06-01T10:00:00.000000Z"))
	theirs, _ := domain.ChatMessageFromRow(messageRow("m2", domain.Bozy, "theirs", "2025-06-01T10:01:00.000000Z"))
	f.room.Receive(mine)
	f.room.Receive(theirs)

	f.remote.EXPECT().Delete(gomock.Any(), domain.TableMessages, "m1").Return(nil).Times(1)

	f.room.Delete(context.Background(), "m2")
	// Not loaded yet, so ownership cannot be checked
	f.room.Delete(context.Background(), "m3")
	f.room.Delete(context.Background(), "m1")

	msgs := f.room.Messages()
	req.Len(msgs, 1)
	req.Equal("m2", msgs[0].ID)
}
