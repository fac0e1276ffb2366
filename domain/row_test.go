package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFilter_ParamRoundTrip(t *testing.T) {
	req := require.New(t)

	in := In("id", "angy", "bozy")
	parsed, err := ParseFilter("id", in.Param())
	req.NoError(err)
	req.Equal("in.(angy,bozy)", in.Param())
	req.Equal(in, parsed)

	eq, err := ParseFilter("key", "eq.next_meeting")
	req.NoError(err)
	req.True(eq.Match(Row{"key": "next_meeting"}))
	req.False(eq.Match(Row{"key": "other"}))

	_, err = ParseFilter("id", "like.foo")
	req.Error(err)
}

func TestFormatTime_SortsLexicographically(t *testing.T) {
	req := require.New(t)

	early := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	late := early.Add(500 * time.Millisecond)

	req.Less(FormatTime(early), FormatTime(late))
	parsed, err := ParseTime(FormatTime(late))
	req.NoError(err)
	req.True(parsed.Equal(late))
}

func TestEventMask_Matches(t *testing.T) {
	req := require.New(t)

	req.True(EventAll.Matches(ChangeDelete))
	req.True(EventInsert.Matches(ChangeInsert))
	req.False(EventInsert.Matches(ChangeUpdate))
	req.Equal(EventInsert, ParseEventMask("insert"))
	req.Equal(EventAll, ParseEventMask("*"))
}

func TestChatMessageFromRow(t *testing.T) {
	req := require.New(t)

	msg, err := ChatMessageFromRow(Row{
		"id":         "m1",
		"sender_id":  "angy",
		"content":    "hi",
		"created_at": "2025-06-01T10:00:00.000000Z",
	})
	req.NoError(err)
	req.Equal(Angy, msg.SenderID)
	req.Nil(msg.ReadAt)

	_, err = ChatMessageFromRow(Row{"content": "no id"})
	req.Error(err)
}

func TestProfilePatch_RowKeepsThemeLocal(t *testing.T) {
	req := require.New(t)

	name := "Angie"
	patch := ProfilePatch{Name: &name, ThemeColors: &ThemeValues{Primary: "1 2 3"}}
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	row := patch.Row(Angy, now)
	req.Equal("angy", row["id"])
	req.Equal("Angie", row["name"])
	req.NotContains(row, "theme_colors")

	updated := patch.Apply(DefaultProfiles()[Angy])
	req.Equal("Angie", updated.Name)
	req.Equal("1 2 3", updated.ThemeColors.Primary)
}

func TestImagePath_NormalisesJpeg(t *testing.T) {
	require.Equal(t, "bozy-avatar.jpg", ImagePath(Bozy, ImageAvatar, "jpeg"))
	require.Equal(t, "angy-background.png", ImagePath(Angy, ImageBackground, "png"))
}
