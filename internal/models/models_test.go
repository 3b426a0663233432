package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaceholderSender(t *testing.T) {
	meta := PlaceholderSender("3f2a9c71-0000-4000-8000-000000000000")

	assert.Equal(t, "User 3f2a9c", meta.Name)
	assert.Equal(t, UnknownContact, meta.Contact)
	assert.True(t, strings.HasPrefix(meta.AvatarURL, AvatarBaseURL))
	assert.Contains(t, meta.AvatarURL, "name=User+3f2a9c")
	assert.True(t, meta.IsPlaceholderFor("3f2a9c71-0000-4000-8000-000000000000"))
}

func TestPlaceholderNameShortAndEmpty(t *testing.T) {
	assert.Equal(t, "User ab", PlaceholderName("ab"))
	assert.Equal(t, "Unknown User", PlaceholderName(""))
}

func TestGeneratedAvatarIsDeterministic(t *testing.T) {
	assert.Equal(t, GeneratedAvatar("Ada Lovelace"), GeneratedAvatar("Ada Lovelace"))
	assert.NotEqual(t, GeneratedAvatar("Ada"), GeneratedAvatar("Grace"))
}

func TestNewSenderMetadataKeepsRealFields(t *testing.T) {
	meta := NewSenderMetadata("u1", "Ada", "ada@example.com", "https://cdn/ada.png")

	assert.Equal(t, SenderMetadata{Name: "Ada", Contact: "ada@example.com", AvatarURL: "https://cdn/ada.png"}, meta)
	assert.False(t, meta.IsPlaceholderFor("u1"))
}

func TestNewSenderMetadataAvatarFollowsName(t *testing.T) {
	meta := NewSenderMetadata("u1", "Ada", "", "")

	assert.Equal(t, GeneratedAvatar("Ada"), meta.AvatarURL)
	assert.Equal(t, UnknownContact, meta.Contact)
}

func TestNewMessageRejectsBlankContent(t *testing.T) {
	_, err := NewMessage("m1", "r1", "u1", "   ", time.Now())
	assert.ErrorIs(t, err, ErrEmptyContent)

	msg, err := NewMessage("m1", "r1", "u1", "  hi ", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "hi", msg.Content)
	assert.False(t, msg.HasResolvedSender())
}

func TestTempIDs(t *testing.T) {
	a, b := NewTempID(), NewTempID()

	assert.NotEqual(t, a, b)
	assert.True(t, IsTempID(a))
	assert.False(t, IsTempID("6c1f9a0e-1d2b-4c3d-8e4f-5a6b7c8d9e0f"))
	assert.True(t, Message{ID: a}.IsPending())
}

func TestMessageEventRoundTrip(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 123000000, time.UTC)
	msg, err := NewMessage("m1", "r1", "u1", "hello", created)
	require.NoError(t, err)

	back, err := NewMessageEvent(msg).Message()
	require.NoError(t, err)
	assert.True(t, back.CreatedAt.Equal(created))
	assert.Equal(t, msg.Content, back.Content)
}

func TestMessageEventBadTimestamp(t *testing.T) {
	_, err := MessageEvent{ID: "m1", Content: "x", CreatedAt: "yesterday"}.Message()
	assert.Error(t, err)
}
