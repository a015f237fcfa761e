package database

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estatehub/server/internal/apperr"
	"estatehub/server/internal/models"
)

func newConversation(t *testing.T, db *Database, propertyID *uint, sender uint, users ...uint) *models.Conversation {
	t.Helper()
	conv := &models.Conversation{PropertyID: propertyID, Subject: "Viewing"}
	for _, id := range users {
		conv.Participants = append(conv.Participants, models.ConversationParticipant{UserID: id})
	}
	first := &models.Message{SenderID: sender, Body: "Hello"}
	require.NoError(t, db.CreateConversation(context.Background(), conv, first))
	return conv
}

func TestFindConversation_ExactParticipants(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	conv := newConversation(t, db, uintPtr(5), 1, 1, 2)
	newConversation(t, db, uintPtr(5), 1, 1, 2, 3)

	found, err := db.FindConversation(ctx, []uint{2, 1, 2}, uintPtr(5))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, conv.ID, found.ID)

	none, err := db.FindConversation(ctx, []uint{1, 2}, nil)
	require.NoError(t, err)
	assert.Nil(t, none)

	none, err = db.FindConversation(ctx, []uint{1, 3}, uintPtr(5))
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestListConversations_UnreadAndLastMessage(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	conv := newConversation(t, db, nil, 1, 1, 2)
	require.NoError(t, db.CreateMessage(ctx, &models.Message{ConversationID: conv.ID, SenderID: 1, Body: "Are you there?"}))

	inbox, err := db.ListConversations(ctx, 2)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, int64(2), inbox[0].UnreadCount)
	require.NotNil(t, inbox[0].LastMessage)
	assert.Equal(t, "Are you there?", inbox[0].LastMessage.Body)

	senderInbox, err := db.ListConversations(ctx, 1)
	require.NoError(t, err)
	require.Len(t, senderInbox, 1)
	assert.Equal(t, int64(0), senderInbox[0].UnreadCount)

	require.NoError(t, db.MarkRead(ctx, conv.ID, 2))
	inbox, err = db.ListConversations(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), inbox[0].UnreadCount)

	empty, err := db.ListConversations(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestListMessages_BeforeCursor(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	conv := newConversation(t, db, nil, 1, 1, 2)
	for _, body := range []string{"two", "three", "four"} {
		require.NoError(t, db.CreateMessage(ctx, &models.Message{ConversationID: conv.ID, SenderID: 2, Body: body}))
	}

	latest, err := db.ListMessages(ctx, conv.ID, 0, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "three", latest[0].Body)
	assert.Equal(t, "four", latest[1].Body)

	older, err := db.ListMessages(ctx, conv.ID, latest[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, older, 2)
	assert.Equal(t, "Hello", older[0].Body)
	assert.Equal(t, "two", older[1].Body)
}

func TestIsParticipant(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	conv := newConversation(t, db, nil, 1, 1, 2)

	ok, err := db.IsParticipant(ctx, conv.ID, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.IsParticipant(ctx, conv.ID, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = db.GetConversation(ctx, 999)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}
