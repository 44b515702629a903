package repository

import (
	"context"
	"testing"
	"time"

	"github.com/quocanhngo/chatrelay/internal/model"
	"github.com/quocanhngo/chatrelay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRepository_InsertAssignsIDAndTimestamp(t *testing.T) {
	repo := NewMessageRepository(testutil.NewDB(t))

	msg := &model.Message{SenderID: 1, ReceiverID: 2, Text: "hi"}
	require.NoError(t, repo.Insert(context.Background(), msg))

	assert.NotZero(t, msg.ID)
	assert.False(t, msg.CreatedAt.IsZero())
}

func TestMessageRepository_FindBetweenOrderingAndFilter(t *testing.T) {
	repo := NewMessageRepository(testutil.NewDB(t))
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	rows := []*model.Message{
		{SenderID: 1, ReceiverID: 2, Text: "first", CreatedAt: base},
		{SenderID: 2, ReceiverID: 1, Text: "second", CreatedAt: base.Add(time.Second)},
		// same timestamp as "second": id breaks the tie
		{SenderID: 1, ReceiverID: 2, Text: "third", CreatedAt: base.Add(time.Second)},
		{SenderID: 1, ReceiverID: 3, Text: "other pair", CreatedAt: base.Add(2 * time.Second)},
		{SenderID: 3, ReceiverID: 2, Text: "also other", CreatedAt: base.Add(3 * time.Second)},
	}
	for _, row := range rows {
		require.NoError(t, repo.Insert(ctx, row))
	}

	messages, err := repo.FindBetween(ctx, 1, 2, 50)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "first", messages[0].Text)
	assert.Equal(t, "second", messages[1].Text)
	assert.Equal(t, "third", messages[2].Text)

	// argument order does not matter
	reversed, err := repo.FindBetween(ctx, 2, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, messages, reversed)
}

func TestMessageRepository_FindBetweenLimitKeepsNewest(t *testing.T) {
	repo := NewMessageRepository(testutil.NewDB(t))
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Insert(ctx, &model.Message{
			SenderID: 1, ReceiverID: 2, Text: string(rune('a' + i)), CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	messages, err := repo.FindBetween(ctx, 1, 2, 2)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "d", messages[0].Text)
	assert.Equal(t, "e", messages[1].Text)
}

func TestMessageRepository_FindBetweenCarriesDeviceKeys(t *testing.T) {
	db := testutil.NewDB(t)
	identities := NewIdentityRepository(db)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	alice := &model.Identity{DeviceKey: "alice-phone"}
	bob := &model.Identity{DeviceKey: "bob-tablet"}
	require.NoError(t, identities.Create(ctx, alice))
	require.NoError(t, identities.Create(ctx, bob))

	require.NoError(t, repo.Insert(ctx, &model.Message{SenderID: alice.ID, ReceiverID: bob.ID, Text: "hi"}))
	require.NoError(t, repo.Insert(ctx, &model.Message{SenderID: bob.ID, ReceiverID: alice.ID, Text: "hey"}))

	messages, err := repo.FindBetween(ctx, alice.ID, bob.ID, 10)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "alice-phone", messages[0].SenderDeviceKey)
	assert.Equal(t, "bob-tablet", messages[0].ReceiverDeviceKey)
	assert.Equal(t, "bob-tablet", messages[1].SenderDeviceKey)
	assert.Equal(t, "alice-phone", messages[1].ReceiverDeviceKey)

	// a sender without an identity row still comes back
	require.NoError(t, repo.Insert(ctx, &model.Message{SenderID: 99, ReceiverID: alice.ID, Text: "ghost"}))
	orphaned, err := repo.FindBetween(ctx, 99, alice.ID, 10)
	require.NoError(t, err)
	require.Len(t, orphaned, 1)
	assert.Empty(t, orphaned[0].SenderDeviceKey)
	assert.Equal(t, "alice-phone", orphaned[0].ReceiverDeviceKey)
}
