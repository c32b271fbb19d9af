package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatter/internal/models"
	"chatter/internal/testutil"
)

func TestFriendRepository(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewFriendRepository(db)
	ctx := context.Background()

	u1 := &models.User{Name: "Alice", Phone: "+15550000001", Password: "x"}
	u2 := &models.User{Name: "Bob", Phone: "+15550000002", Password: "x"}
	u3 := &models.User{Name: "Cara", Phone: "+15550000003", Password: "x"}
	require.NoError(t, db.Create(u1).Error)
	require.NoError(t, db.Create(u2).Error)
	require.NoError(t, db.Create(u3).Error)

	t.Run("Create and GetPendingRequests", func(t *testing.T) {
		friendship := &models.Friendship{
			RequesterID: u1.ID,
			AddresseeID: u2.ID,
			Status:      models.FriendshipStatusPending,
		}
		require.NoError(t, repo.Create(ctx, friendship))

		reqs, err := repo.GetPendingRequests(ctx, u2.ID)
		assert.NoError(t, err)
		assert.Len(t, reqs, 1)
		assert.Equal(t, u1.ID, reqs[0].RequesterID)

		sent, err := repo.GetSentRequests(ctx, u1.ID)
		assert.NoError(t, err)
		assert.Len(t, sent, 1)
	})

	t.Run("Create duplicate pair rejected", func(t *testing.T) {
		dup := &models.Friendship{
			RequesterID: u2.ID,
			AddresseeID: u1.ID,
			Status:      models.FriendshipStatusPending,
		}
		err := repo.Create(ctx, dup)
		require.Error(t, err)
		var appErr *models.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, models.CodeAlreadyExists, appErr.Code)
	})

	t.Run("GetBetweenUsers is order independent", func(t *testing.T) {
		f1, err := repo.GetBetweenUsers(ctx, u1.ID, u2.ID)
		require.NoError(t, err)
		require.NotNil(t, f1)

		f2, err := repo.GetBetweenUsers(ctx, u2.ID, u1.ID)
		require.NoError(t, err)
		require.NotNil(t, f2)
		assert.Equal(t, f1.ID, f2.ID)
	})

	t.Run("UpdateStatus and GetFriends", func(t *testing.T) {
		f, err := repo.GetBetweenUsers(ctx, u1.ID, u2.ID)
		require.NoError(t, err)
		require.NoError(t, repo.UpdateStatus(ctx, f.ID, models.FriendshipStatusAccepted))

		friends, err := repo.GetFriends(ctx, u1.ID)
		assert.NoError(t, err)
		require.Len(t, friends, 1)
		assert.Equal(t, u2.Name, friends[0].Name)

		ok, err := repo.AreFriends(ctx, u2.ID, u1.ID)
		assert.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.AreFriends(ctx, u1.ID, u3.ID)
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("RemoveFriendship", func(t *testing.T) {
		require.NoError(t, repo.RemoveFriendship(ctx, u2.ID, u1.ID))

		friends, err := repo.GetFriends(ctx, u1.ID)
		assert.NoError(t, err)
		assert.Empty(t, friends)

		f, err := repo.GetBetweenUsers(ctx, u1.ID, u2.ID)
		assert.NoError(t, err)
		assert.Nil(t, f)
	})

	t.Run("Re-request after removal allowed", func(t *testing.T) {
		friendship := &models.Friendship{
			RequesterID: u2.ID,
			AddresseeID: u1.ID,
			Status:      models.FriendshipStatusPending,
		}
		assert.NoError(t, repo.Create(ctx, friendship))
	})
}
