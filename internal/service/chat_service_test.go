package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatter/internal/models"
	"chatter/internal/repository"
	"chatter/internal/testutil"
)

type chatFixture struct {
	chat   *ChatService
	friend *FriendService
	users  []*models.User
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	db := testutil.OpenTestDB(t)

	users := []*models.User{
		{Name: "Alice", Phone: "+15552000001", Password: "x"},
		{Name: "Bob", Phone: "+15552000002", Password: "x"},
		{Name: "Cara", Phone: "+15552000003", Password: "x"},
		{Name: "Dan", Phone: "+15552000004", Password: "x"},
	}
	for _, u := range users {
		require.NoError(t, db.Create(u).Error)
	}

	chatRepo := repository.NewChatRepository(db)
	friendRepo := repository.NewFriendRepository(db)
	userRepo := repository.NewUserRepository(db)

	return &chatFixture{
		chat:   NewChatService(chatRepo, friendRepo, userRepo),
		friend: NewFriendService(friendRepo, userRepo),
		users:  users,
	}
}

func (f *chatFixture) befriend(t *testing.T, a, b *models.User) {
	t.Helper()
	ctx := context.Background()
	req, err := f.friend.SendFriendRequest(ctx, a.ID, b.ID)
	require.NoError(t, err)
	_, err = f.friend.RespondToRequest(ctx, b.ID, req.ID, true)
	require.NoError(t, err)
}

func TestSendMessageRequiresFriendship(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	alice, bob := f.users[0], f.users[1]

	t.Run("not friends fails", func(t *testing.T) {
		_, err := f.chat.SendMessage(ctx, alice.ID, bob.ID, MessageContent{Text: "hi"})
		assertCode(t, err, models.CodeNotFriends)
	})

	t.Run("self conversation needs no friendship", func(t *testing.T) {
		msg, err := f.chat.SendMessage(ctx, alice.ID, alice.ID, MessageContent{Text: "note to self"})
		require.NoError(t, err)
		assert.Equal(t, alice.ID, msg.SenderID)
	})

	t.Run("succeeds once friends and is visible to the receiver", func(t *testing.T) {
		f.befriend(t, alice, bob)

		msg, err := f.chat.SendMessage(ctx, alice.ID, bob.ID, MessageContent{Text: "hello"})
		require.NoError(t, err)
		assert.Equal(t, uint64(1), msg.Seq)

		history, err := f.chat.ListMessages(ctx, msg.ConversationID, bob.ID, 0, 50)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, "hello", history[0].Text)
	})

	t.Run("empty content rejected", func(t *testing.T) {
		_, err := f.chat.SendMessage(ctx, alice.ID, bob.ID, MessageContent{Text: "   "})
		assertCode(t, err, models.CodeValidationError)
	})
}

func TestGetOrCreateDirectConversationIdempotent(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	alice, bob := f.users[0], f.users[1]

	c1, err := f.chat.GetOrCreateDirectConversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	c2, err := f.chat.GetOrCreateDirectConversation(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID)

	var wg sync.WaitGroup
	ids := make([]uint, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := f.chat.GetOrCreateDirectConversation(ctx, alice.ID, f.users[2].ID)
			if err == nil {
				ids[i] = c.ID
			}
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestMessageOrdering(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	alice, bob := f.users[0], f.users[1]
	f.befriend(t, alice, bob)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			f.chat.SendMessage(ctx, alice.ID, bob.ID, MessageContent{Text: fmt.Sprintf("a%d", i)})
		}(i)
		go func(i int) {
			defer wg.Done()
			f.chat.SendMessage(ctx, bob.ID, alice.ID, MessageContent{Text: fmt.Sprintf("b%d", i)})
		}(i)
	}
	wg.Wait()

	conv, err := f.chat.GetOrCreateDirectConversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	history, err := f.chat.ListMessages(ctx, conv.ID, alice.ID, 0, 50)
	require.NoError(t, err)
	require.Len(t, history, 10)
	for i, msg := range history {
		assert.Equal(t, uint64(i+1), msg.Seq, "sequence numbers must be dense and ascending")
	}
}

func TestListMessagesRequiresMembership(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	alice, bob, cara := f.users[0], f.users[1], f.users[2]
	f.befriend(t, alice, bob)

	msg, err := f.chat.SendMessage(ctx, alice.ID, bob.ID, MessageContent{Text: "private"})
	require.NoError(t, err)

	_, err = f.chat.ListMessages(ctx, msg.ConversationID, cara.ID, 0, 50)
	assertCode(t, err, models.CodeNotAuthorized)
}

func TestRecallMessage(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	alice, bob := f.users[0], f.users[1]
	f.befriend(t, alice, bob)

	msg, err := f.chat.SendMessage(ctx, alice.ID, bob.ID, MessageContent{Text: "oops"})
	require.NoError(t, err)

	t.Run("only the sender may recall", func(t *testing.T) {
		_, err := f.chat.RecallMessage(ctx, msg.ID, bob.ID)
		assertCode(t, err, models.CodeNotAuthorized)
	})

	t.Run("recall empties content for both sides", func(t *testing.T) {
		recalled, err := f.chat.RecallMessage(ctx, msg.ID, alice.ID)
		require.NoError(t, err)
		assert.True(t, recalled.IsRecalled)
		assert.Empty(t, recalled.Text)

		for _, viewer := range []uint{alice.ID, bob.ID} {
			history, err := f.chat.ListMessages(ctx, msg.ConversationID, viewer, 0, 50)
			require.NoError(t, err)
			require.Len(t, history, 1)
			assert.True(t, history[0].IsRecalled)
			assert.Empty(t, history[0].Text)
		}
	})

	t.Run("recall is idempotent", func(t *testing.T) {
		again, err := f.chat.RecallMessage(ctx, msg.ID, alice.ID)
		require.NoError(t, err)
		assert.True(t, again.IsRecalled)
		assert.Empty(t, again.Text)
	})

	t.Run("recalled message accepts no reactions", func(t *testing.T) {
		_, err := f.chat.ReactToMessage(ctx, msg.ID, bob.ID, "👍")
		assertCode(t, err, models.CodeNotFound)
	})

	t.Run("recalled message cannot be forwarded", func(t *testing.T) {
		_, err := f.chat.ForwardMessage(ctx, msg.ID, alice.ID, bob.ID)
		assertCode(t, err, models.CodeNotFound)
	})
}

func TestDeleteMessage(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	alice, bob := f.users[0], f.users[1]
	f.befriend(t, alice, bob)

	t.Run("for me hides only the actor's view", func(t *testing.T) {
		msg, err := f.chat.SendMessage(ctx, alice.ID, bob.ID, MessageContent{Text: "keep for bob"})
		require.NoError(t, err)

		_, err = f.chat.DeleteMessage(ctx, msg.ID, alice.ID, false)
		require.NoError(t, err)

		forAlice, err := f.chat.ListMessages(ctx, msg.ConversationID, alice.ID, 0, 50)
		require.NoError(t, err)
		for _, m := range forAlice {
			assert.NotEqual(t, msg.ID, m.ID)
		}

		forBob, err := f.chat.ListMessages(ctx, msg.ConversationID, bob.ID, 0, 50)
		require.NoError(t, err)
		found := false
		for _, m := range forBob {
			if m.ID == msg.ID {
				found = true
				assert.Equal(t, "keep for bob", m.Text)
			}
		}
		assert.True(t, found, "receiver still sees the message")
	})

	t.Run("for everyone requires the sender", func(t *testing.T) {
		msg, err := f.chat.SendMessage(ctx, alice.ID, bob.ID, MessageContent{Text: "gone"})
		require.NoError(t, err)

		_, err = f.chat.DeleteMessage(ctx, msg.ID, bob.ID, true)
		assertCode(t, err, models.CodeNotAuthorized)

		_, err = f.chat.DeleteMessage(ctx, msg.ID, alice.ID, true)
		require.NoError(t, err)

		for _, viewer := range []uint{alice.ID, bob.ID} {
			history, err := f.chat.ListMessages(ctx, msg.ConversationID, viewer, 0, 50)
			require.NoError(t, err)
			for _, m := range history {
				assert.NotEqual(t, msg.ID, m.ID)
			}
		}
	})

	t.Run("tombstoned message resolves as not found", func(t *testing.T) {
		msg, err := f.chat.SendMessage(ctx, alice.ID, bob.ID, MessageContent{Text: "bye"})
		require.NoError(t, err)
		_, err = f.chat.DeleteMessage(ctx, msg.ID, alice.ID, true)
		require.NoError(t, err)

		_, err = f.chat.DeleteMessage(ctx, msg.ID, alice.ID, true)
		assertCode(t, err, models.CodeNotFound)
		_, err = f.chat.RecallMessage(ctx, msg.ID, alice.ID)
		assertCode(t, err, models.CodeNotFound)
	})

	t.Run("non-participant cannot delete", func(t *testing.T) {
		msg, err := f.chat.SendMessage(ctx, alice.ID, bob.ID, MessageContent{Text: "ours"})
		require.NoError(t, err)

		_, err = f.chat.DeleteMessage(ctx, msg.ID, f.users[2].ID, false)
		assertCode(t, err, models.CodeNotAuthorized)
	})
}

func TestForwardMessage(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	alice, bob, cara := f.users[0], f.users[1], f.users[2]
	f.befriend(t, alice, bob)

	src, err := f.chat.SendMessage(ctx, alice.ID, bob.ID, MessageContent{Text: "hi"})
	require.NoError(t, err)

	t.Run("requires friendship with the target", func(t *testing.T) {
		_, err := f.chat.ForwardMessage(ctx, src.ID, alice.ID, cara.ID)
		assertCode(t, err, models.CodeNotFriends)
	})

	t.Run("copies current content into a new message", func(t *testing.T) {
		f.befriend(t, alice, cara)

		fwd, err := f.chat.ForwardMessage(ctx, src.ID, alice.ID, cara.ID)
		require.NoError(t, err)
		assert.Equal(t, "hi", fwd.Text)
		assert.Equal(t, alice.ID, fwd.SenderID)
		assert.NotEqual(t, src.ConversationID, fwd.ConversationID)

		// Source is untouched.
		orig, err := f.chat.ListMessages(ctx, src.ConversationID, bob.ID, 0, 50)
		require.NoError(t, err)
		require.Len(t, orig, 1)
		assert.Equal(t, "hi", orig[0].Text)
	})

	t.Run("missing source fails", func(t *testing.T) {
		_, err := f.chat.ForwardMessage(ctx, 9999, alice.ID, bob.ID)
		assertCode(t, err, models.CodeNotFound)
	})

	t.Run("only participants may forward", func(t *testing.T) {
		_, err := f.chat.ForwardMessage(ctx, src.ID, cara.ID, alice.ID)
		assertCode(t, err, models.CodeNotAuthorized)
	})
}

func TestReactToMessage(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	alice, bob := f.users[0], f.users[1]
	f.befriend(t, alice, bob)

	msg, err := f.chat.SendMessage(ctx, alice.ID, bob.ID, MessageContent{Text: "react to me"})
	require.NoError(t, err)

	t.Run("same emoji twice toggles off", func(t *testing.T) {
		set, err := f.chat.ReactToMessage(ctx, msg.ID, bob.ID, "❤️")
		require.NoError(t, err)
		require.Len(t, set, 1)

		set, err = f.chat.ReactToMessage(ctx, msg.ID, bob.ID, "❤️")
		require.NoError(t, err)
		assert.Empty(t, set)
	})

	t.Run("different emoji replaces", func(t *testing.T) {
		_, err := f.chat.ReactToMessage(ctx, msg.ID, bob.ID, "❤️")
		require.NoError(t, err)

		set, err := f.chat.ReactToMessage(ctx, msg.ID, bob.ID, "😂")
		require.NoError(t, err)
		require.Len(t, set, 1)
		assert.Equal(t, "😂", set[0].Emoji)
	})

	t.Run("each participant holds an independent reaction", func(t *testing.T) {
		set, err := f.chat.ReactToMessage(ctx, msg.ID, alice.ID, "👍")
		require.NoError(t, err)
		assert.Len(t, set, 2)
	})

	t.Run("non-participant cannot react", func(t *testing.T) {
		_, err := f.chat.ReactToMessage(ctx, msg.ID, f.users[2].ID, "👍")
		assertCode(t, err, models.CodeNotAuthorized)
	})

	t.Run("empty emoji rejected", func(t *testing.T) {
		_, err := f.chat.ReactToMessage(ctx, msg.ID, bob.ID, " ")
		assertCode(t, err, models.CodeValidationError)
	})
}

func TestSidebarAndSeen(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	alice, bob := f.users[0], f.users[1]
	f.befriend(t, alice, bob)

	for i := 0; i < 3; i++ {
		_, err := f.chat.SendMessage(ctx, alice.ID, bob.ID, MessageContent{Text: fmt.Sprintf("m%d", i)})
		require.NoError(t, err)
	}

	t.Run("sidebar shows last message and unseen count", func(t *testing.T) {
		rows, err := f.chat.ListConversations(ctx, bob.ID)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, 3, rows[0].UnseenCount)
		require.NotNil(t, rows[0].LastMessage)
		assert.Equal(t, "m2", rows[0].LastMessage.Text)
	})

	t.Run("mark seen resets the count and is idempotent", func(t *testing.T) {
		conv, err := f.chat.MarkSeen(ctx, bob.ID, alice.ID)
		require.NoError(t, err)
		require.NotNil(t, conv)

		_, err = f.chat.MarkSeen(ctx, bob.ID, alice.ID)
		require.NoError(t, err)

		rows, err := f.chat.ListConversations(ctx, bob.ID)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, 0, rows[0].UnseenCount)
	})

	t.Run("mark seen with no conversation is a no-op", func(t *testing.T) {
		conv, err := f.chat.MarkSeen(ctx, bob.ID, f.users[3].ID)
		require.NoError(t, err)
		assert.Nil(t, conv)
	})
}

func TestGroups(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	alice, bob, cara, dan := f.users[0], f.users[1], f.users[2], f.users[3]

	t.Run("name required", func(t *testing.T) {
		_, err := f.chat.CreateGroup(ctx, alice.ID, "  ", []uint{bob.ID, cara.ID})
		assertCode(t, err, models.CodeValidationError)
	})

	t.Run("needs at least two other members", func(t *testing.T) {
		_, err := f.chat.CreateGroup(ctx, alice.ID, "tiny", []uint{bob.ID})
		assertCode(t, err, models.CodeValidationError)

		// The creator does not count toward the minimum.
		_, err = f.chat.CreateGroup(ctx, alice.ID, "tiny", []uint{alice.ID, bob.ID})
		assertCode(t, err, models.CodeValidationError)
	})

	t.Run("create and list", func(t *testing.T) {
		group, err := f.chat.CreateGroup(ctx, alice.ID, "weekend trip", []uint{bob.ID, cara.ID})
		require.NoError(t, err)
		assert.True(t, group.IsGroup)
		assert.Len(t, group.Participants, 3)

		groups, err := f.chat.GetUserGroups(ctx, bob.ID)
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Equal(t, "weekend trip", groups[0].Name)

		groups, err = f.chat.GetUserGroups(ctx, dan.ID)
		require.NoError(t, err)
		assert.Empty(t, groups)
	})

	t.Run("group messaging gated on membership not friendship", func(t *testing.T) {
		group, err := f.chat.CreateGroup(ctx, alice.ID, "chatty", []uint{bob.ID, cara.ID})
		require.NoError(t, err)

		msg, err := f.chat.SendGroupMessage(ctx, cara.ID, group.ID, MessageContent{Text: "hi all"})
		require.NoError(t, err)
		assert.Equal(t, uint64(1), msg.Seq)

		_, err = f.chat.SendGroupMessage(ctx, dan.ID, group.ID, MessageContent{Text: "let me in"})
		assertCode(t, err, models.CodeNotAuthorized)
	})

	t.Run("unknown members rejected", func(t *testing.T) {
		_, err := f.chat.CreateGroup(ctx, alice.ID, "ghosts", []uint{9998, 9999})
		assertCode(t, err, models.CodeNotFound)
	})
}
