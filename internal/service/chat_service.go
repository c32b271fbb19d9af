package service

import (
	"context"
	"fmt"
	"strings"

	"chatter/internal/models"
	"chatter/internal/observability"
	"chatter/internal/repository"
)

// MessageContent carries the content fields of an outgoing message.
type MessageContent struct {
	Text      string `json:"text"`
	ImageURL  string `json:"image_url"`
	VideoURL  string `json:"video_url"`
	FileURL   string `json:"file_url"`
	FileName  string `json:"file_name"`
	ReplyToID *uint  `json:"reply_to_id,omitempty"`
}

// ConversationSummary is one sidebar row: the conversation, its most recent
// visible message and the requester's unseen count.
type ConversationSummary struct {
	Conversation *models.Conversation `json:"conversation"`
	LastMessage  *models.Message      `json:"last_message,omitempty"`
	UnseenCount  int                  `json:"unseen_count"`
}

// ChatService owns conversations, messages and reactions. Direct-conversation
// creation is serialized per user pair and message appends per conversation,
// so sequence numbers and uniqueness checks stay race free.
type ChatService struct {
	chatRepo   repository.ChatRepository
	friendRepo repository.FriendRepository
	userRepo   repository.UserRepository
	pairLocks  *keyedMutex
	convLocks  *keyedMutex
	msgLocks   *keyedMutex
}

// NewChatService returns a new ChatService.
func NewChatService(chatRepo repository.ChatRepository, friendRepo repository.FriendRepository, userRepo repository.UserRepository) *ChatService {
	return &ChatService{
		chatRepo:   chatRepo,
		friendRepo: friendRepo,
		userRepo:   userRepo,
		pairLocks:  newKeyedMutex(),
		convLocks:  newKeyedMutex(),
		msgLocks:   newKeyedMutex(),
	}
}

func convKey(id uint) string {
	return fmt.Sprintf("conv:%d", id)
}

func msgKey(id uint) string {
	return fmt.Sprintf("msg:%d", id)
}

// GetOrCreateDirectConversation returns the direct conversation between two
// users, creating it on first use. Idempotent; the pair is normalized before
// lookup so argument order does not matter. userA == userB yields the user's
// self-conversation.
func (s *ChatService) GetOrCreateDirectConversation(ctx context.Context, userA, userB uint) (*models.Conversation, error) {
	key := models.PairKey(userA, userB)

	unlock := s.pairLocks.Lock("conv:" + key)
	defer unlock()

	conv, err := s.chatRepo.GetDirectByPairKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return conv, nil
	}

	conv = &models.Conversation{CreatedBy: userA, PairKey: &key}
	if err := s.chatRepo.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	if err := s.chatRepo.AddMember(ctx, conv.ID, userA); err != nil {
		return nil, err
	}
	if userB != userA {
		if err := s.chatRepo.AddMember(ctx, conv.ID, userB); err != nil {
			return nil, err
		}
	}

	return s.chatRepo.GetConversation(ctx, conv.ID)
}

// SendMessage appends a message to the direct conversation between sender and
// receiver. The friendship gate is enforced here because clients are
// untrusted; messaging yourself needs no friendship.
func (s *ChatService) SendMessage(ctx context.Context, senderID, receiverID uint, content MessageContent) (*models.Message, error) {
	if strings.TrimSpace(content.Text) == "" && content.ImageURL == "" && content.VideoURL == "" && content.FileURL == "" {
		return nil, models.NewValidationError("message must have text or an attachment")
	}

	if senderID != receiverID {
		ok, err := s.friendRepo.AreFriends(ctx, senderID, receiverID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, models.NewNotFriendsError("you can only message your friends")
		}
	}

	conv, err := s.GetOrCreateDirectConversation(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}

	return s.appendMessage(ctx, conv, senderID, content, "direct")
}

// SendGroupMessage appends a message to a group conversation the sender
// belongs to. Group membership, not friendship, is the gate.
func (s *ChatService) SendGroupMessage(ctx context.Context, senderID, convID uint, content MessageContent) (*models.Message, error) {
	if strings.TrimSpace(content.Text) == "" && content.ImageURL == "" && content.VideoURL == "" && content.FileURL == "" {
		return nil, models.NewValidationError("message must have text or an attachment")
	}

	conv, err := s.chatRepo.GetConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.IsGroup {
		return nil, models.NewValidationError("not a group conversation")
	}

	ok, err := s.chatRepo.IsMember(ctx, convID, senderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewUnauthorizedError("you are not a member of this group")
	}

	return s.appendMessage(ctx, conv, senderID, content, "group")
}

// appendMessage assigns the next sequence number under the conversation lock
// and persists the message. The server-assigned seq, not the client clock,
// defines ordering.
func (s *ChatService) appendMessage(ctx context.Context, conv *models.Conversation, senderID uint, content MessageContent, kind string) (*models.Message, error) {
	unlock := s.convLocks.Lock(convKey(conv.ID))
	defer unlock()

	seq, err := s.chatRepo.MaxSeq(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		Seq:            seq + 1,
		SenderID:       senderID,
		Text:           content.Text,
		ImageURL:       content.ImageURL,
		VideoURL:       content.VideoURL,
		FileURL:        content.FileURL,
		FileName:       content.FileName,
		ReplyToID:      content.ReplyToID,
	}
	if err := s.chatRepo.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}

	observability.MessagesPersisted.WithLabelValues(kind).Inc()
	return s.chatRepo.GetMessageByID(ctx, msg.ID)
}

// ListMessages returns a page of a conversation's history for the requester,
// oldest first. beforeSeq of 0 means the latest page.
func (s *ChatService) ListMessages(ctx context.Context, convID, requesterID uint, beforeSeq uint64, limit int) ([]*models.Message, error) {
	ok, err := s.chatRepo.IsMember(ctx, convID, requesterID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewUnauthorizedError("you are not a participant of this conversation")
	}

	return s.chatRepo.ListMessages(ctx, convID, requesterID, beforeSeq, limit)
}

// RecallMessage tombstones a message's content for every viewer. Only the
// sender may recall. Recalling an already-recalled message is a no-op.
func (s *ChatService) RecallMessage(ctx context.Context, msgID, actingUserID uint) (*models.Message, error) {
	unlock := s.msgLocks.Lock(msgKey(msgID))
	defer unlock()

	msg, err := s.chatRepo.GetMessageByID(ctx, msgID)
	if err != nil {
		return nil, err
	}
	if msg.DeletedForAll {
		return nil, models.NewNotFoundError("message not found")
	}
	if msg.SenderID != actingUserID {
		return nil, models.NewUnauthorizedError("only the sender can recall a message")
	}
	if msg.IsRecalled {
		return msg, nil
	}

	msg.IsRecalled = true
	msg.ClearContent()
	if err := s.chatRepo.SaveMessage(ctx, msg); err != nil {
		return nil, err
	}

	return s.chatRepo.GetMessageByID(ctx, msgID)
}

// DeleteMessage removes a message either for everyone (sender only) or just
// from the acting user's view.
func (s *ChatService) DeleteMessage(ctx context.Context, msgID, actingUserID uint, forEveryone bool) (*models.Message, error) {
	unlock := s.msgLocks.Lock(msgKey(msgID))
	defer unlock()

	msg, err := s.chatRepo.GetMessageByID(ctx, msgID)
	if err != nil {
		return nil, err
	}
	if msg.DeletedForAll {
		return nil, models.NewNotFoundError("message not found")
	}

	ok, err := s.chatRepo.IsMember(ctx, msg.ConversationID, actingUserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewUnauthorizedError("you are not a participant of this conversation")
	}

	if forEveryone {
		if msg.SenderID != actingUserID {
			return nil, models.NewUnauthorizedError("only the sender can delete a message for everyone")
		}
		msg.DeletedForAll = true
		msg.ClearContent()
		if err := s.chatRepo.SaveMessage(ctx, msg); err != nil {
			return nil, err
		}
		return msg, nil
	}

	if err := s.chatRepo.HideMessage(ctx, msgID, actingUserID); err != nil {
		return nil, err
	}
	return msg, nil
}

// ForwardMessage copies the current content of a message into a new message
// from the forwarder to the target user. Recalled or tombstoned sources do
// not forward.
func (s *ChatService) ForwardMessage(ctx context.Context, msgID, fromUserID, toUserID uint) (*models.Message, error) {
	src, err := s.chatRepo.GetMessageByID(ctx, msgID)
	if err != nil {
		return nil, err
	}
	if src.IsRecalled || src.DeletedForAll {
		return nil, models.NewNotFoundError("message not found")
	}

	ok, err := s.chatRepo.IsMember(ctx, src.ConversationID, fromUserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewUnauthorizedError("you are not a participant of this conversation")
	}

	return s.SendMessage(ctx, fromUserID, toUserID, MessageContent{
		Text:     src.Text,
		ImageURL: src.ImageURL,
		VideoURL: src.VideoURL,
		FileURL:  src.FileURL,
		FileName: src.FileName,
	})
}

// ReactToMessage toggles or replaces the user's reaction. Same emoji removes
// it, a different emoji replaces it. Returns the full current reaction set so
// callers can broadcast it. Recalled messages accept no new reactions.
func (s *ChatService) ReactToMessage(ctx context.Context, msgID, userID uint, emoji string) ([]models.MessageReaction, error) {
	if strings.TrimSpace(emoji) == "" {
		return nil, models.NewValidationError("emoji is required")
	}

	unlock := s.msgLocks.Lock(msgKey(msgID))
	defer unlock()

	msg, err := s.chatRepo.GetMessageByID(ctx, msgID)
	if err != nil {
		return nil, err
	}
	if msg.IsRecalled || msg.DeletedForAll {
		return nil, models.NewNotFoundError("message not found")
	}

	ok, err := s.chatRepo.IsMember(ctx, msg.ConversationID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewUnauthorizedError("you are not a participant of this conversation")
	}

	existing, err := s.chatRepo.GetReaction(ctx, msgID, userID)
	if err != nil {
		return nil, err
	}

	switch {
	case existing != nil && existing.Emoji == emoji:
		if err := s.chatRepo.DeleteReaction(ctx, msgID, userID); err != nil {
			return nil, err
		}
	default:
		if err := s.chatRepo.UpsertReaction(ctx, &models.MessageReaction{
			MessageID: msgID,
			UserID:    userID,
			Emoji:     emoji,
		}); err != nil {
			return nil, err
		}
	}

	return s.chatRepo.GetReactions(ctx, msgID)
}

// GetMessage returns a single message, restricted to conversation members.
func (s *ChatService) GetMessage(ctx context.Context, msgID, requesterID uint) (*models.Message, error) {
	msg, err := s.chatRepo.GetMessageByID(ctx, msgID)
	if err != nil {
		return nil, err
	}
	ok, err := s.chatRepo.IsMember(ctx, msg.ConversationID, requesterID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewUnauthorizedError("you are not a participant of this conversation")
	}
	return msg, nil
}

// ListConversations returns the requester's sidebar: every conversation they
// belong to with its last visible message and unseen count, most recently
// active first.
func (s *ChatService) ListConversations(ctx context.Context, userID uint) ([]ConversationSummary, error) {
	convs, err := s.chatRepo.GetUserConversations(ctx, userID, false)
	if err != nil {
		return nil, err
	}

	summaries := make([]ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		last, err := s.chatRepo.ListMessages(ctx, conv.ID, userID, 0, 1)
		if err != nil {
			return nil, err
		}
		unseen, err := s.chatRepo.CountUnseen(ctx, conv.ID, userID)
		if err != nil {
			return nil, err
		}

		summary := ConversationSummary{Conversation: conv, UnseenCount: unseen}
		if len(last) > 0 {
			summary.LastMessage = last[len(last)-1]
		}
		conv.UnseenCount = unseen
		summaries = append(summaries, summary)
	}

	return summaries, nil
}

// MarkSeen advances the user's seen marker for the direct conversation with
// peer to now. Idempotent; marking an unknown conversation is a no-op.
func (s *ChatService) MarkSeen(ctx context.Context, userID, peerID uint) (*models.Conversation, error) {
	conv, err := s.chatRepo.GetDirectByPairKey(ctx, models.PairKey(userID, peerID))
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, nil
	}
	if err := s.chatRepo.UpdateLastSeen(ctx, conv.ID, userID); err != nil {
		return nil, err
	}
	return conv, nil
}

// MarkConversationSeen advances the seen marker for an arbitrary conversation
// the user belongs to, direct or group.
func (s *ChatService) MarkConversationSeen(ctx context.Context, convID, userID uint) error {
	ok, err := s.chatRepo.IsMember(ctx, convID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return models.NewUnauthorizedError("you are not a participant of this conversation")
	}
	return s.chatRepo.UpdateLastSeen(ctx, convID, userID)
}

// CreateGroup creates a group conversation. The creator joins automatically
// and must bring at least two other members.
func (s *ChatService) CreateGroup(ctx context.Context, creatorID uint, name string, memberIDs []uint) (*models.Conversation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.NewValidationError("group name is required")
	}

	others := make(map[uint]bool)
	for _, id := range memberIDs {
		if id != creatorID {
			others[id] = true
		}
	}
	if len(others) < 2 {
		return nil, models.NewValidationError("a group needs at least two other members")
	}

	for id := range others {
		if _, err := s.userRepo.GetByID(ctx, id); err != nil {
			return nil, err
		}
	}

	conv := &models.Conversation{IsGroup: true, Name: name, CreatedBy: creatorID}
	if err := s.chatRepo.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	if err := s.chatRepo.AddMember(ctx, conv.ID, creatorID); err != nil {
		return nil, err
	}
	for id := range others {
		if err := s.chatRepo.AddMember(ctx, conv.ID, id); err != nil {
			return nil, err
		}
	}

	return s.chatRepo.GetConversation(ctx, conv.ID)
}

// GetUserGroups returns the group conversations the user belongs to.
func (s *ChatService) GetUserGroups(ctx context.Context, userID uint) ([]*models.Conversation, error) {
	return s.chatRepo.GetUserConversations(ctx, userID, true)
}

// GetConversation returns a conversation the user participates in.
func (s *ChatService) GetConversation(ctx context.Context, convID, userID uint) (*models.Conversation, error) {
	ok, err := s.chatRepo.IsMember(ctx, convID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewUnauthorizedError("you are not a participant of this conversation")
	}
	return s.chatRepo.GetConversation(ctx, convID)
}

// MemberIDs returns the participant ids of a conversation. Used for fan-out.
func (s *ChatService) MemberIDs(ctx context.Context, convID uint) ([]uint, error) {
	return s.chatRepo.GetMemberIDs(ctx, convID)
}
