package server

import (
	"context"
	"encoding/json"
	"log"

	"github.com/gofiber/fiber/v2"

	"chatter/internal/models"
	"chatter/internal/service"
)

// Client -> server event types carried over the websocket channel.
const (
	evSendFriendRequest     = "send-friend-request"
	evFriendRequestResponse = "friend-request-response"
	evUnfriend              = "unfriend"
	evGetFriends            = "get-friends"
	evNewMessage            = "new-message"
	evMessagePage           = "message-page"
	evSeen                  = "seen"
	evDeleteMessage         = "delete-message"
	evRecallMessage         = "recall-message"
	evReactToMessage        = "react-to-message"
	evForwardMessage        = "forward-message"
	evCreateGroup           = "create-group"
	evGetUserGroups         = "get-user-groups"
	evNewGroupMessage       = "new-group-message"
	evSidebar               = "sidebar"
)

// Server -> client event types.
const (
	evFriendRequestSent     = "friend-request-sent"
	evNewFriendRequest      = "new-friend-request"
	evFriendRequestAccepted = "friend-request-accepted"
	evFriendRequestRejected = "friend-request-rejected"
	evUnfriendSuccess       = "unfriend-success"
	evUnfriendReceived      = "unfriend-received"
	evFriends               = "friends"
	evSeenUpdated           = "seen-updated"
	evMessageUpdated        = "message-updated"
	evDeleteMessageSuccess  = "delete-message-success"
	evDeleteMessageError    = "delete-message-error"
	evRecallMessageSuccess  = "recall-message-success"
	evRecallMessageError    = "recall-message-error"
	evReactionUpdated       = "reaction-updated"
	evReactionError         = "reaction-error"
	evForwardMessageSuccess = "forward-message-success"
	evForwardMessageError   = "forward-message-error"
	evGroupCreated          = "group-created"
	evNewGroup              = "new-group"
	evUserGroups            = "user-groups"
	evUserOnline            = "user-online"
	evUserOffline           = "user-offline"
	evUserUpdated           = "user-updated"
	evError                 = "error"
)

// wsEvent is the envelope every websocket frame uses in both directions.
type wsEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// marshalEvent renders an outbound envelope. Marshal failures are logged and
// produce an empty string the callers skip.
func marshalEvent(eventType string, payload any) string {
	data, err := json.Marshal(fiber.Map{"type": eventType, "payload": payload})
	if err != nil {
		log.Printf("failed to marshal %s event: %v", eventType, err)
		return ""
	}
	return string(data)
}

// publishUserEvent delivers an event to every connection of a user, locally
// via the hub and cross-instance via Redis. Delivery is best effort.
func (s *Server) publishUserEvent(ctx context.Context, userID uint, eventType string, payload any) {
	msg := marshalEvent(eventType, payload)
	if msg == "" {
		return
	}
	s.hub.Broadcast(userID, msg)
	if s.notifier != nil {
		if err := s.notifier.PublishUser(ctx, userID, msg); err != nil {
			log.Printf("failed to publish %s to user %d: %v", eventType, userID, err)
		}
	}
}

// publishConversationEvent fans an event out to every member of a
// conversation except those listed in skip.
func (s *Server) publishConversationEvent(
	ctx context.Context, convID uint, eventType string, payload any, skip ...uint,
) {
	memberIDs, err := s.chatService.MemberIDs(ctx, convID)
	if err != nil {
		log.Printf("failed to load members of conversation %d: %v", convID, err)
		return
	}
	skipped := make(map[uint]struct{}, len(skip))
	for _, id := range skip {
		skipped[id] = struct{}{}
	}
	for _, memberID := range memberIDs {
		if _, ok := skipped[memberID]; ok {
			continue
		}
		s.publishUserEvent(ctx, memberID, eventType, payload)
	}
}

func (s *Server) onUserOnline(userID uint) {
	s.publishPresence(userID, evUserOnline)
}

func (s *Server) onUserOffline(userID uint) {
	s.publishPresence(userID, evUserOffline)
}

// publishPresence notifies a user's friends about an online/offline
// transition.
func (s *Server) publishPresence(userID uint, eventType string) {
	ctx := context.Background()
	friends, err := s.friendService.GetFriends(ctx, userID)
	if err != nil {
		log.Printf("failed to load friends for presence event: %v", err)
		return
	}
	payload := fiber.Map{"userId": userID}
	for i := range friends {
		s.publishUserEvent(ctx, friends[i].ID, eventType, payload)
	}
}

// userSummary is the public projection of a user embedded in payloads.
func userSummary(u *models.User) fiber.Map {
	if u == nil {
		return nil
	}
	return fiber.Map{
		"id":     u.ID,
		"name":   u.Name,
		"phone":  u.Phone,
		"avatar": u.Avatar,
	}
}

// messagePayload is the wire shape of a message in events and REST replies.
func messagePayload(m *models.Message) fiber.Map {
	if m == nil {
		return nil
	}
	p := fiber.Map{
		"id":             m.ID,
		"conversationId": m.ConversationID,
		"seq":            m.Seq,
		"senderId":       m.SenderID,
		"text":           m.Text,
		"imageUrl":       m.ImageURL,
		"videoUrl":       m.VideoURL,
		"fileUrl":        m.FileURL,
		"fileName":       m.FileName,
		"isRecalled":     m.IsRecalled,
		"deletedForAll":  m.DeletedForAll,
		"createdAt":      m.CreatedAt,
	}
	if m.ReplyToID != nil {
		p["replyToId"] = *m.ReplyToID
	}
	if m.Sender != nil {
		p["sender"] = userSummary(m.Sender)
	}
	if len(m.Reactions) > 0 {
		p["reactions"] = reactionsPayload(m.Reactions)
	}
	return p
}

func messagesPayload(msgs []*models.Message) []fiber.Map {
	out := make([]fiber.Map, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messagePayload(m))
	}
	return out
}

func reactionsPayload(reactions []models.MessageReaction) []fiber.Map {
	out := make([]fiber.Map, 0, len(reactions))
	for i := range reactions {
		r := &reactions[i]
		out = append(out, fiber.Map{
			"messageId": r.MessageID,
			"userId":    r.UserID,
			"emoji":     r.Emoji,
		})
	}
	return out
}

func conversationPayload(conv *models.Conversation) fiber.Map {
	if conv == nil {
		return nil
	}
	members := make([]fiber.Map, 0, len(conv.Participants))
	for i := range conv.Participants {
		members = append(members, userSummary(&conv.Participants[i]))
	}
	return fiber.Map{
		"id":        conv.ID,
		"isGroup":   conv.IsGroup,
		"name":      conv.Name,
		"avatar":    conv.Avatar,
		"createdBy": conv.CreatedBy,
		"members":   members,
		"updatedAt": conv.UpdatedAt,
	}
}

func sidebarPayload(summaries []service.ConversationSummary) []fiber.Map {
	out := make([]fiber.Map, 0, len(summaries))
	for i := range summaries {
		entry := fiber.Map{
			"conversation": conversationPayload(summaries[i].Conversation),
			"unseenCount":  summaries[i].UnseenCount,
		}
		if summaries[i].LastMessage != nil {
			entry["lastMessage"] = messagePayload(summaries[i].LastMessage)
		}
		out = append(out, entry)
	}
	return out
}

func friendshipPayload(f *models.Friendship) fiber.Map {
	if f == nil {
		return nil
	}
	p := fiber.Map{
		"id":          f.ID,
		"requesterId": f.RequesterID,
		"addresseeId": f.AddresseeID,
		"status":      f.Status,
		"createdAt":   f.CreatedAt,
	}
	if f.Requester.ID != 0 {
		p["requester"] = userSummary(&f.Requester)
	}
	if f.Addressee.ID != 0 {
		p["addressee"] = userSummary(&f.Addressee)
	}
	return p
}
