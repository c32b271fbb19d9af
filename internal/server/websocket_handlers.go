package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"chatter/internal/models"
	"chatter/internal/notifications"
	"chatter/internal/observability"
	"chatter/internal/service"
)

// WebsocketHandler upgrades the connection and runs the event channel for an
// authenticated user. Every inbound frame is {"type": ..., "payload": ...};
// unknown types get an error frame back.
func (s *Server) WebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, ok := conn.Locals("userID").(uint)
		if !ok || userID == 0 {
			_ = conn.Close()
			return
		}

		client, err := s.hub.Register(userID, conn)
		if err != nil {
			log.Printf("websocket register failed for user %d: %v", userID, err)
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "connection limit reached"))
			_ = conn.Close()
			return
		}

		client.IncomingHandler = s.handleWSEvent

		go client.WritePump()
		client.ReadPump()
	})
}

// sendToClient queues an event on a single connection, bypassing Redis.
func (s *Server) sendToClient(client *notifications.Client, eventType string, payload any) {
	msg := marshalEvent(eventType, payload)
	if msg == "" {
		return
	}
	client.TrySend([]byte(msg))
}

func (s *Server) sendErrorToClient(client *notifications.Client, eventType string, err error) {
	var appErr *models.AppError
	msg := "something went wrong"
	code := models.CodeInternalError
	if errors.As(err, &appErr) && appErr.Code != models.CodeInternalError {
		msg = appErr.Message
		code = appErr.Code
	}
	s.sendToClient(client, eventType, fiber.Map{"error": msg, "code": code})
}

func (s *Server) handleWSEvent(client *notifications.Client, raw []byte) {
	var event wsEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		s.sendToClient(client, evError, fiber.Map{"error": "malformed event"})
		return
	}

	observability.WebSocketEventsTotal.WithLabelValues(event.Type).Inc()
	ctx := context.Background()

	switch event.Type {
	case evSendFriendRequest:
		s.wsSendFriendRequest(ctx, client, event.Payload)
	case evFriendRequestResponse:
		s.wsFriendRequestResponse(ctx, client, event.Payload)
	case evUnfriend:
		s.wsUnfriend(ctx, client, event.Payload)
	case evGetFriends:
		s.wsGetFriends(ctx, client)
	case evNewMessage:
		s.wsNewMessage(ctx, client, event.Payload)
	case evNewGroupMessage:
		s.wsNewGroupMessage(ctx, client, event.Payload)
	case evMessagePage:
		s.wsMessagePage(ctx, client, event.Payload)
	case evSidebar:
		s.wsSidebar(ctx, client)
	case evSeen:
		s.wsSeen(ctx, client, event.Payload)
	case evDeleteMessage:
		s.wsDeleteMessage(ctx, client, event.Payload)
	case evRecallMessage:
		s.wsRecallMessage(ctx, client, event.Payload)
	case evReactToMessage:
		s.wsReactToMessage(ctx, client, event.Payload)
	case evForwardMessage:
		s.wsForwardMessage(ctx, client, event.Payload)
	case evCreateGroup:
		s.wsCreateGroup(ctx, client, event.Payload)
	case evGetUserGroups:
		s.wsGetUserGroups(ctx, client)
	default:
		s.sendToClient(client, evError, fiber.Map{
			"error": "unknown event type: " + event.Type,
		})
	}
}

func (s *Server) wsSendFriendRequest(ctx context.Context, client *notifications.Client, payload json.RawMessage) {
	var req struct {
		UserID uint `json:"userId"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.UserID == 0 {
		s.sendToClient(client, evError, fiber.Map{"error": "invalid send-friend-request payload"})
		return
	}

	friendship, err := s.friendService.SendFriendRequest(ctx, client.UserID, req.UserID)
	if err != nil {
		s.sendErrorToClient(client, evError, err)
		return
	}

	requester, _ := s.userService.GetByID(ctx, client.UserID)
	s.publishUserEvent(ctx, req.UserID, evNewFriendRequest, fiber.Map{
		"request":   friendshipPayload(friendship),
		"requester": userSummary(requester),
	})
	s.sendToClient(client, evFriendRequestSent, friendshipPayload(friendship))
}

func (s *Server) wsFriendRequestResponse(ctx context.Context, client *notifications.Client, payload json.RawMessage) {
	var req struct {
		RequestID uint `json:"requestId"`
		Accept    bool `json:"accept"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.RequestID == 0 {
		s.sendToClient(client, evError, fiber.Map{"error": "invalid friend-request-response payload"})
		return
	}

	friendship, err := s.friendService.RespondToRequest(ctx, client.UserID, req.RequestID, req.Accept)
	if err != nil {
		s.sendErrorToClient(client, evError, err)
		return
	}

	eventType := evFriendRequestRejected
	if req.Accept {
		eventType = evFriendRequestAccepted
	}
	responder, _ := s.userService.GetByID(ctx, client.UserID)
	s.publishUserEvent(ctx, friendship.RequesterID, eventType, fiber.Map{
		"request":   friendshipPayload(friendship),
		"responder": userSummary(responder),
	})
	// The responder's own friends list changed too.
	s.sendToClient(client, eventType, friendshipPayload(friendship))
	if req.Accept {
		s.wsGetFriends(ctx, client)
	}
}

func (s *Server) wsUnfriend(ctx context.Context, client *notifications.Client, payload json.RawMessage) {
	var req struct {
		UserID uint `json:"userId"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.UserID == 0 {
		s.sendToClient(client, evError, fiber.Map{"error": "invalid unfriend payload"})
		return
	}

	if _, err := s.friendService.Unfriend(ctx, client.UserID, req.UserID); err != nil {
		s.sendErrorToClient(client, evError, err)
		return
	}

	remover, _ := s.userService.GetByID(ctx, client.UserID)
	s.publishUserEvent(ctx, req.UserID, evUnfriendReceived, fiber.Map{
		"userId": client.UserID,
		"user":   userSummary(remover),
	})
	s.sendToClient(client, evUnfriendSuccess, fiber.Map{"userId": req.UserID})
}

func (s *Server) wsGetFriends(ctx context.Context, client *notifications.Client) {
	friends, err := s.friendService.GetFriends(ctx, client.UserID)
	if err != nil {
		s.sendErrorToClient(client, evError, err)
		return
	}

	results := make([]fiber.Map, 0, len(friends))
	for i := range friends {
		summary := userSummary(&friends[i])
		summary["online"] = s.hub.IsOnline(friends[i].ID)
		results = append(results, summary)
	}
	s.sendToClient(client, evFriends, fiber.Map{"friends": results})
}

type wsMessageContent struct {
	Text      string `json:"text"`
	ImageURL  string `json:"imageUrl"`
	VideoURL  string `json:"videoUrl"`
	FileURL   string `json:"fileUrl"`
	FileName  string `json:"fileName"`
	ReplyToID *uint  `json:"replyToId"`
}

func (c wsMessageContent) toContent() service.MessageContent {
	return service.MessageContent{
		Text:      c.Text,
		ImageURL:  c.ImageURL,
		VideoURL:  c.VideoURL,
		FileURL:   c.FileURL,
		FileName:  c.FileName,
		ReplyToID: c.ReplyToID,
	}
}

func (s *Server) wsNewMessage(ctx context.Context, client *notifications.Client, payload json.RawMessage) {
	var req struct {
		ReceiverID uint `json:"receiverId"`
		wsMessageContent
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.ReceiverID == 0 {
		s.sendToClient(client, evError, fiber.Map{"error": "invalid new-message payload"})
		return
	}

	msg, err := s.chatService.SendMessage(ctx, client.UserID, req.ReceiverID, req.toContent())
	if err != nil {
		s.sendErrorToClient(client, evError, err)
		return
	}

	// Every member gets the message, including the sender's other devices.
	s.publishConversationEvent(ctx, msg.ConversationID, evNewMessage, messagePayload(msg))
}

func (s *Server) wsNewGroupMessage(ctx context.Context, client *notifications.Client, payload json.RawMessage) {
	var req struct {
		ConversationID uint `json:"conversationId"`
		wsMessageContent
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.ConversationID == 0 {
		s.sendToClient(client, evError, fiber.Map{"error": "invalid new-group-message payload"})
		return
	}

	msg, err := s.chatService.SendGroupMessage(ctx, client.UserID, req.ConversationID, req.toContent())
	if err != nil {
		s.sendErrorToClient(client, evError, err)
		return
	}

	s.publishConversationEvent(ctx, msg.ConversationID, evNewMessage, messagePayload(msg))
}

func (s *Server) wsMessagePage(ctx context.Context, client *notifications.Client, payload json.RawMessage) {
	var req struct {
		ConversationID uint   `json:"conversationId"`
		Before         uint64 `json:"before"`
		Limit          int    `json:"limit"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.ConversationID == 0 {
		s.sendToClient(client, evError, fiber.Map{"error": "invalid message-page payload"})
		return
	}
	if req.Limit <= 0 || req.Limit > maxPageLimit {
		req.Limit = defaultPageLimit
	}

	messages, err := s.chatService.ListMessages(ctx, req.ConversationID, client.UserID, req.Before, req.Limit)
	if err != nil {
		s.sendErrorToClient(client, evError, err)
		return
	}

	s.sendToClient(client, evMessagePage, fiber.Map{
		"conversationId": req.ConversationID,
		"messages":       messagesPayload(messages),
	})
}

func (s *Server) wsSidebar(ctx context.Context, client *notifications.Client) {
	summaries, err := s.chatService.ListConversations(ctx, client.UserID)
	if err != nil {
		s.sendErrorToClient(client, evError, err)
		return
	}
	s.sendToClient(client, evSidebar, fiber.Map{"conversations": sidebarPayload(summaries)})
}

func (s *Server) wsSeen(ctx context.Context, client *notifications.Client, payload json.RawMessage) {
	var req struct {
		ConversationID uint `json:"conversationId"`
		PeerID         uint `json:"peerId"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || (req.ConversationID == 0 && req.PeerID == 0) {
		s.sendToClient(client, evError, fiber.Map{"error": "invalid seen payload"})
		return
	}

	convID := req.ConversationID
	if convID == 0 {
		conv, err := s.chatService.MarkSeen(ctx, client.UserID, req.PeerID)
		if err != nil {
			s.sendErrorToClient(client, evError, err)
			return
		}
		if conv == nil {
			// No conversation with this peer yet; nothing to mark.
			return
		}
		convID = conv.ID
	} else if err := s.chatService.MarkConversationSeen(ctx, convID, client.UserID); err != nil {
		s.sendErrorToClient(client, evError, err)
		return
	}

	// Seen reaches every member, the actor's other devices included.
	s.publishConversationEvent(ctx, convID, evSeenUpdated, fiber.Map{
		"conversationId": convID,
		"userId":         client.UserID,
	})
}

func (s *Server) wsDeleteMessage(ctx context.Context, client *notifications.Client, payload json.RawMessage) {
	var req struct {
		MessageID   uint `json:"messageId"`
		ForEveryone bool `json:"forEveryone"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.MessageID == 0 {
		s.sendToClient(client, evDeleteMessageError, fiber.Map{"error": "invalid delete-message payload"})
		return
	}

	msg, err := s.chatService.DeleteMessage(ctx, req.MessageID, client.UserID, req.ForEveryone)
	if err != nil {
		s.sendErrorToClient(client, evDeleteMessageError, err)
		return
	}

	s.sendToClient(client, evDeleteMessageSuccess, fiber.Map{
		"messageId":   req.MessageID,
		"forEveryone": req.ForEveryone,
	})

	// Delete-for-me is invisible to other members. Delete-for-everyone
	// reaches every member, the actor's other devices included.
	if req.ForEveryone {
		s.publishConversationEvent(ctx, msg.ConversationID, evMessageUpdated,
			messagePayload(msg))
	}
}

func (s *Server) wsRecallMessage(ctx context.Context, client *notifications.Client, payload json.RawMessage) {
	var req struct {
		MessageID uint `json:"messageId"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.MessageID == 0 {
		s.sendToClient(client, evRecallMessageError, fiber.Map{"error": "invalid recall-message payload"})
		return
	}

	msg, err := s.chatService.RecallMessage(ctx, req.MessageID, client.UserID)
	if err != nil {
		s.sendErrorToClient(client, evRecallMessageError, err)
		return
	}

	s.sendToClient(client, evRecallMessageSuccess, messagePayload(msg))
	// The tombstone reaches every member, the actor's other devices included.
	s.publishConversationEvent(ctx, msg.ConversationID, evMessageUpdated,
		messagePayload(msg))
}

func (s *Server) wsReactToMessage(ctx context.Context, client *notifications.Client, payload json.RawMessage) {
	var req struct {
		MessageID uint   `json:"messageId"`
		Emoji     string `json:"emoji"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.MessageID == 0 {
		s.sendToClient(client, evReactionError, fiber.Map{"error": "invalid react-to-message payload"})
		return
	}

	reactions, err := s.chatService.ReactToMessage(ctx, req.MessageID, client.UserID, req.Emoji)
	if err != nil {
		s.sendErrorToClient(client, evReactionError, err)
		return
	}

	msg, err := s.chatService.GetMessage(ctx, req.MessageID, client.UserID)
	if err != nil {
		s.sendErrorToClient(client, evReactionError, err)
		return
	}

	update := fiber.Map{
		"messageId":      req.MessageID,
		"conversationId": msg.ConversationID,
		"reactions":      reactionsPayload(reactions),
	}
	// Reactions reach everyone, including the reactor's other devices.
	s.publishConversationEvent(ctx, msg.ConversationID, evReactionUpdated, update)
}

func (s *Server) wsForwardMessage(ctx context.Context, client *notifications.Client, payload json.RawMessage) {
	var req struct {
		MessageID uint `json:"messageId"`
		ToUserID  uint `json:"toUserId"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.MessageID == 0 || req.ToUserID == 0 {
		s.sendToClient(client, evForwardMessageError, fiber.Map{"error": "invalid forward-message payload"})
		return
	}

	msg, err := s.chatService.ForwardMessage(ctx, req.MessageID, client.UserID, req.ToUserID)
	if err != nil {
		s.sendErrorToClient(client, evForwardMessageError, err)
		return
	}

	s.sendToClient(client, evForwardMessageSuccess, messagePayload(msg))
	s.publishConversationEvent(ctx, msg.ConversationID, evNewMessage,
		messagePayload(msg), client.UserID)
}

func (s *Server) wsCreateGroup(ctx context.Context, client *notifications.Client, payload json.RawMessage) {
	var req struct {
		Name      string `json:"name"`
		MemberIDs []uint `json:"memberIds"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendToClient(client, evError, fiber.Map{"error": "invalid create-group payload"})
		return
	}

	group, err := s.chatService.CreateGroup(ctx, client.UserID, req.Name, req.MemberIDs)
	if err != nil {
		s.sendErrorToClient(client, evError, err)
		return
	}

	groupJSON := conversationPayload(group)
	s.sendToClient(client, evGroupCreated, groupJSON)
	s.publishConversationEvent(ctx, group.ID, evNewGroup, groupJSON, client.UserID)
}

func (s *Server) wsGetUserGroups(ctx context.Context, client *notifications.Client) {
	groups, err := s.chatService.GetUserGroups(ctx, client.UserID)
	if err != nil {
		s.sendErrorToClient(client, evError, err)
		return
	}

	out := make([]fiber.Map, 0, len(groups))
	for _, g := range groups {
		out = append(out, conversationPayload(g))
	}
	s.sendToClient(client, evUserGroups, fiber.Map{"groups": out})
}
