package server

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"chatter/internal/models"
)

const maxUploadBytes = 25 << 20 // 25 MiB

// GetConversations returns the caller's sidebar: every conversation with its
// last visible message and unseen count, most recently active first.
func (s *Server) GetConversations(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	summaries, err := s.chatService.ListConversations(c.UserContext(), userID)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(fiber.Map{"conversations": sidebarPayload(summaries)})
}

// GetConversation returns a single conversation the caller belongs to.
func (s *Server) GetConversation(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	convID, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	conv, err := s.chatService.GetConversation(c.UserContext(), convID, userID)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(conversationPayload(conv))
}

// GetMessages returns a page of a conversation's history, oldest first.
// ?before=<seq> pages backwards; ?limit= caps the page size.
func (s *Server) GetMessages(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	convID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	limit, beforeSeq := parsePagination(c)

	messages, err := s.chatService.ListMessages(c.UserContext(), convID, userID, beforeSeq, limit)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(fiber.Map{
		"conversationId": convID,
		"messages":       messagesPayload(messages),
	})
}

// MarkConversationSeen advances the caller's read cursor in a conversation.
func (s *Server) MarkConversationSeen(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	convID, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.chatService.MarkConversationSeen(c.UserContext(), convID, userID); err != nil {
		return models.RespondWithError(c, err)
	}

	// Seen reaches every member, the caller's own connections included.
	s.publishConversationEvent(c.UserContext(), convID, evSeenUpdated, fiber.Map{
		"conversationId": convID,
		"userId":         userID,
	})

	return c.JSON(fiber.Map{"message": "seen"})
}

type createGroupRequest struct {
	Name      string `json:"name"`
	MemberIDs []uint `json:"memberIds"`
}

// CreateGroup creates a named group conversation with the caller plus the
// listed members.
func (s *Server) CreateGroup(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var req createGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c,
			models.NewValidationError("invalid request body"))
	}

	group, err := s.chatService.CreateGroup(c.UserContext(), userID, req.Name, req.MemberIDs)
	if err != nil {
		return models.RespondWithError(c, err)
	}

	payload := conversationPayload(group)
	s.publishConversationEvent(c.UserContext(), group.ID, evNewGroup, payload, userID)

	return c.Status(fiber.StatusCreated).JSON(payload)
}

// GetGroups lists the caller's group conversations.
func (s *Server) GetGroups(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	groups, err := s.chatService.GetUserGroups(c.UserContext(), userID)
	if err != nil {
		return models.RespondWithError(c, err)
	}

	out := make([]fiber.Map, 0, len(groups))
	for _, g := range groups {
		out = append(out, conversationPayload(g))
	}
	return c.JSON(fiber.Map{"groups": out})
}

// UploadMedia stores an uploaded file and returns its durable URL. The URL is
// then sent as message content (imageUrl, videoUrl or fileUrl).
func (s *Server) UploadMedia(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return models.RespondWithError(c,
			models.NewValidationError("missing file field"))
	}
	if fileHeader.Size > maxUploadBytes {
		return models.RespondWithError(c,
			models.NewValidationError("file exceeds the 25 MB limit"))
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !allowedUploadExt(ext) {
		return models.RespondWithError(c,
			models.NewValidationError(fmt.Sprintf("file type %q not allowed", ext)))
	}

	src, err := fileHeader.Open()
	if err != nil {
		return models.RespondWithError(c, models.NewInternalError(err))
	}
	defer func() { _ = src.Close() }()

	name := uuid.New().String() + ext
	url, err := s.store.Save(c.UserContext(), name, src)
	if err != nil {
		return models.RespondWithError(c, models.NewInternalError(err))
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"url":      url,
		"fileName": fileHeader.Filename,
	})
}

func allowedUploadExt(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp",
		".mp4", ".mov", ".webm",
		".pdf", ".txt", ".zip", ".doc", ".docx", ".xls", ".xlsx":
		return true
	}
	return false
}
