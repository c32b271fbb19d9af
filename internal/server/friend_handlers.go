package server

import (
	"github.com/gofiber/fiber/v2"

	"chatter/internal/models"
)

// SendFriendRequest creates a pending friend request toward :userId.
func (s *Server) SendFriendRequest(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	targetID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}

	friendship, err := s.friendService.SendFriendRequest(c.UserContext(), userID, targetID)
	if err != nil {
		return models.RespondWithError(c, err)
	}

	requester, _ := s.userService.GetByID(c.UserContext(), userID)
	s.publishUserEvent(c.UserContext(), targetID, evNewFriendRequest, fiber.Map{
		"request":   friendshipPayload(friendship),
		"requester": userSummary(requester),
	})

	return c.Status(fiber.StatusCreated).JSON(friendshipPayload(friendship))
}

// AcceptFriendRequest accepts a pending request addressed to the caller.
func (s *Server) AcceptFriendRequest(c *fiber.Ctx) error {
	return s.respondToFriendRequest(c, true)
}

// RejectFriendRequest rejects a pending request addressed to the caller.
func (s *Server) RejectFriendRequest(c *fiber.Ctx) error {
	return s.respondToFriendRequest(c, false)
}

func (s *Server) respondToFriendRequest(c *fiber.Ctx, accept bool) error {
	userID := c.Locals("userID").(uint)
	requestID, err := parseID(c, "requestId")
	if err != nil {
		return nil
	}

	friendship, err := s.friendService.RespondToRequest(c.UserContext(), userID, requestID, accept)
	if err != nil {
		return models.RespondWithError(c, err)
	}

	// Tell the original requester what happened.
	eventType := evFriendRequestRejected
	if accept {
		eventType = evFriendRequestAccepted
	}
	responder, _ := s.userService.GetByID(c.UserContext(), userID)
	s.publishUserEvent(c.UserContext(), friendship.RequesterID, eventType, fiber.Map{
		"request":   friendshipPayload(friendship),
		"responder": userSummary(responder),
	})

	return c.JSON(friendshipPayload(friendship))
}

// GetFriends lists the caller's accepted friends.
func (s *Server) GetFriends(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	friends, err := s.friendService.GetFriends(c.UserContext(), userID)
	if err != nil {
		return models.RespondWithError(c, err)
	}

	results := make([]fiber.Map, 0, len(friends))
	for i := range friends {
		summary := userSummary(&friends[i])
		summary["online"] = s.hub.IsOnline(friends[i].ID)
		results = append(results, summary)
	}
	return c.JSON(fiber.Map{"friends": results})
}

// GetPendingRequests lists requests waiting for the caller's response.
func (s *Server) GetPendingRequests(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	requests, err := s.friendService.GetPendingRequests(c.UserContext(), userID)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(fiber.Map{"requests": friendshipsPayload(requests)})
}

// GetSentRequests lists pending requests the caller has sent.
func (s *Server) GetSentRequests(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	requests, err := s.friendService.GetSentRequests(c.UserContext(), userID)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(fiber.Map{"requests": friendshipsPayload(requests)})
}

// GetFriendshipStatus describes the relationship between the caller and
// :userId.
func (s *Server) GetFriendshipStatus(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	targetID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}

	status, err := s.friendService.GetFriendshipStatus(c.UserContext(), userID, targetID)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(status)
}

// RemoveFriend severs an accepted friendship with :userId.
func (s *Server) RemoveFriend(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	targetID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}

	if _, err := s.friendService.Unfriend(c.UserContext(), userID, targetID); err != nil {
		return models.RespondWithError(c, err)
	}

	remover, _ := s.userService.GetByID(c.UserContext(), userID)
	s.publishUserEvent(c.UserContext(), targetID, evUnfriendReceived, fiber.Map{
		"userId": userID,
		"user":   userSummary(remover),
	})

	return c.JSON(fiber.Map{"message": "friend removed"})
}

func friendshipsPayload(friendships []models.Friendship) []fiber.Map {
	out := make([]fiber.Map, 0, len(friendships))
	for i := range friendships {
		out = append(out, friendshipPayload(&friendships[i]))
	}
	return out
}
