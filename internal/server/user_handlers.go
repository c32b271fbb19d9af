package server

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"chatter/internal/models"
)

// GetMyProfile returns the authenticated user's own profile.
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	user, err := s.userService.GetByID(c.UserContext(), userID)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(userSummary(user))
}

type updateProfileRequest struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// UpdateMyProfile updates name and/or avatar. Empty fields are unchanged.
func (s *Server) UpdateMyProfile(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var req updateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c,
			models.NewValidationError("invalid request body"))
	}

	user, err := s.userService.UpdateProfile(c.UserContext(), userID, req.Name, req.Avatar)
	if err != nil {
		return models.RespondWithError(c, err)
	}

	// Friends see profile changes without a refetch.
	go func() {
		ctx := context.Background()
		summary := userSummary(user)
		friends, ferr := s.friendService.GetFriends(ctx, user.ID)
		if ferr != nil {
			return
		}
		for i := range friends {
			s.publishUserEvent(ctx, friends[i].ID, evUserUpdated, summary)
		}
	}()

	return c.JSON(userSummary(user))
}

// SearchUsers finds users by name or phone fragment.
func (s *Server) SearchUsers(c *fiber.Ctx) error {
	query := c.Query("q")
	limit, _ := parsePagination(c)

	users, err := s.userService.Search(c.UserContext(), query, limit)
	if err != nil {
		return models.RespondWithError(c, err)
	}

	results := make([]fiber.Map, 0, len(users))
	for i := range users {
		results = append(results, userSummary(&users[i]))
	}
	return c.JSON(fiber.Map{"users": results})
}

// GetUserProfile returns another user's public profile.
func (s *Server) GetUserProfile(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	user, err := s.userService.GetByID(c.UserContext(), id)
	if err != nil {
		return models.RespondWithError(c, err)
	}

	summary := userSummary(user)
	summary["online"] = s.hub.IsOnline(user.ID)
	return c.JSON(summary)
}
