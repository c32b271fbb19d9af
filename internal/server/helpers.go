package server

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"chatter/internal/models"
)

// errResponseWritten signals that a handler helper already wrote the error
// response and the caller should just return nil.
var errResponseWritten = errors.New("response already written")

// parseID extracts a positive integer route parameter or writes a 400.
func parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = models.RespondWithError(c,
			models.NewValidationError("invalid "+humanizeParam(param)))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// humanizeParam turns a camelCase route param into words ("requestId" ->
// "request id") for error messages.
func humanizeParam(param string) string {
	return strings.ToLower(strings.Join(splitCamel(param), " "))
}

func splitCamel(s string) []string {
	var words []string
	start := 0
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			words = append(words, s[start:i])
			start = i
		}
	}
	words = append(words, s[start:])
	return words
}

const (
	defaultPageLimit = 50
	maxPageLimit     = 100
)

// parsePagination reads ?limit= and ?before= query params with bounds applied.
func parsePagination(c *fiber.Ctx) (limit int, beforeSeq uint64) {
	limit = c.QueryInt("limit", defaultPageLimit)
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	before := c.QueryInt("before", 0)
	if before > 0 {
		beforeSeq = uint64(before)
	}
	return limit, beforeSeq
}
