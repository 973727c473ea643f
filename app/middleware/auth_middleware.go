package middleware

import (
	"context"
	"log"
	"time"

	"github.com/shrtyhq/shrty/app/dto"
	businessflow "github.com/shrtyhq/shrty/business_flow"
	"github.com/shrtyhq/shrty/config"
	"github.com/shrtyhq/shrty/models"

	"github.com/gofiber/fiber/v3"
)

const sessionLocalsKey = "session"

// RequireSession authenticates requests by their session key, taken from
// the configured header or, failing that, the session cookie. The session
// and its user land in locals for handlers to pick up.
func RequireSession(auth businessflow.AuthFlow, cfg config.SecurityConfig, logger *log.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		key := c.Get(cfg.SessionKeyHeader)
		if key == "" {
			key = c.Cookies(cfg.SessionCookie)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		session, err := auth.GetSession(ctx, key)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Authentication required",
				Error:   &dto.ErrorDetail{Code: businessflow.ErrCodeSessionNotFound},
			})
		}

		c.Locals(sessionLocalsKey, session)
		return c.Next()
	}
}

// SessionFromLocals returns the session stored by RequireSession
func SessionFromLocals(c fiber.Ctx) *models.Session {
	session, _ := c.Locals(sessionLocalsKey).(*models.Session)
	return session
}
