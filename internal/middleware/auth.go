package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/localnerve/featherdb/internal/config"
	"github.com/localnerve/featherdb/internal/session"
	"github.com/localnerve/featherdb/internal/types"
)

// RequireSession validates the Authorizer session cookie and stamps
// c.Locals("userID")/c.Locals("isSuperUser") for handlers and the request
// pipeline to read, the way the teacher's AuthAdmin/AuthUser stamp
// c.Locals("user").
func RequireSession(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cookie := c.Cookies(cfg.SessionCookieName)
		if cookie == "" {
			return &types.CustomError{
				Code:    fiber.StatusForbidden,
				Message: "Authorizer cookie \"" + cfg.SessionCookieName + "\" not found",
				Type:    "data.authorization.session",
			}
		}

		sess, err := session.Validate(cookie, cfg.SuperUserRoles)
		if err != nil {
			return &types.CustomError{
				Code:    fiber.StatusForbidden,
				Message: err.Error(),
				Type:    "data.authorization.session",
			}
		}

		c.Locals("userID", sess.User.ID)
		c.Locals("isSuperUser", sess.IsSuperUser)
		return c.Next()
	}
}
