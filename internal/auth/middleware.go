package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"crudgate/internal/crud"
)

// User is the authenticated principal attached to a request.
type User struct {
	ID    string
	Roles []string
}

func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Middleware validates the bearer token and attaches the user to the
// request. Roles are also stored on the request context so action
// interceptors can read them.
func Middleware(tokens *TokenService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return crud.UnauthorizedError("Missing auth token")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return crud.UnauthorizedError("Invalid auth header format")
		}

		claims, err := tokens.Verify(parts[1])
		if err != nil {
			return crud.UnauthorizedError("Invalid or expired token")
		}

		c.Locals("user", &User{ID: claims.Subject, Roles: claims.Roles})
		c.SetUserContext(crud.WithRoles(c.UserContext(), claims.Roles))

		return c.Next()
	}
}

// RequireRole rejects requests whose user lacks the given role.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := GetUser(c)
		if user == nil {
			return crud.UnauthorizedError("Missing auth token")
		}
		if !user.HasRole(role) {
			return crud.AccessDeniedError(role)
		}
		return c.Next()
	}
}

// GetUser extracts the authenticated user from a request.
func GetUser(c *fiber.Ctx) *User {
	user, _ := c.Locals("user").(*User)
	return user
}
