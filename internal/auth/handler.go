package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"crudgate/internal/crud"
	"crudgate/internal/store"
)

// Handler serves the authentication endpoints.
type Handler struct {
	store  *store.Store
	tokens *TokenService
}

func NewHandler(s *store.Store, tokens *TokenService) *Handler {
	return &Handler{store: s, tokens: tokens}
}

// ph returns the dialect placeholder for the given 1-based index.
func (h *Handler) ph(n int) string {
	return h.store.Dialect.Placeholder(n)
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return crud.BadRequestError("", "Invalid request body")
	}
	if body.Email == "" || body.Password == "" {
		return crud.UnauthorizedError("Email and password are required")
	}

	ctx := c.Context()

	user, err := h.findUserByEmail(ctx, body.Email)
	if err != nil {
		return crud.UnauthorizedError("Invalid email or password")
	}

	if !truthy(user["active"]) {
		return crud.UnauthorizedError("Account is disabled")
	}

	passwordHash, _ := user["password_hash"].(string)
	if !CheckPassword(body.Password, passwordHash) {
		return crud.UnauthorizedError("Invalid email or password")
	}

	userID := fmt.Sprint(user["id"])
	roles := decodeRoles(user["roles"])

	pair, err := h.generateTokenPair(ctx, userID, roles)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": pair})
}

// Refresh handles POST /api/auth/refresh. Used tokens are rotated out.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return crud.BadRequestError("", "Invalid request body")
	}
	if body.RefreshToken == "" {
		return crud.UnauthorizedError("Refresh token is required")
	}

	ctx := c.Context()

	row, err := store.QueryRow(ctx, h.store.DB, fmt.Sprintf(
		`SELECT rt.id, rt.user_id, rt.expires_at, u.roles, u.active
		 FROM _refresh_tokens rt
		 JOIN _users u ON u.id = rt.user_id
		 WHERE rt.token = %s`, h.ph(1)), body.RefreshToken)
	if err != nil {
		return crud.UnauthorizedError("Invalid refresh token")
	}

	expiresAt := asTime(row["expires_at"])
	if time.Now().After(expiresAt) {
		_, _ = store.Exec(ctx, h.store.DB,
			fmt.Sprintf("DELETE FROM _refresh_tokens WHERE token = %s", h.ph(1)), body.RefreshToken)
		return crud.UnauthorizedError("Refresh token expired")
	}

	if !truthy(row["active"]) {
		return crud.UnauthorizedError("Account is disabled")
	}

	tokenID := fmt.Sprint(row["id"])
	_, _ = store.Exec(ctx, h.store.DB,
		fmt.Sprintf("DELETE FROM _refresh_tokens WHERE id = %s", h.ph(1)), tokenID)

	userID := fmt.Sprint(row["user_id"])
	roles := decodeRoles(row["roles"])

	pair, err := h.generateTokenPair(ctx, userID, roles)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": pair})
}

// Logout handles POST /api/auth/logout.
func (h *Handler) Logout(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return crud.BadRequestError("", "Invalid request body")
	}
	if body.RefreshToken == "" {
		return crud.UnauthorizedError("Refresh token is required")
	}

	_, _ = store.Exec(c.Context(), h.store.DB,
		fmt.Sprintf("DELETE FROM _refresh_tokens WHERE token = %s", h.ph(1)), body.RefreshToken)

	return c.JSON(fiber.Map{"message": "Logged out"})
}

// RegisterRoutes registers the auth endpoints on the given app.
func RegisterRoutes(app *fiber.App, h *Handler) {
	grp := app.Group("/api/auth")
	grp.Post("/login", h.Login)
	grp.Post("/refresh", h.Refresh)
	grp.Post("/logout", h.Logout)
}

func (h *Handler) findUserByEmail(ctx context.Context, email string) (map[string]any, error) {
	return store.QueryRow(ctx, h.store.DB, fmt.Sprintf(
		"SELECT id, email, password_hash, roles, active FROM _users WHERE email = %s", h.ph(1)), email)
}

func (h *Handler) generateTokenPair(ctx context.Context, userID string, roles []string) (*TokenPair, error) {
	accessToken, err := h.tokens.Issue(userID, roles)
	if err != nil {
		return nil, crud.NewAppError("INTERNAL_ERROR", 500, "Failed to generate access token")
	}

	refreshToken, expiresAt := h.tokens.NewRefreshToken()

	_, err = store.Exec(ctx, h.store.DB, fmt.Sprintf(
		"INSERT INTO _refresh_tokens (id, user_id, token, expires_at) VALUES (%s, %s, %s, %s)",
		h.ph(1), h.ph(2), h.ph(3), h.ph(4)),
		uuid.New().String(), userID, refreshToken, expiresAt)
	if err != nil {
		return nil, crud.NewAppError("INTERNAL_ERROR", 500, "Failed to store refresh token")
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// decodeRoles handles both driver-decoded lists and the JSON text column.
func decodeRoles(v any) []string {
	switch roles := v.(type) {
	case []string:
		return roles
	case []any:
		out := make([]string, 0, len(roles))
		for _, r := range roles {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		if err := json.Unmarshal([]byte(roles), &out); err == nil {
			return out
		}
	case []byte:
		var out []string
		if err := json.Unmarshal(roles, &out); err == nil {
			return out
		}
	}
	return []string{}
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	case string:
		return b == "1" || b == "true" || b == "t"
	}
	return false
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed
			}
		}
	}
	return time.Time{}
}
