package api

import (
	"github.com/gofiber/fiber/v2"

	"trigger-console/internal/auth"
)

// AuthHandler serves the token endpoints.
type AuthHandler struct {
	svc *auth.Service
}

func NewAuthHandler(svc *auth.Service) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// RegisterAuthRoutes mounts the unauthenticated token routes.
func RegisterAuthRoutes(app *fiber.App, h *AuthHandler) {
	g := app.Group("/api/_auth")
	g.Post("/login", h.Login)
	g.Post("/refresh", h.Refresh)
	g.Post("/logout", h.Logout)
}

// Login handles POST /api/_auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return InvalidPayloadError("Invalid request body")
	}
	if body.Username == "" || body.Password == "" {
		return UnauthorizedError("Username and password are required")
	}

	pair, err := h.svc.Login(c.Context(), body.Username, body.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": pair})
}

type refreshBody struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh handles POST /api/_auth/refresh.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var body refreshBody
	if err := c.BodyParser(&body); err != nil {
		return InvalidPayloadError("Invalid request body")
	}
	pair, err := h.svc.Refresh(c.Context(), body.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": pair})
}

// Logout handles POST /api/_auth/logout.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var body refreshBody
	if err := c.BodyParser(&body); err != nil {
		return InvalidPayloadError("Invalid request body")
	}
	if err := h.svc.Logout(c.Context(), body.RefreshToken); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Logged out"})
}
