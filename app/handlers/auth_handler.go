package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/shrtyhq/shrty/app/dto"
	businessflow "github.com/shrtyhq/shrty/business_flow"
	"github.com/shrtyhq/shrty/config"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// AuthHandler handles authentication HTTP requests
type AuthHandler struct {
	authFlow  businessflow.AuthFlow
	cfg       config.SecurityConfig
	validator *validator.Validate
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(authFlow businessflow.AuthFlow, cfg config.SecurityConfig) *AuthHandler {
	return &AuthHandler{
		authFlow:  authFlow,
		cfg:       cfg,
		validator: validator.New(),
	}
}

func (h *AuthHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: &dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *AuthHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Login verifies credentials and hands back the opaque session key, both
// in the body and as a cookie
func (h *AuthHandler) Login(c fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request format", businessflow.ErrCodeValidationFailed, nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", businessflow.ErrCodeValidationFailed, err.Error())
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	session, err := h.authFlow.Login(ctx, req.Email, req.Password)
	if err != nil {
		var bizErr *businessflow.BusinessError
		if errors.As(err, &bizErr) {
			if errors.Is(bizErr, businessflow.ErrUserDoesNotExist) {
				return h.ErrorResponse(c, fiber.StatusNotFound, "User not found", businessflow.ErrCodeUserNotFound, nil)
			}
			if errors.Is(bizErr, businessflow.ErrInvalidPassword) {
				return h.ErrorResponse(c, fiber.StatusUnauthorized, "Incorrect password", businessflow.ErrCodeInvalidPassword, nil)
			}
			if errors.Is(bizErr, businessflow.ErrInvalidInput) {
				return h.ErrorResponse(c, fiber.StatusBadRequest, bizErr.Message, bizErr.Code, nil)
			}
		}
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Login failed", businessflow.ErrCodeInternalError, nil)
	}

	c.Cookie(&fiber.Cookie{
		Name:     h.cfg.SessionCookie,
		Value:    session.Key,
		Expires:  session.ExpiresAt,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})

	return h.SuccessResponse(c, fiber.StatusOK, "Login successful", dto.LoginResponse{
		SessionKey: session.Key,
		ExpiresAt:  session.ExpiresAt,
		Email:      session.User.Email,
		FirstName:  session.User.FirstName,
		LastName:   session.User.LastName,
	})
}

// Logout retires the caller's session and clears the cookie
func (h *AuthHandler) Logout(c fiber.Ctx) error {
	key := c.Get(h.cfg.SessionKeyHeader)
	if key == "" {
		key = c.Cookies(h.cfg.SessionCookie)
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.authFlow.Logout(ctx, key); err != nil {
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Logout failed", businessflow.ErrCodeInternalError, nil)
	}

	c.ClearCookie(h.cfg.SessionCookie)

	return h.SuccessResponse(c, fiber.StatusOK, "Logout successful", nil)
}

func (h *AuthHandler) requestContext(c fiber.Ctx) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	ctx = businessflow.WithClientMetadata(ctx, businessflow.ClientMetadata{
		RequestID: c.Get("X-Request-ID"),
		IPAddress: c.IP(),
		UserAgent: c.Get("User-Agent"),
	})
	return ctx, cancel
}
