// Package handlers implements the HTTP request handlers
package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/shrtyhq/shrty/app/dto"
	"github.com/shrtyhq/shrty/app/middleware"
	businessflow "github.com/shrtyhq/shrty/business_flow"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// LinkHandler handles short link HTTP requests
type LinkHandler struct {
	linkFlow  businessflow.LinkFlow
	validator *validator.Validate
}

// NewLinkHandler creates a new link handler
func NewLinkHandler(linkFlow businessflow.LinkFlow) *LinkHandler {
	return &LinkHandler{
		linkFlow:  linkFlow,
		validator: validator.New(),
	}
}

func (h *LinkHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: &dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *LinkHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Redirect resolves a short code and sends the visitor to the target URL
func (h *LinkHandler) Redirect(c fiber.Ctx) error {
	code := c.Params("code")
	if code == "" {
		return h.ErrorResponse(c, fiber.StatusNotFound, "Short link not found", businessflow.ErrCodeLinkNotFound, nil)
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	target, err := h.linkFlow.ResolveLink(ctx, code)
	if err != nil {
		middleware.RecordRedirect("miss")
		if businessflow.IsNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Short link not found", businessflow.ErrCodeLinkNotFound, nil)
		}
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to resolve link", businessflow.ErrCodeInternalError, nil)
	}

	middleware.RecordRedirect("hit")
	return c.Redirect().Status(fiber.StatusFound).To(target)
}

// Create creates a new short link for the authenticated user
func (h *LinkHandler) Create(c fiber.Ctx) error {
	var req dto.CreateLinkRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request format", businessflow.ErrCodeValidationFailed, nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", businessflow.ErrCodeValidationFailed, err.Error())
	}

	session := middleware.SessionFromLocals(c)
	if session == nil {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Authentication required", businessflow.ErrCodeSessionNotFound, nil)
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	link, err := h.linkFlow.CreateLink(ctx, &session.User, req.Title, req.URL, req.ShortCode)
	if err != nil {
		return h.flowError(c, err, "Failed to create link")
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Link created", dto.NewLinkResponse(link))
}

// List returns the authenticated user's links, paged
func (h *LinkHandler) List(c fiber.Ctx) error {
	var req dto.ListLinksRequest
	if err := c.Bind().Query(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", businessflow.ErrCodeValidationFailed, nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", businessflow.ErrCodeValidationFailed, err.Error())
	}

	session := middleware.SessionFromLocals(c)
	if session == nil {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Authentication required", businessflow.ErrCodeSessionNotFound, nil)
	}

	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	links, total, err := h.linkFlow.ListLinks(ctx, &session.User, req.Search, req.SortBy, req.SortDir, req.Page, req.PageSize)
	if err != nil {
		return h.flowError(c, err, "Failed to list links")
	}

	items := make([]dto.LinkResponse, 0, len(links))
	for _, link := range links {
		items = append(items, dto.NewLinkResponse(link))
	}

	totalPages := int((total + int64(req.PageSize) - 1) / int64(req.PageSize))

	return h.SuccessResponse(c, fiber.StatusOK, "Links retrieved", dto.ListLinksResponse{
		Links: items,
		Pagination: dto.Pagination{
			Page:       req.Page,
			PageSize:   req.PageSize,
			Total:      total,
			TotalPages: totalPages,
		},
	})
}

// Retire takes a short code out of service for the authenticated user
func (h *LinkHandler) Retire(c fiber.Ctx) error {
	code := c.Params("code")
	if code == "" {
		return h.ErrorResponse(c, fiber.StatusNotFound, "Short link not found", businessflow.ErrCodeLinkNotFound, nil)
	}

	session := middleware.SessionFromLocals(c)
	if session == nil {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Authentication required", businessflow.ErrCodeSessionNotFound, nil)
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	demoted, err := h.linkFlow.RetireLink(ctx, &session.User, code)
	if err != nil {
		return h.flowError(c, err, "Failed to retire link")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Link retired", fiber.Map{
		"retired_versions": demoted,
	})
}

func (h *LinkHandler) requestContext(c fiber.Ctx) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	ctx = businessflow.WithClientMetadata(ctx, businessflow.ClientMetadata{
		RequestID: c.Get("X-Request-ID"),
		IPAddress: c.IP(),
		UserAgent: c.Get("User-Agent"),
	})
	return ctx, cancel
}

func (h *LinkHandler) flowError(c fiber.Ctx, err error, fallback string) error {
	var bizErr *businessflow.BusinessError
	if errors.As(err, &bizErr) {
		status := fiber.StatusInternalServerError
		switch {
		case businessflow.IsNotFound(bizErr):
			status = fiber.StatusNotFound
		case businessflow.IsAuthenticationError(bizErr):
			status = fiber.StatusUnauthorized
		case errors.Is(bizErr, businessflow.ErrShortCodeConflict):
			status = fiber.StatusConflict
		case errors.Is(bizErr, businessflow.ErrInvalidInput):
			status = fiber.StatusBadRequest
		}
		return h.ErrorResponse(c, status, bizErr.Message, bizErr.Code, nil)
	}
	return h.ErrorResponse(c, fiber.StatusInternalServerError, fallback, businessflow.ErrCodeInternalError, nil)
}
