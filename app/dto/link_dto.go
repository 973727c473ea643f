package dto

import (
	"time"

	"github.com/shrtyhq/shrty/models"
)

// CreateLinkRequest creates a short link. ShortCode is optional; when set
// the caller claims that exact code.
type CreateLinkRequest struct {
	Title     string `json:"title" validate:"omitempty,max=255"`
	URL       string `json:"url" validate:"required,url,max=2048"`
	ShortCode string `json:"short_code" validate:"omitempty,alphanum,min=3,max=32"`
}

// ListLinksRequest holds the query parameters of the link listing
type ListLinksRequest struct {
	Search   string `query:"search" validate:"omitempty,max=255"`
	SortBy   string `query:"sort_by" validate:"omitempty,oneof=created title hits shortCode"`
	SortDir  string `query:"sort_dir" validate:"omitempty,oneof=asc desc"`
	Page     int    `query:"page" validate:"omitempty,min=1"`
	PageSize int    `query:"page_size" validate:"omitempty,min=1,max=100"`
}

// LinkResponse is the public shape of a short link
type LinkResponse struct {
	ShortCode string    `json:"short_code"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	HitCount  int64     `json:"hit_count"`
	CreatedAt time.Time `json:"created_at"`
}

// ListLinksResponse is a page of links
type ListLinksResponse struct {
	Links      []LinkResponse `json:"links"`
	Pagination Pagination     `json:"pagination"`
}

// NewLinkResponse maps a model onto its public shape
func NewLinkResponse(link *models.ShortURL) LinkResponse {
	return LinkResponse{
		ShortCode: link.ShortCode,
		Title:     link.Title,
		URL:       link.URL,
		HitCount:  link.HitCount,
		CreatedAt: link.CreatedAt,
	}
}
