package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"noticeboard/internal/domain/notice"
	"noticeboard/internal/domain/subcategory"
)

const (
	noticesPath       = "/api/v1/notices/"
	subcategoriesPath = "/api/v1/notices/categories/subcategories"

	// DefaultPerPage is used when ListParams.PerPage is not positive.
	DefaultPerPage = 20
)

// ListParams selects one page of notices.
type ListParams struct {
	Page           int
	PerPage        int
	Category       notice.Category
	Subcategory    string
	IncludeExpired bool
}

// ListResult is the backend's paginated notice envelope.
type ListResult struct {
	Notices []notice.Notice `json:"notices"`
	Total   int             `json:"total"`
	Page    int             `json:"page"`
	PerPage int             `json:"per_page"`
}

// Values encodes the parameters as the backend's query string.
func (p ListParams) Values() url.Values {
	page := p.Page
	if page < 1 {
		page = 1
	}
	perPage := p.PerPage
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("include_expired", strconv.FormatBool(p.IncludeExpired))
	if p.Category != "" {
		q.Set("category", string(p.Category))
	}
	if p.Subcategory != "" {
		q.Set("subcategory", p.Subcategory)
	}
	return q
}

// ListNotices fetches one page of notices.
// POST: Notices is never nil on success
func (c *Client) ListNotices(ctx context.Context, token string, p ListParams) (ListResult, error) {
	var res ListResult
	if err := c.do(ctx, "list_notices", http.MethodGet, noticesPath, p.Values(), token, nil, &res); err != nil {
		return ListResult{}, err
	}
	if res.Notices == nil {
		res.Notices = []notice.Notice{}
	}
	return res, nil
}

// GetNotice fetches a single notice.
func (c *Client) GetNotice(ctx context.Context, token, id string) (notice.Notice, error) {
	var n notice.Notice
	err := c.do(ctx, "get_notice", http.MethodGet, noticesPath+url.PathEscape(id), nil, token, nil, &n)
	return n, err
}

// CreateNotice posts a new notice and returns the stored record.
func (c *Client) CreateNotice(ctx context.Context, token string, d notice.Draft) (notice.Notice, error) {
	var n notice.Notice
	err := c.do(ctx, "create_notice", http.MethodPost, noticesPath, nil, token, d, &n)
	return n, err
}

// UpdateNotice replaces the editable fields of an existing notice.
func (c *Client) UpdateNotice(ctx context.Context, token, id string, d notice.Draft) (notice.Notice, error) {
	var n notice.Notice
	err := c.do(ctx, "update_notice", http.MethodPut, noticesPath+url.PathEscape(id), nil, token, d, &n)
	return n, err
}

// DeleteNotice removes a notice.
func (c *Client) DeleteNotice(ctx context.Context, token, id string) error {
	return c.do(ctx, "delete_notice", http.MethodDelete, noticesPath+url.PathEscape(id), nil, token, nil, nil)
}

// Subcategories fetches the department and club registry.
func (c *Client) Subcategories(ctx context.Context, token string) (subcategory.Registry, error) {
	var reg subcategory.Registry
	err := c.do(ctx, "subcategories", http.MethodGet, subcategoriesPath, nil, token, nil, &reg)
	return reg, err
}
