package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/telecarehq/chatsync/internal/models"
	"go.uber.org/zap"
)

// SearchDirectory fetches one page of the staff user directory used for
// mention resolution.
func (c *Client) SearchDirectory(ctx context.Context, search string, page, limit int) ([]models.DirectoryUser, models.PaginationMeta, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}

	values := url.Values{}
	values.Set("search", search)
	values.Set("page", strconv.Itoa(page))
	values.Set("limit", strconv.Itoa(limit))

	var result struct {
		Users []models.DirectoryUser `json:"users"`
		Meta  models.PaginationMeta  `json:"meta"`
	}
	if err := c.get(ctx, "/api/v1/directory", values, &result); err != nil {
		c.logger.Warn("directory fetch failed", zap.String("search", search), zap.Error(err))
		return nil, models.PaginationMeta{}, fmt.Errorf("search directory: %w", err)
	}
	return result.Users, result.Meta, nil
}
