package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/telecarehq/chatsync/internal/models"
	"go.uber.org/zap"
)

const (
	defaultPageLimit = 10
	messagePageLimit = 50
)

type ConversationQuery struct {
	Role           models.Role
	Page           int
	Limit          int
	UnreadOnly     bool
	UnresolvedOnly bool
	SortField      string
	SortOrder      string
	Search         string
}

type ConversationPage struct {
	Conversations []models.Conversation `json:"conversations"`
	Meta          models.PaginationMeta `json:"meta"`
}

func (c *Client) ListConversations(ctx context.Context, q ConversationQuery) (*ConversationPage, error) {
	if !q.Role.Valid() {
		return nil, fmt.Errorf("list conversations: invalid role %q", q.Role)
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = defaultPageLimit
	}

	values := url.Values{}
	values.Set("role", string(q.Role))
	values.Set("page", strconv.Itoa(q.Page))
	values.Set("limit", strconv.Itoa(q.Limit))
	if q.UnreadOnly {
		values.Set("unreadOnly", "true")
	}
	if q.UnresolvedOnly {
		values.Set("unresolvedOnly", "true")
	}
	if q.SortField != "" {
		values.Set("sortField", q.SortField)
		values.Set("sortOrder", q.SortOrder)
	}
	if q.Search != "" {
		values.Set("search", q.Search)
	}

	var page ConversationPage
	if err := c.get(ctx, "/api/v1/conversations", values, &page); err != nil {
		c.logger.Warn("conversation list fetch failed", zap.String("role", string(q.Role)), zap.Error(err))
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return &page, nil
}
