package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/telecarehq/chatsync/internal/models"
	"go.uber.org/zap"
)

type MessagePage struct {
	Messages    []models.Message      `json:"messages"`
	Meta        models.PaginationMeta `json:"meta"`
	ChatRoom    *models.ChatRoom      `json:"chatRoom,omitempty"`
	PaymentType string                `json:"paymentType,omitempty"`
	PlanName    string                `json:"planName,omitempty"`
}

// FetchMessages retrieves one page of the thread with counterpartID.
// Page 1 is the freshest window; higher pages reach further back for
// infinite scroll.
func (c *Client) FetchMessages(ctx context.Context, counterpartID int64, page, limit int) (*MessagePage, error) {
	if counterpartID <= 0 {
		return nil, fmt.Errorf("fetch messages: invalid counterpart id %d", counterpartID)
	}
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = messagePageLimit
	}

	values := url.Values{}
	values.Set("page", strconv.Itoa(page))
	values.Set("limit", strconv.Itoa(limit))

	var result MessagePage
	path := "/api/v1/messages/" + strconv.FormatInt(counterpartID, 10)
	if err := c.get(ctx, path, values, &result); err != nil {
		c.logger.Warn("message fetch failed",
			zap.Int64("counterpartId", counterpartID),
			zap.Int("page", page),
			zap.Error(err))
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	return &result, nil
}
