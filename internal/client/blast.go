package client

import (
	"context"
	"fmt"

	"github.com/telecarehq/chatsync/internal/models"
)

// SendBlast broadcasts one message to many recipients in a single
// backend operation. The recipient precondition is checked before any
// request is built, so a validation failure never reaches the network.
func (c *Client) SendBlast(ctx context.Context, req models.BlastRequest) (*models.BlastResponse, error) {
	if !req.HasRecipients() {
		return nil, ErrNoRecipients
	}
	if req.UserIDs == nil {
		req.UserIDs = []int64{}
	}

	var resp models.BlastResponse
	if err := c.postJSON(ctx, "/api/v1/blast-message", req, &resp); err != nil {
		return nil, fmt.Errorf("send blast: %w", err)
	}
	return &resp, nil
}
