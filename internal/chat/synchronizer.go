package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/telecarehq/chatsync/internal/client"
	"github.com/telecarehq/chatsync/internal/mention"
	"github.com/telecarehq/chatsync/internal/models"
	"github.com/telecarehq/chatsync/internal/socket"
	"github.com/telecarehq/chatsync/internal/store"
	"go.uber.org/zap"
)

var (
	ErrNoConversation = errors.New("no conversation selected")
	ErrEmptyMessage   = errors.New("message content is empty")
)

const defaultPositionDelay = 300 * time.Millisecond

type backendAPI interface {
	ListConversations(ctx context.Context, q client.ConversationQuery) (*client.ConversationPage, error)
	FetchMessages(ctx context.Context, counterpartID int64, page, limit int) (*client.MessagePage, error)
	SendBlast(ctx context.Context, req models.BlastRequest) (*models.BlastResponse, error)
	UploadAttachment(ctx context.Context, filename string, file io.Reader) (string, error)
}

type messageSender interface {
	Send(ctx context.Context, out socket.OutboundMessage) (*models.Message, error)
	InFlight() bool
}

// Compose holds the local form state for a message being authored. It is
// reset only when the server acknowledges the send, so a failure leaves
// everything in place for a retry.
type Compose struct {
	Content        string
	AttachmentName string
	Attachment     io.Reader
	TemplateID     int64
}

func (c *Compose) HasAttachment() bool {
	return c.Attachment != nil
}

func (c *Compose) Reset() {
	*c = Compose{}
}

// Synchronizer keeps the local conversation view consistent with the
// backend across paginated REST fetches, the socket send path, and the
// refetch-based recovery that follows a blast dispatch.
type Synchronizer struct {
	store  *store.ConversationStore
	api    backendAPI
	sender messageSender
	role   models.Role
	logger *zap.Logger

	directory *mention.Directory

	positionDelay time.Duration
	onPositioned  func(counterpartID int64)

	posMu         sync.Mutex
	posTimer      *time.Timer
	positionedFor int64
}

func NewSynchronizer(st *store.ConversationStore, api backendAPI, sender messageSender, role models.Role, logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{
		store:         st,
		api:           api,
		sender:        sender,
		role:          role,
		logger:        logger,
		positionDelay: defaultPositionDelay,
	}
}

// UseDirectory enables mention restructuring on send for staff threads.
func (s *Synchronizer) UseDirectory(directory *mention.Directory) {
	s.directory = directory
}

// OnViewPositioned registers the scroll-positioning side effect. It fires
// at most once per conversation switch, debounced so layout can settle.
func (s *Synchronizer) OnViewPositioned(fn func(counterpartID int64)) {
	s.onPositioned = fn
}

func (s *Synchronizer) Store() *store.ConversationStore {
	return s.store
}

func (s *Synchronizer) SendInFlight() bool {
	return s.sender.InFlight()
}

// SelectConversation switches the open thread: the previous sequence is
// cleared immediately (never shown stale), then page 1 is fetched and
// committed only if the selection still matches the fetch's counterpart.
func (s *Synchronizer) SelectConversation(ctx context.Context, conversation models.Conversation) error {
	s.store.SelectConversation(conversation)
	s.resetPosition()

	counterpartID := conversation.OtherUser.ID
	page, err := s.api.FetchMessages(ctx, counterpartID, 1, 0)
	if err != nil {
		return fmt.Errorf("select conversation: %w", err)
	}

	if !s.store.ReplaceMessagesFor(counterpartID, page.Messages, page.Meta) {
		s.logger.Debug("discarding stale message fetch", zap.Int64("counterpartId", counterpartID))
		return nil
	}
	if len(page.Messages) > 0 {
		s.schedulePosition(counterpartID)
	}
	return nil
}

// LoadOlderMessages appends the next page of the open thread.
func (s *Synchronizer) LoadOlderMessages(ctx context.Context) error {
	selected, ok := s.store.Selected()
	if !ok {
		return ErrNoConversation
	}

	meta := s.store.MessageMeta()
	if meta.TotalPages > 0 && meta.Page >= meta.TotalPages {
		return nil
	}

	page, err := s.api.FetchMessages(ctx, selected.OtherUser.ID, meta.Page+1, meta.Limit)
	if err != nil {
		return fmt.Errorf("load older messages: %w", err)
	}
	s.store.AppendMessagesFor(selected.OtherUser.ID, page.Messages, page.Meta)
	return nil
}

// Send delivers the composed message to the open thread's counterpart.
// An attachment is uploaded first and its URL substituted for the text
// content; an upload failure aborts before any socket emit. The server's
// acknowledged record is appended verbatim and the compose state cleared
// only on acknowledgment.
func (s *Synchronizer) Send(ctx context.Context, compose *Compose) (*models.Message, error) {
	selected, ok := s.store.Selected()
	if !ok {
		return nil, ErrNoConversation
	}

	content := strings.TrimSpace(compose.Content)
	metadata := models.MessageMetadata{TemplateID: compose.TemplateID}

	if compose.HasAttachment() {
		url, err := s.api.UploadAttachment(ctx, compose.AttachmentName, compose.Attachment)
		if err != nil {
			return nil, fmt.Errorf("upload attachment: %w", err)
		}
		content = url
		metadata.IsAttachment = true
	} else if content == "" {
		return nil, ErrEmptyMessage
	}

	if s.directory != nil && s.role.MentionEligible() {
		content = mention.Restructure(content, s.directory.Users())
	}

	message, err := s.sender.Send(ctx, socket.OutboundMessage{
		ReceiverID: selected.OtherUser.ID,
		Content:    content,
		Metadata:   metadata,
	})
	if err != nil {
		return nil, err
	}

	s.store.AppendMessageFor(selected.OtherUser.ID, *message)
	compose.Reset()
	return message, nil
}

// SendBlast broadcasts to the given recipients and then refetches page 1
// of the active role's conversation list wholesale. The backend resolves
// threads as a side effect of a blast, so the local view cannot be
// patched up and is replaced from the refetch instead.
func (s *Synchronizer) SendBlast(ctx context.Context, req models.BlastRequest, attachmentName string, attachment io.Reader) (*models.BlastResponse, error) {
	if !req.HasRecipients() {
		return nil, client.ErrNoRecipients
	}

	if attachment != nil {
		url, err := s.api.UploadAttachment(ctx, attachmentName, attachment)
		if err != nil {
			return nil, fmt.Errorf("upload attachment: %w", err)
		}
		req.Attachment = url
	}

	resp, err := s.api.SendBlast(ctx, req)
	if err != nil {
		return nil, err
	}

	page, err := s.api.ListConversations(ctx, client.ConversationQuery{
		Role:  s.role,
		Page:  1,
		Limit: s.store.Meta(s.role).Limit,
	})
	if err != nil {
		// The blast itself succeeded; the stale list stands until the
		// next refresh.
		s.logger.Warn("conversation refetch after blast failed", zap.Error(err))
		return resp, nil
	}
	s.store.SetConversations(s.role, page.Conversations, page.Meta)
	return resp, nil
}

// RefreshConversations fetches a conversation list page and replaces the
// role partition.
func (s *Synchronizer) RefreshConversations(ctx context.Context, q client.ConversationQuery) error {
	if q.Role == "" {
		q.Role = s.role
	}
	page, err := s.api.ListConversations(ctx, q)
	if err != nil {
		return fmt.Errorf("refresh conversations: %w", err)
	}
	s.store.SetConversations(q.Role, page.Conversations, page.Meta)
	return nil
}

// LoadMoreConversations appends the next conversation page for the
// active role, keeping the partition's current filters.
func (s *Synchronizer) LoadMoreConversations(ctx context.Context) error {
	meta := s.store.Meta(s.role)
	if meta.TotalPages > 0 && meta.Page >= meta.TotalPages {
		return nil
	}

	page, err := s.api.ListConversations(ctx, client.ConversationQuery{
		Role:      s.role,
		Page:      meta.Page + 1,
		Limit:     meta.Limit,
		SortField: meta.SortField,
		SortOrder: meta.SortOrder,
		Search:    meta.Search,
	})
	if err != nil {
		return fmt.Errorf("load more conversations: %w", err)
	}
	s.store.AppendConversations(s.role, page.Conversations, page.Meta)
	return nil
}

func (s *Synchronizer) resetPosition() {
	s.posMu.Lock()
	defer s.posMu.Unlock()

	if s.posTimer != nil {
		s.posTimer.Stop()
		s.posTimer = nil
	}
	s.positionedFor = 0
}

func (s *Synchronizer) schedulePosition(counterpartID int64) {
	s.posMu.Lock()
	defer s.posMu.Unlock()

	if s.onPositioned == nil || s.positionedFor == counterpartID {
		return
	}
	if s.posTimer != nil {
		s.posTimer.Stop()
	}
	s.posTimer = time.AfterFunc(s.positionDelay, func() {
		s.posMu.Lock()
		s.positionedFor = counterpartID
		fn := s.onPositioned
		s.posMu.Unlock()
		fn(counterpartID)
	})
}
