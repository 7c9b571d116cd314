package store

import (
	"sync"

	"github.com/telecarehq/chatsync/internal/models"
)

// ConversationStore is the single source of truth for which conversation
// is open and which messages belong to it, partitioned by counterpart
// role. It performs no I/O and cannot fail; mutation is serialized with a
// mutex because fetch completions, socket acks, and blast refetches all
// write from their own goroutines.
type ConversationStore struct {
	mu sync.RWMutex

	conversations map[models.Role][]models.Conversation
	meta          map[models.Role]models.PaginationMeta

	selected    *models.Conversation
	messages    []models.Message
	messageMeta models.PaginationMeta
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		conversations: make(map[models.Role][]models.Conversation),
		meta:          make(map[models.Role]models.PaginationMeta),
	}
}

// SelectConversation makes conversation current. If its counterpart
// differs from the previously selected one, the message sequence is
// cleared so the view never shows another conversation's messages while
// the new fetch is in flight.
func (s *ConversationStore) SelectConversation(conversation models.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected == nil || s.selected.OtherUser.ID != conversation.OtherUser.ID {
		s.messages = nil
		s.messageMeta = models.PaginationMeta{}
	}
	selected := conversation
	s.selected = &selected
}

func (s *ConversationStore) Selected() (models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.selected == nil {
		return models.Conversation{}, false
	}
	return *s.selected, true
}

// ReplaceMessagesFor commits a page-1 fetch result. The counterpart id
// the fetch was issued for is compared against the current selection
// under the lock; a mismatch means the user switched conversations while
// the fetch was in flight and the result is discarded.
func (s *ConversationStore) ReplaceMessagesFor(counterpartID int64, messages []models.Message, meta models.PaginationMeta) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected == nil || s.selected.OtherUser.ID != counterpartID {
		return false
	}
	s.messages = append([]models.Message(nil), messages...)
	s.messageMeta = meta
	return true
}

// AppendMessagesFor commits a page>1 fetch result (infinite scroll) under
// the same stale-response guard as ReplaceMessagesFor.
func (s *ConversationStore) AppendMessagesFor(counterpartID int64, messages []models.Message, meta models.PaginationMeta) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected == nil || s.selected.OtherUser.ID != counterpartID {
		return false
	}
	s.messages = append(s.messages, messages...)
	s.messageMeta = meta
	return true
}

// AppendMessageFor inserts one message at the tail of the current
// sequence, used by socket acks and other live-update channels. The
// guard keeps a late ack for a since-deselected conversation out of the
// sequence.
func (s *ConversationStore) AppendMessageFor(counterpartID int64, message models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected == nil || s.selected.OtherUser.ID != counterpartID {
		return false
	}
	s.messages = append(s.messages, message)
	return true
}

func (s *ConversationStore) ClearMessages() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = nil
	s.messageMeta = models.PaginationMeta{}
}

func (s *ConversationStore) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]models.Message(nil), s.messages...)
}

func (s *ConversationStore) MessageMeta() models.PaginationMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.messageMeta
}

// SetConversations replaces a role partition wholesale, preserving the
// backend's ordering.
func (s *ConversationStore) SetConversations(role models.Role, conversations []models.Conversation, meta models.PaginationMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations[role] = append([]models.Conversation(nil), conversations...)
	s.meta[role] = meta
}

// AppendConversations extends a role partition with the next page.
func (s *ConversationStore) AppendConversations(role models.Role, conversations []models.Conversation, meta models.PaginationMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations[role] = append(s.conversations[role], conversations...)
	s.meta[role] = meta
}

func (s *ConversationStore) Conversations(role models.Role) []models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]models.Conversation(nil), s.conversations[role]...)
}

func (s *ConversationStore) Meta(role models.Role) models.PaginationMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.meta[role]
}
