package store

import (
	"testing"
	"time"

	"github.com/telecarehq/chatsync/internal/models"
)

func conversationWith(counterpartID int64) models.Conversation {
	return models.Conversation{
		OtherUser: models.ChatUser{ID: counterpartID, FirstName: "Jane", LastName: "Doe", Role: models.RolePatient},
		ChatRoom:  models.ChatRoom{ID: counterpartID * 10, Status: models.RoomStatusUnresolved},
	}
}

func messageFor(id, counterpartID int64, content string) models.Message {
	return models.Message{
		ID:         id,
		SenderID:   counterpartID,
		ReceiverID: 1,
		Content:    content,
		CreatedAt:  time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSelectConversationClearsMessagesOnCounterpartChange(t *testing.T) {
	s := NewConversationStore()

	s.SelectConversation(conversationWith(7))
	if !s.ReplaceMessagesFor(7, []models.Message{messageFor(1, 7, "hello")}, models.PaginationMeta{Page: 1}) {
		t.Fatal("expected replace to commit for selected conversation")
	}

	s.SelectConversation(conversationWith(8))
	if got := s.Messages(); len(got) != 0 {
		t.Fatalf("expected empty sequence after switching counterpart, got %d messages", len(got))
	}
}

func TestSelectConversationKeepsMessagesForSameCounterpart(t *testing.T) {
	s := NewConversationStore()

	s.SelectConversation(conversationWith(7))
	s.ReplaceMessagesFor(7, []models.Message{messageFor(1, 7, "hello")}, models.PaginationMeta{Page: 1})

	// Re-selecting the same counterpart (e.g. a refreshed summary) must
	// not drop the loaded sequence.
	updated := conversationWith(7)
	updated.UnreadCount = 3
	s.SelectConversation(updated)

	if got := s.Messages(); len(got) != 1 {
		t.Fatalf("expected 1 message after re-selecting same counterpart, got %d", len(got))
	}
}

func TestReplaceMessagesForDiscardsStaleFetch(t *testing.T) {
	s := NewConversationStore()

	s.SelectConversation(conversationWith(7))
	s.SelectConversation(conversationWith(8))

	// A late-arriving fetch for the previously selected counterpart
	// must not overwrite the current conversation's sequence.
	if s.ReplaceMessagesFor(7, []models.Message{messageFor(1, 7, "stale")}, models.PaginationMeta{Page: 1}) {
		t.Fatal("expected stale fetch result to be discarded")
	}
	if got := s.Messages(); len(got) != 0 {
		t.Fatalf("expected empty sequence, got %d messages", len(got))
	}
}

func TestAppendMessagesForExtendsSequence(t *testing.T) {
	s := NewConversationStore()

	s.SelectConversation(conversationWith(7))
	s.ReplaceMessagesFor(7, []models.Message{messageFor(2, 7, "newest")}, models.PaginationMeta{Page: 1, TotalPages: 2})
	if !s.AppendMessagesFor(7, []models.Message{messageFor(1, 7, "older")}, models.PaginationMeta{Page: 2, TotalPages: 2}) {
		t.Fatal("expected append to commit")
	}

	got := s.Messages()
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0].ID != 2 || got[1].ID != 1 {
		t.Fatalf("expected append-at-tail ordering, got ids %d, %d", got[0].ID, got[1].ID)
	}
	if s.MessageMeta().Page != 2 {
		t.Fatalf("expected meta page 2, got %d", s.MessageMeta().Page)
	}
}

func TestAppendMessageForGuardsSelection(t *testing.T) {
	s := NewConversationStore()

	s.SelectConversation(conversationWith(7))
	if !s.AppendMessageFor(7, messageFor(1, 7, "hi")) {
		t.Fatal("expected append for selected counterpart to commit")
	}
	if s.AppendMessageFor(9, messageFor(2, 9, "other")) {
		t.Fatal("expected append for unselected counterpart to be discarded")
	}
	if got := s.Messages(); len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("unexpected sequence: %+v", got)
	}
}

func TestRolePartitionsAreIndependent(t *testing.T) {
	s := NewConversationStore()

	s.SetConversations(models.RolePatient, []models.Conversation{conversationWith(1)}, models.PaginationMeta{Page: 1, Total: 1, TotalPages: 1})
	s.SetConversations(models.RoleProvider, []models.Conversation{conversationWith(2), conversationWith(3)}, models.PaginationMeta{Page: 1, Total: 2, TotalPages: 1})

	if got := s.Conversations(models.RolePatient); len(got) != 1 {
		t.Fatalf("expected 1 patient conversation, got %d", len(got))
	}
	if got := s.Conversations(models.RoleProvider); len(got) != 2 {
		t.Fatalf("expected 2 provider conversations, got %d", len(got))
	}
	if s.Meta(models.RoleProvider).Total != 2 {
		t.Fatalf("unexpected provider meta: %+v", s.Meta(models.RoleProvider))
	}
}

func TestSetConversationsReplacesPartition(t *testing.T) {
	s := NewConversationStore()

	unresolved := conversationWith(5)
	s.SetConversations(models.RolePatient, []models.Conversation{unresolved}, models.PaginationMeta{Page: 1})

	resolved := conversationWith(5)
	resolved.ChatRoom.Status = models.RoomStatusResolved
	s.SetConversations(models.RolePatient, []models.Conversation{resolved}, models.PaginationMeta{Page: 1})

	got := s.Conversations(models.RolePatient)
	if len(got) != 1 || got[0].ChatRoom.Status != models.RoomStatusResolved {
		t.Fatalf("expected replaced partition with resolved room, got %+v", got)
	}
}

func TestGettersReturnCopies(t *testing.T) {
	s := NewConversationStore()

	s.SelectConversation(conversationWith(7))
	s.ReplaceMessagesFor(7, []models.Message{messageFor(1, 7, "hello")}, models.PaginationMeta{Page: 1})

	leaked := s.Messages()
	leaked[0].Content = "mutated"

	if got := s.Messages(); got[0].Content != "hello" {
		t.Fatalf("store state mutated through getter copy: %q", got[0].Content)
	}
}
