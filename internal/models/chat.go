package models

import (
	"strings"
	"time"
)

type Role string

const (
	RolePatient  Role = "patient"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	return r == RolePatient || r == RoleProvider || r == RoleAdmin
}

// MentionEligible reports whether threads for this role support @mentions.
// Mentions are a staff-to-staff feature and never appear in patient threads.
func (r Role) MentionEligible() bool {
	return r == RoleProvider || r == RoleAdmin
}

const (
	RoomStatusUnresolved = "unresolved"
	RoomStatusResolved   = "resolved"
)

type ChatUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      Role   `json:"role"`
}

func (u ChatUser) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// ChatRoom status is backend-owned; the client only ever reads it from a
// server response and never mutates it locally.
type ChatRoom struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

type MessageMetadata struct {
	IsAttachment bool  `json:"isAttachment"`
	TemplateID   int64 `json:"templateId,omitempty"`
}

type Message struct {
	ID         int64           `json:"id"`
	SenderID   int64           `json:"senderId"`
	ReceiverID int64           `json:"receiverId"`
	Content    string          `json:"content"`
	Metadata   MessageMetadata `json:"metadata"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Conversation is keyed by OtherUser.ID within a role partition. Ordering
// is whatever the backend returned; the client does not re-sort.
type Conversation struct {
	OtherUser   ChatUser `json:"otherUser"`
	ChatRoom    ChatRoom `json:"chatRoom"`
	LastMessage *Message `json:"lastMessage,omitempty"`
	UnreadCount int      `json:"unreadCount"`
}

type PaginationMeta struct {
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	Total      int    `json:"total"`
	TotalPages int    `json:"totalPages"`
	SortField  string `json:"sortField,omitempty"`
	SortOrder  string `json:"sortOrder,omitempty"`
	Search     string `json:"search,omitempty"`
}

type DirectoryUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      Role   `json:"role"`
}

func (u DirectoryUser) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
