package stubserver

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/telecarehq/chatsync/internal/models"
	"github.com/telecarehq/chatsync/pkg/utils"
)

const testSecret = "stub-secret"

func seededServer(t *testing.T) *Server {
	t.Helper()

	s := New(testSecret, nil)
	s.Seed(
		ThreadSeed{
			Counterpart: models.ChatUser{ID: 7, FirstName: "Pat", LastName: "Lee", Role: models.RolePatient},
			RoomStatus:  models.RoomStatusUnresolved,
			Unread:      2,
			PlanName:    "Weight Management",
			Messages: []models.Message{
				{SenderID: 7, ReceiverID: 1, Content: "Hi doctor", CreatedAt: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)},
				{SenderID: 1, ReceiverID: 7, Content: "Hello Pat", CreatedAt: time.Date(2026, 2, 1, 9, 5, 0, 0, time.UTC)},
			},
		},
		ThreadSeed{
			Counterpart: models.ChatUser{ID: 8, FirstName: "Sam", LastName: "Reyes", Role: models.RolePatient},
			RoomStatus:  models.RoomStatusResolved,
		},
	)
	s.SeedDirectory(
		models.DirectoryUser{ID: 11, FirstName: "John", LastName: "Smith", Role: models.RoleProvider},
		models.DirectoryUser{ID: 12, FirstName: "Joanna", LastName: "Lee", Role: models.RoleAdmin},
	)
	return s
}

func authedRequest(t *testing.T, method, target string, body *bytes.Buffer) *http.Request {
	t.Helper()

	token, err := utils.GenerateToken("1", "admin", testSecret)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, body)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestConversationsRequireAuth(t *testing.T) {
	s := seededServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations?role=patient", nil)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestListConversationsReturnsRolePartition(t *testing.T) {
	s := seededServer(t)

	resp, err := s.App().Test(authedRequest(t, http.MethodGet, "/api/v1/conversations?role=patient&page=1&limit=10", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Conversations []models.Conversation `json:"conversations"`
		Meta          models.PaginationMeta `json:"meta"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(body.Conversations) != 2 || body.Meta.Total != 2 {
		t.Fatalf("unexpected list: %+v", body)
	}
	first := body.Conversations[0]
	if first.OtherUser.ID != 7 || first.UnreadCount != 2 || first.LastMessage == nil || first.LastMessage.Content != "Hello Pat" {
		t.Fatalf("unexpected first conversation: %+v", first)
	}
}

func TestListConversationsUnresolvedOnly(t *testing.T) {
	s := seededServer(t)

	resp, err := s.App().Test(authedRequest(t, http.MethodGet, "/api/v1/conversations?role=patient&unresolvedOnly=true", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(body.Conversations) != 1 || body.Conversations[0].OtherUser.ID != 7 {
		t.Fatalf("unexpected filtered list: %+v", body.Conversations)
	}
}

func TestGetMessagesReturnsNewestWindowAndThreadContext(t *testing.T) {
	s := seededServer(t)

	resp, err := s.App().Test(authedRequest(t, http.MethodGet, "/api/v1/messages/7?page=1&limit=50", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Messages []models.Message      `json:"messages"`
		Meta     models.PaginationMeta `json:"meta"`
		ChatRoom models.ChatRoom       `json:"chatRoom"`
		PlanName string                `json:"planName"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(body.Messages) != 2 || body.Messages[1].Content != "Hello Pat" {
		t.Fatalf("unexpected messages: %+v", body.Messages)
	}
	if body.ChatRoom.Status != models.RoomStatusUnresolved || body.PlanName != "Weight Management" {
		t.Fatalf("unexpected thread context: %+v", body)
	}

	// Fetching page 1 marks the thread read.
	resp2, err := s.App().Test(authedRequest(t, http.MethodGet, "/api/v1/conversations?role=patient", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp2.Body.Close()
	var list struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	if err := json.NewDecoder(resp2.Body).Decode(&list); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if list.Conversations[0].UnreadCount != 0 {
		t.Fatalf("expected unread reset, got %d", list.Conversations[0].UnreadCount)
	}
}

func TestGetMessagesUnknownCounterpart(t *testing.T) {
	s := seededServer(t)

	resp, err := s.App().Test(authedRequest(t, http.MethodGet, "/api/v1/messages/99", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestBlastRejectsZeroRecipients(t *testing.T) {
	s := seededServer(t)

	payload := bytes.NewBufferString(`{"sendToAll":false,"userIds":[],"message":"hi","isSendEmail":false}`)
	req := authedRequest(t, http.MethodPost, "/api/v1/blast-message", payload)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestBlastResolvesThreadsServerSide(t *testing.T) {
	s := seededServer(t)

	payload := bytes.NewBufferString(`{"sendToAll":true,"userIds":[],"message":"Clinic closed Friday","isSendEmail":true}`)
	req := authedRequest(t, http.MethodPost, "/api/v1/blast-message", payload)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	var blast models.BlastResponse
	if err := json.NewDecoder(resp.Body).Decode(&blast); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !blast.Success {
		t.Fatalf("unexpected blast response: %+v", blast)
	}

	resp2, err := s.App().Test(authedRequest(t, http.MethodGet, "/api/v1/conversations?role=patient", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp2.Body.Close()

	var list struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	if err := json.NewDecoder(resp2.Body).Decode(&list); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for _, conversation := range list.Conversations {
		if conversation.ChatRoom.Status != models.RoomStatusResolved {
			t.Fatalf("expected all rooms resolved after blast, got %+v", conversation)
		}
		if conversation.LastMessage == nil || conversation.LastMessage.Content != "Clinic closed Friday" {
			t.Fatalf("expected blast message at thread tail, got %+v", conversation.LastMessage)
		}
	}
}

func TestUploadRoundTrip(t *testing.T) {
	s := seededServer(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "scan.pdf")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write([]byte("%PDF-1.4")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	writer.Close()

	req := authedRequest(t, http.MethodPost, "/api/v1/uploads", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	var uploaded struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if uploaded.URL == "" {
		t.Fatal("expected public url")
	}

	path := uploaded.URL[strings.Index(uploaded.URL, "/uploads/"):]
	resp2, err := s.App().Test(httptest.NewRequest(http.MethodGet, path, nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 serving upload, got %d", resp2.StatusCode)
	}
}

func TestDirectorySearchFilters(t *testing.T) {
	s := seededServer(t)

	resp, err := s.App().Test(authedRequest(t, http.MethodGet, "/api/v1/directory?search=jo&page=1&limit=10", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Users []models.DirectoryUser `json:"users"`
		Meta  models.PaginationMeta  `json:"meta"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(body.Users) != 2 || body.Meta.Total != 2 {
		t.Fatalf("unexpected directory page: %+v", body)
	}
}
