package stubserver

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/telecarehq/chatsync/internal/models"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 50
)

func (s *Server) listConversations(c *fiber.Ctx) error {
	role := models.Role(c.Query("role"))
	if !role.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid role"})
	}

	page := parsePositiveInt(c.Query("page"), 1)
	limit := parsePositiveInt(c.Query("limit"), defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	unreadOnly := c.QueryBool("unreadOnly")
	unresolvedOnly := c.QueryBool("unresolvedOnly")
	search := c.Query("search")

	s.mu.Lock()
	filtered := make([]models.Conversation, 0)
	for _, thread := range s.threads[role] {
		if unreadOnly && thread.unread == 0 {
			continue
		}
		if unresolvedOnly && thread.room.Status != models.RoomStatusUnresolved {
			continue
		}
		if !matchesSearch(thread.counterpart, search) {
			continue
		}
		filtered = append(filtered, thread.conversation())
	}
	s.mu.Unlock()

	total := len(filtered)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	meta := buildPaginationMeta(page, limit, total)
	meta.SortField = c.Query("sortField")
	meta.SortOrder = c.Query("sortOrder")
	meta.Search = search

	return c.JSON(fiber.Map{
		"conversations": filtered[start:end],
		"meta":          meta,
	})
}

func (s *Server) getMessages(c *fiber.Ctx) error {
	counterpartID, err := strconv.ParseInt(c.Params("userId"), 10, 64)
	if err != nil || counterpartID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user id"})
	}

	page := parsePositiveInt(c.Query("page"), 1)
	limit := parsePositiveInt(c.Query("limit"), maxPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	s.mu.Lock()
	thread, _ := s.findThread(counterpartID)
	if thread == nil {
		s.mu.Unlock()
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Conversation not found"})
	}

	// Page 1 is the newest window; higher pages reach further back.
	total := len(thread.messages)
	end := total - (page-1)*limit
	if end < 0 {
		end = 0
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	window := append([]models.Message(nil), thread.messages[start:end]...)

	if page == 1 {
		thread.unread = 0
	}

	response := fiber.Map{
		"messages": window,
		"meta":     buildPaginationMeta(page, limit, total),
		"chatRoom": thread.room,
	}
	if thread.paymentType != "" {
		response["paymentType"] = thread.paymentType
	}
	if thread.planName != "" {
		response["planName"] = thread.planName
	}
	s.mu.Unlock()

	return c.JSON(response)
}

func (s *Server) sendBlast(c *fiber.Ctx) error {
	var req models.BlastRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if !req.HasRecipients() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No recipients selected"})
	}

	senderID := actorID(c)
	content := req.Message
	metadata := models.MessageMetadata{TemplateID: req.TemplateID}
	if req.Attachment != "" {
		content = req.Attachment
		metadata.IsAttachment = true
	}

	wanted := make(map[int64]bool, len(req.UserIDs))
	for _, id := range req.UserIDs {
		wanted[id] = true
	}

	s.mu.Lock()
	delivered := 0
	for role, threads := range s.threads {
		for _, thread := range threads {
			if !req.SendToAll && !wanted[thread.counterpart.ID] {
				continue
			}
			s.seq++
			thread.messages = append(thread.messages, models.Message{
				ID:         s.seq,
				SenderID:   senderID,
				ReceiverID: thread.counterpart.ID,
				Content:    content,
				Metadata:   metadata,
				CreatedAt:  time.Now().UTC(),
			})
			// A blast resolves the thread as a server-side side effect;
			// clients discover this through their post-blast refetch.
			thread.room.Status = models.RoomStatusResolved
			s.touchThread(thread, role)
			delivered++
		}
	}
	s.mu.Unlock()

	return c.JSON(models.BlastResponse{
		Success: true,
		Message: "Blast sent to " + strconv.Itoa(delivered) + " recipients",
	})
}

func (s *Server) uploadFile(c *fiber.Ctx) error {
	header, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing file"})
	}

	file, err := header.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unreadable file"})
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to read file"})
	}

	name := uuid.NewString() + "-" + header.Filename
	s.mu.Lock()
	s.uploads[name] = content
	s.mu.Unlock()

	return c.JSON(fiber.Map{"url": c.BaseURL() + "/uploads/" + name})
}

func (s *Server) serveUpload(c *fiber.Ctx) error {
	s.mu.Lock()
	content, ok := s.uploads[c.Params("name")]
	s.mu.Unlock()

	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found"})
	}
	return c.Send(content)
}

func (s *Server) searchDirectory(c *fiber.Ctx) error {
	search := strings.ToLower(c.Query("search"))
	page := parsePositiveInt(c.Query("page"), 1)
	limit := parsePositiveInt(c.Query("limit"), defaultPageLimit)

	s.mu.Lock()
	filtered := make([]models.DirectoryUser, 0)
	for _, user := range s.directory {
		if search == "" || strings.Contains(strings.ToLower(user.FullName()), search) {
			filtered = append(filtered, user)
		}
	}
	s.mu.Unlock()

	total := len(filtered)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return c.JSON(fiber.Map{
		"users": filtered[start:end],
		"meta":  buildPaginationMeta(page, limit, total),
	})
}

func actorID(c *fiber.Ctx) int64 {
	raw, _ := c.Locals("user_id").(string)
	id, _ := strconv.ParseInt(raw, 10, 64)
	return id
}

func parsePositiveInt(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func buildPaginationMeta(page, limit, total int) models.PaginationMeta {
	totalPages := 0
	if total > 0 {
		totalPages = (total + limit - 1) / limit
	}

	return models.PaginationMeta{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	}
}
