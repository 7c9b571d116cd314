package stubserver

import (
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/telecarehq/chatsync/internal/middleware"
	"github.com/telecarehq/chatsync/internal/models"
	"go.uber.org/zap"
)

// Server is an in-memory implementation of the chat backend contracts,
// used by the CLI for local development and by integration tests. State
// lives in maps; nothing survives a restart.
type Server struct {
	app    *fiber.App
	secret string
	logger *zap.Logger

	mu        sync.Mutex
	seq       int64
	threads   map[models.Role][]*threadState
	directory []models.DirectoryUser
	uploads   map[string][]byte
}

// threadState is one conversation between the authenticated staff user
// and a counterpart, newest-activity-first within its role partition.
type threadState struct {
	counterpart models.ChatUser
	room        models.ChatRoom
	messages    []models.Message
	unread      int
	paymentType string
	planName    string
}

type ThreadSeed struct {
	Counterpart models.ChatUser
	RoomStatus  string
	Messages    []models.Message
	Unread      int
	PaymentType string
	PlanName    string
}

func New(secret string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		secret:  secret,
		logger:  logger,
		threads: make(map[models.Role][]*threadState),
		uploads: make(map[string][]byte),
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(cors.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/uploads/:name", s.serveUpload)

	api := app.Group("/api/v1", middleware.AuthRequired(secret))
	api.Get("/conversations", s.listConversations)
	api.Get("/messages/:userId", s.getMessages)
	api.Post("/blast-message", s.sendBlast)
	api.Post("/uploads", s.uploadFile)
	api.Get("/directory", s.searchDirectory)

	s.registerSocket(app)

	s.app = app
	return s
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	s.logger.Info("stub chat backend listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

// Seed installs conversations for the authenticated user, ordered as
// given (first seed = most recent activity).
func (s *Server) Seed(seeds ...ThreadSeed) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, seed := range seeds {
		status := seed.RoomStatus
		if status == "" {
			status = models.RoomStatusUnresolved
		}
		s.seq++
		thread := &threadState{
			counterpart: seed.Counterpart,
			room:        models.ChatRoom{ID: s.seq, Status: status},
			unread:      seed.Unread,
			paymentType: seed.PaymentType,
			planName:    seed.PlanName,
		}
		for _, message := range seed.Messages {
			if message.ID == 0 {
				s.seq++
				message.ID = s.seq
			}
			thread.messages = append(thread.messages, message)
		}
		role := seed.Counterpart.Role
		s.threads[role] = append(s.threads[role], thread)
	}
}

func (s *Server) SeedDirectory(users ...models.DirectoryUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.directory = append(s.directory, users...)
}

// findThread locates a conversation by counterpart id across all role
// partitions. Caller holds s.mu.
func (s *Server) findThread(counterpartID int64) (*threadState, models.Role) {
	for role, threads := range s.threads {
		for _, thread := range threads {
			if thread.counterpart.ID == counterpartID {
				return thread, role
			}
		}
	}
	return nil, ""
}

// touchThread moves a conversation to the front of its partition; the
// backend orders lists by most recent activity and clients rely on that
// ordering as-is. Caller holds s.mu.
func (s *Server) touchThread(thread *threadState, role models.Role) {
	threads := s.threads[role]
	for i, candidate := range threads {
		if candidate == thread {
			copy(threads[1:i+1], threads[:i])
			threads[0] = thread
			return
		}
	}
}

func (thread *threadState) conversation() models.Conversation {
	conversation := models.Conversation{
		OtherUser:   thread.counterpart,
		ChatRoom:    thread.room,
		UnreadCount: thread.unread,
	}
	if len(thread.messages) > 0 {
		last := thread.messages[len(thread.messages)-1]
		conversation.LastMessage = &last
	}
	return conversation
}

func matchesSearch(user models.ChatUser, search string) bool {
	if search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(user.FullName()), strings.ToLower(search))
}
