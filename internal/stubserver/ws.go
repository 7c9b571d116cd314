package stubserver

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/telecarehq/chatsync/internal/middleware"
	"github.com/telecarehq/chatsync/internal/models"
	"github.com/telecarehq/chatsync/internal/socket"
	"github.com/telecarehq/chatsync/pkg/utils"
	"go.uber.org/zap"
)

func (s *Server) registerSocket(app *fiber.App) {
	app.Use("/ws/chat", s.socketAuth)
	app.Get("/ws/chat", websocket.New(s.handleSocket))
}

func (s *Server) socketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	claims, err := utils.ValidateToken(middleware.TokenFromRequest(c), s.secret)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
	}

	c.Locals("user_id", claims.UserID)
	c.Locals("role", claims.Role)
	return c.Next()
}

func (s *Server) handleSocket(conn *websocket.Conn) {
	defer conn.Close()

	rawID, _ := conn.Locals("user_id").(string)
	senderID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		s.writeChatError(conn, "invalid user")
		return
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame socket.Frame
		if err := json.Unmarshal(payload, &frame); err != nil {
			s.writeChatError(conn, "invalid frame")
			continue
		}
		if frame.Event != socket.EventSendMessage {
			s.writeChatError(conn, "unsupported event")
			continue
		}

		var out socket.OutboundMessage
		if err := json.Unmarshal(frame.Data, &out); err != nil {
			s.writeChatError(conn, "invalid message payload")
			continue
		}

		message, err := s.persistMessage(senderID, out)
		if err != nil {
			s.writeChatError(conn, err.Error())
			continue
		}

		s.writeFrame(conn, socket.Frame{
			Event: socket.EventAck,
			AckID: frame.AckID,
			Data:  mustMarshal(message),
		})
	}
}

func (s *Server) persistMessage(senderID int64, out socket.OutboundMessage) (*models.Message, error) {
	content := strings.TrimSpace(out.Content)
	if content == "" {
		return nil, errors.New("message content is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	thread, role := s.findThread(out.ReceiverID)
	if thread == nil {
		return nil, errors.New("unknown receiver")
	}

	s.seq++
	message := models.Message{
		ID:         s.seq,
		SenderID:   senderID,
		ReceiverID: out.ReceiverID,
		Content:    content,
		Metadata:   out.Metadata,
		CreatedAt:  time.Now().UTC(),
	}
	thread.messages = append(thread.messages, message)
	s.touchThread(thread, role)
	return &message, nil
}

func (s *Server) writeChatError(conn *websocket.Conn, reason string) {
	s.writeFrame(conn, socket.Frame{
		Event: socket.EventChatError,
		Data:  mustMarshal(fiber.Map{"message": reason}),
	})
}

func (s *Server) writeFrame(conn *websocket.Conn, frame socket.Frame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		s.logger.Error("encode socket frame", zap.Error(err))
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		s.logger.Debug("socket write failed", zap.Error(err))
	}
}

func mustMarshal(v any) json.RawMessage {
	payload, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return payload
}
