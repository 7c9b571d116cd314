package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/telecarehq/chatsync/internal/models"
	"go.uber.org/zap"
)

const (
	EventSendMessage = "sendMessage"
	EventAck         = "ack"
	EventChatError   = "patient_chat_error"
)

var (
	ErrSendInFlight     = errors.New("send already in flight")
	ErrConnectionClosed = errors.New("socket connection closed")
	ErrChatRejected     = errors.New("chat message rejected")
)

// Frame is the JSON envelope for every socket event in either direction.
type Frame struct {
	Event string          `json:"event"`
	AckID string          `json:"ackId,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OutboundMessage is the payload emitted with a sendMessage event. The
// server's ack carries back the persisted Message record.
type OutboundMessage struct {
	ReceiverID int64                  `json:"receiverId"`
	Content    string                 `json:"content"`
	Metadata   models.MessageMetadata `json:"metadata"`
}

type State int

const (
	StateComposing State = iota
	StateSending
	StateAcknowledged
	StateFailed
)

type chatError struct {
	Message string `json:"message"`
}

// Sender delivers composed messages over a long-lived websocket
// connection. The connection is dialed lazily on the first send and
// reused afterwards. Only one send may be in flight at a time; callers
// disable their submit control while InFlight reports true.
type Sender struct {
	url    string
	token  string
	dialer *websocket.Dialer
	logger *zap.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	connDone chan struct{}
	pending  map[string]chan models.Message
	errOnce  chan string
	inFlight bool
	state    State
}

func NewSender(socketURL, token string, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		url:     socketURL,
		token:   token,
		dialer:  websocket.DefaultDialer,
		logger:  logger,
		pending: make(map[string]chan models.Message),
		state:   StateComposing,
	}
}

func (s *Sender) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Sender) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Send emits one sendMessage event and blocks until the server ack, a
// patient_chat_error event, connection loss, or ctx cancellation. The
// error listener is one-shot: registered before the emit and dropped
// after either outcome, so a later send never observes this send's
// failure.
func (s *Sender) Send(ctx context.Context, out OutboundMessage) (*models.Message, error) {
	ackID := uuid.NewString()
	ackCh := make(chan models.Message, 1)
	errCh := make(chan string, 1)

	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return nil, ErrSendInFlight
	}
	s.inFlight = true
	s.state = StateSending
	s.pending[ackID] = ackCh
	s.errOnce = errCh
	s.mu.Unlock()

	finish := func(state State) {
		s.mu.Lock()
		delete(s.pending, ackID)
		if s.errOnce == errCh {
			s.errOnce = nil
		}
		s.inFlight = false
		s.state = state
		s.mu.Unlock()
	}

	conn, connDone, err := s.ensureConn(ctx)
	if err != nil {
		finish(StateFailed)
		return nil, fmt.Errorf("open socket: %w", err)
	}

	data, err := json.Marshal(out)
	if err != nil {
		finish(StateFailed)
		return nil, fmt.Errorf("marshal outbound message: %w", err)
	}
	payload, err := json.Marshal(Frame{Event: EventSendMessage, AckID: ackID, Data: data})
	if err != nil {
		finish(StateFailed)
		return nil, fmt.Errorf("marshal frame: %w", err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		finish(StateFailed)
		return nil, fmt.Errorf("emit message: %w", err)
	}

	select {
	case message := <-ackCh:
		finish(StateAcknowledged)
		return &message, nil
	case reason := <-errCh:
		finish(StateFailed)
		return nil, fmt.Errorf("%w: %s", ErrChatRejected, reason)
	case <-connDone:
		finish(StateFailed)
		return nil, ErrConnectionClosed
	case <-ctx.Done():
		finish(StateFailed)
		return nil, ctx.Err()
	}
}

func (s *Sender) ensureConn(ctx context.Context) (*websocket.Conn, chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return s.conn, s.connDone, nil
	}

	endpoint := s.url
	if s.token != "" {
		u, err := url.Parse(s.url)
		if err != nil {
			return nil, nil, fmt.Errorf("parse socket url: %w", err)
		}
		q := u.Query()
		q.Set("token", s.token)
		u.RawQuery = q.Encode()
		endpoint = u.String()
	}

	conn, _, err := s.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, nil, err
	}

	done := make(chan struct{})
	s.conn = conn
	s.connDone = done
	go s.readLoop(conn, done)
	return conn, done, nil
}

func (s *Sender) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer func() {
		close(done)
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
			s.connDone = nil
		}
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("socket read failed", zap.Error(err))
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(payload, &frame); err != nil {
			s.logger.Warn("invalid socket frame", zap.Error(err))
			continue
		}

		switch frame.Event {
		case EventAck:
			s.mu.Lock()
			ackCh, ok := s.pending[frame.AckID]
			if ok {
				delete(s.pending, frame.AckID)
			}
			s.mu.Unlock()
			if !ok {
				continue
			}

			var message models.Message
			if err := json.Unmarshal(frame.Data, &message); err != nil {
				s.logger.Warn("invalid ack payload", zap.Error(err))
				continue
			}
			ackCh <- message

		case EventChatError:
			var failure chatError
			if err := json.Unmarshal(frame.Data, &failure); err != nil {
				failure.Message = "unknown chat error"
			}

			s.mu.Lock()
			errCh := s.errOnce
			s.errOnce = nil
			s.mu.Unlock()
			if errCh != nil {
				errCh <- failure.Message
			}

		default:
			s.logger.Debug("ignoring socket event", zap.String("event", frame.Event))
		}
	}
}

// Close tears down the connection; a blocked Send observes
// ErrConnectionClosed through the read loop shutdown.
func (s *Sender) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}
