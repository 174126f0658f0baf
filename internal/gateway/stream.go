package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// StreamConfig configures the fill-event stream client.
type StreamConfig struct {
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is the maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is the interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is the timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is the timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultStreamConfig returns default stream configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// streamMessage is the wire format of one broker order notification.
type streamMessage struct {
	Type      string  `json:"type"`
	OrderID   string  `json:"order_id"`
	ClientID  string  `json:"client_id"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp_ms"`
}

// EventStream maintains a websocket connection to the broker's order
// notification endpoint and forwards decoded fill/cancel events. It is the
// event source behind any live Gateway implementation; order placement
// itself goes over the broker's request API.
type EventStream struct {
	endpoint string
	config   StreamConfig
	logger   *log.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewEventStream connects to the endpoint and starts the read and ping loops.
func NewEventStream(ctx context.Context, endpoint string, config *StreamConfig, logger *log.Logger) (*EventStream, error) {
	cfg := DefaultStreamConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.Default()
	}

	s := &EventStream{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger,
		events:   make(chan Event, 1024),
		done:     make(chan struct{}),
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go s.readLoop()

	s.wg.Add(1)
	go s.pingLoop()

	return s, nil
}

// Events returns the decoded fill/cancel stream.
func (s *EventStream) Events() <-chan Event {
	return s.events
}

// Close shuts down the stream and its goroutines.
func (s *EventStream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	close(s.events)
	return nil
}

// connect establishes the websocket connection.
func (s *EventStream) connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	s.conn = conn
	return nil
}

// readLoop reads and decodes messages, reconnecting on failure.
func (s *EventStream) readLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			if !s.reconnect() {
				return
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}
			s.logger.Printf("stream read error: %v", err)
			if !s.reconnect() {
				return
			}
			continue
		}

		var msg streamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Printf("stream decode error: %v", err)
			continue
		}

		ev, ok := decodeStreamMessage(msg)
		if !ok {
			continue
		}

		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

// decodeStreamMessage maps a wire message to an Event.
func decodeStreamMessage(msg streamMessage) (Event, bool) {
	var et EventType
	switch msg.Type {
	case "fill":
		et = EventFill
	case "cancel":
		et = EventCancel
	default:
		return Event{}, false
	}

	return Event{
		Type:   et,
		Handle: OrderHandle{OrderID: msg.OrderID, ClientID: msg.ClientID},
		Price:  msg.Price,
		Time:   time.UnixMilli(msg.Timestamp).UTC(),
	}, true
}

// reconnect retries the connection with exponential backoff. Returns false
// when the stream was closed while waiting.
func (s *EventStream) reconnect() bool {
	delay := s.config.ReconnectDelay

	for {
		select {
		case <-s.done:
			return false
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := s.connect(ctx)
		cancel()

		if err == nil {
			s.logger.Printf("stream reconnected to %s", s.endpoint)
			return true
		}

		s.logger.Printf("stream reconnect failed: %v", err)
		delay *= 2
		if delay > s.config.MaxReconnectDelay {
			delay = s.config.MaxReconnectDelay
		}
	}
}

// pingLoop keeps the connection alive.
func (s *EventStream) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			conn := s.conn
			if conn != nil {
				conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					s.logger.Printf("stream ping error: %v", err)
				}
			}
			s.connMu.Unlock()
		}
	}
}
