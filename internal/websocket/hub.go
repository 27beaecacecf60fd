package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/discute/domain/entities"
	"github.com/satriahrh/discute/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks

	// Reply audio is sent back in frames of this size.
	defaultChunkSize = 32 * 1024

	// A turn runs STT, LLM and TTS back to back.
	turnTimeout = 2 * time.Minute
)

// Conversation is the part of the conversation service driven over a socket
type Conversation interface {
	GetSession(ctx context.Context, id string) (*entities.Session, error)
	BeginRecording(ctx context.Context, id string) (*entities.Session, error)
	AppendAudio(ctx context.Context, id string, chunk []byte) error
	FinishRecording(ctx context.Context, id string, opts usecase.TurnOptions) (*usecase.TurnResult, error)
	Review(ctx context.Context, id string, opts usecase.TurnOptions) (*usecase.ReviewResult, error)
}

var _ Conversation = (*usecase.ConversationService)(nil)

// HubConfig tunes the socket endpoint
type HubConfig struct {
	// AllowedOrigins lists the browser origins allowed to connect. Empty allows any.
	AllowedOrigins []string
	ChunkSize      int
}

// Hub maintains the set of active clients, one per session.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed when Run returns.
	done chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	conversation Conversation
	upgrader     websocket.Upgrader
	chunkSize    int

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(conversation Conversation, cfg HubConfig, logger *zap.Logger) *Hub {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}

	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = true
	}

	return &Hub{
		clients:      make(map[string]*Client),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		done:         make(chan struct{}),
		conversation: conversation,
		chunkSize:    cfg.ChunkSize,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
}

// Run starts the hub's main loop and blocks until ctx is done
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[client.sessionID]; ok && old != client {
				// A newer tab for the same session takes over.
				old.close()
			}
			h.clients[client.sessionID] = client
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("sessionID", client.sessionID))

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.sessionID]; ok && current == client {
				delete(h.clients, client.sessionID)
			}
			h.mu.Unlock()
			client.close()
			h.logger.Info("Client unregistered", zap.String("sessionID", client.sessionID))

		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				client.close()
				delete(h.clients, id)
			}
			h.mu.Unlock()
			h.logger.Info("Hub stopped")
			return nil
		}
	}
}

// ActiveSessions returns the ids of sessions with a connected client
func (h *Hub) ActiveSessions() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	sessionID string

	logger *zap.Logger

	// Cancelled when the read side goes away; in-flight turns stop with it.
	ctx    context.Context
	cancel context.CancelFunc

	mutex    sync.Mutex
	closed   bool
	encoding string
	mimeType string
	turns    sync.WaitGroup
}

// HandleWebSocket upgrades the request and attaches it to an authorized session
func (h *Hub) HandleWebSocket(c echo.Context, sessionID string) error {
	ctx := c.Request().Context()
	if _, err := h.conversation.GetSession(ctx, sessionID); err != nil {
		return err
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	clientCtx, cancel := context.WithCancel(context.Background())
	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan WriteData, 256),
		sessionID: sessionID,
		logger:    h.logger.With(zap.String("sessionID", sessionID)),
		ctx:       clientCtx,
		cancel:    cancel,
	}

	select {
	case h.register <- client:
	case <-h.done:
		cancel()
		conn.Close()
		return nil
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// close stops outbound traffic. Safe to call more than once.
func (c *Client) close() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	close(c.send)
}

// enqueue queues a frame without blocking; frames for a closed or stalled
// client are dropped
func (c *Client) enqueue(data WriteData) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		c.logger.Warn("Dropping frame for slow client", zap.Int("size", len(data.Payload)))
		return false
	}
}

func (c *Client) sendJSON(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to encode message", zap.Error(err))
		return
	}
	c.enqueue(WriteData{Type: websocket.TextMessage, Payload: payload})
}

func (c *Client) sendError(err error) {
	c.sendJSON(CreateErrorMessage(c.sessionID, err))
}

// readPump pumps messages from the websocket connection to the conversation.
func (c *Client) readPump() {
	defer func() {
		c.cancel()
		c.turns.Wait()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
			c.close()
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			c.processBinaryAudioChunk(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processMessage processes control messages from the browser
func (c *Client) processMessage(message []byte) {
	msg, err := ParseInbound(message)
	if err != nil {
		c.logger.Warn("Rejected message", zap.Error(err))
		c.sendJSON(&ErrorMessage{
			BaseMessage: base(MessageTypeError, c.sessionID),
			Code:        "invalid_message",
			Message:     err.Error(),
		})
		return
	}

	switch msg.Type {
	case MessageTypeListeningStart:
		c.handleListeningStart(msg)
	case MessageTypeListeningEnd:
		c.spawn(func() { c.handleListeningEnd(msg) })
	case MessageTypeReview:
		c.spawn(func() { c.handleReview(msg) })
	case MessageTypePing:
		c.sendJSON(CreatePongMessage(c.sessionID, msg.Data))
	}
}

// spawn runs slow work off the read loop so pings keep flowing
func (c *Client) spawn(fn func()) {
	c.turns.Add(1)
	go func() {
		defer c.turns.Done()
		fn()
	}()
}

// processBinaryAudioChunk appends recorded audio to the pending buffer
func (c *Client) processBinaryAudioChunk(data []byte) {
	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()

	if err := c.hub.conversation.AppendAudio(ctx, c.sessionID, data); err != nil {
		c.logger.Warn("Failed to append audio chunk", zap.Int("size", len(data)), zap.Error(err))
		c.sendError(err)
		return
	}
	c.logger.Debug("Received binary audio chunk", zap.Int("size", len(data)))
}

// handleListeningStart moves the session into recording
func (c *Client) handleListeningStart(msg *InboundMessage) {
	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()

	session, err := c.hub.conversation.BeginRecording(ctx, c.sessionID)
	if err != nil {
		c.logger.Warn("Failed to start recording", zap.Error(err))
		c.sendError(err)
		return
	}

	c.mutex.Lock()
	c.encoding = msg.Encoding
	c.mimeType = msg.MIMEType
	c.mutex.Unlock()

	c.logger.Info("Recording started", zap.String("encoding", msg.Encoding))
	c.sendJSON(&ListeningMessage{
		BaseMessage: base(MessageTypeListeningStart, c.sessionID),
		State:       session.State,
	})
}

// handleListeningEnd runs the turn and streams the reply back
func (c *Client) handleListeningEnd(msg *InboundMessage) {
	ctx, cancel := context.WithTimeout(c.ctx, turnTimeout)
	defer cancel()

	c.mutex.Lock()
	opts := usecase.TurnOptions{APIKey: msg.APIKey, Encoding: c.encoding, MIMEType: c.mimeType}
	c.mutex.Unlock()

	result, err := c.hub.conversation.FinishRecording(ctx, c.sessionID, opts)
	if err != nil {
		c.logger.Warn("Turn failed", zap.Error(err))
		c.sendError(err)
		return
	}

	c.sendJSON(&TranscriptionMessage{
		BaseMessage: base(MessageTypeTranscription, c.sessionID),
		Turn:        result.User,
	})

	start := &SpeakingStartMessage{
		BaseMessage: base(MessageTypeSpeakingStart, c.sessionID),
		Turn:        result.Reply,
		SpeechError: result.SpeechError,
	}
	if result.Speech != nil {
		start.MIMEType = result.Speech.MIMEType
		start.AudioBytes = len(result.Speech.Audio)
	}
	c.sendJSON(start)

	if result.Speech != nil {
		audio := result.Speech.Audio
		for offset := 0; offset < len(audio); offset += c.hub.chunkSize {
			end := offset + c.hub.chunkSize
			if end > len(audio) {
				end = len(audio)
			}
			if !c.enqueue(WriteData{Type: websocket.BinaryMessage, Payload: audio[offset:end]}) {
				return
			}
		}
	}

	c.sendJSON(&ListeningMessage{
		BaseMessage: base(MessageTypeSpeakingEnd, c.sessionID),
		State:       result.Session.State,
	})

	c.logger.Info("Reply sent",
		zap.Int("audioBytes", start.AudioBytes),
		zap.Int("turns", len(result.Session.Turns)))
}

// handleReview asks the coach for feedback
func (c *Client) handleReview(msg *InboundMessage) {
	ctx, cancel := context.WithTimeout(c.ctx, turnTimeout)
	defer cancel()

	result, err := c.hub.conversation.Review(ctx, c.sessionID, usecase.TurnOptions{APIKey: msg.APIKey})
	if err != nil {
		c.logger.Warn("Review failed", zap.Error(err))
		c.sendError(err)
		return
	}

	c.sendJSON(&ReviewResultMessage{
		BaseMessage: base(MessageTypeReviewResult, c.sessionID),
		Feedback:    result.Feedback,
	})
}
