package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/discute/domain"
	"github.com/satriahrh/discute/domain/entities"
	"github.com/satriahrh/discute/domain/repositories"
	"github.com/satriahrh/discute/usecase"
)

// fakeConversation records what the socket asked for
type fakeConversation struct {
	mu        sync.Mutex
	recording bool
	audio     []byte
	opts      usecase.TurnOptions
	reply     []byte
	reviewErr error
	turnErr   error
}

func (f *fakeConversation) GetSession(ctx context.Context, id string) (*entities.Session, error) {
	if id != "session-1" {
		return nil, domain.ErrSessionNotFound
	}
	return &entities.Session{ID: id, State: entities.StateIdle}, nil
}

func (f *fakeConversation) BeginRecording(ctx context.Context, id string) (*entities.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recording {
		return nil, domain.ErrTurnInProgress
	}
	f.recording = true
	f.audio = nil
	return &entities.Session{ID: id, State: entities.StateRecording}, nil
}

func (f *fakeConversation) AppendAudio(ctx context.Context, id string, chunk []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.recording {
		return domain.ErrInvalidTransition
	}
	f.audio = append(f.audio, chunk...)
	return nil
}

func (f *fakeConversation) FinishRecording(ctx context.Context, id string, opts usecase.TurnOptions) (*usecase.TurnResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recording = false
	f.opts = opts
	if f.turnErr != nil {
		return nil, f.turnErr
	}
	if len(f.audio) == 0 {
		return nil, domain.ErrNoAudio
	}
	session := &entities.Session{ID: id, State: entities.StateIdle}
	user := session.AddTurn(entities.SpeakerMe, "Hello there", "ref-1", 1200)
	reply := session.AddTurn(entities.SpeakerYou, "Hi! How are you?", "ref-2", 0)
	return &usecase.TurnResult{
		Session: session,
		User:    user,
		Reply:   reply,
		Speech:  &repositories.Speech{Audio: f.reply, MIMEType: "audio/mpeg"},
	}, nil
}

func (f *fakeConversation) Review(ctx context.Context, id string, opts usecase.TurnOptions) (*usecase.ReviewResult, error) {
	if f.reviewErr != nil {
		return nil, f.reviewErr
	}
	return &usecase.ReviewResult{Feedback: "Well done."}, nil
}

func setupTestHub(t *testing.T, conv *fakeConversation) string {
	t.Helper()
	hub := NewHub(conv, HubConfig{ChunkSize: 1000}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	e := echo.New()
	e.GET("/ws/:id", func(c echo.Context) error {
		return hub.HandleWebSocket(c, c.Param("id"))
	})
	srv := httptest.NewServer(e)

	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-stopped
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial(%s) error = %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	messageType, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if messageType != websocket.TextMessage {
		t.Fatalf("expected text frame, got type %d", messageType)
	}
	var msg map[string]interface{}
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("invalid JSON frame %q: %v", payload, err)
	}
	return msg
}

func writeJSON(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
}

func TestHub_TurnOverSocket(t *testing.T) {
	conv := &fakeConversation{reply: make([]byte, 2500)}
	conn := dial(t, setupTestHub(t, conv)+"session-1")

	writeJSON(t, conn, map[string]string{"type": "listening_start", "encoding": "webm_opus", "mime_type": "audio/webm"})
	ack := readJSON(t, conn)
	if ack["type"] != "listening_start" || ack["state"] != string(entities.StateRecording) {
		t.Fatalf("unexpected ack %v", ack)
	}

	for i := 0; i < 3; i++ {
		if err := conn.WriteMessage(websocket.BinaryMessage, []byte("chunk")); err != nil {
			t.Fatal(err)
		}
	}
	writeJSON(t, conn, map[string]string{"type": "listening_end", "api_key": "gsk_user"})

	transcription := readJSON(t, conn)
	if transcription["type"] != "transcription" {
		t.Fatalf("expected transcription, got %v", transcription)
	}
	turn := transcription["turn"].(map[string]interface{})
	if turn["text"] != "Hello there" || turn["speaker"] != "me" {
		t.Errorf("unexpected user turn %v", turn)
	}

	start := readJSON(t, conn)
	if start["type"] != "speaking_start" {
		t.Fatalf("expected speaking_start, got %v", start)
	}
	if start["audio_bytes"] != float64(2500) || start["mime_type"] != "audio/mpeg" {
		t.Errorf("unexpected speaking_start %v", start)
	}

	received := 0
	frames := 0
	for received < 2500 {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatal(err)
		}
		if messageType != websocket.BinaryMessage {
			t.Fatalf("expected binary audio frame, got type %d", messageType)
		}
		received += len(payload)
		frames++
	}
	if frames != 3 {
		t.Errorf("audio frames = %d, want 3", frames)
	}

	end := readJSON(t, conn)
	if end["type"] != "speaking_end" || end["state"] != string(entities.StateIdle) {
		t.Errorf("unexpected speaking_end %v", end)
	}

	conv.mu.Lock()
	defer conv.mu.Unlock()
	if string(conv.audio) != "chunkchunkchunk" {
		t.Errorf("recorded audio = %q", conv.audio)
	}
	if conv.opts.APIKey != "gsk_user" || conv.opts.Encoding != "WEBM_OPUS" || conv.opts.MIMEType != "audio/webm" {
		t.Errorf("unexpected turn options %+v", conv.opts)
	}
}

func TestHub_ErrorsAreFramed(t *testing.T) {
	conv := &fakeConversation{reviewErr: domain.ErrEmptyConversation}
	conn := dial(t, setupTestHub(t, conv)+"session-1")

	writeJSON(t, conn, map[string]string{"type": "review"})
	msg := readJSON(t, conn)
	if msg["type"] != "error" || msg["error_code"] != domain.CodeEmptyConversation {
		t.Errorf("unexpected review error frame %v", msg)
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("early")); err != nil {
		t.Fatal(err)
	}
	msg = readJSON(t, conn)
	if msg["error_code"] != domain.CodeInvalidTransition {
		t.Errorf("unexpected append error frame %v", msg)
	}

	writeJSON(t, conn, map[string]string{"type": "listening_start"})
	readJSON(t, conn)
	writeJSON(t, conn, map[string]string{"type": "listening_end"})
	msg = readJSON(t, conn)
	if msg["error_code"] != domain.CodeNoAudio {
		t.Errorf("unexpected empty turn frame %v", msg)
	}

	writeJSON(t, conn, map[string]string{"type": "dance"})
	msg = readJSON(t, conn)
	if msg["error_code"] != "invalid_message" {
		t.Errorf("unexpected invalid message frame %v", msg)
	}
}

func TestHub_ReviewAndPing(t *testing.T) {
	conn := dial(t, setupTestHub(t, &fakeConversation{})+"session-1")

	writeJSON(t, conn, map[string]string{"type": "ping", "data": "hi"})
	msg := readJSON(t, conn)
	if msg["type"] != "pong" || msg["data"] != "hi" {
		t.Errorf("unexpected pong %v", msg)
	}

	writeJSON(t, conn, map[string]string{"type": "review"})
	msg = readJSON(t, conn)
	if msg["type"] != "review_result" || msg["feedback"] != "Well done." {
		t.Errorf("unexpected review result %v", msg)
	}
}

func TestHub_UnknownSessionRejected(t *testing.T) {
	url := setupTestHub(t, &fakeConversation{}) + "nope"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("Dial() should fail for an unknown session")
	}
	if resp == nil || resp.StatusCode < 400 {
		t.Errorf("expected an HTTP error response, got %v", resp)
	}
}

func TestHub_NewConnectionReplacesOld(t *testing.T) {
	url := setupTestHub(t, &fakeConversation{}) + "session-1"
	first := dial(t, url)
	second := dial(t, url)

	first.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := first.ReadMessage(); err == nil {
		t.Error("first connection should be closed once replaced")
	}

	writeJSON(t, second, map[string]string{"type": "ping"})
	if msg := readJSON(t, second); msg["type"] != "pong" {
		t.Errorf("second connection should stay usable, got %v", msg)
	}
}
