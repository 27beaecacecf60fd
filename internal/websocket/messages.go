package websocket

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/satriahrh/discute/domain"
	"github.com/satriahrh/discute/domain/entities"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Supported message types
const (
	MessageTypeListeningStart MessageType = "listening_start"
	MessageTypeListeningEnd   MessageType = "listening_end"
	MessageTypeTranscription  MessageType = "transcription"
	MessageTypeSpeakingStart  MessageType = "speaking_start"
	MessageTypeSpeakingEnd    MessageType = "speaking_end"
	MessageTypeReview         MessageType = "review"
	MessageTypeReviewResult   MessageType = "review_result"
	MessageTypePing           MessageType = "ping"
	MessageTypePong           MessageType = "pong"
	MessageTypeError          MessageType = "error"
)

var validEncodings = map[string]bool{
	"WAV": true, "LINEAR16": true, "FLAC": true, "MULAW": true,
	"OGG_OPUS": true, "WEBM_OPUS": true, "WEBM": true, "MP3": true,
}

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp,omitempty"`
	SessionID string      `json:"session_id,omitempty"`
}

// InboundMessage is any control message sent by the browser
type InboundMessage struct {
	BaseMessage
	// Encoding and MIMEType describe the audio of the coming recording
	Encoding string `json:"encoding,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
	// APIKey overrides the server's LLM key for this turn only
	APIKey string `json:"api_key,omitempty"`
	Data   string `json:"data,omitempty"`
}

// ListeningMessage acknowledges listening_start and reports the session state
type ListeningMessage struct {
	BaseMessage
	State entities.TurnState `json:"state"`
}

// TranscriptionMessage carries the learner's transcribed turn
type TranscriptionMessage struct {
	BaseMessage
	Turn entities.Turn `json:"turn"`
}

// SpeakingStartMessage announces the assistant's reply. Binary audio frames
// follow when AudioBytes is positive.
type SpeakingStartMessage struct {
	BaseMessage
	Turn        entities.Turn `json:"turn"`
	MIMEType    string        `json:"mime_type,omitempty"`
	AudioBytes  int           `json:"audio_bytes"`
	SpeechError string        `json:"speech_error,omitempty"`
}

// ReviewResultMessage carries the coach's feedback
type ReviewResultMessage struct {
	BaseMessage
	Feedback string `json:"feedback"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

// ParseInbound decodes and validates a control message from the browser
func ParseInbound(messageBytes []byte) (*InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(messageBytes, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch msg.Type {
	case MessageTypeListeningStart:
		if msg.Encoding != "" {
			msg.Encoding = strings.ToUpper(msg.Encoding)
			if !validEncodings[msg.Encoding] {
				return nil, fmt.Errorf("unsupported encoding: %s", msg.Encoding)
			}
		}
	case MessageTypeListeningEnd, MessageTypeReview, MessageTypePing:
	case "":
		return nil, fmt.Errorf("message type is required")
	default:
		return nil, fmt.Errorf("unsupported message type: %s", msg.Type)
	}
	return &msg, nil
}

func base(t MessageType, sessionID string) BaseMessage {
	return BaseMessage{
		Type:      t,
		Timestamp: time.Now().Format(time.RFC3339),
		SessionID: sessionID,
	}
}

// CreateErrorMessage builds an error frame carrying the error's stable code
func CreateErrorMessage(sessionID string, err error) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: base(MessageTypeError, sessionID),
		Code:        domain.ErrorCode(err),
		Message:     err.Error(),
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(sessionID, data string) *PongMessage {
	return &PongMessage{
		BaseMessage: base(MessageTypePong, sessionID),
		Data:        data,
	}
}
