// Command wsclient drives one spoken turn against a running server: it opens a
// session, streams an audio file over the WebSocket and saves the reply audio.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"
)

type createSessionResponse struct {
	Session struct {
		ID        string `json:"id"`
		LevelCode string `json:"level"`
		ProgramID uint   `json:"program_id"`
	} `json:"session"`
	Token string `json:"token"`
}

func main() {
	serverURL := pflag.String("server", "http://localhost:8080", "server base URL")
	level := pflag.String("level", "A1", "CEFR level of the session")
	audioPath := pflag.String("audio", "", "audio file to send as the learner's turn (required)")
	encoding := pflag.String("encoding", "WAV", "encoding of the audio file")
	apiKey := pflag.String("api-key", os.Getenv("GROQ_API_KEY"), "LLM key sent with the turn")
	outPath := pflag.String("out", "reply.mp3", "where to write the spoken reply")
	review := pflag.Bool("review", false, "ask for coach feedback after the turn")
	pflag.Parse()

	if *audioPath == "" {
		log.Fatal("--audio is required")
	}
	audio, err := os.ReadFile(*audioPath)
	if err != nil {
		log.Fatalf("Failed to read audio: %v", err)
	}

	// Step 1: Create a session
	fmt.Println("Step 1: Creating session...")

	reqBody, _ := json.Marshal(map[string]string{"level": *level})
	resp, err := http.Post(*serverURL+"/api/v1/sessions", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		log.Fatalf("Session creation failed with status: %d", resp.StatusCode)
	}

	var session createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		log.Fatalf("Failed to decode session response: %v", err)
	}
	fmt.Printf("✓ Session %s (level %s, program %d)\n", session.Session.ID, session.Session.LevelCode, session.Session.ProgramID)

	// Step 2: Connect to WebSocket with token
	fmt.Println("Step 2: Connecting to WebSocket with token...")

	base, err := url.Parse(*serverURL)
	if err != nil {
		log.Fatalf("Invalid server URL: %v", err)
	}
	wsURL := url.URL{Scheme: strings.Replace(base.Scheme, "http", "ws", 1), Host: base.Host, Path: "/ws"}
	q := wsURL.Query()
	q.Set("token", session.Token)
	wsURL.RawQuery = q.Encode()

	conn, wsResp, err := websocket.DefaultDialer.Dial(wsURL.String(), nil)
	if err != nil {
		if wsResp != nil {
			log.Fatalf("WebSocket connection failed with status %d: %v", wsResp.StatusCode, err)
		}
		log.Fatalf("WebSocket connection failed: %v", err)
	}
	defer conn.Close()

	fmt.Println("✓ WebSocket connection successful!")

	// Step 3: Stream the recording
	fmt.Printf("Step 3: Sending %d bytes of %s audio...\n", len(audio), *encoding)

	if err := conn.WriteJSON(map[string]string{"type": "listening_start", "encoding": *encoding}); err != nil {
		log.Fatalf("Failed to send listening_start: %v", err)
	}
	expect(conn, "listening_start")

	const chunkSize = 16 * 1024
	for offset := 0; offset < len(audio); offset += chunkSize {
		end := min(offset+chunkSize, len(audio))
		if err := conn.WriteMessage(websocket.BinaryMessage, audio[offset:end]); err != nil {
			log.Fatalf("Failed to send audio chunk: %v", err)
		}
	}
	if err := conn.WriteJSON(map[string]string{"type": "listening_end", "api_key": *apiKey}); err != nil {
		log.Fatalf("Failed to send listening_end: %v", err)
	}

	// Step 4: Read the transcription and the reply
	fmt.Println("Step 4: Waiting for the reply...")

	var reply bytes.Buffer
	for done := false; !done; {
		conn.SetReadDeadline(time.Now().Add(2 * time.Minute))
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			log.Fatalf("Failed to read response: %v", err)
		}
		if messageType == websocket.BinaryMessage {
			reply.Write(message)
			continue
		}

		msg := decode(message)
		switch msg["type"] {
		case "transcription", "speaking_start":
			turn, _ := msg["turn"].(map[string]interface{})
			fmt.Printf("✓ %s: %v\n", turn["speaker"], turn["text"])
			if speechErr, ok := msg["speech_error"]; ok {
				fmt.Printf("! reply was not spoken: %v\n", speechErr)
			}
		case "speaking_end":
			done = true
		case "error":
			log.Fatalf("Server error %v: %v", msg["error_code"], msg["message"])
		}
	}

	if reply.Len() > 0 {
		if err := os.WriteFile(*outPath, reply.Bytes(), 0o644); err != nil {
			log.Fatalf("Failed to save reply audio: %v", err)
		}
		fmt.Printf("✓ Saved %d bytes of reply audio to %s\n", reply.Len(), *outPath)
	}

	if *review {
		fmt.Println("Step 5: Asking for feedback...")
		if err := conn.WriteJSON(map[string]string{"type": "review", "api_key": *apiKey}); err != nil {
			log.Fatalf("Failed to send review: %v", err)
		}
		msg := expect(conn, "review_result")
		fmt.Printf("✓ Feedback:\n%v\n", msg["feedback"])
	}
}

func decode(message []byte) map[string]interface{} {
	var msg map[string]interface{}
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Fatalf("Invalid frame %q: %v", message, err)
	}
	return msg
}

// expect reads text frames until one of type want arrives
func expect(conn *websocket.Conn, want string) map[string]interface{} {
	for {
		conn.SetReadDeadline(time.Now().Add(2 * time.Minute))
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			log.Fatalf("Failed to read response: %v", err)
		}
		if messageType != websocket.TextMessage {
			continue
		}
		msg := decode(message)
		if msg["type"] == "error" {
			log.Fatalf("Server error %v: %v", msg["error_code"], msg["message"])
		}
		if msg["type"] == want {
			return msg
		}
	}
}
