package tts

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/discute/domain"
)

func TestNewElevenLabsTTS(t *testing.T) {
	logger := zaptest.NewLogger(t)

	// Test without API key
	_, err := NewElevenLabsTTS(ElevenLabsConfig{}, logger)
	if err == nil {
		t.Error("Expected error when API key is not set")
	}

	// Test with API key
	tts, err := NewElevenLabsTTS(ElevenLabsConfig{APIKey: "test-api-key"}, logger)
	if err != nil {
		t.Fatalf("Failed to create ElevenLabsTTS: %v", err)
	}

	if tts.apiKey != "test-api-key" {
		t.Errorf("Expected API key 'test-api-key', got '%s'", tts.apiKey)
	}

	if tts.voiceID != defaultVoiceID {
		t.Errorf("Expected default voice ID '%s', got '%s'", defaultVoiceID, tts.voiceID)
	}

	_, err = NewElevenLabsTTS(ElevenLabsConfig{APIKey: "k", Stability: 1.5}, logger)
	if err == nil {
		t.Error("Expected error for stability out of range")
	}
}

func TestElevenLabsTTS_VoiceSettings(t *testing.T) {
	var gotBody ElevenLabsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = io.WriteString(w, "ID3")
	}))
	defer srv.Close()

	tests := []struct {
		name          string
		config        ElevenLabsConfig
		wantStability float64
		wantClarity   float64
	}{
		{"defaults", ElevenLabsConfig{}, defaultStability, defaultClarity},
		{"configured", ElevenLabsConfig{Stability: 0.8, Clarity: 0.9}, 0.8, 0.9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.config.APIKey = "k"
			tt.config.APIBaseURL = srv.URL
			tts, err := NewElevenLabsTTS(tt.config, zaptest.NewLogger(t))
			if err != nil {
				t.Fatalf("Failed to create ElevenLabsTTS: %v", err)
			}
			if _, err := tts.Synthesize(context.Background(), "Hello", ""); err != nil {
				t.Fatalf("Synthesize() error = %v", err)
			}
			if gotBody.VoiceSettings.Stability != tt.wantStability {
				t.Errorf("stability = %f, want %f", gotBody.VoiceSettings.Stability, tt.wantStability)
			}
			if gotBody.VoiceSettings.SimilarityBoost != tt.wantClarity {
				t.Errorf("similarity_boost = %f, want %f", gotBody.VoiceSettings.SimilarityBoost, tt.wantClarity)
			}
		})
	}
}

func TestElevenLabsTTS_Synthesize_EmptyText(t *testing.T) {
	tts, err := NewElevenLabsTTS(ElevenLabsConfig{APIKey: "test-api-key"}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to create ElevenLabsTTS: %v", err)
	}

	ctx := context.Background()
	if _, err := tts.Synthesize(ctx, "", ""); err == nil {
		t.Error("Expected error for empty text")
	}
	if _, err := tts.Synthesize(ctx, "   ", ""); err == nil {
		t.Error("Expected error for whitespace-only text")
	}
}

func TestElevenLabsTTS_Synthesize(t *testing.T) {
	var gotPath, gotKey string
	var gotBody ElevenLabsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = io.WriteString(w, "ID3fakeaudio")
	}))
	defer srv.Close()

	tts, err := NewElevenLabsTTS(ElevenLabsConfig{APIKey: "k", APIBaseURL: srv.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to create ElevenLabsTTS: %v", err)
	}

	speech, err := tts.Synthesize(context.Background(), "Hello there", "cloned-voice")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(speech.Audio) != "ID3fakeaudio" {
		t.Errorf("unexpected audio %q", speech.Audio)
	}
	if speech.MIMEType != "audio/mpeg" {
		t.Errorf("MIMEType = %s, want audio/mpeg", speech.MIMEType)
	}
	if gotPath != "/text-to-speech/cloned-voice" {
		t.Errorf("path = %s", gotPath)
	}
	if gotKey != "k" {
		t.Errorf("xi-api-key = %s", gotKey)
	}
	if gotBody.Text != "Hello there" || gotBody.ModelID != defaultModelID {
		t.Errorf("unexpected request body %+v", gotBody)
	}

	// empty voice falls back to the configured one
	if _, err := tts.Synthesize(context.Background(), "Hi", ""); err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if !strings.HasSuffix(gotPath, defaultVoiceID) {
		t.Errorf("path = %s, want default voice", gotPath)
	}
}

func TestElevenLabsTTS_ErrorKinds(t *testing.T) {
	tests := []struct {
		status int
		want   domain.ServiceKind
	}{
		{http.StatusUnauthorized, domain.ServiceKindAuth},
		{http.StatusServiceUnavailable, domain.ServiceKindNetwork},
		{http.StatusUnprocessableEntity, domain.ServiceKindInvalidResponse},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = io.WriteString(w, `{"detail":"nope"}`)
		}))

		tts, err := NewElevenLabsTTS(ElevenLabsConfig{APIKey: "k", APIBaseURL: srv.URL}, zaptest.NewLogger(t))
		if err != nil {
			t.Fatalf("Failed to create ElevenLabsTTS: %v", err)
		}
		_, err = tts.Synthesize(context.Background(), "Hello", "")
		kind, ok := domain.ServiceErrorKind(err)
		if !ok || kind != tt.want {
			t.Errorf("status %d: kind = %s, want %s", tt.status, kind, tt.want)
		}
		srv.Close()
	}
}

func TestElevenLabsTTS_ListVoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/voices" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, `{"voices":[{"voice_id":"abc","name":"My Clone","category":"cloned"},{"voice_id":"def","name":"Rachel","category":"premade"}]}`)
	}))
	defer srv.Close()

	tts, err := NewElevenLabsTTS(ElevenLabsConfig{APIKey: "k", APIBaseURL: srv.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to create ElevenLabsTTS: %v", err)
	}

	voices, err := tts.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices() error = %v", err)
	}
	if len(voices) != 2 || voices[0].ID != "abc" || voices[0].Category != "cloned" {
		t.Errorf("unexpected voices %+v", voices)
	}
}

// Integration test - only runs if ELEVEN_LABS_API_KEY is set with real API key
func TestElevenLabsTTS_Synthesize_Integration(t *testing.T) {
	apiKey := os.Getenv("ELEVEN_LABS_API_KEY")
	if apiKey == "" || apiKey == "test-api-key" {
		t.Skip("Skipping integration test - set ELEVEN_LABS_API_KEY environment variable with real API key")
	}

	tts, err := NewElevenLabsTTS(ElevenLabsConfig{APIKey: apiKey}, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create ElevenLabsTTS: %v", err)
	}

	speech, err := tts.Synthesize(context.Background(), "Hello, this is a test.", "")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if len(speech.Audio) == 0 {
		t.Error("Expected audio data")
	}
}
