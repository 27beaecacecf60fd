package stt

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"cloud.google.com/go/speech/apiv1/speechpb"

	"github.com/satriahrh/discute/domain"
	"github.com/satriahrh/discute/domain/repositories"
)

func TestGetAudioEncoding(t *testing.T) {
	tests := []struct {
		input   string
		want    speechpb.RecognitionConfig_AudioEncoding
		wantErr bool
	}{
		{"WAV", speechpb.RecognitionConfig_LINEAR16, false},
		{"linear16", speechpb.RecognitionConfig_LINEAR16, false},
		{"WEBM_OPUS", speechpb.RecognitionConfig_WEBM_OPUS, false},
		{"FLAC", speechpb.RecognitionConfig_FLAC, false},
		{"AIFF", speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, true},
	}

	for _, tt := range tests {
		got, err := getAudioEncoding(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("getAudioEncoding(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("getAudioEncoding(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestClassifyGRPCError(t *testing.T) {
	tests := []struct {
		err  error
		want domain.ServiceKind
	}{
		{status.Error(codes.Unauthenticated, "no creds"), domain.ServiceKindAuth},
		{status.Error(codes.PermissionDenied, "denied"), domain.ServiceKindAuth},
		{status.Error(codes.InvalidArgument, "bad audio"), domain.ServiceKindInvalidResponse},
		{status.Error(codes.Unavailable, "down"), domain.ServiceKindNetwork},
		{errors.New("plain"), domain.ServiceKindNetwork},
	}
	for _, tt := range tests {
		kind, _ := domain.ServiceErrorKind(classifyGRPCError(tt.err))
		assert.Equal(t, tt.want, kind, tt.err.Error())
	}
}

func newWhisperServer(t *testing.T, status int, body string, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			http.NotFound(w, r)
			return
		}
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWhisperTranscribe(t *testing.T) {
	var gotAuth, gotModel, gotLanguage, gotFile string
	srv := newWhisperServer(t, http.StatusOK, `{"text":" I like coffee. "}`, func(r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm() error = %v", err)
			return
		}
		gotModel = r.FormValue("model")
		gotLanguage = r.FormValue("language")
		if _, header, err := r.FormFile("file"); err == nil {
			gotFile = header.Filename
		}
	})

	w, err := NewWhisperSpeechToText(WhisperConfig{APIKey: "env-key", BaseURL: srv.URL}, zaptest.NewLogger(t))
	require.NoError(t, err)

	text, err := w.TranscribeAudio(context.Background(), []byte("RIFFdata"), repositories.AudioConfig{
		Encoding: "WAV",
		Language: "en-US",
		APIKey:   "request-key",
	})
	require.NoError(t, err)
	assert.Equal(t, "I like coffee.", text)
	assert.Equal(t, "Bearer request-key", gotAuth)
	assert.Equal(t, defaultWhisperModel, gotModel)
	assert.Equal(t, "en", gotLanguage)
	assert.Equal(t, "turn.wav", gotFile)
}

func TestWhisperErrors(t *testing.T) {
	logger := zaptest.NewLogger(t)

	w, err := NewWhisperSpeechToText(WhisperConfig{BaseURL: "http://127.0.0.1:1"}, logger)
	require.NoError(t, err)
	_, err = w.TranscribeAudio(context.Background(), []byte("x"), repositories.AudioConfig{})
	assert.ErrorIs(t, err, domain.ErrMissingAPIKey)

	_, err = w.TranscribeAudio(context.Background(), nil, repositories.AudioConfig{APIKey: "k"})
	assert.ErrorIs(t, err, domain.ErrNoAudio)

	srv := newWhisperServer(t, http.StatusUnauthorized, `{"error":{"message":"Invalid API Key","type":"invalid_request_error"}}`, nil)
	w, err = NewWhisperSpeechToText(WhisperConfig{APIKey: "bad", BaseURL: srv.URL}, logger)
	require.NoError(t, err)
	_, err = w.TranscribeAudio(context.Background(), []byte("x"), repositories.AudioConfig{})
	kind, ok := domain.ServiceErrorKind(err)
	require.True(t, ok)
	assert.Equal(t, domain.ServiceKindAuth, kind)

	empty := newWhisperServer(t, http.StatusOK, `{"text":""}`, nil)
	w, err = NewWhisperSpeechToText(WhisperConfig{APIKey: "k", BaseURL: empty.URL}, logger)
	require.NoError(t, err)
	_, err = w.TranscribeAudio(context.Background(), []byte("x"), repositories.AudioConfig{})
	kind, _ = domain.ServiceErrorKind(err)
	assert.Equal(t, domain.ServiceKindInvalidResponse, kind)
}

func TestMockSpeechToText(t *testing.T) {
	m := NewMockSpeechToText(zaptest.NewLogger(t))

	text, err := m.TranscribeAudio(context.Background(), make([]byte, 2000), repositories.AudioConfig{})
	require.NoError(t, err)
	assert.Equal(t, "Hello, how are you?", text)

	m.Text = "fixed"
	text, err = m.TranscribeAudio(context.Background(), []byte("x"), repositories.AudioConfig{})
	require.NoError(t, err)
	assert.Equal(t, "fixed", text)

	_, err = m.TranscribeAudio(context.Background(), nil, repositories.AudioConfig{})
	assert.ErrorIs(t, err, domain.ErrNoAudio)
}
