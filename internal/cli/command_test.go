package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/discute/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := CreateRootCommand(NewFlags())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// seededStore seeds a prompt store in a fresh working directory
func seededStore(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)

	db := filepath.Join(dir, "prompts.db")
	out, err := execute(t, "seed", "--db", db, "--log-level", "error")
	require.NoError(t, err)
	require.Contains(t, out, "Seeded "+db)
	return db
}

func TestCreateRootCommand(t *testing.T) {
	cmd := CreateRootCommand(NewFlags())

	if cmd.Use != "discute" {
		t.Errorf("Expected Use to be 'discute', got %s", cmd.Use)
	}

	for _, name := range []string{"config", "log-level", "db"} {
		var flag *pflag.Flag = cmd.PersistentFlags().Lookup(name)
		if flag == nil {
			t.Errorf("Expected persistent flag %s to exist", name)
		}
	}

	subcommands := map[string][]string{
		"serve":    {"addr"},
		"seed":     {"reset"},
		"programs": {"level", "kind"},
	}
	for name, flags := range subcommands {
		sub, _, err := cmd.Find([]string{name})
		if err != nil || sub.Name() != name {
			t.Errorf("Expected subcommand %s, got %v (%v)", name, sub, err)
			continue
		}
		for _, f := range flags {
			if sub.Flags().Lookup(f) == nil {
				t.Errorf("Expected %s to have flag --%s", name, f)
			}
		}
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	db := seededStore(t)

	out, err := execute(t, "seed", "--db", db, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "0 levels, 0 programs created")

	out, err = execute(t, "seed", "--db", db, "--reset", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "6 levels")
	assert.Contains(t, out, "0 already present")
}

func TestProgramsCommand(t *testing.T) {
	db := seededStore(t)

	out, err := execute(t, "programs", "--db", db, "--log-level", "error")
	require.NoError(t, err)
	for _, code := range []string{"A1  Beginner", "B2  Upper Intermediate", "C2  Proficient"} {
		assert.Contains(t, out, code)
	}
	assert.Contains(t, out, "Greetings and Introductions")

	out, err = execute(t, "programs", "--db", db, "--level", "b2", "--kind", "scenario", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "Job Interview")
	assert.NotContains(t, out, "A1  Beginner")
	assert.NotContains(t, out, "English Coach")

	_, err = execute(t, "programs", "--db", db, "--kind", "quiz", "--log-level", "error")
	assert.Error(t, err)
}

func TestProgramsRequiresSeededStore(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := execute(t, "programs", "--db", "missing.db", "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run the seed command first")
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DISCUTE_AUTH_TOKEN_SECRET", "short")

	_, err := execute(t, "serve", "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.token_secret")
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger(config.LogConfig{Level: "DEBUG", Development: true})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	logger, err = newLogger(config.LogConfig{Level: "warn"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(0))

	_, err = newLogger(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestWhisperLanguage(t *testing.T) {
	tests := map[string]string{
		"en-US": "en",
		"en":    "en",
		"PT-br": "pt",
		"":      "",
	}
	for in, want := range tests {
		if got := whisperLanguage(in); got != want {
			t.Errorf("whisperLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildServerWithMockProviders(t *testing.T) {
	db := seededStore(t)

	cfg := &config.Config{
		Server:   config.ServerConfig{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second},
		Store:    config.StoreConfig{Path: db},
		Sessions: config.SessionsConfig{Backend: "memory", MaxIdle: time.Minute, CleanupInterval: time.Minute, MaxAudioBytes: 1 << 20, Language: "en-US"},
		Auth:     config.AuthConfig{TokenSecret: "0123456789abcdef", TokenTTL: time.Hour},
		LLM:      config.LLMConfig{Provider: "mock"},
		STT:      config.STTConfig{Provider: "mock"},
		TTS:      config.TTSConfig{Provider: "mock"},
	}

	srv, err := buildServer(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(srv.closers.Close)

	for path, want := range map[string]string{
		"/health":                    `"status":"ok"`,
		"/api/v1/levels":             `"code":"A1"`,
		"/api/v1/levels/A1/programs": "Greetings and Introductions",
		"/api/v1/voices":             `"voices"`,
		"/":                          "<html",
	} {
		rec := httptest.NewRecorder()
		srv.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.True(t, strings.Contains(rec.Body.String(), want), "%s: %s", path, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", strings.NewReader(`{"level":"b1"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"token"`)
}

func TestBuildServerUnknownBackend(t *testing.T) {
	db := seededStore(t)
	cfg := &config.Config{
		Store:    config.StoreConfig{Path: db},
		Sessions: config.SessionsConfig{Backend: "etcd"},
	}
	_, err := buildServer(context.Background(), cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
}
