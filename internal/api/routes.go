package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/discute/domain"
	"github.com/satriahrh/discute/domain/entities"
	"github.com/satriahrh/discute/internal/auth"
	"github.com/satriahrh/discute/internal/websocket"
	"github.com/satriahrh/discute/usecase"
)

const (
	// APIKeyHeader carries the learner's own LLM key. It is used for one request and never stored.
	APIKeyHeader = "X-LLM-API-Key"

	sessionClaimsKey = "sessionClaims"
)

// Dependencies are the services behind the routes
type Dependencies struct {
	Conversation  *usecase.ConversationService
	Prompts       *usecase.PromptManager
	Tokens        *auth.TokenIssuer
	Hub           *websocket.Hub
	Assets        fs.FS
	MaxAudioBytes int
}

type handler struct {
	conversation  *usecase.ConversationService
	prompts       *usecase.PromptManager
	tokens        *auth.TokenIssuer
	hub           *websocket.Hub
	maxAudioBytes int
	logger        *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Dependencies, logger *zap.Logger) {
	h := &handler{
		conversation:  deps.Conversation,
		prompts:       deps.Prompts,
		tokens:        deps.Tokens,
		hub:           deps.Hub,
		maxAudioBytes: deps.MaxAudioBytes,
		logger:        logger,
	}
	e.HTTPErrorHandler = ErrorHandler(logger)

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "discute",
		})
	})

	if deps.Assets != nil {
		e.FileFS("/", "index.html", deps.Assets)
		e.StaticFS("/static", deps.Assets)
	}

	// API v1 routes
	v1 := e.Group("/api/v1")

	// Prompt store, read only
	v1.GET("/levels", h.listLevels)
	v1.GET("/levels/:code/programs", h.listPrograms)
	v1.GET("/programs/:id", h.getProgram)
	v1.GET("/voices", h.listVoices)

	// Sessions
	v1.POST("/sessions", h.createSession)

	sessions := v1.Group("/sessions/:id", h.requireSessionToken)
	sessions.GET("", h.getSession)
	sessions.DELETE("", h.endSession)
	sessions.POST("/token", h.refreshToken)
	sessions.PUT("/settings", h.updateSettings)
	sessions.POST("/turns", h.submitTurn)
	sessions.POST("/review", h.review)
	sessions.GET("/audio/:ref", h.getAudio)

	// WebSocket endpoint with token validation
	e.GET("/ws", h.websocketWithAuth)
}

// requireSessionToken checks that the bearer token was issued for the :id session
func (h *handler) requireSessionToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := bearerToken(c)
		if token == "" {
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "missing_token",
				Message: "A session token is required in the Authorization header",
			})
		}

		claims, err := h.tokens.Authorize(token, c.Param("id"))
		if err != nil {
			h.logger.Warn("Session request rejected", zap.String("sessionID", c.Param("id")), zap.Error(err))
			return err
		}
		c.Set(sessionClaimsKey, claims)
		return next(c)
	}
}

// bearerToken reads the token from the Authorization header, then from ?token=
// for clients that cannot set headers (audio elements, WebSocket)
func bearerToken(c echo.Context) string {
	authHeader := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(authHeader[len("Bearer "):])
	}
	return c.QueryParam("token")
}

func (h *handler) listLevels(c echo.Context) error {
	levels, err := h.prompts.ListLevels(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, LevelsResponse{Levels: levels})
}

func (h *handler) listPrograms(c echo.Context) error {
	kind := entities.ProgramKind(c.QueryParam("kind"))
	switch kind {
	case "", entities.ProgramKindScenario, entities.ProgramKindCoach:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown program kind %q", kind))
	}

	programs, err := h.prompts.ListProgramsByLevel(c.Request().Context(), strings.ToUpper(c.Param("code")), kind)
	if err != nil {
		return err
	}

	summaries := make([]entities.Program, 0, len(programs))
	for _, p := range programs {
		summaries = append(summaries, p.Summary())
	}
	return c.JSON(http.StatusOK, ProgramsResponse{Programs: summaries})
}

func (h *handler) getProgram(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", domain.ErrProgramNotFound, c.Param("id"))
	}
	program, err := h.prompts.GetProgram(c.Request().Context(), uint(id))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, program.Summary())
}

func (h *handler) listVoices(c echo.Context) error {
	voices, err := h.conversation.Voices(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, VoicesResponse{Voices: voices})
}

func (h *handler) createSession(c echo.Context) error {
	var req CreateSessionRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			h.logger.Warn("Failed to bind create session request", zap.Error(err))
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_request",
				Message: "Invalid request format",
			})
		}
	}

	session, err := h.conversation.StartSession(c.Request().Context(), strings.ToUpper(req.Level))
	if err != nil {
		return err
	}

	token, expiresAt, err := h.tokens.GenerateSessionToken(session.ID)
	if err != nil {
		h.logger.Error("Failed to generate session token", zap.String("sessionID", session.ID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate session token",
		})
	}

	return c.JSON(http.StatusCreated, CreateSessionResponse{
		Session:   newSessionResponse(session),
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// refreshToken reissues the token of a live session so a conversation can
// outlast the token lifetime
func (h *handler) refreshToken(c echo.Context) error {
	session, err := h.conversation.GetSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}

	token, expiresAt, err := h.tokens.GenerateSessionToken(session.ID)
	if err != nil {
		h.logger.Error("Failed to refresh session token", zap.String("sessionID", session.ID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate session token",
		})
	}
	return c.JSON(http.StatusOK, TokenResponse{Token: token, ExpiresAt: expiresAt})
}

func (h *handler) getSession(c echo.Context) error {
	session, err := h.conversation.GetSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newSessionResponse(session))
}

func (h *handler) endSession(c echo.Context) error {
	if err := h.conversation.EndSession(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) updateSettings(c echo.Context) error {
	var req UpdateSettingsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	session, err := h.conversation.UpdateSettings(c.Request().Context(), c.Param("id"), usecase.Settings{
		LevelCode: strings.ToUpper(req.Level),
		ProgramID: req.ProgramID,
		Context:   req.Context,
		VoiceID:   req.VoiceID,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newSessionResponse(session))
}

// submitTurn takes one recorded clip as the multipart field "audio"
func (h *handler) submitTurn(c echo.Context) error {
	file, err := c.FormFile("audio")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return domain.ErrNoAudio
		}
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Expected a multipart form with an audio file",
		})
	}
	if h.maxAudioBytes > 0 && file.Size > int64(h.maxAudioBytes) {
		return domain.ErrAudioTooLarge
	}

	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("failed to open uploaded audio: %w", err)
	}
	defer src.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, src); err != nil {
		return fmt.Errorf("failed to read uploaded audio: %w", err)
	}

	mimeType := file.Header.Get("Content-Type")
	encoding := c.FormValue("encoding")
	if encoding == "" {
		encoding = encodingForMIME(mimeType)
	}

	result, err := h.conversation.SubmitTurn(c.Request().Context(), c.Param("id"), buf.Bytes(), usecase.TurnOptions{
		APIKey:   c.Request().Header.Get(APIKeyHeader),
		Encoding: encoding,
		MIMEType: mimeType,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, TurnResultResponse{
		Session:     newSessionResponse(result.Session),
		User:        newTurnResponse(result.Session.ID, result.User),
		Reply:       newTurnResponse(result.Session.ID, result.Reply),
		SpeechError: result.SpeechError,
	})
}

func (h *handler) review(c echo.Context) error {
	result, err := h.conversation.Review(c.Request().Context(), c.Param("id"), usecase.TurnOptions{
		APIKey: c.Request().Header.Get(APIKeyHeader),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ReviewResponse{
		Feedback: result.Feedback,
		Session:  newSessionResponse(result.Session),
	})
}

func (h *handler) getAudio(c echo.Context) error {
	audio, err := h.conversation.Audio(c.Request().Context(), c.Param("id"), c.Param("ref"))
	if err != nil {
		return err
	}
	c.Response().Header().Set("Cache-Control", "private, max-age=3600")
	return c.Blob(http.StatusOK, audio.MIMEType, audio.Data)
}

// websocketWithAuth handles WebSocket connections authenticated by ?token=
func (h *handler) websocketWithAuth(c echo.Context) error {
	token := bearerToken(c)
	if token == "" {
		h.logger.Warn("WebSocket connection rejected: missing token")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "A session token is required",
		})
	}

	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("WebSocket connection rejected: invalid token", zap.Error(err))
		return err
	}

	h.logger.Info("WebSocket connection authenticated", zap.String("sessionID", claims.SessionID))
	return h.hub.HandleWebSocket(c, claims.SessionID)
}

// encodingForMIME guesses the recognizer encoding from the upload's content type
func encodingForMIME(mimeType string) string {
	mimeType = strings.ToLower(mimeType)
	switch {
	case strings.Contains(mimeType, "webm"):
		return "WEBM_OPUS"
	case strings.Contains(mimeType, "ogg"):
		return "OGG_OPUS"
	case strings.Contains(mimeType, "flac"):
		return "FLAC"
	case strings.Contains(mimeType, "mpeg"), strings.Contains(mimeType, "mp3"):
		return "MP3"
	default:
		return ""
	}
}
