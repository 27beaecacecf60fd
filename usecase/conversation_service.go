package usecase

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/satriahrh/discute/domain"
	"github.com/satriahrh/discute/domain/entities"
	"github.com/satriahrh/discute/domain/repositories"
)

const (
	defaultLevel         = "A1"
	defaultLanguage      = "en-US"
	defaultEncoding      = "WAV"
	defaultMaxAudioBytes = 10 << 20
)

// ConversationConfig tunes the turn flow
type ConversationConfig struct {
	Language       string
	Encoding       string
	SampleRate     int
	MaxAudioBytes  int
	DefaultVoiceID string
}

// TurnOptions carries per-request values that are never stored
type TurnOptions struct {
	APIKey   string
	Encoding string
	MIMEType string
}

// TurnResult is the outcome of one spoken turn
type TurnResult struct {
	Session *entities.Session
	User    entities.Turn
	Reply   entities.Turn
	Speech  *repositories.Speech
	// SpeechError is set when the reply text was produced but could not be spoken
	SpeechError string
}

// ReviewResult is the coach's feedback on the conversation
type ReviewResult struct {
	Session  *entities.Session
	Feedback string
}

// Settings changes the selections of a session. Zero values leave a field untouched.
type Settings struct {
	LevelCode string
	ProgramID uint
	Context   *string
	VoiceID   *string
}

// ConversationService orchestrates the conversation flow
type ConversationService struct {
	sessions     repositories.SessionRepository
	audio        repositories.AudioStore
	prompts      *PromptManager
	chatService  *ChatService
	speechToText repositories.SpeechToText
	textToSpeech repositories.TextToSpeech
	config       ConversationConfig
	tracer       trace.Tracer
	logger       *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewConversationService creates a new conversation service
func NewConversationService(
	sessions repositories.SessionRepository,
	audio repositories.AudioStore,
	prompts *PromptManager,
	chatService *ChatService,
	stt repositories.SpeechToText,
	tts repositories.TextToSpeech,
	config ConversationConfig,
	logger *zap.Logger,
) *ConversationService {
	if config.Language == "" {
		config.Language = defaultLanguage
		logger.Info("Using default language", zap.String("language", config.Language))
	}
	if config.Encoding == "" {
		config.Encoding = defaultEncoding
		logger.Info("Using default audio encoding", zap.String("encoding", config.Encoding))
	}
	if config.MaxAudioBytes <= 0 {
		config.MaxAudioBytes = defaultMaxAudioBytes
		logger.Info("Using default max audio size", zap.Int("maxAudioBytes", config.MaxAudioBytes))
	}

	return &ConversationService{
		sessions:     sessions,
		audio:        audio,
		prompts:      prompts,
		chatService:  chatService,
		speechToText: stt,
		textToSpeech: tts,
		config:       config,
		tracer:       otel.Tracer("github.com/satriahrh/discute/usecase"),
		logger:       logger,
		locks:        make(map[string]*sync.Mutex),
	}
}

// acquire takes the session's lock without waiting. A held lock means
// another action on the same session is still running.
func (s *ConversationService) acquire(id string) (func(), error) {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()

	if !l.TryLock() {
		return nil, domain.ErrTurnInProgress
	}
	return l.Unlock, nil
}

func (s *ConversationService) discardAudio(ctx context.Context, id string) {
	if err := s.audio.DeleteSession(ctx, id); err != nil {
		s.logger.Warn("Failed to delete session audio", zap.String("sessionID", id), zap.Error(err))
	}
}

func (s *ConversationService) forget(id string) {
	s.mu.Lock()
	delete(s.locks, id)
	s.mu.Unlock()
}

// StartSession creates a session at the given level with its default program
func (s *ConversationService) StartSession(ctx context.Context, levelCode string) (*entities.Session, error) {
	if levelCode == "" {
		levelCode = defaultLevel
	}
	if _, err := s.prompts.GetLevel(ctx, levelCode); err != nil {
		return nil, err
	}

	session := entities.NewSession(levelCode)
	session.VoiceID = s.config.DefaultVoiceID

	program, err := s.prompts.DefaultProgram(ctx, levelCode)
	switch {
	case err == nil:
		session.ProgramID = program.ID
	case errors.Is(err, domain.ErrNoProgramSelected):
		s.logger.Warn("Level has no scenario programs", zap.String("level", levelCode))
	default:
		return nil, err
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("Session started",
		zap.String("sessionID", session.ID),
		zap.String("level", levelCode),
		zap.Uint("programID", session.ProgramID))
	return session, nil
}

// GetSession returns the current state of a session
func (s *ConversationService) GetSession(ctx context.Context, id string) (*entities.Session, error) {
	return s.sessions.Get(ctx, id)
}

// EndSession destroys a session and its audio. A session with a turn or
// review in flight cannot be ended until it finishes.
func (s *ConversationService) EndSession(ctx context.Context, id string) error {
	release, err := s.acquire(id)
	if err != nil {
		return err
	}
	defer release()

	if err := s.sessions.Delete(ctx, id); err != nil {
		return err
	}
	s.discardAudio(ctx, id)
	s.forget(id)

	s.logger.Info("Session ended", zap.String("sessionID", id))
	return nil
}

// ExpireIdle removes sessions idle for longer than maxIdle along with their
// locks and audio
func (s *ConversationService) ExpireIdle(ctx context.Context, maxIdle time.Duration) (int, error) {
	removed, err := s.sessions.ExpireIdle(ctx, maxIdle)
	if err != nil {
		return removed, err
	}

	s.mu.Lock()
	ids := make([]string, 0, len(s.locks))
	for id := range s.locks {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		if _, err := s.sessions.Get(ctx, id); errors.Is(err, domain.ErrSessionNotFound) {
			s.discardAudio(ctx, id)
			s.forget(id)
		}
	}
	return removed, nil
}

// UpdateSettings changes level, program, context or voice of an idle session.
// Selecting a level without a program picks the level's default program.
func (s *ConversationService) UpdateSettings(ctx context.Context, id string, settings Settings) (*entities.Session, error) {
	release, err := s.acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Busy() {
		return nil, domain.ErrTurnInProgress
	}

	levelChanged := false
	if settings.LevelCode != "" && settings.LevelCode != session.LevelCode {
		if _, err := s.prompts.GetLevel(ctx, settings.LevelCode); err != nil {
			return nil, err
		}
		session.LevelCode = settings.LevelCode
		levelChanged = true
	}

	switch {
	case settings.ProgramID != 0:
		program, err := s.prompts.GetProgram(ctx, settings.ProgramID)
		if err != nil {
			return nil, err
		}
		if program.LevelCode != session.LevelCode {
			return nil, fmt.Errorf("%w: %q is %s, session is %s",
				domain.ErrProgramLevelMismatch, program.Name, program.LevelCode, session.LevelCode)
		}
		session.ProgramID = program.ID
	case levelChanged:
		session.ProgramID = 0
		program, err := s.prompts.DefaultProgram(ctx, session.LevelCode)
		if err != nil && !errors.Is(err, domain.ErrNoProgramSelected) {
			return nil, err
		}
		if program != nil {
			session.ProgramID = program.ID
		}
	}

	if settings.Context != nil {
		session.Context = *settings.Context
	}
	if settings.VoiceID != nil {
		session.VoiceID = *settings.VoiceID
	}
	session.UpdateLastActive()

	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// BeginRecording moves an idle session into the recording state
func (s *ConversationService) BeginRecording(ctx context.Context, id string) (*entities.Session, error) {
	release, err := s.acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Busy() {
		return nil, domain.ErrTurnInProgress
	}
	if err := session.Transition(entities.StateRecording); err != nil {
		return nil, err
	}
	session.StartRecording()
	session.LastError = ""

	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// AppendAudio adds a recorded chunk to a recording session
func (s *ConversationService) AppendAudio(ctx context.Context, id string, chunk []byte) error {
	release, err := s.acquire(id)
	if err != nil {
		return err
	}
	defer release()

	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return err
	}
	if session.State != entities.StateRecording {
		return fmt.Errorf("%w: not recording", domain.ErrInvalidTransition)
	}
	if len(session.PendingAudio)+len(chunk) > s.config.MaxAudioBytes {
		return domain.ErrAudioTooLarge
	}
	session.AppendPendingAudio(chunk)
	return s.sessions.Update(ctx, session)
}

// FinishRecording closes the recording and runs the rest of the turn
func (s *ConversationService) FinishRecording(ctx context.Context, id string, opts TurnOptions) (*TurnResult, error) {
	release, err := s.acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.State != entities.StateRecording {
		return nil, fmt.Errorf("%w: not recording", domain.ErrInvalidTransition)
	}

	duration := session.RecordingDuration()
	audio := session.TakePendingAudio()
	return s.runTurn(ctx, session, audio, duration, opts)
}

// SubmitTurn runs a whole turn from an already recorded clip
func (s *ConversationService) SubmitTurn(ctx context.Context, id string, audio []byte, opts TurnOptions) (*TurnResult, error) {
	release, err := s.acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Busy() {
		return nil, domain.ErrTurnInProgress
	}
	if len(audio) == 0 {
		return nil, domain.ErrNoAudio
	}
	if len(audio) > s.config.MaxAudioBytes {
		return nil, domain.ErrAudioTooLarge
	}
	if err := session.Transition(entities.StateRecording); err != nil {
		return nil, err
	}
	session.LastError = ""
	return s.runTurn(ctx, session, audio, 0, opts)
}

func (s *ConversationService) runTurn(ctx context.Context, session *entities.Session, audio []byte, duration time.Duration, opts TurnOptions) (*TurnResult, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.turn",
		trace.WithAttributes(attribute.String("session.id", session.ID), attribute.Int("audio.bytes", len(audio))))
	defer span.End()

	if len(audio) == 0 {
		return nil, s.fail(ctx, session, span, domain.ErrNoAudio)
	}

	encoding := opts.Encoding
	if encoding == "" {
		encoding = s.config.Encoding
	}
	mimeType := opts.MIMEType
	if mimeType == "" {
		mimeType = "audio/wav"
	}
	if duration == 0 {
		duration = wavDuration(audio)
	}

	if err := s.advance(ctx, session, entities.StateTranscribing); err != nil {
		return nil, s.fail(ctx, session, span, err)
	}

	userRef, err := s.audio.Put(ctx, session.ID, repositories.Audio{Data: audio, MIMEType: mimeType})
	if err != nil {
		return nil, s.fail(ctx, session, span, fmt.Errorf("failed to store recording: %w", err))
	}

	text, err := s.transcribe(ctx, audio, encoding, opts.APIKey)
	if err != nil {
		return nil, s.fail(ctx, session, span, err)
	}
	userTurn := session.AddTurn(entities.SpeakerMe, text, userRef, duration.Milliseconds())

	if err := s.advance(ctx, session, entities.StateAwaitingResponse); err != nil {
		return nil, s.fail(ctx, session, span, err)
	}

	program, err := s.sessionProgram(ctx, session)
	if err != nil {
		return nil, s.fail(ctx, session, span, err)
	}

	reply, err := s.respond(ctx, session, program, opts.APIKey)
	if err != nil {
		return nil, s.fail(ctx, session, span, err)
	}
	replyTurn := session.AddTurn(entities.SpeakerYou, reply, "", 0)
	replyIndex := len(session.Turns) - 1

	if err := s.advance(ctx, session, entities.StateSpeaking); err != nil {
		return nil, s.fail(ctx, session, span, err)
	}

	result := &TurnResult{Session: session, User: userTurn}

	speech, err := s.speak(ctx, reply, session.VoiceID)
	if err != nil {
		// The reply text stands on its own; a speech failure only loses the audio.
		s.logger.Warn("Text-to-speech failed", zap.String("sessionID", session.ID), zap.Error(err))
		result.SpeechError = err.Error()
		session.LastError = err.Error()
	} else {
		ref, err := s.audio.Put(ctx, session.ID, repositories.Audio{Data: speech.Audio, MIMEType: speech.MIMEType})
		if err != nil {
			s.logger.Warn("Failed to store reply audio", zap.String("sessionID", session.ID), zap.Error(err))
		} else {
			session.SetTurnAudio(replyIndex, ref)
			replyTurn.AudioRef = ref
		}
		result.Speech = &speech
	}
	result.Reply = replyTurn

	if err := s.advance(ctx, session, entities.StateIdle); err != nil {
		return nil, err
	}

	s.logger.Info("Turn completed",
		zap.String("sessionID", session.ID),
		zap.Int("turns", len(session.Turns)),
		zap.Bool("spoken", result.Speech != nil))
	return result, nil
}

// Review asks the coach for feedback on the conversation so far
func (s *ConversationService) Review(ctx context.Context, id string, opts TurnOptions) (*ReviewResult, error) {
	release, err := s.acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Busy() {
		return nil, domain.ErrTurnInProgress
	}
	if len(session.Turns) == 0 {
		return nil, domain.ErrEmptyConversation
	}

	ctx, span := s.tracer.Start(ctx, "conversation.review", trace.WithAttributes(attribute.String("session.id", session.ID)))
	defer span.End()

	if err := s.advance(ctx, session, entities.StateReviewing); err != nil {
		return nil, s.fail(ctx, session, span, err)
	}

	feedback, err := s.chatService.Review(ctx, session, opts.APIKey)
	if err != nil {
		return nil, s.fail(ctx, session, span, err)
	}

	session.LastError = ""
	if err := s.advance(ctx, session, entities.StateIdle); err != nil {
		return nil, err
	}
	return &ReviewResult{Session: session, Feedback: feedback}, nil
}

// Audio returns a stored clip that belongs to the session
func (s *ConversationService) Audio(ctx context.Context, id, ref string) (*repositories.Audio, error) {
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !session.OwnsAudio(ref) {
		return nil, domain.ErrAudioNotFound
	}
	return s.audio.Get(ctx, ref)
}

// Voices lists the voices of the speech provider, if it can enumerate them
func (s *ConversationService) Voices(ctx context.Context) ([]repositories.Voice, error) {
	lister, ok := s.textToSpeech.(repositories.VoiceLister)
	if !ok {
		return []repositories.Voice{}, nil
	}
	return lister.ListVoices(ctx)
}

func (s *ConversationService) advance(ctx context.Context, session *entities.Session, next entities.TurnState) error {
	if err := session.Transition(next); err != nil {
		return err
	}
	err := s.sessions.Update(ctx, session)
	if errors.Is(err, domain.ErrSessionNotFound) {
		// Expired underneath the turn; nothing refers to its audio anymore.
		s.discardAudio(ctx, session.ID)
	}
	return err
}

// fail records err on the session and returns it to idle
func (s *ConversationService) fail(ctx context.Context, session *entities.Session, span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	session.LastError = err.Error()
	session.TakePendingAudio()
	if tErr := session.Transition(entities.StateIdle); tErr == nil {
		if uErr := s.sessions.Update(ctx, session); uErr != nil {
			s.logger.Error("Failed to persist failed turn", zap.String("sessionID", session.ID), zap.Error(uErr))
		}
	}

	s.logger.Warn("Turn failed",
		zap.String("sessionID", session.ID),
		zap.Error(err))
	return err
}

func (s *ConversationService) sessionProgram(ctx context.Context, session *entities.Session) (*entities.Program, error) {
	if session.ProgramID != 0 {
		return s.prompts.GetProgram(ctx, session.ProgramID)
	}
	program, err := s.prompts.DefaultProgram(ctx, session.LevelCode)
	if err != nil {
		return nil, err
	}
	session.ProgramID = program.ID
	return program, nil
}

func (s *ConversationService) transcribe(ctx context.Context, audio []byte, encoding, apiKey string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.transcribe")
	defer span.End()

	text, err := s.speechToText.TranscribeAudio(ctx, audio, repositories.AudioConfig{
		SampleRate: s.config.SampleRate,
		Encoding:   encoding,
		Language:   s.config.Language,
		APIKey:     apiKey,
	})
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	span.SetAttributes(attribute.Int("transcript.length", len(text)))
	return text, nil
}

func (s *ConversationService) respond(ctx context.Context, session *entities.Session, program *entities.Program, apiKey string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.respond", trace.WithAttributes(attribute.String("program", program.Name)))
	defer span.End()

	reply, err := s.chatService.Respond(ctx, session, program, apiKey)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return reply, nil
}

func (s *ConversationService) speak(ctx context.Context, text, voiceID string) (repositories.Speech, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.speak")
	defer span.End()

	speech, err := s.textToSpeech.Synthesize(ctx, text, voiceID)
	if err != nil {
		span.RecordError(err)
		return repositories.Speech{}, err
	}
	span.SetAttributes(attribute.Int("audio.bytes", len(speech.Audio)))
	return speech, nil
}

// wavDuration reads the playback length from a canonical WAV header, zero
// when the clip is not a WAV
func wavDuration(audio []byte) time.Duration {
	if len(audio) < 44 || string(audio[0:4]) != "RIFF" || string(audio[8:12]) != "WAVE" {
		return 0
	}
	byteRate := binary.LittleEndian.Uint32(audio[28:32])
	if byteRate == 0 {
		return 0
	}
	dataLen := len(audio) - 44
	return time.Duration(float64(dataLen) / float64(byteRate) * float64(time.Second))
}
