package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/satriahrh/discute/domain"
	"github.com/satriahrh/discute/domain/repositories"
)

const googleService = "google-speech"

// GoogleConfig configures the Google Cloud Speech-to-Text adapter
type GoogleConfig struct {
	// CredentialsFile points at a service account key; empty uses application default credentials
	CredentialsFile string
	Model           string
}

// GoogleSpeechToText implements SpeechToText for Google Cloud using batch recognition
type GoogleSpeechToText struct {
	client *speech.Client
	config GoogleConfig
	logger *zap.Logger
}

var _ repositories.SpeechToText = (*GoogleSpeechToText)(nil)

// NewGoogleSpeechToText creates the Google Cloud Speech client
func NewGoogleSpeechToText(ctx context.Context, config GoogleConfig, logger *zap.Logger) (*GoogleSpeechToText, error) {
	var opts []option.ClientOption
	if config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	return &GoogleSpeechToText{client: client, config: config, logger: logger}, nil
}

// TranscribeAudio converts one recorded turn to text
func (g *GoogleSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	if len(audioData) == 0 {
		return "", domain.ErrNoAudio
	}

	encoding, err := getAudioEncoding(config.Encoding)
	if err != nil {
		return "", domain.NewServiceError(googleService, domain.ServiceKindInvalidResponse, err)
	}

	recognitionConfig := &speechpb.RecognitionConfig{
		Encoding:                   encoding,
		LanguageCode:               config.Language,
		EnableAutomaticPunctuation: true,
		Model:                      g.config.Model,
	}
	// WAV carries its own sample rate in the header
	if config.SampleRate > 0 && encoding != speechpb.RecognitionConfig_LINEAR16 {
		recognitionConfig.SampleRateHertz = int32(config.SampleRate)
	}

	resp, err := g.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: recognitionConfig,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audioData},
		},
	})
	if err != nil {
		g.logger.Error("Google speech recognition failed", zap.Error(err))
		return "", classifyGRPCError(err)
	}

	var parts []string
	for _, result := range resp.Results {
		if len(result.Alternatives) > 0 {
			parts = append(parts, result.Alternatives[0].Transcript)
		}
	}
	text := strings.TrimSpace(strings.Join(parts, " "))
	if text == "" {
		return "", domain.NewServiceError(googleService, domain.ServiceKindInvalidResponse, errors.New("no speech detected in audio"))
	}

	g.logger.Info("Transcription completed",
		zap.Int("audioSize", len(audioData)),
		zap.Int("textLength", len(text)))
	return text, nil
}

// Close releases the gRPC connection
func (g *GoogleSpeechToText) Close() error {
	return g.client.Close()
}

func classifyGRPCError(err error) error {
	switch status.Code(err) {
	case codes.Unauthenticated, codes.PermissionDenied:
		return domain.NewServiceError(googleService, domain.ServiceKindAuth, err)
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return domain.NewServiceError(googleService, domain.ServiceKindInvalidResponse, err)
	default:
		return domain.NewServiceError(googleService, domain.ServiceKindNetwork, err)
	}
}

// getAudioEncoding converts string encoding to Google Speech API enum
func getAudioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch strings.ToUpper(encoding) {
	case "WAV", "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "WEBM_OPUS", "WEBM":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}
