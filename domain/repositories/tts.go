package repositories

import "context"

type TextToSpeech interface {
	Synthesize(ctx context.Context, text, voiceID string) (Speech, error)
}

// VoiceLister is implemented by providers that can enumerate their voices
type VoiceLister interface {
	ListVoices(ctx context.Context) ([]Voice, error)
}

// Speech is synthesized audio
type Speech struct {
	Audio    []byte
	MIMEType string
}

// Voice describes a selectable (possibly cloned) voice
type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}
