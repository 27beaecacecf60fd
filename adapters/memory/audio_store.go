package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/satriahrh/discute/domain"
	"github.com/satriahrh/discute/domain/repositories"
)

// AudioStore keeps turn audio in process memory, grouped by session
type AudioStore struct {
	mu      sync.RWMutex
	objects map[string]repositories.Audio
	owners  map[string][]string // session id -> refs
}

var _ repositories.AudioStore = (*AudioStore)(nil)

// NewAudioStore creates a new in-memory audio store
func NewAudioStore() *AudioStore {
	return &AudioStore{
		objects: make(map[string]repositories.Audio),
		owners:  make(map[string][]string),
	}
}

// Put implements AudioStore interface
func (a *AudioStore) Put(ctx context.Context, sessionID string, audio repositories.Audio) (string, error) {
	if sessionID == "" {
		return "", errors.New("session ID cannot be empty")
	}
	if len(audio.Data) == 0 {
		return "", domain.ErrNoAudio
	}

	ref := uuid.NewString()
	stored := repositories.Audio{
		Data:     append([]byte(nil), audio.Data...),
		MIMEType: audio.MIMEType,
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.objects[ref] = stored
	a.owners[sessionID] = append(a.owners[sessionID], ref)
	return ref, nil
}

// Get implements AudioStore interface
func (a *AudioStore) Get(ctx context.Context, ref string) (*repositories.Audio, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	audio, exists := a.objects[ref]
	if !exists {
		return nil, domain.ErrAudioNotFound
	}
	return &repositories.Audio{
		Data:     append([]byte(nil), audio.Data...),
		MIMEType: audio.MIMEType,
	}, nil
}

// DeleteSession implements AudioStore interface
func (a *AudioStore) DeleteSession(ctx context.Context, sessionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, ref := range a.owners[sessionID] {
		delete(a.objects, ref)
	}
	delete(a.owners, sessionID)
	return nil
}
