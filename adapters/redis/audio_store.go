package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/satriahrh/discute/domain"
	"github.com/satriahrh/discute/domain/repositories"
)

// AudioStore keeps turn audio in Redis hashes. Every SessionRepository.Update
// slides the audio TTL along with the session's.
type AudioStore struct {
	client *Client
}

var _ repositories.AudioStore = (*AudioStore)(nil)

// NewAudioStore creates a new Redis audio store
func NewAudioStore(client *Client) *AudioStore {
	return &AudioStore{client: client}
}

// Put stores audio and returns its reference
func (a *AudioStore) Put(ctx context.Context, sessionID string, audio repositories.Audio) (string, error) {
	if sessionID == "" {
		return "", errors.New("session ID cannot be empty")
	}
	if len(audio.Data) == 0 {
		return "", domain.ErrNoAudio
	}

	ref := uuid.NewString()
	ttl := a.client.config.TTL

	pipe := a.client.rdb.TxPipeline()
	pipe.HSet(ctx, a.client.audioKey(ref), "data", audio.Data, "mime", audio.MIMEType)
	pipe.Expire(ctx, a.client.audioKey(ref), ttl)
	pipe.SAdd(ctx, a.client.sessionAudioKey(sessionID), ref)
	pipe.Expire(ctx, a.client.sessionAudioKey(sessionID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to store audio: %w", err)
	}
	return ref, nil
}

// Get loads audio by reference
func (a *AudioStore) Get(ctx context.Context, ref string) (*repositories.Audio, error) {
	fields, err := a.client.rdb.HGetAll(ctx, a.client.audioKey(ref)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, domain.ErrAudioNotFound
		}
		return nil, fmt.Errorf("failed to get audio: %w", err)
	}
	data, ok := fields["data"]
	if !ok {
		return nil, domain.ErrAudioNotFound
	}
	return &repositories.Audio{Data: []byte(data), MIMEType: fields["mime"]}, nil
}

// DeleteSession removes every audio object recorded for a session
func (a *AudioStore) DeleteSession(ctx context.Context, sessionID string) error {
	refs, err := a.client.rdb.SMembers(ctx, a.client.sessionAudioKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list session audio: %w", err)
	}

	keys := make([]string, 0, len(refs)+1)
	for _, ref := range refs {
		keys = append(keys, a.client.audioKey(ref))
	}
	keys = append(keys, a.client.sessionAudioKey(sessionID))
	if err := a.client.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete session audio: %w", err)
	}
	return nil
}
