package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/satriahrh/discute/domain"
	"github.com/satriahrh/discute/domain/entities"
	"github.com/satriahrh/discute/domain/repositories"
)

// SessionRepository stores sessions as JSON documents with a sliding TTL
type SessionRepository struct {
	client *Client
	logger *zap.Logger
}

var _ repositories.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository creates a new Redis session repository
func NewSessionRepository(client *Client, logger *zap.Logger) *SessionRepository {
	return &SessionRepository{client: client, logger: logger}
}

func (r *SessionRepository) sessionKey(id string) string {
	return r.client.key("session", id)
}

func (r *SessionRepository) indexKey() string {
	return r.client.key("sessions")
}

// Create creates a new session
func (r *SessionRepository) Create(ctx context.Context, session *entities.Session) error {
	if err := session.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	ok, err := r.client.rdb.SetNX(ctx, r.sessionKey(session.ID), raw, r.client.config.TTL).Result()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	if !ok {
		return errors.New("session with this id already exists")
	}
	if err := r.client.rdb.SAdd(ctx, r.indexKey(), session.ID).Err(); err != nil {
		return fmt.Errorf("failed to index session: %w", err)
	}

	r.logger.Debug("Session created", zap.String("sessionID", session.ID))
	return nil
}

// Get returns a session by id
func (r *SessionRepository) Get(ctx context.Context, id string) (*entities.Session, error) {
	raw, err := r.client.rdb.Get(ctx, r.sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session entities.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &session, nil
}

// Update replaces a stored session and refreshes its TTL together with the
// TTL of the audio it owns
func (r *SessionRepository) Update(ctx context.Context, session *entities.Session) error {
	if err := session.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	ttl := r.client.config.TTL
	ok, err := r.client.rdb.SetXX(ctx, r.sessionKey(session.ID), raw, ttl).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if !ok {
		return domain.ErrSessionNotFound
	}

	ownerKey := r.client.sessionAudioKey(session.ID)
	refs, err := r.client.rdb.SMembers(ctx, ownerKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list session audio: %w", err)
	}
	if len(refs) == 0 {
		return nil
	}

	pipe := r.client.rdb.Pipeline()
	pipe.Expire(ctx, ownerKey, ttl)
	for _, ref := range refs {
		pipe.Expire(ctx, r.client.audioKey(ref), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to refresh session audio: %w", err)
	}
	return nil
}

// Delete removes a session
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	pipe := r.client.rdb.TxPipeline()
	del := pipe.Del(ctx, r.sessionKey(id))
	pipe.SRem(ctx, r.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if del.Val() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// ExpireIdle removes sessions idle for longer than maxIdle. Sessions whose key
// already expired in Redis are pruned from the index and counted too.
func (r *SessionRepository) ExpireIdle(ctx context.Context, maxIdle time.Duration) (int, error) {
	ids, err := r.client.rdb.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	removed := 0
	for _, id := range ids {
		session, err := r.Get(ctx, id)
		switch {
		case errors.Is(err, domain.ErrSessionNotFound):
			if err := r.client.rdb.SRem(ctx, r.indexKey(), id).Err(); err != nil {
				return removed, fmt.Errorf("failed to prune session index: %w", err)
			}
			removed++
			continue
		case err != nil:
			r.logger.Warn("Skipping unreadable session", zap.String("sessionID", id), zap.Error(err))
			continue
		}

		if session.IsExpired() || session.IsIdleFor(maxIdle) {
			if err := r.Delete(ctx, id); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}
