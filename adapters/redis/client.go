package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config holds Redis connection settings
type Config struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix namespaces every key written by the stores
	KeyPrefix string
	// TTL bounds how long an untouched session and its audio survive
	TTL time.Duration
}

// ValidateConfig validates the Redis configuration and applies defaults
func ValidateConfig(config *Config, logger *zap.Logger) error {
	if config.Addr == "" {
		return errors.New("redis address is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "discute"
		logger.Info("Using default Redis key prefix", zap.String("prefix", config.KeyPrefix))
	}
	if config.TTL <= 0 {
		config.TTL = 30 * time.Minute
		logger.Info("Using default Redis session TTL", zap.Duration("ttl", config.TTL))
	}
	return nil
}

// Client wraps the Redis connection shared by the session and audio stores
type Client struct {
	rdb    *goredis.Client
	config Config
	logger *zap.Logger
}

// NewClient connects to Redis and verifies the connection
func NewClient(ctx context.Context, config Config, logger *zap.Logger) (*Client, error) {
	if err := ValidateConfig(&config, logger); err != nil {
		return nil, err
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        config.Addr,
		Password:    config.Password,
		DB:          config.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info("Connected to Redis",
		zap.String("addr", config.Addr),
		zap.Int("db", config.DB))

	return &Client{rdb: rdb, config: config, logger: logger}, nil
}

func (c *Client) key(parts ...string) string {
	k := c.config.KeyPrefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (c *Client) audioKey(ref string) string {
	return c.key("audio", ref)
}

// sessionAudioKey names the set of audio refs owned by a session
func (c *Client) sessionAudioKey(sessionID string) string {
	return c.key("session", sessionID, "audio")
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
