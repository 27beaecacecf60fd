package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Options configures how the prompt store file is opened
type Options struct {
	Path     string
	ReadOnly bool
	// Quiet silences gorm's own statement logging
	Quiet bool
}

// Client wraps the gorm handle on the single-file prompt store
type Client struct {
	DB     *gorm.DB
	path   string
	logger *zap.Logger
}

// NewClient opens the SQLite prompt store
func NewClient(opts Options, logger *zap.Logger) (*Client, error) {
	if opts.Path == "" {
		return nil, errors.New("database path is required")
	}

	if opts.ReadOnly {
		if _, err := os.Stat(opts.Path); err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("prompt store %s does not exist, run the seed command first", opts.Path)
			}
			return nil, fmt.Errorf("failed to stat prompt store: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", opts.Path)
	if opts.ReadOnly {
		dsn += "&mode=ro"
	}

	level := gormLogger.Warn
	if opts.Quiet {
		level = gormLogger.Silent
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open prompt store: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access prompt store handle: %w", err)
	}
	// A single connection keeps SQLite's file locking simple.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping prompt store: %w", err)
	}

	if opts.ReadOnly {
		if err := checkSeeded(ctx, db); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("prompt store %s %w, run the seed command first", opts.Path, err)
		}
	}

	logger.Info("Opened prompt store",
		zap.String("path", opts.Path),
		zap.Bool("readOnly", opts.ReadOnly))

	return &Client{
		DB:     db,
		path:   opts.Path,
		logger: logger,
	}, nil
}

var errNotSeeded = errors.New("is not seeded")

// checkSeeded fails when the level table is missing or empty
func checkSeeded(ctx context.Context, db *gorm.DB) error {
	if !db.Migrator().HasTable(&LevelRecord{}) {
		return errNotSeeded
	}
	var count int64
	if err := db.WithContext(ctx).Model(&LevelRecord{}).Count(&count).Error; err != nil {
		return fmt.Errorf("could not be checked (%v)", err)
	}
	if count == 0 {
		return errNotSeeded
	}
	return nil
}

// Migrate creates the prompt tables if they do not exist
func (c *Client) Migrate(ctx context.Context) error {
	if err := c.DB.WithContext(ctx).AutoMigrate(&LevelRecord{}, &ProgramRecord{}); err != nil {
		return fmt.Errorf("failed to migrate prompt store: %w", err)
	}
	return nil
}

// Close closes the underlying database connection
func (c *Client) Close() error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		c.logger.Error("Failed to close prompt store", zap.Error(err))
		return err
	}
	c.logger.Info("Closed prompt store", zap.String("path", c.path))
	return nil
}
