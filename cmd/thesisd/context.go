package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/thesisdesk/thesisdesk/internal/config"
	"github.com/thesisdesk/thesisdesk/storage"
	"github.com/thesisdesk/thesisdesk/store"
	"github.com/thesisdesk/thesisdesk/store/memory"
	mongostore "github.com/thesisdesk/thesisdesk/store/mongo"
	sqlitestore "github.com/thesisdesk/thesisdesk/store/sqlite"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config, c.configErr = config.Load(path)
	})
	return c.config, c.configErr
}

// logger builds the process logger from the logging section.
func (c *commandContext) logger() *slog.Logger {
	return newLogger(c.config.Logging, os.Stderr)
}

// openStore connects the configured backend. The caller closes it.
func (c *commandContext) openStore(ctx context.Context) (store.Store, error) {
	switch c.config.Store.Driver {
	case "mongo":
		s, err := mongostore.Connect(ctx, c.config.Store.MongoURI, c.config.Store.Database)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		return s, nil
	case "sqlite":
		s, err := sqlitestore.Open(ctx, c.config.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return s, nil
	default:
		return memory.New(), nil
	}
}

func (c *commandContext) openBlobs() (storage.Blobs, error) {
	if c.config.Storage.Dir == "" {
		return storage.NewMemoryBlobs(), nil
	}
	b, err := storage.NewLocalBlobs(c.config.Storage.Dir)
	if err != nil {
		return nil, fmt.Errorf("open blob dir: %w", err)
	}
	return b, nil
}
