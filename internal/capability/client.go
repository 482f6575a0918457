package capability

import (
	"context"
	"fmt"

	"resumind/internal/ai"
	"resumind/internal/config"
	apperrors "resumind/internal/errors"
)

// providerClient assembles the capability services selected by
// configuration into one Client.
type providerClient struct {
	auth AuthService
	fs   FileSystem
	ai   AIService
	kv   KeyValueStore
}

func (c *providerClient) Auth() AuthService { return c.auth }
func (c *providerClient) FS() FileSystem    { return c.fs }
func (c *providerClient) AI() AIService     { return c.ai }
func (c *providerClient) KV() KeyValueStore { return c.kv }

// NewClient builds a provider client from configuration: local or S3 file
// storage, in-memory or Redis key-value store, and the Gemini AI service.
func NewClient(ctx context.Context, cfg *config.Config, logger *apperrors.Logger) (Client, error) {
	var fsSvc FileSystem
	var err error
	switch cfg.Storage.Backend {
	case "s3":
		fsSvc, err = newS3FS(ctx, cfg.Storage.S3.Region, cfg.Storage.S3.Bucket, cfg.Storage.S3.Prefix, logger)
	default:
		fsSvc, err = newLocalFS(cfg.Storage.BaseDir, logger)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize file storage: %w", err)
	}

	var kvSvc KeyValueStore
	switch cfg.KV.Backend {
	case "redis":
		kvSvc, err = newRedisKV(cfg.KV.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize key-value store: %w", err)
		}
	default:
		kvSvc = newMemoryKV()
	}

	aiSvc, err := ai.NewGeminiService(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AI service: %w", err)
	}

	return &providerClient{
		auth: newLocalAuth(cfg.App.Username),
		fs:   fsSvc,
		ai:   aiSvc,
		kv:   kvSvc,
	}, nil
}

// StorageDir returns the local storage root of a client, or "" when the
// client stores files remotely. Used to scope the filesystem watcher.
func StorageDir(c Client) string {
	if c == nil {
		return ""
	}
	if pc, ok := c.(*providerClient); ok {
		if lfs, ok := pc.fs.(*localFS); ok {
			return lfs.BaseDir()
		}
	}
	return ""
}
