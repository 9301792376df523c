package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/phajek/mediascan/internal/config"
	"github.com/phajek/mediascan/internal/face"
	"github.com/phajek/mediascan/internal/labeler"
	"github.com/phajek/mediascan/internal/media"
	"github.com/phajek/mediascan/internal/store"
	"github.com/phajek/mediascan/internal/store/gallerydb"
	"github.com/phajek/mediascan/internal/store/memory"
	"github.com/phajek/mediascan/internal/store/postgres"
)

// openStore returns the configured store and a cleanup function. PostgreSQL
// is used when DATABASE_URL is set; otherwise results live in memory for the
// duration of the process.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	if cfg.Database.URL == "" {
		fmt.Println("DATABASE_URL not set, results are kept in memory only")
		return memory.New(), func() {}, nil
	}

	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres.NewStore(pool), func() { _ = pool.Close() }, nil
}

// openLibrary returns the media library and a cleanup function. An existing
// gallery database takes precedence over a plain filesystem walk.
func openLibrary(cfg *config.Config) (media.Library, func(), error) {
	if cfg.Gallery.DatabaseURL != "" {
		pool, err := gallerydb.NewPool(cfg.Gallery.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to gallery database: %w", err)
		}
		return gallerydb.NewLibrary(pool, cfg.Library.Root), func() { _ = pool.Close() }, nil
	}

	if cfg.Library.Root == "" {
		return nil, nil, errors.New("LIBRARY_ROOT or GALLERY_DATABASE_URL is required")
	}
	return media.NewFSLibrary(cfg.Library.Root), func() {}, nil
}

// newLocator creates the face locator, nil when no cascade is configured.
func newLocator(cfg *config.Config) (face.Locator, error) {
	if cfg.Face.CascadePath == "" {
		return nil, nil
	}
	locator, err := face.NewPigoLocator(cfg.Face.CascadePath, cfg.Tuning.Thresholds.FaceMinScore)
	if err != nil {
		return nil, fmt.Errorf("failed to load face cascade: %w", err)
	}
	return locator, nil
}

// newLabeler creates the annotation provider. An explicit provider name
// wins; otherwise the first configured API key is used, nil when none is.
func newLabeler(ctx context.Context, cfg *config.Config, provider string) (labeler.Provider, error) {
	switch provider {
	case "openai":
		if cfg.OpenAI.Token == "" {
			return nil, errors.New("OPENAI_TOKEN is required for the openai provider")
		}
		return labeler.NewOpenAIProvider(cfg.OpenAI.Token), nil
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, errors.New("GEMINI_API_KEY is required for the gemini provider")
		}
		return labeler.NewGeminiProvider(ctx, cfg.Gemini.APIKey)
	case "":
		if cfg.OpenAI.Token != "" {
			return labeler.NewOpenAIProvider(cfg.OpenAI.Token), nil
		}
		if cfg.Gemini.APIKey != "" {
			return labeler.NewGeminiProvider(ctx, cfg.Gemini.APIKey)
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown provider %q (expected openai or gemini)", provider)
	}
}
