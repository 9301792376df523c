// Package gallerydb enumerates media items from an existing gallery's
// MariaDB/MySQL database. It is read-only; all computed results go to the
// primary store.
package gallerydb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/phajek/mediascan/internal/media"
)

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new MariaDB connection pool.
func NewPool(dsn string) (*Pool, error) {
	if dsn == "" {
		return nil, errors.New("gallery database DSN is required")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open gallery database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping gallery database: %w", err)
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// Library adapts a gallery database to the media library interface. The
// gallery schema keeps one row per media file with dimensions and a type
// discriminator.
type Library struct {
	pool *Pool
	// Root is prefixed to relative file paths from the database.
	Root string
}

// NewLibrary creates a library view over the gallery database.
func NewLibrary(pool *Pool, root string) *Library {
	return &Library{pool: pool, Root: root}
}

// ListAllItems returns every media item known to the gallery, ordered by id.
func (l *Library) ListAllItems(ctx context.Context) ([]media.MediaItem, error) {
	query := `
		SELECT file_uid, file_name, file_width, file_height, file_video
		FROM files
		WHERE deleted_at IS NULL
		ORDER BY file_uid
	`

	rows, err := l.pool.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query gallery files: %w", err)
	}
	defer rows.Close()

	var items []media.MediaItem
	for rows.Next() {
		var item media.MediaItem
		var name string
		var width, height sql.NullInt64
		var isVideo sql.NullBool
		if err := rows.Scan(&item.ID, &name, &width, &height, &isVideo); err != nil {
			return nil, fmt.Errorf("scan gallery file: %w", err)
		}
		item.Path = l.Root + "/" + name
		item.Width = int(width.Int64)
		item.Height = int(height.Int64)
		item.IsVideo = isVideo.Bool
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gallery files: %w", err)
	}
	return items, nil
}

// CountItems returns the number of non-deleted files in the gallery.
func (l *Library) CountItems(ctx context.Context) (int, error) {
	var count int
	err := l.pool.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM files WHERE deleted_at IS NULL").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count gallery files: %w", err)
	}
	return count, nil
}
