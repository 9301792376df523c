package media

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Library enumerates the items to process. Implementations must return
// stable ids across calls so skip logic and resumption work.
type Library interface {
	ListAllItems(ctx context.Context) ([]MediaItem, error)
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}

var videoExtensions = map[string]bool{
	".mp4": true,
	".mov": true,
	".avi": true,
	".mkv": true,
}

// FSLibrary enumerates media files under a directory tree. Item ids are the
// slash-separated paths relative to the root, which makes them stable for a
// given tree; results are sorted by id.
type FSLibrary struct {
	Root string
}

// NewFSLibrary creates a filesystem library rooted at dir.
func NewFSLibrary(dir string) *FSLibrary {
	return &FSLibrary{Root: dir}
}

// ListAllItems walks the tree and returns every recognized media file.
// Image dimensions come from the file header only; no pixel data is decoded
// here. Files whose header cannot be read still enumerate with zero
// dimensions so the pipeline can report the decode failure per item.
func (l *FSLibrary) ListAllItems(ctx context.Context) ([]MediaItem, error) {
	var items []MediaItem

	err := filepath.WalkDir(l.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		isImage := imageExtensions[ext]
		isVideo := videoExtensions[ext]
		if !isImage && !isVideo {
			return nil
		}

		rel, err := filepath.Rel(l.Root, path)
		if err != nil {
			return err
		}

		item := MediaItem{
			ID:      filepath.ToSlash(rel),
			Path:    path,
			IsVideo: isVideo,
		}
		if isImage {
			if w, h, err := readDimensions(path); err == nil {
				item.Width = w
				item.Height = h
			}
		}
		items = append(items, item)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk library: %w", err)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// readDimensions reads width and height from the image header.
func readDimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
