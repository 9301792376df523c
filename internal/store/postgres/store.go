package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/phajek/mediascan/internal/media"
	"github.com/phajek/mediascan/internal/phash"
)

// Store implements the store interfaces on top of PostgreSQL.
type Store struct {
	pool *Pool
}

// NewStore creates a store backed by the given pool.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// GetHash retrieves the hash for an item, nil if not computed yet.
func (s *Store) GetHash(ctx context.Context, itemID string) (*phash.Hash, error) {
	var hex string
	err := s.pool.db.QueryRowContext(ctx, "SELECT hash FROM hashes WHERE item_id = $1", itemID).Scan(&hex)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query hash: %w", err)
	}

	h, err := phash.ParseHex(hex)
	if err != nil {
		return nil, fmt.Errorf("stored hash for %s is corrupt: %w", itemID, err)
	}
	return &h, nil
}

// HasHash checks whether the hashing stage has run for an item.
func (s *Store) HasHash(ctx context.Context, itemID string) (bool, error) {
	var exists bool
	err := s.pool.db.QueryRowContext(
		ctx, "SELECT EXISTS(SELECT 1 FROM hashes WHERE item_id = $1)", itemID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check hash exists: %w", err)
	}
	return exists, nil
}

// ListHashes returns all stored hashes keyed by item id.
func (s *Store) ListHashes(ctx context.Context) (map[string]phash.Hash, error) {
	rows, err := s.pool.db.QueryContext(ctx, "SELECT item_id, hash FROM hashes")
	if err != nil {
		return nil, fmt.Errorf("query hashes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]phash.Hash)
	for rows.Next() {
		var id, hex string
		if err := rows.Scan(&id, &hex); err != nil {
			return nil, fmt.Errorf("scan hash row: %w", err)
		}
		h, err := phash.ParseHex(hex)
		if err != nil {
			return nil, fmt.Errorf("stored hash for %s is corrupt: %w", id, err)
		}
		out[id] = h
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hash rows: %w", err)
	}
	return out, nil
}

// SaveHash stores the hash for an item, overwriting any previous value.
func (s *Store) SaveHash(ctx context.Context, itemID string, hash phash.Hash) error {
	_, err := s.pool.db.ExecContext(ctx, `
		INSERT INTO hashes (item_id, hash) VALUES ($1, $2)
		ON CONFLICT (item_id) DO UPDATE SET hash = EXCLUDED.hash
	`, itemID, hash.Hex())
	if err != nil {
		return fmt.Errorf("save hash: %w", err)
	}
	return nil
}

const faceColumns = "item_id, face_index, x1, y1, x2, y2, embedding, confidence, person_id"

// GetFaces retrieves all faces for an item ordered by face index.
func (s *Store) GetFaces(ctx context.Context, itemID string) ([]media.FaceRecord, error) {
	rows, err := s.pool.db.QueryContext(ctx,
		"SELECT "+faceColumns+" FROM faces WHERE item_id = $1 ORDER BY face_index", itemID)
	if err != nil {
		return nil, fmt.Errorf("query faces: %w", err)
	}
	defer rows.Close()

	return scanFaces(rows)
}

// IsFacesProcessed checks whether face detection has run for an item.
func (s *Store) IsFacesProcessed(ctx context.Context, itemID string) (bool, error) {
	var exists bool
	err := s.pool.db.QueryRowContext(
		ctx, "SELECT EXISTS(SELECT 1 FROM faces_processed WHERE item_id = $1)", itemID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check faces processed: %w", err)
	}
	return exists, nil
}

// CountFaces returns the total number of faces stored.
func (s *Store) CountFaces(ctx context.Context) (int, error) {
	var count int
	err := s.pool.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM faces").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count faces: %w", err)
	}
	return count, nil
}

// AllFaces returns every stored face ordered by item and face index.
func (s *Store) AllFaces(ctx context.Context) ([]media.FaceRecord, error) {
	rows, err := s.pool.db.QueryContext(ctx,
		"SELECT "+faceColumns+" FROM faces ORDER BY item_id, face_index")
	if err != nil {
		return nil, fmt.Errorf("query all faces: %w", err)
	}
	defer rows.Close()

	return scanFaces(rows)
}

// SaveFaces replaces the face set for an item and marks it processed, all in
// one transaction.
func (s *Store) SaveFaces(ctx context.Context, itemID string, faces []media.FaceRecord) error {
	tx, err := s.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM faces WHERE item_id = $1", itemID); err != nil {
		return fmt.Errorf("clear faces: %w", err)
	}

	for _, f := range faces {
		var personID sql.NullString
		if f.PersonID != "" {
			personID = sql.NullString{String: f.PersonID, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO faces (item_id, face_index, x1, y1, x2, y2, embedding, confidence, person_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, itemID, f.Index, f.BBox.X1, f.BBox.Y1, f.BBox.X2, f.BBox.Y2,
			pgvector.NewVector(f.Embedding), f.Confidence, personID)
		if err != nil {
			return fmt.Errorf("insert face: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO faces_processed (item_id) VALUES ($1)
		ON CONFLICT (item_id) DO UPDATE SET processed_at = NOW()
	`, itemID)
	if err != nil {
		return fmt.Errorf("mark faces processed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit faces: %w", err)
	}
	return nil
}

// FindSimilarFaces returns up to limit faces closest to the query embedding
// by cosine distance, using the pgvector HNSW index.
func (s *Store) FindSimilarFaces(ctx context.Context, embedding []float32, limit int) ([]media.FaceRecord, error) {
	rows, err := s.pool.db.QueryContext(ctx,
		"SELECT "+faceColumns+" FROM faces ORDER BY embedding <=> $1::vector LIMIT $2",
		pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("query similar faces: %w", err)
	}
	defer rows.Close()

	return scanFaces(rows)
}

// GetAnnotations retrieves all annotations for an item.
func (s *Store) GetAnnotations(ctx context.Context, itemID string) ([]media.Annotation, error) {
	rows, err := s.pool.db.QueryContext(ctx,
		"SELECT item_id, kind, text, confidence FROM annotations WHERE item_id = $1 ORDER BY id", itemID)
	if err != nil {
		return nil, fmt.Errorf("query annotations: %w", err)
	}
	defer rows.Close()

	var out []media.Annotation
	for rows.Next() {
		var a media.Annotation
		var kind string
		if err := rows.Scan(&a.ItemID, &kind, &a.Text, &a.Confidence); err != nil {
			return nil, fmt.Errorf("scan annotation: %w", err)
		}
		a.Kind = media.AnnotationKind(kind)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate annotations: %w", err)
	}
	return out, nil
}

// HasAnnotations checks whether any annotation of the given kind exists.
func (s *Store) HasAnnotations(ctx context.Context, itemID string, kind media.AnnotationKind) (bool, error) {
	var exists bool
	err := s.pool.db.QueryRowContext(
		ctx, "SELECT EXISTS(SELECT 1 FROM annotations WHERE item_id = $1 AND kind = $2)",
		itemID, string(kind),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check annotations exist: %w", err)
	}
	return exists, nil
}

// SaveAnnotations appends annotations for an item.
func (s *Store) SaveAnnotations(ctx context.Context, itemID string, annotations []media.Annotation) error {
	tx, err := s.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, a := range annotations {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO annotations (item_id, kind, text, confidence) VALUES ($1, $2, $3, $4)",
			itemID, string(a.Kind), a.Text, a.Confidence)
		if err != nil {
			return fmt.Errorf("insert annotation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit annotations: %w", err)
	}
	return nil
}

// DeleteAnnotations removes all annotations of a kind for an item.
func (s *Store) DeleteAnnotations(ctx context.Context, itemID string, kind media.AnnotationKind) error {
	_, err := s.pool.db.ExecContext(ctx,
		"DELETE FROM annotations WHERE item_id = $1 AND kind = $2", itemID, string(kind))
	if err != nil {
		return fmt.Errorf("delete annotations: %w", err)
	}
	return nil
}

func scanFaces(rows *sql.Rows) ([]media.FaceRecord, error) {
	var out []media.FaceRecord
	for rows.Next() {
		var f media.FaceRecord
		var vec pgvector.Vector
		var personID sql.NullString
		err := rows.Scan(&f.ItemID, &f.Index,
			&f.BBox.X1, &f.BBox.Y1, &f.BBox.X2, &f.BBox.Y2,
			&vec, &f.Confidence, &personID)
		if err != nil {
			return nil, fmt.Errorf("scan face: %w", err)
		}
		f.Embedding = vec.Slice()
		f.PersonID = personID.String
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faces: %w", err)
	}
	return out, nil
}
