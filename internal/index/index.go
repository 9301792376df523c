// Package index provides an approximate nearest-neighbor index over face
// embeddings, used to answer "who else looks like this" queries without a
// full scan.
package index

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/coder/hnsw"

	"github.com/phajek/mediascan/internal/embedding"
	"github.com/phajek/mediascan/internal/media"
)

// maxNeighbors is the HNSW M parameter.
const maxNeighbors = 16

// Match is one search result: the stored face and its cosine similarity to
// the query embedding.
type Match struct {
	Face       media.FaceRecord
	Similarity float64
}

// FaceIndex wraps an HNSW graph over face embeddings. Faces are keyed by
// "itemID#index" so one media item can contribute several nodes.
type FaceIndex struct {
	mu         sync.RWMutex
	graph      *hnsw.Graph[string]
	savedGraph *hnsw.SavedGraph[string] // loaded from disk
	keyToFace  map[string]media.FaceRecord
	path       string
}

// New creates an empty face index.
func New() *FaceIndex {
	return &FaceIndex{
		keyToFace: make(map[string]media.FaceRecord),
	}
}

func faceKey(f media.FaceRecord) string {
	return fmt.Sprintf("%s#%d", f.ItemID, f.Index)
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = maxNeighbors
	g.Ml = 1.0 / float64(maxNeighbors)
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the index contents with the given faces. Faces without an
// embedding are skipped.
func (ix *FaceIndex) Build(faces []media.FaceRecord) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if len(faces) == 0 {
		ix.graph = nil
		ix.savedGraph = nil
		ix.keyToFace = make(map[string]media.FaceRecord)
		return nil
	}

	g := newGraph()
	ix.keyToFace = make(map[string]media.FaceRecord, len(faces))
	for _, f := range faces {
		if len(f.Embedding) == 0 {
			continue
		}
		key := faceKey(f)
		g.Add(hnsw.MakeNode(key, f.Embedding))
		ix.keyToFace[key] = f
	}

	ix.graph = g
	ix.savedGraph = nil
	return nil
}

// Add inserts a single face. No-op for faces without an embedding.
func (ix *FaceIndex) Add(f media.FaceRecord) {
	if len(f.Embedding) == 0 {
		return
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.graph == nil {
		ix.graph = newGraph()
	}
	key := faceKey(f)
	ix.graph.Add(hnsw.MakeNode(key, f.Embedding))
	ix.keyToFace[key] = f
}

// Search returns the up-to-k most similar stored faces, best first. Results
// removed via Remove are filtered out.
func (ix *FaceIndex) Search(query []float32, k int) ([]Match, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.graph == nil && ix.savedGraph == nil {
		return nil, errors.New("index not initialized")
	}

	var neighbors []hnsw.Node[string]
	if ix.savedGraph != nil {
		neighbors = ix.savedGraph.Search(query, k)
	} else {
		neighbors = ix.graph.Search(query, k)
	}

	matches := make([]Match, 0, len(neighbors))
	for _, n := range neighbors {
		face, ok := ix.keyToFace[n.Key]
		if !ok {
			continue
		}
		sim, err := embedding.CosineSimilarity(query, n.Value)
		if err != nil {
			continue
		}
		matches = append(matches, Match{Face: face, Similarity: sim})
	}
	return matches, nil
}

// Remove drops a face from search results. The HNSW graph has no true
// deletion; removal from the lookup map hides the node.
func (ix *FaceIndex) Remove(itemID string, faceIndex int) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.keyToFace, fmt.Sprintf("%s#%d", itemID, faceIndex))
}

// Count returns the number of searchable faces.
func (ix *FaceIndex) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.keyToFace)
}

// SetPath sets the file path used by Save.
func (ix *FaceIndex) SetPath(path string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.path = path
}

// Save persists the graph to the configured path. A nil graph removes the
// file. Face metadata is not persisted; callers rebuild the lookup map from
// the store after Load.
func (ix *FaceIndex) Save() error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.path == "" {
		return nil
	}
	if ix.graph == nil && ix.savedGraph == nil {
		_ = os.Remove(ix.path)
		return nil
	}

	f, err := os.Create(ix.path)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	defer f.Close()

	if ix.savedGraph != nil {
		err = ix.savedGraph.Export(f)
	} else {
		err = ix.graph.Export(f)
	}
	if err != nil {
		return fmt.Errorf("failed to export graph: %w", err)
	}
	return nil
}

// Load reads a persisted graph. A missing file is not an error; the caller
// builds from the store instead. RebuildLookup must be called afterwards to
// make loaded nodes searchable.
func (ix *FaceIndex) Load(path string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.path = path
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	saved, err := hnsw.LoadSavedGraph[string](path)
	if err != nil {
		return fmt.Errorf("failed to load index: %w", err)
	}
	ix.savedGraph = saved
	return nil
}

// RebuildLookup repopulates the key-to-face map from stored faces, typically
// after Load.
func (ix *FaceIndex) RebuildLookup(faces []media.FaceRecord) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.keyToFace = make(map[string]media.FaceRecord, len(faces))
	for _, f := range faces {
		if len(f.Embedding) == 0 {
			continue
		}
		ix.keyToFace[faceKey(f)] = f
	}
}

// IsEmpty reports whether no graph data is present.
func (ix *FaceIndex) IsEmpty() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.graph == nil && ix.savedGraph == nil
}
