package vectorstore

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/cecon-labs/codegraph/internal/chunk"
	"github.com/cecon-labs/codegraph/internal/embed"
)

// HNSWStore implements Store using coder/hnsw, a pure Go HNSW graph with no
// CGO dependency.
type HNSWStore struct {
	mu       sync.RWMutex
	graph    *hnsw.Graph[uint64]
	config   Config
	embedder embed.Embedder

	idMap   map[string]uint64 // chunk id -> internal key
	keyMap  map[uint64]string // internal key -> chunk id
	nextKey uint64

	chunks    map[string]*chunk.Chunk   // chunk id -> hydrated chunk
	fileIndex map[string]map[string]bool // file path -> set of chunk ids

	closed bool
}

type hnswMetadata struct {
	IDMap     map[string]uint64
	NextKey   uint64
	Config    Config
	Chunks    map[string]*chunk.Chunk
	FileIndex map[string]map[string]bool
}

// NewHNSWStore creates an HNSW-backed vector store. embedder is used only
// by Search, to turn query text into a vector; it may be nil if the caller
// never calls Search with a text query.
func NewHNSWStore(cfg Config, embedder embed.Embedder) (*HNSWStore, error) {
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "cos":
		graph.Distance = hnsw.CosineDistance
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWStore{
		graph:     graph,
		config:    cfg,
		embedder:  embedder,
		idMap:     make(map[string]uint64),
		keyMap:    make(map[uint64]string),
		chunks:    make(map[string]*chunk.Chunk),
		fileIndex: make(map[string]map[string]bool),
	}, nil
}

// UpsertChunks replaces chunks by id. Chunks with no vector are stored for
// hydration but excluded from the HNSW graph until re-embedded.
func (s *HNSWStore) UpsertChunks(ctx context.Context, chunks []*chunk.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector store is closed")
	}

	for _, c := range chunks {
		if existingKey, exists := s.idMap[c.ID]; exists {
			// Lazy deletion: coder/hnsw misbehaves when the last node in
			// the graph is removed, so orphan the mapping instead.
			delete(s.keyMap, existingKey)
			delete(s.idMap, c.ID)
		}
		s.unindexFromFile(c.ID)

		s.chunks[c.ID] = c
		s.indexByFile(c)

		if len(c.Vector) == 0 {
			continue
		}
		if len(c.Vector) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(c.Vector)}
		}

		vec := make([]float32, len(c.Vector))
		copy(vec, c.Vector)
		if s.config.Metric == "cos" {
			normalizeVectorInPlace(vec)
		}

		key := s.nextKey
		s.nextKey++
		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[c.ID] = key
		s.keyMap[key] = c.ID
	}

	return nil
}

func (s *HNSWStore) indexByFile(c *chunk.Chunk) {
	set, ok := s.fileIndex[c.FilePath]
	if !ok {
		set = make(map[string]bool)
		s.fileIndex[c.FilePath] = set
	}
	set[c.ID] = true
}

func (s *HNSWStore) unindexFromFile(chunkID string) {
	existing, ok := s.chunks[chunkID]
	if !ok {
		return
	}
	if set, ok := s.fileIndex[existing.FilePath]; ok {
		delete(set, chunkID)
		if len(set) == 0 {
			delete(s.fileIndex, existing.FilePath)
		}
	}
}

// Search embeds queryText via the configured embedder and returns chunks in
// descending similarity order, ties broken by chunk id ascending.
func (s *HNSWStore) Search(ctx context.Context, queryText string, k int) ([]*Result, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("vector store has no embedder configured for query search")
	}

	query, err := s.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("vector store is closed")
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}
	if s.graph.Len() == 0 {
		return []*Result{}, nil
	}

	normalizedQuery := make([]float32, len(query))
	copy(normalizedQuery, query)
	if s.config.Metric == "cos" {
		normalizeVectorInPlace(normalizedQuery)
	}

	nodes := s.graph.Search(normalizedQuery, k)

	results := make([]*Result, 0, len(nodes))
	for _, node := range nodes {
		id, exists := s.keyMap[node.Key]
		if !exists {
			continue // lazily deleted
		}
		distance := s.graph.Distance(normalizedQuery, node.Value)
		results = append(results, &Result{
			ChunkID:  id,
			Distance: distance,
			Score:    distanceToScore(distance, s.config.Metric),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	if len(results) > k {
		results = results[:k]
	}

	return results, nil
}

// GetChunksByIds batch-hydrates previously upserted chunks.
func (s *HNSWStore) GetChunksByIds(ctx context.Context, ids []string) ([]*chunk.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("vector store is closed")
	}

	out := make([]*chunk.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// DeleteChunksByFile removes all chunks belonging to path in one operation.
func (s *HNSWStore) DeleteChunksByFile(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector store is closed")
	}

	set, ok := s.fileIndex[path]
	if !ok {
		return nil
	}
	for id := range set {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
		delete(s.chunks, id)
	}
	delete(s.fileIndex, path)

	return nil
}

// Count returns the number of chunks currently hydratable (including those
// without a vector).
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return len(s.chunks)
}

// Save persists the index to disk using an atomic temp-file-then-rename.
func (s *HNSWStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("vector store is closed")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmpIndexPath := path + ".tmp"
	file, err := os.Create(tmpIndexPath)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if err := s.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpIndexPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpIndexPath)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmpIndexPath, path); err != nil {
		os.Remove(tmpIndexPath)
		return fmt.Errorf("rename index file: %w", err)
	}

	return s.saveMetadata(path + ".meta")
}

func (s *HNSWStore) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}

	meta := hnswMetadata{
		IDMap:     s.idMap,
		NextKey:   s.nextKey,
		Config:    s.config,
		Chunks:    s.chunks,
		FileIndex: s.fileIndex,
	}

	encoder := gob.NewEncoder(file)
	if err := encoder.Encode(meta); err != nil {
		if closeErr := file.Close(); closeErr != nil {
			slog.Warn("failed to close temp metadata file during cleanup", slog.String("error", closeErr.Error()))
		}
		os.Remove(tmpPath)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// Load restores the index from disk.
func (s *HNSWStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector store is closed")
	}

	if err := s.loadMetadata(path + ".meta"); err != nil {
		return fmt.Errorf("load metadata: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	if err := s.graph.Import(reader); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}

	return nil
}

func (s *HNSWStore) loadMetadata(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close metadata file", slog.String("error", err.Error()))
		}
	}()

	var meta hnswMetadata
	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(&meta); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}

	s.idMap = meta.IDMap
	s.keyMap = make(map[uint64]string, len(meta.IDMap))
	s.nextKey = meta.NextKey
	s.config = meta.Config
	s.chunks = meta.Chunks
	s.fileIndex = meta.FileIndex
	if s.chunks == nil {
		s.chunks = make(map[string]*chunk.Chunk)
	}
	if s.fileIndex == nil {
		s.fileIndex = make(map[string]map[string]bool)
	}

	for id, key := range s.idMap {
		s.keyMap[key] = id
	}

	return nil
}

// Close releases resources held by the store.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

var _ Store = (*HNSWStore)(nil)

func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

func distanceToScore(distance float32, metric string) float32 {
	switch metric {
	case "cos":
		return 1.0 - distance/2.0
	case "l2":
		return 1.0 / (1.0 + distance)
	default:
		return 1.0 - distance/2.0
	}
}
