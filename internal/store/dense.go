package store

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// denseOversampleFactor and denseOversampleFloor control how far a filtered
// query overfetches from the graph before narrowing to filterIDs, since HNSW
// has no native id-filter primitive.
const (
	denseOversampleFactor = 4
	denseOversampleFloor  = 20
)

// hnswCollection is one named vector collection: a coder/hnsw graph plus the
// id mapping needed to expose stable int64 ids over the graph's own uint64
// key space.
type hnswCollection struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	dim     int
	idMap   map[int64]uint64 // chunk id -> graph key
	keyMap  map[uint64]int64 // graph key -> chunk id
	nextKey uint64
}

// hnswCollectionMeta is the gob-persisted id mapping for one collection.
type hnswCollectionMeta struct {
	IDMap   map[int64]uint64
	NextKey uint64
	Dim     int
}

func newHNSWCollection(dim int) *hnswCollection {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	return &hnswCollection{
		graph:  graph,
		dim:    dim,
		idMap:  make(map[int64]uint64),
		keyMap: make(map[uint64]int64),
	}
}

// HNSWDenseIndex adapts coder/hnsw into the DenseIndex contract: one graph
// per named collection, gob-persisted to <dataDir>/<name>.hnsw(.meta) so a
// restart resumes without rebuilding from the metadata store.
type HNSWDenseIndex struct {
	mu          sync.RWMutex
	dataDir     string
	collections map[string]*hnswCollection
}

// NewHNSWDenseIndex opens the dense adapter rooted at dataDir. Existing
// on-disk collections are loaded lazily on first use, not eagerly at startup.
func NewHNSWDenseIndex(dataDir string) (*HNSWDenseIndex, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create dense base dir: %w", err)
	}
	return &HNSWDenseIndex{
		dataDir:     dataDir,
		collections: make(map[string]*hnswCollection),
	}, nil
}

func (s *HNSWDenseIndex) indexPath(name string) string {
	return filepath.Join(s.dataDir, name+".hnsw")
}

func (s *HNSWDenseIndex) metaPath(name string) string {
	return s.indexPath(name) + ".meta"
}

// Create registers a brand-new empty collection. It fails if a collection of
// that name is already held open in-process; it does not consult disk. A
// collection is first written to disk by VecAdd, VecDel or Close.
func (s *HNSWDenseIndex) Create(name string, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.collections[name]; exists {
		return fmt.Errorf("dense collection %q already exists", name)
	}
	s.collections[name] = newHNSWCollection(dim)
	return nil
}

// Delete drops the in-memory graph and removes its persisted files, if any.
func (s *HNSWDenseIndex) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections, name)
	if err := os.Remove(s.indexPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete dense collection %q: %w", name, err)
	}
	if err := os.Remove(s.metaPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete dense collection %q metadata: %w", name, err)
	}
	return nil
}

// open returns the live collection for name, loading it from disk if it is
// not already held open in-process.
func (s *HNSWDenseIndex) open(name string) (*hnswCollection, error) {
	s.mu.RLock()
	col, ok := s.collections[name]
	s.mu.RUnlock()
	if ok {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[name]; ok {
		return col, nil
	}

	col, err := s.loadCollection(name)
	if err != nil {
		return nil, fmt.Errorf("dense collection %q not found: %w", name, err)
	}
	s.collections[name] = col
	return col, nil
}

func (s *HNSWDenseIndex) loadCollection(name string) (*hnswCollection, error) {
	metaFile, err := os.Open(s.metaPath(name))
	if err != nil {
		return nil, fmt.Errorf("open metadata: %w", err)
	}
	defer metaFile.Close()

	var meta hnswCollectionMeta
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}

	col := newHNSWCollection(meta.Dim)
	col.idMap = meta.IDMap
	col.nextKey = meta.NextKey
	for id, key := range col.idMap {
		col.keyMap[key] = id
	}

	graphFile, err := os.Open(s.indexPath(name))
	if err != nil {
		return nil, fmt.Errorf("open graph: %w", err)
	}
	defer graphFile.Close()

	// coder/hnsw Import requires an io.ByteReader.
	if err := col.graph.Import(bufio.NewReader(graphFile)); err != nil {
		return nil, fmt.Errorf("import graph: %w", err)
	}
	return col, nil
}

// saveCollection atomically persists the graph and its id mapping. Caller
// must hold col.mu; it only reads the collection, so a read lock suffices.
func (s *HNSWDenseIndex) saveCollection(name string, col *hnswCollection) error {
	indexPath := s.indexPath(name)
	tmpIndexPath := indexPath + ".tmp"
	file, err := os.Create(tmpIndexPath)
	if err != nil {
		return fmt.Errorf("create graph file: %w", err)
	}
	if err := col.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpIndexPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpIndexPath)
		return fmt.Errorf("close graph file: %w", err)
	}
	if err := os.Rename(tmpIndexPath, indexPath); err != nil {
		os.Remove(tmpIndexPath)
		return fmt.Errorf("rename graph file: %w", err)
	}

	metaPath := s.metaPath(name)
	tmpMetaPath := metaPath + ".tmp"
	metaFile, err := os.Create(tmpMetaPath)
	if err != nil {
		return fmt.Errorf("create metadata file: %w", err)
	}
	meta := hnswCollectionMeta{IDMap: col.idMap, NextKey: col.nextKey, Dim: col.dim}
	if err := gob.NewEncoder(metaFile).Encode(meta); err != nil {
		metaFile.Close()
		os.Remove(tmpMetaPath)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := metaFile.Close(); err != nil {
		os.Remove(tmpMetaPath)
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmpMetaPath, metaPath)
}

// VecAdd upserts points by chunk id, L2-normalizing each vector before
// insertion. An id that already exists is lazily re-keyed rather than
// deleted in place, avoiding a coder/hnsw bug where deleting the graph's
// last node corrupts it.
func (s *HNSWDenseIndex) VecAdd(name string, points []DenseVector) error {
	if len(points) == 0 {
		return nil
	}
	col, err := s.open(name)
	if err != nil {
		return err
	}

	col.mu.Lock()
	defer col.mu.Unlock()

	for _, p := range points {
		if len(p.Vector) != col.dim {
			return fmt.Errorf("dense vector for id %d has dimension %d, collection %q expects %d", p.ID, len(p.Vector), name, col.dim)
		}
	}

	for _, p := range points {
		if existingKey, exists := col.idMap[p.ID]; exists {
			delete(col.keyMap, existingKey)
			delete(col.idMap, p.ID)
		}

		key := col.nextKey
		col.nextKey++

		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)
		normalizeVectorInPlace(vec)

		col.graph.Add(hnsw.MakeNode(key, vec))
		col.idMap[p.ID] = key
		col.keyMap[key] = p.ID
	}

	return s.saveCollection(name, col)
}

// VecDel lazily tombstones ids: the graph nodes are orphaned, not removed,
// and are filtered out of subsequent query results.
func (s *HNSWDenseIndex) VecDel(name string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	col, err := s.open(name)
	if err != nil {
		return err
	}

	col.mu.Lock()
	defer col.mu.Unlock()

	for _, id := range ids {
		if key, exists := col.idMap[id]; exists {
			delete(col.keyMap, key)
			delete(col.idMap, id)
		}
	}

	return s.saveCollection(name, col)
}

// Query returns the limit nearest neighbors to vec. When filterIDs is
// non-nil, results are restricted to that set by oversampling the graph
// search and narrowing afterward, since HNSW exposes no native id filter.
func (s *HNSWDenseIndex) Query(name string, vec []float32, limit int, filterIDs []int64) ([]DenseHit, error) {
	col, err := s.open(name)
	if err != nil {
		return nil, err
	}

	col.mu.RLock()
	defer col.mu.RUnlock()

	if len(vec) != col.dim {
		return nil, fmt.Errorf("query vector has dimension %d, collection %q expects %d", len(vec), name, col.dim)
	}
	if col.graph.Len() == 0 {
		return []DenseHit{}, nil
	}

	normalized := make([]float32, len(vec))
	copy(normalized, vec)
	normalizeVectorInPlace(normalized)

	var filterSet map[int64]struct{}
	searchK := limit
	if filterIDs != nil {
		filterSet = make(map[int64]struct{}, len(filterIDs))
		for _, id := range filterIDs {
			filterSet[id] = struct{}{}
		}
		searchK = limit*denseOversampleFactor + denseOversampleFloor
		if searchK > col.graph.Len() {
			searchK = col.graph.Len()
		}
	}

	nodes := col.graph.Search(normalized, searchK)

	hits := make([]DenseHit, 0, limit)
	for _, node := range nodes {
		id, ok := col.keyMap[node.Key]
		if !ok {
			continue // tombstoned or orphaned key
		}
		if filterSet != nil {
			if _, ok := filterSet[id]; !ok {
				continue
			}
		}

		distance := col.graph.Distance(normalized, node.Value)
		hits = append(hits, DenseHit{
			ID:     id,
			Vector: node.Value,
			Score:  cosineDistanceToScore(distance),
		})
		if len(hits) == limit {
			break
		}
	}

	return hits, nil
}

// Close persists every collection currently held open.
func (s *HNSWDenseIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for name, col := range s.collections {
		col.mu.RLock()
		if err := s.saveCollection(name, col); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close dense collection %q: %w", name, err)
		}
		col.mu.RUnlock()
	}
	s.collections = make(map[string]*hnswCollection)
	return firstErr
}

var _ DenseIndex = (*HNSWDenseIndex)(nil)

// normalizeVectorInPlace scales v to unit length for cosine similarity.
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

// cosineDistanceToScore converts a coder/hnsw cosine distance (0 identical,
// 2 opposite) back into cosine similarity in [-1, 1] (1 identical, 0
// orthogonal, -1 opposite).
func cosineDistanceToScore(distance float32) float32 {
	return 1.0 - distance
}
