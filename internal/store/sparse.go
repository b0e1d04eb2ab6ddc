package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/en" // registers the "en" analyzer (stop words + snowball stemmer)
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/gofrs/flock"
)

const contentField = "content"

// noneAnalyzerName is the custom unstemmed analyzer used when a caller asks
// for lang == "none": unicode tokenizer, lowercased, no stop-word removal,
// no stemming.
const noneAnalyzerName = "none_analyzer"

// BleveSparseIndex adapts bleve/v2 into the SparseIndex contract: one
// directory per named index, each an independent file-backed inverted index.
type BleveSparseIndex struct {
	mu      sync.RWMutex
	baseDir string
	indexes map[string]bleve.Index
	locks   map[string]*flock.Flock
}

// NewBleveSparseIndex opens the sparse adapter rooted at baseDir. Existing
// on-disk indexes are opened lazily on first use, not eagerly at startup.
func NewBleveSparseIndex(baseDir string) (*BleveSparseIndex, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create sparse base dir: %w", err)
	}
	return &BleveSparseIndex{
		baseDir: baseDir,
		indexes: make(map[string]bleve.Index),
		locks:   make(map[string]*flock.Flock),
	}, nil
}

func (s *BleveSparseIndex) path(name string) string {
	return filepath.Join(s.baseDir, name)
}

// typeField discriminates which per-language document mapping (and thus
// which stored-term analyzer) a document was indexed under, since bleve
// fixes field analyzers per document type rather than per call.
const typeField = "_type"

func buildMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	if err := im.AddCustomAnalyzer(noneAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": "unicode",
		"token_filters": []string{
			lowercase.Name,
		},
	}); err != nil {
		return nil, fmt.Errorf("add none analyzer: %w", err)
	}
	im.DefaultAnalyzer = standard.Name

	enField := bleve.NewTextFieldMapping()
	enField.Analyzer = "en"
	enDoc := bleve.NewDocumentMapping()
	enDoc.AddFieldMappingsAt(contentField, enField)
	im.AddDocumentMapping("en_doc", enDoc)

	noneField := bleve.NewTextFieldMapping()
	noneField.Analyzer = noneAnalyzerName
	noneDoc := bleve.NewDocumentMapping()
	noneDoc.AddFieldMappingsAt(contentField, noneField)
	im.AddDocumentMapping("none_doc", noneDoc)

	im.TypeField = typeField
	im.DefaultMapping = enDoc
	im.DefaultType = "en_doc"

	return im, nil
}

// docType selects the document mapping (and thus stored-term analyzer) a
// document is indexed under for the given language.
func docType(lang string) string {
	if lang == "none" {
		return "none_doc"
	}
	return "en_doc"
}

// analyzerForLang selects the query-time analyzer matching docType's
// stored-term analyzer, so tokenization of the query agrees with the index.
func analyzerForLang(lang string) string {
	if lang == "none" {
		return noneAnalyzerName
	}
	return "en"
}

// validateIndexIntegrity guards against opening a half-written index
// directory left behind by a crash mid-write.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// Create opens a brand-new inverted index at <baseDir>/<name>. It fails if
// that path already holds an index.
func (s *BleveSparseIndex) Create(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.indexes[name]; exists {
		return fmt.Errorf("sparse index %q already exists", name)
	}

	path := s.path(name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("sparse index %q already exists at %s", name, path)
	}

	im, err := buildMapping()
	if err != nil {
		return err
	}
	idx, err := bleve.New(path, im)
	if err != nil {
		return fmt.Errorf("create sparse index %q: %w", name, err)
	}

	s.indexes[name] = idx
	s.locks[name] = flock.New(filepath.Join(path, ".write.lock"))
	return nil
}

// Delete idempotently removes the named index and its directory.
func (s *BleveSparseIndex) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.indexes[name]; ok {
		_ = idx.Close()
		delete(s.indexes, name)
		delete(s.locks, name)
	}
	if err := os.RemoveAll(s.path(name)); err != nil {
		return fmt.Errorf("delete sparse index %q: %w", name, err)
	}
	return nil
}

// open returns the live handle for name, opening it from disk (with
// corruption auto-recovery) if it is not already held open in-process.
func (s *BleveSparseIndex) open(name string) (bleve.Index, error) {
	s.mu.RLock()
	idx, ok := s.indexes[name]
	s.mu.RUnlock()
	if ok {
		return idx, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.indexes[name]; ok {
		return idx, nil
	}

	path := s.path(name)
	if validErr := validateIndexIntegrity(path); validErr != nil {
		slog.Warn("sparse_index_corrupted", slog.String("index", name), slog.String("error", validErr.Error()))
		return nil, fmt.Errorf("sparse index %q not found or corrupted: %w", name, validErr)
	}

	idx, err := bleve.Open(path)
	if err != nil {
		if isCorruptionError(err) {
			return nil, fmt.Errorf("sparse index %q is corrupted: %w", name, err)
		}
		return nil, fmt.Errorf("sparse index %q not found: %w", name, err)
	}
	s.indexes[name] = idx
	s.locks[name] = flock.New(filepath.Join(path, ".write.lock"))
	return idx, nil
}

func docID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// DocAdd tokenizes and stems each document's content (per lang) and stores
// it keyed by its chunk id, serialized by a per-index file lock.
func (s *BleveSparseIndex) DocAdd(name string, docs []SparseDoc, lang string) error {
	if len(docs) == 0 {
		return nil
	}
	idx, err := s.open(name)
	if err != nil {
		return err
	}

	s.mu.RLock()
	lock := s.locks[name]
	s.mu.RUnlock()
	if lock != nil {
		if err := lock.Lock(); err != nil {
			return fmt.Errorf("lock sparse index %q: %w", name, err)
		}
		defer lock.Unlock()
	}

	batch := idx.NewBatch()
	for _, doc := range docs {
		body := map[string]interface{}{
			contentField: doc.Content,
			typeField:    docType(lang),
		}
		if err := batch.Index(docID(doc.ID), body); err != nil {
			return fmt.Errorf("index doc %d: %w", doc.ID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return fmt.Errorf("execute batch in sparse index %q: %w", name, err)
	}
	return nil
}

// DocDel removes docs by id; missing ids are silently ignored.
func (s *BleveSparseIndex) DocDel(name string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	idx, err := s.open(name)
	if err != nil {
		return err
	}

	s.mu.RLock()
	lock := s.locks[name]
	s.mu.RUnlock()
	if lock != nil {
		if err := lock.Lock(); err != nil {
			return fmt.Errorf("lock sparse index %q: %w", name, err)
		}
		defer lock.Unlock()
	}

	batch := idx.NewBatch()
	for _, id := range ids {
		batch.Delete(docID(id))
	}
	if err := idx.Batch(batch); err != nil {
		return fmt.Errorf("delete batch in sparse index %q: %w", name, err)
	}
	return nil
}

// Query runs a match query with the given operator, optionally filtered to
// a set of ids, and returns the top limit hits with each score divided by
// the batch's own top score (so the top hit scores 1).
func (s *BleveSparseIndex) Query(name string, q string, limit int, filterIDs []int64, op QueryOp, lang string) ([]SparseHit, error) {
	idx, err := s.open(name)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(q) == "" {
		return []SparseHit{}, nil
	}

	matchQuery := bleve.NewMatchQuery(q)
	matchQuery.SetField(contentField)
	matchQuery.Analyzer = analyzerForLang(lang)
	if op == OpAND {
		matchQuery.SetOperator(query.MatchQueryOperatorAnd)
	} else {
		matchQuery.SetOperator(query.MatchQueryOperatorOr)
	}

	var finalQuery query.Query = matchQuery
	if filterIDs != nil {
		idStrs := make([]string, len(filterIDs))
		for i, id := range filterIDs {
			idStrs[i] = docID(id)
		}
		finalQuery = bleve.NewConjunctionQuery(matchQuery, bleve.NewDocIDQuery(idStrs))
	}

	req := bleve.NewSearchRequest(finalQuery)
	req.Size = limit

	result, err := idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("query sparse index %q: %w", name, err)
	}

	hits := make([]SparseHit, 0, len(result.Hits))
	var maxScore float64
	for _, h := range result.Hits {
		if h.Score > maxScore {
			maxScore = h.Score
		}
	}
	for _, h := range result.Hits {
		id, err := strconv.ParseInt(h.ID, 10, 64)
		if err != nil {
			continue
		}
		score := 0.0
		if maxScore > 0 {
			score = h.Score / maxScore
		}
		hits = append(hits, SparseHit{ID: id, Score: score})
	}
	return hits, nil
}

// Close closes every index currently held open.
func (s *BleveSparseIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for name, idx := range s.indexes {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close sparse index %q: %w", name, err)
		}
	}
	s.indexes = make(map[string]bleve.Index)
	s.locks = make(map[string]*flock.Flock)
	return firstErr
}

var _ SparseIndex = (*BleveSparseIndex)(nil)
