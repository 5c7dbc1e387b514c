package index

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/mapping"
	"github.com/blevesearch/bleve/search/query"

	"github.com/aryannaik/nubfinder/internal/feed"
)

var (
	// ErrIndexWrite reports a rebuild that could not be built or committed.
	// The previously committed corpus stays live.
	ErrIndexWrite = errors.New("index write failed")
	// ErrQuery reports an empty or malformed query, or a search cut short by
	// its context.
	ErrQuery = errors.New("invalid query")

	errClosed = errors.New("index closed")
)

// Index is the searchable corpus built from one catalog snapshot.
//
// Every rebuild produces a complete bleve index on the side and swaps it in
// under the write lock; searches hold the read lock for their whole
// duration, so a search observes exactly one generation.
type Index struct {
	writeMu sync.Mutex

	mu         sync.RWMutex
	corpus     bleve.Index
	count      uint64
	generation uint64
	closed     bool
}

// New returns an index holding an empty committed corpus.
func New() (*Index, error) {
	corpus, err := buildCorpus(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexWrite, err)
	}
	return &Index{corpus: corpus}, nil
}

// Rebuild replaces the corpus with one document per item, in input order.
func (x *Index) Rebuild(items []feed.Item) error {
	x.writeMu.Lock()
	defer x.writeMu.Unlock()

	corpus, err := buildCorpus(items)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIndexWrite, err)
	}

	x.mu.Lock()
	if x.closed {
		x.mu.Unlock()
		_ = corpus.Close()
		return fmt.Errorf("%w: %w", ErrIndexWrite, errClosed)
	}
	old := x.corpus
	x.corpus = corpus
	x.count = uint64(len(items))
	x.generation++
	x.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return nil
}

// Search returns up to MaxResults hits ordered by descending score; equal
// scores keep the order the items had in the last rebuild.
func (x *Index) Search(ctx context.Context, q string) ([]Result, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, fmt.Errorf("%w: empty query", ErrQuery)
	}

	qq, err := buildQuery(q)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuery, err)
	}

	req := bleve.NewSearchRequestOptions(qq, MaxResults, 0, false)
	req.Fields = []string{fieldSource, fieldTags}
	req.SortBy([]string{"-_score", "_id"})

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuery, err)
	}

	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return nil, fmt.Errorf("%w: %w", ErrQuery, errClosed)
	}

	res, err := x.corpus.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuery, err)
	}

	results := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		results = append(results, Result{
			Source: stringField(hit.Fields[fieldSource]),
			Tags:   stringField(hit.Fields[fieldTags]),
			Score:  hit.Score,
		})
	}
	return results, nil
}

// Count returns the number of documents in the live corpus.
func (x *Index) Count() uint64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.count
}

// Generation increments once per committed rebuild.
func (x *Index) Generation() uint64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.generation
}

func (x *Index) Close() error {
	x.writeMu.Lock()
	defer x.writeMu.Unlock()
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return nil
	}
	x.closed = true
	return x.corpus.Close()
}

func newMapping() mapping.IndexMapping {
	source := bleve.NewTextFieldMapping()
	source.Analyzer = keyword.Name
	source.Store = true
	source.IncludeInAll = false

	tags := bleve.NewTextFieldMapping()
	tags.Analyzer = standard.Name
	tags.Store = true

	doc := bleve.NewDocumentStaticMapping()
	doc.AddFieldMappingsAt(fieldSource, source)
	doc.AddFieldMappingsAt(fieldTags, tags)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultAnalyzer = standard.Name
	m.DefaultField = fieldTags
	return m
}

func buildCorpus(items []feed.Item) (bleve.Index, error) {
	corpus, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return nil, fmt.Errorf("create corpus: %w", err)
	}

	batch := corpus.NewBatch()
	for i, item := range items {
		doc := document{Source: item.Source, Tags: item.JoinedTags()}
		if err := batch.Index(docID(i), doc.fields()); err != nil {
			_ = corpus.Close()
			return nil, fmt.Errorf("add document %d: %w", i, err)
		}
	}
	if err := corpus.Batch(batch); err != nil {
		_ = corpus.Close()
		return nil, fmt.Errorf("commit: %w", err)
	}
	return corpus, nil
}

// buildQuery matches the raw query against source verbatim and, unless the
// query is a bare locator, the parsed query string against tags.
func buildQuery(q string) (query.Query, error) {
	exact := bleve.NewTermQuery(q)
	exact.SetField(fieldSource)
	if isLocator(q) {
		return exact, nil
	}

	parsed, err := bleve.NewQueryStringQuery(q).Parse()
	if err != nil {
		return nil, err
	}
	if v, ok := parsed.(query.ValidatableQuery); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	return bleve.NewDisjunctionQuery(exact, parsed), nil
}

func isLocator(q string) bool {
	return strings.Contains(q, "://") && !strings.ContainsAny(q, " \t\n")
}

// docID doubles as the tie-breaker: zero padding keeps lexical order equal
// to insertion order.
func docID(i int) string {
	return fmt.Sprintf("%010d", i)
}

func stringField(v interface{}) string {
	s, _ := v.(string)
	return s
}
