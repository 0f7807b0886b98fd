package keyword

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/semdex/internal/models"
)

var _ Mirror = (*BleveIndex)(nil)

// entry is the shape stored in Bleve for a catalog document.
type entry struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func toEntry(doc *models.Document) entry {
	e := entry{Content: doc.Content}
	if title, ok := doc.Metadata["title"].(string); ok {
		e.Title = title
	}
	return e
}

// BleveIndex implements Mirror on a Bleve index stored on disk.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex opens the Bleve index at path, creating it when it does not exist.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, err := bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// newMapping indexes title and content with the standard analyzer (lowercase, no stemming).
func newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("title", text)
	docMapping.AddFieldMappingsAt("content", text)
	im.DefaultMapping = docMapping
	return im
}

// Index adds or replaces doc.
func (b *BleveIndex) Index(ctx context.Context, doc *models.Document) error {
	if err := b.index.Index(doc.ID, toEntry(doc)); err != nil {
		return fmt.Errorf("failed to index %s: %w", doc.ID, err)
	}
	return nil
}

// Delete removes a document. Unknown ids are ignored.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// Reset replaces the whole index content with docs in one batch.
func (b *BleveIndex) Reset(ctx context.Context, docs []*models.Document) error {
	ids, err := b.allIDs()
	if err != nil {
		return err
	}
	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	for _, doc := range docs {
		if err := batch.Index(doc.ID, toEntry(doc)); err != nil {
			return fmt.Errorf("failed to index %s: %w", doc.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to apply batch: %w", err)
	}
	return nil
}

func (b *BleveIndex) allIDs() ([]string, error) {
	count, err := b.index.DocCount()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(count)
	res, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	ids := make([]string, len(res.Hits))
	for i, hit := range res.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// Search returns up to limit documents matching query, best first.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]models.KeywordResult, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return []models.KeywordResult{}, nil
	}
	var o SearchOptions
	if opts != nil {
		o = *opts
	}
	titleBoost := 1.0
	if o.TitleBoost > 1 {
		titleBoost = o.TitleBoost
	}
	q := bleve.NewDisjunctionQuery(
		fieldQuery(query, "title", titleBoost, o),
		fieldQuery(query, "content", 1, o),
	)

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]models.KeywordResult, len(res.Hits))
	for i, hit := range res.Hits {
		out[i] = models.KeywordResult{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// fieldQuery matches any query term in field, fuzzily when requested.
func fieldQuery(query, field string, boost float64, o SearchOptions) blevequery.Query {
	if !o.Fuzzy {
		mq := bleve.NewMatchQuery(query)
		mq.SetField(field)
		mq.SetBoost(boost)
		return mq
	}
	fuzziness := o.Fuzziness
	if fuzziness <= 0 {
		fuzziness = 1
	}
	terms := strings.Fields(strings.ToLower(query))
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField(field)
		queries = append(queries, fq)
	}
	dq := bleve.NewDisjunctionQuery(queries...)
	dq.SetBoost(boost)
	return dq
}

// DocCount returns the number of indexed documents.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the underlying index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
