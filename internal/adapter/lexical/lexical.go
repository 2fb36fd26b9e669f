// Package lexical wraps Elasticsearch for the pipeline's keyword/filter
// index — the Go-ecosystem substitute for the original implementation's
// Meilisearch index, since no Meilisearch client exists in the
// dependency pool this project draws from.
package lexical

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/WessleyAI/wessley-mvp/internal/domain"
	"github.com/WessleyAI/wessley-mvp/internal/errkind"
	elastic "github.com/olivere/elastic/v7"
)

// Index is the sole owner of all Elasticsearch operations for the
// document pipeline.
type Index struct {
	client *elastic.Client
	name   string
}

// New dials Elasticsearch at url and returns an Index bound to the given
// index name.
func New(url, name string) (*Index, error) {
	client, err := elastic.NewClient(elastic.SetURL(url), elastic.SetSniff(false))
	if err != nil {
		return nil, fmt.Errorf("lexical: connect %s: %w", url, err)
	}
	return &Index{client: client, name: name}, nil
}

// EnsureIndex creates the index with an explicit mapping if it does not
// already exist, mirroring the vector store's "list then create if
// absent" startup check.
func (idx *Index) EnsureIndex(ctx context.Context) error {
	exists, err := idx.client.IndexExists(idx.name).Do(ctx)
	if err != nil {
		return errkind.New(errkind.Transient, fmt.Errorf("lexical: index exists: %w", err))
	}
	if exists {
		return nil
	}

	mapping := `{
		"mappings": {
			"properties": {
				"job_id":     {"type": "keyword"},
				"filename":   {"type": "text"},
				"content":    {"type": "text"},
				"doc_type":   {"type": "keyword"},
				"doc_confidence": {"type": "float"},
				"summary":    {"type": "text"},
				"pii_count":  {"type": "integer"},
				"created_at": {"type": "date"}
			}
		}
	}`
	_, err = idx.client.CreateIndex(idx.name).BodyString(mapping).Do(ctx)
	if err != nil {
		return errkind.New(errkind.Transient, fmt.Errorf("lexical: create index %s: %w", idx.name, err))
	}
	return nil
}

// Upsert indexes a document with an explicit id; re-indexing the same
// job_id overwrites rather than duplicates, giving redelivery idempotent
// semantics for free.
func (idx *Index) Upsert(ctx context.Context, rec domain.Record) error {
	_, err := idx.client.Index().
		Index(idx.name).
		Id(rec.JobID).
		BodyJson(rec).
		Do(ctx)
	if err != nil {
		return errkind.New(errkind.Transient, fmt.Errorf("lexical: upsert %s: %w", rec.JobID, err))
	}
	return nil
}

// SearchResult is one hit from a keyword/filter query.
type SearchResult struct {
	JobID   string
	Score   float64
	Record  domain.Record
}

// Search runs a simple multi-field query string search optionally scoped
// by doc_type.
func (idx *Index) Search(ctx context.Context, query string, docType domain.DocType, topK int) ([]SearchResult, error) {
	q := elastic.NewBoolQuery().Must(elastic.NewMultiMatchQuery(query, "content", "filename", "summary"))
	if docType != "" {
		q = q.Filter(elastic.NewTermQuery("doc_type", string(docType)))
	}

	resp, err := idx.client.Search().Index(idx.name).Query(q).Size(topK).Do(ctx)
	if err != nil {
		return nil, errkind.New(errkind.Transient, fmt.Errorf("lexical: search: %w", err))
	}

	out := make([]SearchResult, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		var rec domain.Record
		if hit.Source != nil {
			_ = json.Unmarshal(hit.Source, &rec)
		}
		out = append(out, SearchResult{JobID: hit.Id, Score: scoreOf(hit), Record: rec})
	}
	return out, nil
}

func scoreOf(hit *elastic.SearchHit) float64 {
	if hit.Score != nil {
		return *hit.Score
	}
	return 0
}
