package models

import (
	"fmt"
	"strings"
)

// SearchQuery is a semantic search request. A nil K asks for the server default;
// an explicit zero asks for no results.
type SearchQuery struct {
	Query string `json:"query"`
	K     *int   `json:"k,omitempty"`
}

// Validate ensures the query is non-empty and K is not negative. A nil K becomes
// defaultK and K is capped at maxK.
func (q *SearchQuery) Validate(defaultK, maxK int) error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	k := defaultK
	if q.K != nil {
		if *q.K < 0 {
			return fmt.Errorf("k must not be negative, got %d", *q.K)
		}
		k = *q.K
	}
	if maxK > 0 && k > maxK {
		k = maxK
	}
	q.K = &k
	return nil
}

// Limit returns K, or 0 when it is unset.
func (q *SearchQuery) Limit() int {
	if q.K == nil {
		return 0
	}
	return *q.K
}

// ClusterRequest asks for the catalog to be grouped into NClusters groups.
type ClusterRequest struct {
	NClusters int `json:"n_clusters"`
}

// BuildRequest replaces the whole catalog with Documents.
type BuildRequest struct {
	Documents []*DocumentInput `json:"documents"`
}
