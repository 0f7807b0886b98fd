package models

// SearchResult is a single ranked hit. Score lies in (0, 1]; higher is more similar.
type SearchResult struct {
	Document *Document `json:"document"`
	Score    float64   `json:"score"`
	Rank     int       `json:"rank"`
}

// SearchResponse is the response for a search or similar-documents request.
type SearchResponse struct {
	Results   []*SearchResult `json:"results"`
	Total     int             `json:"total"`
	QueryTime int64           `json:"query_time_ms"`
	Query     string          `json:"query,omitempty"`
}

// KeywordResult is a hit from the keyword mirror.
type KeywordResult struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// SimilarityResponse carries the cosine similarity of two stored documents.
type SimilarityResponse struct {
	A          string  `json:"a"`
	B          string  `json:"b"`
	Similarity float64 `json:"similarity"`
}

// ClusterResponse holds one id list per cluster, in cluster order.
type ClusterResponse struct {
	Clusters [][]string `json:"clusters"`
}
