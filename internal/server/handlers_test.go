package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/semdex/internal/config"
	"github.com/hyperjump/semdex/internal/embedding"
	"github.com/hyperjump/semdex/internal/embedding/mocks"
	"github.com/hyperjump/semdex/internal/indexer"
	"github.com/hyperjump/semdex/internal/keyword"
	"github.com/hyperjump/semdex/internal/models"
	"github.com/hyperjump/semdex/internal/semantic"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

type staticDirs []string

func (d staticDirs) Directories() []string { return d }

func newTestServer(t *testing.T, embedder embedding.Embedder) http.Handler {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.DatabasePath = filepath.Join(dir, "catalog.db")
	cfg.Storage.KeywordIndexPath = filepath.Join(dir, "bleve")

	kw, err := keyword.NewBleveIndex(cfg.Storage.KeywordIndexPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = kw.Close() })
	idx := indexer.New(semantic.New(embedder), nil, indexer.WithKeywordIndex(kw))
	return NewServer(idx, cfg, zap.NewNop(), staticDirs{"/kb"}).Router()
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func buildCorpus(t *testing.T, h http.Handler) {
	t.Helper()
	w := do(t, h, http.MethodPost, "/api/v1/index/build", models.BuildRequest{Documents: []*models.DocumentInput{
		{ID: "1", Content: "reset password"},
		{ID: "2", Content: "refund policy"},
		{ID: "3", Content: "shipping times"},
	}})
	if w.Code != http.StatusOK {
		t.Fatalf("build: %d %s", w.Code, w.Body.String())
	}
}

func TestServer_Health(t *testing.T) {
	h := newTestServer(t, embedding.NewHashEmbedder(256))
	if w := do(t, h, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestServer_NotReady(t *testing.T) {
	h := newTestServer(t, embedding.NewHashEmbedder(256))
	tests := []struct {
		method, path string
		body         interface{}
	}{
		{http.MethodGet, "/api/v1/search?q=reset", nil},
		{http.MethodPost, "/api/v1/documents", models.DocumentInput{ID: "x", Content: "y"}},
		{http.MethodGet, "/api/v1/documents/x", nil},
		{http.MethodGet, "/api/v1/similarity?a=x&b=y", nil},
		{http.MethodPost, "/api/v1/cluster", models.ClusterRequest{NClusters: 1}},
	}
	for _, tt := range tests {
		if w := do(t, h, tt.method, tt.path, tt.body); w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s: got %d, want 503", tt.method, tt.path, w.Code)
		}
	}
}

func TestServer_SearchScenario(t *testing.T) {
	h := newTestServer(t, embedding.NewHashEmbedder(256))
	buildCorpus(t, h)

	w := do(t, h, http.MethodGet, "/api/v1/search?q=how+to+reset+a+%3Cb%3Epassword%3C%2Fb%3E&k=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search: %d %s", w.Code, w.Body.String())
	}
	var resp models.SearchResponse
	decode(t, w, &resp)
	if resp.Total != 1 || resp.Results[0].Document.ID != "1" || resp.Results[0].Rank != 1 {
		t.Errorf("unexpected results: %+v", resp.Results)
	}
	if resp.Query != "how to reset a password" {
		t.Errorf("query not sanitized: %q", resp.Query)
	}

	w = do(t, h, http.MethodPost, "/api/v1/search", models.SearchQuery{Query: "refund policy"})
	decode(t, w, &resp)
	if resp.Total != 3 || resp.Results[0].Document.ID != "2" {
		t.Errorf("POST search: %+v", resp.Results)
	}
	if resp.Results[0].Score < 0.999 {
		t.Errorf("exact match score: %v", resp.Results[0].Score)
	}
}

func TestServer_BadRequests(t *testing.T) {
	h := newTestServer(t, embedding.NewHashEmbedder(256))
	buildCorpus(t, h)

	tests := []struct {
		name, method, path string
		body               interface{}
		want               int
	}{
		{"empty query", http.MethodGet, "/api/v1/search?q=+", nil, http.StatusBadRequest},
		{"negative k", http.MethodGet, "/api/v1/search?q=x&k=-1", nil, http.StatusBadRequest},
		{"non-numeric k", http.MethodGet, "/api/v1/documents/1/similar?k=abc", nil, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/v1/documents", "{", http.StatusBadRequest},
		{"duplicate id", http.MethodPost, "/api/v1/documents", models.DocumentInput{ID: "1", Content: "again"}, http.StatusConflict},
		{"nested metadata", http.MethodPost, "/api/v1/documents", `{"id":"m","content":"x","metadata":{"a":{"b":1}}}`, http.StatusBadRequest},
		{"mismatched update id", http.MethodPut, "/api/v1/documents/1", models.DocumentInput{ID: "2", Content: "x"}, http.StatusBadRequest},
		{"unknown document", http.MethodGet, "/api/v1/documents/nope", nil, http.StatusNotFound},
		{"unknown similar", http.MethodGet, "/api/v1/documents/nope/similar", nil, http.StatusNotFound},
		{"unknown similarity", http.MethodGet, "/api/v1/similarity?a=1&b=nope", nil, http.StatusNotFound},
		{"missing similarity arg", http.MethodGet, "/api/v1/similarity?a=1", nil, http.StatusBadRequest},
		{"zero clusters", http.MethodPost, "/api/v1/cluster", models.ClusterRequest{NClusters: 0}, http.StatusBadRequest},
		{"too many clusters", http.MethodPost, "/api/v1/cluster", models.ClusterRequest{NClusters: 101}, http.StatusBadRequest},
		{"huge cluster count", http.MethodPost, "/api/v1/cluster", `{"n_clusters": 68719476736}`, http.StatusBadRequest},
		{"empty keyword query", http.MethodGet, "/api/v1/keyword?q=", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(t, h, tt.method, tt.path, tt.body); w.Code != tt.want {
				t.Errorf("got %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestServer_ExplicitZeroK(t *testing.T) {
	h := newTestServer(t, embedding.NewHashEmbedder(256))
	buildCorpus(t, h)

	zero := 0
	tests := []struct {
		name, method, path string
		body               interface{}
		want               int
	}{
		{"search without k uses default", http.MethodGet, "/api/v1/search?q=refund", nil, 3},
		{"search k=0", http.MethodGet, "/api/v1/search?q=refund&k=0", nil, 0},
		{"posted k=0", http.MethodPost, "/api/v1/search", models.SearchQuery{Query: "refund", K: &zero}, 0},
		{"posted without k", http.MethodPost, "/api/v1/search", `{"query":"refund"}`, 3},
		{"similar k=0", http.MethodGet, "/api/v1/documents/1/similar?k=0", nil, 0},
		{"huge k is clamped", http.MethodGet, "/api/v1/search?q=refund&k=1099511627776", nil, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, tt.method, tt.path, tt.body)
			if w.Code != http.StatusOK {
				t.Fatalf("got %d: %s", w.Code, w.Body.String())
			}
			var resp models.SearchResponse
			decode(t, w, &resp)
			if resp.Total != tt.want || len(resp.Results) != tt.want {
				t.Errorf("got %d results, want %d", resp.Total, tt.want)
			}
		})
	}
}

func TestServer_DocumentLifecycle(t *testing.T) {
	h := newTestServer(t, embedding.NewHashEmbedder(256))
	buildCorpus(t, h)

	w := do(t, h, http.MethodPost, "/api/v1/documents", models.DocumentInput{Content: "track my order"})
	if w.Code != http.StatusCreated {
		t.Fatalf("add: %d %s", w.Code, w.Body.String())
	}
	var added map[string]string
	decode(t, w, &added)
	if added["id"] == "" {
		t.Fatal("expected generated id")
	}

	if w := do(t, h, http.MethodPut, "/api/v1/documents/"+added["id"], models.DocumentInput{Content: "where is my parcel"}); w.Code != http.StatusOK {
		t.Fatalf("update: %d %s", w.Code, w.Body.String())
	}
	var doc models.Document
	decode(t, do(t, h, http.MethodGet, "/api/v1/documents/"+added["id"], nil), &doc)
	if doc.Content != "where is my parcel" {
		t.Errorf("content after update: %q", doc.Content)
	}

	var sim models.SimilarityResponse
	decode(t, do(t, h, http.MethodGet, "/api/v1/similarity?a=1&b=1", nil), &sim)
	if sim.Similarity < 0.999 {
		t.Errorf("self similarity: %v", sim.Similarity)
	}

	var similar models.SearchResponse
	decode(t, do(t, h, http.MethodGet, "/api/v1/documents/1/similar?k=10", nil), &similar)
	if similar.Total != 3 {
		t.Errorf("similar total: got %d, want 3", similar.Total)
	}
	for _, r := range similar.Results {
		if r.Document.ID == "1" {
			t.Error("similar documents include the document itself")
		}
	}

	if w := do(t, h, http.MethodDelete, "/api/v1/documents/1", nil); w.Code != http.StatusOK {
		t.Fatalf("remove: %d", w.Code)
	}
	if w := do(t, h, http.MethodDelete, "/api/v1/documents/1", nil); w.Code != http.StatusNotFound {
		t.Errorf("second remove: got %d, want 404", w.Code)
	}

	var list struct {
		Total int `json:"total"`
	}
	decode(t, do(t, h, http.MethodGet, "/api/v1/documents", nil), &list)
	if list.Total != 3 {
		t.Errorf("documents total: got %d, want 3", list.Total)
	}
}

func TestServer_ClusterKeywordAndStatus(t *testing.T) {
	h := newTestServer(t, embedding.NewHashEmbedder(256))
	buildCorpus(t, h)

	var clusters models.ClusterResponse
	decode(t, do(t, h, http.MethodPost, "/api/v1/cluster", models.ClusterRequest{NClusters: 2}), &clusters)
	if len(clusters.Clusters) != 2 {
		t.Fatalf("got %d clusters, want 2", len(clusters.Clusters))
	}
	total := 0
	for _, c := range clusters.Clusters {
		total += len(c)
	}
	if total != 3 {
		t.Errorf("clusters hold %d documents, want 3", total)
	}

	var kw struct {
		Results []models.KeywordResult `json:"results"`
	}
	decode(t, do(t, h, http.MethodGet, "/api/v1/keyword?q=refund", nil), &kw)
	if len(kw.Results) != 1 || kw.Results[0].ID != "2" {
		t.Errorf("keyword results: %+v", kw.Results)
	}

	var status struct {
		Index            semantic.Stats `json:"index"`
		KeywordDocuments int            `json:"keyword_documents"`
		WatchDirectories []string       `json:"watch_directories"`
	}
	decode(t, do(t, h, http.MethodGet, "/api/v1/status", nil), &status)
	if !status.Index.Ready || status.Index.Documents != 3 || status.Index.Dimensions != 256 {
		t.Errorf("status index: %+v", status.Index)
	}
	if status.KeywordDocuments != 3 || len(status.WatchDirectories) != 1 {
		t.Errorf("status: %+v", status)
	}

	var compacted map[string]int
	decode(t, do(t, h, http.MethodPost, "/api/v1/index/compact", nil), &compacted)
	if compacted["removed"] != 0 {
		t.Errorf("compact with rebuild policy removed %d", compacted["removed"])
	}

	if w := do(t, h, http.MethodPost, "/api/v1/index/restore", nil); w.Code != http.StatusNotImplemented {
		t.Errorf("restore without store: got %d, want 501", w.Code)
	}
	if w := do(t, h, http.MethodDelete, "/api/v1/index", nil); w.Code != http.StatusOK {
		t.Fatalf("clear: %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/api/v1/search?q=refund", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("search after clear: got %d, want 503", w.Code)
	}
}

func TestServer_EmbeddingFailureIsBadGateway(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := mocks.NewMockEmbedder(ctrl)
	hash := embedding.NewHashEmbedder(256)
	mock.EXPECT().EmbedBatch(gomock.Any(), gomock.Any()).DoAndReturn(hash.EmbedBatch).AnyTimes()
	mock.EXPECT().Embed(gomock.Any(), gomock.Any()).Return(nil, errors.New("provider down")).AnyTimes()

	h := newTestServer(t, mock)
	buildCorpus(t, h)

	w := do(t, h, http.MethodGet, "/api/v1/search?q=refund", nil)
	if w.Code != http.StatusBadGateway {
		t.Errorf("search: got %d, want 502", w.Code)
	}
	if !strings.Contains(w.Body.String(), "provider down") {
		t.Errorf("error body: %s", w.Body.String())
	}
	if w := do(t, h, http.MethodPost, "/api/v1/documents", models.DocumentInput{ID: "9", Content: "new"}); w.Code != http.StatusBadGateway {
		t.Errorf("add: got %d, want 502", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{semantic.ErrNotReady, http.StatusServiceUnavailable},
		{semantic.ErrNotFound, http.StatusNotFound},
		{semantic.ErrDuplicateID, http.StatusConflict},
		{models.ErrInvalidDocument, http.StatusBadRequest},
		{semantic.ErrInvalidArgument, http.StatusBadRequest},
		{&semantic.EmbeddingError{Err: errors.New("x")}, http.StatusBadGateway},
		{indexer.ErrNoKeywordIndex, http.StatusNotImplemented},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
