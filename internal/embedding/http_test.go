package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPEmbedder_EmbedBatch(t *testing.T) {
	tests := []struct {
		name       string
		texts      []string
		serverResp func(w http.ResponseWriter, r *http.Request)
		wantErr    bool
		wantCount  int
	}{
		{
			name:  "successful embedding",
			texts: []string{"Hello", "World"},
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("expected POST, got %s", r.Method)
				}
				if r.URL.Path != "/v1/embeddings" {
					t.Errorf("expected /v1/embeddings, got %s", r.URL.Path)
				}
				if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
					t.Errorf("authorization header: got %q", got)
				}
				var req embeddingsRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					t.Errorf("decode request: %v", err)
				}
				if req.Model != "test-model" || len(req.Input) != 2 {
					t.Errorf("request: got %+v", req)
				}
				resp := embeddingsResponse{Data: []embeddingData{
					{Index: 0, Embedding: []float64{1, 0, 0}},
					{Index: 1, Embedding: []float64{0, 1, 0}},
				}}
				_ = json.NewEncoder(w).Encode(resp)
			},
			wantCount: 2,
		},
		{
			name:       "empty input",
			texts:      []string{},
			serverResp: func(w http.ResponseWriter, r *http.Request) {},
			wantErr:    true,
		},
		{
			name:  "wrong embedding count",
			texts: []string{"Hello", "World"},
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(embeddingsResponse{Data: []embeddingData{{Embedding: []float64{1, 0, 0}}}})
			},
			wantErr: true,
		},
		{
			name:  "wrong vector size",
			texts: []string{"Hello"},
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(embeddingsResponse{Data: []embeddingData{{Embedding: []float64{1, 0}}}})
			},
			wantErr: true,
		},
		{
			name:  "server error",
			texts: []string{"Hello"},
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "model not loaded", http.StatusInternalServerError)
			},
			wantErr: true,
		},
		{
			name:  "invalid json",
			texts: []string{"Hello"},
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("not json"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(tt.serverResp))
			defer srv.Close()

			e := NewHTTPEmbedder(srv.URL+"/", "test-key", "test-model", 3, 0)
			got, err := e.EmbedBatch(context.Background(), tt.texts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("EmbedBatch() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && len(got) != tt.wantCount {
				t.Errorf("EmbedBatch() returned %d embeddings, want %d", len(got), tt.wantCount)
			}
		})
	}
}

func TestHTTPEmbedder_OrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embeddingsResponse{Data: []embeddingData{
			{Index: 1, Embedding: []float64{0, 1}},
			{Index: 0, Embedding: []float64{1, 0}},
		}})
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(srv.URL, "", "m", 2, 0)
	got, err := e.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatal(err)
	}
	if got[0][0] != 1 || got[1][1] != 1 {
		t.Errorf("embeddings not ordered by index: %v", got)
	}
	if e.Dimensions() != 2 {
		t.Errorf("Dimensions: got %d", e.Dimensions())
	}
}

func TestHTTPEmbedder_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("no authorization header expected without api key")
		}
		_ = json.NewEncoder(w).Encode(embeddingsResponse{Data: []embeddingData{{Embedding: []float64{0.5, 0.5}}}})
	}))
	defer srv.Close()

	emb, err := NewHTTPEmbedder(srv.URL, "", "m", 2, 0).Embed(context.Background(), "x")
	if err != nil {
		t.Fatal(err)
	}
	if len(emb) != 2 || emb[0] != 0.5 {
		t.Errorf("Embed: got %v", emb)
	}
}
