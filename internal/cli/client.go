package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/semdex/internal/models"
)

// Client calls a running semdex server.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 60 * time.Second},
	}
}

// Search runs a semantic search. k <= 0 uses the server default.
func (c *Client) Search(ctx context.Context, query string, k int) (*models.SearchResponse, error) {
	q := models.SearchQuery{Query: query}
	if k > 0 {
		q.K = &k
	}
	var resp models.SearchResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/search", q, &resp)
	return &resp, err
}

// Similar returns the documents closest to id.
func (c *Client) Similar(ctx context.Context, id string, k int) (*models.SearchResponse, error) {
	path := "/api/v1/documents/" + url.PathEscape(id) + "/similar"
	if k > 0 {
		path += "?k=" + strconv.Itoa(k)
	}
	var resp models.SearchResponse
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return &resp, err
}

// Cluster groups the catalog into n clusters.
func (c *Client) Cluster(ctx context.Context, n int) (*models.ClusterResponse, error) {
	var resp models.ClusterResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/cluster", models.ClusterRequest{NClusters: n}, &resp)
	return &resp, err
}

// Status fetches the server status.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var resp Status
	err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, &resp)
	return &resp, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		b, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
