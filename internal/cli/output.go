// Package cli renders API responses for the semdex command line and talks to a running server.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/semdex/internal/models"
	"github.com/hyperjump/semdex/pkg/utils"
)

// OutputFormat selects how results are printed.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one result per line.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is indented JSON for other programs.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes a search or similar-documents response.
func WriteSearchResults(w io.Writer, resp *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, resp)
	case OutputCompact:
		for _, r := range resp.Results {
			fmt.Fprintf(w, "%d\t%.4f\t%s\t%s\n", r.Rank, r.Score, r.Document.ID, utils.Truncate(utils.CollapseSpace(r.Document.Content), 80))
		}
		return nil
	}
	fmt.Fprintf(w, "\nFound %d results in %dms\n\n", resp.Total, resp.QueryTime)
	for _, r := range resp.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", r.Rank, r.Score)
		fmt.Fprintf(w, "ID: %s\n", r.Document.ID)
		if title, ok := r.Document.Metadata["title"].(string); ok && title != "" {
			fmt.Fprintf(w, "Title: %s\n", title)
		}
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(r.Document.Content, 200))
	}
	return nil
}

// WriteClusters writes one line of document ids per cluster.
func WriteClusters(w io.Writer, resp *models.ClusterResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	for n, ids := range resp.Clusters {
		if format == OutputCompact {
			fmt.Fprintf(w, "%d\t%s\n", n, strings.Join(ids, ","))
			continue
		}
		fmt.Fprintf(w, "cluster %d (%d documents): %s\n", n, len(ids), strings.Join(ids, ", "))
	}
	return nil
}

// Status is the decoded /api/v1/status response.
type Status struct {
	Index struct {
		Ready         bool   `json:"ready"`
		Documents     int    `json:"documents"`
		Tombstones    int    `json:"tombstones"`
		Dimensions    int    `json:"dimensions"`
		RemovalPolicy string `json:"removal_policy"`
	} `json:"index"`
	KeywordDocuments *uint64        `json:"keyword_documents,omitempty"`
	DiskUsageBytes   *int64         `json:"disk_usage_bytes,omitempty"`
	WatchDirectories []string       `json:"watch_directories,omitempty"`
	Config           map[string]any `json:"config,omitempty"`
}

// WriteStatus prints the server status.
func WriteStatus(w io.Writer, s *Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, s)
	}
	fmt.Fprintf(w, "ready:              %t\n", s.Index.Ready)
	fmt.Fprintf(w, "documents:          %d\n", s.Index.Documents)
	fmt.Fprintf(w, "tombstones:         %d\n", s.Index.Tombstones)
	fmt.Fprintf(w, "dimensions:         %d\n", s.Index.Dimensions)
	fmt.Fprintf(w, "removal_policy:     %s\n", s.Index.RemovalPolicy)
	if s.KeywordDocuments != nil {
		fmt.Fprintf(w, "keyword_documents:  %d\n", *s.KeywordDocuments)
	}
	if s.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d\n", *s.DiskUsageBytes)
	}
	for _, dir := range s.WatchDirectories {
		fmt.Fprintf(w, "watching:           %s\n", dir)
	}
	return nil
}
