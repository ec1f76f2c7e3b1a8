package gateway

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// SearchResult is one hit returned by the external search service.
type SearchResult struct {
	Source  string  `json:"source"`
	Title   string  `json:"title,omitempty"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// Source describes one ingested document or feed inside a repository.
type Source struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// RepositoryInfo is the summary returned by the get_info tool.
type RepositoryInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	SourceCount int    `json:"source_count"`
	ChunkCount  int    `json:"chunk_count"`
}

// Searcher answers search tool calls. Implementations talk to the external
// vector-search service.
type Searcher interface {
	Search(ctx context.Context, repositoryID snowflake.ID, query string, limit int) ([]SearchResult, error)
}

// SourceLister enumerates the sources ingested into a repository.
type SourceLister interface {
	ListSources(ctx context.Context, repositoryID snowflake.ID) ([]Source, error)
}

// InfoProvider summarizes a repository for the get_info tool.
type InfoProvider interface {
	GetInfo(ctx context.Context, repositoryID snowflake.ID) (*RepositoryInfo, error)
}
