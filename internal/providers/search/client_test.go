package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchParsesResults(t *testing.T) {
	var gotPath, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"source":"guide.md","snippet":"install first","score":0.9}]}`))
	}))
	defer server.Close()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	repoID := node.Generate()

	client := NewClient(server.URL)
	results, err := client.Search(context.Background(), repoID, "install", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "guide.md", results[0].Source)
	assert.Contains(t, gotPath, repoID.String())
	assert.Equal(t, "install", gotQuery)
}

func TestServiceErrorIsSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"index unavailable"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.ListSources(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index unavailable")
}

func TestUnconfiguredURLFailsFast(t *testing.T) {
	client := NewClient("")
	_, err := client.GetInfo(context.Background(), 1)
	require.ErrorIs(t, err, ErrNotConfigured)
}
