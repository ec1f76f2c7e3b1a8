package requestlog

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/relaydocs/relaydocs/pkg/db"
	"go.uber.org/zap"
)

func newTestWriter(t *testing.T, opts ...Option) (*Writer, *snowflake.Node) {
	t.Helper()

	dbConn, err := db.NewTest()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := dbConn.AutoMigrate(&RequestLog{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}

	w := NewWriter(dbConn, node, zap.NewNop(), opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = w.Close(ctx)
	})
	return w, node
}

func TestCloseFlushesBufferedEntries(t *testing.T) {
	w, node := newTestWriter(t, WithFlushInterval(time.Hour))

	repoID := node.Generate()
	for i := 0; i < 5; i++ {
		w.Record(Entry{
			RepositoryID: repoID,
			ClientID:     "rd_ci_test",
			Method:       "tools/call",
			Query:        "payment gateway setup",
			StatusCode:   200,
			Duration:     42 * time.Millisecond,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	logs, err := w.ListByRepository(context.Background(), repoID, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(logs) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(logs))
	}
	if logs[0].Method != "tools/call" || logs[0].DurationMs != 42 {
		t.Fatalf("unexpected row: %+v", logs[0])
	}
}

func TestBatchSizeTriggersFlush(t *testing.T) {
	w, node := newTestWriter(t, WithBatchSize(2), WithFlushInterval(time.Hour))

	repoID := node.Generate()
	for i := 0; i < 4; i++ {
		w.Record(Entry{RepositoryID: repoID, Method: "search"})
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		logs, err := w.ListByRepository(context.Background(), repoID, 10)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(logs) >= 4 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 4 rows before deadline, got %d", len(logs))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestQueryTextIsTruncated(t *testing.T) {
	w, node := newTestWriter(t, WithFlushInterval(time.Hour))

	repoID := node.Generate()
	w.Record(Entry{RepositoryID: repoID, Method: "search", Query: strings.Repeat("q", 2000)})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	logs, err := w.ListByRepository(context.Background(), repoID, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 row, got %d", len(logs))
	}
	if len(logs[0].Query) != maxQueryLength {
		t.Fatalf("expected query truncated to %d, got %d", maxQueryLength, len(logs[0].Query))
	}
}
