package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aluiziolira/go-product-collector/models"
	"github.com/shopspring/decimal"
)

type mockWriter struct {
	mu       sync.Mutex
	batches  [][]models.Record
	writeErr error
}

func (mw *mockWriter) Write(records []models.Record) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if mw.writeErr != nil {
		return mw.writeErr
	}
	batch := make([]models.Record, len(records))
	copy(batch, records)
	mw.batches = append(mw.batches, batch)
	return nil
}

func (mw *mockWriter) Validate() error { return nil }

func (mw *mockWriter) Paths() []string { return []string{"mock.csv"} }

type stubFetcher struct {
	results map[string]models.QueryResult
	calls   []string
	cancel  context.CancelFunc
}

func (s *stubFetcher) FetchAll(ctx context.Context, query string) models.QueryResult {
	s.calls = append(s.calls, query)
	if s.cancel != nil {
		s.cancel()
	}
	qr, ok := s.results[query]
	if !ok {
		return models.QueryResult{Query: query, StopReason: models.StopEmptyPage, Requests: 1}
	}
	qr.Query = query
	return qr
}

func results(prefix string, n int) []models.SearchResult {
	out := make([]models.SearchResult, n)
	for i := range out {
		out[i] = models.SearchResult{
			ID:           prefix,
			Title:        prefix,
			URL:          "https://shop.test/dp/" + prefix,
			Currency:     "INR",
			Price:        decimal.NewFromInt(1299),
			Stars:        4.5,
			TotalRatings: 1200,
		}
	}
	return out
}

func TestCollectorRunPreservesQueryOrder(t *testing.T) {
	fetcher := &stubFetcher{results: map[string]models.QueryResult{
		"kettle": {Results: results("kettle", 2), Requests: 1, StopReason: models.StopNoNextPage},
		"mouse":  {Results: results("mouse", 3), Requests: 2, StopReason: models.StopNoNextPage},
	}}
	writer := &mockWriter{}

	result, err := NewCollector(fetcher, writer, "Amazon").Run(context.Background(), []string{"mouse", "kettle"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if strings.Join(fetcher.calls, ",") != "mouse,kettle" {
		t.Fatalf("calls = %v", fetcher.calls)
	}
	if len(writer.batches) != 1 {
		t.Fatalf("writes = %d, want 1", len(writer.batches))
	}
	got := writer.batches[0]
	if len(got) != 5 {
		t.Fatalf("records = %d, want 5", len(got))
	}
	for i, title := range []string{"mouse", "mouse", "mouse", "kettle", "kettle"} {
		if got[i].Title != title {
			t.Fatalf("record %d title = %q, want %q", i, got[i].Title, title)
		}
	}
	if got[0].Price != "₹1,299" || got[0].Ratings != "(1.2K)" || got[0].Source != "Amazon" {
		t.Fatalf("unexpected formatted record: %+v", got[0])
	}
	if result.RequestCount != 3 {
		t.Fatalf("requests = %d, want 3", result.RequestCount)
	}
	if result.RunID == "" {
		t.Fatalf("expected run id")
	}
	if len(result.OutputFiles) != 1 {
		t.Fatalf("output files = %v", result.OutputFiles)
	}
}

func TestCollectorQueryFailureIsNotFatal(t *testing.T) {
	fetcher := &stubFetcher{results: map[string]models.QueryResult{
		"broken": {
			Results:    results("broken", 1),
			Requests:   2,
			StopReason: models.StopError,
			ErrorType:  "server",
			Err:        errors.New("503"),
		},
		"fine": {Results: results("fine", 1), Requests: 1, StopReason: models.StopNoNextPage},
	}}
	writer := &mockWriter{}

	result, err := NewCollector(fetcher, writer, "Amazon").Run(context.Background(), []string{"broken", "fine"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.TotalRecords() != 2 {
		t.Fatalf("records = %d, want 2", result.TotalRecords())
	}
	if result.ErrorCount != 1 || result.ErrorsByType["server"] != 1 {
		t.Fatalf("errors = %d %v", result.ErrorCount, result.ErrorsByType)
	}
	if failed := result.FailedQueries(); len(failed) != 1 || failed[0] != "broken" {
		t.Fatalf("failed queries = %v", failed)
	}
}

func TestCollectorNoRecordsSkipsWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte("keep,me"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create writer: %v", err)
	}

	result, err := NewCollector(&stubFetcher{}, writer, "Amazon").Run(context.Background(), []string{"nothing"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.TotalRecords() != 0 {
		t.Fatalf("records = %d, want 0", result.TotalRecords())
	}
	if got := readFile(t, path); got != "keep,me" {
		t.Fatalf("file changed: %q", got)
	}
}

func TestCollectorWriteFailure(t *testing.T) {
	fetcher := &stubFetcher{results: map[string]models.QueryResult{
		"kettle": {Results: results("kettle", 1), Requests: 1},
	}}
	writer := &mockWriter{writeErr: errors.New("disk full")}

	_, err := NewCollector(fetcher, writer, "Amazon").Run(context.Background(), []string{"kettle"})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected write error, got %v", err)
	}
}

func TestCollectorCancelSkipsRemainingQueries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetcher := &stubFetcher{
		cancel: cancel,
		results: map[string]models.QueryResult{
			"first": {Results: results("first", 2), Requests: 1},
		},
	}
	writer := &mockWriter{}

	result, err := NewCollector(fetcher, writer, "Amazon").Run(ctx, []string{"first", "second"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(fetcher.calls) != 1 {
		t.Fatalf("calls = %v, want only first", fetcher.calls)
	}
	if result.TotalRecords() != 2 || len(writer.batches) != 1 {
		t.Fatalf("partial results should still be written")
	}
}

func TestCollectorEndToEndCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte("previous,row"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create writer: %v", err)
	}
	fetcher := &stubFetcher{results: map[string]models.QueryResult{
		"kettle": {Results: results("kettle", 1), Requests: 1},
	}}

	if _, err := NewCollector(fetcher, writer, "Amazon").Run(context.Background(), []string{"kettle"}); err != nil {
		t.Fatalf("run: %v", err)
	}

	want := "previous,row\nkettle,\"₹1,299\",4.5,(1.2K),https://shop.test/dp/kettle,,Amazon\n"
	if got := readFile(t, path); got != want {
		t.Fatalf("csv = %q, want %q", got, want)
	}
}

func TestCollectorRequiresQueries(t *testing.T) {
	_, err := NewCollector(&stubFetcher{}, &mockWriter{}, "Amazon").Run(context.Background(), nil)
	if !errors.Is(err, ErrNoQueries) {
		t.Fatalf("err = %v, want ErrNoQueries", err)
	}
}
