package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-product-collector/models"
	"github.com/aluiziolira/go-product-collector/record"
	"github.com/google/uuid"
)

// ErrNoQueries is returned when Run is called without any query.
var ErrNoQueries = errors.New("pipeline: no queries")

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(records []models.Record) error
	Validate() error
	Paths() []string
}

// QueryFetcher gathers the results for one query. It reports failures in
// the returned QueryResult instead of an error.
type QueryFetcher interface {
	FetchAll(ctx context.Context, query string) models.QueryResult
}

// Collector runs queries one after another and writes every record in a
// single append once all queries are done.
type Collector struct {
	fetcher QueryFetcher
	writer  OutputWriter
	source  string
}

// NewCollector builds a collector labelling each record with source.
func NewCollector(fetcher QueryFetcher, writer OutputWriter, source string) *Collector {
	return &Collector{
		fetcher: fetcher,
		writer:  writer,
		source:  source,
	}
}

// Run paginates each query in order and appends the combined records to
// the output. Per-query failures are recorded in the result; only a
// failed write is returned as an error.
func (c *Collector) Run(ctx context.Context, queries []string) (*models.RunResult, error) {
	if len(queries) == 0 {
		return nil, ErrNoQueries
	}

	result := &models.RunResult{
		RunID:        uuid.NewString(),
		StartTime:    time.Now(),
		ErrorsByType: make(map[string]int),
	}
	logger := slog.With(slog.String("run_id", result.RunID))
	logger.Info("collection started", slog.Int("queries", len(queries)))

	for i, query := range queries {
		if ctx.Err() != nil {
			logger.Warn("run cancelled, skipping remaining queries",
				slog.Int("skipped", len(queries)-i),
			)
			break
		}

		logger.Info("processing query",
			slog.String("query", query),
			slog.Int("index", i+1),
			slog.Int("of", len(queries)),
		)
		qr := c.fetcher.FetchAll(ctx, query)
		result.RequestCount += qr.Requests
		if qr.Err != nil {
			result.ErrorCount++
			result.ErrorsByType[qr.ErrorType]++
		}

		result.Records = append(result.Records, record.FromResults(qr.Results, c.source)...)
		result.Queries = append(result.Queries, qr)
	}

	result.EndTime = time.Now()
	if len(result.Records) == 0 {
		logger.Warn("no records collected, output left unchanged")
		return result, nil
	}

	if err := c.writer.Write(result.Records); err != nil {
		return result, fmt.Errorf("write records: %w", err)
	}
	result.OutputFiles = c.writer.Paths()

	logger.Info("collection complete",
		slog.Int("records", len(result.Records)),
		slog.Any("files", result.OutputFiles),
		slog.Duration("duration", result.EndTime.Sub(result.StartTime)),
	)
	return result, nil
}
