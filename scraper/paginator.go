package scraper

import (
	"context"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-product-collector/config"
	"github.com/aluiziolira/go-product-collector/models"
	"github.com/aluiziolira/go-product-collector/parser"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Paginator walks the search endpoint page by page for one query at a time.
//
// Pages are fetched strictly in order. The loop ends when the API returns a
// null nextPage, when a page has no results, when a request or decode fails,
// or once Cap results have been gathered. Nothing bounds the page count
// besides those conditions unless MaxPages is set.
type Paginator struct {
	fetcher  Fetcher
	cap      int
	maxPages int
	delay    time.Duration
	Metrics  *Metrics
	Sleep    Sleeper
}

// NewPaginator creates a paginator using the cap, page bound and delay from cfg.
func NewPaginator(fetcher Fetcher, cfg *config.Config, metrics *Metrics) *Paginator {
	limit := cfg.Cap
	if limit <= 0 {
		limit = config.TargetProductsPerQuery
	}
	return &Paginator{
		fetcher:  fetcher,
		cap:      limit,
		maxPages: cfg.MaxPages,
		delay:    cfg.Delay,
		Metrics:  metrics,
		Sleep:    SleepContext,
	}
}

// FetchAll gathers up to the cap of results for query. Failures end the
// walk for this query only: they are logged and reported in the result,
// and everything gathered before the failure is kept.
func (p *Paginator) FetchAll(ctx context.Context, query string) models.QueryResult {
	result := models.QueryResult{Query: query, StopReason: models.StopNoNextPage}
	acc := make([]models.SearchResult, 0)
	page := 1
	hasMore := true

	for hasMore && len(acc) < p.cap {
		if p.maxPages > 0 && page > p.maxPages {
			result.StopReason = models.StopMaxPages
			break
		}
		if err := ctx.Err(); err != nil {
			result.StopReason = models.StopCancelled
			result.ErrorType = "cancelled"
			result.Err = err
			break
		}

		result.Requests++
		body, err := p.fetcher.FetchPage(ctx, query, page)
		if err == nil {
			var parsed *models.PageResponse
			parsed, err = parser.ParsePage(body)
			if err == nil {
				result.Pages++
				if len(parsed.Results) > 0 {
					p.validate(query, page, parsed.Results)
					acc = append(acc, parsed.Results...)
					hasMore = parsed.Pagination.NextPage.HasNext()
					p.Metrics.IncPages()
					slog.Info("page fetched",
						slog.String("query", query),
						slog.Int("page", page),
						slog.Int("items", len(parsed.Results)),
						slog.Int("total", len(acc)),
					)
					page++
				} else {
					hasMore = false
					result.StopReason = models.StopEmptyPage
					slog.Info("empty page, stopping",
						slog.String("query", query),
						slog.Int("page", page),
						slog.Int("total", len(acc)),
					)
				}
			}
		}
		if err != nil {
			label := ErrorTypeLabel(err)
			p.Metrics.IncError(label)
			slog.Error("page fetch failed",
				slog.String("query", query),
				slog.Int("page", page),
				slog.String("category", label),
				slog.Any("error", err),
			)
			result.StopReason = models.StopError
			result.ErrorType = label
			result.Err = err
			break
		}

		if err := p.throttle(ctx); err != nil && hasMore && len(acc) < p.cap {
			result.StopReason = models.StopCancelled
			result.ErrorType = "cancelled"
			result.Err = err
			break
		}
	}

	if hasMore && len(acc) >= p.cap {
		result.StopReason = models.StopCapReached
	}
	if len(acc) > p.cap {
		acc = acc[:p.cap]
	}
	result.Results = acc

	p.Metrics.AddResults(len(acc))
	p.Metrics.IncQuery(string(result.StopReason))
	slog.Info("query complete",
		slog.String("query", query),
		slog.Int("total", len(acc)),
		slog.Int("pages", result.Pages),
		slog.String("stop_reason", string(result.StopReason)),
	)
	return result
}

func (p *Paginator) throttle(ctx context.Context) error {
	if p.delay <= 0 {
		return nil
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	p.Metrics.AddThrottle(p.delay)
	return sleep(ctx, p.delay)
}

func (p *Paginator) validate(query string, page int, results []models.SearchResult) {
	for i := range results {
		if err := parser.ValidateResult(&results[i]); err != nil {
			slog.Debug("incomplete result kept",
				slog.String("query", query),
				slog.Int("page", page),
				slog.Any("error", err),
			)
		}
	}
}
