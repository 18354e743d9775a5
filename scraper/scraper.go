package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-product-collector/cache"
	"github.com/aluiziolira/go-product-collector/config"
	"github.com/gocolly/colly/v2"
)

const (
	ctxBody   = "body"
	ctxStatus = "status"
)

// Fetcher retrieves the raw body of one search results page.
type Fetcher interface {
	FetchPage(ctx context.Context, query string, page int) ([]byte, error)
}

// HTTPFetcher issues search requests through a synchronous colly collector.
type HTTPFetcher struct {
	cfg       *config.Config
	endpoint  *url.URL
	collector *colly.Collector
	cache     cache.PageCache
	Metrics   *Metrics

	requestCount int64
	cacheHits    int64
}

// NewHTTPFetcher builds a fetcher for cfg.Endpoint. pageCache may be nil.
func NewHTTPFetcher(cfg *config.Config, metrics *Metrics, pageCache cache.PageCache) (*HTTPFetcher, error) {
	parsed, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("endpoint must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Host, parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(ctxStatus, r.StatusCode)
		r.Ctx.Put(ctxBody, r.Body)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.Ctx != nil {
			r.Ctx.Put(ctxStatus, r.StatusCode)
		}
	})

	return &HTTPFetcher{
		cfg:       cfg,
		endpoint:  parsed,
		collector: collector,
		cache:     pageCache,
		Metrics:   metrics,
	}, nil
}

// PageURL builds the request URL for one page of query. Parameters already
// present on the endpoint are kept.
func (f *HTTPFetcher) PageURL(query string, page int) string {
	u := *f.endpoint
	values := u.Query()
	values.Set("query", query)
	values.Set("page", strconv.Itoa(page))
	u.RawQuery = values.Encode()
	return u.String()
}

// FetchPage returns the body of a 2xx response, consulting the page cache
// first when one is configured.
func (f *HTTPFetcher) FetchPage(ctx context.Context, query string, page int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := cache.Key(f.endpoint.String(), query, page)
	if f.cache != nil {
		body, ok, err := f.cache.Get(ctx, key)
		switch {
		case err != nil:
			slog.Warn("page cache lookup failed", slog.String("key", key), slog.Any("error", err))
		case ok:
			atomic.AddInt64(&f.cacheHits, 1)
			f.Metrics.IncCache("hit")
			return body, nil
		default:
			f.Metrics.IncCache("miss")
		}
	}

	pageURL := f.PageURL(query, page)
	hdr := http.Header{}
	hdr.Set("Accept", "application/json")
	hdr.Set("User-Agent", f.cfg.UserAgent)
	if f.cfg.APIKey != "" {
		hdr.Set(f.cfg.APIKeyHeader, f.cfg.APIKey)
	}

	atomic.AddInt64(&f.requestCount, 1)
	reqCtx := colly.NewContext()
	start := time.Now()
	err := f.collector.Request(http.MethodGet, pageURL, nil, reqCtx, hdr)
	f.Metrics.ObserveDuration(time.Since(start))

	status, _ := reqCtx.GetAny(ctxStatus).(int)
	if err != nil {
		classified := classifyError(err, status)
		f.Metrics.IncRequest(ErrorTypeLabel(classified))
		return nil, fmt.Errorf("get %s: %w", pageURL, classified)
	}
	f.Metrics.IncRequest("ok")

	body, _ := reqCtx.GetAny(ctxBody).([]byte)
	if f.cache != nil {
		if err := f.cache.Set(ctx, key, body); err != nil {
			slog.Warn("page cache store failed", slog.String("key", key), slog.Any("error", err))
		}
	}
	return body, nil
}

// RequestCount reports how many requests reached the transport.
func (f *HTTPFetcher) RequestCount() int {
	return int(atomic.LoadInt64(&f.requestCount))
}

// CacheHits reports how many pages were served from the cache.
func (f *HTTPFetcher) CacheHits() int {
	return int(atomic.LoadInt64(&f.cacheHits))
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 && (err != nil || statusCode >= http.StatusMultipleChoices) {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		default:
			return ErrStatus{StatusCode: statusCode, Err: wrapped}
		}
	}

	if err == nil {
		return nil
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ErrConnection{Err: err}
	}
	return err
}
