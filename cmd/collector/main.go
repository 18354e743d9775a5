package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-product-collector/cache"
	"github.com/aluiziolira/go-product-collector/config"
	"github.com/aluiziolira/go-product-collector/models"
	"github.com/aluiziolira/go-product-collector/pipeline"
	"github.com/aluiziolira/go-product-collector/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const usageText = `usage: collector [flags] <query> [query...]

Fetches up to -cap products for each query from the search API and appends
them to the output file, one row per product.

example:
  collector "usb c cable" "wireless mouse"

flags:
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg := config.DefaultConfig()

	fs := flag.NewFlagSet("collector", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.Endpoint, "endpoint", cfg.Endpoint, "Search API endpoint")
	fs.StringVar(&cfg.APIKey, "api-key", "", "API key sent with every request")
	fs.IntVar(&cfg.Cap, "cap", cfg.Cap, "Maximum products kept per query")
	fs.IntVar(&cfg.MaxPages, "max-pages", cfg.MaxPages, "Maximum pages per query (0 for no limit)")
	fs.DurationVar(&cfg.Delay, "delay", cfg.Delay, "Pause between page requests")
	fs.DurationVar(&cfg.RandomDelay, "random-delay", cfg.RandomDelay, "Random jitter added by the transport")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-request timeout")
	fs.StringVar(&cfg.OutputFile, "output", cfg.OutputFile, "Output file path")
	fs.StringVar(&cfg.OutputFormat, "format", cfg.OutputFormat, "Output format: csv, json, or dual")
	fs.StringVar(&cfg.Source, "source", cfg.Source, "Source label written with every row")
	fs.StringVar(&cfg.CacheMode, "cache", cfg.CacheMode, "Page cache: none, memory, or redis")
	fs.IntVar(&cfg.CacheSize, "cache-size", cfg.CacheSize, "Entries kept by the memory cache")
	fs.DurationVar(&cfg.CacheTTL, "cache-ttl", cfg.CacheTTL, "Page cache entry lifetime")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address for -cache redis")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	fs.BoolVar(&cfg.Verbose, "v", false, "Enable verbose logging")
	envFile := fs.String("env-file", ".env", "Optional dotenv file")
	fs.Usage = func() {
		fmt.Fprint(stderr, usageText)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return 2
	}
	queries := fs.Args()
	if len(queries) == 0 {
		fs.Usage()
		return 2
	}

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(stderr, "loading env file: %v\n", err)
		return 1
	}
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
	if err := applyEnv(cfg, explicit); err != nil {
		fmt.Fprintf(stderr, "invalid environment: %v\n", err)
		return 1
	}
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
	cfg.CacheMode = strings.ToLower(cfg.CacheMode)

	logger, level := newLogger(stdout, cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pageCache, closeCache, err := buildCache(ctx, cfg)
	if err != nil {
		slog.Error("initialising page cache", slog.Any("error", err))
		return 1
	}
	defer closeCache()

	metrics := scraper.NewMetrics()
	fetcher, err := scraper.NewHTTPFetcher(cfg, metrics, pageCache)
	if err != nil {
		slog.Error("initialising fetcher", slog.Any("error", err))
		return 1
	}

	writer, err := createWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		return 1
	}

	metricsServer := startMetricsServer(cfg.MetricsAddr, metrics)

	slog.Info("starting collection",
		slog.String("endpoint", cfg.Endpoint),
		slog.Int("queries", len(queries)),
		slog.Int("cap", cfg.Cap),
		slog.String("cache", cfg.CacheMode),
	)

	collector := pipeline.NewCollector(scraper.NewPaginator(fetcher, cfg, metrics), writer, cfg.Source)
	result, runErr := collector.Run(ctx, queries)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	if runErr != nil {
		slog.Error("collection failed", slog.Any("error", runErr))
		return 1
	}
	if result.TotalRecords() > 0 {
		if err := writer.Validate(); err != nil {
			slog.Error("output validation failed", slog.Any("error", err))
			return 1
		}
	}

	printSummary(stdout, result, fetcher.CacheHits())
	return 0
}

// applyEnv fills settings from COLLECTOR_* variables unless the matching
// flag was given on the command line.
func applyEnv(cfg *config.Config, explicit map[string]bool) error {
	var errs []error
	str := func(name, key string, dst *string) {
		if explicit[name] {
			return
		}
		if value, ok := config.EnvString(key); ok {
			*dst = value
		}
	}
	num := func(name, key string, dst *int) {
		if explicit[name] {
			return
		}
		if value, ok, err := config.EnvInt(key); err != nil {
			errs = append(errs, err)
		} else if ok {
			*dst = value
		}
	}
	dur := func(name, key string, dst *time.Duration) {
		if explicit[name] {
			return
		}
		if value, ok, err := config.EnvDuration(key); err != nil {
			errs = append(errs, err)
		} else if ok {
			*dst = value
		}
	}

	str("endpoint", "COLLECTOR_ENDPOINT", &cfg.Endpoint)
	str("api-key", "COLLECTOR_API_KEY", &cfg.APIKey)
	str("", "COLLECTOR_API_KEY_HEADER", &cfg.APIKeyHeader)
	num("cap", "COLLECTOR_CAP", &cfg.Cap)
	num("max-pages", "COLLECTOR_MAX_PAGES", &cfg.MaxPages)
	dur("delay", "COLLECTOR_DELAY", &cfg.Delay)
	dur("timeout", "COLLECTOR_TIMEOUT", &cfg.Timeout)
	str("output", "COLLECTOR_OUTPUT", &cfg.OutputFile)
	str("format", "COLLECTOR_FORMAT", &cfg.OutputFormat)
	str("source", "COLLECTOR_SOURCE", &cfg.Source)
	str("", "COLLECTOR_USER_AGENT", &cfg.UserAgent)
	str("cache", "COLLECTOR_CACHE", &cfg.CacheMode)
	dur("cache-ttl", "COLLECTOR_CACHE_TTL", &cfg.CacheTTL)
	str("redis-addr", "COLLECTOR_REDIS_ADDR", &cfg.RedisAddr)
	str("metrics-addr", "COLLECTOR_METRICS_ADDR", &cfg.MetricsAddr)

	if !explicit["v"] {
		if value, ok, err := config.EnvBool("COLLECTOR_VERBOSE"); err != nil {
			errs = append(errs, err)
		} else if ok {
			cfg.Verbose = value
		}
	}

	return errors.Join(errs...)
}

// buildCache returns nil when caching is disabled. The returned func
// releases any connection held by the cache.
func buildCache(ctx context.Context, cfg *config.Config) (cache.PageCache, func(), error) {
	noop := func() {}
	switch cfg.CacheMode {
	case config.CacheMemory:
		lru, err := cache.NewLRU(cfg.CacheSize, cfg.CacheTTL)
		if err != nil {
			return nil, noop, err
		}
		return lru, noop, nil
	case config.CacheRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}
		rc, err := cache.NewRedis(client, "collector:page:", cfg.CacheTTL)
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		return rc, func() {
			if err := client.Close(); err != nil {
				slog.Warn("close redis client", slog.Any("error", err))
			}
		}, nil
	default:
		return nil, noop, nil
	}
}

func createWriter(format, filename string) (pipeline.OutputWriter, error) {
	switch format {
	case "json":
		return pipeline.NewJSONWriter(pipeline.JSONPathFor(filename))
	case "csv":
		return pipeline.NewCSVWriter(filename)
	case "dual":
		return pipeline.NewDualWriter(filename, pipeline.JSONPathFor(filename))
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func startMetricsServer(addr string, metrics *scraper.Metrics) *http.Server {
	if addr == "" || metrics == nil {
		return nil
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))
	return server
}

func printSummary(w io.Writer, result *models.RunResult, cacheHits int) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "Collection complete")
	for _, q := range result.Queries {
		line := fmt.Sprintf("  %-24q %4d products, %d pages, %s", q.Query, len(q.Results), q.Pages, q.StopReason)
		if q.ErrorType != "" {
			line += " (" + q.ErrorType + ")"
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "  Total records: %d\n", result.TotalRecords())
	fmt.Fprintf(w, "  Requests:      %d\n", result.RequestCount)
	if cacheHits > 0 {
		fmt.Fprintf(w, "  Cache hits:    %d\n", cacheHits)
	}
	fmt.Fprintf(w, "  Failed:        %d\n", len(result.FailedQueries()))
	if len(result.ErrorsByType) > 0 {
		fmt.Fprintf(w, "  Error types:   %v\n", result.ErrorsByType)
	}
	fmt.Fprintf(w, "  Duration:      %v\n", result.EndTime.Sub(result.StartTime).Round(time.Millisecond))
	if len(result.OutputFiles) > 0 {
		fmt.Fprintf(w, "  Output:        %s\n", strings.Join(result.OutputFiles, ", "))
	}
	fmt.Fprintln(w, separator)
}

func newLogger(w io.Writer, verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if f, ok := w.(*os.File); ok && isTerminal(f) {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
