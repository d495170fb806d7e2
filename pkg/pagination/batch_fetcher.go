// Package pagination provides parallel batch fetching for paginated sources
package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/spex/pkg/promise"
	"github.com/Sternrassler/spex/pkg/spex"
)

var paginationPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "spex_pagination_pages_total",
	Help: "Total number of pages fetched by outcome",
}, []string{"outcome"})

// progressEvery is the page interval between progress log lines.
const progressEvery = 50

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of pages fetched at the same time
	MaxConcurrency int
	// Timeout per page fetch
	Timeout time.Duration
}

// DefaultConfig returns safe default configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 10,
		Timeout:        15 * time.Second,
	}
}

// PageFetcher fetches a single page. Page numbers start at 1.
type PageFetcher interface {
	// FetchPage fetches a single page and returns data + total page count
	FetchPage(ctx context.Context, pageNum int) (data []byte, totalPages int, err error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc func(ctx context.Context, pageNum int) ([]byte, int, error)

// FetchPage calls f.
func (f PageFetcherFunc) FetchPage(ctx context.Context, pageNum int) ([]byte, int, error) {
	return f(ctx, pageNum)
}

// PageResult represents the result of fetching a single page
type PageResult struct {
	PageNumber int
	Data       []byte
}

// BatchFetcher fetches every page of a paginated source through a spex batch
type BatchFetcher struct {
	engine  *spex.Engine
	fetcher PageFetcher
	config  Config
}

// NewBatchFetcher creates a new batch fetcher. A nil engine uses spex.Default().
func NewBatchFetcher(engine *spex.Engine, fetcher PageFetcher, config Config) *BatchFetcher {
	if engine == nil {
		engine = spex.Default()
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 10
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	return &BatchFetcher{
		engine:  engine,
		fetcher: fetcher,
		config:  config,
	}
}

// FetchAllPages fetches page 1 to learn the page count, then the remaining
// pages in parallel. Returns map of pageNumber -> data for successful pages;
// when any page fails the map is partial and the error wraps *spex.BatchError.
func (bf *BatchFetcher) FetchAllPages(ctx context.Context) (map[int][]byte, error) {
	start := time.Now()

	firstPageData, totalPages, err := bf.fetch(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch first page: %w", err)
	}

	log.Info().
		Int("total_pages", totalPages).
		Msg("Starting parallel page fetch")

	results := map[int][]byte{1: firstPageData}

	// Single page optimization
	if totalPages <= 1 {
		log.Info().
			Int("pages", 1).
			Dur("duration", time.Since(start)).
			Msg("Fetch complete (single page)")
		return results, nil
	}

	sem := make(chan struct{}, bf.config.MaxConcurrency)
	items := make([]any, 0, totalPages-1)
	for page := 2; page <= totalPages; page++ {
		items = append(items, func(ctx context.Context) (any, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			defer func() { <-sem }()

			data, _, err := bf.fetch(ctx, page)
			if err != nil {
				return nil, fmt.Errorf("page %d: %w", page, err)
			}
			return PageResult{PageNumber: page, Data: data}, nil
		})
	}

	// The callback is serialized by the engine, so results needs no lock.
	fetchedPages := 1
	collect := func(_ context.Context, _ int, success bool, result any, _ time.Duration) (any, error) {
		if !success {
			log.Warn().
				Err(result.(error)).
				Msg("Page fetch failed")
			return nil, nil
		}

		page := result.(PageResult)
		results[page.PageNumber] = page.Data
		fetchedPages++

		if fetchedPages%progressEvery == 0 {
			log.Info().
				Int("fetched", fetchedPages).
				Int("total", totalPages).
				Float64("progress_pct", float64(fetchedPages)/float64(totalPages)*100).
				Msg("Fetch progress")
		}
		return nil, nil
	}

	// Items observe ctx themselves; the batch always runs to completion so no
	// callback touches results after return.
	_, err = promise.Await(context.Background(), bf.engine.Batch(ctx, items, spex.WithCallback(collect)))
	if err != nil {
		log.Warn().
			Err(err).
			Int("fetched_pages", fetchedPages).
			Int("total_pages", totalPages).
			Msg("Page fetch error - returning partial results")
		return results, fmt.Errorf("page fetch failed (partial data: %d/%d pages): %w", fetchedPages, totalPages, err)
	}

	log.Info().
		Int("pages", fetchedPages).
		Int("total", totalPages).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return results, nil
}

// fetch fetches one page with the per-page timeout.
func (bf *BatchFetcher) fetch(ctx context.Context, pageNum int) ([]byte, int, error) {
	pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
	defer cancel()

	data, total, err := bf.fetcher.FetchPage(pageCtx, pageNum)
	if err != nil {
		paginationPagesTotal.WithLabelValues("failure").Inc()
		return nil, 0, err
	}
	paginationPagesTotal.WithLabelValues("success").Inc()
	return data, total, nil
}
