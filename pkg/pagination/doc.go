// Package pagination provides parallel batch fetching for paginated sources.
//
// Many APIs report the total page count alongside the first page and accept
// parallel requests for the rest. This package fetches page 1, then hands the
// remaining pages to a spex batch whose items share a concurrency semaphore.
//
// Example usage:
//
//	config := pagination.DefaultConfig()
//	fetcher := pagination.NewBatchFetcher(engine, client, config)
//	results, err := fetcher.FetchAllPages(ctx)
//
// The batch fetcher:
//   - Fetches first page to determine total pages
//   - Runs every remaining page as one batch item (default 10 in flight)
//   - Collects results in the batch callback with progress logging
//   - Handles errors gracefully (returns partial data and the *spex.BatchError)
package pagination
