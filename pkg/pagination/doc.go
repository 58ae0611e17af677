// Package pagination walks the offset-paginated business search for one zip
// code.
//
// The search API reports the total number of matches with every page but
// never serves more than 1000 results for one query. Pages are fetched
// strictly in sequence with a fixed delay between them:
//
//	fetcher := pagination.NewFetcher(searchClient, pagination.DefaultConfig(), logger)
//	result := fetcher.FetchZip(ctx, "90001")
//	if result.Fatal() {
//		return result.Err
//	}
//
// The loop stops when:
//   - the reported total has been collected
//   - the result cap has been reached
//   - a page comes back empty before the total is reached
//   - a request fails (the entities of earlier pages are kept)
//
// A failed request is reported through Fetcher.OnError and is never retried.
// A record that cannot be normalized makes the result fatal.
package pagination
