// Package resilience retries operations that fail for transient reasons and
// protects peers from overload.
//
// Sources wrap their storage reads in Retry so that a flaky transport does
// not abort a pass, while contract and data-integrity failures surface on the
// first attempt:
//
//	tree, err := resilience.Retry(ctx, resilience.DefaultRetryConfig(), func() (*datatree.Tree, error) {
//	    return reader.FetchDataset(ctx, c, recorder)
//	})
//
// CircuitBreaker stops a remote source from hammering a worker that keeps
// failing; Bulkhead bounds how many fetches a worker serves at once.
package resilience
