// Package worker serves datasets to remote sources.
//
// A worker owns a set of named producers, usually sources reading local
// storage. Ranks on other hosts reach them through sources.Remote, which
// posts a contract to /v1/fetch and reads back a single codec frame: either
// the fetched data object or an error frame carrying the AppError the
// pipeline failed with. The server speaks HTTP/1.1 and h2c on one port.
//
// Fetches run inside a bulkhead so a worker serving many ranks never holds
// more fetched data than its slots allow; a caller that cannot get a slot in
// time receives a retryable BUSY error.
package worker
