// Package resource manages open dataset handles shared by sources.
//
// A Manager keeps at most MaxOpenHandles handles open and closes the least
// recently used idle one when the limit is exceeded. Handles in use are never
// closed under a caller; the manager may go over its limit until they are
// released.
//
// The process-wide default manager is created lazily on first use. Configure
// replaces it and Reset closes it; both are explicit so tests and embedding
// programs control its lifetime.
package resource
