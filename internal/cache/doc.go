// Package cache implements the flat-directory TTL store behind webrip. Each
// entry is one regular file directly under the store directory; the file's
// modification time is the only freshness record, so expired entries are
// removed lazily by whichever operation observes them first. A FetchCache
// layered on top turns a miss into a single call to an injected Fetcher and
// persists the result. HTTP handlers depend on this package instead of
// touching the storage directory themselves.
package cache
