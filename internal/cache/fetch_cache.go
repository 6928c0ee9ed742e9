package cache

import (
	"context"
	"errors"
)

// FetchCache 在 Map 之上提供“未命中即回源”的读取：命中直接返回，未命中调用 Fetcher，
// 成功后写入再返回。Fetcher 失败时不会写入任何内容，也不会重试。
type FetchCache struct {
	entries Map
	fetcher Fetcher
}

// NewFetchCache 组合 Map 与默认 Fetcher；fetcher 可以为 nil，此时每次调用都需显式传入。
func NewFetchCache(entries Map, fetcher Fetcher) *FetchCache {
	return &FetchCache{
		entries: entries,
		fetcher: fetcher,
	}
}

// Map 返回底层 Map，供诊断接口直接读写条目。
func (c *FetchCache) Map() Map {
	return c.entries
}

// GetOrFetch 返回 key 的值，未命中时通过 fetch（为 nil 时使用默认 Fetcher）获取并写入。
func (c *FetchCache) GetOrFetch(ctx context.Context, key string, fetch Fetcher) ([]byte, error) {
	value, ok, err := c.entries.Lookup(key)
	if err != nil {
		return nil, err
	}
	if ok {
		return value, nil
	}

	if fetch == nil {
		fetch = c.fetcher
	}
	if fetch == nil {
		return nil, &FetchError{Key: key, Err: errors.New("no fetcher configured")}
	}

	body, err := fetch.Fetch(ctx, key)
	if err != nil {
		return nil, &FetchError{Key: key, Err: err}
	}
	if err := c.entries.Set(key, body); err != nil {
		return nil, err
	}
	return body, nil
}
