package server

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/webrip/webrip/internal/cache"
	"github.com/webrip/webrip/internal/config"
)

// StoreRoute 将 Store 配置与派生属性（目录、TTL、解析后的 Upstream）以及
// 已初始化的缓存实例聚合在一起，供路由/代理层直接复用。
type StoreRoute struct {
	// Config 是用户在 config.toml 中声明的 Store 字段副本。
	Config config.StoreConfig
	// Dir 是该 Store 的扁平缓存目录。
	Dir string
	// CacheTTL 是对当前 Store 生效的 TTL，未覆盖时等于全局值。
	CacheTTL time.Duration
	// UpstreamURL 在构造 Registry 时提前解析完成。
	UpstreamURL *url.URL
	// Map/Cache 共享同一个目录：Map 供诊断接口直接读写，Cache 负责未命中回源。
	Map   *cache.TTLMap
	Cache *cache.FetchCache
}

// UpstreamFor 把请求路径与查询串拼接到上游地址上，结果同时作为缓存 key。
func (r *StoreRoute) UpstreamFor(path, rawQuery string) string {
	base := strings.TrimRight(r.UpstreamURL.String(), "/")
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	target := base + path
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	return target
}

// RegistryOptions 注入 Registry 构建缓存实例所需的依赖。
type RegistryOptions struct {
	// Fs 为 nil 时使用真实文件系统。
	Fs afero.Fs
	Logger  logrus.FieldLogger
	// Clock 为 nil 时使用 time.Now。
	Clock func() time.Time
}

// StoreRegistry 提供 Store 名称到 StoreRoute 的查询能力。
type StoreRegistry struct {
	routes  map[string]*StoreRoute
	ordered []*StoreRoute
}

// NewStoreRegistry 根据配置创建各 Store 目录并构建映射。调用方应在启动阶段创建一次并复用。
func NewStoreRegistry(cfg *config.Config, opts RegistryOptions) (*StoreRegistry, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	registry := &StoreRegistry{
		routes: make(map[string]*StoreRoute, len(cfg.Stores)),
	}

	for _, store := range cfg.Stores {
		name := strings.ToLower(strings.TrimSpace(store.Name))
		if name == "" {
			return nil, errors.New("store name required")
		}
		if _, exists := registry.routes[name]; exists {
			return nil, fmt.Errorf("duplicate store name detected for %s", name)
		}

		route, err := buildStoreRoute(cfg, store, opts)
		if err != nil {
			return nil, err
		}

		registry.routes[name] = route
		registry.ordered = append(registry.ordered, route)
	}

	return registry, nil
}

// Lookup 根据 Store 名称查找 StoreRoute。
func (r *StoreRegistry) Lookup(name string) (*StoreRoute, bool) {
	if r == nil {
		return nil, false
	}
	route, ok := r.routes[strings.ToLower(strings.TrimSpace(name))]
	return route, ok
}

// List 返回当前注册的 StoreRoute 列表（按配置定义的顺序），用于 /-/stores 输出。
func (r *StoreRegistry) List() []StoreRoute {
	if r == nil || len(r.ordered) == 0 {
		return nil
	}

	result := make([]StoreRoute, len(r.ordered))
	for i, route := range r.ordered {
		result[i] = *route
	}
	return result
}

func buildStoreRoute(cfg *config.Config, store config.StoreConfig, opts RegistryOptions) (*StoreRoute, error) {
	upstreamURL, err := url.Parse(store.Upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream for store %s: %w", store.Name, err)
	}

	dir := cfg.EffectiveStorePath(store)
	ttl := cfg.EffectiveCacheTTL(store)

	var logger logrus.FieldLogger
	if opts.Logger != nil {
		logger = opts.Logger.WithField("store", store.Name)
	}

	entries, err := cache.NewTTLMap(cache.Options{
		Path:          dir,
		Fs:            opts.Fs,
		DirectoryMode: cfg.Global.DirectoryMode.Value(),
		FileMode:      cfg.Global.FileMode.Value(),
		ExistOK:       cfg.Global.ExistOK,
		TTL:           ttl,
		Clock:         opts.Clock,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", store.Name, err)
	}

	// 回源实现由代理层在每次 GetOrFetch 时传入，这里不设默认 Fetcher。
	return &StoreRoute{
		Config:      store,
		Dir:         dir,
		CacheTTL:    ttl,
		UpstreamURL: upstreamURL,
		Map:         entries,
		Cache:       cache.NewFetchCache(entries, nil),
	}, nil
}
