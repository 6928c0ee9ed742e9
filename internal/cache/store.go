package cache

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Map 以字典语义暴露带 TTL 的目录存储。磁盘布局：
//
//	<Path>/<EncodeKey(key)>    # 正文，文件 ModTime 即写入时间
//
// 过期条目不会被主动清理，任何观察到它的操作会先删除再按不存在处理。
type Map interface {
	// Get 返回 key 的值；不存在或已过期时返回 ErrKeyNotFound。
	Get(key string) ([]byte, error)

	// GetOrDefault 与 Get 相同，但缺失时返回 def 而非报错。
	GetOrDefault(key string, def []byte) ([]byte, error)

	// Lookup 以显式的 ok 区分“值为空”与“不存在”。
	Lookup(key string) ([]byte, bool, error)

	// Set 无条件写入并重置该 key 的 TTL 计时。
	Set(key string, value []byte) error

	// Delete 删除 key；不存在或已过期时返回 ErrKeyNotFound。
	Delete(key string) error

	// Contains 报告 key 是否存在且新鲜。
	Contains(key string) (bool, error)

	// Keys 返回全部新鲜 key，顺带删除遍历中发现的过期条目。
	Keys() ([]string, error)

	// Len 返回 Keys 过滤后的数量。
	Len() (int, error)

	// Clear 删除并重建存储目录。
	Clear() error

	// SetDefault 已有新鲜值时返回它，否则写入并返回 def。
	SetDefault(key string, def []byte) ([]byte, error)
}

// Fetcher 在缓存未命中时获取 key 对应的内容，例如把 key 当作 URL 发起 HTTP 请求。
type Fetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// FetchFunc 让普通函数满足 Fetcher。
type FetchFunc func(ctx context.Context, key string) ([]byte, error)

// Fetch 实现 Fetcher。
func (f FetchFunc) Fetch(ctx context.Context, key string) ([]byte, error) {
	return f(ctx, key)
}

// Options 控制 TTLMap 的构造参数，零值字段使用默认值。
type Options struct {
	// Path 是存储目录，必填。
	Path string
	// Fs 为 nil 时使用真实文件系统。
	Fs afero.Fs
	// DirectoryMode/FileMode 原样传给文件系统。
	DirectoryMode os.FileMode
	FileMode      os.FileMode
	// ExistOK 为 false 时，目录已存在会导致构造失败。
	ExistOK bool
	// TTL 对目录中的所有条目统一生效。
	TTL time.Duration
	// Clock 默认 time.Now，测试可注入固定时钟。
	Clock func() time.Time
	// Logger 可选，用于记录过期清理。
	Logger logrus.FieldLogger
}
