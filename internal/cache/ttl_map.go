package cache

import (
	"errors"
	"os"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/webrip/webrip/internal/logging"
)

// TTLMap 组合 DirectoryStore 与 ExpiryPolicy，实现 Map。
// 不加锁：并发调用方需要自行同步，多个进程共享目录时的交错顺序不做保证。
type TTLMap struct {
	store   *DirectoryStore
	policy  ExpiryPolicy
	dirMode os.FileMode
	now     func() time.Time
	logger  logrus.FieldLogger
}

var _ Map = (*TTLMap)(nil)

// NewTTLMap 创建（或复用）存储目录并返回 TTLMap。
func NewTTLMap(opts Options) (*TTLMap, error) {
	if opts.Path == "" {
		return nil, errors.New("storage path required")
	}

	store := NewDirectoryStore(opts.Fs, opts.Path, opts.FileMode)
	dirMode := opts.DirectoryMode
	if dirMode == 0 {
		dirMode = DefaultDirectoryMode
	}
	if err := store.EnsureDirectory(dirMode, opts.ExistOK); err != nil {
		return nil, err
	}

	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &TTLMap{
		store:   store,
		policy:  ExpiryPolicy{TTL: opts.TTL},
		dirMode: dirMode,
		now:     now,
		logger:  logger,
	}, nil
}

// Dir 返回存储目录。
func (m *TTLMap) Dir() string {
	return m.store.Dir()
}

// TTL 返回当前实例的 TTL。
func (m *TTLMap) TTL() time.Duration {
	return m.policy.TTL
}

// Path 返回 key 对应的文件路径，便于外部检查磁盘状态。
func (m *TTLMap) Path(key string) string {
	return m.store.Path(key)
}

func (m *TTLMap) Get(key string) ([]byte, error) {
	value, ok, err := m.Lookup(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, keyNotFound(key)
	}
	return value, nil
}

func (m *TTLMap) GetOrDefault(key string, def []byte) ([]byte, error) {
	value, ok, err := m.Lookup(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return def, nil
	}
	return value, nil
}

func (m *TTLMap) Lookup(key string) ([]byte, bool, error) {
	fresh, err := m.observe(key)
	if err != nil || !fresh {
		return nil, false, err
	}

	value, err := m.store.Read(key)
	if err != nil {
		// 条目可能在检查与读取之间被外部删除。
		if errors.Is(err, ErrEntryNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

func (m *TTLMap) Set(key string, value []byte) error {
	return m.store.Write(key, value, m.now())
}

func (m *TTLMap) Delete(key string) error {
	fresh, err := m.observe(key)
	if err != nil {
		return err
	}
	if !fresh {
		return keyNotFound(key)
	}

	if err := m.store.Remove(key); err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return keyNotFound(key)
		}
		return err
	}
	return nil
}

func (m *TTLMap) Contains(key string) (bool, error) {
	return m.observe(key)
}

func (m *TTLMap) Keys() ([]string, error) {
	names, err := m.store.List()
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(names))
	swept := 0
	for _, name := range names {
		// 外部放入的文件名不是 EncodeKey 的不动点，既不是条目也不归本目录管理。
		if !isEntryName(name) {
			continue
		}
		fresh, expired, err := m.check(name)
		if err != nil {
			return nil, err
		}
		if expired {
			swept++
		}
		if fresh {
			keys = append(keys, name)
		}
	}

	if swept > 0 {
		m.logger.WithFields(logrus.Fields{
			"action": "sweep",
			"dir":    m.store.Dir(),
			"swept":  swept,
		}).Debug("expired entries removed")
	}
	return keys, nil
}

func (m *TTLMap) Len() (int, error) {
	keys, err := m.Keys()
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (m *TTLMap) Clear() error {
	if err := m.store.DestroyDirectory(); err != nil {
		return err
	}
	return m.store.EnsureDirectory(m.dirMode, false)
}

func (m *TTLMap) SetDefault(key string, def []byte) ([]byte, error) {
	value, ok, err := m.Lookup(key)
	if err != nil {
		return nil, err
	}
	if ok {
		return value, nil
	}
	if err := m.Set(key, def); err != nil {
		return nil, err
	}
	return def, nil
}

// Items 返回全部新鲜条目的快照。
func (m *TTLMap) Items() (map[string][]byte, error) {
	keys, err := m.Keys()
	if err != nil {
		return nil, err
	}

	items := make(map[string][]byte, len(keys))
	for _, key := range keys {
		value, ok, err := m.Lookup(key)
		if err != nil {
			return nil, err
		}
		if ok {
			items[key] = value
		}
	}
	return items, nil
}

// Copy 是 Items 的别名，对应字典的浅拷贝语义。
func (m *TTLMap) Copy() (map[string][]byte, error) {
	return m.Items()
}

// Update 写入 items 中的全部条目，即使内容未变也会刷新各自的 TTL。
func (m *TTLMap) Update(items map[string][]byte) error {
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := m.Set(key, items[key]); err != nil {
			return err
		}
	}
	return nil
}

// observe 检查 key 是否新鲜；发现过期时先删除条目，再报告不存在。
func (m *TTLMap) observe(key string) (bool, error) {
	fresh, _, err := m.check(key)
	return fresh, err
}

// check 与 observe 相同，额外报告本次调用是否删除了一个过期条目。
func (m *TTLMap) check(key string) (fresh bool, expired bool, err error) {
	modTime, err := m.store.ModifiedTime(key)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return false, false, nil
		}
		return false, false, err
	}

	now := m.now()
	if !m.policy.Expired(modTime, now) {
		return true, false, nil
	}

	if err := m.store.Remove(key); err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return false, false, nil
		}
		return false, false, err
	}
	m.logger.WithFields(logrus.Fields{
		"action":     "expire",
		"key":        key,
		"dir":        m.store.Dir(),
		"expired_at": m.policy.ExpiresAt(modTime),
	}).Debug("expired entry removed")
	return false, true, nil
}

func isEntryName(name string) bool {
	return utf8.ValidString(name) && EncodeKey(name) == name
}
