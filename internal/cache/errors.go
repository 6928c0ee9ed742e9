package cache

import (
	"errors"
	"fmt"
)

// 错误分类：调用方通过 errors.Is 判断类别，通过 errors.As 获取细节。
var (
	ErrInvalidKeyKind  = errors.New("invalid key kind")
	ErrKeyNotFound     = errors.New("key not found")
	ErrEntryNotFound   = errors.New("cache entry not found")
	ErrDirectoryCreate = errors.New("create cache directory failed")
	ErrDirectoryRemove = errors.New("remove cache directory failed")
	ErrDirectoryRead   = errors.New("read cache directory failed")
	ErrEntryRead       = errors.New("read cache entry failed")
	ErrEntryWrite      = errors.New("write cache entry failed")
	ErrEntryRemove     = errors.New("remove cache entry failed")
	ErrFetch           = errors.New("fetch failed")
)

// OpError 记录一次文件系统操作失败：Kind 为上面的分类之一，Err 为底层 OS 错误。
type OpError struct {
	Op   string
	Key  string
	Path string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	msg := e.Kind.Error()
	if e.Key != "" {
		msg = fmt.Sprintf("%s: key %q", msg, e.Key)
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s (%s %s)", msg, e.Op, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap 同时暴露分类与底层原因，errors.Is(err, fs.ErrPermission) 之类的判断依然可用。
func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// FetchError 包装 Fetcher 返回的错误，缓存状态保持不变。
type FetchError struct {
	Key string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %q: %v", e.Key, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is 使 errors.Is(err, ErrFetch) 成立。
func (e *FetchError) Is(target error) bool {
	return target == ErrFetch
}

func keyNotFound(key string) error {
	return fmt.Errorf("%w: %q", ErrKeyNotFound, key)
}

func unsupportedKeyType(v any) error {
	return fmt.Errorf("unsupported key type %T", v)
}
