package cache

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

const (
	// DefaultDirectoryMode/DefaultFileMode 与早期版本保持一致。
	DefaultDirectoryMode os.FileMode = 0o750
	DefaultFileMode      os.FileMode = 0o640

	// tempPrefix 含大写字母，EncodeKey 的输出永远不会与之冲突。
	tempPrefix = ".Partial-"
)

// DirectoryStore 是单个扁平目录上的文件 CRUD 原语，负责把 OS 错误翻译为错误分类。
// 不做任何内存缓存，每次调用都重新访问文件系统。
type DirectoryStore struct {
	fs       afero.Fs
	dir      string
	fileMode os.FileMode
}

// NewDirectoryStore 以 dir 为根构建目录存储；fsys 为 nil 时使用真实文件系统。
func NewDirectoryStore(fsys afero.Fs, dir string, fileMode os.FileMode) *DirectoryStore {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if fileMode == 0 {
		fileMode = DefaultFileMode
	}
	return &DirectoryStore{
		fs:       fsys,
		dir:      filepath.Clean(dir),
		fileMode: fileMode,
	}
}

// Dir 返回存储目录。
func (s *DirectoryStore) Dir() string {
	return s.dir
}

// Path 返回 key 对应的文件路径。
func (s *DirectoryStore) Path(key string) string {
	return KeyPath(s.dir, key)
}

// EnsureDirectory 创建存储目录（含父目录）。目录已存在且 existOK 为 false 时返回 ErrDirectoryCreate。
func (s *DirectoryStore) EnsureDirectory(mode os.FileMode, existOK bool) error {
	if mode == 0 {
		mode = DefaultDirectoryMode
	}

	info, err := s.fs.Stat(s.dir)
	switch {
	case err == nil:
		if !info.IsDir() {
			return s.dirError("mkdir", ErrDirectoryCreate, fs.ErrExist)
		}
		if !existOK {
			return s.dirError("mkdir", ErrDirectoryCreate, fs.ErrExist)
		}
		return nil
	case !errors.Is(err, fs.ErrNotExist):
		return s.dirError("stat", ErrDirectoryCreate, err)
	}

	if err := s.fs.MkdirAll(s.dir, mode); err != nil {
		return s.dirError("mkdir", ErrDirectoryCreate, err)
	}
	return nil
}

// DestroyDirectory 递归删除存储目录及其全部内容，目录不存在同样视为失败。
func (s *DirectoryStore) DestroyDirectory() error {
	if _, err := s.fs.Stat(s.dir); err != nil {
		return s.dirError("stat", ErrDirectoryRemove, err)
	}
	if err := s.fs.RemoveAll(s.dir); err != nil {
		return s.dirError("remove", ErrDirectoryRemove, err)
	}
	return nil
}

// List 返回目录下所有条目的文件名（已排序），忽略子目录与正在写入的临时文件。
func (s *DirectoryStore) List() ([]string, error) {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, s.dirError("readdir", ErrDirectoryRead, err)
	}

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if !info.Mode().IsRegular() {
			continue
		}
		if strings.HasPrefix(info.Name(), tempPrefix) {
			continue
		}
		names = append(names, info.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Read 读取 key 对应文件的完整内容。
func (s *DirectoryStore) Read(key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}

	filePath := s.Path(key)
	if _, err := s.stat(key, filePath); err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(s.fs, filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, s.entryError("read", key, ErrEntryNotFound, nil)
		}
		return nil, s.entryError("read", key, ErrEntryRead, err)
	}
	return data, nil
}

// Write 通过临时文件 + rename 写入条目，并把文件时间设为 modTime（零值时取当前时间）。
// 读者只会看到旧内容或新内容，不会看到混合内容。
func (s *DirectoryStore) Write(key string, data []byte, modTime time.Time) error {
	if err := checkKey(key); err != nil {
		return err
	}

	filePath := s.Path(key)
	tempName := filepath.Join(s.dir, tempPrefix+uuid.NewString())

	tempFile, err := s.fs.OpenFile(tempName, os.O_WRONLY|os.O_CREATE|os.O_EXCL, s.fileMode)
	if err != nil {
		return s.entryError("create", key, ErrEntryWrite, err)
	}

	_, err = tempFile.Write(data)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = s.fs.Remove(tempName)
		return s.entryError("write", key, ErrEntryWrite, err)
	}

	// 先在临时文件上设置时间，rename 之后条目的内容与 mtime 同时可见。
	if modTime.IsZero() {
		modTime = time.Now().UTC()
	}
	if err := s.fs.Chtimes(tempName, modTime, modTime); err != nil {
		_ = s.fs.Remove(tempName)
		return s.entryError("chtimes", key, ErrEntryWrite, err)
	}

	if err := s.fs.Rename(tempName, filePath); err != nil {
		_ = s.fs.Remove(tempName)
		return s.entryError("rename", key, ErrEntryWrite, err)
	}
	return nil
}

// Remove 删除 key 对应的文件。
func (s *DirectoryStore) Remove(key string) error {
	if err := checkKey(key); err != nil {
		return err
	}

	filePath := s.Path(key)
	if _, err := s.stat(key, filePath); err != nil {
		return err
	}
	if err := s.fs.Remove(filePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s.entryError("remove", key, ErrEntryNotFound, nil)
		}
		return s.entryError("remove", key, ErrEntryRemove, err)
	}
	return nil
}

// ModifiedTime 返回 key 对应文件的最后修改时间。
func (s *DirectoryStore) ModifiedTime(key string) (time.Time, error) {
	if err := checkKey(key); err != nil {
		return time.Time{}, err
	}

	info, err := s.stat(key, s.Path(key))
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// stat 把目录和缺失都归为 ErrEntryNotFound，只有普通文件才算条目。
func (s *DirectoryStore) stat(key, filePath string) (os.FileInfo, error) {
	info, err := s.fs.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, s.entryError("stat", key, ErrEntryNotFound, nil)
		}
		return nil, s.entryError("stat", key, ErrEntryRead, err)
	}
	if !info.Mode().IsRegular() {
		return nil, s.entryError("stat", key, ErrEntryNotFound, nil)
	}
	return info, nil
}

func (s *DirectoryStore) entryError(op, key string, kind, err error) error {
	return &OpError{Op: op, Key: key, Path: s.Path(key), Kind: kind, Err: err}
}

func (s *DirectoryStore) dirError(op string, kind, err error) error {
	return &OpError{Op: op, Path: s.dir, Kind: kind, Err: err}
}

// KeyOf 把动态类型的 key 转成字符串，仅接受 string 与 []byte。
func KeyOf(v any) (string, error) {
	switch k := v.(type) {
	case string:
		return k, checkKey(k)
	case []byte:
		key := string(k)
		return key, checkKey(key)
	default:
		return "", &OpError{Op: "key", Kind: ErrInvalidKeyKind, Err: unsupportedKeyType(v)}
	}
}

func checkKey(key string) error {
	if !utf8.ValidString(key) {
		return &OpError{Op: "key", Kind: ErrInvalidKeyKind, Err: errors.New("key is not valid UTF-8 text")}
	}
	return nil
}
