package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// FileMode 接受八进制字符串（"0750"、"0o750"）或整数，原样传给文件系统。
type FileMode os.FileMode

// UnmarshalText 解析八进制权限字符串。
func (m *FileMode) UnmarshalText(text []byte) error {
	mode, err := parseFileMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// Value 返回 os.FileMode。
func (m FileMode) Value() os.FileMode {
	return os.FileMode(m)
}

func parseFileMode(raw string) (FileMode, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "0o"), "0O")
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseUint(raw, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid file mode value: %s", raw)
	}
	return FileMode(value), nil
}

// TTL 以结构化的时间间隔描述缓存有效期，各字段相加得到最终值。
type TTL struct {
	Weeks        int64 `mapstructure:"Weeks"`
	Days         int64 `mapstructure:"Days"`
	Hours        int64 `mapstructure:"Hours"`
	Minutes      int64 `mapstructure:"Minutes"`
	Seconds      int64 `mapstructure:"Seconds"`
	Milliseconds int64 `mapstructure:"Milliseconds"`
	Microseconds int64 `mapstructure:"Microseconds"`
}

// DefaultTTL 与早期版本的默认值一致：15 分钟。
var DefaultTTL = TTL{Minutes: 15}

// Duration 把各字段折算为 time.Duration。
func (t TTL) Duration() time.Duration {
	return time.Duration(t.Weeks)*7*24*time.Hour +
		time.Duration(t.Days)*24*time.Hour +
		time.Duration(t.Hours)*time.Hour +
		time.Duration(t.Minutes)*time.Minute +
		time.Duration(t.Seconds)*time.Second +
		time.Duration(t.Milliseconds)*time.Millisecond +
		time.Duration(t.Microseconds)*time.Microsecond
}

// IsZero 表示未配置任何字段。
func (t TTL) IsZero() bool {
	return t == TTL{}
}

func (t TTL) hasNegative() bool {
	for _, v := range []int64{t.Weeks, t.Days, t.Hours, t.Minutes, t.Seconds, t.Milliseconds, t.Microseconds} {
		if v < 0 {
			return true
		}
	}
	return false
}

// TTLFromDuration 把 time.Duration 拆成结构化 TTL，供字符串写法的配置复用。
func TTLFromDuration(d time.Duration) TTL {
	var t TTL
	t.Hours = int64(d / time.Hour)
	d -= time.Duration(t.Hours) * time.Hour
	t.Minutes = int64(d / time.Minute)
	d -= time.Duration(t.Minutes) * time.Minute
	t.Seconds = int64(d / time.Second)
	d -= time.Duration(t.Seconds) * time.Second
	t.Microseconds = int64(d / time.Microsecond)
	return t
}

// GlobalConfig 描述全局运行时行为，所有 Store 共享同一份参数。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	StoragePath     string   `mapstructure:"StoragePath"`
	DirectoryMode   FileMode `mapstructure:"DirectoryMode"`
	FileMode        FileMode `mapstructure:"FileMode"`
	ExistOK         bool     `mapstructure:"ExistOK"`
	CacheTTL        TTL      `mapstructure:"CacheTTL"`
	MaxEntrySize    int64    `mapstructure:"MaxEntrySize"`
	MaxRetries      int      `mapstructure:"MaxRetries"`
	InitialBackoff  Duration `mapstructure:"InitialBackoff"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
}

// StoreConfig 描述一个扁平缓存目录及其上游。
type StoreConfig struct {
	Name     string `mapstructure:"Name"`
	Upstream string `mapstructure:"Upstream"`
	Path     string `mapstructure:"Path"`
	CacheTTL TTL    `mapstructure:"CacheTTL"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig  `mapstructure:",squash"`
	Stores []StoreConfig `mapstructure:"Store"`
}

// EffectiveCacheTTL 返回特定 Store 生效的 TTL，未覆盖时回退至全局值。
func (c *Config) EffectiveCacheTTL(s StoreConfig) time.Duration {
	if !s.CacheTTL.IsZero() {
		return s.CacheTTL.Duration()
	}
	return c.Global.CacheTTL.Duration()
}

// EffectiveStorePath 返回 Store 的目录，未显式配置时为 StoragePath/<Name>。
func (c *Config) EffectiveStorePath(s StoreConfig) string {
	if s.Path != "" {
		return s.Path
	}
	return filepath.Join(c.Global.StoragePath, s.Name)
}

// StoreNames 返回所有 Store 名称，供日志字段使用。
func StoreNames(stores []StoreConfig) []string {
	if len(stores) == 0 {
		return nil
	}
	result := make([]string, len(stores))
	for i, store := range stores {
		result[i] = store.Name
	}
	return result
}
