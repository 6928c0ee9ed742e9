package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	hooks := mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		fileModeDecodeHook(),
		ttlDecodeHook(),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hooks)); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	for i := range cfg.Stores {
		applyStoreDefaults(&cfg.Stores[i])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage
	for i := range cfg.Stores {
		if cfg.Stores[i].Path == "" {
			continue
		}
		absPath, err := filepath.Abs(cfg.Stores[i].Path)
		if err != nil {
			return nil, fmt.Errorf("无法解析 Store 目录: %w", err)
		}
		cfg.Stores[i].Path = absPath
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "./.web_rips")
	v.SetDefault("DirectoryMode", "0750")
	v.SetDefault("FileMode", "0640")
	v.SetDefault("ExistOK", true)
	v.SetDefault("MaxEntrySize", 64*1024*1024)
	v.SetDefault("MaxRetries", 3)
	v.SetDefault("InitialBackoff", "1s")
	v.SetDefault("UpstreamTimeout", "30s")
}

// applyGlobalDefaults 处理 viper 默认值无法覆盖的情况，例如嵌套表 CacheTTL。
func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if g.CacheTTL.IsZero() {
		g.CacheTTL = DefaultTTL
	}
	if g.DirectoryMode == 0 {
		g.DirectoryMode = FileMode(0o750)
	}
	if g.FileMode == 0 {
		g.FileMode = FileMode(0o640)
	}
	if g.InitialBackoff.DurationValue() == 0 {
		g.InitialBackoff = Duration(time.Second)
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
}

func applyStoreDefaults(s *StoreConfig) {
	s.Name = strings.ToLower(strings.TrimSpace(s.Name))
	s.Upstream = strings.TrimRight(strings.TrimSpace(s.Upstream), "/")
	s.Path = strings.TrimSpace(s.Path)
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}

func fileModeDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(FileMode(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			mode, err := parseFileMode(v)
			if err != nil {
				return nil, fmt.Errorf("无法解析权限字段: %s", v)
			}
			return mode, nil
		case int:
			return FileMode(v), nil
		case int64:
			return FileMode(v), nil
		case FileMode:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的权限类型: %T", v)
		}
	}
}

// ttlDecodeHook 允许 CacheTTL 直接写成 "90m" 或秒数，表结构写法原样交给 mapstructure。
func ttlDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(TTL{})

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if strings.TrimSpace(v) == "" {
				return TTL{}, nil
			}
			parsed, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("无法解析 CacheTTL 字段: %s", v)
			}
			return TTLFromDuration(parsed), nil
		case int:
			return TTL{Seconds: int64(v)}, nil
		case int64:
			return TTL{Seconds: v}, nil
		default:
			return data, nil
		}
	}
}
