package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfgPath := testConfigPath(t, "valid.toml")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.CacheTTL.Duration() != 15*time.Minute {
		t.Fatalf("CacheTTL 应该默认为 15 分钟，得到 %v", cfg.Global.CacheTTL.Duration())
	}
	if !filepath.IsAbs(cfg.Global.StoragePath) {
		t.Fatalf("StoragePath 应被转换为绝对路径: %s", cfg.Global.StoragePath)
	}
	if cfg.Global.DirectoryMode.Value() != 0o750 || cfg.Global.FileMode.Value() != 0o640 {
		t.Fatalf("权限默认值错误: %o/%o", cfg.Global.DirectoryMode, cfg.Global.FileMode)
	}
	if !cfg.Global.ExistOK {
		t.Fatalf("ExistOK 默认应为 true")
	}
	if cfg.EffectiveCacheTTL(cfg.Stores[0]) != cfg.Global.CacheTTL.Duration() {
		t.Fatalf("Store 未设置 TTL 时应退回全局 TTL")
	}
	if ttl := cfg.EffectiveCacheTTL(cfg.Stores[1]); ttl != 90*time.Minute {
		t.Fatalf("Store 覆盖 TTL 应生效，得到 %v", ttl)
	}
	if cfg.Stores[1].Upstream != "https://jobs.example.com/api" {
		t.Fatalf("Upstream 末尾斜杠应被去除: %s", cfg.Stores[1].Upstream)
	}
	if got := cfg.EffectiveStorePath(cfg.Stores[0]); got != filepath.Join(cfg.Global.StoragePath, "pages") {
		t.Fatalf("Store 默认目录错误: %s", got)
	}
}

func TestValidateRejectsBadStore(t *testing.T) {
	cfgPath := testConfigPath(t, "missing.toml")

	if _, err := Load(cfgPath); err == nil {
		t.Fatalf("不合法的配置应返回错误")
	}
}

func TestTTLDuration(t *testing.T) {
	ttl := TTL{Weeks: 1, Days: 1, Hours: 1, Minutes: 1, Seconds: 1, Milliseconds: 1, Microseconds: 1}
	want := 8*24*time.Hour + time.Hour + time.Minute + time.Second + time.Millisecond + time.Microsecond
	if ttl.Duration() != want {
		t.Fatalf("TTL 折算错误: %v != %v", ttl.Duration(), want)
	}
	if back := TTLFromDuration(want); back.Duration() != want {
		t.Fatalf("TTLFromDuration 往返失败: %v", back.Duration())
	}
}

func TestValidateEnforcesListenPortRange(t *testing.T) {
	cfg := validConfig()
	cfg.Global.ListenPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("ListenPort 超出范围应当报错")
	}
}

func TestStoreNameValidation(t *testing.T) {
	testCases := []struct {
		name      string
		storeName string
		shouldErr bool
	}{
		{"simple", "pages", false},
		{"with punctuation", "job-board_v2.1", false},
		{"empty", "", true},
		{"diagnostics prefix", "-", true},
		{"slash", "a/b", true},
		{"hidden", ".pages", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Stores[0].Name = tc.storeName
			err := cfg.Validate()
			if tc.shouldErr && err == nil {
				t.Fatalf("expected error for name %q", tc.storeName)
			}
			if !tc.shouldErr && err != nil {
				t.Fatalf("unexpected error for name %q: %v", tc.storeName, err)
			}
		})
	}
}

func TestValidateRejectsDuplicateStores(t *testing.T) {
	cfg := validConfig()
	cfg.Stores = append(cfg.Stores, cfg.Stores[0])
	if err := cfg.Validate(); err == nil {
		t.Fatalf("重复的 Store 名称应报错")
	}

	cfg = validConfig()
	cfg.Stores = append(cfg.Stores, StoreConfig{Name: "other", Upstream: "https://other.example.com", Path: "./data/pages"})
	if err := cfg.Validate(); err == nil {
		t.Fatalf("共享目录的 Store 应报错")
	}
}

func TestValidateRejectsNegativeTTL(t *testing.T) {
	cfg := validConfig()
	cfg.Stores[0].CacheTTL = TTL{Hours: 1, Minutes: -90}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("负数 TTL 字段应报错")
	}
}

func TestValidateRejectsBadMode(t *testing.T) {
	cfg := validConfig()
	cfg.Global.FileMode = FileMode(0o10000)
	if err := cfg.Validate(); err == nil {
		t.Fatalf("非法权限应报错")
	}
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			ListenPort:      5000,
			StoragePath:     "./data",
			DirectoryMode:   FileMode(0o750),
			FileMode:        FileMode(0o640),
			CacheTTL:        TTL{Hours: 1},
			MaxEntrySize:    1,
			MaxRetries:      1,
			InitialBackoff:  Duration(time.Second),
			UpstreamTimeout: Duration(time.Second),
		},
		Stores: []StoreConfig{
			{
				Name:     "pages",
				Upstream: "https://example.com",
			},
		},
	}
}
