package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.LogLevel != "" {
		if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
			return newFieldError("Global.LogLevel", "无法识别的日志级别")
		}
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if err := validateMode(g.DirectoryMode); err != nil {
		return newFieldError("Global.DirectoryMode", err.Error())
	}
	if err := validateMode(g.FileMode); err != nil {
		return newFieldError("Global.FileMode", err.Error())
	}
	if g.CacheTTL.hasNegative() {
		return newFieldError("Global.CacheTTL", "字段不能为负数")
	}
	if g.CacheTTL.Duration() <= 0 {
		return newFieldError("Global.CacheTTL", "必须大于 0")
	}
	if g.MaxEntrySize <= 0 {
		return newFieldError("Global.MaxEntrySize", "必须大于 0")
	}
	if g.MaxRetries < 0 {
		return newFieldError("Global.MaxRetries", "不能为负数")
	}
	if g.InitialBackoff.DurationValue() <= 0 {
		return newFieldError("Global.InitialBackoff", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}

	if len(c.Stores) == 0 {
		return errors.New("至少需要配置一个 Store")
	}

	seenNames := map[string]struct{}{}
	seenPaths := map[string]string{}
	for i := range c.Stores {
		store := &c.Stores[i]
		if store.Name == "" {
			return newFieldError("Store[].Name", "不能为空")
		}
		if err := validateStoreName(store.Name); err != nil {
			return fmt.Errorf("%s: %w", storeField(store.Name, "Name"), err)
		}
		if _, exists := seenNames[store.Name]; exists {
			return newFieldError(storeField(store.Name, "Name"), "重复")
		}
		seenNames[store.Name] = struct{}{}

		if err := validateUpstream(store.Upstream); err != nil {
			return fmt.Errorf("%s: %w", storeField(store.Name, "Upstream"), err)
		}
		if store.CacheTTL.hasNegative() {
			return newFieldError(storeField(store.Name, "CacheTTL"), "字段不能为负数")
		}

		dir := filepath.Clean(c.EffectiveStorePath(*store))
		if other, exists := seenPaths[dir]; exists {
			return newFieldError(storeField(store.Name, "Path"), fmt.Sprintf("与 Store[%s] 目录相同", other))
		}
		seenPaths[dir] = store.Name
	}

	return nil
}

func validateMode(mode FileMode) error {
	if mode == 0 {
		return errors.New("不能为空")
	}
	if mode.Value()&^0o7777 != 0 {
		return errors.New("仅支持权限位")
	}
	return nil
}

// validateStoreName 限制 Store 名称为单个 URL 路径段，且不与 /-/ 诊断前缀冲突。
func validateStoreName(name string) error {
	if strings.HasPrefix(name, "-") || strings.HasPrefix(name, ".") {
		return errors.New("Name 不能以 - 或 . 开头")
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return fmt.Errorf("Name 包含非法字符: %q", r)
		}
	}
	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}
