package version

import (
	"fmt"
	"runtime/debug"
)

// Version/Commit 可在构建时通过 -ldflags 注入；未注入 Commit 时尝试读取 go build 记录的 vcs 信息。
var (
	Version = "0.1.0"
	Commit  = "dev"
)

// Full 返回便于 CLI 打印的完整版本信息。
func Full() string {
	return fmt.Sprintf("webrip %s (%s)", Version, revision())
}

// UserAgent 返回回源请求使用的 User-Agent。
func UserAgent() string {
	return "webrip/" + Version
}

func revision() string {
	if Commit != "dev" {
		return Commit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Commit
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && setting.Value != "" {
			if len(setting.Value) > 12 {
				return setting.Value[:12]
			}
			return setting.Value
		}
	}
	return Commit
}
