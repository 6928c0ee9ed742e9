package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	// emptyKeyName 是空 key 对应的保留文件名。
	emptyKeyName = "@empty"
	// maskChar 替换所有平台上文件名中不允许出现的字符。
	maskChar = '_'
	// maxNameBytes 对应常见文件系统单个文件名的长度上限。
	maxNameBytes = 255
	// truncatedNameBytes 为超长文件名截断后保留的前缀长度，剩余空间留给哈希后缀。
	truncatedNameBytes = 200
)

// EncodeKey 把任意 key 映射为可以直接放在存储目录下的文件名。
//
// 规则：统一转小写；Windows 保留字符与控制字符替换为 '_'；纯点号名称逐个替换，
// 防止跳出目录；空 key 使用保留名；超过 255 字节时截断并追加 sha256 摘要。
// 映射对已编码的名称幂等，不同 key 可能得到同一个文件名，后写者覆盖先写者。
func EncodeKey(key string) string {
	if key == "" {
		return emptyKeyName
	}

	name := strings.Map(maskRune, strings.ToLower(key))
	if strings.Trim(name, ".") == "" {
		name = strings.Repeat(string(maskChar), len(name))
	}
	if len(name) > maxNameBytes {
		name = shortenName(name)
	}
	return name
}

// KeyPath 返回 key 在 baseDir 中对应的文件路径，始终位于 baseDir 的直接子级。
func KeyPath(baseDir, key string) string {
	return filepath.Join(baseDir, EncodeKey(key))
}

func maskRune(r rune) rune {
	switch {
	case r < 0x20, r == 0x7f:
		return maskChar
	case strings.ContainsRune(`\/:*?"<>|`, r):
		return maskChar
	case r == utf8.RuneError:
		return maskChar
	}
	return r
}

func shortenName(name string) string {
	sum := sha256.Sum256([]byte(name))
	cut := truncatedNameBytes
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut] + "~" + hex.EncodeToString(sum[:])[:16]
}
