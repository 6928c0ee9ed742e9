package cache

import "time"

// IsExpired 判断条目是否过期：now-lastModified >= ttl 即视为过期，边界落在过期一侧。
// ttl 为 0 时任何条目在下一次检查时都已过期。
func IsExpired(lastModified, now time.Time, ttl time.Duration) bool {
	return now.Sub(lastModified) >= ttl
}

// ExpiryPolicy 绑定单个存储实例的 TTL，所有条目共用。
type ExpiryPolicy struct {
	TTL time.Duration
}

// Expired 是 IsExpired 的便捷包装。
func (p ExpiryPolicy) Expired(lastModified, now time.Time) bool {
	return IsExpired(lastModified, now, p.TTL)
}

// ExpiresAt 返回条目开始被视为过期的时间点。
func (p ExpiryPolicy) ExpiresAt(lastModified time.Time) time.Time {
	return lastModified.Add(p.TTL)
}
