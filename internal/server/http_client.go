package server

import (
	"net"
	"net/http"
	"time"

	"github.com/webrip/webrip/internal/config"
	"github.com/webrip/webrip/internal/version"
)

// Shared HTTP transport tunings，复用长连接并集中配置超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// NewUpstreamClient 返回共享 http.Client，所有 Store 的回源请求共用。
func NewUpstreamClient(cfg *config.Config) *http.Client {
	timeout := 30 * time.Second
	if cfg != nil && cfg.Global.UpstreamTimeout.DurationValue() > 0 {
		timeout = cfg.Global.UpstreamTimeout.DurationValue()
	}

	return &http.Client{
		Timeout: timeout,
		Transport: userAgentTransport{
			base:  defaultTransport.Clone(),
			agent: version.UserAgent(),
		},
	}
}

// userAgentTransport 为未设置 User-Agent 的请求补上默认值。
type userAgentTransport struct {
	base  http.RoundTripper
	agent string
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	cloned := req.Clone(req.Context())
	cloned.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(cloned)
}
