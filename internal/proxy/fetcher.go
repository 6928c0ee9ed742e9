package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"github.com/webrip/webrip/internal/config"
)

// ErrEntryTooLarge 表示上游响应体超过 MaxEntrySize，不会写入缓存。
var ErrEntryTooLarge = errors.New("upstream body exceeds max entry size")

// StatusError 描述上游返回的非 2xx 状态码。
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s responded %d", e.URL, e.StatusCode)
}

// Temporary 报告该状态是否值得重试：5xx 与 429。
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// FetcherOptions 控制回源重试与响应体大小限制。
type FetcherOptions struct {
	// MaxRetries 为首次请求之外的重试次数。
	MaxRetries int
	// InitialBackoff 为第一次重试前的等待时间，之后指数增长。
	InitialBackoff time.Duration
	// MaxBodySize 为 0 时不限制。
	MaxBodySize int64
	Logger      logrus.FieldLogger
}

// HTTPFetcher 把缓存 key 当作 URL 发起 GET 请求，实现 cache.Fetcher。
type HTTPFetcher struct {
	client *http.Client
	opts   FetcherOptions
}

// NewHTTPFetcher 使用共享 client 构造 Fetcher。
func NewHTTPFetcher(client *http.Client, opts FetcherOptions) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &HTTPFetcher{client: client, opts: opts}
}

// NewFetcherFromConfig 根据全局配置构造 Fetcher。
func NewFetcherFromConfig(client *http.Client, cfg *config.Config, logger logrus.FieldLogger) *HTTPFetcher {
	return NewHTTPFetcher(client, FetcherOptions{
		MaxRetries:     cfg.Global.MaxRetries,
		InitialBackoff: cfg.Global.InitialBackoff.DurationValue(),
		MaxBodySize:    cfg.Global.MaxEntrySize,
		Logger:         logger,
	})
}

// Fetch 执行 GET，5xx/429 与网络错误按指数退避重试，其余 4xx 立即失败。
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	b := backoff.NewExponentialBackOff()
	if f.opts.InitialBackoff > 0 {
		b.InitialInterval = f.opts.InitialBackoff
	}

	attempt := 0
	operation := func() ([]byte, error) {
		attempt++
		body, err := f.fetchOnce(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Temporary() {
			return nil, backoff.Permanent(err)
		}
		if errors.Is(err, ErrEntryTooLarge) || ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	notify := func(err error, wait time.Duration) {
		if f.opts.Logger == nil {
			return
		}
		f.opts.Logger.WithFields(logrus.Fields{
			"action":  "fetch_retry",
			"url":     rawURL,
			"attempt": attempt,
			"wait_ms": wait.Milliseconds(),
		}).WithError(err).Warn("upstream fetch failed, retrying")
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(f.opts.MaxRetries+1)),
		backoff.WithNotify(notify),
	)
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	limit := f.opts.MaxBodySize
	if limit > 0 && resp.ContentLength > limit {
		return nil, ErrEntryTooLarge
	}

	reader := io.Reader(resp.Body)
	if limit > 0 {
		reader = io.LimitReader(resp.Body, limit+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	if limit > 0 && int64(len(body)) > limit {
		return nil, ErrEntryTooLarge
	}
	return body, nil
}
