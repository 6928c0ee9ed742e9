package proxy

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/webrip/webrip/internal/cache"
	"github.com/webrip/webrip/internal/logging"
	"github.com/webrip/webrip/internal/server"
)

// Handler 负责 orchestrate “缓存命中 → 未命中回源 → 写缓存” 的全流程，
// 对外实现 server.ProxyHandler，内部复用共享 Fetcher 与各 Store 的 FetchCache。
type Handler struct {
	fetcher cache.Fetcher
	logger  *logrus.Logger
	locks   *keyLocks
}

// NewHandler constructs a proxy handler with the shared fetcher and logger.
func NewHandler(fetcher cache.Fetcher, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{
		fetcher: fetcher,
		logger:  logger,
		locks:   newKeyLocks(),
	}
}

// Handle 以上游 URL 作为 key 读取缓存，未命中时回源并写入，任何阶段出错都会输出结构化日志。
func (h *Handler) Handle(c fiber.Ctx, route *server.StoreRoute, path string) error {
	started := time.Now()
	requestID := server.RequestID(c)

	method := c.Method()
	if method != fiber.MethodGet && method != fiber.MethodHead {
		c.Set("Allow", "GET, HEAD")
		return h.writeError(c, fiber.StatusMethodNotAllowed, "method_not_allowed")
	}

	key := route.UpstreamFor(path, string(c.Request().URI().QueryString()))

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	unlock := h.locks.lock(route.Config.Name + "\x00" + key)
	fetched := false
	body, err := route.Cache.GetOrFetch(ctx, key, cache.FetchFunc(func(ctx context.Context, k string) ([]byte, error) {
		fetched = true
		if h.fetcher == nil {
			return nil, errors.New("no fetcher configured")
		}
		return h.fetcher.Fetch(ctx, k)
	}))
	unlock()

	cacheHit := !fetched
	if err != nil {
		h.logResult(route, key, requestID, cacheHit, started, err)
		c.Set("X-Webrip-Upstream", key)
		return h.writeError(c, statusForError(err), codeForError(err))
	}

	c.Set("X-Webrip-Upstream", key)
	c.Set("X-Webrip-Cache-Hit", strconv.FormatBool(cacheHit))
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	c.Set("Content-Type", http.DetectContentType(body))

	h.logResult(route, key, requestID, cacheHit, started, nil)

	if method == fiber.MethodHead {
		c.Response().SkipBody = true
	}
	return c.Status(fiber.StatusOK).Send(body)
}

// statusForError 把缓存错误映射到 HTTP 状态码。
func statusForError(err error) int {
	switch {
	case errors.Is(err, cache.ErrFetch):
		return fiber.StatusBadGateway
	case errors.Is(err, cache.ErrInvalidKeyKind):
		return fiber.StatusBadRequest
	case errors.Is(err, cache.ErrKeyNotFound):
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

func codeForError(err error) string {
	switch {
	case errors.Is(err, ErrEntryTooLarge):
		return "entry_too_large"
	case errors.Is(err, cache.ErrFetch):
		return "upstream_failed"
	case errors.Is(err, cache.ErrInvalidKeyKind):
		return "invalid_key"
	case errors.Is(err, cache.ErrKeyNotFound):
		return "not_found"
	default:
		return "cache_failed"
	}
}

func (h *Handler) writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) logResult(
	route *server.StoreRoute,
	key string,
	requestID string,
	cacheHit bool,
	started time.Time,
	err error,
) {
	fields := logging.RequestFields(route.Config.Name, key, cacheHit)
	fields["action"] = "proxy"
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		fields["upstream_status"] = statusErr.StatusCode
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("proxy_failed")
		return
	}
	h.logger.WithFields(fields).Info("proxy_complete")
}
