package proxy

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/webrip/webrip/internal/logging"
	"github.com/webrip/webrip/internal/server"
)

// ErrStoreHandlerExists indicates a handler has already been registered for the store.
var ErrStoreHandlerExists = errors.New("store handler already registered")

// Forwarder 根据 StoreRoute 的名称选择专属 ProxyHandler，默认回退到构造时注入的 handler，
// 并把 handler 内部的 panic 转换为 500 响应。
type Forwarder struct {
	defaultHandler server.ProxyHandler
	logger         *logrus.Logger
	handlers       sync.Map
}

// NewForwarder 创建 Forwarder；defaultHandler 为空时未注册的 Store 返回 500。
func NewForwarder(defaultHandler server.ProxyHandler, logger *logrus.Logger) *Forwarder {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Forwarder{
		defaultHandler: defaultHandler,
		logger:         logger,
	}
}

// Register 为指定 Store 绑定专属 handler，同名重复注册返回 ErrStoreHandlerExists。
func (f *Forwarder) Register(store string, handler server.ProxyHandler) error {
	normalized := normalizeStoreName(store)
	if normalized == "" {
		return errors.New("store name required")
	}
	if handler == nil {
		return errors.New("store handler required")
	}
	if _, loaded := f.handlers.LoadOrStore(normalized, handler); loaded {
		return fmt.Errorf("%w: %s", ErrStoreHandlerExists, normalized)
	}
	return nil
}

// Handle 实现 server.ProxyHandler。
func (f *Forwarder) Handle(c fiber.Ctx, route *server.StoreRoute, path string) error {
	requestID := server.RequestID(c)
	handler := f.lookup(route)
	if handler == nil {
		return f.respondMissingHandler(c, route, requestID)
	}
	return f.invokeHandler(c, route, path, handler, requestID)
}

func (f *Forwarder) respondMissingHandler(c fiber.Ctx, route *server.StoreRoute, requestID string) error {
	f.logStoreError(route, "store_handler_missing", nil, requestID)
	setRequestIDHeader(c, requestID)
	return c.Status(fiber.StatusInternalServerError).
		JSON(fiber.Map{"error": "store_handler_missing"})
}

func (f *Forwarder) invokeHandler(c fiber.Ctx, route *server.StoreRoute, path string, handler server.ProxyHandler, requestID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = f.respondHandlerPanic(c, route, r, requestID)
		}
	}()
	return handler.Handle(c, route, path)
}

func (f *Forwarder) respondHandlerPanic(c fiber.Ctx, route *server.StoreRoute, recovered interface{}, requestID string) error {
	f.logStoreError(route, "store_handler_panic", fmt.Errorf("panic: %v", recovered), requestID)
	setRequestIDHeader(c, requestID)
	return c.Status(fiber.StatusInternalServerError).
		JSON(fiber.Map{"error": "store_handler_panic"})
}

func setRequestIDHeader(c fiber.Ctx, requestID string) {
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
}

func (f *Forwarder) logStoreError(route *server.StoreRoute, code string, err error, requestID string) {
	fields := logrus.Fields{"store": ""}
	if route != nil {
		fields = logging.StoreFields(route.Config.Name, route.Dir)
	}
	fields["action"] = "proxy"
	fields["error"] = code
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		f.logger.WithFields(fields).Error(err.Error())
		return
	}
	f.logger.WithFields(fields).Error("store handler unavailable")
}

func (f *Forwarder) lookup(route *server.StoreRoute) server.ProxyHandler {
	if route != nil {
		if value, ok := f.handlers.Load(normalizeStoreName(route.Config.Name)); ok {
			if handler, ok := value.(server.ProxyHandler); ok {
				return handler
			}
		}
	}
	return f.defaultHandler
}

func normalizeStoreName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
