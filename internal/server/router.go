package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ProxyHandler describes the component that serves a request for one store,
// usually by reading through the store's fetch-on-miss cache. It allows
// injecting fake handlers during tests.
type ProxyHandler interface {
	Handle(c fiber.Ctx, route *StoreRoute, path string) error
}

// ProxyHandlerFunc adapts a function to the ProxyHandler interface.
type ProxyHandlerFunc func(fiber.Ctx, *StoreRoute, string) error

// Handle makes ProxyHandlerFunc satisfy ProxyHandler.
func (f ProxyHandlerFunc) Handle(c fiber.Ctx, route *StoreRoute, path string) error {
	return f(c, route, path)
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger     *logrus.Logger
	Registry   *StoreRegistry
	Proxy      ProxyHandler
	ListenPort int
}

const (
	contextKeyRoute     = "_webrip_route"
	contextKeyPath      = "_webrip_path"
	contextKeyRequestID = "_webrip_request_id"
)

// NewApp builds a Fiber application that maps the first path segment to a
// store and hands the remainder to the proxy handler. Paths under /-/ are
// left to the diagnostics routes.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("store registry is required")
	}
	if opts.Proxy == nil {
		return nil, errors.New("proxy handler is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts))

	app.All("/*", func(c fiber.Ctx) error {
		if isDiagnosticsPath(string(c.Request().URI().Path())) {
			return c.Next()
		}
		route, _ := getRouteFromContext(c)
		if route == nil {
			return renderStoreUnmapped(c, opts.Logger, "")
		}
		path, _ := c.Locals(contextKeyPath).(string)
		return opts.Proxy.Handle(c, route, path)
	})

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID，并基于首个路径段查找 StoreRoute。
func requestContextMiddleware(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		rawPath := string(c.Request().URI().Path())
		if isDiagnosticsPath(rawPath) {
			return c.Next()
		}

		name, rest := splitStorePath(rawPath)
		route, ok := opts.Registry.Lookup(name)
		if !ok {
			return renderStoreUnmapped(c, opts.Logger, name)
		}

		c.Locals(contextKeyRoute, route)
		c.Locals(contextKeyPath, rest)
		return c.Next()
	}
}

// splitStorePath 把 /<store>/<rest> 拆成 store 名称与剩余路径（保留前导斜杠）。
func splitStorePath(raw string) (string, string) {
	trimmed := strings.TrimPrefix(raw, "/")
	if idx := strings.IndexByte(trimmed, '/'); idx >= 0 {
		return trimmed[:idx], trimmed[idx:]
	}
	return trimmed, ""
}

func renderStoreUnmapped(c fiber.Ctx, logger *logrus.Logger, store string) error {
	logger.WithFields(logrus.Fields{
		"action": "store_lookup",
		"store":  store,
	}).Warn("store unmapped")

	if store != "" {
		c.Set("X-Webrip-Store", store)
	}

	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "store_unmapped",
	})
}

func getRouteFromContext(c fiber.Ctx) (*StoreRoute, bool) {
	if value := c.Locals(contextKeyRoute); value != nil {
		if route, ok := value.(*StoreRoute); ok {
			return route, true
		}
	}
	return nil, false
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
