package routes

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/webrip/webrip/internal/cache"
	"github.com/webrip/webrip/internal/server"
)

// RegisterStoreRoutes 暴露 /-/stores 诊断接口，供运维查看、预热或清理各 Store 的缓存条目。
func RegisterStoreRoutes(app *fiber.App, registry *server.StoreRegistry) {
	if app == nil || registry == nil {
		return
	}

	app.Get("/-/stores", func(c fiber.Ctx) error {
		routes := registry.List()
		payload := make([]storePayload, 0, len(routes))
		for i := range routes {
			encoded, err := encodeStore(&routes[i])
			if err != nil {
				return writeCacheError(c, err)
			}
			payload = append(payload, encoded)
		}
		return c.JSON(fiber.Map{"stores": payload})
	})

	app.Get("/-/stores/:name/keys", withStore(registry, func(c fiber.Ctx, route *server.StoreRoute) error {
		keys, err := route.Map.Keys()
		if err != nil {
			return writeCacheError(c, err)
		}
		if keys == nil {
			keys = []string{}
		}
		return c.JSON(fiber.Map{"store": route.Config.Name, "keys": keys})
	}))

	app.Get("/-/stores/:name/entry", withEntryKey(registry, func(c fiber.Ctx, route *server.StoreRoute, key string) error {
		value, err := route.Map.Get(key)
		if err != nil {
			return writeCacheError(c, err)
		}
		c.Set("Content-Type", fiber.MIMEOctetStream)
		return c.Send(value)
	}))

	app.Put("/-/stores/:name/entry", withEntryKey(registry, func(c fiber.Ctx, route *server.StoreRoute, key string) error {
		body := append([]byte(nil), c.Body()...)
		if err := route.Map.Set(key, body); err != nil {
			return writeCacheError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}))

	app.Delete("/-/stores/:name/entry", withEntryKey(registry, func(c fiber.Ctx, route *server.StoreRoute, key string) error {
		if err := route.Map.Delete(key); err != nil {
			return writeCacheError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}))

	app.Delete("/-/stores/:name", withStore(registry, func(c fiber.Ctx, route *server.StoreRoute) error {
		if err := route.Map.Clear(); err != nil {
			return writeCacheError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}))
}

type storePayload struct {
	Name       string `json:"name"`
	Upstream   string `json:"upstream"`
	Dir        string `json:"dir"`
	TTLSeconds int64  `json:"ttl_seconds"`
	Size       int    `json:"size"`
}

func encodeStore(route *server.StoreRoute) (storePayload, error) {
	size, err := route.Map.Len()
	if err != nil {
		return storePayload{}, err
	}
	return storePayload{
		Name:       route.Config.Name,
		Upstream:   route.Config.Upstream,
		Dir:        route.Dir,
		TTLSeconds: int64(route.CacheTTL.Seconds()),
		Size:       size,
	}, nil
}

func withStore(registry *server.StoreRegistry, next func(fiber.Ctx, *server.StoreRoute) error) fiber.Handler {
	return func(c fiber.Ctx) error {
		name := strings.ToLower(strings.TrimSpace(c.Params("name")))
		route, ok := registry.Lookup(name)
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "store_not_found"})
		}
		return next(c, route)
	}
}

func withEntryKey(registry *server.StoreRegistry, next func(fiber.Ctx, *server.StoreRoute, string) error) fiber.Handler {
	return withStore(registry, func(c fiber.Ctx, route *server.StoreRoute) error {
		// key 允许为空字符串，对应 @empty 占位文件，因此只检查参数是否出现
		if !c.Request().URI().QueryArgs().Has("key") {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "key_required"})
		}
		return next(c, route, c.Query("key"))
	})
}

// writeCacheError 把缓存错误映射为 JSON 响应。
func writeCacheError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, cache.ErrKeyNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "key_not_found"})
	case errors.Is(err, cache.ErrInvalidKeyKind):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_key"})
	case errors.Is(err, cache.ErrDirectoryRead), errors.Is(err, cache.ErrDirectoryRemove):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "store_unavailable", "detail": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cache_failed", "detail": err.Error()})
	}
}
