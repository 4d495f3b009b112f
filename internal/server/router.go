package server

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cachetier/cachetier/internal/cache"
	"github.com/cachetier/cachetier/internal/logging"
)

// AppOptions controls how the Fiber application should behave on a specific port.
type AppOptions struct {
	Logger     *logrus.Logger
	Registry   *CacheRegistry
	ListenPort int
}

const contextKeyRequestID = "_cachetier_request_id"

// NewApp builds a Fiber application exposing the configured cache instances
// with request-id middleware and structured error handling.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("cache registry is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())

	app.Get("/caches/:name/entries/:key", entryGetHandler(opts))
	app.Put("/caches/:name/entries/:key", entryPutHandler(opts))
	app.Delete("/caches/:name/entries/:key", entryDeleteHandler(opts))
	app.Delete("/caches/:name/entries", entriesDeleteHandler(opts))
	app.Get("/caches/:name/keys", keysHandler(opts))
	app.Get("/caches/:name/size", sizeHandler(opts))
	app.Post("/caches/:name/sweep", sweepHandler(opts))

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID，方便跨日志串联同一次调用。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
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

func entryGetHandler(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		handle, found := resolveCache(c, opts)
		if !found {
			return renderError(c, fiber.StatusNotFound, "cache_unknown")
		}
		key := c.Params("key")

		value, ok, err := handle.Value(key)
		if err != nil {
			return renderEntryFailure(c, opts.Logger, handle, "get", err)
		}

		opts.Logger.WithFields(withRequestID(c, logging.RequestFields(handle.Name, handle.Tier, "get", ok))).Debug("entry lookup")
		if !ok {
			return renderError(c, fiber.StatusNotFound, "entry_not_found")
		}
		return c.Send(value)
	}
}

func entryPutHandler(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		handle, found := resolveCache(c, opts)
		if !found {
			return renderError(c, fiber.StatusNotFound, "cache_unknown")
		}
		key := c.Params("key")

		// Fiber 复用请求缓冲区，写入缓存前必须拷贝。
		body := append([]byte(nil), c.Body()...)
		if err := handle.Insert(body, key); err != nil {
			return renderEntryFailure(c, opts.Logger, handle, "put", err)
		}

		opts.Logger.WithFields(withRequestID(c, logging.RequestFields(handle.Name, handle.Tier, "put", false))).Debug("entry stored")
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func entryDeleteHandler(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		handle, found := resolveCache(c, opts)
		if !found {
			return renderError(c, fiber.StatusNotFound, "cache_unknown")
		}
		key := c.Params("key")

		if err := handle.Remove(key); err != nil {
			return renderEntryFailure(c, opts.Logger, handle, "delete", err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func entriesDeleteHandler(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		handle, found := resolveCache(c, opts)
		if !found {
			return renderError(c, fiber.StatusNotFound, "cache_unknown")
		}

		if err := handle.RemoveAll(); err != nil {
			return renderEntryFailure(c, opts.Logger, handle, "delete_all", err)
		}

		opts.Logger.WithFields(withRequestID(c, logging.RequestFields(handle.Name, handle.Tier, "delete_all", false))).Info("cache cleared")
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func keysHandler(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		handle, found := resolveCache(c, opts)
		if !found {
			return renderError(c, fiber.StatusNotFound, "cache_unknown")
		}

		keys, err := handle.Keys()
		if err != nil {
			if errors.Is(err, ErrTierUnsupported) {
				return renderError(c, fiber.StatusConflict, "tier_unsupported")
			}
			return renderEntryFailure(c, opts.Logger, handle, "keys", err)
		}
		if keys == nil {
			keys = []string{}
		}
		return c.JSON(fiber.Map{"keys": keys})
	}
}

func sizeHandler(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		handle, found := resolveCache(c, opts)
		if !found {
			return renderError(c, fiber.StatusNotFound, "cache_unknown")
		}

		size, err := handle.Size()
		if err != nil {
			if errors.Is(err, ErrTierUnsupported) {
				return renderError(c, fiber.StatusConflict, "tier_unsupported")
			}
			return renderEntryFailure(c, opts.Logger, handle, "size", err)
		}
		return c.JSON(sizePayload(size))
	}
}

func sweepHandler(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		handle, found := resolveCache(c, opts)
		if !found {
			return renderError(c, fiber.StatusNotFound, "cache_unknown")
		}

		removed, err := handle.Sweep()
		if err != nil {
			if errors.Is(err, ErrTierUnsupported) {
				return renderError(c, fiber.StatusConflict, "tier_unsupported")
			}
			return renderEntryFailure(c, opts.Logger, handle, "sweep", err)
		}

		opts.Logger.WithFields(withRequestID(c, logging.SweepFields(handle.Name, removed))).Info("manual sweep")
		return c.JSON(fiber.Map{"removed": removed})
	}
}

// resolveCache 解析路径中的缓存名并查找实例。
func resolveCache(c fiber.Ctx, opts AppOptions) (*CacheHandle, bool) {
	return opts.Registry.Lookup(c.Params("name"))
}

// renderEntryFailure 区分缓存损坏与底层 IO 错误：前者说明条目存在但不可用，
// 调用方需要显式删除；后者是环境问题。
func renderEntryFailure(c fiber.Ctx, logger *logrus.Logger, handle *CacheHandle, op string, err error) error {
	fields := withRequestID(c, logging.RequestFields(handle.Name, handle.Tier, op, false))
	fields["error"] = err.Error()
	logger.WithFields(fields).Error("cache operation failed")

	if errors.Is(err, cache.ErrDecode) {
		return renderError(c, fiber.StatusInternalServerError, "entry_decode_failed")
	}
	if errors.Is(err, cache.ErrEncode) {
		return renderError(c, fiber.StatusBadRequest, "entry_encode_failed")
	}
	return renderError(c, fiber.StatusInternalServerError, "cache_io_failure")
}

func renderError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

// sizePayload 同时返回原始字节数与人类可读格式。
func sizePayload(size int64) fiber.Map {
	return fiber.Map{
		"bytes": size,
		"human": humanize.IBytes(uint64(size)),
	}
}

func withRequestID(c fiber.Ctx, fields logrus.Fields) logrus.Fields {
	if reqID := RequestID(c); reqID != "" {
		fields["request_id"] = reqID
	}
	return fields
}
