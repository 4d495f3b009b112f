package routes

import (
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/cachetier/cachetier/internal/server"
)

// RegisterDiagnosticsRoutes 暴露 /-/caches 诊断接口，供运维查询缓存实例状态。
func RegisterDiagnosticsRoutes(app *fiber.App, registry *server.CacheRegistry) {
	if app == nil || registry == nil {
		return
	}

	app.Get("/-/caches", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"caches": encodeCaches(registry.List()),
		})
	})

	app.Get("/-/caches/:name", func(c fiber.Ctx) error {
		name := strings.ToLower(strings.TrimSpace(c.Params("name")))
		if name == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cache_name_required"})
		}
		handle, ok := registry.Lookup(name)
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "cache_unknown"})
		}
		return c.JSON(encodeCache(handle))
	})
}

type cachePayload struct {
	Name       string `json:"name"`
	Tier       string `json:"tier"`
	TTLSeconds int64  `json:"ttl_seconds"`
	Capacity   int    `json:"capacity,omitempty"`
	Entries    int    `json:"entries"`
	SizeBytes  int64  `json:"size_bytes,omitempty"`
}

func encodeCaches(handles []*server.CacheHandle) []cachePayload {
	if len(handles) == 0 {
		return nil
	}
	sort.Slice(handles, func(i, j int) bool {
		return handles[i].Name < handles[j].Name
	})
	result := make([]cachePayload, 0, len(handles))
	for _, handle := range handles {
		result = append(result, encodeCache(handle))
	}
	return result
}

func encodeCache(handle *server.CacheHandle) cachePayload {
	item := cachePayload{
		Name:       handle.Name,
		Tier:       handle.Tier,
		TTLSeconds: int64(handle.TTL / time.Second),
		Capacity:   handle.Capacity,
	}
	// 诊断接口容忍统计失败（例如磁盘目录被移除），返回已知字段即可
	if count, err := handle.EntryCount(); err == nil {
		item.Entries = count
	}
	if size, err := handle.Size(); err == nil {
		item.SizeBytes = size
	}
	return item
}
