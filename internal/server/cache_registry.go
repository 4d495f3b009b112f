package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cachetier/cachetier/internal/cache"
	"github.com/cachetier/cachetier/internal/config"
)

// ErrTierUnsupported 表示当前操作不适用于该缓存的层级，
// 例如对磁盘实例枚举键，或对内存实例统计磁盘占用。
var ErrTierUnsupported = errors.New("operation not supported by cache tier")

// CacheHandle 将单个命名缓存实例与派生属性（层级、生效 TTL、容量）聚合在
// 一起，供路由/调度层直接复用，避免重复读取配置。两个层级中恰有一个非 nil。
type CacheHandle struct {
	Name     string
	Tier     string
	TTL      time.Duration
	Capacity int

	memory *cache.MemoryCache[string, []byte]
	disk   *cache.DiskCache[string, []byte]
}

// CacheRegistry 提供名称到 CacheHandle 的查询能力，所有实例共享同一份全局配置。
type CacheRegistry struct {
	handles map[string]*CacheHandle
	ordered []*CacheHandle
}

// NewCacheRegistry 根据配置构建全部缓存实例。调用方应在启动阶段创建一次并复用；
// 任何一个磁盘实例的目录无法建立都会使整体构建失败。
func NewCacheRegistry(cfg *config.Config) (*CacheRegistry, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	registry := &CacheRegistry{
		handles: make(map[string]*CacheHandle, len(cfg.Caches)),
	}

	for _, cc := range cfg.Caches {
		normalized := normalizeCacheName(cc.Name)
		if normalized == "" {
			return nil, fmt.Errorf("invalid name for cache %q", cc.Name)
		}
		if _, exists := registry.handles[normalized]; exists {
			return nil, fmt.Errorf("duplicate cache name detected for %s", normalized)
		}

		handle, err := buildCacheHandle(cfg, cc)
		if err != nil {
			return nil, err
		}

		registry.handles[normalized] = handle
		registry.ordered = append(registry.ordered, handle)
	}

	return registry, nil
}

// Lookup 根据缓存名查找 CacheHandle，名称不区分大小写。
func (r *CacheRegistry) Lookup(name string) (*CacheHandle, bool) {
	if r == nil {
		return nil, false
	}

	normalized := normalizeCacheName(name)
	if normalized == "" {
		return nil, false
	}

	handle, ok := r.handles[normalized]
	return handle, ok
}

// List 返回当前注册的 CacheHandle 列表（按配置定义的顺序），用于诊断输出。
func (r *CacheRegistry) List() []*CacheHandle {
	if r == nil || len(r.ordered) == 0 {
		return nil
	}
	return append([]*CacheHandle(nil), r.ordered...)
}

// DiskHandles 返回全部磁盘层实例，供定期清理调度器使用。
func (r *CacheRegistry) DiskHandles() []*CacheHandle {
	if r == nil {
		return nil
	}
	var result []*CacheHandle
	for _, handle := range r.ordered {
		if handle.Tier == config.TierDisk {
			result = append(result, handle)
		}
	}
	return result
}

func buildCacheHandle(cfg *config.Config, cc config.CacheConfig) (*CacheHandle, error) {
	handle := &CacheHandle{
		Name: normalizeCacheName(cc.Name),
		Tier: cc.Tier,
		TTL:  cfg.EffectiveTTL(cc),
	}

	switch cc.Tier {
	case config.TierMemory:
		handle.Capacity = cfg.EffectiveCapacity(cc)
		memory, err := cache.NewMemoryCache[string, []byte](cache.MemoryOptions{
			Lifetime: handle.TTL,
			Capacity: handle.Capacity,
		})
		if err != nil {
			return nil, fmt.Errorf("cache %s: %w", handle.Name, err)
		}
		handle.memory = memory
	case config.TierDisk:
		disk, err := cache.NewDiskCache[string, []byte](cache.DiskOptions{
			Name:     handle.Name,
			BasePath: cfg.Global.StoragePath,
			Lifetime: handle.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("cache %s: %w", handle.Name, err)
		}
		handle.disk = disk
	default:
		return nil, fmt.Errorf("cache %s: unsupported tier %q", handle.Name, cc.Tier)
	}

	return handle, nil
}

// Value 读取条目；两个层级统一为 (值, 是否命中, 错误) 语义，
// 内存层的读取不会失败。
func (h *CacheHandle) Value(key string) ([]byte, bool, error) {
	if h.memory != nil {
		value, ok := h.memory.Value(key)
		return value, ok, nil
	}
	return h.disk.Value(key)
}

// Insert 写入或覆盖条目。
func (h *CacheHandle) Insert(value []byte, key string) error {
	if h.memory != nil {
		h.memory.Insert(value, key)
		return nil
	}
	return h.disk.Insert(value, key)
}

// Remove 删除条目，键不存在时为空操作。
func (h *CacheHandle) Remove(key string) error {
	if h.memory != nil {
		h.memory.Remove(key)
		return nil
	}
	return h.disk.Remove(key)
}

// RemoveAll 清空整个实例。
func (h *CacheHandle) RemoveAll() error {
	if h.memory != nil {
		h.memory.RemoveAll()
		return nil
	}
	return h.disk.RemoveAll()
}

// Keys 枚举内存实例当前存活的键；磁盘层不支持键枚举。
func (h *CacheHandle) Keys() ([]string, error) {
	if h.memory == nil {
		return nil, ErrTierUnsupported
	}
	return h.memory.Keys(), nil
}

// Size 返回磁盘实例的条目字节总量；内存层不提供字节统计。
func (h *CacheHandle) Size() (int64, error) {
	if h.disk == nil {
		return 0, ErrTierUnsupported
	}
	return h.disk.Size()
}

// Sweep 触发磁盘实例的过期条目清理，返回删除数量。
func (h *CacheHandle) Sweep() (int, error) {
	if h.disk == nil {
		return 0, ErrTierUnsupported
	}
	return h.disk.CleanExpired()
}

// EntryCount 返回当前条目数量，含尚未被惰性清理的过期条目。
func (h *CacheHandle) EntryCount() (int, error) {
	if h.memory != nil {
		return h.memory.Len(), nil
	}
	return h.disk.EntryCount()
}

func normalizeCacheName(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
