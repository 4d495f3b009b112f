package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// 内存缓存默认参数：12 小时存活、50 条容量上限。
const (
	DefaultMemoryLifetime = 12 * time.Hour
	DefaultMemoryCapacity = 50
)

// memoryEntry 保存值与绝对过期时间。条目归底层存储独占所有，
// 读取返回值的副本，不向外暴露引用。
type memoryEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// MemoryOptions 控制内存缓存的构造参数，零值字段回退到默认值。
type MemoryOptions struct {
	// Lifetime 是条目的默认存活时长，<=0 时取 DefaultMemoryLifetime。
	Lifetime time.Duration
	// Capacity 是条目数上限，<=0 时取 DefaultMemoryCapacity。
	Capacity int
	// Now 覆盖时钟来源，测试可注入固定时间，默认 time.Now。
	Now func() time.Time
}

// MemoryCache 是容量受限、按 TTL 过期的进程内缓存。所有操作均不失败：
// 这是一层纯建议性缓存，未命中永远是可接受的结果。
//
// tracker（keys）镜像当前存活的键集合，使 Keys/Contains 不需要扫描底层
// LRU。底层存储的每一次变更（写入、删除、清空、惰性过期删除）都在持有
// c.mu 的情况下发起，淘汰回调因此总在 c.mu 保护下同步触发，tracker 与
// 存储的变更由同一把锁串行化。
type MemoryCache[K comparable, V any] struct {
	store    *lru.Cache[K, memoryEntry[V]]
	lifetime time.Duration
	now      func() time.Time

	// mu 串行化全部存储变更与 tracker 读写；无锁读取仅限 store.Get。
	mu   sync.Mutex
	keys map[K]struct{}
}

// NewMemoryCache 构造内存缓存。底层使用 hashicorp golang-lru，容量淘汰时
// 通过回调同步 tracker，保证被挤出的键不会在 Keys/Contains 中残留。
func NewMemoryCache[K comparable, V any](opts MemoryOptions) (*MemoryCache[K, V], error) {
	if opts.Lifetime <= 0 {
		opts.Lifetime = DefaultMemoryLifetime
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultMemoryCapacity
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &MemoryCache[K, V]{
		lifetime: opts.Lifetime,
		now:      opts.Now,
		keys:     make(map[K]struct{}),
	}

	store, err := lru.NewWithEvict(opts.Capacity, func(key K, _ memoryEntry[V]) {
		// 回调只会在持有 c.mu 的存储变更中同步触发，这里不能再加锁。
		delete(c.keys, key)
	})
	if err != nil {
		return nil, err
	}
	c.store = store
	return c, nil
}

// Insert 写入或覆盖条目并刷新过期时间。容量淘汰由底层存储自行处理，
// 不向调用方报告；写入与 tracker 登记在同一临界区内完成，并发读取
// 触发的惰性清理不可能吞掉刚写入的登记。
func (c *MemoryCache[K, V]) Insert(value V, key K) {
	entry := memoryEntry[V]{value: value, expiresAt: c.now().Add(c.lifetime)}

	c.mu.Lock()
	c.store.Add(key, entry)
	c.keys[key] = struct{}{}
	c.mu.Unlock()
}

// Value 返回未过期的条目值。命中已过期条目时顺手删除（惰性过期），
// 并按未命中处理；过期条目从不被后台定时器主动清理。
func (c *MemoryCache[K, V]) Value(key K) (V, bool) {
	entry, ok := c.store.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	if !c.now().Before(entry.expiresAt) {
		c.removeIfExpired(key)
		var zero V
		return zero, false
	}
	return entry.value, true
}

// removeIfExpired 取得独占锁后重读确认仍过期才删除：无锁 Get 与删除
// 之间条目可能已被覆盖写入，不能不加确认地删除新条目。
func (c *MemoryCache[K, V]) removeIfExpired(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.store.Peek(key)
	if ok && !c.now().Before(entry.expiresAt) {
		c.store.Remove(key)
	}
}

// Contains 与 Value 保持一致：仅当此刻读取会命中时返回 true，
// 因此同样会触发惰性过期。
func (c *MemoryCache[K, V]) Contains(key K) bool {
	_, ok := c.Value(key)
	return ok
}

// Remove 删除条目，键不存在时为空操作。tracker 的清理主要由淘汰回调完成，
// 这里再兜底删除一次，覆盖键只存在于 tracker 的情形。
func (c *MemoryCache[K, V]) Remove(key K) {
	c.mu.Lock()
	c.store.Remove(key)
	delete(c.keys, key)
	c.mu.Unlock()
}

// RemoveAll 清空存储与 tracker。
func (c *MemoryCache[K, V]) RemoveAll() {
	c.mu.Lock()
	c.store.Purge()
	c.keys = make(map[K]struct{})
	c.mu.Unlock()
}

// Keys 返回 tracker 当前认定存活的键。TTL 已过但尚未被读取或淘汰的键
// 仍可能出现在结果中，直到下一次访问触发惰性清理。
func (c *MemoryCache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, len(c.keys))
	for k := range c.keys {
		keys = append(keys, k)
	}
	return keys
}

// Len 返回 tracker 中的键数量，供诊断输出使用，同样受陈旧窗口影响。
func (c *MemoryCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.keys)
}
