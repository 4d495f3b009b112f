package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeClock 提供可手动推进的时钟，使过期判定在测试里完全确定。
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestMemory(t *testing.T, clock *fakeClock, lifetime time.Duration, capacity int) *MemoryCache[string, string] {
	t.Helper()
	c, err := NewMemoryCache[string, string](MemoryOptions{
		Lifetime: lifetime,
		Capacity: capacity,
		Now:      clock.Now,
	})
	if err != nil {
		t.Fatalf("构造内存缓存失败: %v", err)
	}
	return c
}

func TestMemoryValueBeforeAndAfterExpiry(t *testing.T) {
	clock := newFakeClock()
	c := newTestMemory(t, clock, time.Second, 10)

	c.Insert("abc", "session:42")

	clock.Advance(500 * time.Millisecond)
	if got, ok := c.Value("session:42"); !ok || got != "abc" {
		t.Fatalf("未到期的条目应命中, got=%q ok=%v", got, ok)
	}

	clock.Advance(700 * time.Millisecond)
	if _, ok := c.Value("session:42"); ok {
		t.Fatalf("过期条目应按未命中处理")
	}
	if keysContain(c.Keys(), "session:42") {
		t.Fatalf("惰性过期后 Keys 不应再包含该键")
	}
}

func TestMemoryExpiryBoundaryIsInclusive(t *testing.T) {
	clock := newFakeClock()
	c := newTestMemory(t, clock, time.Second, 10)

	c.Insert("v", "k")
	clock.Advance(time.Second)
	if _, ok := c.Value("k"); ok {
		t.Fatalf("now == expiresAt 时应判定过期")
	}
}

func TestMemoryOverwriteResetsExpiry(t *testing.T) {
	clock := newFakeClock()
	c := newTestMemory(t, clock, time.Hour, 10)

	c.Insert("first", "k")
	clock.Advance(50 * time.Minute)
	c.Insert("second", "k")

	// 距第二次写入 30 分钟，首次写入的 TTL 不应使条目提前过期。
	clock.Advance(30 * time.Minute)
	if got, ok := c.Value("k"); !ok || got != "second" {
		t.Fatalf("覆盖写入应重置过期时间, got=%q ok=%v", got, ok)
	}

	clock.Advance(40 * time.Minute)
	if _, ok := c.Value("k"); ok {
		t.Fatalf("第二次写入的 TTL 到期后应未命中")
	}
}

func TestMemoryCapacityEvictionSyncsTracker(t *testing.T) {
	clock := newFakeClock()
	c := newTestMemory(t, clock, time.Hour, 2)

	c.Insert("1", "a")
	c.Insert("2", "b")
	c.Insert("3", "c")

	if keysContain(c.Keys(), "a") {
		t.Fatalf("被容量淘汰的键不应继续出现在 Keys 中")
	}
	if c.Contains("a") {
		t.Fatalf("被容量淘汰的键不应命中")
	}
	if got := c.Len(); got != 2 {
		t.Fatalf("tracker 应只剩 2 个键, got=%d", got)
	}
	for _, key := range []string{"b", "c"} {
		if !c.Contains(key) {
			t.Fatalf("存活键 %q 应命中", key)
		}
	}
}

func TestMemoryTrackerAgreesWithContains(t *testing.T) {
	clock := newFakeClock()
	c := newTestMemory(t, clock, time.Hour, 3)

	c.Insert("1", "a")
	c.Insert("2", "b")
	c.Insert("3", "c")
	c.Remove("b")
	c.Insert("4", "d") // 回填到容量上限

	keys := c.Keys()
	for _, key := range keys {
		if !c.Contains(key) {
			t.Fatalf("Keys 返回的键 %q 应在 Contains 中为 true", key)
		}
	}
	for _, key := range []string{"a", "b", "c", "d"} {
		if c.Contains(key) != keysContain(c.Keys(), key) {
			t.Fatalf("键 %q 在 Keys 与 Contains 间不一致", key)
		}
	}
}

func TestMemoryRemoveIsIdempotent(t *testing.T) {
	clock := newFakeClock()
	c := newTestMemory(t, clock, time.Hour, 10)

	c.Remove("absent")
	c.Insert("v", "k")
	c.Remove("k")
	c.Remove("k")

	if c.Contains("k") {
		t.Fatalf("删除后的键不应命中")
	}
	if got := c.Len(); got != 0 {
		t.Fatalf("重复删除后 tracker 应为空, got=%d", got)
	}
}

func TestMemoryRemoveAll(t *testing.T) {
	clock := newFakeClock()
	c := newTestMemory(t, clock, time.Hour, 10)

	for _, key := range []string{"a", "b", "c"} {
		c.Insert("v", key)
	}
	c.RemoveAll()

	for _, key := range []string{"a", "b", "c"} {
		if _, ok := c.Value(key); ok {
			t.Fatalf("RemoveAll 后键 %q 仍可命中", key)
		}
	}
	if got := len(c.Keys()); got != 0 {
		t.Fatalf("RemoveAll 后 Keys 应为空, got=%d", got)
	}
}

func TestMemoryKeysStalenessWindow(t *testing.T) {
	clock := newFakeClock()
	c := newTestMemory(t, clock, time.Second, 10)

	c.Insert("v", "k")
	clock.Advance(2 * time.Second)

	// 尚未被读取的过期键仍留在 Keys 中——文档化的陈旧窗口。
	if !keysContain(c.Keys(), "k") {
		t.Fatalf("未触发读取前，过期键应仍在 Keys 中")
	}

	c.Value("k")
	if keysContain(c.Keys(), "k") {
		t.Fatalf("读取触发惰性过期后，键应从 Keys 消失")
	}
}

func TestMemoryConcurrentAccess(t *testing.T) {
	clock := newFakeClock()
	c := newTestMemory(t, clock, time.Hour, 16)

	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("key-%d", i%32)
				switch i % 4 {
				case 0, 1:
					c.Insert(fmt.Sprintf("v-%d-%d", worker, i), key)
				case 2:
					c.Value(key)
				case 3:
					c.Remove(key)
				}
			}
		}(worker)
	}
	wg.Wait()

	if got := c.Len(); got > 16 {
		t.Fatalf("tracker 数量不应超过容量上限, got=%d", got)
	}
	for _, key := range c.Keys() {
		c.Value(key)
	}
}

// 覆盖写入与同键的惰性过期读取并发时，写入完成后的键必须可读且出现在
// Keys 中：读取端对过期旧条目的惰性删除既不能误删新条目，其触发的
// tracker 清理也不能吞掉新写入的登记。
func TestMemoryConcurrentOverwriteKeepsKeyVisible(t *testing.T) {
	clock := newFakeClock()
	c := newTestMemory(t, clock, time.Second, 10)

	const key = "session:races"
	for round := 0; round < 300; round++ {
		c.Insert("stale", key)
		clock.Advance(time.Second)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Value(key)
		}()
		go func() {
			defer wg.Done()
			c.Insert("fresh", key)
		}()
		wg.Wait()

		got, ok := c.Value(key)
		if !ok || got != "fresh" {
			t.Fatalf("第 %d 轮：覆盖后的条目应命中, got=%q ok=%v", round, got, ok)
		}
		if !keysContain(c.Keys(), key) {
			t.Fatalf("第 %d 轮：存活条目未出现在 Keys 中", round)
		}
		c.Remove(key)
	}
}

func keysContain(keys []string, want string) bool {
	for _, k := range keys {
		if k == want {
			return true
		}
	}
	return false
}
