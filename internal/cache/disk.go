package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultDiskLifetime 是磁盘条目的默认存活时长（7 天）。
const DefaultDiskLifetime = 7 * 24 * time.Hour

// entrySuffix 标记缓存条目文件；RemoveAll 与清理任务只触碰带此后缀的
// 常规文件，目录中的其它内容不受缓存 API 影响。
const entrySuffix = ".cache"

// DiskOptions 控制磁盘缓存的构造参数。
type DiskOptions struct {
	// Name 是缓存实例名，用作 BasePath 下的子目录名。
	Name string
	// BasePath 是宿主环境提供的缓存根目录。
	BasePath string
	// Lifetime 是条目的默认存活时长，<=0 时取 DefaultDiskLifetime。
	Lifetime time.Duration
	// Codec 覆盖值编解码实现，默认 JSONCodec。
	Codec Codec
	// Now 覆盖时钟来源，默认 time.Now。
	Now func() time.Time
}

// DiskCache 是按键分文件持久化、可跨进程重启存活的 TTL 缓存。
// 一把读写锁实现目录级的读者/写者纪律：Value/Size/EntryCount 可并发，
// Insert/Remove/RemoveAll/CleanExpired 独占。实例在生命周期内独占
// 自己的缓存目录，不提供跨进程加锁。
type DiskCache[K comparable, V any] struct {
	dir      string
	lifetime time.Duration
	codec    Codec
	now      func() time.Time

	mu sync.RWMutex
}

// NewDiskCache 解析并创建 <BasePath>/<Name> 缓存目录。目录无法建立时
// 构造失败并包裹 ErrStorageUnavailable；目录本身跨进程重启保留。
func NewDiskCache[K comparable, V any](opts DiskOptions) (*DiskCache[K, V], error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("%w: cache name required", ErrStorageUnavailable)
	}
	if opts.BasePath == "" {
		return nil, fmt.Errorf("%w: base path required", ErrStorageUnavailable)
	}
	if opts.Lifetime <= 0 {
		opts.Lifetime = DefaultDiskLifetime
	}
	if opts.Codec == nil {
		opts.Codec = JSONCodec{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	abs, err := filepath.Abs(filepath.Join(opts.BasePath, opts.Name))
	if err != nil {
		return nil, fmt.Errorf("%w: resolve cache directory: %v", ErrStorageUnavailable, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create cache directory: %v", ErrStorageUnavailable, err)
	}

	return &DiskCache[K, V]{
		dir:      abs,
		lifetime: opts.Lifetime,
		codec:    opts.Codec,
		now:      opts.Now,
	}, nil
}

// Dir 返回本实例独占的缓存目录绝对路径。
func (c *DiskCache[K, V]) Dir() string {
	return c.dir
}

// Insert 序列化条目并以临时文件 + rename 原子替换既有文件，
// 写入全程持有独占锁。
func (c *DiskCache[K, V]) Insert(value V, key K) error {
	path, err := c.entryPath(key)
	if err != nil {
		return err
	}

	raw, err := c.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}
	envelope, err := json.Marshal(diskEntry{
		ExpiresAt: c.now().Add(c.lifetime).UTC(),
		Value:     raw,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tmp, err := os.CreateTemp(c.dir, ".entry-*")
	if err != nil {
		return fmt.Errorf("create temp entry: %w", err)
	}
	tmpName := tmp.Name()

	_, writeErr := tmp.Write(envelope)
	closeErr := tmp.Close()
	if writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write entry: %w", writeErr)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publish entry: %w", err)
	}
	return nil
}

// Value 以共享锁读取条目。文件不存在按未命中处理而非错误；信封或值
// 无法解码时包裹 ErrDecode 向调用方传播；已过期的条目删除后按未命中
// 返回（惰性过期，与内存层同一策略）。
func (c *DiskCache[K, V]) Value(key K) (V, bool, error) {
	var zero V

	path, err := c.entryPath(key)
	if err != nil {
		return zero, false, err
	}

	c.mu.RLock()
	raw, err := os.ReadFile(path)
	c.mu.RUnlock()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return zero, false, nil
		}
		return zero, false, fmt.Errorf("read entry: %w", err)
	}

	var envelope diskEntry
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return zero, false, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if envelope.expired(c.now()) {
		// 升级为独占锁后重读确认：共享锁释放到独占锁取得之间，
		// 条目可能已被覆盖写入，不能直接删除。
		c.mu.Lock()
		c.removeIfExpiredLocked(path)
		c.mu.Unlock()
		return zero, false, nil
	}

	var value V
	if err := c.codec.Decode(envelope.Value, &value); err != nil {
		return zero, false, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return value, true, nil
}

// Remove 删除条目文件，键不存在时为空操作。
func (c *DiskCache[K, V]) Remove(key K) error {
	path, err := c.entryPath(key)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove entry: %w", err)
	}
	return nil
}

// RemoveAll 枚举缓存目录并删除所有条目文件。
func (c *DiskCache[K, V]) RemoveAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("enumerate cache directory: %w", err)
	}

	for _, entry := range entries {
		if !isEntryFile(entry) {
			continue
		}
		path := filepath.Join(c.dir, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove entry: %w", err)
		}
	}
	return nil
}

// Size 返回所有条目文件的磁盘字节总量，供诊断与配额决策使用，
// 不建议放在热路径。
func (c *DiskCache[K, V]) Size() (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, fmt.Errorf("enumerate cache directory: %w", err)
	}

	var total int64
	for _, entry := range entries {
		if !isEntryFile(entry) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return 0, fmt.Errorf("stat entry: %w", err)
		}
		total += info.Size()
	}
	return total, nil
}

// EntryCount 返回当前条目文件数量，含已过期但尚未清理的条目。
func (c *DiskCache[K, V]) EntryCount() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, fmt.Errorf("enumerate cache directory: %w", err)
	}

	count := 0
	for _, entry := range entries {
		if isEntryFile(entry) {
			count++
		}
	}
	return count, nil
}

// CleanExpired 是两层中唯一的主动清理：磁盘条目不像内存条目那样高频被读，
// 缺少它会无限堆积。逐个解码信封并删除已过期条目，返回删除数量；
// 单个文件读取或解码失败只会被跳过，不中断整轮清理。调度（定时器、
// 退后台等触发时机）归调用方所有。
func (c *DiskCache[K, V]) CleanExpired() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, fmt.Errorf("enumerate cache directory: %w", err)
	}

	now := c.now()
	removed := 0
	for _, entry := range entries {
		if !isEntryFile(entry) {
			continue
		}
		path := filepath.Join(c.dir, entry.Name())

		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var envelope diskEntry
		if err := json.Unmarshal(raw, &envelope); err != nil {
			// 损坏文件留在原地供排查；读取路径会持续报 ErrDecode。
			continue
		}
		if !envelope.expired(now) {
			continue
		}
		if err := os.Remove(path); err == nil {
			removed++
		}
	}
	return removed, nil
}

// removeIfExpiredLocked 在独占锁内重读并确认过期后删除条目文件。
func (c *DiskCache[K, V]) removeIfExpiredLocked(path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var envelope diskEntry
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return
	}
	if envelope.expired(c.now()) {
		_ = os.Remove(path)
	}
}

// entryPath 把键映射到条目文件的绝对路径。
func (c *DiskCache[K, V]) entryPath(key K) (string, error) {
	name, err := c.codec.EncodeKey(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return filepath.Join(c.dir, name+entrySuffix), nil
}

func isEntryFile(entry os.DirEntry) bool {
	return !entry.IsDir() && strings.HasSuffix(entry.Name(), entrySuffix)
}
