package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// 缓存层级取值：内存层容量受限、进程内存活；磁盘层按键分文件持久化。
const (
	TierMemory = "memory"
	TierDisk   = "disk"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"12h" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述全局运行时行为，所有缓存实例共享同一份参数。
type GlobalConfig struct {
	ListenPort     int      `mapstructure:"ListenPort"`
	LogLevel       string   `mapstructure:"LogLevel"`
	LogFilePath    string   `mapstructure:"LogFilePath"`
	LogMaxSize     int      `mapstructure:"LogMaxSize"`
	LogMaxBackups  int      `mapstructure:"LogMaxBackups"`
	LogCompress    bool     `mapstructure:"LogCompress"`
	StoragePath    string   `mapstructure:"StoragePath"`
	SweepInterval  Duration `mapstructure:"SweepInterval"`
	MemoryTTL      Duration `mapstructure:"MemoryTTL"`
	DiskTTL        Duration `mapstructure:"DiskTTL"`
	MemoryCapacity int      `mapstructure:"MemoryCapacity"`
}

// CacheConfig 声明一个命名缓存实例及其层级与覆盖参数。
type CacheConfig struct {
	Name     string   `mapstructure:"Name"`
	Tier     string   `mapstructure:"Tier"`
	TTL      Duration `mapstructure:"TTL"`
	Capacity int      `mapstructure:"Capacity"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig  `mapstructure:",squash"`
	Caches []CacheConfig `mapstructure:"Cache"`
}

// IsMemory 表示当前实例运行在内存层。
func (c CacheConfig) IsMemory() bool {
	return c.Tier == TierMemory
}

// IsDisk 表示当前实例运行在磁盘层。
func (c CacheConfig) IsDisk() bool {
	return c.Tier == TierDisk
}

// EffectiveTTL 返回对特定缓存生效的 TTL，未覆盖时按层级回退到全局值。
func (c *Config) EffectiveTTL(cc CacheConfig) time.Duration {
	if cc.TTL.DurationValue() > 0 {
		return cc.TTL.DurationValue()
	}
	if cc.IsDisk() {
		return c.Global.DiskTTL.DurationValue()
	}
	return c.Global.MemoryTTL.DurationValue()
}

// EffectiveCapacity 返回内存实例生效的容量上限，未覆盖时回退到全局值。
func (c *Config) EffectiveCapacity(cc CacheConfig) int {
	if cc.Capacity > 0 {
		return cc.Capacity
	}
	return c.Global.MemoryCapacity
}

// TierSummary 返回所有缓存实例的层级摘要，例如 sessions:memory，供日志输出。
func TierSummary(caches []CacheConfig) []string {
	if len(caches) == 0 {
		return nil
	}
	result := make([]string, len(caches))
	for i, cc := range caches {
		result[i] = fmt.Sprintf("%s:%s", cc.Name, cc.Tier)
	}
	return result
}
