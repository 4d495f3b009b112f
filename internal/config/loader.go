package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	if err := rejectCacheLevelStorage(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	for i := range cfg.Caches {
		applyCacheDefaults(&cfg.Caches[i])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5250)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("SweepInterval", "1h")
	v.SetDefault("MemoryTTL", "12h")
	v.SetDefault("DiskTTL", "168h")
	v.SetDefault("MemoryCapacity", 50)
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5250
	}
	if g.MemoryTTL.DurationValue() == 0 {
		g.MemoryTTL = Duration(12 * time.Hour)
	}
	if g.DiskTTL.DurationValue() == 0 {
		g.DiskTTL = Duration(7 * 24 * time.Hour)
	}
	if g.MemoryCapacity == 0 {
		g.MemoryCapacity = 50
	}
}

func applyCacheDefaults(cc *CacheConfig) {
	if cc.TTL.DurationValue() < 0 {
		cc.TTL = Duration(0)
	}
	tier := strings.ToLower(strings.TrimSpace(cc.Tier))
	if tier == "" {
		tier = TierMemory
	}
	cc.Tier = tier
	cc.Name = strings.TrimSpace(cc.Name)
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}

// rejectCacheLevelStorage 拒绝按缓存覆盖存储目录：目录由磁盘实例名
// 统一在全局 StoragePath 下命名空间化，按实例覆盖会破坏独占所有权。
func rejectCacheLevelStorage(v *viper.Viper) error {
	raw := v.Get("Cache")
	caches, ok := raw.([]interface{})
	if !ok {
		return nil
	}

	for idx, entry := range caches {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		// viper 会把嵌套表的键统一转成小写，这里按小写匹配。
		hasStorage := false
		name := fmt.Sprintf("#%d", idx)
		for key, value := range m {
			switch strings.ToLower(key) {
			case "storagepath":
				hasStorage = true
			case "name":
				if rawName, ok := value.(string); ok && rawName != "" {
					name = rawName
				}
			}
		}
		if hasStorage {
			return newFieldError(cacheField(name, "StoragePath"), "不支持按缓存覆盖，请使用全局 StoragePath")
		}
	}

	return nil
}
