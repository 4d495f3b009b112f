package config

import (
	"errors"
	"strings"
)

var supportedTiers = map[string]struct{}{
	TierMemory: {},
	TierDisk:   {},
}

const supportedTierList = "memory|disk"

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.SweepInterval.DurationValue() < 0 {
		return newFieldError("Global.SweepInterval", "不能为负数，0 表示关闭定期清理")
	}
	if g.MemoryTTL.DurationValue() <= 0 {
		return newFieldError("Global.MemoryTTL", "必须大于 0")
	}
	if g.DiskTTL.DurationValue() <= 0 {
		return newFieldError("Global.DiskTTL", "必须大于 0")
	}
	if g.MemoryCapacity <= 0 {
		return newFieldError("Global.MemoryCapacity", "必须大于 0")
	}

	if len(c.Caches) == 0 {
		return errors.New("至少需要配置一个 Cache")
	}

	seenNames := map[string]struct{}{}
	for i := range c.Caches {
		cc := &c.Caches[i]
		if cc.Name == "" {
			return newFieldError("Cache[].Name", "不能为空")
		}
		if err := validateCacheName(cc.Name); err != nil {
			return newFieldError(cacheField(cc.Name, "Name"), err.Error())
		}
		if _, exists := seenNames[cc.Name]; exists {
			return newFieldError(cacheField(cc.Name, "Name"), "重复")
		}
		seenNames[cc.Name] = struct{}{}

		if _, ok := supportedTiers[cc.Tier]; !ok {
			return newFieldError(cacheField(cc.Name, "Tier"), "仅支持 "+supportedTierList)
		}
		if cc.TTL.DurationValue() < 0 {
			return newFieldError(cacheField(cc.Name, "TTL"), "不能为负数")
		}
		if cc.Capacity < 0 {
			return newFieldError(cacheField(cc.Name, "Capacity"), "不能为负数")
		}
		if cc.IsDisk() && cc.Capacity > 0 {
			return newFieldError(cacheField(cc.Name, "Capacity"), "仅内存层支持容量上限")
		}
	}

	return nil
}

// validateCacheName 约束实例名可直接用作磁盘子目录名。
func validateCacheName(name string) error {
	if strings.ContainsAny(name, `/\`) {
		return errors.New("不允许包含路径分隔符")
	}
	if strings.Contains(name, " ") {
		return errors.New("不允许包含空格")
	}
	if name == "." || name == ".." || strings.Contains(name, "..") {
		return errors.New("不允许使用相对路径片段")
	}
	return nil
}
