package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供缓存名/层级/操作与命中状态字段，供 HTTP 请求日志复用。
func RequestFields(cacheName, tier, op string, hit bool) logrus.Fields {
	return logrus.Fields{
		"cache":     cacheName,
		"tier":      tier,
		"op":        op,
		"cache_hit": hit,
	}
}

// SweepFields 提供定期清理结果字段，供调度器与手动触发接口复用。
func SweepFields(cacheName string, removed int) logrus.Fields {
	return logrus.Fields{
		"action":  "sweep",
		"cache":   cacheName,
		"removed": removed,
	}
}
