package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// FetchFields 提供资源分类/策略/命中状态字段，供拦截请求日志复用。
func FetchFields(class, strategy, url string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"class":     class,
		"strategy":  strategy,
		"url":       url,
		"cache_hit": cacheHit,
	}
}

// LifecycleFields 输出 Worker 生命周期事件的公共字段。
func LifecycleFields(event, cacheVersion string) logrus.Fields {
	return logrus.Fields{
		"action":        event,
		"cache_version": cacheVersion,
	}
}
