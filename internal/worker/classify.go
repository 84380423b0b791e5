package worker

import (
	"net/url"
	"path"
	"strings"

	"github.com/shellcache/shellcache/internal/cache"
)

// ResourceClass 是分类规则的输出，每个请求恰好落入一类。
type ResourceClass string

const (
	ResourceCritical ResourceClass = "critical"
	ResourceStatic   ResourceClass = "static-asset"
	ResourceExternal ResourceClass = "external"
	ResourceDynamic  ResourceClass = "dynamic"
)

// StrategyKind 标识一种检索策略。
type StrategyKind string

const (
	StrategyCacheFirst   StrategyKind = "cache-first"
	StrategySWR          StrategyKind = "stale-while-revalidate"
	StrategyNetworkFirst StrategyKind = "network-first"
)

// StrategyFor 是分类到策略的固定映射表，运行期不可配置。
func StrategyFor(class ResourceClass) StrategyKind {
	switch class {
	case ResourceCritical:
		return StrategyCacheFirst
	case ResourceStatic:
		return StrategySWR
	default:
		return StrategyNetworkFirst
	}
}

// PartitionClassFor 返回分类对应的缓存分区类别。
// external 与 dynamic 共用 dynamic 分区。
func PartitionClassFor(class ResourceClass) cache.Class {
	switch class {
	case ResourceCritical:
		return cache.ClassCritical
	case ResourceStatic:
		return cache.ClassStatic
	default:
		return cache.ClassDynamic
	}
}

// Classify 按固定顺序应用分类规则：
//
//	(a) 路径命中 critical 白名单 → critical
//	(b) destination 为 style/script/image → static-asset
//	(c) 请求 Host 与页面 Origin 不同 → external
//	(d) 其余 → dynamic
//
// 纯函数：相同输入必然得到相同分类。
func Classify(pageOrigin string, criticalPaths map[string]struct{}, u *url.URL, dest string) ResourceClass {
	if u == nil {
		return ResourceDynamic
	}

	if _, ok := criticalPaths[cleanPath(u.Path)]; ok {
		return ResourceCritical
	}

	switch dest {
	case "style", "script", "image":
		return ResourceStatic
	}

	if !sameOrigin(u.Host, pageOrigin) {
		return ResourceExternal
	}

	return ResourceDynamic
}

// CriticalPathSet 把配置中的白名单转为规范化查询集合。
func CriticalPathSet(paths []string) map[string]struct{} {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[cleanPath(p)] = struct{}{}
	}
	return set
}

// Destination 解析请求的资源目的类型：优先使用浏览器声明的
// Sec-Fetch-Dest，缺失时按扩展名推断。
func Destination(secFetchDest, requestPath string) string {
	switch secFetchDest {
	case "style", "script", "image", "font", "document":
		return secFetchDest
	}

	ext := strings.ToLower(path.Ext(cleanPath(requestPath)))
	switch ext {
	case ".css":
		return "style"
	case ".js", ".mjs":
		return "script"
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg", ".ico", ".avif":
		return "image"
	case ".woff", ".woff2", ".ttf", ".otf":
		return "font"
	}
	return ""
}

func cleanPath(raw string) string {
	if raw == "" {
		return "/"
	}
	return path.Clean("/" + raw)
}
