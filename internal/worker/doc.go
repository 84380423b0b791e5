// Package worker 实现缓存管理器：拦截 GET 请求，按资源分类选择
// cache-first / stale-while-revalidate / network-first 三种策略之一，
// 并通过 install/activate 生命周期维护与部署版本一致的缓存分区。
package worker
