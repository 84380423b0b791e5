package worker

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/shellcache/shellcache/internal/cache"
)

// Result 描述一次拦截请求的处理结论，供响应头与日志复用。
type Result struct {
	Class    ResourceClass
	Strategy StrategyKind
	CacheHit bool
	Offline  bool
}

// Fetch 对请求分类并按固定策略表解析。返回的 error 仅出现在
// network-first 路径（网络失败且无缓存回退时向调用方传播）。
func (w *Worker) Fetch(ctx context.Context, u *url.URL, dest string) (*cache.Response, Result, error) {
	class := Classify(w.pageOrigin, w.criticalPaths, u, dest)
	result := Result{Class: class, Strategy: StrategyFor(class)}

	partition := w.partition(PartitionClassFor(class))
	key := w.keyFor(u)

	switch result.Strategy {
	case StrategyCacheFirst:
		resp, hit, offline := w.cacheFirst(ctx, u, key, partition)
		result.CacheHit = hit
		result.Offline = offline
		return resp, result, nil
	case StrategySWR:
		resp, hit, err := w.staleWhileRevalidate(ctx, u, key, partition)
		result.CacheHit = hit
		return resp, result, err
	default:
		resp, hit, err := w.networkFirst(ctx, u, key, partition)
		result.CacheHit = hit
		return resp, result, err
	}
}

// cacheFirst：命中立即返回并发起一次后台刷新；未命中回源（限时）；
// 回源失败且无缓存时合成 offline 响应——关键资源绝不向页面抛错。
func (w *Worker) cacheFirst(ctx context.Context, u *url.URL, key cache.Key, partition string) (*cache.Response, bool, bool) {
	cached, err := w.store.Match(ctx, partition, key)
	if err == nil {
		w.detachRefresh(u, key, partition)
		return cached, true, false
	}
	if !errors.Is(err, cache.ErrNotFound) {
		w.logger.WithError(err).WithField("url", key.URL).Warn("cache_match_failed")
	}

	resp, err := w.fetchWithTimeout(u, key, partition, w.criticalTimeout)
	if err == nil {
		return resp, false, false
	}

	w.logger.WithError(err).WithField("url", key.URL).Warn("critical_fetch_failed")
	return offlineResponse(), false, true
}

// staleWhileRevalidate：并发发起 revalidate 回源；有缓存立即返回陈旧副本，
// 无缓存时退化为等待网络结果（或其失败）。
func (w *Worker) staleWhileRevalidate(ctx context.Context, u *url.URL, key cache.Key, partition string) (*cache.Response, bool, error) {
	network := w.startFetch(u, key, partition)

	cached, err := w.store.Match(ctx, partition, key)
	if err == nil {
		return cached, true, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		w.logger.WithError(err).WithField("url", key.URL).Warn("cache_match_failed")
	}

	res := <-network
	if res.err != nil {
		return nil, false, res.err
	}
	return res.resp, false, nil
}

// networkFirst：限时回源，成功即存即还；失败（含超时）回退缓存；
// 缓存同样缺失时错误向调用方传播，不合成响应。
func (w *Worker) networkFirst(ctx context.Context, u *url.URL, key cache.Key, partition string) (*cache.Response, bool, error) {
	resp, err := w.fetchWithTimeout(u, key, partition, w.networkTimeout)
	if err == nil {
		return resp, false, nil
	}

	cached, matchErr := w.store.Match(ctx, partition, key)
	if matchErr == nil {
		return cached, true, nil
	}
	if !errors.Is(matchErr, cache.ErrNotFound) {
		w.logger.WithError(matchErr).WithField("url", key.URL).Warn("cache_match_failed")
	}
	return nil, false, err
}

const offlineBody = `<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>Offline</title></head>
<body><h1>You are offline</h1><p>This page is not available right now. Please reconnect and retry.</p></body>
</html>
`

// offlineResponse 构造合成的 offline 响应，供 cache-first 彻底失败时使用。
func offlineResponse() *cache.Response {
	header := http.Header{}
	header.Set("Content-Type", "text/html; charset=utf-8")
	header.Set("Cache-Control", "no-store")
	header.Set("X-Shellcache-Offline", "true")
	return &cache.Response{
		Status: http.StatusServiceUnavailable,
		Header: header,
		Body:   []byte(offlineBody),
	}
}
