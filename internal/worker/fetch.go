package worker

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shellcache/shellcache/internal/cache"
	"github.com/shellcache/shellcache/internal/server"
)

// errFetchTimeout 表示策略级超时先于网络结果到达。
var errFetchTimeout = errors.New("upstream fetch timed out")

type fetchResult struct {
	resp *cache.Response
	err  error
}

// fetchUpstream 执行一次真实网络请求并整体读取响应快照。
func (w *Worker) fetchUpstream(ctx context.Context, u *url.URL) (*cache.Response, error) {
	target := resolveTarget(w.upstream, w.pageOrigin, u)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), http.NoBody)
	if err != nil {
		return nil, err
	}
	if sameOrigin(u.Host, w.pageOrigin) {
		req.Header.Set("X-Forwarded-Host", w.pageOrigin)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	header := make(http.Header, len(resp.Header))
	server.CopyHeaders(header, resp.Header)

	return &cache.Response{
		Status:   resp.StatusCode,
		Header:   header,
		Body:     body,
		StoredAt: time.Now().UTC(),
	}, nil
}

// startFetch 在后台抓取资源；成功且状态可缓存时写入分区。
// 结果经缓冲 channel 返回，调用方可以不等待——超时竞赛中落败的
// 网络结果依然会更新分区，只是不再被发起方使用。
func (w *Worker) startFetch(u *url.URL, key cache.Key, partition string) <-chan fetchResult {
	ch := make(chan fetchResult, 1)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		// 独立于请求方的 context：发起方放弃等待不取消网络侧。
		resp, err := w.fetchUpstream(context.Background(), u)
		if err == nil && cacheableStatus(resp.Status) && partition != "" {
			if putErr := w.store.Put(context.Background(), partition, key, resp); putErr != nil {
				w.logger.WithError(putErr).WithField("url", key.URL).Warn("cache_put_failed")
			}
		}
		ch <- fetchResult{resp: resp, err: err}
	}()
	return ch
}

// fetchWithTimeout 将网络抓取与固定超时竞赛。
func (w *Worker) fetchWithTimeout(u *url.URL, key cache.Key, partition string, timeout time.Duration) (*cache.Response, error) {
	ch := w.startFetch(u, key, partition)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.resp, res.err
	case <-timer.C:
		return nil, errFetchTimeout
	}
}

// detachRefresh 发起后台刷新：失败在此边界被吞掉，绝不传播给发起调用。
func (w *Worker) detachRefresh(u *url.URL, key cache.Key, partition string) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		resp, err := w.fetchUpstream(context.Background(), u)
		if err != nil {
			w.logger.WithError(err).WithField("url", key.URL).Debug("background_refresh_failed")
			return
		}
		if !cacheableStatus(resp.Status) {
			return
		}
		if err := w.store.Put(context.Background(), partition, key, resp); err != nil {
			w.logger.WithError(err).WithField("url", key.URL).Warn("cache_put_failed")
		}
	}()
}

// Drain 等待所有后台刷新/预热任务完成，用于优雅停机与测试同步。
func (w *Worker) Drain() {
	w.wg.Wait()
}

func cacheableStatus(status int) bool {
	return status == http.StatusOK
}

// resolveTarget 将请求映射到真实网络目标：同源路径改写到上游 Origin
// 服务器，跨域请求保留原始 URL。
func resolveTarget(upstream *url.URL, pageOrigin string, u *url.URL) *url.URL {
	if upstream != nil && sameOrigin(u.Host, pageOrigin) {
		relative := &url.URL{Path: u.Path, RawQuery: u.RawQuery}
		return upstream.ResolveReference(relative)
	}
	return u
}
