package integration

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func doGet(t *testing.T, env *testEnv, path string, header map[string]string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "http://"+testPageOrigin+path, nil)
	req.Host = testPageOrigin
	for key, value := range header {
		req.Header.Set(key, value)
	}
	resp, err := env.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	return resp
}

func TestPrecachedShellServedFromCache(t *testing.T) {
	env := newTestEnv(t, true)
	env.drain()

	// Bootstrap 的 install 已预缓存 "/"，拦截应直接命中。
	before := env.origin.count("/")
	resp := doGet(t, env, "/", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status mismatch: %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Shellcache-Cache"); got != "hit" {
		t.Fatalf("预缓存页面应命中, got %q", got)
	}
	if got := resp.Header.Get("X-Shellcache-Strategy"); got != "cache-first" {
		t.Fatalf("strategy 头错误: %q", got)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("响应应携带 X-Request-ID")
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "<html>home</html>" {
		t.Fatalf("body mismatch: %s", string(body))
	}

	// 命中后触发一次后台刷新。
	env.drain()
	if got := env.origin.count("/"); got != before+1 {
		t.Fatalf("命中应触发一次后台刷新: before=%d after=%d", before, got)
	}
}

func TestStaticAssetMissThenStale(t *testing.T) {
	env := newTestEnv(t, true)
	env.drain()

	// 首次请求：缓存为空，等待网络结果。
	resp := doGet(t, env, "/assets/app.css", map[string]string{"Sec-Fetch-Dest": "style"})
	defer resp.Body.Close()
	if got := resp.Header.Get("X-Shellcache-Cache"); got != "miss" {
		t.Fatalf("首次请求应 miss, got %q", got)
	}
	if got := resp.Header.Get("X-Shellcache-Strategy"); got != "stale-while-revalidate" {
		t.Fatalf("strategy 头错误: %q", got)
	}
	env.drain()

	// 第二次请求：立即返回缓存副本，同时后台 revalidate。
	before := env.origin.count("/assets/app.css")
	resp = doGet(t, env, "/assets/app.css", map[string]string{"Sec-Fetch-Dest": "style"})
	defer resp.Body.Close()
	if got := resp.Header.Get("X-Shellcache-Cache"); got != "hit" {
		t.Fatalf("第二次请求应命中, got %q", got)
	}
	env.drain()
	if got := env.origin.count("/assets/app.css"); got != before+1 {
		t.Fatalf("revalidate 应回源一次: before=%d after=%d", before, got)
	}
}

func TestOfflineFallbackForCriticalPage(t *testing.T) {
	env := newTestEnv(t, true)
	env.drain()

	// Origin 下线后请求一个未预缓存的关键页面。
	env.origin.Close()
	resp := doGet(t, env, "/contact.html", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("离线关键页面应返回 503, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Shellcache-Offline") != "true" {
		t.Fatalf("应携带 offline 标记头")
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "offline") {
		t.Fatalf("offline 页面内容缺失: %s", string(body))
	}
	env.drain()

	// 已预缓存的页面不受故障影响。
	resp = doGet(t, env, "/", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("预缓存页面应继续可用: %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Shellcache-Cache"); got != "hit" {
		t.Fatalf("预缓存页面应命中, got %q", got)
	}
	env.drain()
}

func TestDynamicAPIFallsBackToCache(t *testing.T) {
	env := newTestEnv(t, true)
	env.drain()

	resp := doGet(t, env, "/api/list", nil)
	defer resp.Body.Close()
	if got := resp.Header.Get("X-Shellcache-Strategy"); got != "network-first" {
		t.Fatalf("strategy 头错误: %q", got)
	}
	env.drain()

	env.origin.Close()
	resp = doGet(t, env, "/api/list", nil)
	defer resp.Body.Close()
	if got := resp.Header.Get("X-Shellcache-Cache"); got != "hit" {
		t.Fatalf("Origin 下线应回退缓存, got %q", got)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"items":[1,2,3]}` {
		t.Fatalf("fallback body mismatch: %s", string(body))
	}
	env.drain()
}

func TestPostRequestsBypassCache(t *testing.T) {
	env := newTestEnv(t, true)
	env.drain()

	req := httptest.NewRequest(http.MethodPost, "http://"+testPageOrigin+"/api/list", strings.NewReader("{}"))
	req.Host = testPageOrigin
	resp, err := env.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("X-Shellcache-Cache"); got != "bypass" {
		t.Fatalf("POST 应透传, got %q", got)
	}
}

func TestWithoutRegistrationEverythingPassesThrough(t *testing.T) {
	env := newTestEnv(t, false)

	resp := doGet(t, env, "/", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status mismatch: %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Shellcache-Cache"); got != "bypass" {
		t.Fatalf("未注册时应透传, got %q", got)
	}
}
