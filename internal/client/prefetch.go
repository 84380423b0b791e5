package client

import (
	"net/url"
	"strings"
	"sync"
	"time"
)

// DispatchFunc 把一批内部路由交给缓存管理器预取。
// 实现方负责吞掉失败；Prefetcher 不关心结果。
type DispatchFunc func(routes []string)

// Prefetcher 汇聚三类独立触发器（视口内链接、悬停、滚动采样），
// 统一经由一个"已请求"集合去重后发起预取。外域链接永远不预取。
type Prefetcher struct {
	pageOrigin     string
	hoverDelay     time.Duration
	sampleInterval time.Duration
	dispatch       DispatchFunc
	now            func() time.Time

	mu         sync.Mutex
	seen       map[string]struct{}
	hoverTimer map[string]*time.Timer
	lastSample time.Time
}

// NewPrefetcher 构造预取调度器。
func NewPrefetcher(pageOrigin string, hoverDelay, sampleInterval time.Duration, dispatch DispatchFunc) *Prefetcher {
	if hoverDelay <= 0 {
		hoverDelay = 65 * time.Millisecond
	}
	if sampleInterval <= 0 {
		sampleInterval = 500 * time.Millisecond
	}
	return &Prefetcher{
		pageOrigin:     pageOrigin,
		hoverDelay:     hoverDelay,
		sampleInterval: sampleInterval,
		dispatch:       dispatch,
		now:            time.Now,
		seen:           make(map[string]struct{}),
		hoverTimer:     make(map[string]*time.Timer),
	}
}

// LinkVisible 处理"链接进入视口"触发；内部且未请求过时立即预取。
// 返回是否实际发起了预取。
func (p *Prefetcher) LinkVisible(raw string) bool {
	route, ok := p.internalRoute(raw)
	if !ok {
		return false
	}
	return p.request(route)
}

// LinkHovered 处理悬停触发，按 hoverDelay 防抖：同一链接在延迟窗口内
// 的重复悬停只产生一次预取。
func (p *Prefetcher) LinkHovered(raw string) {
	route, ok := p.internalRoute(raw)
	if !ok {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, requested := p.seen[route]; requested {
		return
	}
	if _, pending := p.hoverTimer[route]; pending {
		return
	}
	p.hoverTimer[route] = time.AfterFunc(p.hoverDelay, func() {
		p.mu.Lock()
		delete(p.hoverTimer, route)
		p.mu.Unlock()
		p.request(route)
	})
}

// SampleVisible 处理滚动采样触发，按 sampleInterval 节流：
// 间隔未到的调用直接丢弃整批链接。
func (p *Prefetcher) SampleVisible(raws []string) {
	p.mu.Lock()
	now := p.now()
	if now.Sub(p.lastSample) < p.sampleInterval {
		p.mu.Unlock()
		return
	}
	p.lastSample = now
	p.mu.Unlock()

	var routes []string
	for _, raw := range raws {
		route, ok := p.internalRoute(raw)
		if !ok {
			continue
		}
		if p.markRequested(route) {
			routes = append(routes, route)
		}
	}
	if len(routes) > 0 && p.dispatch != nil {
		p.dispatch(routes)
	}
}

// Requested 报告某路由是否已经发起过预取，供测试与诊断使用。
func (p *Prefetcher) Requested(route string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.seen[route]
	return ok
}

func (p *Prefetcher) request(route string) bool {
	if !p.markRequested(route) {
		return false
	}
	if p.dispatch != nil {
		p.dispatch([]string{route})
	}
	return true
}

// markRequested 原子地把路由标记为已请求；重复标记返回 false。
// 去重只依赖该集合，不会中止已在途的抓取。
func (p *Prefetcher) markRequested(route string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.seen[route]; ok {
		return false
	}
	p.seen[route] = struct{}{}
	return true
}

// internalRoute 将链接归一化为内部路由（路径+查询）。
// 相对链接视为内部；绝对链接必须与页面 Origin 同域。
func (p *Prefetcher) internalRoute(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host != "" && !strings.EqualFold(hostOnly(u.Host), hostOnly(p.pageOrigin)) {
		return "", false
	}

	route := u.Path
	if route == "" {
		route = "/"
	}
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	if u.RawQuery != "" {
		route += "?" + u.RawQuery
	}
	return route, true
}

func hostOnly(host string) string {
	if idx := strings.LastIndex(host, ":"); idx > -1 && !strings.Contains(host[idx+1:], "]") {
		return strings.ToLower(host[:idx])
	}
	return strings.ToLower(host)
}
