package client

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shellcache/shellcache/internal/worker"
)

// defaultCriticalStyle 是首屏渲染所需的最小内联样式块。
const defaultCriticalStyle = `:root{--bg:#0b0d12;--fg:#f5f7fa;--accent:#4f7cff}
body{margin:0;background:var(--bg);color:var(--fg);font-family:system-ui,sans-serif}
.hero{min-height:60vh;display:flex;align-items:center;justify-content:center}`

// defaultLazyMargin 是惰性加载的视口前瞻边距（像素）。
const defaultLazyMargin = 200

// Options 汇总构造 Controller 需要的依赖与清单。
type Options struct {
	Registry *worker.Registry
	Logger   *logrus.Logger

	CacheVersion string
	PageOrigin   string

	// ExternalOrigins/PreloadAssets 驱动 Bootstrap 阶段的固定资源提示。
	ExternalOrigins []string
	PreloadAssets   []string

	HoverDelay     time.Duration
	SampleInterval time.Duration

	Navigation    NavigationTiming
	LazyMargin    int
	ApplyDeferred ApplyFunc
}

// Controller 是页面侧控制器实例：每个页面生命周期构造一次，
// 所有状态（提示去重集、指标、预取集合）都由实例显式持有，
// 不存在包级全局。
type Controller struct {
	registry *worker.Registry
	logger   *logrus.Logger

	version    string
	pageOrigin string

	externalOrigins []string
	preloadAssets   []string

	hints      *HintSet
	prefetcher *Prefetcher
	metrics    *Collector
	lazy       *LazyLoader
	compute    *Compute

	criticalStyle string
	bootstrapped  bool
	offlineReady  bool
}

// NewController 构造控制器。Registry 可用性在 Bootstrap 时才检测，
// 构造本身不触网。
func NewController(opts Options) (*Controller, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.CacheVersion == "" {
		return nil, errors.New("cache version is required")
	}
	if opts.PageOrigin == "" {
		return nil, errors.New("page origin is required")
	}

	margin := opts.LazyMargin
	if margin <= 0 {
		margin = defaultLazyMargin
	}

	c := &Controller{
		registry:        opts.Registry,
		logger:          opts.Logger,
		version:         opts.CacheVersion,
		pageOrigin:      opts.PageOrigin,
		externalOrigins: opts.ExternalOrigins,
		preloadAssets:   opts.PreloadAssets,
		hints:           NewHintSet(),
		metrics:         NewCollector(opts.Navigation),
		lazy:            NewLazyLoader(margin, opts.ApplyDeferred),
		compute:         NewCompute(),
	}
	c.prefetcher = NewPrefetcher(opts.PageOrigin, opts.HoverDelay, opts.SampleInterval, c.dispatchPrefetch)
	return c, nil
}

// Bootstrap 执行页面就绪后的启动序列：注入首屏内联样式、追加固定
// 资源提示（按 URL 去重）、注册缓存管理器。注册失败是能力降级而非
// 致命错误：记录日志后页面继续以"无离线缓存"模式工作。
func (c *Controller) Bootstrap(ctx context.Context) {
	if c.bootstrapped {
		return
	}
	c.bootstrapped = true

	c.criticalStyle = defaultCriticalStyle

	for _, origin := range c.externalOrigins {
		c.hints.Add(Hint{Rel: HintPreconnect, URL: "https://" + origin})
		c.hints.Add(Hint{Rel: HintDNSPrefetch, URL: "//" + origin})
	}
	for _, asset := range c.preloadAssets {
		c.hints.Add(Hint{Rel: HintPreload, URL: asset, As: "image"})
	}

	if c.registry == nil {
		// 运行环境不支持缓存管理器：同样按能力降级处理。
		c.logger.WithField("action", "sw_register").Warn("cache_manager_unsupported")
		return
	}

	// 注册范围是整个 Origin；每次注册都重新构造实例，
	// 管理器本体永远不走缓存副本。
	if err := c.registry.Register(ctx, c.version); err != nil {
		c.logger.WithError(err).
			WithField("action", "sw_register").
			Warn("cache_manager_register_failed")
		return
	}
	c.offlineReady = true
	c.logger.WithFields(logrus.Fields{
		"action":        "sw_register",
		"cache_version": c.version,
	}).Info("cache_manager_registered")
}

// OfflineReady 报告离线缓存是否就绪（注册是否成功）。
func (c *Controller) OfflineReady() bool {
	return c.offlineReady
}

// CriticalStyle 返回 Bootstrap 注入的首屏内联样式块。
func (c *Controller) CriticalStyle() string {
	return c.criticalStyle
}

// Hints 返回当前已收集的资源提示（按插入顺序）。
func (c *Controller) Hints() []Hint {
	return c.hints.Snapshot()
}

// AddHint 追加一条提示，按 URL 去重。
func (c *Controller) AddHint(hint Hint) bool {
	return c.hints.Add(hint)
}

// Updates 暴露"新版本安装完毕并等待中"的非阻塞通知。
func (c *Controller) Updates() <-chan worker.UpdateNotice {
	if c.registry == nil {
		return nil
	}
	return c.registry.Updates()
}

// ApplyUpdate 在用户确认后切换到等待中的新版本。刷新永远由用户触发，
// 这里绝不自动执行。
func (c *Controller) ApplyUpdate(ctx context.Context) error {
	if c.registry == nil {
		return nil
	}
	return c.registry.Dispatch(ctx, worker.SkipWaitingCommand{})
}

// CachePage 请求把单个页面缓存进 dynamic 分区；失败只留日志。
func (c *Controller) CachePage(ctx context.Context, url string) {
	if c.registry == nil {
		return
	}
	if err := c.registry.Dispatch(ctx, worker.CachePageCommand{URL: url}); err != nil {
		c.logger.WithError(err).WithField("url", url).Debug("cache_page_dispatch_failed")
	}
}

// LinkVisible/LinkHovered/SampleVisible 转发三类预取触发器。
func (c *Controller) LinkVisible(url string) bool {
	return c.prefetcher.LinkVisible(url)
}

func (c *Controller) LinkHovered(url string) {
	c.prefetcher.LinkHovered(url)
}

func (c *Controller) SampleVisible(urls []string) {
	c.prefetcher.SampleVisible(urls)
}

// dispatchPrefetch 把去重后的路由批量交给缓存管理器。
// 预取是尽力而为：没有激活实例或下发失败都只留日志。
func (c *Controller) dispatchPrefetch(routes []string) {
	if c.registry == nil {
		return
	}
	// 触发器可能在任意请求上下文之外到达，预取自身不受页面取消影响。
	cmd := worker.PrefetchRoutesCommand{Routes: routes}
	if err := c.registry.Dispatch(context.Background(), cmd); err != nil {
		c.logger.WithError(err).WithField("routes", routes).Debug("prefetch_dispatch_failed")
	}
}

// WatchLazy 登记延迟加载元素。
func (c *Controller) WatchLazy(id, deferredSrc string) {
	c.lazy.Watch(id, deferredSrc)
}

// ElementEntered 通知元素进入视口（含前瞻边距），最多触发一次换入。
func (c *Controller) ElementEntered(id string) bool {
	return c.lazy.Enter(id)
}

// LazyMargin 返回惰性加载的前瞻边距。
func (c *Controller) LazyMargin() int {
	return c.lazy.Margin()
}

// ObservePerf 处理一条性能信号。
func (c *Controller) ObservePerf(entry PerfEntry) {
	c.metrics.Observe(entry)
}

// ConsumePerf 持续消费性能信号源。
func (c *Controller) ConsumePerf(ctx context.Context, feed <-chan PerfEntry) {
	c.metrics.Consume(ctx, feed)
}

// Metrics 是公开的零参只读访问器；信号未到齐时对应字段为 0。
func (c *Controller) Metrics() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// Compute 返回后台计算槽位。
func (c *Controller) Compute() *Compute {
	return c.compute
}

// Close 释放控制器持有的后台资源。
func (c *Controller) Close() {
	c.compute.Close()
}
