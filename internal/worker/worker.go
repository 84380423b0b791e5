package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shellcache/shellcache/internal/cache"
	"github.com/shellcache/shellcache/internal/logging"
)

// State 描述 Worker 生命周期阶段。
type State string

const (
	StateNew        State = "new"
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActivated  State = "activated"
	StateRedundant  State = "redundant"
)

// Options 汇总构造 Worker 需要的依赖与清单。
type Options struct {
	Store  cache.Store
	Client *http.Client
	Logger *logrus.Logger

	CacheVersion string
	Upstream     *url.URL
	PageOrigin   string

	PrecacheRoutes []string
	FontURLs       []string
	WarmRoutes     []string
	CriticalPaths  []string

	CriticalTimeout time.Duration
	NetworkTimeout  time.Duration
}

// Worker 是缓存管理器实例。除分区读写外不持有跨请求状态，
// 每次 Fetch 调用都可以独立重放。
type Worker struct {
	store  cache.Store
	client *http.Client
	logger *logrus.Logger

	version    string
	upstream   *url.URL
	pageOrigin string

	precacheRoutes []string
	fontURLs       []string
	warmRoutes     []string
	criticalPaths  map[string]struct{}

	criticalTimeout time.Duration
	networkTimeout  time.Duration

	mu    sync.Mutex
	state State

	// wg 跟踪所有后台刷新/预热任务，Drain 用于优雅停机与测试同步。
	wg sync.WaitGroup
}

// New 构造一个尚未安装的 Worker。
func New(opts Options) (*Worker, error) {
	if opts.Store == nil {
		return nil, errors.New("cache store is required")
	}
	if opts.Client == nil {
		return nil, errors.New("http client is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.CacheVersion == "" {
		return nil, errors.New("cache version is required")
	}
	if opts.Upstream == nil {
		return nil, errors.New("upstream url is required")
	}
	if opts.PageOrigin == "" {
		return nil, errors.New("page origin is required")
	}

	criticalTimeout := opts.CriticalTimeout
	if criticalTimeout <= 0 {
		criticalTimeout = 3 * time.Second
	}
	networkTimeout := opts.NetworkTimeout
	if networkTimeout <= 0 {
		networkTimeout = 5 * time.Second
	}

	return &Worker{
		store:           opts.Store,
		client:          opts.Client,
		logger:          opts.Logger,
		version:         opts.CacheVersion,
		upstream:        opts.Upstream,
		pageOrigin:      opts.PageOrigin,
		precacheRoutes:  opts.PrecacheRoutes,
		fontURLs:        opts.FontURLs,
		warmRoutes:      opts.WarmRoutes,
		criticalPaths:   CriticalPathSet(opts.CriticalPaths),
		criticalTimeout: criticalTimeout,
		networkTimeout:  networkTimeout,
		state:           StateNew,
	}, nil
}

// Version 返回该实例绑定的部署版本串。
func (w *Worker) Version() string {
	return w.version
}

// State 返回当前生命周期阶段。
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) setState(state State) {
	w.mu.Lock()
	w.state = state
	w.mu.Unlock()
}

func (w *Worker) partition(class cache.Class) string {
	return cache.PartitionName(class, w.version)
}

// Install 打开 critical 分区并预缓存 shell 页面，随后 best-effort 预热字体。
// 单个资源失败只记录日志，绝不中断兄弟条目或安装本身。
func (w *Worker) Install(ctx context.Context) error {
	w.setState(StateInstalling)

	// 三类分区在安装时一次性建齐：static 分区在首个静态资源落盘前
	// 就必须存在。
	if err := w.ensurePartitions(ctx); err != nil {
		return err
	}

	for _, route := range w.precacheRoutes {
		if err := w.warmInto(ctx, cache.ClassCritical, route); err != nil {
			w.logger.WithError(err).
				WithFields(logging.LifecycleFields("precache", w.version)).
				WithField("route", route).
				Warn("precache_route_failed")
		}
	}

	// 字体是跨域资源，命中 network-first 策略时回退到 dynamic 分区，
	// 因此预热也写入 dynamic。
	for _, fontURL := range w.fontURLs {
		if err := w.warmInto(ctx, cache.ClassDynamic, fontURL); err != nil {
			w.logger.WithError(err).
				WithFields(logging.LifecycleFields("font_warmup", w.version)).
				WithField("url", fontURL).
				Debug("font_warmup_failed")
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	w.setState(StateInstalled)
	w.logger.WithFields(logging.LifecycleFields("install", w.version)).Info("worker_installed")
	return nil
}

// Activate 删除所有不属于当前版本的分区（此后旧分区不可再被查询），
// 并 best-effort 预热 warm 页面。激活完成后实例开始接管请求。
func (w *Worker) Activate(ctx context.Context) error {
	w.setState(StateActivating)

	partitions, err := w.store.Partitions(ctx)
	if err != nil {
		return fmt.Errorf("enumerate partitions: %w", err)
	}
	for _, name := range partitions {
		if cache.TaggedWith(name, w.version) {
			continue
		}
		if err := w.store.DropPartition(ctx, name); err != nil {
			w.logger.WithError(err).
				WithFields(logging.LifecycleFields("prune", w.version)).
				WithField("partition", name).
				Warn("partition_prune_failed")
			continue
		}
		w.logger.WithFields(logging.LifecycleFields("prune", w.version)).
			WithField("partition", name).
			Info("partition_pruned")
	}

	// 剪枝后恰好剩下当前版本的三个分区。
	if err := w.ensurePartitions(ctx); err != nil {
		return err
	}

	for _, route := range w.warmRoutes {
		if err := w.warmInto(ctx, cache.ClassCritical, route); err != nil {
			w.logger.WithError(err).
				WithFields(logging.LifecycleFields("page_warmup", w.version)).
				WithField("route", route).
				Debug("page_warmup_failed")
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	w.setState(StateActivated)
	w.logger.WithFields(logging.LifecycleFields("activate", w.version)).Info("worker_activated")
	return nil
}

func (w *Worker) setRedundant() {
	w.setState(StateRedundant)
}

func (w *Worker) ensurePartitions(ctx context.Context) error {
	for _, class := range cache.Classes() {
		if err := w.store.EnsurePartition(ctx, w.partition(class)); err != nil {
			return fmt.Errorf("create partition %s: %w", w.partition(class), err)
		}
	}
	return nil
}

// CacheURL 抓取单个 URL 并写入 dynamic 分区。失败被吞掉，只留日志。
func (w *Worker) CacheURL(ctx context.Context, raw string) {
	if err := w.warmInto(ctx, cache.ClassDynamic, raw); err != nil {
		w.logger.WithError(err).
			WithField("url", raw).
			Debug("cache_page_failed")
	}
}

// PrefetchRoutes 将路由逐个写入 critical 分区，单个失败不影响其余条目。
func (w *Worker) PrefetchRoutes(ctx context.Context, routes []string) {
	for _, route := range routes {
		if err := w.warmInto(ctx, cache.ClassCritical, route); err != nil {
			w.logger.WithError(err).
				WithField("route", route).
				Debug("prefetch_route_failed")
		}
	}
}

// Partitions 列出当前存储中的全部分区名，供诊断端使用。
func (w *Worker) Partitions(ctx context.Context) ([]string, error) {
	return w.store.Partitions(ctx)
}

// warmInto 主动抓取一个资源并写入指定类别的当前分区。
func (w *Worker) warmInto(ctx context.Context, class cache.Class, raw string) error {
	u, err := w.absoluteURL(raw)
	if err != nil {
		return err
	}
	if !schemeAllowed(u) {
		return fmt.Errorf("uncacheable scheme: %s", u.Scheme)
	}

	resp, err := w.fetchUpstream(ctx, u)
	if err != nil {
		return err
	}
	if !cacheableStatus(resp.Status) {
		return fmt.Errorf("upstream status %d for %s", resp.Status, raw)
	}
	return w.store.Put(ctx, w.partition(class), w.keyFor(u), resp)
}

// absoluteURL 将相对路由解析到页面 Origin，绝对 URL 原样返回。
func (w *Worker) absoluteURL(raw string) (*url.URL, error) {
	if strings.HasPrefix(raw, "/") {
		host, _ := normalizeHost(w.pageOrigin)
		return url.Parse("https://" + host + raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Host == "" {
		return nil, fmt.Errorf("url requires host or leading slash: %s", raw)
	}
	return u, nil
}

// keyFor 生成条目键：同源请求统一规范化为 https://{pageOrigin}{path}，
// 保证拦截与预热两条路径落到同一条目。
func (w *Worker) keyFor(u *url.URL) cache.Key {
	return cache.Key{Method: http.MethodGet, URL: w.canonicalURL(u)}
}

func (w *Worker) canonicalURL(u *url.URL) string {
	host, _ := normalizeHost(u.Host)
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "https"
	}
	if sameOrigin(u.Host, w.pageOrigin) {
		host, _ = normalizeHost(w.pageOrigin)
		scheme = "https"
	}

	canonical := url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     cleanPath(u.Path),
		RawQuery: u.RawQuery,
	}
	return canonical.String()
}
