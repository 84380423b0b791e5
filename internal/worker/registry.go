package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/shellcache/shellcache/internal/logging"
)

// UpdateNotice 通知页面：新版本已安装完毕并处于等待状态。
// 是否切换由页面决定，Registry 绝不自动激活。
type UpdateNotice struct {
	Version string
}

// Factory 按部署版本构造 Worker 实例。
type Factory func(version string) (*Worker, error)

// ErrNoActiveWorker 表示还没有任何激活实例可以处理命令。
var ErrNoActiveWorker = errors.New("no active worker")

// Registry 管理 active/waiting 两个 Worker 实例，并向页面暴露
// 更新通知通道。对应浏览器里的 ServiceWorkerRegistration。
type Registry struct {
	factory Factory
	logger  *logrus.Logger

	mu      sync.Mutex
	active  *Worker
	waiting *Worker

	updates chan UpdateNotice
}

// NewRegistry 构造 Registry；updates 为容量 1 的非阻塞通知通道。
func NewRegistry(factory Factory, logger *logrus.Logger) (*Registry, error) {
	if factory == nil {
		return nil, errors.New("worker factory is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Registry{
		factory: factory,
		logger:  logger,
		updates: make(chan UpdateNotice, 1),
	}, nil
}

// Register 注册（或更新到）指定版本：
//   - 首次注册：install + activate 后立即接管；
//   - 版本不变：幂等返回；
//   - 版本变化：新实例 install 后进入 waiting 并发出更新通知，
//     等待页面显式 SkipWaiting。
func (r *Registry) Register(ctx context.Context, version string) error {
	if r.knownVersion(version) {
		return nil
	}

	// 安装要串行回源预缓存，放在锁外执行：注册期间 Active() 不被阻塞，
	// 拦截照常走旧实例。
	w, err := r.buildAndInstall(ctx, version)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.active == nil {
		r.mu.Unlock()
		if err := w.Activate(ctx); err != nil {
			return fmt.Errorf("activate worker %s: %w", version, err)
		}
		r.mu.Lock()
		if r.active == nil {
			r.active = w
			r.mu.Unlock()
			return nil
		}
		// 并发注册竞争失败，本实例作废。
		r.mu.Unlock()
		w.setRedundant()
		return nil
	}
	if r.active.Version() == version || (r.waiting != nil && r.waiting.Version() == version) {
		r.mu.Unlock()
		w.setRedundant()
		return nil
	}
	r.waiting = w
	r.mu.Unlock()

	r.notify(UpdateNotice{Version: version})
	r.logger.WithFields(logging.LifecycleFields("update_waiting", version)).Info("update_installed")
	return nil
}

// knownVersion 报告指定版本是否已处于 active 或 waiting 槽位。
func (r *Registry) knownVersion(version string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil && r.active.Version() == version {
		return true
	}
	return r.waiting != nil && r.waiting.Version() == version
}

func (r *Registry) buildAndInstall(ctx context.Context, version string) (*Worker, error) {
	w, err := r.factory(version)
	if err != nil {
		return nil, fmt.Errorf("build worker %s: %w", version, err)
	}
	if err := w.Install(ctx); err != nil {
		return nil, fmt.Errorf("install worker %s: %w", version, err)
	}
	return w, nil
}

// notify 非阻塞投递；没有读者时丢弃重复通知。
func (r *Registry) notify(notice UpdateNotice) {
	select {
	case r.updates <- notice:
	default:
	}
}

// Updates 返回更新通知通道。
func (r *Registry) Updates() <-chan UpdateNotice {
	return r.updates
}

// Active 返回当前接管请求的实例，可能为 nil。
func (r *Registry) Active() *Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Waiting 返回处于等待状态的实例，可能为 nil。
func (r *Registry) Waiting() *Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waiting
}

// SkipWaiting 立即激活等待中的实例；旧实例标记为 redundant。
// 没有等待实例时是 no-op。
func (r *Registry) SkipWaiting(ctx context.Context) error {
	r.mu.Lock()
	w := r.waiting
	r.mu.Unlock()

	if w == nil {
		return nil
	}

	// 激活包含分区剪枝与预热回源，放在锁外执行：切换完成前旧实例
	// 继续接管全部拦截。
	if err := w.Activate(ctx); err != nil {
		return fmt.Errorf("activate waiting worker: %w", err)
	}

	r.mu.Lock()
	if r.waiting != w {
		// 等待位在激活期间被替换，本实例作废。
		r.mu.Unlock()
		w.setRedundant()
		return nil
	}
	old := r.active
	r.active = w
	r.waiting = nil
	r.mu.Unlock()

	if old != nil {
		old.setRedundant()
	}
	r.logger.WithFields(logging.LifecycleFields("skip_waiting", w.Version())).Info("worker_promoted")
	return nil
}

// Dispatch 对命令做穷尽匹配。CACHE_PAGE/PREFETCH_ROUTES 的单 URL 失败
// 在 Worker 内部被吞掉，这里只在没有激活实例时报错。
func (r *Registry) Dispatch(ctx context.Context, cmd Command) error {
	switch cmd := cmd.(type) {
	case SkipWaitingCommand:
		return r.SkipWaiting(ctx)
	case CachePageCommand:
		w := r.Active()
		if w == nil {
			return ErrNoActiveWorker
		}
		w.CacheURL(ctx, cmd.URL)
		return nil
	case PrefetchRoutesCommand:
		w := r.Active()
		if w == nil {
			return ErrNoActiveWorker
		}
		w.PrefetchRoutes(ctx, cmd.Routes)
		return nil
	default:
		return fmt.Errorf("unhandled command type %T", cmd)
	}
}
