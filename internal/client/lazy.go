package client

import "sync"

// ApplyFunc 把延迟内容换入元素（例如把 data-src 写入 src）。
type ApplyFunc func(id, deferredSrc string)

// LazyLoader 监视被标记为延迟加载的元素：首次进入视口（带前瞻边距）
// 时换入其延迟内容，随后停止观察——每个元素最多触发一次。
type LazyLoader struct {
	margin int
	apply  ApplyFunc

	mu      sync.Mutex
	watched map[string]string
	applied map[string]struct{}
}

// NewLazyLoader 构造加载器；margin 是视口前瞻边距（像素），
// 由调用方在判定"进入视口"时使用。
func NewLazyLoader(margin int, apply ApplyFunc) *LazyLoader {
	if margin < 0 {
		margin = 0
	}
	return &LazyLoader{
		margin:  margin,
		apply:   apply,
		watched: make(map[string]string),
		applied: make(map[string]struct{}),
	}
}

// Margin 返回前瞻边距。
func (l *LazyLoader) Margin() int {
	return l.margin
}

// Watch 登记一个延迟加载元素。已触发过的元素不会被重新登记。
func (l *LazyLoader) Watch(id, deferredSrc string) {
	if id == "" || deferredSrc == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, done := l.applied[id]; done {
		return
	}
	l.watched[id] = deferredSrc
}

// Enter 通知某元素进入了视口。首次触发换入延迟内容并取消观察；
// 之后的调用是 no-op。返回是否实际执行了换入。
func (l *LazyLoader) Enter(id string) bool {
	l.mu.Lock()
	src, ok := l.watched[id]
	if !ok {
		l.mu.Unlock()
		return false
	}
	delete(l.watched, id)
	l.applied[id] = struct{}{}
	l.mu.Unlock()

	if l.apply != nil {
		l.apply(id, src)
	}
	return true
}

// Watching 报告元素当前是否仍在观察中。
func (l *LazyLoader) Watching(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.watched[id]
	return ok
}
