package client

import (
	"context"
	"sync"
)

// 浏览器性能信号的条目类型。
const (
	EntryPaint       = "paint"
	EntryLCP         = "largest-contentful-paint"
	EntryFirstInput  = "first-input"
	EntryLayoutShift = "layout-shift"
)

// PerfEntry 是标准性能信号源投递的单条记录，时间单位毫秒。
type PerfEntry struct {
	Type            string
	Name            string
	StartTime       float64
	ProcessingStart float64
	Value           float64
	HadRecentInput  bool
}

// NavigationTiming 是页面启动时捕获的导航计时，用于计算 TTFB。
type NavigationTiming struct {
	RequestStart  float64
	ResponseStart float64
}

// MetricsSnapshot 是指标访问器返回的只读快照；未到达的信号为 0。
type MetricsSnapshot struct {
	FCP  float64 `json:"fcp"`
	LCP  float64 `json:"lcp"`
	FID  float64 `json:"fid"`
	CLS  float64 `json:"cls"`
	TTFB float64 `json:"ttfb"`
}

// Collector 在页面生命周期内累积性能指标。
// 信号异步到达，Snapshot 随时可读——没有信号不是错误。
type Collector struct {
	mu   sync.Mutex
	snap MetricsSnapshot
}

// NewCollector 构造采集器并立即从导航计时推导 TTFB。
func NewCollector(nav NavigationTiming) *Collector {
	c := &Collector{}
	if ttfb := nav.ResponseStart - nav.RequestStart; ttfb > 0 {
		c.snap.TTFB = ttfb
	}
	return c
}

// Observe 处理一条性能信号。CLS 只累加，页面生命周期内从不重置。
func (c *Collector) Observe(entry PerfEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch entry.Type {
	case EntryPaint:
		if entry.Name == "first-contentful-paint" && c.snap.FCP == 0 {
			c.snap.FCP = entry.StartTime
		}
	case EntryLCP:
		// LCP 候选会被更大的元素刷新，总是采用最新值。
		c.snap.LCP = entry.StartTime
	case EntryFirstInput:
		if c.snap.FID == 0 {
			c.snap.FID = entry.ProcessingStart - entry.StartTime
		}
	case EntryLayoutShift:
		if !entry.HadRecentInput {
			c.snap.CLS += entry.Value
		}
	}
}

// Consume 持续消费信号源直到其关闭或 ctx 结束。
func (c *Collector) Consume(ctx context.Context, feed <-chan PerfEntry) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-feed:
			if !ok {
				return
			}
			c.Observe(entry)
		}
	}
}

// Snapshot 返回当前指标快照，任何时刻可调用。
func (c *Collector) Snapshot() MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}
