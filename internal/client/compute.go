package client

import "sync"

// ComputeJob 是提交给后台计算槽位的类型化消息。
type ComputeJob struct {
	ID      string
	Kind    string
	Payload []byte
}

// ComputeResult 是后台计算返回的类型化结果。
type ComputeResult struct {
	ID      string
	Kind    string
	Payload []byte
}

// Compute 是为 CPU 密集工作预留的后台执行槽位。目前是直通占位：
// 接受类型化消息并原样返回，真实的变换留待具体场景接入。
type Compute struct {
	jobs    chan ComputeJob
	results chan ComputeResult

	closeOnce sync.Once
	done      chan struct{}
}

// NewCompute 启动后台执行 goroutine。
func NewCompute() *Compute {
	c := &Compute{
		jobs:    make(chan ComputeJob, 16),
		results: make(chan ComputeResult, 16),
		done:    make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *Compute) run() {
	defer close(c.results)
	for {
		select {
		case <-c.done:
			return
		case job, ok := <-c.jobs:
			if !ok {
				return
			}
			// 直通：不做任何变换。
			result := ComputeResult{ID: job.ID, Kind: job.Kind, Payload: job.Payload}
			select {
			case c.results <- result:
			case <-c.done:
				return
			}
		}
	}
}

// Submit 非阻塞提交任务；队列满或已关闭时返回 false。
func (c *Compute) Submit(job ComputeJob) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.jobs <- job:
		return true
	default:
		return false
	}
}

// Results 返回结果通道；Close 后通道会被关闭。
func (c *Compute) Results() <-chan ComputeResult {
	return c.results
}

// Close 停止后台执行，幂等。
func (c *Compute) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
