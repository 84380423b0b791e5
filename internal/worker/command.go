package worker

import (
	"encoding/json"
	"fmt"
)

// 命令通道的 wire 格式：{ type, url?, routes? }。
const (
	TypeSkipWaiting    = "SKIP_WAITING"
	TypeCachePage      = "CACHE_PAGE"
	TypePrefetchRoutes = "PREFETCH_ROUTES"
)

// Command 是页面发往缓存管理器的命令消息，封闭的 tagged union：
// 只有本文件中的三种变体实现它。
type Command interface {
	isCommand()
}

// SkipWaitingCommand 要求处于等待状态的实例立即激活。
type SkipWaitingCommand struct{}

// CachePageCommand 抓取单个 URL 并写入 dynamic 分区。
type CachePageCommand struct {
	URL string
}

// PrefetchRoutesCommand 逐个抓取路由并写入 critical 分区，
// 单个失败不影响其余路由。
type PrefetchRoutesCommand struct {
	Routes []string
}

func (SkipWaitingCommand) isCommand()    {}
func (CachePageCommand) isCommand()      {}
func (PrefetchRoutesCommand) isCommand() {}

type commandEnvelope struct {
	Type   string   `json:"type"`
	URL    string   `json:"url,omitempty"`
	Routes []string `json:"routes,omitempty"`
}

// DecodeCommand 解析 JSON 命令。未知 type 或缺失必填字段会返回错误，
// 而不是按属性存在与否猜测变体。
func DecodeCommand(data []byte) (Command, error) {
	var envelope commandEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}

	switch envelope.Type {
	case TypeSkipWaiting:
		return SkipWaitingCommand{}, nil
	case TypeCachePage:
		if envelope.URL == "" {
			return nil, fmt.Errorf("command %s requires url", TypeCachePage)
		}
		return CachePageCommand{URL: envelope.URL}, nil
	case TypePrefetchRoutes:
		if len(envelope.Routes) == 0 {
			return nil, fmt.Errorf("command %s requires routes", TypePrefetchRoutes)
		}
		return PrefetchRoutesCommand{Routes: envelope.Routes}, nil
	case "":
		return nil, fmt.Errorf("command type required")
	default:
		return nil, fmt.Errorf("unknown command type: %s", envelope.Type)
	}
}
