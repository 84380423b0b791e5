package client

import "sync"

// Hint 表示一条资源提示，对应 <link rel=...> 的服务端投影。
type Hint struct {
	Rel string `json:"rel"`
	URL string `json:"url"`
	As  string `json:"as,omitempty"`
}

// 支持的提示种类。
const (
	HintPreconnect  = "preconnect"
	HintDNSPrefetch = "dns-prefetch"
	HintPrefetch    = "prefetch"
	HintPreload     = "preload"
)

// HintSet 按 URL 去重地收集资源提示，保持插入顺序。
// 同一 URL 不会被添加两次，无论 rel 是否不同。
type HintSet struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	ordered []Hint
}

// NewHintSet 构造空的提示集合。
func NewHintSet() *HintSet {
	return &HintSet{seen: make(map[string]struct{})}
}

// Add 追加一条提示；URL 已存在时返回 false 且不追加。
func (s *HintSet) Add(hint Hint) bool {
	if hint.URL == "" || hint.Rel == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[hint.URL]; exists {
		return false
	}
	s.seen[hint.URL] = struct{}{}
	s.ordered = append(s.ordered, hint)
	return true
}

// Snapshot 返回按插入顺序排列的提示副本。
func (s *HintSet) Snapshot() []Hint {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]Hint, len(s.ordered))
	copy(result, s.ordered)
	return result
}
