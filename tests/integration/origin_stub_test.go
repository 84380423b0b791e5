package integration

import (
	"net"
	"net/http"
	"sync"
	"testing"
)

// originStub 模拟页面背后的 Origin 服务器：shell 页面、静态资源与 API。
// 记录每个路径被回源的次数，供缓存/预取断言使用。
type originStub struct {
	server   *http.Server
	listener net.Listener
	URL      string

	mu     sync.Mutex
	hits   map[string]int
	bodies map[string]string
}

func newOriginStub(t *testing.T) *originStub {
	t.Helper()

	stub := &originStub{
		hits: make(map[string]int),
		bodies: map[string]string{
			"/":                    "<html>home</html>",
			"/index.html":          "<html>home</html>",
			"/capabilities.html":   "<html>capabilities</html>",
			"/contact.html":        "<html>contact</html>",
			"/assets/app.css":      "body{margin:0}",
			"/assets/app.js":       "console.log('hi')",
			"/assets/img/logo.svg": "<svg/>",
			"/api/list":            `{"items":[1,2,3]}`,
		},
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("unable to start origin stub listener: %v", err)
	}

	stub.server = &http.Server{Handler: http.HandlerFunc(stub.serve)}
	stub.listener = listener
	stub.URL = "http://" + listener.Addr().String()

	go func() {
		_ = stub.server.Serve(listener)
	}()
	t.Cleanup(stub.Close)

	return stub
}

func (s *originStub) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	body, ok := s.bodies[r.URL.Path]
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(body))
}

func (s *originStub) Close() {
	if s == nil {
		return
	}
	if s.server != nil {
		_ = s.server.Close()
	}
}

func (s *originStub) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}
