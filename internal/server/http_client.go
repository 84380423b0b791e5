package server

import (
	"net"
	"net/http"
	"net/textproto"
	"time"

	"github.com/shellcache/shellcache/internal/config"
)

const clientTimeoutFloor = 30 * time.Second

// sharedTransport 集中长连接与握手超时配置，所有网络侧客户端克隆它。
var sharedTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// NewUpstreamClient 返回共享 http.Client，拦截与预热路径都用它回源。
// 整体超时必须显著高于各策略的竞赛超时：竞赛中落败的抓取要在客户端
// 超时之前完成，迟到的结果才有机会写回分区。
func NewUpstreamClient(cfg *config.Config) *http.Client {
	timeout := clientTimeoutFloor
	if cfg != nil {
		if scaled := cfg.Global.NetworkTimeout.DurationValue() * 6; scaled > timeout {
			timeout = scaled
		}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: sharedTransport.Clone(),
	}
}

// hop-by-hop 头只属于单跳连接（RFC 7230 §6.1），既不透传也不入缓存。
// Proxy-Connection 非标准，但旧代理仍会发送。
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
	"Proxy-Connection":    {},
}

// IsHopByHopHeader 判断一个头是否应被代理剥除，键名大小写不敏感。
func IsHopByHopHeader(key string) bool {
	_, ok := hopByHopHeaders[textproto.CanonicalMIMEHeaderKey(key)]
	return ok
}

// CopyHeaders 把 src 中允许透传的头追加到 dst，保留同名头的多个值。
func CopyHeaders(dst, src http.Header) {
	for key, values := range src {
		if IsHopByHopHeader(key) {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}
