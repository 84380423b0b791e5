package worker

import (
	"net"
	"net/url"
	"strconv"
	"strings"
)

// uncacheableSchemes 列出永远不参与缓存的 URL scheme。
var uncacheableSchemes = map[string]struct{}{
	"chrome-extension": {},
	"data":             {},
	"blob":             {},
	"about":            {},
}

// schemeAllowed 判断 URL 是否允许进入缓存流程。
func schemeAllowed(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	if _, denied := uncacheableSchemes[scheme]; denied {
		return false
	}
	return scheme == "http" || scheme == "https"
}

// hostSet 把主机列表转为规范化查询集合，供分析域名单与外部 Origin 使用。
func hostSet(hosts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		if normalized, _ := normalizeHost(h); normalized != "" {
			set[normalized] = struct{}{}
		}
	}
	return set
}

func hostIn(set map[string]struct{}, host string) bool {
	normalized, _ := normalizeHost(host)
	if normalized == "" {
		return false
	}
	_, ok := set[normalized]
	return ok
}

// sameOrigin 比较两个 Host 是否属于同一 Origin（忽略端口差异前先行拆分）。
func sameOrigin(a, b string) bool {
	ha, _ := normalizeHost(a)
	hb, _ := normalizeHost(b)
	return ha != "" && ha == hb
}

// normalizeHost 统一 Host/Host:port 写法：小写、去端口、去末尾的点。
func normalizeHost(raw string) (string, int) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", 0
	}

	host := raw
	port := 0

	if strings.Contains(raw, ":") {
		if h, p, err := net.SplitHostPort(raw); err == nil {
			host = h
			if parsedPort, err := strconv.Atoi(p); err == nil {
				port = parsedPort
			}
		} else if strings.Count(raw, ":") == 1 {
			// 多个冒号且未带括号的是裸 IPv6 地址，原样保留。
			idx := strings.Index(raw, ":")
			if parsedPort, err := strconv.Atoi(raw[idx+1:]); err == nil {
				host = raw[:idx]
				port = parsedPort
			}
		}
	}

	host = strings.TrimSuffix(host, ".")
	host = strings.ToLower(host)
	return host, port
}
