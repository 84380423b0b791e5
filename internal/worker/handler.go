package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/shellcache/shellcache/internal/logging"
	"github.com/shellcache/shellcache/internal/server"
)

// HandlerOptions 汇总 Handler 的依赖与拦截范围。
type HandlerOptions struct {
	Registry       *Registry
	Client         *http.Client
	Logger         *logrus.Logger
	Upstream       *url.URL
	PageOrigin     string
	AnalyticsHosts []string
}

// Handler 将 Fiber 请求桥接到激活的 Worker。非 GET、拒缓存 scheme、
// 分析域以及"尚无激活实例"的请求一律纯透传，不触碰分区。
type Handler struct {
	registry   *Registry
	client     *http.Client
	logger     *logrus.Logger
	upstream   *url.URL
	pageOrigin string
	analytics  map[string]struct{}
}

// NewHandler 构造拦截处理器。
func NewHandler(opts HandlerOptions) (*Handler, error) {
	if opts.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if opts.Client == nil {
		return nil, errors.New("http client is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Upstream == nil {
		return nil, errors.New("upstream url is required")
	}
	if opts.PageOrigin == "" {
		return nil, errors.New("page origin is required")
	}

	return &Handler{
		registry:   opts.Registry,
		client:     opts.Client,
		logger:     opts.Logger,
		upstream:   opts.Upstream,
		pageOrigin: opts.PageOrigin,
		analytics:  hostSet(opts.AnalyticsHosts),
	}, nil
}

// Handle 执行"过滤 → 分类 → 策略"的拦截全流程，任何阶段出错都会
// 输出结构化日志。
func (h *Handler) Handle(c fiber.Ctx) error {
	started := time.Now()
	requestID := server.RequestID(c)
	u := requestURL(c)

	if c.Method() != http.MethodGet || !schemeAllowed(u) || hostIn(h.analytics, u.Host) {
		return h.passthrough(c, u, requestID, started)
	}

	w := h.registry.Active()
	if w == nil {
		// 注册失败或尚未激活：页面照常工作，只是没有离线缓存。
		return h.passthrough(c, u, requestID, started)
	}

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	dest := Destination(c.Get("Sec-Fetch-Dest"), u.Path)
	resp, result, err := w.Fetch(ctx, u, dest)
	if err != nil {
		h.logResult(u, result, requestID, 0, started, err)
		return h.writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}

	for key, values := range resp.Header {
		if server.IsHopByHopHeader(key) {
			continue
		}
		for _, value := range values {
			c.Set(key, value)
		}
	}
	c.Set("X-Shellcache-Cache", cacheHeaderValue(result.CacheHit))
	c.Set("X-Shellcache-Strategy", string(result.Strategy))
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	c.Status(resp.Status)

	h.logResult(u, result, requestID, resp.Status, started, nil)
	return c.Send(resp.Body)
}

// passthrough 不经分区直接转发到网络侧，响应按流复制回下游。
func (h *Handler) passthrough(c fiber.Ctx, u *url.URL, requestID string, started time.Time) error {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	target := resolveTarget(h.upstream, h.pageOrigin, u)
	req, err := http.NewRequestWithContext(ctx, c.Method(), target.String(), bytesReader(c.Body()))
	if err != nil {
		return h.writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}

	server.CopyHeaders(req.Header, fiberHeadersAsHTTP(c))
	req.Header.Del("Accept-Encoding")
	req.Host = target.Host
	req.Header.Set("X-Forwarded-Host", c.Hostname())
	if ip := c.IP(); ip != "" {
		req.Header.Set("X-Forwarded-For", ip)
	}
	req.Header.Set("X-Forwarded-Proto", c.Protocol())

	resp, err := h.client.Do(req)
	if err != nil {
		h.logPassthrough(u, requestID, 0, started, err)
		return h.writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		if server.IsHopByHopHeader(key) {
			continue
		}
		for _, value := range values {
			c.Set(key, value)
		}
	}
	c.Set("X-Shellcache-Cache", "bypass")
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	c.Status(resp.StatusCode)

	if c.Method() == http.MethodHead {
		h.logPassthrough(u, requestID, resp.StatusCode, started, nil)
		return nil
	}

	_, err = io.Copy(c.Response().BodyWriter(), resp.Body)
	h.logPassthrough(u, requestID, resp.StatusCode, started, err)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("proxy stream failed: %v", err))
	}
	return nil
}

func (h *Handler) writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) logResult(u *url.URL, result Result, requestID string, status int, started time.Time, err error) {
	fields := logging.FetchFields(string(result.Class), string(result.Strategy), u.String(), result.CacheHit)
	fields["action"] = "intercept"
	fields["status"] = status
	fields["offline"] = result.Offline
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("intercept_failed")
		return
	}
	h.logger.WithFields(fields).Info("intercept_complete")
}

func (h *Handler) logPassthrough(u *url.URL, requestID string, status int, started time.Time, err error) {
	fields := logrus.Fields{
		"action":     "passthrough",
		"url":        u.String(),
		"status":     status,
		"elapsed_ms": time.Since(started).Milliseconds(),
	}
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Warn("passthrough_failed")
		return
	}
	h.logger.WithFields(fields).Debug("passthrough_complete")
}

func cacheHeaderValue(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

// requestURL 从 Fiber 请求还原绝对 URL（scheme://host/path?query）。
func requestURL(c fiber.Ctx) *url.URL {
	host := getHostHeader(c)
	rawPath := string(c.Request().URI().Path())
	if rawPath == "" {
		rawPath = "/"
	}
	u := &url.URL{
		Scheme: c.Scheme(),
		Host:   host,
		Path:   rawPath,
	}
	if query := c.Request().URI().QueryString(); len(query) > 0 {
		u.RawQuery = string(query)
	}
	return u
}

func getHostHeader(c fiber.Ctx) string {
	if raw := c.Request().Header.Peek(fiber.HeaderHost); len(raw) > 0 {
		return string(raw)
	}
	return c.Hostname()
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

func bytesReader(b []byte) io.Reader {
	if len(b) == 0 {
		return http.NoBody
	}
	return bytes.NewReader(b)
}
