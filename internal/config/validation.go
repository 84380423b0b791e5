package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("StoragePath", "不能为空")
	}
	if err := validateCacheVersion(g.CacheVersion); err != nil {
		return fmt.Errorf("CacheVersion: %w", err)
	}
	if err := validateUpstream(g.Upstream); err != nil {
		return fmt.Errorf("Upstream: %w", err)
	}
	if err := validateOriginHost(g.PageOrigin); err != nil {
		return fmt.Errorf("PageOrigin: %w", err)
	}
	if g.CriticalTimeout.DurationValue() <= 0 {
		return newFieldError("CriticalTimeout", "必须大于 0")
	}
	if g.NetworkTimeout.DurationValue() <= 0 {
		return newFieldError("NetworkTimeout", "必须大于 0")
	}
	if g.HoverDelay.DurationValue() <= 0 {
		return newFieldError("HoverDelay", "必须大于 0")
	}
	if g.SampleInterval.DurationValue() <= 0 {
		return newFieldError("SampleInterval", "必须大于 0")
	}

	m := c.Manifest
	for _, route := range m.PrecacheRoutes {
		if !strings.HasPrefix(route, "/") {
			return newFieldError(manifestField("PrecacheRoutes"), "路由必须以 / 开头: "+route)
		}
	}
	for _, route := range m.WarmRoutes {
		if !strings.HasPrefix(route, "/") {
			return newFieldError(manifestField("WarmRoutes"), "路由必须以 / 开头: "+route)
		}
	}
	for _, p := range m.CriticalPaths {
		if !strings.HasPrefix(p, "/") {
			return newFieldError(manifestField("CriticalPaths"), "路径必须以 / 开头: "+p)
		}
	}
	for _, raw := range m.FontURLs {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return newFieldError(manifestField("FontURLs"), "必须是绝对 URL: "+raw)
		}
	}
	for _, host := range m.ExternalOrigins {
		if err := validateOriginHost(host); err != nil {
			return fmt.Errorf("%s: %w", manifestField("ExternalOrigins"), err)
		}
	}
	for _, host := range m.AnalyticsHosts {
		if err := validateOriginHost(host); err != nil {
			return fmt.Errorf("%s: %w", manifestField("AnalyticsHosts"), err)
		}
	}

	return nil
}

// validateCacheVersion 保证版本串可以安全嵌入分区名（{class}-{version}）。
func validateCacheVersion(version string) error {
	if version == "" {
		return errors.New("不能为空")
	}
	if strings.ContainsAny(version, "/\\ ") {
		return errors.New("不允许包含路径分隔符或空格")
	}
	return nil
}

func validateOriginHost(host string) error {
	if host == "" {
		return errors.New("Host 不能为空")
	}
	if strings.Contains(host, "/") {
		return errors.New("Host 不允许包含路径")
	}
	if strings.Contains(host, " ") {
		return errors.New("Host 不允许包含空格")
	}
	if strings.HasPrefix(host, "http") {
		return errors.New("Host 不应包含协议头")
	}
	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}
