package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "3s"、"500ms" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述网关的全局运行时行为。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	StoragePath     string   `mapstructure:"StoragePath"`
	CacheVersion    string   `mapstructure:"CacheVersion"`
	Upstream        string   `mapstructure:"Upstream"`
	PageOrigin      string   `mapstructure:"PageOrigin"`
	CriticalTimeout Duration `mapstructure:"CriticalTimeout"`
	NetworkTimeout  Duration `mapstructure:"NetworkTimeout"`
	HoverDelay      Duration `mapstructure:"HoverDelay"`
	SampleInterval  Duration `mapstructure:"SampleInterval"`
}

// ManifestConfig 是构建期预缓存清单：首屏 shell 页面、字体与预热路由。
// 除此之外不存在运行时可调的缓存配置面。
type ManifestConfig struct {
	PrecacheRoutes  []string `mapstructure:"PrecacheRoutes"`
	FontURLs        []string `mapstructure:"FontURLs"`
	WarmRoutes      []string `mapstructure:"WarmRoutes"`
	CriticalPaths   []string `mapstructure:"CriticalPaths"`
	ExternalOrigins []string `mapstructure:"ExternalOrigins"`
	AnalyticsHosts  []string `mapstructure:"AnalyticsHosts"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global   GlobalConfig   `mapstructure:",squash"`
	Manifest ManifestConfig `mapstructure:"Manifest"`
}
