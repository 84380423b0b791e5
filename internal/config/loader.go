package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyManifestDefaults(&cfg.Manifest)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("CacheVersion", "v1")
	v.SetDefault("PageOrigin", "")
	v.SetDefault("CriticalTimeout", "3s")
	v.SetDefault("NetworkTimeout", "5s")
	v.SetDefault("HoverDelay", "65ms")
	v.SetDefault("SampleInterval", "500ms")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if g.CacheVersion == "" {
		g.CacheVersion = "v1"
	}
	if g.CriticalTimeout.DurationValue() == 0 {
		g.CriticalTimeout = Duration(3 * time.Second)
	}
	if g.NetworkTimeout.DurationValue() == 0 {
		g.NetworkTimeout = Duration(5 * time.Second)
	}
	if g.HoverDelay.DurationValue() == 0 {
		g.HoverDelay = Duration(65 * time.Millisecond)
	}
	if g.SampleInterval.DurationValue() == 0 {
		g.SampleInterval = Duration(500 * time.Millisecond)
	}
}

// applyManifestDefaults 注入内置的预缓存清单。清单属于构建期产物，
// TOML 只用于覆盖，不提供其他运行时缓存配置面。
func applyManifestDefaults(m *ManifestConfig) {
	if len(m.PrecacheRoutes) == 0 {
		m.PrecacheRoutes = []string{
			"/",
			"/index.html",
			"/capabilities.html",
			"/contact.html",
			"/assets/img/logo.svg",
		}
	}
	if len(m.CriticalPaths) == 0 {
		m.CriticalPaths = []string{
			"/",
			"/index.html",
			"/capabilities.html",
			"/contact.html",
		}
	}
	if len(m.WarmRoutes) == 0 {
		m.WarmRoutes = []string{"/", "/capabilities.html"}
	}
	if len(m.FontURLs) == 0 {
		m.FontURLs = []string{
			"https://fonts.googleapis.com/css2?family=Inter:wght@400;600;700&display=swap",
			"https://fonts.gstatic.com/s/inter/v13/UcCO3FwrK3iLTeHuS_fvQtMwCp50KnMw2boKoduKmMEVuLyfAZ9hiA.woff2",
		}
	}
	if len(m.ExternalOrigins) == 0 {
		m.ExternalOrigins = []string{
			"fonts.googleapis.com",
			"fonts.gstatic.com",
			"cdn.jsdelivr.net",
		}
	}
	if len(m.AnalyticsHosts) == 0 {
		m.AnalyticsHosts = []string{
			"www.google-analytics.com",
			"analytics.google.com",
			"www.googletagmanager.com",
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
