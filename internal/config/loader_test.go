package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, minimalConfig())

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}

	if cfg.Global.ListenPort != 5000 {
		t.Fatalf("ListenPort 默认值错误: %d", cfg.Global.ListenPort)
	}
	if cfg.Global.CacheVersion != "v1" {
		t.Fatalf("CacheVersion 默认值错误: %s", cfg.Global.CacheVersion)
	}
	if cfg.Global.CriticalTimeout.DurationValue() != 3*time.Second {
		t.Fatalf("CriticalTimeout 默认值错误: %v", cfg.Global.CriticalTimeout.DurationValue())
	}
	if cfg.Global.NetworkTimeout.DurationValue() != 5*time.Second {
		t.Fatalf("NetworkTimeout 默认值错误: %v", cfg.Global.NetworkTimeout.DurationValue())
	}
	if cfg.Global.HoverDelay.DurationValue() != 65*time.Millisecond {
		t.Fatalf("HoverDelay 默认值错误: %v", cfg.Global.HoverDelay.DurationValue())
	}
	if cfg.Global.SampleInterval.DurationValue() != 500*time.Millisecond {
		t.Fatalf("SampleInterval 默认值错误: %v", cfg.Global.SampleInterval.DurationValue())
	}
	if !filepath.IsAbs(cfg.Global.StoragePath) {
		t.Fatalf("StoragePath 应被解析为绝对路径: %s", cfg.Global.StoragePath)
	}

	if len(cfg.Manifest.PrecacheRoutes) == 0 {
		t.Fatalf("预缓存清单默认值缺失")
	}
	if len(cfg.Manifest.CriticalPaths) == 0 {
		t.Fatalf("关键路径默认值缺失")
	}
	if len(cfg.Manifest.AnalyticsHosts) == 0 {
		t.Fatalf("分析域默认值缺失")
	}
}

func TestLoadOverridesManifest(t *testing.T) {
	path := writeTempConfig(t, `
Upstream = "http://127.0.0.1:9000"
PageOrigin = "shell.test"
CacheVersion = "v42"
CriticalTimeout = "1500ms"
NetworkTimeout = 8

[Manifest]
PrecacheRoutes = ["/", "/about.html"]
CriticalPaths = ["/", "/about.html"]
WarmRoutes = ["/"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}

	if cfg.Global.CacheVersion != "v42" {
		t.Fatalf("CacheVersion 覆盖失败: %s", cfg.Global.CacheVersion)
	}
	if cfg.Global.CriticalTimeout.DurationValue() != 1500*time.Millisecond {
		t.Fatalf("Duration 字符串解析失败: %v", cfg.Global.CriticalTimeout.DurationValue())
	}
	if cfg.Global.NetworkTimeout.DurationValue() != 8*time.Second {
		t.Fatalf("整数秒解析失败: %v", cfg.Global.NetworkTimeout.DurationValue())
	}
	if len(cfg.Manifest.PrecacheRoutes) != 2 {
		t.Fatalf("清单覆盖失败: %v", cfg.Manifest.PrecacheRoutes)
	}
	// 未覆盖的清单段仍然回填默认值。
	if len(cfg.Manifest.FontURLs) == 0 {
		t.Fatalf("字体清单默认值缺失")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("期望读取缺失文件报错")
	}
}

func TestLoadRejectsInvalidUpstream(t *testing.T) {
	path := writeTempConfig(t, `
Upstream = "ftp://origin.internal"
PageOrigin = "www.example.com"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("期望非 http/https 上游被拒绝")
	}
}

func TestDurationUnmarshalText(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Duration
	}{
		{"3s", 3 * time.Second},
		{"65ms", 65 * time.Millisecond},
		{"2", 2 * time.Second},
		{"", 0},
	}
	for _, tc := range cases {
		var d Duration
		if err := d.UnmarshalText([]byte(tc.raw)); err != nil {
			t.Fatalf("unmarshal %q error: %v", tc.raw, err)
		}
		if d.DurationValue() != tc.want {
			t.Fatalf("%q: expected %v got %v", tc.raw, tc.want, d.DurationValue())
		}
	}

	var d Duration
	if err := d.UnmarshalText([]byte("not-a-duration")); err == nil {
		t.Fatalf("期望非法值报错")
	}
}
