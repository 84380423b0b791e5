package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// useBufferWriters swaps stdOut/stdErr with in-memory buffers for the duration
// of a test, allowing assertions on CLI output without polluting test logs.
func useBufferWriters(t *testing.T) {
	t.Helper()

	outBuf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}

	prevOut := stdOut
	prevErr := stdErr

	stdOut = outBuf
	stdErr = errBuf

	t.Cleanup(func() {
		stdOut = prevOut
		stdErr = prevErr
	})
}

func writeMainConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}
	return path
}

func TestParseCLIFlagsPriority(t *testing.T) {
	t.Setenv("SHELLCACHE_CONFIG", "/tmp/env.toml")

	opts, err := parseCLIFlags([]string{})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/env.toml" {
		t.Fatalf("应优先使用环境变量，得到 %s", opts.configPath)
	}

	opts, err = parseCLIFlags([]string{"--config", "/tmp/flag.toml"})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/flag.toml" {
		t.Fatalf("flag 应高于环境变量，得到 %s", opts.configPath)
	}
}

func TestParseCLIFlagsDefaultsToLocalFile(t *testing.T) {
	t.Setenv("SHELLCACHE_CONFIG", "")
	opts, err := parseCLIFlags([]string{})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "config.toml" {
		t.Fatalf("默认配置路径错误: %s", opts.configPath)
	}
}

func TestRunCheckConfigSuccess(t *testing.T) {
	useBufferWriters(t)
	path := writeMainConfig(t, `
Upstream = "https://origin.internal:8443"
PageOrigin = "www.example.com"
`)
	code := run(cliOptions{configPath: path, checkOnly: true})
	if code != 0 {
		t.Fatalf("期望退出码 0，得到 %d", code)
	}
}

func TestRunCheckConfigFailure(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{configPath: filepath.Join(t.TempDir(), "missing.toml"), checkOnly: true})
	if code == 0 {
		t.Fatalf("无效配置应返回非零退出码")
	}
}

func TestRunRejectsSemanticErrors(t *testing.T) {
	useBufferWriters(t)
	path := writeMainConfig(t, `
Upstream = "ftp://origin.internal"
PageOrigin = "www.example.com"
`)
	code := run(cliOptions{configPath: path, checkOnly: true})
	if code == 0 {
		t.Fatalf("非法上游协议应返回非零退出码")
	}
}

func TestRunVersionOutput(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{showVersion: true})
	if code != 0 {
		t.Fatalf("version 模式应成功退出，得到 %d", code)
	}
	if !strings.Contains(stdOut.(*bytes.Buffer).String(), "shellcache") {
		t.Fatalf("version 输出应包含 shellcache 标识")
	}
}

func TestPreloadAssetsFiltersShellPages(t *testing.T) {
	routes := []string{"/", "/index.html", "/assets/img/logo.svg", "/assets/css/site.css"}
	assets := preloadAssets(routes)
	if len(assets) != 2 {
		t.Fatalf("expected 2 assets, got %v", assets)
	}
	for _, asset := range assets {
		if !strings.HasPrefix(asset, "/assets/") {
			t.Fatalf("unexpected asset %s", asset)
		}
	}
}
