package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/shellcache/shellcache/internal/cache"
	"github.com/shellcache/shellcache/internal/client"
	"github.com/shellcache/shellcache/internal/config"
	"github.com/shellcache/shellcache/internal/logging"
	"github.com/shellcache/shellcache/internal/server"
	"github.com/shellcache/shellcache/internal/server/routes"
	"github.com/shellcache/shellcache/internal/version"
	"github.com/shellcache/shellcache/internal/worker"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["cache_version"] = cfg.Global.CacheVersion
		fields["precache_routes"] = len(cfg.Manifest.PrecacheRoutes)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	upstream, err := url.Parse(cfg.Global.Upstream)
	if err != nil {
		fmt.Fprintf(stdErr, "解析上游地址失败: %v\n", err)
		return 1
	}

	// 启动遵循"配置 → 磁盘分区 → Worker 工厂 → Registry → 页面控制器
	// → Fiber server"顺序，保证所有请求共享同一套分区与日志实例。
	store, err := cache.NewStore(cfg.Global.StoragePath)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存目录失败: %v\n", err)
		return 1
	}

	httpClient := server.NewUpstreamClient(cfg)

	factory := worker.Factory(func(cacheVersion string) (*worker.Worker, error) {
		return worker.New(worker.Options{
			Store:           store,
			Client:          httpClient,
			Logger:          logger,
			CacheVersion:    cacheVersion,
			Upstream:        upstream,
			PageOrigin:      cfg.Global.PageOrigin,
			PrecacheRoutes:  cfg.Manifest.PrecacheRoutes,
			FontURLs:        cfg.Manifest.FontURLs,
			WarmRoutes:      cfg.Manifest.WarmRoutes,
			CriticalPaths:   cfg.Manifest.CriticalPaths,
			CriticalTimeout: cfg.Global.CriticalTimeout.DurationValue(),
			NetworkTimeout:  cfg.Global.NetworkTimeout.DurationValue(),
		})
	})

	registry, err := worker.NewRegistry(factory, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "构建 Worker 注册表失败: %v\n", err)
		return 1
	}

	controller, err := client.NewController(client.Options{
		Registry:        registry,
		Logger:          logger,
		CacheVersion:    cfg.Global.CacheVersion,
		PageOrigin:      cfg.Global.PageOrigin,
		ExternalOrigins: cfg.Manifest.ExternalOrigins,
		PreloadAssets:   preloadAssets(cfg.Manifest.PrecacheRoutes),
		HoverDelay:      cfg.Global.HoverDelay.DurationValue(),
		SampleInterval:  cfg.Global.SampleInterval.DurationValue(),
	})
	if err != nil {
		fmt.Fprintf(stdErr, "构建页面控制器失败: %v\n", err)
		return 1
	}
	controller.Bootstrap(context.Background())
	defer controller.Close()

	fields := logging.BaseFields("startup", opts.configPath)
	fields["cache_version"] = cfg.Global.CacheVersion
	fields["listen_port"] = cfg.Global.ListenPort
	fields["upstream"] = cfg.Global.Upstream
	fields["offline_ready"] = controller.OfflineReady()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, registry, controller, httpClient, upstream, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("shellcache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 SHELLCACHE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("SHELLCACHE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

// preloadAssets 从预缓存清单里挑出静态资源条目，作为 Bootstrap 阶段
// 的 preload 提示；shell 页面本身不走 preload。
func preloadAssets(precacheRoutes []string) []string {
	var assets []string
	for _, route := range precacheRoutes {
		if strings.HasPrefix(route, "/assets/") {
			assets = append(assets, route)
		}
	}
	return assets
}

func startHTTPServer(cfg *config.Config, registry *worker.Registry, controller *client.Controller, httpClient *http.Client, upstream *url.URL, logger *logrus.Logger) error {
	handler, err := worker.NewHandler(worker.HandlerOptions{
		Registry:       registry,
		Client:         httpClient,
		Logger:         logger,
		Upstream:       upstream,
		PageOrigin:     cfg.Global.PageOrigin,
		AnalyticsHosts: cfg.Manifest.AnalyticsHosts,
	})
	if err != nil {
		return err
	}

	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Intercept:  handler,
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterControlRoutes(app, registry, controller)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
