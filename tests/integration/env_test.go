package integration

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/shellcache/shellcache/internal/cache"
	"github.com/shellcache/shellcache/internal/client"
	"github.com/shellcache/shellcache/internal/server"
	"github.com/shellcache/shellcache/internal/server/routes"
	"github.com/shellcache/shellcache/internal/worker"
)

const testPageOrigin = "www.example.com"

// testEnv 装配一套完整的网关：磁盘分区、Worker Registry、页面控制器
// 与 Fiber 应用，全部指向同一个 Origin stub。
type testEnv struct {
	app        *fiber.App
	registry   *worker.Registry
	controller *client.Controller
	origin     *originStub
	store      cache.Store
}

func newTestEnv(t *testing.T, register bool) *testEnv {
	t.Helper()

	origin := newOriginStub(t)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store, err := cache.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("create store error: %v", err)
	}

	upstream, err := url.Parse(origin.URL)
	if err != nil {
		t.Fatalf("parse upstream error: %v", err)
	}

	httpClient := &http.Client{Timeout: 2 * time.Second}

	factory := worker.Factory(func(version string) (*worker.Worker, error) {
		return worker.New(worker.Options{
			Store:           store,
			Client:          httpClient,
			Logger:          logger,
			CacheVersion:    version,
			Upstream:        upstream,
			PageOrigin:      testPageOrigin,
			PrecacheRoutes:  []string{"/", "/index.html"},
			WarmRoutes:      []string{"/capabilities.html"},
			CriticalPaths:   []string{"/", "/index.html", "/capabilities.html", "/contact.html"},
			CriticalTimeout: time.Second,
			NetworkTimeout:  time.Second,
		})
	})

	registry, err := worker.NewRegistry(factory, logger)
	if err != nil {
		t.Fatalf("create registry error: %v", err)
	}

	controller, err := client.NewController(client.Options{
		Registry:        registry,
		Logger:          logger,
		CacheVersion:    "v1",
		PageOrigin:      testPageOrigin,
		ExternalOrigins: []string{"fonts.googleapis.com"},
		HoverDelay:      5 * time.Millisecond,
		SampleInterval:  10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("create controller error: %v", err)
	}
	t.Cleanup(controller.Close)

	if register {
		controller.Bootstrap(context.Background())
		if !controller.OfflineReady() {
			t.Fatalf("bootstrap 应完成注册")
		}
	}

	handler, err := worker.NewHandler(worker.HandlerOptions{
		Registry:       registry,
		Client:         httpClient,
		Logger:         logger,
		Upstream:       upstream,
		PageOrigin:     testPageOrigin,
		AnalyticsHosts: []string{"www.google-analytics.com"},
	})
	if err != nil {
		t.Fatalf("create handler error: %v", err)
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Intercept:  handler,
		ListenPort: 5000,
	})
	if err != nil {
		t.Fatalf("create app error: %v", err)
	}
	routes.RegisterControlRoutes(app, registry, controller)

	return &testEnv{
		app:        app,
		registry:   registry,
		controller: controller,
		origin:     origin,
		store:      store,
	}
}

// drain 等待激活实例的后台刷新/预热任务全部落盘。
func (env *testEnv) drain() {
	if w := env.registry.Active(); w != nil {
		w.Drain()
	}
}
