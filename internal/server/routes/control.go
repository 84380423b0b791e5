package routes

import (
	"github.com/gofiber/fiber/v3"

	"github.com/shellcache/shellcache/internal/client"
	"github.com/shellcache/shellcache/internal/worker"
)

// RegisterControlRoutes 暴露 /-/ 下的控制与诊断接口。这些路由绕过
// 请求拦截，直接操作 Registry 与页面控制器。
func RegisterControlRoutes(app *fiber.App, registry *worker.Registry, controller *client.Controller) {
	if app == nil || registry == nil {
		return
	}

	// POST /-/command 接收页面侧的类型化命令。未知命令在解码阶段
	// 即被拒绝，永远不会静默忽略。
	app.Post("/-/command", func(c fiber.Ctx) error {
		cmd, err := worker.DecodeCommand(c.Body())
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_command"})
		}
		if err := registry.Dispatch(c.Context(), cmd); err != nil {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "command_failed"})
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
	})

	app.Get("/-/status", func(c fiber.Ctx) error {
		payload := fiber.Map{
			"active":  encodeWorker(registry.Active()),
			"waiting": encodeWorker(registry.Waiting()),
		}
		if active := registry.Active(); active != nil {
			partitions, err := active.Partitions(c.Context())
			if err == nil {
				payload["partitions"] = partitions
			}
		}
		return c.JSON(payload)
	})

	if controller != nil {
		app.Get("/-/metrics", func(c fiber.Ctx) error {
			return c.JSON(controller.Metrics())
		})

		app.Get("/-/hints", func(c fiber.Ctx) error {
			return c.JSON(fiber.Map{"hints": controller.Hints()})
		})
	}
}

func encodeWorker(w *worker.Worker) fiber.Map {
	if w == nil {
		return nil
	}
	return fiber.Map{
		"version": w.Version(),
		"state":   string(w.State()),
	}
}
