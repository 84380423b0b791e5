package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/shellcache/shellcache/internal/config"
)

// InitLogger 按全局配置构建 JSON 结构化日志器。日志落盘失败只降级，
// 不会阻止网关启动：缓存职责优先于日志持久化。
func InitLogger(cfg config.GlobalConfig) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("无法解析日志级别 %q: %w", cfg.LogLevel, err)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})

	if cfg.LogFilePath == "" {
		logger.SetOutput(os.Stdout)
	} else if dirErr := ensureLogDir(cfg.LogFilePath); dirErr != nil {
		// 目录不可写：回退 stdout，并把降级原因同时写到 stderr
		// （此刻结构化输出还没就绪）与新日志器本身。
		fmt.Fprintf(os.Stderr, "logger_fallback: %v\n", dirErr)
		logger.SetOutput(os.Stdout)
		logger.WithFields(logrus.Fields{
			"action": "logger_fallback",
			"path":   cfg.LogFilePath,
		}).Warn(dirErr.Error())
	} else {
		logger.SetOutput(newRotator(cfg))
	}

	// 包级 logrus 与实例保持同一目的地，第三方库的日志不会走丢。
	logrus.SetFormatter(logger.Formatter)
	logrus.SetOutput(logger.Out)
	logrus.SetLevel(level)

	return logger, nil
}

func ensureLogDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建日志目录失败: %w", err)
	}
	return nil
}

func newRotator(cfg config.GlobalConfig) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   cfg.LogFilePath,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   cfg.LogCompress,
		LocalTime:  true,
	}
}
