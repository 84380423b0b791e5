// Package client 实现页面侧控制器：负责注册缓存管理器、维护资源提示、
// 基于用户意图的预取、惰性内容激活，以及标准性能信号的采集。
package client
