// Package cache 实现按部署版本分区的响应缓存存储。
// 每个分区名形如 {class}-{version}，条目以 method+URL 为键，
// 保存上游响应的状态码、头部与正文。
package cache
