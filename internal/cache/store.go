package cache

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// Class 表示资源分区类别，对应三类检索策略。
type Class string

const (
	ClassCritical Class = "critical"
	ClassStatic   Class = "static"
	ClassDynamic  Class = "dynamic"
)

// Classes 返回一次部署应存在的全部分区类别。
func Classes() []Class {
	return []Class{ClassCritical, ClassStatic, ClassDynamic}
}

// PartitionName 按 {class}-{version} 规则拼接分区名。
// 更换 version 字符串是唯一的整体失效机制。
func PartitionName(class Class, version string) string {
	return string(class) + "-" + version
}

// TaggedWith 判断分区名是否属于指定部署版本。
func TaggedWith(name, version string) bool {
	return strings.HasSuffix(name, "-"+version)
}

// Key 唯一定位一个缓存条目：请求方法 + 绝对 URL。
type Key struct {
	Method string
	URL    string
}

func (k Key) String() string {
	return k.Method + " " + k.URL
}

// Response 是存入分区的响应快照。
type Response struct {
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

// Clone 返回可安全修改的副本，避免调用方篡改缓存内容。
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	clone := &Response{
		Status:   r.Status,
		Header:   r.Header.Clone(),
		Body:     append([]byte(nil), r.Body...),
		StoredAt: r.StoredAt,
	}
	return clone
}

// Store 管理分区化的响应缓存。所有写入通过临时文件 + rename 保证原子性，
// 同一条目的并发写由条目锁串行化，重复写入幂等（last write wins）。
type Store interface {
	// Match 返回指定分区内的缓存响应，不存在时返回 ErrNotFound。
	Match(ctx context.Context, partition string, key Key) (*Response, error)

	// Put 将响应写入分区，分区目录不存在时自动创建。
	Put(ctx context.Context, partition string, key Key, resp *Response) error

	// Delete 删除单个条目，条目不存在时不报错。
	Delete(ctx context.Context, partition string, key Key) error

	// EnsurePartition 创建空分区，分区已存在时为 no-op。
	EnsurePartition(ctx context.Context, partition string) error

	// Partitions 枚举当前存在的全部分区名。
	Partitions(ctx context.Context) ([]string, error)

	// DropPartition 整体删除一个分区及其所有条目。
	DropPartition(ctx context.Context, partition string) error
}

// ErrNotFound 表示缓存不存在。
var ErrNotFound = errors.New("cache entry not found")
