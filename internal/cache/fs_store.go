package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// NewStore 以 basePath 为根目录构建磁盘缓存，整个进程复用一份实例。
// 磁盘布局：
//
//	<basePath>/<partition>/<sha1(key)>.body    # 响应正文
//	<basePath>/<partition>/<sha1(key)>.meta    # 状态码/头部/键 JSON
func NewStore(basePath string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &fileStore{
		basePath: abs,
		locks:    make(map[string]*entryLock),
	}, nil
}

// fileStore 通过 entryLock 避免同一条目并发写入，同时复用 basePath。
type fileStore struct {
	basePath string

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// entryMeta 是 .meta 文件的 JSON 结构。
type entryMeta struct {
	Method   string              `json:"method"`
	URL      string              `json:"url"`
	Status   int                 `json:"status"`
	Header   map[string][]string `json:"header"`
	StoredAt time.Time           `json:"stored_at"`
}

func (s *fileStore) Match(ctx context.Context, partition string, key Key) (*Response, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	bodyPath, metaPath, err := s.entryPaths(partition, key)
	if err != nil {
		return nil, err
	}

	rawMeta, err := os.ReadFile(metaPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var meta entryMeta
	if err := json.Unmarshal(rawMeta, &meta); err != nil {
		// 元数据损坏按缓存缺失处理，后续 Put 会覆盖。
		return nil, ErrNotFound
	}

	body, err := os.ReadFile(bodyPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &Response{
		Status:   meta.Status,
		Header:   http.Header(meta.Header).Clone(),
		Body:     body,
		StoredAt: meta.StoredAt,
	}, nil
}

func (s *fileStore) Put(ctx context.Context, partition string, key Key, resp *Response) error {
	if resp == nil {
		return errors.New("nil response")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := s.lockEntry(partition, key)
	defer unlock()

	bodyPath, metaPath, err := s.entryPaths(partition, key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(bodyPath), 0o755); err != nil {
		return err
	}

	storedAt := resp.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now().UTC()
	}
	meta := entryMeta{
		Method:   key.Method,
		URL:      key.URL,
		Status:   resp.Status,
		Header:   resp.Header,
		StoredAt: storedAt,
	}
	rawMeta, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	// 先落正文再落元数据；Match 以 .meta 为准，半写状态视同缺失。
	if err := writeAtomic(bodyPath, resp.Body); err != nil {
		return err
	}
	return writeAtomic(metaPath, rawMeta)
}

func (s *fileStore) Delete(ctx context.Context, partition string, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := s.lockEntry(partition, key)
	defer unlock()

	bodyPath, metaPath, err := s.entryPaths(partition, key)
	if err != nil {
		return err
	}
	if err := os.Remove(metaPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Remove(bodyPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *fileStore) EnsurePartition(ctx context.Context, partition string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir, err := s.partitionDir(partition)
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *fileStore) Partitions(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

func (s *fileStore) DropPartition(ctx context.Context, partition string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir, err := s.partitionDir(partition)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

func (s *fileStore) lockEntry(partition string, key Key) func() {
	lockKey := partition + "::" + key.String()
	s.mu.Lock()
	lock := s.locks[lockKey]
	if lock == nil {
		lock = &entryLock{}
		s.locks[lockKey] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, lockKey)
		}
		s.mu.Unlock()
	}
}

func (s *fileStore) partitionDir(partition string) (string, error) {
	if partition == "" {
		return "", errors.New("partition name required")
	}
	if strings.ContainsAny(partition, "/\\") || partition == "." || partition == ".." {
		return "", fmt.Errorf("invalid partition name: %s", partition)
	}
	return filepath.Join(s.basePath, partition), nil
}

func (s *fileStore) entryPaths(partition string, key Key) (bodyPath, metaPath string, err error) {
	dir, err := s.partitionDir(partition)
	if err != nil {
		return "", "", err
	}
	if key.Method == "" || key.URL == "" {
		return "", "", errors.New("cache key requires method and url")
	}

	sum := sha1.Sum([]byte(key.String()))
	name := hex.EncodeToString(sum[:])
	return filepath.Join(dir, name+".body"), filepath.Join(dir, name+".meta"), nil
}

// writeAtomic 通过临时文件 + rename 写入，失败时清理临时文件。
func writeAtomic(path string, data []byte) error {
	tempFile, err := os.CreateTemp(filepath.Dir(path), ".cache-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, writeErr := tempFile.Write(data)
	closeErr := tempFile.Close()
	if writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tempName)
		return writeErr
	}

	if err := os.Rename(tempName, path); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}
