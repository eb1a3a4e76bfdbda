package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"family-admin/internal/domain"
	"family-admin/internal/permission"

	"go.uber.org/zap"
)

// SubjectKey baseline 缓存的 tag：perm:subject:{id}:matrix
func SubjectKey(subjectID string) string {
	return fmt.Sprintf("perm:subject:%s:matrix", subjectID)
}

// BaselineCache 包装 Fetcher：保存最近一次确认的 baseline（远端返回或保存成功）
// 读取总是回源，缓存只做回写和失效，只读场景用 Cached
// 同时实现 permission.Fetcher 和 permission.SaveObserver
type BaselineCache struct {
	next   permission.Fetcher
	kv     KV
	ttl    time.Duration
	logger *zap.Logger
}

var (
	_ permission.Fetcher      = (*BaselineCache)(nil)
	_ permission.SaveObserver = (*BaselineCache)(nil)
)

func NewBaselineCache(next permission.Fetcher, kv KV, ttl time.Duration, logger *zap.Logger) *BaselineCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BaselineCache{next: next, kv: kv, ttl: ttl, logger: logger}
}

// FetchPermissions 每次都从远端拉取，成功后刷新缓存
// 远端失败时不回退到缓存，原样返回错误
func (c *BaselineCache) FetchPermissions(ctx context.Context, subjectID string) (domain.Matrix, error) {
	m, err := c.next.FetchPermissions(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	c.Store(ctx, subjectID, m)
	return m, nil
}

// Cached 读取缓存中的 baseline；未命中、损坏或 Redis 出错时 ok=false
func (c *BaselineCache) Cached(ctx context.Context, subjectID string) (domain.Matrix, bool) {
	key := SubjectKey(subjectID)
	raw, err := c.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Warn("baseline cache get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var recs []domain.PermissionRecord
	if err := json.Unmarshal([]byte(raw), &recs); err != nil {
		c.logger.Warn("corrupt baseline cache entry", zap.String("key", key))
		return nil, false
	}
	m, _ := domain.MatrixFromRecords(recs)
	return m, true
}

// Store 写入已确认的 baseline
func (c *BaselineCache) Store(ctx context.Context, subjectID string, m domain.Matrix) {
	b, err := json.Marshal(m.Records())
	if err != nil {
		c.logger.Warn("encode baseline failed", zap.String("subject_id", subjectID), zap.Error(err))
		return
	}
	if err := c.kv.Set(ctx, SubjectKey(subjectID), string(b), c.ttl); err != nil {
		c.logger.Warn("baseline cache set failed", zap.String("subject_id", subjectID), zap.Error(err))
	}
}

// Invalidate 删除 subject 的缓存 tag
func (c *BaselineCache) Invalidate(ctx context.Context, subjectID string) {
	if err := c.kv.Del(ctx, SubjectKey(subjectID)); err != nil {
		c.logger.Warn("baseline cache invalidate failed", zap.String("subject_id", subjectID), zap.Error(err))
	}
}

// Saved 保存成功：缓存更新为新的 baseline
func (c *BaselineCache) Saved(ctx context.Context, subjectID string, baseline domain.Matrix) {
	c.Store(ctx, subjectID, baseline)
}

// SaveFailed 远端状态不确定（部分请求可能已成功），直接失效
func (c *BaselineCache) SaveFailed(ctx context.Context, subjectID string) {
	c.Invalidate(ctx, subjectID)
}
