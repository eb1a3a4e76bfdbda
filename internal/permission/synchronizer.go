package permission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"family-admin/internal/domain"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Fetcher 读取 subject 的 baseline 矩阵
type Fetcher interface {
	FetchPermissions(ctx context.Context, subjectID string) (domain.Matrix, error)
}

// Updater 提交单个单元格的变更（PATCH /user/{id}/permissions）
type Updater interface {
	UpdatePermission(ctx context.Context, subjectID string, change domain.CellChange) error
}

// Synchronizer 将变更集并发提交到远端
type Synchronizer struct {
	updater     Updater
	maxInFlight int
	logger      *zap.Logger
}

// NewSynchronizer 创建 Synchronizer
// maxInFlight <= 0 表示不限制并发请求数
func NewSynchronizer(updater Updater, maxInFlight int, logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{
		updater:     updater,
		maxInFlight: maxInFlight,
		logger:      logger,
	}
}

// ApplyChanges 每个变更发送一个独立请求，全部完成后返回
// 任意一个失败则返回 *PersistError；已成功的请求不会被撤销，也不做重试
func (s *Synchronizer) ApplyChanges(ctx context.Context, subjectID string, changes []domain.CellChange) error {
	if len(changes) == 0 {
		return nil
	}

	start := time.Now()

	// 不使用 errgroup.WithContext：第一个错误不能取消其它请求
	var g errgroup.Group
	if s.maxInFlight > 0 {
		g.SetLimit(s.maxInFlight)
	}

	var (
		mu     sync.Mutex
		failed []domain.CellChange
		errs   error
	)
	for _, c := range changes {
		c := c
		g.Go(func() error {
			if err := s.updater.UpdatePermission(ctx, subjectID, c); err != nil {
				err = fmt.Errorf("%s: %w", c, err)
				mu.Lock()
				failed = append(failed, c)
				errs = multierr.Append(errs, err)
				mu.Unlock()
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err == nil {
		s.logger.Debug("permission changes applied",
			zap.String("subject_id", subjectID),
			zap.Int("changes", len(changes)),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}

	perr := &PersistError{
		SubjectID: subjectID,
		Total:     len(changes),
		Failed:    sortChanges(failed),
		Err:       errs,
	}
	s.logger.Warn("permission changes failed",
		zap.String("subject_id", subjectID),
		zap.Int("changes", len(changes)),
		zap.Int("failed", len(failed)),
		zap.Duration("duration", time.Since(start)),
		zap.Error(errs),
	)
	return perr
}

// sortChanges 恢复固定的 entity/action 顺序（完成顺序不确定）
func sortChanges(changes []domain.CellChange) []domain.CellChange {
	out := make([]domain.CellChange, 0, len(changes))
	for _, e := range domain.Entities() {
		for _, a := range domain.Actions() {
			for _, c := range changes {
				if c.Entity == e && c.Action == a {
					out = append(out, c)
				}
			}
		}
	}
	return out
}
