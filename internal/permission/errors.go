package permission

import (
	"errors"
	"fmt"

	"family-admin/internal/domain"
)

var (
	// ErrFetch baseline 加载失败（errors.Is 匹配 *FetchError）
	ErrFetch = errors.New("permission baseline fetch failed")
	// ErrPersist 变更集保存失败（errors.Is 匹配 *PersistError）
	ErrPersist = errors.New("permission change-set persist failed")
	// ErrSaveInFlight 保存进行中，拒绝重入（不排队）
	ErrSaveInFlight = errors.New("permission save already in flight")
	// ErrNoSubject 尚未加载任何 subject
	ErrNoSubject = errors.New("no subject loaded")
)

// FetchError baseline 无法加载；没有 working copy 被创建
type FetchError struct {
	SubjectID string
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch permissions for subject %s: %v", e.SubjectID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// PersistError 一个或多个单元格更新失败
// 已成功的请求不会回滚；Failed 仅用于诊断日志
type PersistError struct {
	SubjectID string
	Total     int
	Failed    []domain.CellChange
	// Err 由 multierr 合并的所有单元格错误
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist permissions for subject %s: %d of %d updates failed: %v",
		e.SubjectID, len(e.Failed), e.Total, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

func (e *PersistError) Is(target error) bool { return target == ErrPersist }
