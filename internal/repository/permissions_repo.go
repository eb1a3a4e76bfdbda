package repository

import (
	"context"
	"errors"

	"family-admin/internal/domain"
)

// ErrSubjectNotFound subject 不存在
var ErrSubjectNotFound = errors.New("subject not found")

// PermissionsRepository 开发 stub 使用的权限存储
// 读取时总是返回完整矩阵（缺失的行补全为全 false）
type PermissionsRepository interface {
	GetSubject(ctx context.Context, subjectID string) (*domain.SubjectView, error)
	SetPermission(ctx context.Context, subjectID string, change domain.CellChange) error
	// UpsertSubject 创建或覆盖 subject 及其全部权限（用于种子数据），返回 subject ID
	UpsertSubject(ctx context.Context, view domain.SubjectView) (string, error)
}
