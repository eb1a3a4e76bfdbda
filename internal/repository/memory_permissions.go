package repository

import (
	"context"
	"strings"
	"sync"

	"family-admin/internal/domain"

	"github.com/google/uuid"
)

type memorySubject struct {
	name   string
	kind   domain.SubjectKind
	matrix domain.Matrix
}

// MemoryPermissionsRepo 内存实现（DB 不可用时的开发回退）
type MemoryPermissionsRepo struct {
	mu       sync.RWMutex
	subjects map[string]*memorySubject
}

func NewMemoryPermissionsRepo() *MemoryPermissionsRepo {
	return &MemoryPermissionsRepo{subjects: make(map[string]*memorySubject)}
}

var _ PermissionsRepository = (*MemoryPermissionsRepo)(nil)

func (r *MemoryPermissionsRepo) GetSubject(ctx context.Context, subjectID string) (*domain.SubjectView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subjects[subjectID]
	if !ok {
		return nil, ErrSubjectNotFound
	}
	return &domain.SubjectView{
		ID:          subjectID,
		Name:        s.name,
		Kind:        s.kind,
		Permissions: s.matrix.Records(),
	}, nil
}

func (r *MemoryPermissionsRepo) SetPermission(ctx context.Context, subjectID string, change domain.CellChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subjects[subjectID]
	if !ok {
		return ErrSubjectNotFound
	}
	s.matrix.Set(change.Entity, change.Action, change.Value)
	return nil
}

// UpsertSubject ID 为空时生成新的 UUID
func (r *MemoryPermissionsRepo) UpsertSubject(ctx context.Context, view domain.SubjectView) (string, error) {
	id := strings.TrimSpace(view.ID)
	if id == "" {
		id = uuid.NewString()
	}
	m, _ := domain.MatrixFromRecords(view.Permissions)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects[id] = &memorySubject{name: view.Name, kind: view.Kind, matrix: m}
	return id, nil
}
