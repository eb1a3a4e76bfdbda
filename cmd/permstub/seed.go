package main

import (
	"context"
	"errors"
	"fmt"

	"family-admin/internal/domain"
	"family-admin/internal/repository"
)

// demoSubjects 本地联调用的种子数据
var demoSubjects = []domain.SubjectView{
	{
		ID:   "admin",
		Name: "Family Admin",
		Kind: domain.SubjectRole,
		Permissions: []domain.PermissionRecord{
			{Entity: "event", View: true, Create: true, Update: true, Delete: true},
			{Entity: "member", View: true, Create: true, Update: true, Delete: true},
			{Entity: "user", View: true, Create: true, Update: true, Delete: true},
			{Entity: "gallery", View: true, Create: true, Update: true, Delete: true},
			{Entity: "finance", View: true, Create: true, Update: true, Delete: true},
			{Entity: "advertisement", View: true, Create: true, Update: true, Delete: true},
		},
	},
	{
		ID:   "u-1",
		Name: "Amina",
		Kind: domain.SubjectUser,
		Permissions: []domain.PermissionRecord{
			{Entity: "event", View: true, Create: true},
			{Entity: "member", View: true},
			{Entity: "gallery", View: true, Create: true},
		},
	},
	{
		ID:          "u-2",
		Name:        "Bilal",
		Kind:        domain.SubjectUser,
		Permissions: []domain.PermissionRecord{},
	},
}

// seedDemoSubjects 只写入不存在的 subject，已持久化的矩阵保持不变
func seedDemoSubjects(ctx context.Context, repo repository.PermissionsRepository) error {
	for _, s := range demoSubjects {
		_, err := repo.GetSubject(ctx, s.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrSubjectNotFound) {
			return fmt.Errorf("lookup subject %s: %w", s.ID, err)
		}
		if _, err := repo.UpsertSubject(ctx, s); err != nil {
			return fmt.Errorf("seed subject %s: %w", s.ID, err)
		}
	}
	return nil
}
