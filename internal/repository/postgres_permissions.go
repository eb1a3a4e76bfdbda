package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"family-admin/internal/domain"

	"github.com/google/uuid"
)

// PostgresPermissionsRepo 权限存储的 PostgreSQL 实现
// permission_type 沿用单字母代码（R/C/U/D）
type PostgresPermissionsRepo struct {
	db *sql.DB
}

func NewPostgresPermissionsRepo(db *sql.DB) *PostgresPermissionsRepo {
	return &PostgresPermissionsRepo{db: db}
}

var _ PermissionsRepository = (*PostgresPermissionsRepo)(nil)

const permissionsSchema = `
CREATE TABLE IF NOT EXISTS subjects (
	subject_id   TEXT PRIMARY KEY,
	subject_name TEXT NOT NULL DEFAULT '',
	subject_kind TEXT NOT NULL DEFAULT 'user',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS subject_permissions (
	subject_id      TEXT NOT NULL REFERENCES subjects(subject_id) ON DELETE CASCADE,
	entity          TEXT NOT NULL,
	permission_type CHAR(1) NOT NULL CHECK (permission_type IN ('R', 'C', 'U', 'D')),
	granted         BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (subject_id, entity, permission_type)
);`

// EnsureSchema 创建表（幂等）
func (r *PostgresPermissionsRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, permissionsSchema); err != nil {
		return fmt.Errorf("failed to ensure permissions schema: %w", err)
	}
	return nil
}

// GetSubject 查询 subject 及其权限；没有记录的 entity 返回全 false
func (r *PostgresPermissionsRepo) GetSubject(ctx context.Context, subjectID string) (*domain.SubjectView, error) {
	view := &domain.SubjectView{ID: subjectID}
	var kind string
	err := r.db.QueryRowContext(ctx,
		`SELECT subject_name, subject_kind FROM subjects WHERE subject_id = $1`,
		subjectID,
	).Scan(&view.Name, &kind)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSubjectNotFound
		}
		return nil, fmt.Errorf("failed to query subject: %w", err)
	}
	view.Kind = domain.SubjectKind(kind)

	rows, err := r.db.QueryContext(ctx,
		`SELECT entity, permission_type, granted
		 FROM subject_permissions
		 WHERE subject_id = $1`,
		subjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query permissions: %w", err)
	}
	defer rows.Close()

	m := domain.NewMatrix()
	for rows.Next() {
		var entity, code string
		var granted bool
		if err := rows.Scan(&entity, &code, &granted); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		e, err := domain.ParseEntity(entity)
		if err != nil {
			continue
		}
		a, ok := domain.ActionFromCode(strings.TrimSpace(code))
		if !ok {
			continue
		}
		m.Set(e, a, granted)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate permissions: %w", err)
	}

	view.Permissions = m.Records()
	return view, nil
}

// SetPermission 写入单个单元格（UPSERT）；subject 不存在时返回 ErrSubjectNotFound
func (r *PostgresPermissionsRepo) SetPermission(ctx context.Context, subjectID string, change domain.CellChange) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO subject_permissions (subject_id, entity, permission_type, granted, updated_at)
		 SELECT $1::text, $2::text, $3::char(1), $4::boolean, NOW()
		 WHERE EXISTS (SELECT 1 FROM subjects WHERE subject_id = $1)
		 ON CONFLICT (subject_id, entity, permission_type)
		 DO UPDATE SET granted = EXCLUDED.granted, updated_at = NOW()`,
		subjectID, string(change.Entity), change.Action.Code(), change.Value,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert permission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrSubjectNotFound
	}
	return nil
}

// UpsertSubject 在一个事务内写入 subject 和完整矩阵
func (r *PostgresPermissionsRepo) UpsertSubject(ctx context.Context, view domain.SubjectView) (string, error) {
	id := strings.TrimSpace(view.ID)
	if id == "" {
		id = uuid.NewString()
	}
	kind := view.Kind
	if kind == "" {
		kind = domain.SubjectUser
	}
	m, _ := domain.MatrixFromRecords(view.Permissions)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO subjects (subject_id, subject_name, subject_kind)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (subject_id)
		 DO UPDATE SET subject_name = EXCLUDED.subject_name, subject_kind = EXCLUDED.subject_kind`,
		id, view.Name, string(kind),
	); err != nil {
		return "", fmt.Errorf("failed to upsert subject: %w", err)
	}

	for _, e := range domain.Entities() {
		for _, a := range domain.Actions() {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO subject_permissions (subject_id, entity, permission_type, granted, updated_at)
				 VALUES ($1, $2, $3, $4, NOW())
				 ON CONFLICT (subject_id, entity, permission_type)
				 DO UPDATE SET granted = EXCLUDED.granted, updated_at = NOW()`,
				id, string(e), a.Code(), m.Get(e, a),
			); err != nil {
				return "", fmt.Errorf("failed to upsert permission %s.%s: %w", e, a, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return id, nil
}
