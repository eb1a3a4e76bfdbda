package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"family-admin/internal/cache"
	"family-admin/internal/config"
	"family-admin/internal/domain"
	"family-admin/internal/export"
	"family-admin/internal/httpapi"
	"family-admin/internal/permission"
	"family-admin/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

type stubEnv struct {
	cfg     *config.Config
	handler *httpapi.PermissionsHandler
	repo    *repository.MemoryPermissionsRepo
}

func setupStub(t *testing.T) *stubEnv {
	repo := repository.NewMemoryPermissionsRepo()
	_, err := repo.UpsertSubject(context.Background(), domain.SubjectView{
		ID:   "u-1",
		Name: "Omar",
		Kind: domain.SubjectUser,
		Permissions: []domain.PermissionRecord{
			{Entity: "event", View: true},
		},
	})
	require.NoError(t, err)

	h := httpapi.NewPermissionsHandler(repo, zap.NewNop())
	router := httpapi.NewRouter(zap.NewNop())
	router.RegisterPermissionRoutes(h)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	cfg := &config.Config{}
	cfg.API.BaseURL = srv.URL
	cfg.API.Timeout = 5 * time.Second
	return &stubEnv{cfg: cfg, handler: h, repo: repo}
}

func (s *stubEnv) remote(t *testing.T) domain.Matrix {
	view, err := s.repo.GetSubject(context.Background(), "u-1")
	require.NoError(t, err)
	m, _ := domain.MatrixFromRecords(view.Permissions)
	return m
}

func runCommand(t *testing.T, env *stubEnv, command string, opts options) (string, error) {
	ed, _, cleanup := newEditor(env.cfg, zap.NewNop())
	t.Cleanup(cleanup)
	var out bytes.Buffer
	err := execute(context.Background(), command, opts, ed, &out)
	return out.String(), err
}

// rowFields 返回以 name 开头那一行按空白切分后的字段
func rowFields(out, name string) []string {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == name {
			return fields
		}
	}
	return nil
}

func TestShow_PrintsMatrix(t *testing.T) {
	env := setupStub(t)

	out, err := runCommand(t, env, cmdShow, options{subject: "u-1", kind: "user"})
	require.NoError(t, err)
	assert.Contains(t, out, "SUBJECT user:u-1")
	assert.Equal(t, []string{"ENTITY", "VIEW", "CREATE", "UPDATE", "DELETE"}, rowFields(out, "ENTITY"))
	assert.Equal(t, []string{"event", "x", "-", "-", "-"}, rowFields(out, "event"))
	assert.Equal(t, []string{"finance", "-", "-", "-", "-"}, rowFields(out, "finance"))
}

func TestGrant_SavesChanges(t *testing.T) {
	env := setupStub(t)

	out, err := runCommand(t, env, cmdGrant, options{
		subject: "u-1",
		kind:    "user",
		cells:   []string{"finance.update", "gallery.C"},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "saved 2 change(s) for user:u-1")

	remote := env.remote(t)
	assert.True(t, remote.Get(domain.EntityFinance, domain.ActionUpdate))
	assert.True(t, remote.Get(domain.EntityGallery, domain.ActionCreate))
}

func TestGrant_NoopWhenAlreadyGranted(t *testing.T) {
	env := setupStub(t)

	out, err := runCommand(t, env, cmdGrant, options{subject: "u-1", kind: "user", cells: []string{"event.view"}})
	require.NoError(t, err)
	assert.Contains(t, out, "saved 0 change(s)")
}

func TestRevoke_PartialFailure(t *testing.T) {
	env := setupStub(t)
	env.handler.SetFailEntities(domain.EntityEvent)

	_, err := runCommand(t, env, cmdRevoke, options{subject: "u-1", kind: "user", cells: []string{"event.view"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, permission.ErrPersist)
	assert.True(t, env.remote(t).Get(domain.EntityEvent, domain.ActionView))
}

func TestExport_WritesWorkbookWithPendingChanges(t *testing.T) {
	env := setupStub(t)
	path := filepath.Join(t.TempDir(), "u-1.xlsx")

	out, err := runCommand(t, env, cmdExport, options{
		subject: "u-1",
		kind:    "user",
		cells:   []string{"member.delete"},
		out:     path,
	})
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)

	// 导出不提交修改
	assert.False(t, env.remote(t).Get(domain.EntityMember, domain.ActionDelete))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(export.ChangesSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Member", "Delete", "Yes"}, rows[1])
}

func TestGrant_WithRedisBaselineCache(t *testing.T) {
	env := setupStub(t)
	mr := miniredis.RunT(t)
	env.cfg.Cache.Enabled = true
	env.cfg.Cache.TTL = time.Minute
	env.cfg.Redis.Addr = mr.Addr()

	_, err := runCommand(t, env, cmdGrant, options{subject: "u-1", kind: "user", cells: []string{"user.view"}})
	require.NoError(t, err)
	assert.True(t, mr.Exists(cache.SubjectKey("u-1")))

	// 其他进程修改了远端：show 必须看到新值，而不是缓存
	require.NoError(t, env.repo.SetPermission(context.Background(), "u-1",
		domain.CellChange{Entity: domain.EntityFinance, Action: domain.ActionView, Value: true}))
	out, err := runCommand(t, env, cmdShow, options{subject: "u-1", kind: "user"})
	require.NoError(t, err)
	assert.Equal(t, []string{"user", "x", "-", "-", "-"}, rowFields(out, "user"))
	assert.Equal(t, []string{"finance", "x", "-", "-", "-"}, rowFields(out, "finance"))

	// revoke 基于最新的 baseline，真正发出 PATCH
	out, err = runCommand(t, env, cmdRevoke, options{subject: "u-1", kind: "user", cells: []string{"finance.view"}})
	require.NoError(t, err)
	assert.Contains(t, out, "saved 1 change(s)")
	assert.False(t, env.remote(t).Get(domain.EntityFinance, domain.ActionView))
}

func TestShowCached_ReadsCacheOnly(t *testing.T) {
	env := setupStub(t)
	mr := miniredis.RunT(t)
	env.cfg.Cache.Enabled = true
	env.cfg.Cache.TTL = time.Minute
	env.cfg.Redis.Addr = mr.Addr()

	_, baselines, cleanup := newEditor(env.cfg, zap.NewNop())
	t.Cleanup(cleanup)
	opts := options{subject: "u-1", kind: "user", cached: true}

	var out bytes.Buffer
	assert.Error(t, showCached(context.Background(), opts, baselines, &out))

	_, err := runCommand(t, env, cmdShow, options{subject: "u-1", kind: "user"})
	require.NoError(t, err)

	out.Reset()
	require.NoError(t, showCached(context.Background(), opts, baselines, &out))
	assert.Equal(t, []string{"event", "x", "-", "-", "-"}, rowFields(out.String(), "event"))

	assert.EqualError(t, showCached(context.Background(), opts, nil, &out), "--cached requires CACHE_ENABLED=true")
}

func TestParseCells(t *testing.T) {
	refs, err := parseCells([]string{"Event.create", "advertisement.D"})
	require.NoError(t, err)
	assert.Equal(t, []cellRef{
		{entity: domain.EntityEvent, action: domain.ActionCreate},
		{entity: domain.EntityAdvertisement, action: domain.ActionDelete},
	}, refs)

	for _, bad := range []string{"event", "spaceship.view", "event.manage"} {
		_, err := parseCells([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestRun_ValidatesArguments(t *testing.T) {
	var out bytes.Buffer
	assert.ErrorIs(t, run(nil, &out), errUsage)
	assert.ErrorIs(t, run([]string{"delete"}, &out), errUsage)
	assert.EqualError(t, run([]string{"show"}, &out), "--subject is required")
	assert.EqualError(t, run([]string{"grant", "--subject", "u-1"}, &out), "grant: at least one --cell is required")
	assert.EqualError(t, run([]string{"export", "--subject", "u-1"}, &out), "export: --out is required")
	assert.Error(t, run([]string{"show", "--subject", "u-1", "--kind", "team"}, &out))
	assert.Error(t, run([]string{"show", "--subject", "u-1", "extra"}, &out))
	assert.EqualError(t, run([]string{"grant", "--subject", "u-1", "--cell", "event.view", "--cached"}, &out), "--cached only applies to show")
}
