package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"sync"

	"family-admin/internal/domain"
	"family-admin/internal/repository"

	"go.uber.org/zap"
)

const userPathPrefix = "/user/"

// PermissionsHandler 开发用 stub：GET /user/{id}，PATCH /user/{id}/permissions
type PermissionsHandler struct {
	repo   repository.PermissionsRepository
	logger *zap.Logger

	mu           sync.RWMutex
	failEntities map[domain.Entity]bool
}

func NewPermissionsHandler(repo repository.PermissionsRepository, logger *zap.Logger) *PermissionsHandler {
	return &PermissionsHandler{
		repo:         repo,
		logger:       logger,
		failEntities: make(map[domain.Entity]bool),
	}
}

// SetFailEntities 这些 entity 的 PATCH 一律返回 500（用于演练保存失败和回滚）
func (h *PermissionsHandler) SetFailEntities(entities ...domain.Entity) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failEntities = make(map[domain.Entity]bool, len(entities))
	for _, e := range entities {
		h.failEntities[e] = true
	}
}

func (h *PermissionsHandler) shouldFail(e domain.Entity) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.failEntities[e]
}

func (h *PermissionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, userPathPrefix)
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeJSON(w, http.StatusNotFound, Fail("not found"))
		return
	}

	switch {
	case sub == "":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.GetSubject(w, r, id)
	case sub == "permissions":
		if r.Method != http.MethodPatch {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.UpdatePermission(w, r, id)
	default:
		writeJSON(w, http.StatusNotFound, Fail("not found"))
	}
}

// GetSubject 返回 subject 和完整的 permissions 数组
func (h *PermissionsHandler) GetSubject(w http.ResponseWriter, r *http.Request, id string) {
	view, err := h.repo.GetSubject(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrSubjectNotFound) {
			writeJSON(w, http.StatusNotFound, Fail("subject not found"))
			return
		}
		h.logger.Error("GetSubject failed", zap.String("subject_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to load subject"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(view))
}

// UpdatePermission 写入单个单元格 {entity, action, value}
func (h *PermissionsHandler) UpdatePermission(w http.ResponseWriter, r *http.Request, id string) {
	var payload struct {
		Entity string `json:"entity"`
		Action string `json:"action"`
		Value  *bool  `json:"value"`
	}
	if err := readBodyJSON(r, 1<<16, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	if payload.Value == nil {
		writeJSON(w, http.StatusBadRequest, Fail("value is required"))
		return
	}
	entity, err := domain.ParseEntity(payload.Entity)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	action, err := domain.ParseAction(payload.Action)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	change := domain.CellChange{Entity: entity, Action: action, Value: *payload.Value}

	if h.shouldFail(entity) {
		h.logger.Warn("injected permission update failure",
			zap.String("subject_id", id),
			zap.Stringer("change", change),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("injected failure"))
		return
	}

	if err := h.repo.SetPermission(r.Context(), id, change); err != nil {
		if errors.Is(err, repository.ErrSubjectNotFound) {
			writeJSON(w, http.StatusNotFound, Fail("subject not found"))
			return
		}
		h.logger.Error("UpdatePermission failed",
			zap.String("subject_id", id),
			zap.Stringer("change", change),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to update permission"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(change))
}
