package permission

import (
	"context"
	"errors"
	"sync"
	"time"

	"family-admin/internal/domain"

	"go.uber.org/zap"
)

// ErrLoadSuperseded 加载期间又发起了另一个 Load，旧结果被丢弃
var ErrLoadSuperseded = errors.New("permission load superseded by a newer load")

// State 编辑会话状态
type State int

const (
	StateClean State = iota
	StateDirty
	StateSaving
)

func (s State) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateDirty:
		return "dirty"
	case StateSaving:
		return "saving"
	}
	return "unknown"
}

// SaveObserver 保存结果回调（例如更新/失效 baseline 缓存）
type SaveObserver interface {
	Saved(ctx context.Context, subjectID string, baseline domain.Matrix)
	SaveFailed(ctx context.Context, subjectID string)
}

// Editor 单个 subject 的权限编辑会话：持有 Baseline 和 Working Copy
// 同一时间只编辑一个 subject；切换 subject 会丢弃未保存的修改
type Editor struct {
	fetcher      Fetcher
	synchronizer *Synchronizer
	observer     SaveObserver
	logger       *zap.Logger

	mu       sync.Mutex
	subject  domain.Subject
	loaded   bool
	loadSeq  uint64
	baseline domain.Matrix
	working  domain.Matrix
	state    State
}

// NewEditor 创建编辑会话
func NewEditor(fetcher Fetcher, synchronizer *Synchronizer, logger *zap.Logger) *Editor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Editor{
		fetcher:      fetcher,
		synchronizer: synchronizer,
		logger:       logger,
	}
}

// SetObserver 设置保存回调，nil 表示不回调
func (e *Editor) SetObserver(o SaveObserver) {
	e.mu.Lock()
	e.observer = o
	e.mu.Unlock()
}

// Load 加载 subject 的 baseline 并创建 working copy
// 保存进行中时拒绝切换 subject（ErrSaveInFlight）
func (e *Editor) Load(ctx context.Context, subject domain.Subject) error {
	e.mu.Lock()
	if e.state == StateSaving {
		e.mu.Unlock()
		return ErrSaveInFlight
	}
	if e.loaded && e.subject.ID != subject.ID && e.state == StateDirty {
		e.logger.Info("discarding unsaved permission edits",
			zap.String("subject", e.subject.String()),
			zap.Int("changes", len(Diff(e.baseline, e.working))),
		)
	}
	e.loadSeq++
	seq := e.loadSeq
	e.mu.Unlock()

	m, err := e.fetcher.FetchPermissions(ctx, subject.ID)

	e.mu.Lock()
	defer e.mu.Unlock()
	if seq != e.loadSeq {
		return ErrLoadSuperseded
	}
	if e.state == StateSaving {
		return ErrSaveInFlight
	}
	if err != nil {
		e.loaded = false
		e.subject = subject
		e.baseline = nil
		e.working = nil
		e.state = StateClean
		e.logger.Error("load permission baseline failed",
			zap.String("subject", subject.String()),
			zap.Error(err),
		)
		var fe *FetchError
		if errors.As(err, &fe) {
			return err
		}
		return &FetchError{SubjectID: subject.ID, Err: err}
	}

	e.subject = subject
	e.loaded = true
	e.baseline = m.Clone()
	e.working = m.Clone()
	e.state = StateClean
	return nil
}

// Subject 当前 subject；ok=false 表示尚未成功加载
func (e *Editor) Subject() (domain.Subject, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.subject, e.loaded
}

func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Baseline 返回 baseline 副本
func (e *Editor) Baseline() (domain.Matrix, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return nil, ErrNoSubject
	}
	return e.baseline.Clone(), nil
}

// Working 返回 working copy 副本
func (e *Editor) Working() (domain.Matrix, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return nil, ErrNoSubject
	}
	return e.working.Clone(), nil
}

// Set 修改 working copy 中的一个单元格
func (e *Editor) Set(entity domain.Entity, action domain.Action, value bool) error {
	if !entity.Valid() {
		return domain.ErrUnknownEntity
	}
	if !action.Valid() {
		return domain.ErrUnknownAction
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.editableLocked(); err != nil {
		return err
	}
	e.working.Set(entity, action, value)
	e.refreshStateLocked()
	return nil
}

// Toggle 翻转一个单元格，返回新值
func (e *Editor) Toggle(entity domain.Entity, action domain.Action) (bool, error) {
	if !entity.Valid() {
		return false, domain.ErrUnknownEntity
	}
	if !action.Valid() {
		return false, domain.ErrUnknownAction
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.editableLocked(); err != nil {
		return false, err
	}
	v := !e.working.Get(entity, action)
	e.working.Set(entity, action, v)
	e.refreshStateLocked()
	return v, nil
}

// Reset 丢弃本地修改
func (e *Editor) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.editableLocked(); err != nil {
		return err
	}
	e.working = e.baseline.Clone()
	e.state = StateClean
	return nil
}

// Changes 当前未保存的变更
func (e *Editor) Changes() []domain.CellChange {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return nil
	}
	return Diff(e.baseline, e.working)
}

func (e *Editor) HasChanges() bool {
	return len(e.Changes()) > 0
}

// Save 提交变更集
// 成功：baseline 直接替换为 working（不重新拉取）
// 失败：working 回滚到 baseline，返回 *PersistError
func (e *Editor) Save(ctx context.Context) error {
	e.mu.Lock()
	if !e.loaded {
		e.mu.Unlock()
		return ErrNoSubject
	}
	if e.state == StateSaving {
		e.mu.Unlock()
		return ErrSaveInFlight
	}
	changes := Diff(e.baseline, e.working)
	if len(changes) == 0 {
		e.state = StateClean
		e.mu.Unlock()
		return nil
	}
	snapshot := e.working.Clone()
	subject := e.subject
	observer := e.observer
	e.state = StateSaving
	e.mu.Unlock()

	start := time.Now()
	err := e.synchronizer.ApplyChanges(ctx, subject.ID, changes)

	e.mu.Lock()
	if err == nil {
		e.baseline = snapshot
		e.working = snapshot.Clone()
	} else {
		e.working = e.baseline.Clone()
	}
	e.state = StateClean
	e.mu.Unlock()

	if err != nil {
		e.logger.Error("save permissions failed, local edits rolled back",
			zap.String("subject", subject.String()),
			zap.Int("changes", len(changes)),
			zap.Error(err),
		)
		if observer != nil {
			observer.SaveFailed(ctx, subject.ID)
		}
		return err
	}

	e.logger.Info("permissions saved",
		zap.String("subject", subject.String()),
		zap.Int("changes", len(changes)),
		zap.Duration("duration", time.Since(start)),
	)
	if observer != nil {
		observer.Saved(ctx, subject.ID, snapshot.Clone())
	}
	return nil
}

func (e *Editor) editableLocked() error {
	if !e.loaded {
		return ErrNoSubject
	}
	if e.state == StateSaving {
		return ErrSaveInFlight
	}
	return nil
}

func (e *Editor) refreshStateLocked() {
	if HasChanges(e.baseline, e.working) {
		e.state = StateDirty
	} else {
		e.state = StateClean
	}
}
