package permission

import (
	"context"
	"errors"
	"sync"

	"family-admin/internal/domain"
)

var errRemote = errors.New("remote unavailable")

// fakeFetcher 内存 baseline，仅用于单元测试
type fakeFetcher struct {
	mu       sync.Mutex
	matrices map[string]domain.Matrix
	err      error
	calls    int
	// gate 非 nil 时 FetchPermissions 阻塞直到 gate 关闭
	gate chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{matrices: make(map[string]domain.Matrix)}
}

func (f *fakeFetcher) FetchPermissions(ctx context.Context, subjectID string) (domain.Matrix, error) {
	f.mu.Lock()
	gate := f.gate
	f.calls++
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.matrices[subjectID]
	if !ok {
		return domain.NewMatrix(), nil
	}
	return m.Clone(), nil
}

// fakeUpdater 记录收到的变更，可按 entity 注入失败
type fakeUpdater struct {
	mu       sync.Mutex
	received []domain.CellChange
	failOn   map[domain.Entity]bool
	// gate 非 nil 时每个请求阻塞直到 gate 关闭
	gate     chan struct{}
	started  chan struct{}
	inFlight int
	maxSeen  int
}

func newFakeUpdater() *fakeUpdater {
	return &fakeUpdater{failOn: make(map[domain.Entity]bool)}
}

func (u *fakeUpdater) UpdatePermission(ctx context.Context, subjectID string, change domain.CellChange) error {
	u.mu.Lock()
	u.inFlight++
	if u.inFlight > u.maxSeen {
		u.maxSeen = u.inFlight
	}
	gate, started := u.gate, u.started
	u.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.inFlight--
	u.received = append(u.received, change)
	if u.failOn[change.Entity] {
		return errRemote
	}
	return nil
}

func (u *fakeUpdater) Received() []domain.CellChange {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]domain.CellChange, len(u.received))
	copy(out, u.received)
	return out
}

type recordingObserver struct {
	mu     sync.Mutex
	saved  map[string]domain.Matrix
	failed []string
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{saved: make(map[string]domain.Matrix)}
}

func (o *recordingObserver) Saved(ctx context.Context, subjectID string, baseline domain.Matrix) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.saved[subjectID] = baseline
}

func (o *recordingObserver) SaveFailed(ctx context.Context, subjectID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, subjectID)
}
