package permission

import (
	"context"
	"errors"
	"testing"

	"family-admin/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func allChanges(value bool) []domain.CellChange {
	var out []domain.CellChange
	for _, e := range domain.Entities() {
		for _, a := range domain.Actions() {
			out = append(out, domain.CellChange{Entity: e, Action: a, Value: value})
		}
	}
	return out
}

func TestApplyChanges_EmptyIssuesNoRequests(t *testing.T) {
	u := newFakeUpdater()
	s := NewSynchronizer(u, 0, zap.NewNop())

	require.NoError(t, s.ApplyChanges(context.Background(), "u-1", nil))
	assert.Empty(t, u.Received())
}

func TestApplyChanges_SendsEveryChange(t *testing.T) {
	u := newFakeUpdater()
	s := NewSynchronizer(u, 0, zap.NewNop())
	changes := allChanges(true)

	require.NoError(t, s.ApplyChanges(context.Background(), "u-1", changes))
	assert.ElementsMatch(t, changes, u.Received())
}

func TestApplyChanges_IssuesRequestsConcurrently(t *testing.T) {
	u := newFakeUpdater()
	u.gate = make(chan struct{})
	u.started = make(chan struct{}, 8)
	s := NewSynchronizer(u, 0, zap.NewNop())
	changes := allChanges(true)[:4]

	done := make(chan error, 1)
	go func() { done <- s.ApplyChanges(context.Background(), "u-1", changes) }()

	// 四个请求都必须在任何一个完成之前开始
	for i := 0; i < len(changes); i++ {
		<-u.started
	}
	close(u.gate)

	require.NoError(t, <-done)
	assert.Equal(t, len(changes), u.maxSeen)
}

func TestApplyChanges_RespectsMaxInFlight(t *testing.T) {
	u := newFakeUpdater()
	s := NewSynchronizer(u, 2, zap.NewNop())

	require.NoError(t, s.ApplyChanges(context.Background(), "u-1", allChanges(true)))
	assert.LessOrEqual(t, u.maxSeen, 2)
	assert.Len(t, u.Received(), len(domain.Entities())*len(domain.Actions()))
}

func TestApplyChanges_FailureWaitsForAllAndAggregates(t *testing.T) {
	u := newFakeUpdater()
	u.failOn[domain.EntityFinance] = true
	u.failOn[domain.EntityMember] = true
	s := NewSynchronizer(u, 0, zap.NewNop())

	changes := []domain.CellChange{
		{Entity: domain.EntityEvent, Action: domain.ActionCreate, Value: true},
		{Entity: domain.EntityMember, Action: domain.ActionView, Value: true},
		{Entity: domain.EntityFinance, Action: domain.ActionDelete, Value: false},
	}
	err := s.ApplyChanges(context.Background(), "u-9", changes)
	require.Error(t, err)

	// 所有请求都已发出（成功的请求不会被撤销）
	assert.ElementsMatch(t, changes, u.Received())

	var perr *PersistError
	require.True(t, errors.As(err, &perr))
	assert.True(t, errors.Is(err, ErrPersist))
	assert.True(t, errors.Is(err, errRemote))
	assert.Equal(t, "u-9", perr.SubjectID)
	assert.Equal(t, 3, perr.Total)
	assert.Equal(t, []domain.CellChange{changes[1], changes[2]}, perr.Failed)
	assert.Contains(t, err.Error(), "2 of 3 updates failed")
}
