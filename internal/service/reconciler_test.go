package service

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swappnet/swapp/internal/model"
)

func port(id, status string, admin model.AdminState) model.PortRecord {
	return model.PortRecord{Identifier: id, Status: status, Admin: admin, Oper: model.OperDown}
}

func baseSnapshot() model.Snapshot {
	return model.NewSnapshot(
		port("Gi1/0/1", "connected", model.AdminEnabled),
		port("Gi1/0/2", "notconnect", model.AdminEnabled),
		port("Gi1/0/3", "disabled", model.AdminDisabled),
	)
}

func TestDiffIdenticalIsEmpty(t *testing.T) {
	s := baseSnapshot()
	assert.Empty(t, Diff(s, s))
	assert.False(t, HasChanged(s, s))
}

func TestDiffReportsOnlyNewPort(t *testing.T) {
	s := baseSnapshot()
	grown := s.With(port("Gi1/0/9", "notconnect", model.AdminEnabled))
	changes := Diff(grown, s)
	require.Len(t, changes, 1)
	assert.Equal(t, "Gi1/0/9", changes[0].Identifier)
	assert.Equal(t, ChangeAdded, changes[0].Kind)
	assert.True(t, HasChanged(grown, s))
}

func TestDiffStatusAndAdminChanges(t *testing.T) {
	s := baseSnapshot()
	next := s.With(
		port("Gi1/0/2", "connected", model.AdminEnabled),
		port("Gi1/0/3", "notconnect", model.AdminEnabled),
	)
	changes := Diff(next, s)
	require.Len(t, changes, 2)
	assert.Equal(t, "Gi1/0/2: notconnect -> connected", changes[0].String())
	assert.Equal(t, "Gi1/0/3: disabled -> notconnect, admin disabled -> enabled", changes[1].String())
}

func TestDiffReportsRemovedPorts(t *testing.T) {
	s := baseSnapshot()
	shrunk := model.NewSnapshot(port("Gi1/0/1", "connected", model.AdminEnabled))
	changes := Diff(shrunk, s)
	require.Len(t, changes, 2)
	assert.Equal(t, ChangeRemoved, changes[0].Kind)
	assert.Equal(t, "Gi1/0/2: removed", changes[0].String())
}

func TestDiffIgnoresUncomparedFields(t *testing.T) {
	s := baseSnapshot()
	rec, _ := s.Get("Gi1/0/1")
	rec.VlanID = 30
	rec.Description = "renamed"
	assert.Empty(t, Diff(s.With(rec), s))
}

func TestReconcilerReplacesPrevious(t *testing.T) {
	r := NewReconciler(100)
	s := baseSnapshot()

	changes, changed := r.Reconcile(s)
	assert.True(t, changed, "首份快照视为变化以便落库")
	assert.Empty(t, changes)

	_, changed = r.Reconcile(s)
	assert.False(t, changed)

	next := s.With(port("Gi1/0/2", "connected", model.AdminEnabled))
	changes, changed = r.Reconcile(next)
	assert.True(t, changed)
	require.Len(t, changes, 1)
	assert.Equal(t, next, r.Previous())

	// 再次提交同一份快照不再报告变化
	_, changed = r.Reconcile(next)
	assert.False(t, changed)
	assert.Len(t, r.History(0), 1)
}

func TestReconcilerHistoryBounded(t *testing.T) {
	r := NewReconciler(5)
	r.Reconcile(model.NewSnapshot())
	for i := 1; i <= 8; i++ {
		r.Reconcile(model.NewSnapshot(port(fmt.Sprintf("Gi1/0/%d", i), "connected", model.AdminEnabled)))
	}
	h := r.History(0)
	assert.Len(t, h, 5)
	assert.Equal(t, Change{Identifier: "Gi1/0/8", Kind: ChangeAdded}, Change{Identifier: h[3].Identifier, Kind: h[3].Kind})
	assert.Equal(t, ChangeRemoved, h[4].Kind)
	assert.Len(t, r.History(2), 2)
}

func TestReconcilerHistoryEmptyIsNotNil(t *testing.T) {
	r := NewReconciler(5)
	h := r.History(10)
	require.NotNil(t, h)
	assert.Empty(t, h)

	r.Reconcile(baseSnapshot())
	data, err := json.Marshal(map[string]interface{}{"changes": r.History(0)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"changes":[]}`, string(data))
}
