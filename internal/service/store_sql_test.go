package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/swappnet/swapp/internal/config"
	"github.com/swappnet/swapp/internal/database"
	"github.com/swappnet/swapp/internal/model"
)

func newSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := database.Open(config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "swapp.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return NewSQLStore(db)
}

func TestSQLStoreQueueLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newSQLStore(t)

	id1, err := s.Enqueue(ctx, "sw1", "Gi1_0_5", "disable")
	require.NoError(t, err)
	_, err = s.Enqueue(ctx, "sw1", "Gi1_0_6", "enable")
	require.NoError(t, err)
	_, err = s.Enqueue(ctx, "sw2", "Gi1_0_1", "enable")
	require.NoError(t, err)

	items, err := s.ListPending(ctx, "sw1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, id1, items[0].ID)

	item, err := ValidateQueueItem(items[0], "_")
	require.NoError(t, err)
	assert.Equal(t, model.VerbDisable, item.Verb)
	assert.Equal(t, "Gi1_0_5", item.PortToken)

	require.NoError(t, s.Delete(ctx, "sw1", id1))
	// 重复删除不报错
	require.NoError(t, s.Delete(ctx, "sw1", id1))
	// 设备键不匹配时不删除
	require.NoError(t, s.Delete(ctx, "sw2", items[1].ID))

	items, err = s.ListPending(ctx, "sw1")
	require.NoError(t, err)
	assert.Len(t, items, 1)

	assert.Error(t, s.Delete(ctx, "sw1", "not-a-number"))
}

func TestSQLStoreRecentLogs(t *testing.T) {
	ctx := context.Background()
	s := newSQLStore(t)

	for i, r := range []string{model.QueueResultSuccess, model.QueueResultFailed, model.QueueResultSuccess} {
		require.NoError(t, s.AppendLog(ctx, "sw1", model.QueueLogEntry{
			ItemID:    string(rune('a' + i)),
			Port:      "Gi1/0/5",
			Verb:      model.VerbEnable,
			Result:    r,
			Attempts:  i + 1,
			Timestamp: time.Now(),
		}))
	}

	logs, err := s.RecentLogs(ctx, "sw1", 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "c", logs[0].ItemID)
	assert.Equal(t, "b", logs[1].ItemID)
	assert.Equal(t, model.QueueResultFailed, logs[1].Result)
	assert.Equal(t, 2, logs[1].Attempts)

	logs, err = s.RecentLogs(ctx, "other", 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestSQLStoreSnapshotsAndChanges(t *testing.T) {
	ctx := context.Background()
	s := newSQLStore(t)

	_, err := s.LatestSnapshot(ctx, "sw1")
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	first := model.NewSnapshot(model.PortRecord{Identifier: "Gi1/0/1", Status: "notconnect", Admin: model.AdminEnabled, Oper: model.OperDown})
	second := first.With(model.PortRecord{Identifier: "Gi1/0/1", Status: "connected", Admin: model.AdminEnabled, Oper: model.OperUp, VlanID: 10})
	require.NoError(t, s.PutSnapshot(ctx, "sw1", first))
	require.NoError(t, s.PutSnapshot(ctx, "sw1", second))

	latest, err := s.LatestSnapshot(ctx, "sw1")
	require.NoError(t, err)
	rec, ok := latest.Get("Gi1/0/1")
	require.True(t, ok)
	assert.Equal(t, "connected", rec.Status)
	assert.Equal(t, 10, rec.VlanID)

	changes := Diff(second, first)
	require.Len(t, changes, 1)
	require.NoError(t, s.RecordChanges(ctx, "sw1", changes))
	require.NoError(t, s.RecordChanges(ctx, "sw1", nil))

	var rows []model.PortChangeRecord
	require.NoError(t, s.db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "Gi1/0/1", rows[0].Port)
	assert.Contains(t, rows[0].Detail, "notconnect -> connected")

	assert.NoError(t, s.Health(ctx))
}
