package database

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/swappnet/swapp/internal/config"
	"github.com/swappnet/swapp/internal/model"
)

func TestOpenMigratesTables(t *testing.T) {
	db, err := Open(config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "sub", "swapp.db")})
	require.NoError(t, err)
	defer Close(db)

	assert.NoError(t, Health(db))
	for _, m := range []interface{}{&model.QueueRecord{}, &model.QueueLog{}, &model.SnapshotRecord{}, &model.PortChangeRecord{}} {
		assert.True(t, db.Migrator().HasTable(m))
	}
}

func TestWithRetry(t *testing.T) {
	calls := 0
	err := WithRetry(nil, func(*gorm.DB) error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	}, 5, 1)
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = WithRetry(nil, func(*gorm.DB) error {
		calls++
		return errors.New("constraint failed")
	}, 5, 1)
	assert.Error(t, err)
	assert.Equal(t, 1, calls, "非锁冲突错误不重试")
}
