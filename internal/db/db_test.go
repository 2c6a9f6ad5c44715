package db

import (
	"bytes"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"mattermore-backend/config"
	"mattermore-backend/internal/model"
)

func TestDialector(t *testing.T) {
	assert.Equal(t, "sqlite", dialector("sqlite:file::memory:").Name())
	assert.Equal(t, "postgres", dialector("postgres://user@localhost/mattermore").Name())
}

func TestInit_SQLite(t *testing.T) {
	gormDB, err := Init(&config.DatabaseConfig{DSN: "sqlite:file:dbinit?mode=memory&cache=shared"})
	require.NoError(t, err)
	sqlDB, _ := gormDB.DB()
	defer sqlDB.Close()

	for _, table := range []any{&model.User{}, &model.Fingerprint{}, &model.KeyValue{}, &model.PushSubscription{}} {
		assert.True(t, gormDB.Migrator().HasTable(table))
	}
}

func TestGormLogger_SkipsRecordNotFound(t *testing.T) {
	var buf bytes.Buffer
	testDB, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormLogger(log.New(&buf, "", 0)),
	})
	require.NoError(t, err)
	sqlDB, _ := testDB.DB()
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()
	require.NoError(t, Migrate(testDB))
	buf.Reset()

	var user model.User
	err = testDB.Where("mattermost_id = ?", "nobody").First(&user).Error
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
	assert.Empty(t, buf.String())

	err = testDB.Exec("SELECT * FROM no_such_table").Error
	assert.Error(t, err)
	assert.NotEmpty(t, buf.String(), "real errors are still logged")
}
