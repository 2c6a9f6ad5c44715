package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"mattermore-backend/internal/model"
)

func newTestStore(t *testing.T) (Store, *gorm.DB) {
	testDB, err := gorm.Open(sqlite.Open("file::memory:?_foreign_keys=on"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, _ := testDB.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, testDB.AutoMigrate(&model.User{}, &model.Fingerprint{}))
	return NewGormStore(testDB), testDB
}

func seedUser(t *testing.T, s Store, name string, admin bool) *model.User {
	user := &model.User{MattermostID: "mm-" + name, Username: name, Authorized: true, Admin: admin}
	require.NoError(t, s.SaveUser(context.Background(), user))
	return user
}

func TestGormStore_Users(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "alice", false)
	key := "secret-key"
	alice.Doorkey = &key
	require.NoError(t, s.SaveUser(ctx, alice))

	got, err := s.FindUserByMattermostID(ctx, "mm-alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	got, err = s.FindAuthorizedUserByDoorkey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	_, err = s.FindAuthorizedUserByDoorkey(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)

	alice.Authorized = false
	require.NoError(t, s.SaveUser(ctx, alice))
	_, err = s.FindAuthorizedUserByDoorkey(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound, "revoked users lose door API access")

	_, err = s.FindUserByUsername(ctx, "bob")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStore_FingerprintLifecycle(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice", false)

	fp := &model.Fingerprint{ID: 3, UserID: alice.ID, Note: "thumb", EnrolledOn: time.Now()}
	require.NoError(t, s.CreateFingerprint(ctx, fp))

	_, err := s.FindActiveFingerprint(ctx, 3)
	assert.ErrorIs(t, err, ErrNotFound, "pending fingerprints are not active")

	require.NoError(t, s.ActivateFingerprint(ctx, 3))
	got, err := s.FindActiveFingerprint(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.User.Username)

	got, err = s.FindFingerprintByNote(ctx, alice.ID, "thumb")
	require.NoError(t, err)
	assert.Equal(t, 3, got.ID)

	require.NoError(t, s.DeleteFingerprint(ctx, 3))
	assert.ErrorIs(t, s.DeleteFingerprint(ctx, 3), ErrNotFound)
	assert.ErrorIs(t, s.ActivateFingerprint(ctx, 3), ErrNotFound)
}

func TestGormStore_OwnerNoteIsUnique(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice", false)

	require.NoError(t, s.CreateFingerprint(ctx, &model.Fingerprint{ID: 1, UserID: alice.ID, Note: "thumb", EnrolledOn: time.Now()}))
	assert.Error(t, s.CreateFingerprint(ctx, &model.Fingerprint{ID: 2, UserID: alice.ID, Note: "thumb", EnrolledOn: time.Now()}))
}

func TestGormStore_ClearInactiveFingerprints(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice", false)
	bob := seedUser(t, s, "bob", false)

	for _, fp := range []model.Fingerprint{
		{ID: 1, UserID: alice.ID, Note: "thumb", EnrolledOn: time.Now()},
		{ID: 2, UserID: alice.ID, Note: "index", EnrolledOn: time.Now()},
		{ID: 5, UserID: bob.ID, Note: "thumb", EnrolledOn: time.Now()},
	} {
		fp := fp
		require.NoError(t, s.CreateFingerprint(ctx, &fp))
	}
	require.NoError(t, s.ActivateFingerprint(ctx, 2))

	ids, err := s.ClearInactiveFingerprints(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 5}, ids)

	all, err := s.ListFingerprints(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 2, all[0].ID)

	ids, err = s.ClearInactiveFingerprints(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestGormStore_DeletingUserCascades(t *testing.T) {
	s, testDB := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice", false)
	require.NoError(t, s.CreateFingerprint(ctx, &model.Fingerprint{ID: 9, UserID: alice.ID, Note: "thumb", EnrolledOn: time.Now()}))

	require.NoError(t, testDB.Delete(&model.User{}, alice.ID).Error)

	_, err := s.FindFingerprint(ctx, 9)
	assert.ErrorIs(t, err, ErrNotFound)
}
