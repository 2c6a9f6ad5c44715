package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"mattermore-backend/internal/model"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("record not found")

// Store defines the interface for all relational database operations.
type Store interface {
	FindUserByMattermostID(ctx context.Context, mattermostID string) (*model.User, error)
	FindUserByUsername(ctx context.Context, username string) (*model.User, error)
	FindAuthorizedUserByDoorkey(ctx context.Context, doorkey string) (*model.User, error)
	SaveUser(ctx context.Context, user *model.User) error

	CreateFingerprint(ctx context.Context, fp *model.Fingerprint) error
	FindFingerprint(ctx context.Context, id int) (*model.Fingerprint, error)
	FindActiveFingerprint(ctx context.Context, id int) (*model.Fingerprint, error)
	FindFingerprintByNote(ctx context.Context, userID int64, note string) (*model.Fingerprint, error)
	ActivateFingerprint(ctx context.Context, id int) error
	DeleteFingerprint(ctx context.Context, id int) error
	ClearInactiveFingerprints(ctx context.Context) ([]int, error)
	ListFingerprints(ctx context.Context) ([]model.Fingerprint, error)

	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// DB exposes the underlying handle for handlers that own simple tables.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) FindUserByMattermostID(ctx context.Context, mattermostID string) (*model.User, error) {
	return s.findUser(ctx, "mattermost_id = ?", mattermostID)
}

func (s *gormStore) FindUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.findUser(ctx, "username = ?", username)
}

func (s *gormStore) FindAuthorizedUserByDoorkey(ctx context.Context, doorkey string) (*model.User, error) {
	if doorkey == "" {
		return nil, ErrNotFound
	}
	return s.findUser(ctx, "doorkey = ? AND authorized = ?", doorkey, true)
}

func (s *gormStore) findUser(ctx context.Context, query string, args ...any) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where(query, args...).First(&user).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &user, nil
}

func (s *gormStore) SaveUser(ctx context.Context, user *model.User) error {
	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("failed to save user %q: %w", user.Username, err)
	}
	return nil
}

func (s *gormStore) CreateFingerprint(ctx context.Context, fp *model.Fingerprint) error {
	if err := s.db.WithContext(ctx).Omit("User").Create(fp).Error; err != nil {
		return fmt.Errorf("failed to create fingerprint %d: %w", fp.ID, err)
	}
	return nil
}

func (s *gormStore) FindFingerprint(ctx context.Context, id int) (*model.Fingerprint, error) {
	return s.findFingerprint(ctx, "id = ?", id)
}

func (s *gormStore) FindActiveFingerprint(ctx context.Context, id int) (*model.Fingerprint, error) {
	return s.findFingerprint(ctx, "id = ? AND active = ?", id, true)
}

func (s *gormStore) FindFingerprintByNote(ctx context.Context, userID int64, note string) (*model.Fingerprint, error) {
	return s.findFingerprint(ctx, "user_id = ? AND note = ?", userID, note)
}

func (s *gormStore) findFingerprint(ctx context.Context, query string, args ...any) (*model.Fingerprint, error) {
	var fp model.Fingerprint
	if err := s.db.WithContext(ctx).Preload("User").Where(query, args...).First(&fp).Error; err != nil {
		return nil, notFound(err, "fingerprint")
	}
	return &fp, nil
}

func (s *gormStore) ActivateFingerprint(ctx context.Context, id int) error {
	res := s.db.WithContext(ctx).Model(&model.Fingerprint{}).Where("id = ?", id).Update("active", true)
	if res.Error != nil {
		return fmt.Errorf("failed to activate fingerprint %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) DeleteFingerprint(ctx context.Context, id int) error {
	res := s.db.WithContext(ctx).Delete(&model.Fingerprint{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete fingerprint %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearInactiveFingerprints deletes every pending fingerprint and returns the freed slot ids.
func (s *gormStore) ClearInactiveFingerprints(ctx context.Context) ([]int, error) {
	var ids []int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Fingerprint{}).Where("active = ?", false).Order("id").Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return tx.Delete(&model.Fingerprint{}, ids).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to clear inactive fingerprints: %w", err)
	}
	return ids, nil
}

// ListFingerprints returns all fingerprints, pending ones included, with their owners.
func (s *gormStore) ListFingerprints(ctx context.Context) ([]model.Fingerprint, error) {
	var fps []model.Fingerprint
	if err := s.db.WithContext(ctx).Preload("User").Order("id").Find(&fps).Error; err != nil {
		return nil, fmt.Errorf("failed to list fingerprints: %w", err)
	}
	return fps, nil
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("failed to look up %s: %w", what, err)
}
