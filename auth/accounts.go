package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"paper-registry/models"
)

// AccountStore persistiert Accounts und Reset-Tokens.
type AccountStore interface {
	CreateAccount(ctx context.Context, a *models.Account) error
	AccountByEmail(ctx context.Context, email string) (*models.Account, error)
	AccountByID(ctx context.Context, id string) (*models.Account, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	CreateReset(ctx context.Context, r *models.PasswordReset) error
	// ConsumeReset markiert das Token als benutzt, wenn es gültig ist.
	ConsumeReset(ctx context.Context, token string, now time.Time) (*models.PasswordReset, error)
}

// GormAccountStore speichert Accounts in PostgreSQL.
type GormAccountStore struct {
	DB *gorm.DB
}

// NewGormAccountStore erstellt den Store und migriert die Tabellen.
func NewGormAccountStore(db *gorm.DB) (*GormAccountStore, error) {
	if err := db.AutoMigrate(&models.Account{}, &models.PasswordReset{}); err != nil {
		return nil, fmt.Errorf("migrating account tables: %w", err)
	}
	return &GormAccountStore{DB: db}, nil
}

func (s *GormAccountStore) CreateAccount(ctx context.Context, a *models.Account) error {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.Account{}).Where("email = ?", a.Email).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrAccountExists
	}
	if err := s.DB.WithContext(ctx).Create(a).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAccountExists
		}
		return err
	}
	return nil
}

func (s *GormAccountStore) AccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	var a models.Account
	if err := s.DB.WithContext(ctx).Where("email = ?", email).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownAccount
		}
		return nil, err
	}
	return &a, nil
}

func (s *GormAccountStore) AccountByID(ctx context.Context, id string) (*models.Account, error) {
	var a models.Account
	if err := s.DB.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownAccount
		}
		return nil, err
	}
	return &a, nil
}

func (s *GormAccountStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	res := s.DB.WithContext(ctx).Model(&models.Account{}).Where("id = ?", id).Update("password_hash", hash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUnknownAccount
	}
	return nil
}

func (s *GormAccountStore) CreateReset(ctx context.Context, r *models.PasswordReset) error {
	return s.DB.WithContext(ctx).Create(r).Error
}

func (s *GormAccountStore) ConsumeReset(ctx context.Context, token string, now time.Time) (*models.PasswordReset, error) {
	var r models.PasswordReset
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&r, "token = ?", token).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidToken
			}
			return err
		}
		if r.UsedAt != nil || now.After(r.ExpiresAt) {
			return ErrInvalidToken
		}
		res := tx.Model(&models.PasswordReset{}).
			Where("token = ? AND used_at IS NULL", token).
			Update("used_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidToken
		}
		r.UsedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// MemoryAccountStore hält Accounts im Speicher, z.B. für Tests und lokale Läufe.
type MemoryAccountStore struct {
	mu       sync.Mutex
	accounts map[string]models.Account
	resets   map[string]models.PasswordReset
}

// NewMemoryAccountStore erstellt einen leeren Store.
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{
		accounts: map[string]models.Account{},
		resets:   map[string]models.PasswordReset{},
	}
}

func (s *MemoryAccountStore) CreateAccount(_ context.Context, a *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.accounts {
		if existing.Email == a.Email {
			return ErrAccountExists
		}
	}
	now := time.Now()
	a.CreatedAt, a.UpdatedAt = now, now
	s.accounts[a.ID] = *a
	return nil
}

func (s *MemoryAccountStore) AccountByEmail(_ context.Context, email string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == email {
			return &a, nil
		}
	}
	return nil, ErrUnknownAccount
}

func (s *MemoryAccountStore) AccountByID(_ context.Context, id string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrUnknownAccount
	}
	return &a, nil
}

func (s *MemoryAccountStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ErrUnknownAccount
	}
	a.PasswordHash = hash
	a.UpdatedAt = time.Now()
	s.accounts[id] = a
	return nil
}

func (s *MemoryAccountStore) CreateReset(_ context.Context, r *models.PasswordReset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.CreatedAt = time.Now()
	s.resets[r.Token] = *r
	return nil
}

func (s *MemoryAccountStore) ConsumeReset(_ context.Context, token string, now time.Time) (*models.PasswordReset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resets[token]
	if !ok || r.UsedAt != nil || now.After(r.ExpiresAt) {
		return nil, ErrInvalidToken
	}
	r.UsedAt = &now
	s.resets[token] = r
	return &r, nil
}
