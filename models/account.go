package models

import "time"

// Account ist ein registriertes Mitglied der Organisation.
type Account struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Email        string    `json:"email" gorm:"uniqueIndex;not null"`
	FullName     string    `json:"full_name,omitempty"`
	PasswordHash string    `json:"-" gorm:"not null"`
}

// TableName gibt explizit den Tabellennamen an.
func (Account) TableName() string {
	return "accounts"
}

// PasswordReset ist ein einmalig nutzbares Token zum Zurücksetzen des Passworts.
type PasswordReset struct {
	Token     string     `json:"token" gorm:"primaryKey;size:36"`
	CreatedAt time.Time  `json:"created_at"`
	AccountID string     `json:"account_id" gorm:"index;not null"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

// TableName gibt explizit den Tabellennamen an.
func (PasswordReset) TableName() string {
	return "password_resets"
}
