package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string    `gorm:"primaryKey"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	Role         string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type BookModel struct {
	ID               string `gorm:"primaryKey"`
	OwnerID          string `gorm:"not null;index"`
	Title            string `gorm:"not null"`
	Author           string `gorm:"not null"`
	Method           string `gorm:"not null"`
	OriginalFilename string
	StorageKey       string
	SourceURL        string
	DriveURL         string
	ISBN             string
	SizeBytes        int64
	Status           string `gorm:"not null;index"`
	ErrorMessage     string
	Summary          string         `gorm:"type:text"`
	KeyPrinciples    datatypes.JSON `gorm:"type:jsonb"`
	DailyContent     datatypes.JSON `gorm:"type:jsonb"`
	CurrentDay       int            `gorm:"not null;default:1"`
	TotalDays        int            `gorm:"not null;default:0"`
	Version          int64          `gorm:"not null;default:0"`
	CreatedAt        time.Time      `gorm:"not null"`
	UpdatedAt        time.Time      `gorm:"not null"`
}

type NoteModel struct {
	OwnerID   string    `gorm:"primaryKey"`
	BookID    string    `gorm:"primaryKey;index"`
	Day       int       `gorm:"primaryKey"`
	Text      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
