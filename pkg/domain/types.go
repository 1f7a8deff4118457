package domain

import (
	"strings"
	"time"
)

type BookStatus string

const (
	StatusProcessing BookStatus = "processing"
	StatusCompleted  BookStatus = "completed"
	StatusFailed     BookStatus = "failed"
)

// SourceMethod identifies how a book entered the library.
type SourceMethod string

const (
	SourceFile  SourceMethod = "file"
	SourceURL   SourceMethod = "url"
	SourceDrive SourceMethod = "drive"
	SourceISBN  SourceMethod = "isbn"
)

// DayContent is one day's bundle of generated reading material.
// Day numbers are 1-based and contiguous within a book.
type DayContent struct {
	Day         int    `json:"day"`
	Lesson      string `json:"lesson"`
	Exercise    string `json:"exercise"`
	Affirmation string `json:"affirmation"`
	Thought     string `json:"thought"`
}

// FillMissing replaces blank fields with their "No ... available"
// placeholders so a day is never served with empty sections.
func (d DayContent) FillMissing() DayContent {
	if strings.TrimSpace(d.Lesson) == "" {
		d.Lesson = "No lesson available"
	}
	if strings.TrimSpace(d.Exercise) == "" {
		d.Exercise = "No exercise available"
	}
	if strings.TrimSpace(d.Affirmation) == "" {
		d.Affirmation = "No affirmation available"
	}
	if strings.TrimSpace(d.Thought) == "" {
		d.Thought = "No thought available"
	}
	return d
}

// Book is a user's library entry together with its generated daily plan.
// TotalDays is always kept equal to len(DailyContent); Version guards
// concurrent content and pointer updates.
type Book struct {
	ID               string       `json:"id"`
	OwnerID          string       `json:"ownerId"`
	Title            string       `json:"title"`
	Author           string       `json:"author"`
	Method           SourceMethod `json:"method"`
	OriginalFilename string       `json:"originalFilename,omitempty"`
	StorageKey       string       `json:"-"`
	SourceURL        string       `json:"sourceUrl,omitempty"`
	DriveURL         string       `json:"driveUrl,omitempty"`
	ISBN             string       `json:"isbn,omitempty"`
	SizeBytes        int64        `json:"sizeBytes,omitempty"`
	Status           BookStatus   `json:"status"`
	ErrorMessage     string       `json:"errorMessage,omitempty"`
	Summary          string       `json:"summary"`
	KeyPrinciples    []string     `json:"keyPrinciples"`
	DailyContent     []DayContent `json:"dailyContent"`
	CurrentDay       int          `json:"currentDay"`
	TotalDays        int          `json:"totalDays"`
	Version          int64        `json:"-"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Note is a user's journal entry for one day of one book.
// At most one note exists per (owner, book, day); saving overwrites.
type Note struct {
	OwnerID   string    `json:"ownerId"`
	BookID    string    `json:"bookId"`
	Day       int       `json:"day"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Stats aggregates reading activity across a user's completed books.
type Stats struct {
	TotalBooks    int `json:"totalBooks"`
	TotalDays     int `json:"totalDays"`
	CompletedDays int `json:"completedDays"`
}

// Progress describes a user's position within one book.
// CurrentStreak counts consecutive noted days starting at day 1, capped at
// the current reading day.
type Progress struct {
	BookID         string `json:"bookId"`
	CurrentDay     int    `json:"currentDay"`
	TotalDays      int    `json:"totalDays"`
	CurrentStreak  int    `json:"currentStreak"`
	CompletionRate int    `json:"completionRate"`
}
