package store

import (
	"errors"

	"bookhabit/pkg/domain"
)

// ErrNotFound is returned by versioned updates when the book does not exist.
var ErrNotFound = errors.New("book not found")

// ErrVersionConflict is returned when a versioned update lost a race: the
// record changed since the caller read it. Callers re-read and decide
// whether to retry; the update was not applied.
var ErrVersionConflict = errors.New("book version conflict")

// Store defines persistence operations for users, books, and notes.
//
// Daily content is append-only: ReplaceContent is reserved for the
// processing pipeline (which owns overwrite-on-retry semantics) and
// AppendDays for extension batches. Both are compare-and-swap on the book's
// version so concurrent writers get at-most-once application. TotalDays is
// derived from the stored content on every write, never trusted from input.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)

	// books
	CreateBook(domain.Book) error
	GetBook(id string) (domain.Book, bool, error)
	ListBooksByOwner(ownerID string) ([]domain.Book, error)
	ListCompletedByOwner(ownerID string) ([]domain.Book, error)
	DeleteBook(id string) error
	SetStatus(id string, status domain.BookStatus, errMsg string) error
	ReplaceContent(id string, version int64, summary string, principles []string, days []domain.DayContent) (domain.Book, error)
	AppendDays(id string, version int64, days []domain.DayContent) (domain.Book, error)
	SetCurrentDay(id string, version int64, day int) error

	// notes
	SaveNote(domain.Note) error
	GetNote(ownerID, bookID string, day int) (domain.Note, bool, error)
	ListNotesByBook(ownerID, bookID string) ([]domain.Note, error)
}

// SessionStore persists session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
