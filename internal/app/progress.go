package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bookhabit/pkg/ai"
	"bookhabit/pkg/domain"
	"bookhabit/pkg/store"
)

// casRetries bounds how often a pointer move is retried after losing a
// version race.
const casRetries = 3

// Advance moves the reading pointer one day forward. Advancing past the
// last available day first appends a fresh extension batch, so the pointer
// never ends a call beyond totalDays.
func (a *App) Advance(ctx context.Context, user domain.User, bookID string) (domain.Book, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		book, err := a.GetBook(user, bookID)
		if err != nil {
			return domain.Book{}, err
		}
		if book.Status != domain.StatusCompleted {
			return domain.Book{}, ErrNotCompleted
		}

		version := book.Version
		if book.CurrentDay >= book.TotalDays {
			meta := ai.BookMeta{Title: book.Title, Author: book.Author}
			days := a.generator.Extend(ctx, meta, book.TotalDays, ExtensionBatchDays)
			extended, err := a.store.AppendDays(book.ID, version, days)
			if err != nil {
				if errors.Is(err, store.ErrVersionConflict) {
					continue
				}
				return domain.Book{}, fmt.Errorf("extend book: %w", err)
			}
			book = extended
			version = extended.Version
		}

		next := book.CurrentDay + 1
		if next > book.TotalDays {
			// Extension must have grown the book; anything else is a bug.
			return domain.Book{}, fmt.Errorf("no day %d to advance to", next)
		}
		if err := a.store.SetCurrentDay(book.ID, version, next); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				continue
			}
			return domain.Book{}, fmt.Errorf("advance pointer: %w", err)
		}
		book.CurrentDay = next
		book.Version = version + 1
		return book, nil
	}
	return domain.Book{}, store.ErrVersionConflict
}

// Retreat moves the reading pointer one day back, flooring at day 1.
func (a *App) Retreat(ctx context.Context, user domain.User, bookID string) (domain.Book, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		book, err := a.GetBook(user, bookID)
		if err != nil {
			return domain.Book{}, err
		}
		if book.Status != domain.StatusCompleted {
			return domain.Book{}, ErrNotCompleted
		}
		if book.CurrentDay <= 1 {
			return book, nil
		}
		prev := book.CurrentDay - 1
		if err := a.store.SetCurrentDay(book.ID, book.Version, prev); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				continue
			}
			return domain.Book{}, fmt.Errorf("retreat pointer: %w", err)
		}
		book.CurrentDay = prev
		book.Version++
		return book, nil
	}
	return domain.Book{}, store.ErrVersionConflict
}

// SaveNote upserts the user's note for one day of a book.
func (a *App) SaveNote(user domain.User, bookID string, day int, text string) (domain.Note, error) {
	book, err := a.GetBook(user, bookID)
	if err != nil {
		return domain.Note{}, err
	}
	if day < 1 || day > book.TotalDays {
		return domain.Note{}, fmt.Errorf("%w: day %d out of range 1..%d", ErrInvalidInput, day, book.TotalDays)
	}
	if strings.TrimSpace(text) == "" {
		return domain.Note{}, fmt.Errorf("%w: note text required", ErrInvalidInput)
	}
	now := time.Now().UTC()
	note := domain.Note{
		OwnerID:   user.ID,
		BookID:    bookID,
		Day:       day,
		Text:      text,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.SaveNote(note); err != nil {
		return domain.Note{}, fmt.Errorf("save note: %w", err)
	}
	return note, nil
}

// ListNotes returns the user's notes for a book ordered by day.
func (a *App) ListNotes(user domain.User, bookID string) ([]domain.Note, error) {
	if _, err := a.GetBook(user, bookID); err != nil {
		return nil, err
	}
	notes, err := a.store.ListNotesByBook(user.ID, bookID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return notes, nil
}

// GetProgress reports the user's position in a book, the note streak, and
// the completion percentage.
func (a *App) GetProgress(_ context.Context, user domain.User, bookID string) (domain.Progress, error) {
	book, err := a.GetBook(user, bookID)
	if err != nil {
		return domain.Progress{}, err
	}
	notes, err := a.store.ListNotesByBook(user.ID, bookID)
	if err != nil {
		return domain.Progress{}, fmt.Errorf("list notes: %w", err)
	}
	progress := domain.Progress{
		BookID:        bookID,
		CurrentDay:    book.CurrentDay,
		TotalDays:     book.TotalDays,
		CurrentStreak: noteStreak(notes, book.CurrentDay),
	}
	if book.TotalDays > 0 {
		progress.CompletionRate = book.CurrentDay * 100 / book.TotalDays
	}
	return progress, nil
}

// noteStreak counts consecutive noted days starting at day 1, never past
// the reading pointer. Notes arrive ordered by day.
func noteStreak(notes []domain.Note, currentDay int) int {
	streak := 0
	for _, n := range notes {
		if n.Day != streak+1 || n.Day > currentDay {
			break
		}
		streak++
	}
	return streak
}

// GetStats aggregates reading activity over the user's completed books.
func (a *App) GetStats(user domain.User) (domain.Stats, error) {
	books, err := a.store.ListCompletedByOwner(user.ID)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("list completed books: %w", err)
	}
	stats := domain.Stats{TotalBooks: len(books)}
	for _, b := range books {
		stats.TotalDays += b.TotalDays
		stats.CompletedDays += b.CurrentDay
	}
	return stats, nil
}
