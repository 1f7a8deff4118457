package store

import (
	"errors"
	"testing"
	"time"

	"bookhabit/pkg/domain"
)

func seedBook(t *testing.T, s *MemoryStore, id, owner string) domain.Book {
	t.Helper()
	now := time.Now().UTC()
	book := domain.Book{
		ID:         id,
		OwnerID:    owner,
		Title:      "T",
		Author:     "A",
		Method:     domain.SourceFile,
		Status:     domain.StatusProcessing,
		CurrentDay: 1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.CreateBook(book); err != nil {
		t.Fatalf("create book: %v", err)
	}
	got, ok, err := s.GetBook(id)
	if err != nil || !ok {
		t.Fatalf("get book: ok=%v err=%v", ok, err)
	}
	return got
}

func days(n int) []domain.DayContent {
	out := make([]domain.DayContent, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.DayContent{Day: i + 1, Lesson: "l", Exercise: "e", Affirmation: "a", Thought: "t"})
	}
	return out
}

func TestReplaceContentCompletesAndCounts(t *testing.T) {
	s := NewMemoryStore()
	book := seedBook(t, s, "b1", "u1")

	updated, err := s.ReplaceContent("b1", book.Version, "summary", []string{"p1"}, days(5))
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if updated.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %q", updated.Status)
	}
	if updated.TotalDays != 5 || len(updated.DailyContent) != 5 {
		t.Fatalf("day counts wrong: total=%d len=%d", updated.TotalDays, len(updated.DailyContent))
	}
	if updated.Version != book.Version+1 {
		t.Fatalf("version not bumped: %d -> %d", book.Version, updated.Version)
	}
}

func TestVersionedUpdatesRejectStaleVersion(t *testing.T) {
	s := NewMemoryStore()
	book := seedBook(t, s, "b1", "u1")

	if _, err := s.ReplaceContent("b1", book.Version, "summary", nil, days(5)); err != nil {
		t.Fatalf("replace: %v", err)
	}

	// All versioned updates with the old version must fail.
	if _, err := s.ReplaceContent("b1", book.Version, "other", nil, days(3)); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict on replace, got %v", err)
	}
	if _, err := s.AppendDays("b1", book.Version, days(1)); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict on append, got %v", err)
	}
	if err := s.SetCurrentDay("b1", book.Version, 2); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict on pointer move, got %v", err)
	}

	if _, err := s.AppendDays("missing", 0, days(1)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAppendDaysRenumbersContiguously(t *testing.T) {
	s := NewMemoryStore()
	book := seedBook(t, s, "b1", "u1")
	completed, err := s.ReplaceContent("b1", book.Version, "summary", nil, days(5))
	if err != nil {
		t.Fatalf("replace: %v", err)
	}

	// Batch numbered 6..15 by the caller; store re-derives 1..15 overall.
	batch := make([]domain.DayContent, 0, 10)
	for i := 0; i < 10; i++ {
		batch = append(batch, domain.DayContent{Day: 6 + i, Lesson: "x", Exercise: "x", Affirmation: "x", Thought: "x"})
	}
	extended, err := s.AppendDays("b1", completed.Version, batch)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if extended.TotalDays != 15 {
		t.Fatalf("expected 15 days, got %d", extended.TotalDays)
	}
	for i, day := range extended.DailyContent {
		if day.Day != i+1 {
			t.Fatalf("index %d has day %d", i, day.Day)
		}
	}
}

func TestListBooksByOwnerAndCompleted(t *testing.T) {
	s := NewMemoryStore()
	first := seedBook(t, s, "b1", "u1")
	seedBook(t, s, "b2", "u1")
	seedBook(t, s, "b3", "u2")

	if _, err := s.ReplaceContent("b1", first.Version, "summary", nil, days(5)); err != nil {
		t.Fatalf("replace: %v", err)
	}

	all, err := s.ListBooksByOwner("u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 books for u1, got %d", len(all))
	}
	completed, err := s.ListCompletedByOwner("u1")
	if err != nil {
		t.Fatalf("list completed: %v", err)
	}
	if len(completed) != 1 || completed[0].ID != "b1" {
		t.Fatalf("unexpected completed list: %+v", completed)
	}
}

func TestNoteUpsertKeepsCreatedAt(t *testing.T) {
	s := NewMemoryStore()
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := s.SaveNote(domain.Note{OwnerID: "u1", BookID: "b1", Day: 1, Text: "first", CreatedAt: created, UpdatedAt: created}); err != nil {
		t.Fatalf("save: %v", err)
	}
	later := created.Add(time.Hour)
	if err := s.SaveNote(domain.Note{OwnerID: "u1", BookID: "b1", Day: 1, Text: "second", CreatedAt: later, UpdatedAt: later}); err != nil {
		t.Fatalf("resave: %v", err)
	}
	note, ok, err := s.GetNote("u1", "b1", 1)
	if err != nil || !ok {
		t.Fatalf("get note: ok=%v err=%v", ok, err)
	}
	if note.Text != "second" {
		t.Fatalf("upsert did not overwrite: %q", note.Text)
	}
	if !note.CreatedAt.Equal(created) {
		t.Fatalf("created timestamp should survive upsert: %v", note.CreatedAt)
	}
}

func TestDeleteBookCascadesNotes(t *testing.T) {
	s := NewMemoryStore()
	seedBook(t, s, "b1", "u1")
	now := time.Now().UTC()
	if err := s.SaveNote(domain.Note{OwnerID: "u1", BookID: "b1", Day: 1, Text: "n", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("save note: %v", err)
	}
	if err := s.DeleteBook("b1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	notes, err := s.ListNotesByBook("u1", "b1")
	if err != nil {
		t.Fatalf("list notes: %v", err)
	}
	if len(notes) != 0 {
		t.Fatalf("notes should be gone, got %d", len(notes))
	}
}
