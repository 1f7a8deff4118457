package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"bookhabit/pkg/ai"
	"bookhabit/pkg/domain"
)

func completedBook(t *testing.T, a *App, user domain.User) domain.Book {
	t.Helper()
	content := "A short book."
	book, err := a.CreateBookFromFile(context.Background(), user, "book.txt", strings.NewReader(content), int64(len(content)))
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	got, err := a.GetBook(user, book.ID)
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if got.Status != domain.StatusCompleted {
		t.Fatalf("expected completed book, got %q", got.Status)
	}
	return got
}

func TestAdvanceWithinBounds(t *testing.T) {
	a, _ := newTestApp(t, nil)
	user := registerUser(t, a)
	book := completedBook(t, a, user)

	got, err := a.Advance(context.Background(), user, book.ID)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if got.CurrentDay != 2 {
		t.Fatalf("expected day 2, got %d", got.CurrentDay)
	}
	if got.TotalDays != ai.InitialDays {
		t.Fatalf("in-bounds advance must not extend, totalDays=%d", got.TotalDays)
	}
}

func TestAdvanceAtBoundaryExtendsByTen(t *testing.T) {
	a, _ := newTestApp(t, nil)
	user := registerUser(t, a)
	book := completedBook(t, a, user)

	// Walk the pointer to the last day.
	var got domain.Book
	var err error
	for i := book.CurrentDay; i < book.TotalDays; i++ {
		got, err = a.Advance(context.Background(), user, book.ID)
		if err != nil {
			t.Fatalf("advance to day %d: %v", i+1, err)
		}
	}
	if got.CurrentDay != ai.InitialDays {
		t.Fatalf("expected pointer at day %d, got %d", ai.InitialDays, got.CurrentDay)
	}

	// One more advance crosses the boundary: extend first, then move.
	got, err = a.Advance(context.Background(), user, book.ID)
	if err != nil {
		t.Fatalf("boundary advance: %v", err)
	}
	if got.TotalDays != ai.InitialDays+ExtensionBatchDays {
		t.Fatalf("expected %d days after extension, got %d", ai.InitialDays+ExtensionBatchDays, got.TotalDays)
	}
	if got.CurrentDay != ai.InitialDays+1 {
		t.Fatalf("expected pointer at day %d, got %d", ai.InitialDays+1, got.CurrentDay)
	}
	for i, day := range got.DailyContent {
		if day.Day != i+1 {
			t.Fatalf("day numbering broken after extension: index %d has day %d", i, day.Day)
		}
	}
}

func TestRetreatFloorsAtDayOne(t *testing.T) {
	a, _ := newTestApp(t, nil)
	user := registerUser(t, a)
	book := completedBook(t, a, user)

	// At day 1 a retreat is a no-op.
	got, err := a.Retreat(context.Background(), user, book.ID)
	if err != nil {
		t.Fatalf("retreat: %v", err)
	}
	if got.CurrentDay != 1 {
		t.Fatalf("expected day 1, got %d", got.CurrentDay)
	}

	if _, err := a.Advance(context.Background(), user, book.ID); err != nil {
		t.Fatalf("advance: %v", err)
	}
	got, err = a.Retreat(context.Background(), user, book.ID)
	if err != nil {
		t.Fatalf("retreat: %v", err)
	}
	if got.CurrentDay != 1 {
		t.Fatalf("expected day 1 after retreat, got %d", got.CurrentDay)
	}
}

func TestProgressRequiresCompletedBookForMoves(t *testing.T) {
	a, mem := newTestApp(t, nil)
	user := registerUser(t, a)
	book := completedBook(t, a, user)

	if err := mem.SetStatus(book.ID, domain.StatusProcessing, ""); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if _, err := a.Advance(context.Background(), user, book.ID); !errors.Is(err, ErrNotCompleted) {
		t.Fatalf("expected ErrNotCompleted on advance, got %v", err)
	}
	if _, err := a.Retreat(context.Background(), user, book.ID); !errors.Is(err, ErrNotCompleted) {
		t.Fatalf("expected ErrNotCompleted on retreat, got %v", err)
	}
}

func TestNotesUpsertAndStreak(t *testing.T) {
	a, _ := newTestApp(t, nil)
	user := registerUser(t, a)
	book := completedBook(t, a, user)

	if _, err := a.SaveNote(user, book.ID, 1, "first impressions"); err != nil {
		t.Fatalf("save note: %v", err)
	}
	if _, err := a.SaveNote(user, book.ID, 2, "second day"); err != nil {
		t.Fatalf("save note: %v", err)
	}
	// Day 4 breaks the streak; day 3 is missing.
	if _, err := a.SaveNote(user, book.ID, 4, "skipped a day"); err != nil {
		t.Fatalf("save note: %v", err)
	}

	// Re-saving overwrites the existing note.
	if _, err := a.SaveNote(user, book.ID, 2, "second day, revised"); err != nil {
		t.Fatalf("resave note: %v", err)
	}

	notes, err := a.ListNotes(user, book.ID)
	if err != nil {
		t.Fatalf("list notes: %v", err)
	}
	if len(notes) != 3 {
		t.Fatalf("expected 3 notes, got %d", len(notes))
	}
	if notes[1].Text != "second day, revised" {
		t.Fatalf("note upsert did not overwrite: %q", notes[1].Text)
	}

	// The pointer is still at day 1, so notes written ahead of it do not
	// count yet.
	progress, err := a.GetProgress(context.Background(), user, book.ID)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if progress.CurrentStreak != 1 {
		t.Fatalf("expected streak 1 at day 1, got %d", progress.CurrentStreak)
	}
	if progress.TotalDays != ai.InitialDays || progress.CurrentDay != 1 {
		t.Fatalf("unexpected progress: %+v", progress)
	}

	// Reading day 2 brings its note into the streak; day 3 has none, so the
	// day-4 note never extends it.
	if _, err := a.Advance(context.Background(), user, book.ID); err != nil {
		t.Fatalf("advance: %v", err)
	}
	progress, err = a.GetProgress(context.Background(), user, book.ID)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if progress.CurrentStreak != 2 {
		t.Fatalf("expected streak 2 at day 2, got %d", progress.CurrentStreak)
	}
}

func TestStreakNeverCountsPastCurrentDay(t *testing.T) {
	a, _ := newTestApp(t, nil)
	user := registerUser(t, a)
	book := completedBook(t, a, user)

	for day := 1; day <= 3; day++ {
		if _, err := a.SaveNote(user, book.ID, day, "noted"); err != nil {
			t.Fatalf("save note for day %d: %v", day, err)
		}
	}

	progress, err := a.GetProgress(context.Background(), user, book.ID)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if progress.CurrentStreak != 1 {
		t.Fatalf("streak must stop at the reading pointer: currentDay=%d, streak=%d",
			progress.CurrentDay, progress.CurrentStreak)
	}
}

func TestNoteValidation(t *testing.T) {
	a, _ := newTestApp(t, nil)
	user := registerUser(t, a)
	book := completedBook(t, a, user)

	if _, err := a.SaveNote(user, book.ID, 0, "text"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for day 0, got %v", err)
	}
	if _, err := a.SaveNote(user, book.ID, book.TotalDays+1, "text"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for out-of-range day, got %v", err)
	}
	if _, err := a.SaveNote(user, book.ID, 1, "   "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank text, got %v", err)
	}
}

func TestStatsAggregatesCompletedBooks(t *testing.T) {
	a, _ := newTestApp(t, nil)
	user := registerUser(t, a)

	first := completedBook(t, a, user)
	content := "Another book."
	if _, err := a.CreateBookFromFile(context.Background(), user, "second.txt", strings.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("create second book: %v", err)
	}
	if _, err := a.Advance(context.Background(), user, first.ID); err != nil {
		t.Fatalf("advance: %v", err)
	}

	stats, err := a.GetStats(user)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalBooks != 2 {
		t.Fatalf("expected 2 completed books, got %d", stats.TotalBooks)
	}
	if stats.TotalDays != 2*ai.InitialDays {
		t.Fatalf("expected %d total days, got %d", 2*ai.InitialDays, stats.TotalDays)
	}
	// CompletedDays sums each book's current day: 2 + 1.
	if stats.CompletedDays != 3 {
		t.Fatalf("expected 3 completed days, got %d", stats.CompletedDays)
	}
}
