package lookup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestValidateISBN(t *testing.T) {
	cases := []struct {
		isbn string
		want bool
	}{
		{"0-306-40615-2", true},
		{"978-3-16-148410-0", true},
		{"043942089X", true},
		{"12345", false},
		{"", false},
		{"978-3-16-148410-0-9", false},
	}
	for _, tc := range cases {
		if got := ValidateISBN(tc.isbn); got != tc.want {
			t.Errorf("ValidateISBN(%q) = %v, want %v", tc.isbn, got, tc.want)
		}
	}
}

func TestFormatISBN(t *testing.T) {
	if got := FormatISBN("0306406152"); got != "0-306-40615-2" {
		t.Fatalf("format isbn10: %q", got)
	}
	if got := FormatISBN("9783161484100"); got != "978-3-1614-8410-0" {
		t.Fatalf("format isbn13: %q", got)
	}
	if got := FormatISBN("not-an-isbn"); got != "not-an-isbn" {
		t.Fatalf("format invalid: %q", got)
	}
}

func TestISBNLookupUsesCatalogMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "isbn:9783161484100" {
			t.Errorf("unexpected query %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{"volumeInfo":{"title":"Deep Work","authors":["Cal Newport"],"description":"Rules for focused success."}}]}`))
	}))
	defer srv.Close()

	c := NewISBNClient(time.Second)
	c.endpoint = srv.URL

	info, err := c.Lookup(context.Background(), "978-3-16-148410-0")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if info.Title != "Deep Work" || info.Author != "Cal Newport" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if info.ISBN != "9783161484100" {
		t.Fatalf("expected cleaned isbn, got %q", info.ISBN)
	}
}

func TestISBNLookupFallsBackToPlaceholder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewISBNClient(time.Second)
	c.endpoint = srv.URL

	info, err := c.Lookup(context.Background(), "0306406152")
	if err != nil {
		t.Fatalf("lookup should not fail on catalog errors: %v", err)
	}
	if info.Title != "Book (ISBN: 0306406152)" {
		t.Fatalf("unexpected placeholder title %q", info.Title)
	}
	if info.Author != "Unknown Author" {
		t.Fatalf("unexpected placeholder author %q", info.Author)
	}
}

func TestISBNLookupRejectsInvalidISBN(t *testing.T) {
	c := NewISBNClient(time.Second)
	if _, err := c.Lookup(context.Background(), "12345"); err == nil {
		t.Fatalf("expected error for invalid isbn")
	}
}
