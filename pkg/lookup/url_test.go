package lookup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestValidateURL(t *testing.T) {
	if !ValidateURL("https://example.com/book.txt") {
		t.Fatalf("https url should validate")
	}
	if ValidateURL("ftp://example.com/book.txt") {
		t.Fatalf("ftp url should not validate")
	}
	if ValidateURL("not a url") {
		t.Fatalf("garbage should not validate")
	}
}

func TestFetchTextStripsHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><style>p{color:red}</style><script>alert(1)</script></head>` +
			`<body><h1>Atomic Habits</h1><p>Small changes, remarkable results.</p></body></html>`))
	}))
	defer srv.Close()

	f := NewURLFetcher(time.Second)
	text, err := f.FetchText(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !strings.Contains(text, "Atomic Habits") || !strings.Contains(text, "Small changes, remarkable results.") {
		t.Fatalf("missing visible text: %q", text)
	}
	if strings.Contains(text, "alert(1)") || strings.Contains(text, "color:red") {
		t.Fatalf("script/style leaked into text: %q", text)
	}
}

func TestFetchTextPlainBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("  chapter one\nchapter two  "))
	}))
	defer srv.Close()

	f := NewURLFetcher(time.Second)
	text, err := f.FetchText(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if text != "chapter one\nchapter two" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestFetchTextNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewURLFetcher(time.Second)
	if _, err := f.FetchText(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected error on 404")
	}
}
