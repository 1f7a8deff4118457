package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const googleBooksEndpoint = "https://www.googleapis.com/books/v1/volumes"

// BookInfo is the metadata recovered for an ISBN.
type BookInfo struct {
	Title       string
	Author      string
	ISBN        string
	Description string
}

// CleanISBN strips everything but digits and the X check character.
func CleanISBN(isbn string) string {
	var sb strings.Builder
	for _, r := range strings.ToUpper(isbn) {
		if (r >= '0' && r <= '9') || r == 'X' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// ValidateISBN accepts 10- or 13-character ISBNs after cleaning.
func ValidateISBN(isbn string) bool {
	n := len(CleanISBN(isbn))
	return n == 10 || n == 13
}

// FormatISBN renders an ISBN with conventional hyphenation.
func FormatISBN(isbn string) string {
	clean := CleanISBN(isbn)
	switch len(clean) {
	case 10:
		return fmt.Sprintf("%s-%s-%s-%s", clean[:1], clean[1:4], clean[4:9], clean[9:])
	case 13:
		return fmt.Sprintf("%s-%s-%s-%s-%s", clean[:3], clean[3:4], clean[4:8], clean[8:12], clean[12:])
	default:
		return isbn
	}
}

// ISBNClient looks up book metadata by ISBN via the Google Books volumes
// API. Lookup failures degrade to placeholder metadata so an upload never
// fails just because the catalog was unreachable.
type ISBNClient struct {
	endpoint   string
	httpClient *http.Client
}

func NewISBNClient(timeout time.Duration) *ISBNClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ISBNClient{
		endpoint:   googleBooksEndpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Lookup resolves an ISBN to book metadata. The ISBN must already be valid.
func (c *ISBNClient) Lookup(ctx context.Context, isbn string) (BookInfo, error) {
	clean := CleanISBN(isbn)
	if !ValidateISBN(clean) {
		return BookInfo{}, fmt.Errorf("invalid isbn %q", isbn)
	}
	info, err := c.queryCatalog(ctx, clean)
	if err != nil {
		return placeholderBookInfo(isbn, clean), nil
	}
	return info, nil
}

func (c *ISBNClient) queryCatalog(ctx context.Context, clean string) (BookInfo, error) {
	q := url.Values{}
	q.Set("q", "isbn:"+clean)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return BookInfo{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return BookInfo{}, fmt.Errorf("query catalog: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return BookInfo{}, fmt.Errorf("catalog returned status %d", resp.StatusCode)
	}

	var payload struct {
		Items []struct {
			VolumeInfo struct {
				Title       string   `json:"title"`
				Authors     []string `json:"authors"`
				Description string   `json:"description"`
			} `json:"volumeInfo"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return BookInfo{}, fmt.Errorf("decode catalog response: %w", err)
	}
	if len(payload.Items) == 0 {
		return BookInfo{}, fmt.Errorf("no catalog match for isbn %s", clean)
	}

	vol := payload.Items[0].VolumeInfo
	if strings.TrimSpace(vol.Title) == "" {
		return BookInfo{}, fmt.Errorf("catalog match has no title")
	}
	info := BookInfo{
		Title:       vol.Title,
		Author:      strings.Join(vol.Authors, ", "),
		ISBN:        clean,
		Description: vol.Description,
	}
	if info.Author == "" {
		info.Author = "Unknown Author"
	}
	return info, nil
}

func placeholderBookInfo(isbn, clean string) BookInfo {
	return BookInfo{
		Title:       fmt.Sprintf("Book (ISBN: %s)", isbn),
		Author:      "Unknown Author",
		ISBN:        clean,
		Description: fmt.Sprintf("Book found with ISBN %s.", isbn),
	}
}
