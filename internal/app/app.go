package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/mail"
	"path"
	"path/filepath"
	"strings"
	"time"

	"bookhabit/internal/util"
	"bookhabit/pkg/ai"
	"bookhabit/pkg/auth"
	"bookhabit/pkg/domain"
	"bookhabit/pkg/lookup"
	"bookhabit/pkg/queue"
	"bookhabit/pkg/storage"
	"bookhabit/pkg/store"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrBookNotFound       = errors.New("book not found")
	ErrForbidden          = errors.New("not the book owner")
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotCompleted       = errors.New("book is not completed")
	ErrNotFailed          = errors.New("book is not failed")
)

// DefaultMaxUploadBytes caps uploads at 50 MiB.
const DefaultMaxUploadBytes = 50 << 20

// ExtensionBatchDays is how many days one extension adds when the reader
// advances past the last available day.
const ExtensionBatchDays = 10

var defaultAllowedExtensions = []string{".pdf", ".epub", ".txt", ".md"}

// Enqueuer hands conversion jobs to the worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, bookID string) (queue.JobStatus, error)
}

// Config holds dependencies and tunables for the core application.
type Config struct {
	Store             store.Store
	Sessions          store.SessionStore
	Objects           storage.ObjectStore
	Queue             Enqueuer
	Generator         *ai.ContentGenerator
	ISBN              *lookup.ISBNClient
	Fetcher           *lookup.URLFetcher
	MaxUploadBytes    int64
	AllowedExtensions []string
	PresignExpiry     time.Duration
}

// App wires persistence, object storage, the job queue, and the content
// generator into the service's use cases. A nil Queue means jobs run
// synchronously in the calling goroutine (used by tests and single-process
// setups).
type App struct {
	store          store.Store
	sessions       store.SessionStore
	objects        storage.ObjectStore
	queue          Enqueuer
	generator      *ai.ContentGenerator
	isbn           *lookup.ISBNClient
	fetcher        *lookup.URLFetcher
	maxUploadBytes int64
	allowedExt     map[string]bool
	presignExpiry  time.Duration
}

func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store required")
	}
	if cfg.Objects == nil {
		return nil, errors.New("object store required")
	}
	if cfg.Generator == nil {
		cfg.Generator = ai.NewContentGenerator(nil, 0)
	}
	if cfg.ISBN == nil {
		cfg.ISBN = lookup.NewISBNClient(0)
	}
	if cfg.Fetcher == nil {
		cfg.Fetcher = lookup.NewURLFetcher(0)
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	exts := cfg.AllowedExtensions
	if len(exts) == 0 {
		exts = defaultAllowedExtensions
	}
	allowed := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = true
	}
	if cfg.PresignExpiry <= 0 {
		cfg.PresignExpiry = 15 * time.Minute
	}
	return &App{
		store:          cfg.Store,
		sessions:       cfg.Sessions,
		objects:        cfg.Objects,
		queue:          cfg.Queue,
		generator:      cfg.Generator,
		isbn:           cfg.ISBN,
		fetcher:        cfg.Fetcher,
		maxUploadBytes: cfg.MaxUploadBytes,
		allowedExt:     allowed,
		presignExpiry:  cfg.PresignExpiry,
	}, nil
}

// MaxUploadBytes reports the configured upload cap.
func (a *App) MaxUploadBytes() int64 {
	return a.maxUploadBytes
}

// Register creates an account and opens a session.
func (a *App) Register(email, password string) (domain.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.User{}, "", fmt.Errorf("%w: malformed email", ErrInvalidInput)
	}
	if len(password) < 8 {
		return domain.User{}, "", fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	taken, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check email: %w", err)
	}
	if taken {
		return domain.User{}, "", ErrEmailTaken
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           util.NewID(),
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, "", fmt.Errorf("save user: %w", err)
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("open session: %w", err)
	}
	return user, token, nil
}

// Login verifies credentials and opens a session.
func (a *App) Login(email, password string) (domain.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("load user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("open session: %w", err)
	}
	return user, token, nil
}

// Logout discards a session token.
func (a *App) Logout(token string) error {
	return a.sessions.DeleteSession(token)
}

// UserByToken resolves a session token to its user.
func (a *App) UserByToken(token string) (domain.User, bool, error) {
	userID, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, false, err
	}
	return a.store.GetUserByID(userID)
}

// CreateBookFromFile validates and stores an uploaded file, records the book
// in processing state, and enqueues conversion.
func (a *App) CreateBookFromFile(ctx context.Context, owner domain.User, filename string, r io.Reader, size int64) (domain.Book, error) {
	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." {
		return domain.Book{}, fmt.Errorf("%w: filename required", ErrInvalidInput)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !a.allowedExt[ext] {
		return domain.Book{}, fmt.Errorf("%w: file type %q not supported", ErrInvalidInput, ext)
	}
	if size <= 0 || size > a.maxUploadBytes {
		return domain.Book{}, fmt.Errorf("%w: file size must be between 1 byte and %d bytes", ErrInvalidInput, a.maxUploadBytes)
	}

	id := util.NewID()
	storageKey := buildStorageKey(id, filename)
	now := time.Now().UTC()
	book := domain.Book{
		ID:               id,
		OwnerID:          owner.ID,
		Title:            titleFromName(filename),
		Author:           ai.UnknownAuthor,
		Method:           domain.SourceFile,
		OriginalFilename: filename,
		StorageKey:       storageKey,
		SizeBytes:        size,
		Status:           domain.StatusProcessing,
		CurrentDay:       1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := a.objects.Put(ctx, storageKey, r, size, contentType); err != nil {
		return domain.Book{}, fmt.Errorf("save file: %w", err)
	}
	if err := a.store.CreateBook(book); err != nil {
		_ = a.objects.Delete(ctx, storageKey)
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	if err := a.dispatch(ctx, book.ID); err != nil {
		_ = a.store.SetStatus(book.ID, domain.StatusFailed, err.Error())
		return domain.Book{}, fmt.Errorf("enqueue conversion: %w", err)
	}
	return book, nil
}

// LinkRequest describes a non-file book source.
type LinkRequest struct {
	Method domain.SourceMethod
	Title  string
	Author string
	URL    string
	ISBN   string
}

// CreateBookFromLink records a book backed by a URL, Drive link, or ISBN and
// enqueues conversion.
func (a *App) CreateBookFromLink(ctx context.Context, owner domain.User, req LinkRequest) (domain.Book, error) {
	now := time.Now().UTC()
	book := domain.Book{
		ID:         util.NewID(),
		OwnerID:    owner.ID,
		Title:      strings.TrimSpace(req.Title),
		Author:     strings.TrimSpace(req.Author),
		Method:     req.Method,
		Status:     domain.StatusProcessing,
		CurrentDay: 1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	switch req.Method {
	case domain.SourceURL:
		if !lookup.ValidateURL(req.URL) {
			return domain.Book{}, fmt.Errorf("%w: invalid url", ErrInvalidInput)
		}
		book.SourceURL = strings.TrimSpace(req.URL)
	case domain.SourceDrive:
		if !lookup.ValidateDriveLink(req.URL) {
			return domain.Book{}, fmt.Errorf("%w: invalid google drive link", ErrInvalidInput)
		}
		if _, ok := lookup.DriveFileID(req.URL); !ok {
			return domain.Book{}, fmt.Errorf("%w: could not extract drive file id", ErrInvalidInput)
		}
		book.DriveURL = strings.TrimSpace(req.URL)
	case domain.SourceISBN:
		if !lookup.ValidateISBN(req.ISBN) {
			return domain.Book{}, fmt.Errorf("%w: invalid isbn", ErrInvalidInput)
		}
		info, err := a.isbn.Lookup(ctx, req.ISBN)
		if err != nil {
			return domain.Book{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		book.ISBN = info.ISBN
		if book.Title == "" {
			book.Title = info.Title
		}
		if book.Author == "" {
			book.Author = info.Author
		}
	default:
		return domain.Book{}, fmt.Errorf("%w: unsupported method %q", ErrInvalidInput, req.Method)
	}

	if book.Title == "" {
		book.Title = "Untitled Book"
	}
	if book.Author == "" {
		book.Author = ai.UnknownAuthor
	}

	if err := a.store.CreateBook(book); err != nil {
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	if err := a.dispatch(ctx, book.ID); err != nil {
		_ = a.store.SetStatus(book.ID, domain.StatusFailed, err.Error())
		return domain.Book{}, fmt.Errorf("enqueue conversion: %w", err)
	}
	return book, nil
}

// dispatch hands the job to the queue, or runs it inline when no queue is
// configured.
func (a *App) dispatch(ctx context.Context, bookID string) error {
	if a.queue == nil {
		return a.ProcessBook(ctx, bookID)
	}
	_, err := a.queue.Enqueue(ctx, bookID)
	return err
}

// ListBooks returns the user's library, newest first.
func (a *App) ListBooks(user domain.User) ([]domain.Book, error) {
	return a.store.ListBooksByOwner(user.ID)
}

// GetBook returns a book if the user owns it.
func (a *App) GetBook(user domain.User, id string) (domain.Book, error) {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("load book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	if book.OwnerID != user.ID && user.Role != domain.RoleAdmin {
		return domain.Book{}, ErrForbidden
	}
	return book, nil
}

// DownloadURL returns a pre-signed URL for the original upload.
func (a *App) DownloadURL(ctx context.Context, user domain.User, id string) (string, string, error) {
	book, err := a.GetBook(user, id)
	if err != nil {
		return "", "", err
	}
	if strings.TrimSpace(book.StorageKey) == "" {
		return "", "", fmt.Errorf("%w: book has no stored file", ErrInvalidInput)
	}
	url, err := a.objects.PresignGet(ctx, book.StorageKey, a.presignExpiry)
	if err != nil {
		return "", "", fmt.Errorf("presign download: %w", err)
	}
	return url, book.OriginalFilename, nil
}

// DeleteBook removes a book, its notes, and its stored file.
func (a *App) DeleteBook(ctx context.Context, user domain.User, id string) error {
	book, err := a.GetBook(user, id)
	if err != nil {
		return err
	}
	if err := a.store.DeleteBook(id); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if book.StorageKey != "" {
		if err := a.objects.Delete(ctx, book.StorageKey); err != nil {
			util.LoggerFromContext(ctx).Warn("delete stored file", slog.String("book_id", id), slog.Any("error", err))
		}
	}
	return nil
}

// Retry re-enqueues a failed book. The next processing pass overwrites any
// previous content wholesale.
func (a *App) Retry(ctx context.Context, user domain.User, id string) (domain.Book, error) {
	book, err := a.GetBook(user, id)
	if err != nil {
		return domain.Book{}, err
	}
	if book.Status != domain.StatusFailed {
		return domain.Book{}, ErrNotFailed
	}
	if err := a.store.SetStatus(id, domain.StatusProcessing, ""); err != nil {
		return domain.Book{}, fmt.Errorf("mark processing: %w", err)
	}
	if err := a.dispatch(ctx, id); err != nil {
		_ = a.store.SetStatus(id, domain.StatusFailed, err.Error())
		return domain.Book{}, fmt.Errorf("enqueue conversion: %w", err)
	}
	book.Status = domain.StatusProcessing
	book.ErrorMessage = ""
	return book, nil
}

// ProcessBook converts one book: extract text, generate content, commit.
// Extraction failure is downgraded to generation without text; only
// persistence failures mark the book failed. The commit is all-or-nothing
// and overwrites whatever a previous pass left behind.
func (a *App) ProcessBook(ctx context.Context, bookID string) error {
	logger := util.LoggerFromContext(ctx).With(slog.String("book_id", bookID))

	book, ok, err := a.store.GetBook(bookID)
	if err != nil {
		return fmt.Errorf("load book: %w", err)
	}
	if !ok {
		return ErrBookNotFound
	}

	rawText, err := a.extractText(ctx, book)
	if err != nil {
		logger.Warn("text extraction failed, generating without text", slog.Any("error", err))
		rawText = ""
	}

	meta := ai.BookMeta{Title: book.Title, Author: book.Author}
	result := a.generator.Generate(ctx, meta, rawText)

	for {
		_, err := a.store.ReplaceContent(book.ID, book.Version, result.Summary, result.KeyPrinciples, result.DailyContent)
		if err == nil {
			logger.Info("book processed", slog.Int("days", len(result.DailyContent)))
			return nil
		}
		if errors.Is(err, store.ErrVersionConflict) {
			book, ok, err = a.store.GetBook(bookID)
			if err != nil {
				return fmt.Errorf("reload book: %w", err)
			}
			if !ok {
				return ErrBookNotFound
			}
			continue
		}
		if statusErr := a.store.SetStatus(book.ID, domain.StatusFailed, err.Error()); statusErr != nil {
			logger.Error("mark failed", slog.Any("error", statusErr))
		}
		return fmt.Errorf("commit content: %w", err)
	}
}

func titleFromName(name string) string {
	base := filepath.Base(name)
	title := strings.TrimSuffix(base, filepath.Ext(base))
	title = strings.TrimSpace(strings.ReplaceAll(title, "_", " "))
	if title == "" {
		return "Untitled Book"
	}
	return title
}

func buildStorageKey(bookID, filename string) string {
	name := sanitizeFilename(filepath.Base(filename))
	if name == "" {
		name = "book"
	}
	return path.Join("books", bookID, name)
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range name {
		if r <= 0x7f {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
				b.WriteRune(r)
				lastUnderscore = false
				continue
			}
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}
