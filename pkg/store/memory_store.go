package store

import (
	"sort"
	"sync"
	"time"

	"bookhabit/internal/util"
	"bookhabit/pkg/domain"
)

// MemoryStore is an in-memory Store for tests and local runs. It mirrors the
// versioned-update semantics of the Postgres store, including ErrNotFound /
// ErrVersionConflict behavior.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]domain.User
	books map[string]domain.Book
	notes map[noteKey]domain.Note
}

type noteKey struct {
	ownerID string
	bookID  string
	day     int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]domain.User),
		books: make(map[string]domain.Book),
		notes: make(map[noteKey]domain.Note),
	}
}

func (s *MemoryStore) SaveUser(u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *MemoryStore) HasUserEmail(email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (s *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *MemoryStore) CreateBook(b domain.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.DailyContent = contiguous(b.DailyContent)
	b.TotalDays = len(b.DailyContent)
	b.CurrentDay = clampDay(b.CurrentDay)
	s.books[b.ID] = b
	return nil
}

func (s *MemoryStore) GetBook(id string) (domain.Book, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[id]
	return b, ok, nil
}

func (s *MemoryStore) ListBooksByOwner(ownerID string) ([]domain.Book, error) {
	return s.list(func(b domain.Book) bool { return b.OwnerID == ownerID })
}

func (s *MemoryStore) ListCompletedByOwner(ownerID string) ([]domain.Book, error) {
	return s.list(func(b domain.Book) bool {
		return b.OwnerID == ownerID && b.Status == domain.StatusCompleted
	})
}

func (s *MemoryStore) list(keep func(domain.Book) bool) ([]domain.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var books []domain.Book
	for _, b := range s.books {
		if keep(b) {
			books = append(books, b)
		}
	}
	sort.Slice(books, func(i, j int) bool {
		return books[i].CreatedAt.After(books[j].CreatedAt)
	})
	return books, nil
}

func (s *MemoryStore) DeleteBook(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.books, id)
	for k := range s.notes {
		if k.bookID == id {
			delete(s.notes, k)
		}
	}
	return nil
}

func (s *MemoryStore) SetStatus(id string, status domain.BookStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	if !ok {
		return nil
	}
	b.Status = status
	b.ErrorMessage = errMsg
	b.UpdatedAt = time.Now().UTC()
	s.books[id] = b
	return nil
}

func (s *MemoryStore) ReplaceContent(id string, version int64, summary string, principles []string, days []domain.DayContent) (domain.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	if !ok {
		return domain.Book{}, ErrNotFound
	}
	if b.Version != version {
		return domain.Book{}, ErrVersionConflict
	}
	b.Status = domain.StatusCompleted
	b.ErrorMessage = ""
	b.Summary = summary
	b.KeyPrinciples = append([]string(nil), principles...)
	b.DailyContent = contiguous(days)
	b.TotalDays = len(b.DailyContent)
	b.Version = version + 1
	b.UpdatedAt = time.Now().UTC()
	s.books[id] = b
	return b, nil
}

func (s *MemoryStore) AppendDays(id string, version int64, days []domain.DayContent) (domain.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	if !ok {
		return domain.Book{}, ErrNotFound
	}
	if b.Version != version {
		return domain.Book{}, ErrVersionConflict
	}
	b.DailyContent = contiguous(append(b.DailyContent, days...))
	b.TotalDays = len(b.DailyContent)
	b.Version = version + 1
	b.UpdatedAt = time.Now().UTC()
	s.books[id] = b
	return b, nil
}

func (s *MemoryStore) SetCurrentDay(id string, version int64, day int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	if !ok {
		return ErrNotFound
	}
	if b.Version != version {
		return ErrVersionConflict
	}
	b.CurrentDay = clampDay(day)
	b.Version = version + 1
	b.UpdatedAt = time.Now().UTC()
	s.books[id] = b
	return nil
}

func (s *MemoryStore) SaveNote(n domain.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := noteKey{ownerID: n.OwnerID, bookID: n.BookID, day: n.Day}
	if existing, ok := s.notes[key]; ok {
		n.CreatedAt = existing.CreatedAt
	}
	s.notes[key] = n
	return nil
}

func (s *MemoryStore) GetNote(ownerID, bookID string, day int) (domain.Note, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notes[noteKey{ownerID: ownerID, bookID: bookID, day: day}]
	return n, ok, nil
}

func (s *MemoryStore) ListNotesByBook(ownerID, bookID string) ([]domain.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var notes []domain.Note
	for k, n := range s.notes {
		if k.ownerID == ownerID && k.bookID == bookID {
			notes = append(notes, n)
		}
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i].Day < notes[j].Day })
	return notes, nil
}

// MemorySessionStore is an in-memory SessionStore for tests.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]string
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]string)}
}

func (s *MemorySessionStore) NewSession(userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := util.NewID()
	s.sessions[token] = userID
	return token, nil
}

func (s *MemorySessionStore) GetUserIDByToken(token string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.sessions[token]
	return userID, ok, nil
}

func (s *MemorySessionStore) DeleteSession(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}
