package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"bookhabit/pkg/domain"
)

const migrateLockID int64 = 52018412

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &BookModel{}, &NoteModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				DELETE FROM note_models n
				WHERE NOT EXISTS (SELECT 1 FROM book_models b WHERE b.id = n.book_id);
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'note_models'
					AND constraint_name = 'note_models_book_id_fkey'
				) THEN
					ALTER TABLE note_models
					ADD CONSTRAINT note_models_book_id_fkey
					FOREIGN KEY (book_id) REFERENCES book_models(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure note foreign key: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "password_hash", "role", "updated_at"}),
	}).Create(&model).Error
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// CreateBook stores a new book record.
func (s *GormStore) CreateBook(b domain.Book) error {
	model := bookToModel(b)
	return s.db.Create(&model).Error
}

// GetBook retrieves a book.
func (s *GormStore) GetBook(id string) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

// ListBooksByOwner returns the owner's books, newest first.
func (s *GormStore) ListBooksByOwner(ownerID string) ([]domain.Book, error) {
	return s.listBooks("owner_id = ?", ownerID)
}

// ListCompletedByOwner returns the owner's completed books, newest first.
func (s *GormStore) ListCompletedByOwner(ownerID string) ([]domain.Book, error) {
	return s.listBooks("owner_id = ? AND status = ?", ownerID, string(domain.StatusCompleted))
}

func (s *GormStore) listBooks(cond string, args ...any) ([]domain.Book, error) {
	var models []BookModel
	if err := s.db.Where(cond, args...).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Book, 0, len(models))
	for _, m := range models {
		res = append(res, bookFromModel(m))
	}
	return res, nil
}

// DeleteBook removes a book; its notes go with it via FK cascade.
func (s *GormStore) DeleteBook(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&NoteModel{}, "book_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&BookModel{}, "id = ?", id).Error
	})
}

// SetStatus updates book status/error unconditionally.
func (s *GormStore) SetStatus(id string, status domain.BookStatus, errMsg string) error {
	return s.db.Model(&BookModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        string(status),
			"error_message": errMsg,
			"updated_at":    time.Now().UTC(),
		}).Error
}

// ReplaceContent overwrites generated content and marks the book completed.
// The update applies only when the stored version matches.
func (s *GormStore) ReplaceContent(id string, version int64, summary string, principles []string, days []domain.DayContent) (domain.Book, error) {
	days = contiguous(days)
	rawPrinciples, err := json.Marshal(principles)
	if err != nil {
		return domain.Book{}, fmt.Errorf("encode principles: %w", err)
	}
	rawDays, err := json.Marshal(days)
	if err != nil {
		return domain.Book{}, fmt.Errorf("encode daily content: %w", err)
	}
	updates := map[string]any{
		"status":         string(domain.StatusCompleted),
		"error_message":  "",
		"summary":        summary,
		"key_principles": datatypes.JSON(rawPrinciples),
		"daily_content":  datatypes.JSON(rawDays),
		"total_days":     len(days),
		"version":        version + 1,
		"updated_at":     time.Now().UTC(),
	}
	return s.casUpdate(id, version, updates)
}

// AppendDays appends an extension batch to the book's daily content.
// The caller supplies days already numbered to continue the stored sequence;
// the update applies only when the stored version matches.
func (s *GormStore) AppendDays(id string, version int64, days []domain.DayContent) (domain.Book, error) {
	book, ok, err := s.GetBook(id)
	if err != nil {
		return domain.Book{}, err
	}
	if !ok {
		return domain.Book{}, ErrNotFound
	}
	if book.Version != version {
		return domain.Book{}, ErrVersionConflict
	}
	merged := contiguous(append(book.DailyContent, days...))
	rawDays, err := json.Marshal(merged)
	if err != nil {
		return domain.Book{}, fmt.Errorf("encode daily content: %w", err)
	}
	updates := map[string]any{
		"daily_content": datatypes.JSON(rawDays),
		"total_days":    len(merged),
		"version":       version + 1,
		"updated_at":    time.Now().UTC(),
	}
	return s.casUpdate(id, version, updates)
}

// SetCurrentDay moves the reading pointer when the version matches.
func (s *GormStore) SetCurrentDay(id string, version int64, day int) error {
	_, err := s.casUpdate(id, version, map[string]any{
		"current_day": day,
		"version":     version + 1,
		"updated_at":  time.Now().UTC(),
	})
	return err
}

func (s *GormStore) casUpdate(id string, version int64, updates map[string]any) (domain.Book, error) {
	res := s.db.Model(&BookModel{}).
		Where("id = ? AND version = ?", id, version).
		Updates(updates)
	if res.Error != nil {
		return domain.Book{}, res.Error
	}
	if res.RowsAffected == 0 {
		if _, ok, err := s.GetBook(id); err != nil {
			return domain.Book{}, err
		} else if !ok {
			return domain.Book{}, ErrNotFound
		}
		return domain.Book{}, ErrVersionConflict
	}
	book, ok, err := s.GetBook(id)
	if err != nil {
		return domain.Book{}, err
	}
	if !ok {
		return domain.Book{}, ErrNotFound
	}
	return book, nil
}

// SaveNote upserts a note keyed by (owner, book, day); re-saving overwrites.
func (s *GormStore) SaveNote(n domain.Note) error {
	model := noteToModel(n)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}, {Name: "book_id"}, {Name: "day"}},
		DoUpdates: clause.AssignmentColumns([]string{"text", "updated_at"}),
	}).Create(&model).Error
}

// GetNote returns one note.
func (s *GormStore) GetNote(ownerID, bookID string, day int) (domain.Note, bool, error) {
	var model NoteModel
	err := s.db.First(&model, "owner_id = ? AND book_id = ? AND day = ?", ownerID, bookID, day).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Note{}, false, nil
		}
		return domain.Note{}, false, err
	}
	return noteFromModel(model), true, nil
}

// ListNotesByBook returns the owner's notes for a book ordered by day.
func (s *GormStore) ListNotesByBook(ownerID, bookID string) ([]domain.Note, error) {
	var models []NoteModel
	if err := s.db.Where("owner_id = ? AND book_id = ?", ownerID, bookID).
		Order("day ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	notes := make([]domain.Note, 0, len(models))
	for _, m := range models {
		notes = append(notes, noteFromModel(m))
	}
	return notes, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Role:         domain.UserRole(m.Role),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func bookToModel(b domain.Book) BookModel {
	days := contiguous(b.DailyContent)
	rawPrinciples, _ := json.Marshal(b.KeyPrinciples)
	rawDays, _ := json.Marshal(days)
	return BookModel{
		ID:               b.ID,
		OwnerID:          b.OwnerID,
		Title:            b.Title,
		Author:           b.Author,
		Method:           string(b.Method),
		OriginalFilename: b.OriginalFilename,
		StorageKey:       b.StorageKey,
		SourceURL:        b.SourceURL,
		DriveURL:         b.DriveURL,
		ISBN:             b.ISBN,
		SizeBytes:        b.SizeBytes,
		Status:           string(b.Status),
		ErrorMessage:     b.ErrorMessage,
		Summary:          b.Summary,
		KeyPrinciples:    rawPrinciples,
		DailyContent:     rawDays,
		CurrentDay:       clampDay(b.CurrentDay),
		TotalDays:        len(days),
		Version:          b.Version,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
}

func bookFromModel(m BookModel) domain.Book {
	var principles []string
	if len(m.KeyPrinciples) > 0 {
		_ = json.Unmarshal(m.KeyPrinciples, &principles)
	}
	days := decodeDailyContent(m.DailyContent)
	return domain.Book{
		ID:               m.ID,
		OwnerID:          m.OwnerID,
		Title:            m.Title,
		Author:           m.Author,
		Method:           domain.SourceMethod(m.Method),
		OriginalFilename: m.OriginalFilename,
		StorageKey:       m.StorageKey,
		SourceURL:        m.SourceURL,
		DriveURL:         m.DriveURL,
		ISBN:             m.ISBN,
		SizeBytes:        m.SizeBytes,
		Status:           domain.BookStatus(m.Status),
		ErrorMessage:     m.ErrorMessage,
		Summary:          m.Summary,
		KeyPrinciples:    principles,
		DailyContent:     days,
		CurrentDay:       clampDay(m.CurrentDay),
		TotalDays:        len(days),
		Version:          m.Version,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func noteToModel(n domain.Note) NoteModel {
	return NoteModel{
		OwnerID:   n.OwnerID,
		BookID:    n.BookID,
		Day:       n.Day,
		Text:      n.Text,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

func noteFromModel(m NoteModel) domain.Note {
	return domain.Note{
		OwnerID:   m.OwnerID,
		BookID:    m.BookID,
		Day:       m.Day,
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// legacyDailyContent is the historical object-of-arrays shape. Records in
// this form are normalized to []DayContent once, at read time.
type legacyDailyContent struct {
	Lessons      []string `json:"lessons"`
	Exercises    []string `json:"exercises"`
	Affirmations []string `json:"affirmations"`
	Thoughts     []string `json:"thoughts"`
}

func decodeDailyContent(raw []byte) []domain.DayContent {
	if len(raw) == 0 {
		return nil
	}
	var days []domain.DayContent
	if err := json.Unmarshal(raw, &days); err == nil {
		return contiguous(days)
	}
	var legacy legacyDailyContent
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return nil
	}
	total := len(legacy.Lessons)
	for _, n := range []int{len(legacy.Exercises), len(legacy.Affirmations), len(legacy.Thoughts)} {
		if n > total {
			total = n
		}
	}
	days = make([]domain.DayContent, 0, total)
	for i := 0; i < total; i++ {
		day := domain.DayContent{
			Day:         i + 1,
			Lesson:      at(legacy.Lessons, i),
			Exercise:    at(legacy.Exercises, i),
			Affirmation: at(legacy.Affirmations, i),
			Thought:     at(legacy.Thoughts, i),
		}
		days = append(days, day.FillMissing())
	}
	return contiguous(days)
}

func at(items []string, i int) string {
	if i < len(items) {
		return items[i]
	}
	return ""
}

// contiguous enforces 1..n day numbering, regardless of input numbering.
func contiguous(days []domain.DayContent) []domain.DayContent {
	out := make([]domain.DayContent, 0, len(days))
	for i, day := range days {
		day.Day = i + 1
		out = append(out, day)
	}
	return out
}

func clampDay(day int) int {
	if day < 1 {
		return 1
	}
	return day
}
