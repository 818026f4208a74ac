package storage

import (
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// StoredSession is one exported string session for a Telegram user.
type StoredSession struct {
	TelegramID    int64
	Phone         string
	StringSession string
	CreatedAt     time.Time
}

// Store defines the interface for string session persistence.
type Store interface {
	SaveSession(session *StoredSession) error
	GetSession(telegramID int64) (*StoredSession, error)
	DeleteSession(telegramID int64) error
	Close() error
}

// SQLiteStore implements Store using SQLite with encrypted session strings.
type SQLiteStore struct {
	db            *sql.DB
	encryptionKey []byte
	mu            sync.RWMutex
}

// NewSQLiteStore opens (creating if needed) the SQLite database at dbPath.
// The encryptionKey encrypts session strings at rest; see DeriveKey.
func NewSQLiteStore(dbPath string, encryptionKey []byte) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{
		db:            db,
		encryptionKey: encryptionKey,
	}

	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	// init created the file if it was missing. Session strings grant full
	// account access; keep the file private.
	if err := os.Chmod(dbPath, 0600); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to restrict database permissions: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	query := `
	CREATE TABLE IF NOT EXISTS string_sessions (
		telegram_id INTEGER PRIMARY KEY,
		phone TEXT NOT NULL,
		encrypted_session TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create string_sessions table: %w", err)
	}
	return nil
}

// SaveSession inserts or replaces the stored session for a user.
func (s *SQLiteStore) SaveSession(session *StoredSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	encrypted, err := Encrypt([]byte(session.StringSession), s.encryptionKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt session: %w", err)
	}

	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.Exec(`
		INSERT INTO string_sessions (telegram_id, phone, encrypted_session, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET
			phone = excluded.phone,
			encrypted_session = excluded.encrypted_session,
			created_at = excluded.created_at
	`, session.TelegramID, session.Phone, encrypted, createdAt)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetSession returns the stored session for a user, or nil if none exists.
func (s *SQLiteStore) GetSession(telegramID int64) (*StoredSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		session   StoredSession
		encrypted string
	)
	err := s.db.QueryRow(`
		SELECT telegram_id, phone, encrypted_session, created_at
		FROM string_sessions WHERE telegram_id = ?
	`, telegramID).Scan(&session.TelegramID, &session.Phone, &encrypted, &session.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	plaintext, err := Decrypt(encrypted, s.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt session: %w", err)
	}
	session.StringSession = string(plaintext)

	return &session, nil
}

// DeleteSession removes the stored session for a user. Deleting a user with
// no stored session is not an error.
func (s *SQLiteStore) DeleteSession(telegramID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM string_sessions WHERE telegram_id = ?`, telegramID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
