package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps the metadata SQLite database: uploaded file blobs, the table
// descriptor catalog, extracted document texts, chat history, document
// vectors, and the embed job queue.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the metadata database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (tests).
func Open(dataDir string) (*Store, error) {
	db, err := open(dataDir, "finchat.db", "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// OpenData opens (or creates) the data database in dataDir. It holds only
// tables materialized from tabular uploads; application metadata never
// lives here, so generated SQL can be pointed at it without exposure.
func OpenData(dataDir string) (*sql.DB, error) {
	return open(dataDir, "data.db", "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
}

// OpenDataQueryOnly opens the data database with query_only carried in the
// DSN, so every connection the pool ever hands out is read-only; a recycled
// connection cannot drop the guarantee.
func OpenDataQueryOnly(dataDir string) (*sql.DB, error) {
	return open(dataDir, "data.db", "_pragma=busy_timeout(5000)&_pragma=query_only(1)")
}

func open(dataDir, name, pragmas string) (*sql.DB, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		// Pragmas ride the DSN so the driver applies them to every new
		// connection, not just the one that happens to run an Exec.
		dsn = filepath.Join(dataDir, name) + "?" + pragmas
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	return db, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for the vector store, which shares
// this database.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate reads embedded SQL migration files and applies any that haven't run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// --- Files ---

// SaveFile stores the original upload bytes. Returns ErrDuplicateFile when
// the same filename already exists for this (user, session).
func (s *Store) SaveFile(f File) error {
	exists, err := s.FileExists(f.UserID, f.SessionID, f.Filename)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicateFile
	}

	_, err = s.db.Exec(`
		INSERT INTO files (id, user_id, session_id, filename, extension, content, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.UserID, f.SessionID, f.Filename, f.Extension, f.Content,
		f.UploadedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// FileExists reports whether a file of this name was already uploaded into
// the (user, session).
func (s *Store) FileExists(userID, sessionID, filename string) (bool, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM files WHERE user_id = ? AND session_id = ? AND filename = ?`,
		userID, sessionID, filename,
	).Scan(&count)
	return count > 0, err
}

// GetFile returns the stored blob for a file ID.
func (s *Store) GetFile(id string) (File, error) {
	var f File
	var uploadedAt string
	err := s.db.QueryRow(`
		SELECT id, user_id, session_id, filename, extension, content, uploaded_at
		FROM files WHERE id = ?`, id,
	).Scan(&f.ID, &f.UserID, &f.SessionID, &f.Filename, &f.Extension, &f.Content, &uploadedAt)
	if err == sql.ErrNoRows {
		return File{}, ErrNotFound
	}
	if err != nil {
		return File{}, err
	}
	t, err := time.Parse(time.RFC3339, uploadedAt)
	if err != nil {
		return File{}, fmt.Errorf("parsing uploaded_at: %w", err)
	}
	f.UploadedAt = t
	return f, nil
}

// --- Documents (catalog rows) ---

func (s *Store) SaveDocument(d Document) error {
	_, err := s.db.Exec(`
		INSERT INTO documents (id, user_id, session_id, file_id, filename, table_name, descriptor_json, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.UserID, d.SessionID, d.FileID, d.Filename, d.TableName, d.DescriptorJSON,
		d.UploadedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// ListDocuments returns all catalog entries for a (user, session) in upload
// order. An empty slice, not an error, when nothing was ingested.
func (s *Store) ListDocuments(userID, sessionID string) ([]Document, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, session_id, file_id, filename, table_name, descriptor_json, uploaded_at
		FROM documents WHERE user_id = ? AND session_id = ?
		ORDER BY uploaded_at ASC, id ASC`,
		userID, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []Document{}
	for rows.Next() {
		var d Document
		var uploadedAt string
		if err := rows.Scan(&d.ID, &d.UserID, &d.SessionID, &d.FileID, &d.Filename, &d.TableName, &d.DescriptorJSON, &uploadedAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, uploadedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing uploaded_at: %w", err)
		}
		d.UploadedAt = t
		results = append(results, d)
	}
	return results, rows.Err()
}

// --- Document texts ---

func (s *Store) SaveDocumentText(dt DocumentText) error {
	_, err := s.db.Exec(`
		INSERT INTO document_texts (file_id, user_id, session_id, content)
		VALUES (?, ?, ?, ?)`,
		dt.FileID, dt.UserID, dt.SessionID, dt.Content,
	)
	return err
}

func (s *Store) GetDocumentText(fileID string) (DocumentText, error) {
	var dt DocumentText
	err := s.db.QueryRow(`
		SELECT file_id, user_id, session_id, content FROM document_texts WHERE file_id = ?`,
		fileID,
	).Scan(&dt.FileID, &dt.UserID, &dt.SessionID, &dt.Content)
	if err == sql.ErrNoRows {
		return DocumentText{}, ErrNotFound
	}
	return dt, err
}

// --- Chat history ---

func (s *Store) SaveChatMessage(m ChatMessage) error {
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO chat_messages (id, user_id, session_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.UserID, m.SessionID, m.Role, m.Content,
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// ListChatMessages returns messages for a (user, session) in chronological
// order, newest last, capped at limit (no cap when limit <= 0).
func (s *Store) ListChatMessages(userID, sessionID string, limit int) ([]ChatMessage, error) {
	query := `
		SELECT id, user_id, session_id, role, content, created_at
		FROM chat_messages WHERE user_id = ? AND session_id = ?
		ORDER BY created_at ASC, id ASC`
	args := []any{userID, sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []ChatMessage{}
	for rows.Next() {
		var m ChatMessage
		var createdAt string
		if err := rows.Scan(&m.ID, &m.UserID, &m.SessionID, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		m.CreatedAt = t
		results = append(results, m)
	}
	return results, rows.Err()
}

// ListSessions summarizes all chat sessions for a user, most recent first.
func (s *Store) ListSessions(userID string) ([]SessionInfo, error) {
	rows, err := s.db.Query(`
		SELECT session_id, COUNT(*), MAX(created_at)
		FROM chat_messages WHERE user_id = ?
		GROUP BY session_id
		ORDER BY MAX(created_at) DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []SessionInfo{}
	for rows.Next() {
		var info SessionInfo
		var last string
		if err := rows.Scan(&info.SessionID, &info.MessageCount, &last); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, last)
		if err != nil {
			return nil, fmt.Errorf("parsing last activity: %w", err)
		}
		info.LastActivity = t
		results = append(results, info)
	}
	return results, rows.Err()
}

// --- Jobs ---

func (s *Store) EnqueueJob(job Job) error {
	now := time.Now().UTC().Format(time.RFC3339)
	runAfter := now
	if !job.RunAfter.IsZero() {
		runAfter = job.RunAfter.UTC().Format(time.RFC3339)
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	_, err := s.db.Exec(`
		INSERT INTO jobs (id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', 0, ?, ?, ?, ?)`,
		job.ID, job.Type, job.PayloadJSON, maxAttempts, runAfter, now, now,
	)
	return err
}

func (s *Store) ClaimNextJob(types []string) (*Job, error) {
	if len(types) == 0 {
		return nil, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	placeholders := strings.Repeat(",?", len(types)-1)
	query := `SELECT id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error
		FROM jobs
		WHERE status = 'pending' AND run_after <= ? AND type IN (?` + placeholders + `)
		ORDER BY run_after ASC, created_at ASC
		LIMIT 1`

	args := make([]any, 0, len(types)+1)
	args = append(args, now)
	for _, t := range types {
		args = append(args, t)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}

	var j Job
	var runAfter, createdAt, updatedAt string
	var lastError sql.NullString
	err = tx.QueryRow(query, args...).Scan(
		&j.ID, &j.Type, &j.PayloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts,
		&runAfter, &createdAt, &updatedAt, &lastError,
	)
	if err == sql.ErrNoRows {
		tx.Rollback()
		return nil, nil
	}
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("selecting next job: %w", err)
	}

	res, err := tx.Exec(`UPDATE jobs SET status = 'running', updated_at = ? WHERE id = ? AND status = 'pending'`, now, j.ID)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("updating job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("checking updated job rows: %w", err)
	}
	if n != 1 {
		tx.Rollback()
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	j.Status = "running"
	j.LastError = lastError.String
	if j.RunAfter, err = time.Parse(time.RFC3339, runAfter); err != nil {
		return nil, fmt.Errorf("parsing run_after for job %s: %w", j.ID, err)
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for job %s: %w", j.ID, err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339, now); err != nil {
		return nil, fmt.Errorf("parsing updated_at for job %s: %w", j.ID, err)
	}
	return &j, nil
}

func (s *Store) CompleteJob(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE jobs SET status = 'completed', updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) FailJob(id string, errMsg string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning fail transaction: %w", err)
	}
	defer tx.Rollback()

	var attempts, maxAttempts int
	err = tx.QueryRow(`SELECT attempts, max_attempts FROM jobs WHERE id = ?`, id).Scan(&attempts, &maxAttempts)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	attempts++

	if attempts >= maxAttempts {
		_, err = tx.Exec(`UPDATE jobs SET status = 'failed', attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, now.Format(time.RFC3339), id)
	} else {
		backoff := time.Duration(math.Pow(2, float64(attempts))) * time.Second
		runAfter := now.Add(backoff)
		_, err = tx.Exec(`UPDATE jobs SET status = 'pending', attempts = ?, last_error = ?, run_after = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, runAfter.Format(time.RFC3339), now.Format(time.RFC3339), id)
	}

	if err != nil {
		return err
	}

	return tx.Commit()
}
