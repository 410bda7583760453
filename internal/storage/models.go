package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateFile is returned when a file with the same name was already
// uploaded into the same (user, session).
var ErrDuplicateFile = errors.New("file already exists")

// File is an original uploaded file kept verbatim as a blob.
type File struct {
	ID         string
	UserID     string
	SessionID  string
	Filename   string
	Extension  string
	Content    []byte
	UploadedAt time.Time
}

// Document is one catalog entry per ingested file. Tabular uploads carry
// the materialized table name and a JSON-encoded table descriptor;
// unstructured uploads leave both empty.
type Document struct {
	ID             string
	UserID         string
	SessionID      string
	FileID         string
	Filename       string
	TableName      string
	DescriptorJSON string
	UploadedAt     time.Time
}

// DocumentText is the extracted plain text of an unstructured upload,
// kept so the embed worker can chunk it asynchronously.
type DocumentText struct {
	FileID    string
	UserID    string
	SessionID string
	Content   string
}

// ChatMessage is one persisted turn half (user question or assistant answer).
type ChatMessage struct {
	ID        string
	UserID    string
	SessionID string
	Role      string // "user" or "assistant"
	Content   string
	CreatedAt time.Time
}

// SessionInfo summarizes one chat session for listing.
type SessionInfo struct {
	SessionID    string
	MessageCount int
	LastActivity time.Time
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
