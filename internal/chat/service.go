// Package chat persists conversation turns around the core workflow.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/finchat/internal/storage"
	"github.com/kalambet/finchat/internal/workflow"
)

// TurnRunner is the core workflow surface the chat service drives.
type TurnRunner interface {
	ProcessTurn(ctx context.Context, userID, sessionID, userQuery string) workflow.TurnResult
}

// HistoryStore persists and lists chat messages.
type HistoryStore interface {
	SaveChatMessage(m storage.ChatMessage) error
	ListChatMessages(userID, sessionID string, limit int) ([]storage.ChatMessage, error)
	ListSessions(userID string) ([]storage.SessionInfo, error)
}

// Service runs chat turns: persist the question, run the workflow, persist
// the answer.
type Service struct {
	runner TurnRunner
	store  HistoryStore
}

// NewService creates a Service over the given workflow and history store.
func NewService(runner TurnRunner, store HistoryStore) *Service {
	return &Service{runner: runner, store: store}
}

// Answer is one completed turn plus the session it landed in. SessionID
// matters when the caller omitted it and the service minted a fresh one.
type Answer struct {
	SessionID string
	workflow.TurnResult
}

// Ask runs one turn and returns the assistant's response. History writes are
// best-effort: a failed save is logged but never blocks the answer, since the
// user already paid for the model calls.
func (s *Service) Ask(ctx context.Context, userID, sessionID, query string) (Answer, error) {
	if query == "" {
		return Answer{}, fmt.Errorf("empty query")
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	s.saveMessage(userID, sessionID, "user", query)

	result := s.runner.ProcessTurn(ctx, userID, sessionID, query)

	s.saveMessage(userID, sessionID, "assistant", result.Response)
	return Answer{SessionID: sessionID, TurnResult: result}, nil
}

// History returns the session's messages in chronological order.
// limit <= 0 returns everything.
func (s *Service) History(userID, sessionID string, limit int) ([]storage.ChatMessage, error) {
	return s.store.ListChatMessages(userID, sessionID, limit)
}

// Sessions lists the user's sessions, most recently active first.
func (s *Service) Sessions(userID string) ([]storage.SessionInfo, error) {
	return s.store.ListSessions(userID)
}

func (s *Service) saveMessage(userID, sessionID, role, content string) {
	err := s.store.SaveChatMessage(storage.ChatMessage{
		ID:        uuid.New().String(),
		UserID:    userID,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		slog.Error("saving chat message failed", "error", err, "role", role, "session", sessionID)
	}
}
