package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/finchat/internal/chat"
	"github.com/kalambet/finchat/internal/ingest"
	"github.com/kalambet/finchat/internal/storage"
)

const maxUploadSize = 25 << 20 // 25MB

// Uploader is the ingestion surface the upload handler drives.
type Uploader interface {
	Upload(ctx context.Context, userID, sessionID, filename string, content []byte) (ingest.UploadResult, error)
}

// Chatter is the chat surface the conversation handlers drive.
type Chatter interface {
	Ask(ctx context.Context, userID, sessionID, query string) (chat.Answer, error)
	History(userID, sessionID string, limit int) ([]storage.ChatMessage, error)
	Sessions(userID string) ([]storage.SessionInfo, error)
}

// AppDeps holds the collaborators of the HTTP surface.
type AppDeps struct {
	Ingest Uploader
	Chat   Chatter
	Token  string
}

// NewAppHandler returns the chatbot's REST API. All /api routes require the
// bearer token; /health does not, so probes stay simple.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Post("/upload", handleUpload(deps))
		r.Post("/chat", handleChat(deps))
		r.Get("/sessions/{user}", handleSessions(deps))
		r.Get("/history/{user}/{session}", handleHistory(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleUpload(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		defer r.Body.Close()

		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart body: %v", err)
			return
		}

		userID := r.FormValue("user_id")
		sessionID := r.FormValue("session_id")
		if userID == "" || sessionID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id and session_id are required")
			return
		}

		f, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file is required: %v", err)
			return
		}
		defer f.Close()

		content, err := io.ReadAll(f)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading file: %v", err)
			return
		}

		res, err := deps.Ingest.Upload(r.Context(), userID, sessionID, header.Filename, content)
		if err != nil {
			if errors.Is(err, storage.ErrDuplicateFile) {
				httpError(w, http.StatusConflict, "invalid_request_error", "%v", err)
				return
			}
			httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "%v", err)
			return
		}

		writeJSON(w, http.StatusCreated, res)
	}
}

// ChatRequest is the body of POST /api/v1/chat.
type ChatRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

// ChatResponse is the turn outcome returned to the client. SQLQuery is
// included so clients can show what ran against their data.
type ChatResponse struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
	SQLQuery  string `json:"sql_query,omitempty"`
}

func handleChat(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		defer r.Body.Close()

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.UserID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id is required")
			return
		}
		if req.Query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}

		ans, err := deps.Chat.Ask(r.Context(), req.UserID, req.SessionID, req.Query)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "processing turn: %v", err)
			return
		}

		resp := ChatResponse{
			SessionID: ans.SessionID,
			Response:  ans.Response,
		}
		if ans.Decision.Answerable {
			resp.SQLQuery = ans.Decision.Query
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleSessions(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "user")
		sessions, err := deps.Chat.Sessions(userID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing sessions: %v", err)
			return
		}

		type sessionJSON struct {
			SessionID    string `json:"session_id"`
			MessageCount int    `json:"message_count"`
			LastActivity string `json:"last_activity"`
		}
		out := make([]sessionJSON, len(sessions))
		for i, s := range sessions {
			out[i] = sessionJSON{
				SessionID:    s.SessionID,
				MessageCount: s.MessageCount,
				LastActivity: s.LastActivity.Format(time.RFC3339),
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "user")
		sessionID := chi.URLParam(r, "session")

		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid limit %q", v)
				return
			}
			limit = n
		}

		messages, err := deps.Chat.History(userID, sessionID, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing history: %v", err)
			return
		}

		type messageJSON struct {
			Role      string `json:"role"`
			Content   string `json:"content"`
			CreatedAt string `json:"created_at"`
		}
		out := make([]messageJSON, len(messages))
		for i, m := range messages {
			out[i] = messageJSON{
				Role:      m.Role,
				Content:   m.Content,
				CreatedAt: m.CreatedAt.Format(time.RFC3339),
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}
