package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kalambet/finchat/internal/config"
)

// orNewSession mints a fresh session ID when none was given, so the
// documented default of "new session when omitted" holds for commands
// whose server endpoint requires an explicit session.
func orNewSession(sessionID string) string {
	if sessionID != "" {
		return sessionID
	}
	return uuid.NewString()
}

// --- upload ---

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a spreadsheet or document into a session",
	Long: `Upload a spreadsheet or document into a session.

Tabular files (.csv, .xlsx) become SQL tables the chatbot can query;
documents (.pdf, .docx, .txt) are indexed for semantic search.

Examples:
  finchat upload transactions.csv --user alice
  finchat upload report.pdf --user alice --session 4f1c2d`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		sessionID, _ := cmd.Flags().GetString("session")
		if userID == "" {
			return fmt.Errorf("--user is required")
		}
		minted := sessionID == ""
		sessionID = orNewSession(sessionID)

		path := args[0]
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.postFile(cmd.Context(), "/api/v1/upload", userID, sessionID, filepath.Base(path), content)
		if err != nil {
			return err
		}

		var result struct {
			FileID    string `json:"file_id"`
			Filename  string `json:"filename"`
			Kind      string `json:"kind"`
			TableName string `json:"table_name"`
			RowCount  int    `json:"row_count"`
			Queued    bool   `json:"embedding_queued"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		switch result.Kind {
		case "tabular":
			printSuccess("Uploaded %s: table %s (%d rows)", result.Filename, result.TableName, result.RowCount)
		default:
			printSuccess("Uploaded %s: indexing queued", result.Filename)
		}
		printStatus("File ID", "%s", result.FileID)
		if minted {
			printStatus("Session", "%s", sessionID)
		}
		return nil
	},
}

func init() {
	uploadCmd.Flags().String("user", "", "user the upload belongs to")
	uploadCmd.Flags().String("session", "", "session to upload into (new session when omitted)")
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about the uploaded data and documents",
	Long: `Ask a question about the uploaded data and documents.

Examples:
  finchat ask "what were my total expenses in March?" --user alice
  finchat ask "what does the report say about revenue?" --user alice --session 4f1c2d`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		sessionID, _ := cmd.Flags().GetString("session")
		showSQL, _ := cmd.Flags().GetBool("show-sql")
		if userID == "" {
			return fmt.Errorf("--user is required")
		}

		query := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{
			"user_id": userID,
			"query":   query,
		}
		if sessionID != "" {
			req["session_id"] = sessionID
		}

		resp, err := client.post(cmd.Context(), "/api/v1/chat", req)
		if err != nil {
			return err
		}

		var result struct {
			SessionID string `json:"session_id"`
			Response  string `json:"response"`
			SQLQuery  string `json:"sql_query"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Response)
		if showSQL && result.SQLQuery != "" {
			fmt.Fprintf(os.Stderr, "\n%s %s\n", colorize(colorBold, "SQL:"), result.SQLQuery)
		}
		if sessionID == "" {
			printStatus("Session", "%s", result.SessionID)
		}
		return nil
	},
}

func init() {
	askCmd.Flags().String("user", "", "user the data belongs to")
	askCmd.Flags().String("session", "", "session to continue (new session when omitted)")
	askCmd.Flags().Bool("show-sql", false, "print the SQL query the answer was grounded on")
}

// --- sessions ---

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List a user's chat sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		if userID == "" {
			return fmt.Errorf("--user is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/v1/sessions/"+url.PathEscape(userID))
		if err != nil {
			return err
		}

		var sessions []struct {
			SessionID    string `json:"session_id"`
			MessageCount int    `json:"message_count"`
			LastActivity string `json:"last_activity"`
		}
		if err := decodeJSON(resp, &sessions); err != nil {
			return err
		}

		if len(sessions) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		for _, s := range sessions {
			fmt.Printf("%s  %s  %d messages\n",
				colorize(colorCyan, s.SessionID),
				s.LastActivity,
				s.MessageCount,
			)
		}
		return nil
	},
}

func init() {
	sessionsCmd.Flags().String("user", "", "user whose sessions to list")
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the messages of a chat session",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		sessionID, _ := cmd.Flags().GetString("session")
		limit, _ := cmd.Flags().GetInt("limit")
		if userID == "" || sessionID == "" {
			return fmt.Errorf("--user and --session are required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/api/v1/history/%s/%s?limit=%d",
			url.PathEscape(userID), url.PathEscape(sessionID), limit)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var messages []struct {
			Role      string `json:"role"`
			Content   string `json:"content"`
			CreatedAt string `json:"created_at"`
		}
		if err := decodeJSON(resp, &messages); err != nil {
			return err
		}

		if len(messages) == 0 {
			fmt.Println("No messages found.")
			return nil
		}

		for _, m := range messages {
			label := m.Role
			if label == "user" {
				label = colorize(colorCyan, "user")
			} else {
				label = colorize(colorGreen, "assistant")
			}
			fmt.Printf("[%s] %s\n%s\n\n", m.CreatedAt, label, m.Content)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().String("user", "", "user whose session to show")
	historyCmd.Flags().String("session", "", "session to show")
	historyCmd.Flags().Int("limit", 50, "maximum number of messages to show")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
