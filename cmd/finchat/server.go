package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/finchat/internal/answer"
	"github.com/kalambet/finchat/internal/api"
	"github.com/kalambet/finchat/internal/catalog"
	"github.com/kalambet/finchat/internal/chat"
	"github.com/kalambet/finchat/internal/config"
	"github.com/kalambet/finchat/internal/ingest"
	"github.com/kalambet/finchat/internal/ollama"
	"github.com/kalambet/finchat/internal/retrieval"
	"github.com/kalambet/finchat/internal/sqlexec"
	"github.com/kalambet/finchat/internal/sqlgen"
	"github.com/kalambet/finchat/internal/storage"
	"github.com/kalambet/finchat/internal/workflow"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the finchat server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running finchat server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show finchat system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "finchat.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func parseTimeout(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("invalid timeout, using default", "value", value, "default", fallback, "error", err)
		return fallback
	}
	return d
}

func runServer(ctx context.Context) error {
	fmt.Fprintf(os.Stderr, "finchat version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Ensure the API bearer token exists so clients can authenticate.
	apiToken, err := config.EnsureToken(cfg)
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Refuse to start twice. The health endpoint answering means a server
	// already owns the port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("finchat is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("finchat is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	// Check Ollama readiness: all three models must be available.
	ollamaClient := ollama.New(cfg.Ollama.BaseURL)
	models := []string{cfg.Ollama.SQLModel, cfg.Ollama.AnswerModel, cfg.Ollama.EmbedModel}
	if err := ollama.EnsureReady(ctx, ollamaClient, models, os.Stderr); err != nil {
		return err
	}

	// Open the metadata store, the data database the uploads materialize
	// into, and a read-only handle on the same data for query execution.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	dataDB, err := storage.OpenData(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening data database: %w", err)
	}
	defer dataDB.Close()

	executor, err := sqlexec.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening query executor: %w", err)
	}
	defer executor.Close()

	// Build the turn workflow and its collaborators.
	embedder := retrieval.NewEmbedder(ollamaClient, cfg.Ollama.EmbedModel)
	vectorStore := retrieval.NewSQLiteStore(store.DB())
	retriever := retrieval.NewRetriever(embedder, vectorStore, cfg.Retrieval.TopK)
	tableCatalog := catalog.NewAccessor(store)
	generator := sqlgen.NewGenerator(
		ollamaClient,
		cfg.Ollama.SQLModel,
		parseTimeout(cfg.Workflow.GenerationTimeout, 30*time.Second),
	)
	synthesizer := answer.NewSynthesizer(
		ollamaClient,
		cfg.Ollama.AnswerModel,
		parseTimeout(cfg.Workflow.SynthesisTimeout, 60*time.Second),
	)
	turns := workflow.New(tableCatalog, generator, executor, retriever, synthesizer)
	chatSvc := chat.NewService(turns, store)
	ingestSvc := ingest.NewService(store, dataDB)

	// Start the embedding worker.
	worker := ingest.NewWorker(store, embedder, vectorStore, 500*time.Millisecond)
	go worker.Run(ctx)

	// Build HTTP handler and server.
	handler := api.NewAppHandler(api.AppDeps{
		Ingest: ingestSvc,
		Chat:   chatSvc,
		Token:  apiToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Chat:     chatSvc,
		Catalog:  tableCatalog,
		Searcher: retriever,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "finchat listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("finchat is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop finchat (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to finchat (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	// Check Ollama.
	ollamaClient := ollama.New(cfg.Ollama.BaseURL)
	if ollamaClient.IsRunning(ctx) {
		printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
	} else {
		printStatus("Ollama", "not running")
	}

	// Show models.
	printStatus("SQL model", "%s", cfg.Ollama.SQLModel)
	printStatus("Answer model", "%s", cfg.Ollama.AnswerModel)
	printStatus("Embed model", "%s", cfg.Ollama.EmbedModel)

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
