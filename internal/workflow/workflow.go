package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kalambet/finchat/internal/answer"
	"github.com/kalambet/finchat/internal/catalog"
	"github.com/kalambet/finchat/internal/retrieval"
	"github.com/kalambet/finchat/internal/sqlgen"
)

// SchemaCatalog loads table descriptors for a session.
type SchemaCatalog interface {
	FetchTables(ctx context.Context, userID, sessionID string) ([]catalog.TableDescriptor, error)
}

// SQLGenerator decides SQL answerability and writes the query. Implementations
// degrade to the zero Decision on failure rather than returning an error.
type SQLGenerator interface {
	Generate(ctx context.Context, userQuery string, tables []catalog.TableDescriptor) sqlgen.Decision
}

// SQLExecutor runs read-only statements against the materialized data store.
type SQLExecutor interface {
	Execute(ctx context.Context, query string) ([]map[string]any, error)
}

// DocRetriever searches the session's document chunks for evidence.
type DocRetriever interface {
	Retrieve(ctx context.Context, userID, sessionID, query string) retrieval.Result
}

// AnswerSynthesizer turns gathered evidence into a prose answer. All three
// methods return a usable string even on internal failure.
type AnswerSynthesizer interface {
	FromSQL(ctx context.Context, userQuery, sqlQuery string, rows []map[string]any) string
	FromDocuments(ctx context.Context, userQuery string, matches []retrieval.Match) string
	NoEvidence(ctx context.Context, userQuery, detail string) string
}

// Workflow is the per-turn orchestrator: fetch schema, decide a route, gather
// evidence, synthesize. All collaborators are injected so tests can substitute
// fakes per node.
type Workflow struct {
	catalog     SchemaCatalog
	generator   SQLGenerator
	executor    SQLExecutor
	retriever   DocRetriever
	synthesizer AnswerSynthesizer
}

// New creates a Workflow over the given collaborators.
func New(cat SchemaCatalog, gen SQLGenerator, exec SQLExecutor, ret DocRetriever, syn AnswerSynthesizer) *Workflow {
	return &Workflow{
		catalog:     cat,
		generator:   gen,
		executor:    exec,
		retriever:   ret,
		synthesizer: syn,
	}
}

// ProcessTurn runs one full turn. It never returns an error and never
// panics past its boundary: every node degrades internally, and a true
// double fault still produces the fixed apology response.
func (w *Workflow) ProcessTurn(ctx context.Context, userID, sessionID, userQuery string) (result TurnResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("workflow panicked", "panic", r, "user", userID, "session", sessionID)
			result = TurnResult{Response: answer.ApologyMessage}
		}
	}()

	s := &TurnState{UserID: userID, SessionID: sessionID, UserQuery: userQuery}

	w.fetchSchema(ctx, s)
	w.analyzeQuery(ctx, s)

	switch RouteFor(s.Decision) {
	case RouteExecuteSQL:
		w.executeSQL(ctx, s)
	case RouteRetrieveDocs:
		w.retrieveDocs(ctx, s)
	}

	w.synthesize(ctx, s)

	return TurnResult{
		Decision:  s.Decision,
		SQLRows:   s.SQLRows,
		Retrieval: s.Retrieval,
		Response:  s.Response,
	}
}

// fetchSchema loads the session's table descriptors. Accessor failure is not
// fatal: the question might still be answerable from documents.
func (w *Workflow) fetchSchema(ctx context.Context, s *TurnState) {
	tables, err := w.catalog.FetchTables(ctx, s.UserID, s.SessionID)
	if err != nil {
		slog.Warn("fetching table catalog failed", "error", err, "user", s.UserID, "session", s.SessionID)
		s.Tables = []catalog.TableDescriptor{}
		return
	}
	s.Tables = tables
}

// analyzeQuery asks the generator for a routing decision. The generator
// already degrades to the zero Decision on its own failures.
func (w *Workflow) analyzeQuery(ctx context.Context, s *TurnState) {
	s.Decision = w.generator.Generate(ctx, s.UserQuery, s.Tables)
	slog.Debug("query analyzed", "answerable", s.Decision.Answerable, "table", s.Decision.Table)
}

// executeSQL runs the generated query. On any failure, including the
// destructive-statement denylist, the decision is downgraded so synthesis
// falls through to the no-evidence branch.
func (w *Workflow) executeSQL(ctx context.Context, s *TurnState) {
	rows, err := w.executor.Execute(ctx, s.Decision.Query)
	if err != nil {
		slog.Warn("sql execution failed", "error", err, "query", s.Decision.Query)
		s.SQLRows = []map[string]any{}
		s.Decision.Answerable = false
		s.DecisionNote = fmt.Sprintf("the generated query could not be executed: %v", err)
		return
	}
	s.SQLRows = rows
}

// retrieveDocs searches the session's documents. The retriever captures its
// own failures into the result, so this node cannot fail.
func (w *Workflow) retrieveDocs(ctx context.Context, s *TurnState) {
	res := w.retriever.Retrieve(ctx, s.UserID, s.SessionID, s.UserQuery)
	s.Retrieval = &res
}

// synthesize selects a prompt variant from the gathered evidence and produces
// the final response. Variant selection is a pure function of the state.
func (w *Workflow) synthesize(ctx context.Context, s *TurnState) {
	switch {
	case s.Decision.Answerable && len(s.SQLRows) > 0:
		s.Response = w.synthesizer.FromSQL(ctx, s.UserQuery, s.Decision.Query, s.SQLRows)
	case s.Retrieval != nil && s.Retrieval.Succeeded && len(s.Retrieval.Matches) > 0:
		s.Response = w.synthesizer.FromDocuments(ctx, s.UserQuery, s.Retrieval.Matches)
	default:
		s.Response = w.synthesizer.NoEvidence(ctx, s.UserQuery, w.noEvidenceDetail(s))
	}
}

// noEvidenceDetail summarizes why the turn gathered nothing usable, so the
// fallback variant can explain it to the user.
func (w *Workflow) noEvidenceDetail(s *TurnState) string {
	switch {
	case s.DecisionNote != "":
		return s.DecisionNote
	case s.Decision.Answerable && len(s.SQLRows) == 0:
		return "the query executed successfully but returned no rows"
	case s.Retrieval != nil && s.Retrieval.Message != "":
		return s.Retrieval.Message
	case len(s.Tables) == 0:
		return "no tables or documents have been uploaded for this session"
	default:
		return ""
	}
}
