package workflow

import (
	"github.com/kalambet/finchat/internal/catalog"
	"github.com/kalambet/finchat/internal/retrieval"
	"github.com/kalambet/finchat/internal/sqlgen"
)

// Route is the evidence-gathering path chosen for a turn.
type Route int

const (
	// RouteRetrieveDocs searches the session's document chunks.
	RouteRetrieveDocs Route = iota
	// RouteExecuteSQL runs the generated query against the data store.
	RouteExecuteSQL
)

func (r Route) String() string {
	if r == RouteExecuteSQL {
		return "execute_sql"
	}
	return "retrieve_docs"
}

// RouteFor is the pure routing function: a decision claiming SQL
// answerability goes to the executor; anything else, including the
// zero-value decision a failed generator degrades to, goes to retrieval.
func RouteFor(d sqlgen.Decision) Route {
	if d.Answerable {
		return RouteExecuteSQL
	}
	return RouteRetrieveDocs
}

// TurnState is the single-owner mutable state threaded through one turn's
// nodes. It is never shared between concurrent turns.
type TurnState struct {
	UserID    string
	SessionID string
	UserQuery string

	Tables   []catalog.TableDescriptor
	Decision sqlgen.Decision
	// DecisionNote records why a decision was downgraded (denied or failed
	// query), feeding the no-evidence synthesis variant.
	DecisionNote string
	SQLRows      []map[string]any
	Retrieval    *retrieval.Result

	Response string
}

// TurnResult is what a completed turn hands back to the caller.
type TurnResult struct {
	Decision  sqlgen.Decision
	SQLRows   []map[string]any
	Retrieval *retrieval.Result
	Response  string
}
