package gal

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"knowledgefabric/fabricerr"
)

// Session groups multiple Cypher statements into one explicit
// transaction: Close commits if every Run call succeeded, or rolls back
// if any Run failed or Fail was called. Pool.Acquire hands Sessions out;
// the repository package uses Query instead.
type Session struct {
	ctx     context.Context
	neoSess neo4j.SessionWithContext
	tx      neo4j.ExplicitTransaction
	failed  bool
}

// Session opens an explicit transaction on a fresh session. Callers must
// call Close exactly once.
func (c *Connection) Session(ctx context.Context, mode AccessMode) (*Session, error) {
	neoSess := c.newSession(ctx, mode)

	tx, err := neoSess.BeginTransaction(ctx)
	if err != nil {
		_ = neoSess.Close(ctx)
		return nil, classify(err)
	}

	return &Session{ctx: ctx, neoSess: neoSess, tx: tx}, nil
}

// Run executes one parameterized statement within the session's
// transaction and materializes its result.
func (s *Session) Run(statement string, params map[string]any) (Rows, error) {
	result, err := s.tx.Run(s.ctx, statement, params)
	if err != nil {
		s.failed = true
		return nil, classify(err)
	}

	records, err := result.Collect(s.ctx)
	if err != nil {
		s.failed = true
		return nil, classify(err)
	}

	rows := make(Rows, 0, len(records))
	for _, rec := range records {
		rows = append(rows, Row(rec.AsMap()))
	}
	return rows, nil
}

// Fail marks the session for rollback regardless of whether a Run call
// itself returned an error, for callers that detect an application-level
// inconsistency (e.g. schema validation) after a successful Run.
func (s *Session) Fail() { s.failed = true }

// Close commits the transaction if nothing failed, otherwise rolls it
// back, and releases the underlying driver session either way.
func (s *Session) Close(ctx context.Context) error {
	defer s.neoSess.Close(ctx)

	if s.failed {
		if err := s.tx.Rollback(ctx); err != nil {
			return fabricerr.Wrap(fabricerr.QueryError, "rolling back transaction", err)
		}
		return nil
	}

	if err := s.tx.Commit(ctx); err != nil {
		return classify(err)
	}
	return nil
}
