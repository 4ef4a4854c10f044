package database

import (
	"database/sql"
	"sync"
)

// StmtCache prepares each query once and hands the same statement to every
// caller. The orderdb runs a small fixed set of queries on a hot path, so
// re-preparing per call would be pure waste.
type StmtCache struct {
	db *sql.DB

	mu    sync.RWMutex
	stmts map[string]*sql.Stmt
}

func NewStmtCache(db *sql.DB) *StmtCache {
	return &StmtCache{
		db:    db,
		stmts: make(map[string]*sql.Stmt),
	}
}

func (sc *StmtCache) Prepare(query string) (*sql.Stmt, error) {
	sc.mu.RLock()
	stmt, ok := sc.stmts[query]
	sc.mu.RUnlock()
	if ok {
		return stmt, nil
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	// somebody may have prepared it while we waited for the write lock
	if stmt, ok := sc.stmts[query]; ok {
		return stmt, nil
	}

	stmt, err := sc.db.Prepare(query)
	if err != nil {
		return nil, err
	}
	sc.stmts[query] = stmt
	return stmt, nil
}

// Clear closes every cached statement. Call before closing the db.
func (sc *StmtCache) Clear() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	for query, stmt := range sc.stmts {
		_ = stmt.Close()
		delete(sc.stmts, query)
	}
}
