// This file implements the query compilation cache:
//   - What: a lightweight in-memory LRU cache of parsed Statement ASTs.
//   - How: queries are keyed by their exact SQL text; the cache holds a
//     Statement plus ParsedAt and returns it to callers to avoid
//     re-parsing. LRU eviction via container/list keeps it bounded with
//     O(1) eviction.
//   - Why: parsing is comparatively expensive and often repeated for
//     the same hot statement; caching keeps Conn.Execute's latency
//     predictable without the caller needing to pre-compile anything.
package engine

import (
	"container/list"
	"fmt"
	"time"
)

// CompiledQuery is a pre-parsed, cached SQL statement.
type CompiledQuery struct {
	SQL       string
	Statement Statement
	ParsedAt  time.Time
}

type cacheEntry struct {
	key string
	cq  *CompiledQuery
}

// QueryCache manages compiled queries with LRU eviction.
type QueryCache struct {
	entries map[string]*list.Element
	order   *list.List // front = most recently used
	maxSize int
}

// NewQueryCache creates a cache holding at most maxSize compiled
// queries (0 or negative defaults to 1000).
func NewQueryCache(maxSize int) *QueryCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &QueryCache{
		entries: make(map[string]*list.Element, maxSize),
		order:   list.New(),
		maxSize: maxSize,
	}
}

// Compile parses sql and caches the result, or returns the cached
// CompiledQuery for an exact repeat of the same text. Not goroutine
// safe; callers serialize access the same way they serialize
// statement execution (spec §5 has no concurrent-compile requirement).
func (qc *QueryCache) Compile(sqlText string) (*CompiledQuery, error) {
	if elem, exists := qc.entries[sqlText]; exists {
		qc.order.MoveToFront(elem)
		return elem.Value.(*cacheEntry).cq, nil
	}

	stmt, err := ParseStatement(sqlText)
	if err != nil {
		return nil, fmt.Errorf("compile error: %w", err)
	}
	compiled := &CompiledQuery{SQL: sqlText, Statement: stmt, ParsedAt: parseTimestamp()}

	if qc.order.Len() >= qc.maxSize {
		if tail := qc.order.Back(); tail != nil {
			qc.order.Remove(tail)
			delete(qc.entries, tail.Value.(*cacheEntry).key)
		}
	}
	entry := &cacheEntry{key: sqlText, cq: compiled}
	qc.entries[sqlText] = qc.order.PushFront(entry)
	return compiled, nil
}

// parseTimestamp exists only so ParsedAt has a meaningful value; split
// out to one line so it's obvious this is the only time.Now() call in
// the cache.
func parseTimestamp() time.Time { return time.Now() }

// MustCompile is like Compile but panics on error, for callers (tests,
// setup code) building a statement from a known-good literal.
func (qc *QueryCache) MustCompile(sqlText string) *CompiledQuery {
	cq, err := qc.Compile(sqlText)
	if err != nil {
		panic(fmt.Sprintf("MustCompile(%q): %v", sqlText, err))
	}
	return cq
}

// Clear empties the cache.
func (qc *QueryCache) Clear() {
	qc.entries = make(map[string]*list.Element, qc.maxSize)
	qc.order.Init()
}

// Size returns the number of cached queries.
func (qc *QueryCache) Size() int { return len(qc.entries) }

// Stats reports cache occupancy, e.g. for a diagnostics endpoint.
func (qc *QueryCache) Stats() map[string]any {
	return map[string]any{
		"size":    len(qc.entries),
		"maxSize": qc.maxSize,
	}
}
