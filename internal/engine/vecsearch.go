package engine

import (
	"fmt"

	"github.com/vectorbase/vectorbase/internal/storage"
)

// VecSearchResult is one row of a VecSearch call: every column of the
// matched row plus its distance from the query vector and its
// 1-based rank (1 = closest).
type VecSearchResult struct {
	Row      map[string]storage.Value
	Distance float32
	Rank     int
}

// VecSearch runs a k-nearest-neighbor lookup against table.column's ANN
// graph, for callers that want VEC_SEARCH('table', 'column', vector, k)
// semantics without going through SQL. ORDER BY SIMILARITY TO covers the
// common case of searching by a literal needing embedding first; this
// is for callers that already have a vector in hand, e.g. a precomputed
// query embedding.
func (c *Conn) VecSearch(table, column string, query []float32, k int) ([]VecSearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("engine: VecSearch k must be positive")
	}
	t, err := c.db.Catalog.Table(table)
	if err != nil {
		return nil, err
	}
	graph := c.db.Ann.Graph(table, column)
	if graph == nil {
		return nil, nil
	}
	snap := c.readSnapshot()
	clog := c.db.Catalog.CLog

	results := graph.Search(query, k)
	out := make([]VecSearchResult, 0, len(results))
	for i, res := range results {
		data, ok := t.Get(res.RowID, snap, clog)
		if !ok {
			continue
		}
		out = append(out, VecSearchResult{Row: data, Distance: res.Distance, Rank: i + 1})
	}
	return out, nil
}
