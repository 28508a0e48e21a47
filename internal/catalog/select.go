package catalog

import "github.com/barrowdb/barrow/internal/sqlvalue"

// IndexChoice is the result of the index-selection heuristic: the picked
// index and the prefix of its key columns bound by known equality
// constants, in key order.
type IndexChoice struct {
	Index *Index
	Keys  []sqlvalue.Value
}

// ChooseIndex implements the longest-equality-prefix heuristic of spec
// §4.H: known is the set of columns the compiler proved are fixed to a
// constant by top-level equality/AND in the WHERE clause. It picks the
// index whose key columns share the longest prefix with known, among
// those with any match at all.
func ChooseIndex(t *Table, known map[int]sqlvalue.Value) *IndexChoice {
	var best *Index
	bestMatch := 0
	for _, ix := range t.Indexes() {
		m := coveredPrefix(ix.Cols, known)
		if m > bestMatch {
			bestMatch = m
			best = ix
		}
	}
	if best == nil || bestMatch == 0 {
		return nil
	}
	keys := make([]sqlvalue.Value, bestMatch)
	for i := 0; i < bestMatch; i++ {
		keys[i] = known[best.Cols[i]]
	}
	return &IndexChoice{Index: best, Keys: keys}
}

// coveredPrefix returns how many leading columns of cols are all present
// in known (the longest prefix of the index's key that WHERE pins to a
// constant).
func coveredPrefix(cols []int, known map[int]sqlvalue.Value) int {
	n := 0
	for _, c := range cols {
		if _, ok := known[c]; !ok {
			break
		}
		n++
	}
	return n
}
