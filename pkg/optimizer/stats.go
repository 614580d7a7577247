package optimizer

import "github.com/bobboyms/reldb/pkg/storage"

// StatsProvider is the optimizer's view of Block Storage's catalog: per-
// table row/block counts and column cardinalities. storage.Engine's
// get_stats already matches this shape, so a live engine satisfies it
// without an adapter.
type StatsProvider interface {
	GetStats(table string) (storage.Statistic, error)
}

// statsOf fetches a table's statistics, falling back to a single-row,
// single-block estimate when the provider can't answer (an unopened table,
// or a provider-less plan-only call from a test) rather than failing the
// whole cost estimate over one missing table.
func statsOf(stats StatsProvider, table string) storage.Statistic {
	if stats == nil {
		return storage.Statistic{Table: table, RowCount: 1, BlockCount: 1}
	}
	s, err := stats.GetStats(table)
	if err != nil {
		return storage.Statistic{Table: table, RowCount: 1, BlockCount: 1}
	}
	return s
}

// distinctOf returns V(col, table): the observed cardinality of col, or the
// row count itself (worst case, every row distinct) if no stats were
// collected for that column.
func distinctOf(s storage.Statistic, col string) int64 {
	if v, ok := s.Distinct[col]; ok && v > 0 {
		return v
	}
	if s.RowCount > 0 {
		return s.RowCount
	}
	return 1
}

func hasIndex(s storage.Statistic, col string) bool {
	for _, idx := range s.Indexes {
		if idx == col {
			return true
		}
	}
	return false
}
