package catalog

// Mismatch is a catalog entry the live database does not have.
type Mismatch struct {
	Table string `json:"table"`
	// Column is empty when the whole table is missing.
	Column string `json:"column,omitempty"`
}

// Diff reports the catalog tables and columns missing from live, which maps
// lower-case table names to their columns. The result is ordered by table
// then catalog column order.
func (c *Catalog) Diff(live map[string][]string) []Mismatch {
	var out []Mismatch
	for _, table := range c.Tables() {
		cols, ok := live[table]
		if !ok {
			out = append(out, Mismatch{Table: table})
			continue
		}
		have := make(map[string]bool, len(cols))
		for _, col := range cols {
			have[col] = true
		}
		for _, col := range c.Columns(table) {
			if !have[col] {
				out = append(out, Mismatch{Table: table, Column: col})
			}
		}
	}
	return out
}
