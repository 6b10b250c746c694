package sqlscan

// ColumnsFunc returns the columns of a base table, or nil when the table is unknown.
type ColumnsFunc func(table string) []string

// Projection returns the output column names of sel. Star items are expanded
// through subqueries, CTEs and base tables; ok is false when a star cannot be
// resolved or an item has no derivable name.
func (st *Statement) Projection(sel *Select, columns ColumnsFunc) ([]string, bool) {
	return st.projection(sel, columns, 0)
}

// MainProjection is Projection applied to the main SELECT.
func (st *Statement) MainProjection(columns ColumnsFunc) ([]string, bool) {
	if st.Main == nil {
		return nil, false
	}
	return st.Projection(st.Main, columns)
}

const maxProjectionDepth = 32

func (st *Statement) projection(sel *Select, columns ColumnsFunc, depth int) ([]string, bool) {
	if sel == nil || depth > maxProjectionDepth {
		return nil, false
	}
	var out []string
	seen := make(map[string]bool)
	add := func(names ...string) {
		for _, n := range names {
			if n != "" && !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}

	ok := true
	for _, item := range sel.Items {
		if !item.Star {
			if item.Name == "" {
				ok = false
				continue
			}
			add(item.Name)
			continue
		}
		refs := sel.From
		if item.Qualifier != "" {
			ref, found := sel.Table(item.Qualifier)
			if !found {
				ok = false
				continue
			}
			refs = []TableRef{ref}
		}
		for _, ref := range refs {
			names, resolved := st.refColumns(ref, columns, depth)
			if !resolved {
				ok = false
			}
			add(names...)
		}
	}
	return out, ok
}

func (st *Statement) refColumns(ref TableRef, columns ColumnsFunc, depth int) ([]string, bool) {
	if ref.Subquery != nil {
		return st.projection(ref.Subquery, columns, depth+1)
	}
	if ref.Schema == "" {
		if cte, ok := st.CTE(ref.Name); ok {
			return st.projection(cte.Body, columns, depth+1)
		}
	}
	if columns == nil {
		return nil, false
	}
	cols := columns(ref.Name)
	return cols, cols != nil
}
