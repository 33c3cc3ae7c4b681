// Package columnar implements the two query flavors and the
// row-major-to-column-major transpose: simple-query text results and
// extended/prepared binary results, both converging on the same
// FetchResult shape so callers don't care which path produced it.
package columnar

import "fmt"

// ColumnResult is one column's worth of fixed-width values, packed
// back-to-back in big-endian byte order per its Dtype.
type ColumnResult struct {
	Name  string
	Dtype string // e.g. ">i4", matching catalog.Dtype.Name
	Bytes []byte
}

// Len returns the number of elements in the column.
func (c ColumnResult) Len() int {
	size := dtypeSize(c.Dtype)
	if size == 0 {
		return 0
	}
	return len(c.Bytes) / size
}

func dtypeSize(dtype string) int {
	switch dtype {
	case ">i2":
		return 2
	case ">i4", ">f4":
		return 4
	case ">i8", ">f8":
		return 8
	default:
		return 0
	}
}

// FetchResult is the outcome of a single Fetch call: an ordered column list
// (matching RowDescription field order) plus the columns keyed by
// name for lookup.
type FetchResult struct {
	Columns  []string
	byColumn map[string]ColumnResult
	rowCount int
}

// Column returns the named column's result and whether it was present.
func (r FetchResult) Column(name string) (ColumnResult, bool) {
	c, ok := r.byColumn[name]
	return c, ok
}

// At returns the column at position i in RowDescription order.
func (r FetchResult) At(i int) ColumnResult {
	return r.byColumn[r.Columns[i]]
}

// RowCount returns the number of rows fetched.
func (r FetchResult) RowCount() int {
	return r.rowCount
}

func newFetchResult(names []string, cols []ColumnResult, rowCount int) (FetchResult, error) {
	if len(names) != len(cols) {
		return FetchResult{}, fmt.Errorf("columnar: column name/result count mismatch")
	}
	by := make(map[string]ColumnResult, len(cols))
	for i, name := range names {
		by[name] = cols[i]
	}
	return FetchResult{Columns: names, byColumn: by, rowCount: rowCount}, nil
}
