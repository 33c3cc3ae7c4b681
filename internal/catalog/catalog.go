// Package catalog holds the small slice of the server's pg_type table the
// driver cares about, and the fixed OID-to-dtype mapping the columnar
// engine uses to decide how wide and how encoded each column's output
// buffer is.
package catalog

import "fmt"

// PgType is one row of the bootstrap pg_type query result.
type PgType struct {
	OID    uint32
	Name   string
	Size   int16 // typlen; negative for variable-length types
}

// Registry maps a type OID to its catalog row, populated once at connection
// setup time and never mutated afterward.
type Registry map[uint32]PgType

// Dtype is the set of NumPy-style dtype strings the columnar engine can
// produce. Only the five fixed-width numeric types are supported;
// every other OID is rejected with an error at fetch time.
type Dtype struct {
	Name string // e.g. ">i4"
	Size int    // element width in bytes
}

var dtypeByTypeName = map[string]Dtype{
	"int2":    {Name: ">i2", Size: 2},
	"int4":    {Name: ">i4", Size: 4},
	"int8":    {Name: ">i8", Size: 8},
	"float4":  {Name: ">f4", Size: 4},
	"float8":  {Name: ">f8", Size: 8},
}

// DtypeFor looks up the dtype for a column's type OID. It returns an error
// naming the OID's pg_type name (if known) when the type isn't one of the
// five supported numeric types.
func (r Registry) DtypeFor(oid uint32) (Dtype, error) {
	pt, ok := r[oid]
	if !ok {
		return Dtype{}, fmt.Errorf("catalog: unknown type OID %d", oid)
	}
	dt, ok := dtypeByTypeName[pt.Name]
	if !ok {
		return Dtype{}, fmt.Errorf("catalog: unsupported column type %q (OID %d)", pt.Name, oid)
	}
	return dt, nil
}

// Name returns the pg_type name for oid, or "" if unknown.
func (r Registry) Name(oid uint32) string {
	return r[oid].Name
}
