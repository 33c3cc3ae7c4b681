package catalog

import "testing"

func newTestRegistry() Registry {
	return Registry{
		21:   PgType{OID: 21, Name: "int2", Size: 2},
		23:   PgType{OID: 23, Name: "int4", Size: 4},
		20:   PgType{OID: 20, Name: "int8", Size: 8},
		700:  PgType{OID: 700, Name: "float4", Size: 4},
		701:  PgType{OID: 701, Name: "float8", Size: 8},
		25:   PgType{OID: 25, Name: "text", Size: -1},
	}
}

func TestDtypeForSupportedTypes(t *testing.T) {
	r := newTestRegistry()
	cases := []struct {
		oid  uint32
		want string
	}{
		{21, ">i2"},
		{23, ">i4"},
		{20, ">i8"},
		{700, ">f4"},
		{701, ">f8"},
	}
	for _, tc := range cases {
		dt, err := r.DtypeFor(tc.oid)
		if err != nil {
			t.Fatalf("DtypeFor(%d) returned error: %v", tc.oid, err)
		}
		if dt.Name != tc.want {
			t.Errorf("DtypeFor(%d).Name = %q, want %q", tc.oid, dt.Name, tc.want)
		}
	}
}

func TestDtypeForUnsupportedType(t *testing.T) {
	r := newTestRegistry()
	if _, err := r.DtypeFor(25); err == nil {
		t.Fatal("expected error for text column, got nil")
	}
}

func TestDtypeForUnknownOID(t *testing.T) {
	r := newTestRegistry()
	if _, err := r.DtypeFor(99999); err == nil {
		t.Fatal("expected error for unknown OID, got nil")
	}
}

func TestName(t *testing.T) {
	r := newTestRegistry()
	if got := r.Name(23); got != "int4" {
		t.Errorf("Name(23) = %q, want int4", got)
	}
	if got := r.Name(99999); got != "" {
		t.Errorf("Name(unknown) = %q, want empty string", got)
	}
}
