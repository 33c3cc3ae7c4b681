package columnar

import (
	"encoding/binary"
	"testing"

	"github.com/jkantaria/pgcolumn/internal/catalog"
	"github.com/jkantaria/pgcolumn/internal/wire"
)

func testRegistry() catalog.Registry {
	return catalog.Registry{
		23:  catalog.PgType{OID: 23, Name: "int4", Size: 4},
		701: catalog.PgType{OID: 701, Name: "float8", Size: 8},
		25:  catalog.PgType{OID: 25, Name: "text", Size: -1},
	}
}

func rowDescriptionBody(fields []wire.FieldDescription) []byte {
	var body []byte
	body = wire.PutUint16(body, uint16(len(fields)))
	for _, f := range fields {
		body = wire.PutCString(body, f.Name)
		body = append(body, make([]byte, 6)...) // tableOID + attnum, unused
		var oidBuf [4]byte
		binary.BigEndian.PutUint32(oidBuf[:], f.TypeOID)
		body = append(body, oidBuf[:]...)
		body = append(body, make([]byte, 8)...) // typlen, typmod, format code
	}
	return body
}

func binaryDataRowBody(cols [][]byte) []byte {
	var body []byte
	body = wire.PutUint16(body, uint16(len(cols)))
	for _, c := range cols {
		if c == nil {
			body = wire.PutInt32(body, -1)
			continue
		}
		body = wire.PutInt32(body, int32(len(c)))
		body = append(body, c...)
	}
	return body
}

func textDataRowBody(cols []string) []byte {
	out := make([][]byte, len(cols))
	for i, c := range cols {
		out[i] = []byte(c)
	}
	return binaryDataRowBody(out)
}

func TestBuildColumnSpecs(t *testing.T) {
	desc := wire.RowDescription{Fields: []wire.FieldDescription{
		{Name: "id", TypeOID: 23},
		{Name: "score", TypeOID: 701},
	}}
	specs, err := buildColumnSpecs(desc, testRegistry())
	if err != nil {
		t.Fatalf("buildColumnSpecs failed: %v", err)
	}
	if len(specs) != 2 || specs[0].name != "id" || specs[0].dtype.Name != ">i4" {
		t.Errorf("unexpected specs: %+v", specs)
	}
	if specs[1].dtype.Name != ">f8" {
		t.Errorf("specs[1].dtype = %+v, want >f8", specs[1].dtype)
	}
}

func TestBuildColumnSpecsUnsupportedType(t *testing.T) {
	desc := wire.RowDescription{Fields: []wire.FieldDescription{{Name: "name", TypeOID: 25}}}
	if _, err := buildColumnSpecs(desc, testRegistry()); err == nil {
		t.Fatal("expected error for text column")
	}
}

func TestTransposeBinarySingleWorker(t *testing.T) {
	old := transposeConcurrency
	transposeConcurrency = 1
	defer func() { transposeConcurrency = old }()

	specs := []columnSpec{{name: "id", dtype: catalog.Dtype{Name: ">i4", Size: 4}}}
	rows := [][]byte{
		binaryDataRowBody([][]byte{wire.PutUint32(nil, 1)}),
		binaryDataRowBody([][]byte{wire.PutUint32(nil, 2)}),
	}

	result, err := transpose(rows, specs, encodingBinary)
	if err != nil {
		t.Fatalf("transpose failed: %v", err)
	}
	if result.RowCount() != 2 {
		t.Errorf("RowCount = %d, want 2", result.RowCount())
	}
	col, ok := result.Column("id")
	if !ok {
		t.Fatal("expected column id")
	}
	if col.Len() != 2 {
		t.Errorf("col.Len() = %d, want 2", col.Len())
	}
	if binary.BigEndian.Uint32(col.Bytes[0:4]) != 1 || binary.BigEndian.Uint32(col.Bytes[4:8]) != 2 {
		t.Errorf("unexpected column bytes: %v", col.Bytes)
	}
}

func TestTransposeBinaryMultipleWorkersPreservesOrder(t *testing.T) {
	old := transposeConcurrency
	transposeConcurrency = 4
	defer func() { transposeConcurrency = old }()

	specs := []columnSpec{{name: "id", dtype: catalog.Dtype{Name: ">i4", Size: 4}}}
	var rows [][]byte
	for i := uint32(0); i < 17; i++ {
		rows = append(rows, binaryDataRowBody([][]byte{wire.PutUint32(nil, i)}))
	}

	result, err := transpose(rows, specs, encodingBinary)
	if err != nil {
		t.Fatalf("transpose failed: %v", err)
	}
	col, _ := result.Column("id")
	for i := 0; i < 17; i++ {
		got := binary.BigEndian.Uint32(col.Bytes[i*4 : i*4+4])
		if got != uint32(i) {
			t.Fatalf("row %d = %d, want %d (worker partitioning broke row order)", i, got, i)
		}
	}
}

func TestTransposeTextEncoding(t *testing.T) {
	specs := []columnSpec{
		{name: "id", dtype: catalog.Dtype{Name: ">i4", Size: 4}},
		{name: "score", dtype: catalog.Dtype{Name: ">f8", Size: 8}},
	}
	rows := [][]byte{
		textDataRowBody([]string{"42", "3.5"}),
	}

	result, err := transpose(rows, specs, encodingText)
	if err != nil {
		t.Fatalf("transpose failed: %v", err)
	}
	idCol, _ := result.Column("id")
	if binary.BigEndian.Uint32(idCol.Bytes) != 42 {
		t.Errorf("id column = %v, want 42", idCol.Bytes)
	}
}

func TestTransposeEmptyResult(t *testing.T) {
	specs := []columnSpec{{name: "id", dtype: catalog.Dtype{Name: ">i4", Size: 4}}}
	result, err := transpose(nil, specs, encodingBinary)
	if err != nil {
		t.Fatalf("transpose failed: %v", err)
	}
	if result.RowCount() != 0 {
		t.Errorf("RowCount = %d, want 0", result.RowCount())
	}
	col, ok := result.Column("id")
	if !ok || col.Len() != 0 {
		t.Errorf("expected empty id column, got %+v", col)
	}
}

func TestTransposeNullValueRejected(t *testing.T) {
	specs := []columnSpec{{name: "id", dtype: catalog.Dtype{Name: ">i4", Size: 4}}}
	rows := [][]byte{binaryDataRowBody([][]byte{nil})}

	if _, err := transpose(rows, specs, encodingBinary); err == nil {
		t.Fatal("expected error for NULL column value")
	}
}

func TestTransposeBinaryWidthMismatch(t *testing.T) {
	specs := []columnSpec{{name: "id", dtype: catalog.Dtype{Name: ">i4", Size: 4}}}
	rows := [][]byte{binaryDataRowBody([][]byte{{0x01, 0x02}})}

	if _, err := transpose(rows, specs, encodingBinary); err == nil {
		t.Fatal("expected error for short binary column value")
	}
}
