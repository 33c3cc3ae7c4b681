package columnar

import (
	"fmt"
	"math"
	"runtime"
	"strconv"
	"sync"

	"github.com/jkantaria/pgcolumn/internal/catalog"
	"github.com/jkantaria/pgcolumn/internal/wire"
)

// encoding distinguishes the two wire representations a DataRow's column
// bytes can arrive in; binary already matches the big-endian dtype layout
// byte-for-byte, text needs ASCII parsing before it can be packed.
type encoding int

const (
	encodingBinary encoding = iota
	encodingText
)

type columnSpec struct {
	name  string
	dtype catalog.Dtype
}

func buildColumnSpecs(desc wire.RowDescription, reg catalog.Registry) ([]columnSpec, error) {
	specs := make([]columnSpec, len(desc.Fields))
	for i, f := range desc.Fields {
		dt, err := reg.DtypeFor(f.TypeOID)
		if err != nil {
			return nil, fmt.Errorf("columnar: column %q: %w", f.Name, err)
		}
		specs[i] = columnSpec{name: f.Name, dtype: dt}
	}
	return specs, nil
}

// transposeConcurrency is the number of worker goroutines the transpose
// partitions rows across. It is a var, not a const, so tests can pin it.
var transposeConcurrency = runtime.NumCPU()

// SetTransposeConcurrency overrides the worker count used to partition rows
// during transpose. Values <= 0 are ignored, leaving the runtime.NumCPU()
// default in place.
func SetTransposeConcurrency(n int) {
	if n <= 0 {
		return
	}
	transposeConcurrency = n
}

// transpose parses rawRows (raw DataRow bodies, one per row) in parallel and
// packs the result column-major: each worker owns a contiguous row range,
// producing its own per-column byte slices, which are then concatenated in
// row order.
func transpose(rawRows [][]byte, specs []columnSpec, enc encoding) (FetchResult, error) {
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.name
	}

	if len(rawRows) == 0 {
		cols := make([]ColumnResult, len(specs))
		for i, s := range specs {
			cols[i] = ColumnResult{Name: s.name, Dtype: s.dtype.Name}
		}
		return newFetchResult(names, cols, 0)
	}

	workers := transposeConcurrency
	if workers < 1 {
		workers = 1
	}
	if workers > len(rawRows) {
		workers = len(rawRows)
	}
	chunkSize := (len(rawRows) + workers - 1) / workers

	type chunkResult struct {
		idx  int
		cols [][]byte // one []byte per column, this chunk's rows only
		err  error
	}

	results := make([]chunkResult, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > len(rawRows) {
			end = len(rawRows)
		}
		if start >= end {
			results[w] = chunkResult{idx: w}
			continue
		}
		wg.Add(1)
		go func(w, start, end int) {
			defer wg.Done()
			cols, err := transposeChunk(rawRows[start:end], specs, enc, start)
			results[w] = chunkResult{idx: w, cols: cols, err: err}
		}(w, start, end)
	}
	wg.Wait()

	out := make([][]byte, len(specs))
	for _, r := range results {
		if r.err != nil {
			return FetchResult{}, r.err
		}
		if r.cols == nil {
			continue
		}
		for c := range specs {
			out[c] = append(out[c], r.cols[c]...)
		}
	}

	cols := make([]ColumnResult, len(specs))
	for i, s := range specs {
		cols[i] = ColumnResult{Name: s.name, Dtype: s.dtype.Name, Bytes: out[i]}
	}
	return newFetchResult(names, cols, len(rawRows))
}

// transposeChunk parses each raw row body and appends its columns' encoded
// bytes into per-column buffers. rowOffset is the chunk's starting row
// index within the full result, used only for error messages.
func transposeChunk(rawRows [][]byte, specs []columnSpec, enc encoding, rowOffset int) ([][]byte, error) {
	bufs := make([][]byte, len(specs))
	for i, s := range specs {
		bufs[i] = make([]byte, 0, len(rawRows)*s.dtype.Size)
	}

	for r, body := range rawRows {
		row, err := wire.ParseDataRow(body)
		if err != nil {
			return nil, fmt.Errorf("columnar: row %d: %w", rowOffset+r, err)
		}
		if len(row.Columns) != len(specs) {
			return nil, fmt.Errorf("columnar: row %d: expected %d columns, got %d", rowOffset+r, len(specs), len(row.Columns))
		}
		for c, spec := range specs {
			val := row.Columns[c]
			if val == nil {
				return nil, fmt.Errorf("columnar: row %d, column %q: NULL values are not supported", rowOffset+r, spec.name)
			}
			switch enc {
			case encodingBinary:
				if len(*val) != spec.dtype.Size {
					return nil, fmt.Errorf("columnar: row %d, column %q: expected %d binary bytes, got %d", rowOffset+r, spec.name, spec.dtype.Size, len(*val))
				}
				bufs[c] = append(bufs[c], *val...)
			case encodingText:
				enc, err := encodeText(string(*val), spec.dtype)
				if err != nil {
					return nil, fmt.Errorf("columnar: row %d, column %q: %w", rowOffset+r, spec.name, err)
				}
				bufs[c] = append(bufs[c], enc...)
			}
		}
	}
	return bufs, nil
}

// encodeText parses a text-format scalar and re-encodes it as big-endian
// bytes of the given dtype.
func encodeText(s string, dt catalog.Dtype) ([]byte, error) {
	switch dt.Name {
	case ">i2":
		v, err := strconv.ParseInt(s, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("parsing int2: %w", err)
		}
		return []byte{byte(uint16(v) >> 8), byte(uint16(v))}, nil
	case ">i4":
		v, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("parsing int4: %w", err)
		}
		return be32(uint32(v)), nil
	case ">i8":
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing int8: %w", err)
		}
		return be64(uint64(v)), nil
	case ">f4":
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, fmt.Errorf("parsing float4: %w", err)
		}
		return be32(math.Float32bits(float32(v))), nil
	case ">f8":
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing float8: %w", err)
		}
		return be64(math.Float64bits(v)), nil
	default:
		return nil, fmt.Errorf("unsupported dtype %q", dt.Name)
	}
}

func be32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func be64(v uint64) []byte {
	return []byte{
		byte(v >> 56), byte(v >> 48), byte(v >> 40), byte(v >> 32),
		byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v),
	}
}
