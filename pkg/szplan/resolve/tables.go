package resolve

import (
	"fmt"
	"math"

	"github.com/jamesainslie/szplan/pkg/szplan/types"
)

// SparseMethodFactor bounds the outlier fraction the sparse-residual method
// supports: sparsity*SparseMethodFactor must stay below 1 (under 5%).
const SparseMethodFactor = 20

// LargeInputThreshold is the largest element count 4-byte metadata can hold.
const LargeInputThreshold uint64 = math.MaxUint32

// Concrete representations. The accelerator names are what the device API
// expects at each width; entropy codes differ from metadata at 64 bits because
// the device's 64-bit atomics only accept "unsigned long long".
var (
	typeUint8   = types.NumericType{Kind: types.Unsigned, Width: 1, Name: "uint8", AcceleratorName: "uint8_t"}
	typeUint16  = types.NumericType{Kind: types.Unsigned, Width: 2, Name: "uint16", AcceleratorName: "uint16_t"}
	typeUint32  = types.NumericType{Kind: types.Unsigned, Width: 4, Name: "uint32", AcceleratorName: "uint32_t"}
	typeUint64  = types.NumericType{Kind: types.Unsigned, Width: 8, Name: "uint64", AcceleratorName: "uint64_t"}
	typeFloat32 = types.NumericType{Kind: types.Float, Width: 4, Name: "float32", AcceleratorName: "float"}
	typeFloat64 = types.NumericType{Kind: types.Float, Width: 8, Name: "float64", AcceleratorName: "double"}

	typeAtomicUint32 = types.NumericType{Kind: types.Unsigned, Width: 4, Name: "uint32", AcceleratorName: "unsigned int"}
	typeAtomicUint64 = types.NumericType{Kind: types.Unsigned, Width: 8, Name: "uint64", AcceleratorName: "unsigned long long"}
)

type dataKey struct {
	width int
	fp    bool
}

// dataTrait is one row of the element-type table. Integer rows are present but
// reserved: they reject until integer inputs are enabled.
type dataTrait struct {
	typ      types.NumericType
	reserved bool
}

var dataTraits = map[dataKey]dataTrait{
	{4, true}:  {typ: typeFloat32},
	{8, true}:  {typ: typeFloat64},
	{1, false}: {reserved: true},
	{2, false}: {reserved: true},
	{4, false}: {reserved: true},
	{8, false}: {reserved: true},
}

var chunkingTraits = map[types.RankKey]types.Tiling{
	types.Rank1:         {Rank: types.Rank1, ChunkBlock: 256, ChunkSeq: 8},
	types.Rank1Narrow:   {Rank: types.Rank1Narrow, ChunkBlock: 128},
	types.Rank1Narrower: {Rank: types.Rank1Narrower, ChunkBlock: 64},
	types.Rank2:         {Rank: types.Rank2, ChunkBlock: 16, YSeq: 8},
	types.Rank3:         {Rank: types.Rank3, ChunkBlock: 8, YSeq: 8},
}

var quantTraits = map[int]types.NumericType{
	1: typeUint8,
	2: typeUint16,
	4: typeUint32,
}

type errCtrlKey struct {
	width  int
	coding types.ErrCtrlCoding
}

var errCtrlTraits = map[errCtrlKey]types.NumericType{
	{1, types.ErrCtrlInteger}: typeUint8,
	{2, types.ErrCtrlInteger}: typeUint16,
	{4, types.ErrCtrlInteger}: typeUint32,
	{4, types.ErrCtrlFloat}:   typeFloat32,
	{8, types.ErrCtrlFloat}:   typeFloat64,
}

var entropyTraits = map[int]types.NumericType{
	4: typeAtomicUint32,
	8: typeAtomicUint64,
}

// entropyWidthFor maps a quantization code width to the narrowest entropy code
// that holds a codeword plus its bit length for that alphabet.
var entropyWidthFor = map[int]int{
	1: 4,
	2: 4,
	4: 8,
}

var reducerTraits = map[int]types.NumericType{
	4: typeUint32,
	8: typeUint64,
}

var metadataTraits = map[int]types.NumericType{
	4: typeUint32,
	8: typeUint64,
}

// largeInputTraits maps "element count exceeds LargeInputThreshold" to a
// metadata width.
var largeInputTraits = map[bool]int{
	false: 4,
	true:  8,
}

var fastTraits = map[bool]types.NumericType{
	true:  typeFloat32,
	false: typeFloat64,
}

func init() {
	if err := CheckTables(); err != nil {
		panic(err)
	}
}

// CheckTables verifies that every enumerated key has a row and that rows are
// mutually consistent. It runs at package init.
func CheckTables() error {
	for _, rank := range types.RankKeys {
		t, ok := chunkingTraits[rank]
		if !ok {
			return fmt.Errorf("chunking table: missing rank %s", rank)
		}
		if t.Rank != rank || t.ChunkBlock <= 0 {
			return fmt.Errorf("chunking table: bad row for rank %s", rank)
		}
	}
	if len(chunkingTraits) != len(types.RankKeys) {
		return fmt.Errorf("chunking table: %d rows for %d rank keys", len(chunkingTraits), len(types.RankKeys))
	}

	for _, fp := range []bool{true, false} {
		for _, w := range []int{1, 2, 4, 8} {
			if _, ok := dataTraits[dataKey{w, fp}]; !ok && (!fp || w >= 4) {
				return fmt.Errorf("data table: missing (%d,%t)", w, fp)
			}
		}
	}

	for w, q := range quantTraits {
		if q.Width != w || q.Kind != types.Unsigned {
			return fmt.Errorf("quant table: bad row %d", w)
		}
		ew, ok := entropyWidthFor[w]
		if !ok {
			return fmt.Errorf("entropy table: no width for quant width %d", w)
		}
		if _, ok := entropyTraits[ew]; !ok {
			return fmt.Errorf("entropy table: missing width %d", ew)
		}
	}

	for k, e := range errCtrlTraits {
		if e.Width != k.width {
			return fmt.Errorf("errctrl table: bad row %d/%s", k.width, k.coding)
		}
	}

	for _, large := range []bool{false, true} {
		w, ok := largeInputTraits[large]
		if !ok {
			return fmt.Errorf("large-input table: missing %t", large)
		}
		if _, ok := metadataTraits[w]; !ok {
			return fmt.Errorf("metadata table: missing width %d", w)
		}
		if _, ok := reducerTraits[w]; !ok {
			return fmt.Errorf("reducer table: missing width %d", w)
		}
		if _, ok := fastTraits[large]; !ok {
			return fmt.Errorf("fast table: missing %t", large)
		}
	}
	if largeInputTraits[true] < largeInputTraits[false] {
		return fmt.Errorf("large-input table: width shrinks for large inputs")
	}

	return nil
}
