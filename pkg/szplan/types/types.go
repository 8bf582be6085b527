// Package types provides the core data model for szplan: the descriptor a caller
// builds for a compression job, the request options that accompany it, and the
// immutable configuration the resolver produces from them.
package types

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// RankKey identifies a dimensionality and tiling strategy. Ranks 1-3 are plain
// dimensionalities; Rank1Narrow and Rank1Narrower are 1-D arrays processed with a
// narrower tiling.
type RankKey uint16

// Supported rank keys.
const (
	Rank1         RankKey = 1
	Rank2         RankKey = 2
	Rank3         RankKey = 3
	Rank1Narrow   RankKey = 0x101
	Rank1Narrower RankKey = 0x201
)

// RankKeys lists every rank key the resolver understands, in table order.
var RankKeys = []RankKey{Rank1, Rank1Narrow, Rank1Narrower, Rank2, Rank3}

// String returns the rank key as it is written on the command line.
func (r RankKey) String() string {
	switch r {
	case Rank1, Rank2, Rank3:
		return strconv.Itoa(int(r))
	case Rank1Narrow, Rank1Narrower:
		return fmt.Sprintf("0x%x", uint16(r))
	default:
		return fmt.Sprintf("invalid(0x%x)", uint16(r))
	}
}

// Dimensions returns the number of array dimensions the key describes,
// or 0 when the key is not a known rank.
func (r RankKey) Dimensions() int {
	switch r {
	case Rank1, Rank1Narrow, Rank1Narrower:
		return 1
	case Rank2:
		return 2
	case Rank3:
		return 3
	default:
		return 0
	}
}

// ErrInvalidRank is returned when a rank key cannot be parsed.
var ErrInvalidRank = errors.New("invalid rank")

// ParseRankKey parses "1", "2", "3", "0x101", "0x201" and the aliases
// "1-narrow" and "1-narrower". Any other key is rejected.
func ParseRankKey(s string) (RankKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1-narrow":
		return Rank1Narrow, nil
	case "1-narrower":
		return Rank1Narrower, nil
	}

	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 16)
	if err != nil || RankKey(v).Dimensions() == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRank, s)
	}
	return RankKey(v), nil
}

// NumericKind distinguishes unsigned integer from floating-point representations.
type NumericKind uint8

// Numeric kinds.
const (
	Unsigned NumericKind = iota + 1
	Float
)

// String returns the name of the kind.
func (k NumericKind) String() string {
	switch k {
	case Unsigned:
		return "unsigned"
	case Float:
		return "float"
	default:
		return "unknown"
	}
}

// NumericType is a concrete numeric representation chosen by the resolver.
// AcceleratorName is the type the accelerator API expects for this width; it is
// documentation carried in the table, not something the caller needs to interpret.
type NumericType struct {
	Kind            NumericKind `json:"kind" yaml:"kind"`
	Width           int         `json:"width" yaml:"width"`
	Name            string      `json:"name" yaml:"name"`
	AcceleratorName string      `json:"accelerator_name" yaml:"accelerator_name"`
}

// Bits returns the width of the type in bits.
func (t NumericType) Bits() int {
	return t.Width * 8
}

// String returns the Go-style name of the type (e.g. "uint32", "float64").
func (t NumericType) String() string {
	return t.Name
}

// ErrCtrlCoding selects whether error-control values are integer or float coded.
type ErrCtrlCoding uint8

// Error-control codings.
const (
	ErrCtrlFloat ErrCtrlCoding = iota
	ErrCtrlInteger
)

// String returns the coding name.
func (c ErrCtrlCoding) String() string {
	switch c {
	case ErrCtrlInteger:
		return "integer"
	case ErrCtrlFloat:
		return "float"
	default:
		return "unknown"
	}
}

// ErrInvalidCoding is returned when an error-control coding cannot be parsed.
var ErrInvalidCoding = errors.New("invalid error-control coding")

// ParseErrCtrlCoding parses "integer"/"int" or "float"/"fp".
func ParseErrCtrlCoding(s string) (ErrCtrlCoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "integer", "int":
		return ErrCtrlInteger, nil
	case "float", "fp", "":
		return ErrCtrlFloat, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidCoding, s)
	}
}

// DataDescriptor describes the input array of one compression job.
// It is built by the caller and never modified afterwards.
type DataDescriptor struct {
	// ElementWidth is the element size in bytes (4 or 8).
	ElementWidth int `json:"element_width" yaml:"element_width"`

	// FloatingPoint reports whether elements are IEEE floats.
	FloatingPoint bool `json:"floating_point" yaml:"floating_point"`

	// Rank selects dimensionality and tiling strategy.
	Rank RankKey `json:"rank" yaml:"rank"`

	// Dims holds d0..d3. Unused trailing dimensions are 1.
	Dims [4]uint64 `json:"dims" yaml:"dims"`

	// ExpectedSparsity is the fraction of elements expected to need outlier storage.
	ExpectedSparsity float64 `json:"expected_sparsity" yaml:"expected_sparsity"`
}

// Errors returned by ElementCount.
var (
	ErrZeroDimension     = errors.New("dimension size must be at least 1")
	ErrElementCountRange = errors.New("element count overflows uint64")
)

// ElementCount returns the product of all dimensions.
func (d DataDescriptor) ElementCount() (uint64, error) {
	count := uint64(1)
	for i, dim := range d.Dims {
		if dim == 0 {
			return 0, fmt.Errorf("d%d: %w", i, ErrZeroDimension)
		}
		hi, lo := bits.Mul64(count, dim)
		if hi != 0 {
			return 0, ErrElementCountRange
		}
		count = lo
	}
	return count, nil
}

// NewDescriptor builds a descriptor from up to four dimension sizes. Missing
// dimensions are filled with 1.
func NewDescriptor(elementWidth int, rank RankKey, dims ...uint64) DataDescriptor {
	d := DataDescriptor{
		ElementWidth:  elementWidth,
		FloatingPoint: true,
		Rank:          rank,
		Dims:          [4]uint64{1, 1, 1, 1},
	}
	copy(d.Dims[:], dims)
	return d
}

// ErrCtrlSpec is the caller's error-control choice. A zero Width with float coding
// means "match the element width".
type ErrCtrlSpec struct {
	Coding ErrCtrlCoding `json:"coding" yaml:"coding"`
	Width  int           `json:"width" yaml:"width"`
}

// Request carries the caller choices that accompany a descriptor.
type Request struct {
	// QuantCodeWidth is the quantization code width in bytes (1, 2 or 4).
	QuantCodeWidth int `json:"quant_code_width" yaml:"quant_code_width"`

	// ErrCtrl selects error-control coding and width.
	ErrCtrl ErrCtrlSpec `json:"err_ctrl" yaml:"err_ctrl"`

	// EntropyWidth forces the entropy code width (4 or 8). Zero derives it from
	// the quantization code width. It can widen but never narrow the derived width.
	EntropyWidth int `json:"entropy_width" yaml:"entropy_width"`

	// Fast selects the single-precision fast path for eligible stages.
	Fast bool `json:"fast" yaml:"fast"`

	// ConservativeMetadata forces 8-byte metadata and reducer types.
	ConservativeMetadata bool `json:"conservative_metadata" yaml:"conservative_metadata"`
}

// DefaultRequest returns 2-byte quantization codes with float-coded error control
// matching the element width.
func DefaultRequest() Request {
	return Request{
		QuantCodeWidth: 2,
		ErrCtrl:        ErrCtrlSpec{Coding: ErrCtrlFloat},
	}
}

// Tiling is the work partitioning chosen for a rank. Zero ChunkSeq or YSeq means
// the rank has no such parameter.
type Tiling struct {
	Rank       RankKey `json:"rank" yaml:"rank"`
	ChunkBlock int     `json:"chunk_block" yaml:"chunk_block"`
	ChunkSeq   int     `json:"chunk_seq,omitempty" yaml:"chunk_seq,omitempty"`
	YSeq       int     `json:"y_seq,omitempty" yaml:"y_seq,omitempty"`
}

// ResolvedConfiguration is the resolver's output. It is a plain comparable value:
// resolving the same descriptor twice yields == configurations.
type ResolvedConfiguration struct {
	Data        NumericType `json:"data" yaml:"data"`
	QuantCode   NumericType `json:"quant_code" yaml:"quant_code"`
	ErrCtrl     NumericType `json:"err_ctrl" yaml:"err_ctrl"`
	EntropyCode NumericType `json:"entropy_code" yaml:"entropy_code"`
	Reducer     NumericType `json:"reducer" yaml:"reducer"`
	Metadata    NumericType `json:"metadata" yaml:"metadata"`
	FastPath    NumericType `json:"fast_path" yaml:"fast_path"`
	Tiling      Tiling      `json:"tiling" yaml:"tiling"`

	ElementCount uint64  `json:"element_count" yaml:"element_count"`
	Sparsity     float64 `json:"sparsity" yaml:"sparsity"`
	LargeInput   bool    `json:"large_input" yaml:"large_input"`
}
