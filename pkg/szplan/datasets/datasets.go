// Package datasets names the dimension presets of well-known scientific
// datasets so a descriptor can be built without typing their shapes.
package datasets

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/jamesainslie/szplan/pkg/szplan/types"
)

// ErrUnknownDataset is returned for a name that is not a preset.
var ErrUnknownDataset = errors.New("unknown dataset")

// ErrUnsupportedShape is returned when a shape has more non-unit
// dimensions than any tiling supports.
var ErrUnsupportedShape = errors.New("unsupported dataset shape")

// Dims is a four-dimensional shape, fastest-varying first. Unused trailing
// dimensions are 1.
type Dims [4]uint64

var presets = map[string]Dims{
	"hacc":      {280953867, 1, 1, 1},
	"hacc1b":    {1073726487, 1, 1, 1},
	"cesm":      {3600, 1800, 1, 1},
	"hurricane": {500, 500, 100, 1},
	"nyx-s":     {512, 512, 512, 1},
	"nyx-m":     {1024, 1024, 1024, 1},
	"qmc":       {288, 69, 7935, 1},
	"qmcpre":    {69, 69, 33120, 1},
	"exafel":    {388, 59200, 1, 1},
	"rtm":       {235, 849, 849, 1},
	"parihaka":  {1168, 1126, 922, 1},
}

// Lookup returns the shape of a named dataset. Names are case-insensitive.
func Lookup(name string) (Dims, error) {
	d, ok := presets[strings.ToLower(name)]
	if !ok {
		return Dims{}, fmt.Errorf("%w: %q", ErrUnknownDataset, name)
	}
	return d, nil
}

// Names returns every preset name in sorted order.
func Names() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Override builds a shape from explicit dimensions. Zero dimensions are
// treated as 1.
func Override(d0, d1, d2, d3 uint64) Dims {
	d := Dims{d0, d1, d2, d3}
	for i := range d {
		if d[i] == 0 {
			d[i] = 1
		}
	}
	return d
}

// ParseDims parses "AxBxC" (up to four dimensions, 'x' or ',' separated).
// Missing trailing dimensions are 1.
func ParseDims(s string) (Dims, error) {
	parts := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == 'x' || r == ','
	})
	if len(parts) == 0 || len(parts) > 4 {
		return Dims{}, fmt.Errorf("%w: %q needs one to four dimensions", ErrUnsupportedShape, s)
	}

	var d [4]uint64
	for i, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil || n == 0 {
			return Dims{}, fmt.Errorf("%w: dimension %q", ErrUnsupportedShape, p)
		}
		d[i] = n
	}
	return Override(d[0], d[1], d[2], d[3]), nil
}

// Rank runs through the last non-unit dimension, so interior unit axes are
// kept. A shape of all ones has rank 1.
func (d Dims) Rank() int {
	rank := 1
	for i, n := range d {
		if n > 1 {
			rank = i + 1
		}
	}
	return rank
}

// Count is the number of elements, or 0 on overflow.
func (d Dims) Count() uint64 {
	desc := types.DataDescriptor{Dims: d}
	n, err := desc.ElementCount()
	if err != nil {
		return 0
	}
	return n
}

func (d Dims) String() string {
	parts := make([]string, d.Rank())
	for i := range parts {
		parts[i] = fmt.Sprint(d[i])
	}
	return strings.Join(parts, "x")
}

// RankKey maps the shape to its tiling family.
func (d Dims) RankKey() (types.RankKey, error) {
	switch d.Rank() {
	case 1:
		return types.Rank1, nil
	case 2:
		return types.Rank2, nil
	case 3:
		return types.Rank3, nil
	default:
		return 0, fmt.Errorf("%w: %s has %d dimensions", ErrUnsupportedShape, d, d.Rank())
	}
}

// Descriptor builds a floating-point descriptor of the named dataset with
// the given element width.
func Descriptor(name string, width int) (types.DataDescriptor, error) {
	d, err := Lookup(name)
	if err != nil {
		return types.DataDescriptor{}, err
	}
	return d.Descriptor(width)
}

// Descriptor builds a floating-point descriptor of this shape.
func (d Dims) Descriptor(width int) (types.DataDescriptor, error) {
	rank, err := d.RankKey()
	if err != nil {
		return types.DataDescriptor{}, err
	}
	return types.NewDescriptor(width, rank, d[:]...), nil
}
