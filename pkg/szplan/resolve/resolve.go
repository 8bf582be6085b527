// Package resolve maps a data descriptor and the caller's request to the
// concrete numeric types and tiling the compression pipeline must use, and
// checks a resolved configuration against a device's limits.
//
// All decisions come from closed tables (see tables.go). A combination that is
// not in a table is an error; nothing falls back to a default row.
package resolve

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jamesainslie/szplan/pkg/szplan/logging"
	"github.com/jamesainslie/szplan/pkg/szplan/metrics"
	"github.com/jamesainslie/szplan/pkg/szplan/types"
)

// Resolve returns the configuration for desc and req. It is a pure function:
// the same inputs always give an identical result or the same error.
func Resolve(desc types.DataDescriptor, req types.Request) (types.ResolvedConfiguration, error) {
	var cfg types.ResolvedConfiguration

	data, ok := dataTraits[dataKey{desc.ElementWidth, desc.FloatingPoint}]
	if !ok {
		return cfg, unsupported("element_width", desc.ElementWidth,
			"no element type for width %d floating=%t", desc.ElementWidth, desc.FloatingPoint)
	}
	if data.reserved {
		return cfg, unsupported("floating_point", desc.FloatingPoint,
			"integer elements of width %d are reserved", desc.ElementWidth)
	}

	tiling, ok := chunkingTraits[desc.Rank]
	if !ok {
		return cfg, unsupported("rank", desc.Rank, "no tiling for rank key")
	}

	count, err := desc.ElementCount()
	if err != nil {
		return cfg, unsupported("dims", desc.Dims, "%v", err)
	}

	if err := checkSparsity(desc.ExpectedSparsity); err != nil {
		return cfg, err
	}

	quant, ok := quantTraits[req.QuantCodeWidth]
	if !ok {
		return cfg, unsupported("quant_code_width", req.QuantCodeWidth, "want 1, 2 or 4 bytes")
	}

	errCtrl, err := lookupErrCtrl(req.ErrCtrl, desc.ElementWidth, req.QuantCodeWidth)
	if err != nil {
		return cfg, err
	}

	entropy, err := lookupEntropy(req.EntropyWidth, req.QuantCodeWidth)
	if err != nil {
		return cfg, err
	}

	large := count > LargeInputThreshold
	metaWidth := largeInputTraits[large]
	if req.ConservativeMetadata {
		metaWidth = largeInputTraits[true]
	}

	return types.ResolvedConfiguration{
		Data:         data.typ,
		QuantCode:    quant,
		ErrCtrl:      errCtrl,
		EntropyCode:  entropy,
		Reducer:      reducerTraits[metaWidth],
		Metadata:     metadataTraits[metaWidth],
		FastPath:     fastTraits[req.Fast],
		Tiling:       tiling,
		ElementCount: count,
		Sparsity:     desc.ExpectedSparsity,
		LargeInput:   large,
	}, nil
}

func checkSparsity(s float64) error {
	if math.IsNaN(s) || s < 0 {
		return unsupported("expected_sparsity", s, "must be in [0, 1)")
	}
	if s*SparseMethodFactor >= 1 {
		return &ResolutionError{Field: "expected_sparsity", Value: s, Err: ErrSparsityExceeded}
	}
	return nil
}

func lookupErrCtrl(spec types.ErrCtrlSpec, elementWidth, quantWidth int) (types.NumericType, error) {
	width := spec.Width
	if width == 0 {
		switch spec.Coding {
		case types.ErrCtrlFloat:
			width = elementWidth
		case types.ErrCtrlInteger:
			width = quantWidth
		}
	}

	switch width {
	case 1, 2, 4, 8:
	default:
		return types.NumericType{}, unsupported("err_ctrl.width", width, "want 1, 2, 4 or 8 bytes")
	}

	t, ok := errCtrlTraits[errCtrlKey{width, spec.Coding}]
	if !ok {
		return types.NumericType{}, unsupported("err_ctrl.width", width,
			"%s error control has no %d-byte type", spec.Coding, width)
	}
	return t, nil
}

func lookupEntropy(forced, quantWidth int) (types.NumericType, error) {
	width := entropyWidthFor[quantWidth]
	if forced != 0 {
		if _, ok := entropyTraits[forced]; !ok {
			return types.NumericType{}, unsupported("entropy_width", forced, "want 4 or 8 bytes")
		}
		width = max(width, forced)
	}
	return entropyTraits[width], nil
}

// Job is one compression job's resolved configuration. The configuration is
// fixed for the job's lifetime.
type Job struct {
	ID         uuid.UUID
	Descriptor types.DataDescriptor
	Request    types.Request
	Config     types.ResolvedConfiguration
	CreatedAt  time.Time
}

// Resolver wraps Resolve and Validate with logging and metrics.
type Resolver struct {
	logger  *logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMetrics records resolutions and validations in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// WithLogger replaces the default "resolve" component logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// New creates a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		logger: logging.Get("resolve"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve is the package-level Resolve with logging and metrics.
func (r *Resolver) Resolve(desc types.DataDescriptor, req types.Request) (types.ResolvedConfiguration, error) {
	cfg, err := Resolve(desc, req)
	r.metrics.ObserveResolution(Reason(err))
	if err != nil {
		r.logger.Warn("resolution rejected", "rank", desc.Rank, "width", desc.ElementWidth, "error", err)
		return cfg, err
	}

	r.logger.Debug("resolved",
		"rank", cfg.Tiling.Rank,
		"data", cfg.Data,
		"quant", cfg.QuantCode,
		"errctrl", cfg.ErrCtrl,
		"entropy", cfg.EntropyCode,
		"metadata", cfg.Metadata,
		"elements", cfg.ElementCount,
	)
	return cfg, nil
}

// NewJob resolves desc and req and wraps the result in a Job with a fresh ID.
func (r *Resolver) NewJob(desc types.DataDescriptor, req types.Request) (*Job, error) {
	cfg, err := r.Resolve(desc, req)
	if err != nil {
		return nil, err
	}
	return &Job{
		ID:         uuid.New(),
		Descriptor: desc,
		Request:    req,
		Config:     cfg,
		CreatedAt:  r.now(),
	}, nil
}

// Validate is the package-level Validate with logging and metrics.
func (r *Resolver) Validate(cfg types.ResolvedConfiguration, dev types.DeviceInfo) error {
	err := Validate(cfg, dev)
	r.metrics.ObserveValidation(err == nil)
	if err != nil {
		r.logger.Warn("configuration rejected by device", "device", dev.Index, "name", dev.Name, "error", err)
		return err
	}
	r.logger.Debug("configuration fits device", "device", dev.Index, "name", dev.Name)
	return nil
}
