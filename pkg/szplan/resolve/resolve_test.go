package resolve

import (
	"errors"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/szplan/pkg/szplan/metrics"
	"github.com/jamesainslie/szplan/pkg/szplan/types"
)

func descriptor(width int, rank types.RankKey, dims ...uint64) types.DataDescriptor {
	return types.NewDescriptor(width, rank, dims...)
}

func TestCheckTables(t *testing.T) {
	require.NoError(t, CheckTables())
}

func TestResolve_SupportedElementTypes(t *testing.T) {
	tests := []struct {
		width    int
		wantData string
	}{
		{4, "float32"},
		{8, "float64"},
	}

	for _, tt := range tests {
		t.Run(tt.wantData, func(t *testing.T) {
			cfg, err := Resolve(descriptor(tt.width, types.Rank3, 64, 64, 64), types.DefaultRequest())
			require.NoError(t, err)

			assert.Equal(t, tt.wantData, cfg.Data.Name)
			assert.Equal(t, types.Float, cfg.ErrCtrl.Kind)
			assert.Equal(t, tt.width, cfg.ErrCtrl.Width, "float error control matches element width")
		})
	}
}

func TestResolve_UnsupportedElementTypes(t *testing.T) {
	tests := []struct {
		name  string
		width int
		fp    bool
	}{
		{"float16", 2, true},
		{"int32 reserved", 4, false},
		{"int64 reserved", 8, false},
		{"int8 reserved", 1, false},
		{"width 16", 16, true},
		{"width 0", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := descriptor(tt.width, types.Rank1, 1000)
			desc.FloatingPoint = tt.fp

			_, err := Resolve(desc, types.DefaultRequest())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnsupportedDescriptor)
		})
	}
}

func TestResolve_TilingTable(t *testing.T) {
	tests := []struct {
		rank  types.RankKey
		block int
		seq   int
		ySeq  int
	}{
		{types.Rank1, 256, 8, 0},
		{types.Rank1Narrow, 128, 0, 0},
		{types.Rank1Narrower, 64, 0, 0},
		{types.Rank2, 16, 0, 8},
		{types.Rank3, 8, 0, 8},
	}

	for _, tt := range tests {
		t.Run(tt.rank.String(), func(t *testing.T) {
			cfg, err := Resolve(descriptor(4, tt.rank, 100), types.DefaultRequest())
			require.NoError(t, err)

			assert.Equal(t, types.Tiling{Rank: tt.rank, ChunkBlock: tt.block, ChunkSeq: tt.seq, YSeq: tt.ySeq}, cfg.Tiling)
		})
	}
}

func TestResolve_InvalidRank(t *testing.T) {
	for _, rank := range []types.RankKey{0, 4, 0x102, 0x301, 0x100, 0xffff} {
		t.Run(rank.String(), func(t *testing.T) {
			_, err := Resolve(descriptor(4, rank, 100), types.DefaultRequest())
			assert.ErrorIs(t, err, ErrUnsupportedDescriptor)

			var re *ResolutionError
			require.True(t, errors.As(err, &re))
			assert.Equal(t, "rank", re.Field)
		})
	}
}

func TestResolve_MetadataEscalation(t *testing.T) {
	tests := []struct {
		name         string
		dims         []uint64
		conservative bool
		wantWidth    int
		wantLarge    bool
	}{
		{"small input", []uint64{1000}, false, 4, false},
		{"at threshold", []uint64{math.MaxUint32}, false, 4, false},
		{"2^32 elements", []uint64{1 << 32}, false, 8, true},
		{"2^32 over dims", []uint64{1 << 16, 1 << 8, 1 << 8}, false, 8, true},
		{"conservative small input", []uint64{1000}, true, 8, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := types.DefaultRequest()
			req.ConservativeMetadata = tt.conservative

			rank := types.Rank1
			if len(tt.dims) == 3 {
				rank = types.Rank3
			}

			cfg, err := Resolve(descriptor(4, rank, tt.dims...), req)
			require.NoError(t, err)

			assert.Equal(t, tt.wantWidth, cfg.Metadata.Width)
			assert.Equal(t, tt.wantWidth, cfg.Reducer.Width)
			assert.Equal(t, tt.wantLarge, cfg.LargeInput)
		})
	}
}

func TestResolve_SparsityGate(t *testing.T) {
	tests := []struct {
		sparsity float64
		wantErr  error
	}{
		{0, nil},
		{0.01, nil},
		{0.04, nil},
		{0.0499, nil},
		{0.05, ErrSparsityExceeded},
		{0.5, ErrSparsityExceeded},
		{-0.1, ErrUnsupportedDescriptor},
		{math.NaN(), ErrUnsupportedDescriptor},
	}

	for _, tt := range tests {
		desc := descriptor(4, types.Rank2, 100, 100)
		desc.ExpectedSparsity = tt.sparsity

		_, err := Resolve(desc, types.DefaultRequest())
		if tt.wantErr == nil {
			assert.NoError(t, err, "sparsity %v", tt.sparsity)
			continue
		}
		assert.ErrorIs(t, err, tt.wantErr, "sparsity %v", tt.sparsity)
	}
}

func TestResolve_QuantAndEntropy(t *testing.T) {
	tests := []struct {
		quant        int
		forced       int
		wantQuant    string
		wantEntropy  int
		wantAccelTyp string
	}{
		{1, 0, "uint8", 4, "unsigned int"},
		{2, 0, "uint16", 4, "unsigned int"},
		{4, 0, "uint32", 8, "unsigned long long"},
		{2, 8, "uint16", 8, "unsigned long long"},
		{4, 4, "uint32", 8, "unsigned long long"},
	}

	for _, tt := range tests {
		req := types.DefaultRequest()
		req.QuantCodeWidth = tt.quant
		req.EntropyWidth = tt.forced

		cfg, err := Resolve(descriptor(8, types.Rank1, 4096), req)
		require.NoError(t, err)

		assert.Equal(t, tt.wantQuant, cfg.QuantCode.Name)
		assert.Equal(t, tt.wantEntropy, cfg.EntropyCode.Width)
		assert.Equal(t, tt.wantAccelTyp, cfg.EntropyCode.AcceleratorName)
	}
}

func TestResolve_InvalidRequest(t *testing.T) {
	tests := []struct {
		name  string
		mod   func(*types.Request)
		field string
	}{
		{"quant width 3", func(r *types.Request) { r.QuantCodeWidth = 3 }, "quant_code_width"},
		{"quant width 8", func(r *types.Request) { r.QuantCodeWidth = 8 }, "quant_code_width"},
		{"integer errctrl 8", func(r *types.Request) {
			r.ErrCtrl = types.ErrCtrlSpec{Coding: types.ErrCtrlInteger, Width: 8}
		}, "err_ctrl.width"},
		{"errctrl width 3", func(r *types.Request) { r.ErrCtrl.Width = 3 }, "err_ctrl.width"},
		{"float errctrl 2", func(r *types.Request) { r.ErrCtrl.Width = 2 }, "err_ctrl.width"},
		{"entropy width 2", func(r *types.Request) { r.EntropyWidth = 2 }, "entropy_width"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := types.DefaultRequest()
			tt.mod(&req)

			_, err := Resolve(descriptor(4, types.Rank1, 10), req)
			assert.ErrorIs(t, err, ErrUnsupportedDescriptor)
			assert.Equal(t, tt.field, Reason(err))
		})
	}
}

func TestResolve_IntegerErrCtrl(t *testing.T) {
	for _, width := range []int{1, 2, 4} {
		req := types.DefaultRequest()
		req.ErrCtrl = types.ErrCtrlSpec{Coding: types.ErrCtrlInteger, Width: width}

		cfg, err := Resolve(descriptor(8, types.Rank1, 10), req)
		require.NoError(t, err)
		assert.Equal(t, types.Unsigned, cfg.ErrCtrl.Kind)
		assert.Equal(t, width, cfg.ErrCtrl.Width)
	}

	// Zero width with integer coding follows the quantization code width.
	req := types.DefaultRequest()
	req.ErrCtrl = types.ErrCtrlSpec{Coding: types.ErrCtrlInteger}
	cfg, err := Resolve(descriptor(4, types.Rank1, 10), req)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.ErrCtrl.Width)
}

func TestResolve_FastPath(t *testing.T) {
	req := types.DefaultRequest()

	cfg, err := Resolve(descriptor(8, types.Rank2, 10, 10), req)
	require.NoError(t, err)
	assert.Equal(t, "float64", cfg.FastPath.Name)

	req.Fast = true
	cfg, err = Resolve(descriptor(8, types.Rank2, 10, 10), req)
	require.NoError(t, err)
	assert.Equal(t, "float32", cfg.FastPath.Name)
}

func TestResolve_BadDims(t *testing.T) {
	desc := descriptor(4, types.Rank2, 100, 0)
	_, err := Resolve(desc, types.DefaultRequest())
	assert.ErrorIs(t, err, ErrUnsupportedDescriptor)

	desc = descriptor(4, types.Rank3, 1<<32, 1<<32, 1<<32)
	_, err = Resolve(desc, types.DefaultRequest())
	assert.ErrorIs(t, err, ErrUnsupportedDescriptor)
}

func TestResolve_Idempotent(t *testing.T) {
	desc := descriptor(8, types.Rank3, 512, 512, 512)
	desc.ExpectedSparsity = 0.02
	req := types.DefaultRequest()
	req.QuantCodeWidth = 4

	first, err := Resolve(desc, req)
	require.NoError(t, err)
	second, err := Resolve(desc, req)
	require.NoError(t, err)

	assert.True(t, first == second, "repeated resolution differs: %+v vs %+v", first, second)
}

func TestResolver_RecordsMetricsAndJobs(t *testing.T) {
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)
	r := New(WithMetrics(m))

	job, err := r.NewJob(descriptor(4, types.Rank1, 1000), types.DefaultRequest())
	require.NoError(t, err)
	assert.NotEqual(t, [16]byte{}, [16]byte(job.ID))
	assert.False(t, job.CreatedAt.IsZero())

	other, err := r.NewJob(descriptor(4, types.Rank1, 1000), types.DefaultRequest())
	require.NoError(t, err)
	assert.NotEqual(t, job.ID, other.ID)
	assert.Equal(t, job.Config, other.Config)

	_, err = r.NewJob(descriptor(4, 7, 1000), types.DefaultRequest())
	assert.ErrorIs(t, err, ErrUnsupportedDescriptor)
}

func TestReason(t *testing.T) {
	assert.Equal(t, "", Reason(nil))
	assert.Equal(t, "unknown", Reason(errors.New("boom")))

	desc := descriptor(4, types.Rank1, 10)
	desc.ExpectedSparsity = 0.2
	_, err := Resolve(desc, types.DefaultRequest())
	assert.Equal(t, "sparsity", Reason(err))
}
