package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRankKey(t *testing.T) {
	tests := []struct {
		in      string
		want    RankKey
		wantErr bool
	}{
		{"1", Rank1, false},
		{"2", Rank2, false},
		{" 3 ", Rank3, false},
		{"0x101", Rank1Narrow, false},
		{"0X201", Rank1Narrower, false},
		{"257", Rank1Narrow, false},
		{"1-narrow", Rank1Narrow, false},
		{"1-NARROWER", Rank1Narrower, false},
		{"", 0, true},
		{"one", 0, true},
		{"0", 0, true},
		{"4", 0, true},
		{"0x301", 0, true},
		{"70000", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRankKey(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRank)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRankKeyRoundTrip(t *testing.T) {
	for _, r := range RankKeys {
		got, err := ParseRankKey(r.String())
		require.NoError(t, err, r.String())
		assert.Equal(t, r, got)
	}
	assert.Equal(t, "invalid(0x7)", RankKey(7).String())
}

func TestRankKeyDimensions(t *testing.T) {
	assert.Equal(t, 1, Rank1.Dimensions())
	assert.Equal(t, 1, Rank1Narrow.Dimensions())
	assert.Equal(t, 1, Rank1Narrower.Dimensions())
	assert.Equal(t, 2, Rank2.Dimensions())
	assert.Equal(t, 3, Rank3.Dimensions())
	assert.Equal(t, 0, RankKey(4).Dimensions())
}

func TestParseErrCtrlCoding(t *testing.T) {
	tests := []struct {
		in      string
		want    ErrCtrlCoding
		wantErr bool
	}{
		{"integer", ErrCtrlInteger, false},
		{"INT", ErrCtrlInteger, false},
		{"float", ErrCtrlFloat, false},
		{"fp", ErrCtrlFloat, false},
		{"", ErrCtrlFloat, false},
		{"double", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseErrCtrlCoding(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCoding)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestElementCount(t *testing.T) {
	n, err := NewDescriptor(4, Rank3, 512, 512, 512).ElementCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(512*512*512), n)

	_, err = DataDescriptor{Dims: [4]uint64{10, 0, 1, 1}}.ElementCount()
	assert.ErrorIs(t, err, ErrZeroDimension)

	_, err = NewDescriptor(4, Rank3, 1<<32, 1<<32, 2).ElementCount()
	assert.ErrorIs(t, err, ErrElementCountRange)
}

func TestVersion(t *testing.T) {
	assert.True(t, Version{}.IsZero())
	assert.Equal(t, "12.4", Version{Major: 12, Minor: 4}.String())
}
