package num

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMulDiv(t *testing.T) {
	tests := []struct {
		name    string
		a, b, d int64
		want    int64
	}{
		{"simple", 6, 7, 2, 21},
		{"truncates", 5, 3, 2, 7},
		{"quote value", 1_000_000_000, 100_000_000, 1_000_000_000, 100_000_000},
		{"large no overflow", 9_000_000_000_000, 9_000_000, 9_000_000_000, 9_000_000_000},
		{"zero", 0, 12345, 7, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, MulDiv(tt.a, tt.b, tt.d))
		})
	}
}

func TestMulDivCeil(t *testing.T) {
	require.Equal(t, int64(8), MulDivCeil(5, 3, 2))
	require.Equal(t, int64(7), MulDivCeil(7, 2, 2))
}

func TestFeeBps(t *testing.T) {
	// 0.1% of 30 USDC (6 decimals) = 0.03 USDC
	require.Equal(t, int64(30_000), FeeBps(30_000_000, 10))
	// maker rebate
	require.Equal(t, int64(-2_000), FeeBps(10_000_000, -2))
}

func TestAligned(t *testing.T) {
	require.True(t, Aligned(100_000_000, 10_000))
	require.False(t, Aligned(100_000_001, 10_000))
	require.False(t, Aligned(0, 10_000))
	require.False(t, Aligned(-10_000, 10_000))
}

func TestParse(t *testing.T) {
	tests := []struct {
		in       string
		decimals int
		want     int64
		wantErr  bool
	}{
		{"100.00", 6, 100_000_000, false},
		{"0.1", 9, 100_000_000, false},
		{"1", 6, 1_000_000, false},
		{"0.0000001", 6, 0, true}, // below scale
		{"abc", 6, 0, true},
		{"-5.5", 6, -5_500_000, false},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in, tt.decimals)
		if tt.wantErr {
			require.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got, tt.in)
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 100_000_000, 252_750_000} {
		s := Format(v, 6)
		back, err := Parse(s, 6)
		require.NoError(t, err)
		require.Equal(t, v, back)
	}
}
