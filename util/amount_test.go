package util

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		amount   string
		decimals int32
		want     uint64
		wantErr  bool
	}{
		{amount: "12.345678", decimals: 6, want: 12345678},
		{amount: "12", decimals: 6, want: 12000000},
		{amount: "0.5", decimals: 6, want: 500000},
		{amount: "0", decimals: 6, want: 0},
		{amount: "0.000001", decimals: 6, want: 1},
		{amount: " 1.5 ", decimals: 6, want: 1500000},
		{amount: "12.3456789", decimals: 6, wantErr: true},
		{amount: "0.0000001", decimals: 6, wantErr: true},
		{amount: "-1", decimals: 6, wantErr: true},
		{amount: "", decimals: 6, wantErr: true},
		{amount: "abc", decimals: 6, wantErr: true},
		{amount: "1,5", decimals: 6, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			got, err := ParseAmount(tt.amount, tt.decimals)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			require.EqualValues(t, tt.want, got.Uint64())
		})
	}
}

func TestAmountToString(t *testing.T) {
	require.Equal(t, "12.345678", AmountToString(uint256.NewInt(12345678), 6))
	require.Equal(t, "12", AmountToString(uint256.NewInt(12000000), 6))
	require.Equal(t, "0.5", AmountToString(uint256.NewInt(500000), 6))
	require.Equal(t, "0", AmountToString(uint256.NewInt(0), 6))
}
