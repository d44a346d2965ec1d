package valueobject

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAllocateByPercentages(t *testing.T) {
	tests := []struct {
		name  string
		total string
		pcts  []string
		want  []string
	}{
		{"even split", "1000", []string{"60", "40"}, []string{"600", "400"}},
		{"thirds carry remainder", "100", []string{"33.33", "33.33", "33.34"}, []string{"33.33", "33.33", "33.34"}},
		{"odd cents", "100.01", []string{"50", "50"}, []string{"50.01", "50"}},
		{"single part", "250.5", []string{"100"}, []string{"250.5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pcts := make([]decimal.Decimal, len(tt.pcts))
			for i, p := range tt.pcts {
				pcts[i] = dec(p)
			}
			parts := AllocateByPercentages(dec(tt.total), pcts)
			sum := decimal.Zero
			for i, p := range parts {
				assert.True(t, dec(tt.want[i]).Equal(p), "part %d: want %s got %s", i, tt.want[i], p)
				sum = sum.Add(p)
			}
			assert.True(t, RoundDisplay(dec(tt.total)).Equal(sum))
		})
	}
	assert.Nil(t, AllocateByPercentages(dec("10"), nil))
}

func TestRounding(t *testing.T) {
	assert.Equal(t, "1.2346", RoundInternal(dec("1.23456")).String())
	assert.Equal(t, "1.23", RoundDisplay(dec("1.23456")).String())
	assert.True(t, WithinTolerance(dec("100.005"), dec("100"), dec("0.01")))
	assert.False(t, WithinTolerance(dec("100.02"), dec("100"), dec("0.01")))
}
