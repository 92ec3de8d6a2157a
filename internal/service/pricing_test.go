package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenewalPriceCents(t *testing.T) {
	tests := []struct {
		name   string
		base   int64
		months int
		want   int64
	}{
		{"one month full price", 2990, 1, 2990},
		{"three months 10 percent off", 2990, 3, 8073},
		{"six months 20 percent off", 2990, 6, 14352},
		{"twelve months 30 percent off", 2990, 12, 25116},
		{"unknown tier has no discount", 2990, 2, 5980},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RenewalPriceCents(tt.base, tt.months))
		})
	}
}

func TestRenewalTierByOption(t *testing.T) {
	tier, ok := RenewalTierByOption("3")
	assert.True(t, ok)
	assert.Equal(t, 6, tier.Months)
	assert.Equal(t, int64(20), tier.DiscountPct)

	_, ok = RenewalTierByOption("5")
	assert.False(t, ok)
}

func TestFormatBRL(t *testing.T) {
	assert.Equal(t, "R$ 29,90", FormatBRL(2990))
	assert.Equal(t, "R$ 143,52", FormatBRL(14352))
	assert.Equal(t, "R$ 0,05", FormatBRL(5))
	assert.Equal(t, "R$ 1.234,56", FormatBRL(123456))
	assert.Equal(t, "-R$ 10,00", FormatBRL(-1000))
}
