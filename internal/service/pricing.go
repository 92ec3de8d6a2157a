package service

import (
	"fmt"
	"strings"
)

// RenewalTier is one selectable renewal period. Longer commitments earn a
// flat percentage discount on the whole period.
type RenewalTier struct {
	Months      int
	DiscountPct int64
}

var renewalTiers = []RenewalTier{
	{Months: 1, DiscountPct: 0},
	{Months: 3, DiscountPct: 10},
	{Months: 6, DiscountPct: 20},
	{Months: 12, DiscountPct: 30},
}

// RenewalTierByOption maps the menu token ("1".."4") to its tier.
func RenewalTierByOption(option string) (RenewalTier, bool) {
	switch option {
	case "1":
		return renewalTiers[0], true
	case "2":
		return renewalTiers[1], true
	case "3":
		return renewalTiers[2], true
	case "4":
		return renewalTiers[3], true
	}
	return RenewalTier{}, false
}

// RenewalPriceCents computes the total for months of service at baseCents per
// month, applying the tier discount. Integer cents throughout, no floats.
func RenewalPriceCents(baseCents int64, months int) int64 {
	tier := RenewalTier{Months: months}
	for _, t := range renewalTiers {
		if t.Months == months {
			tier = t
			break
		}
	}
	total := baseCents * int64(months)
	return total * (100 - tier.DiscountPct) / 100
}

// FormatBRL renders cents as a Brazilian Real amount, e.g. "R$ 143,52".
func FormatBRL(cents int64) string {
	negative := cents < 0
	if negative {
		cents = -cents
	}
	reais := cents / 100
	rest := cents % 100

	s := fmt.Sprintf("%d", reais)
	// Thousands separator.
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)

	formatted := fmt.Sprintf("R$ %s,%02d", strings.Join(parts, "."), rest)
	if negative {
		return "-" + formatted
	}
	return formatted
}
