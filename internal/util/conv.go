package util

import "math"

// Round2 rounds to two decimal places, the precision used in marks reports.
func Round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func IntValue(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func IntPtr(i int) *int {
	return &i
}

func UintPtr(u uint) *uint {
	return &u
}

func Float64Ptr(f float64) *float64 {
	return &f
}
