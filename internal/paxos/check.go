package paxos

import (
	"math"

	"github.com/dreamware/primus/internal/cluster"
)

// Check scans the divisors of number in [max(2, start), min(isqrt(number), end)]
// and returns the first one found as a non-prime verdict. Numbers below 2
// are non-prime with no divisor.
func Check(number, start, end int64) cluster.Verdict {
	if number < 2 {
		return cluster.NonPrime(number, start, end, 0)
	}

	lo := max(2, start)
	hi := min(isqrt(number), end)
	for d := lo; d <= hi; d++ {
		if number%d == 0 {
			return cluster.NonPrime(number, start, end, d)
		}
	}
	return cluster.Prime(number, start, end)
}

func isqrt(n int64) int64 {
	r := int64(math.Sqrt(float64(n)))
	for r > 0 && r > n/r {
		r--
	}
	for r+1 <= n/(r+1) {
		r++
	}
	return r
}

// ValidDivisor reports whether a non-prime claim for number with divisor d
// holds. The divisor must be a proper factor in [2, number-1]; 1, number
// itself and negative factors divide evenly but prove nothing. Below 2 the
// claim must carry no divisor.
func ValidDivisor(number, d int64) bool {
	if number < 2 {
		return d == 0
	}
	return d >= 2 && d < number && number%d == 0
}
