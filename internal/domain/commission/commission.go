// Package commission computes the platform fee retained on each booking.
// All functions are pure; amounts are integer minor currency units and rates
// are basis points (12.50% = 1250).
package commission

// Platform-enforced commission bounds in basis points.
const (
	MinRateBps int32 = 50   // 0.5%
	MaxRateBps int32 = 5000 // 50%
)

// RateInBounds reports whether a tenant commission rate is within the
// platform-enforced range.
func RateInBounds(rateBps int32) bool {
	return rateBps >= MinRateBps && rateBps <= MaxRateBps
}

// Fee returns the platform commission for a booking subtotal. The raw fee
// rounds up, then clamps into [ceil(subtotal*0.5%), floor(subtotal*50%)].
// Rounding up protects platform revenue at sub-cent boundaries; out-of-range
// rates are clamped rather than rejected so a misconfigured tenant still
// produces a lawful fee.
func Fee(rateBps int32, subtotal int64) int64 {
	if subtotal <= 0 {
		return 0
	}
	raw := ceilDiv(subtotal*int64(rateBps), 10000)
	lo := ceilDiv(subtotal*int64(MinRateBps), 10000)
	hi := subtotal * int64(MaxRateBps) / 10000
	if raw < lo {
		raw = lo
	}
	if raw > hi {
		raw = hi
	}
	return raw
}

// RefundFee returns the share of the original commission to reverse when
// refundAmount of originalTotal is refunded. Proportional, rounded down: the
// platform under-refunds its fee by at most one minor unit by construction.
func RefundFee(originalFee, refundAmount, originalTotal int64) int64 {
	if originalTotal <= 0 || refundAmount <= 0 || originalFee <= 0 {
		return 0
	}
	if refundAmount > originalTotal {
		refundAmount = originalTotal
	}
	return originalFee * refundAmount / originalTotal
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}
