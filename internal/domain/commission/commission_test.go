package commission_test

import (
	"testing"

	"github.com/daybookhq/daybook/internal/domain/commission"
)

func TestFee(t *testing.T) {
	tests := []struct {
		name     string
		rateBps  int32
		subtotal int64
		want     int64
	}{
		{"typical rate rounds up", 1250, 60000, 7500},
		{"sub-cent rounds up", 1250, 99, 13},          // 12.375 -> 13
		{"minimum rate boundary", 50, 100, 1},         // ceil(0.5) = 1
		{"one-cent subtotal upper bound wins", 50, 1, 0}, // floor(0.5) = 0 caps the fee
		{"above max clamps to half", 6000, 100, 50},   // 60% -> 50%
		{"below min clamps up", 10, 10000, 50},        // 0.1% -> 0.5%
		{"exact half allowed", 5000, 10000, 5000},     // 50% exactly
		{"zero subtotal", 1250, 0, 0},
		{"negative subtotal", 1250, -5, 0},
		{"large subtotal no overflow", 1250, 10_000_000_00, 125_000_00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := commission.Fee(tt.rateBps, tt.subtotal)
			if got != tt.want {
				t.Fatalf("Fee(%d, %d) = %d, want %d", tt.rateBps, tt.subtotal, got, tt.want)
			}
		})
	}
}

func TestFeeDeterministic(t *testing.T) {
	first := commission.Fee(1250, 60000)
	for i := 0; i < 100; i++ {
		if got := commission.Fee(1250, 60000); got != first {
			t.Fatalf("Fee not deterministic: got %d then %d", first, got)
		}
	}
}

func TestRefundFee(t *testing.T) {
	tests := []struct {
		name                              string
		originalFee, refund, originalTotal int64
		want                              int64
	}{
		{"full refund reverses full fee", 7500, 60000, 60000, 7500},
		{"half refund rounds down", 7500, 30000, 60000, 3750},
		{"odd split rounds down", 1000, 1, 3, 333},
		{"tiny refund floors to zero", 10, 1, 60000, 0},
		{"refund above total capped", 7500, 90000, 60000, 7500},
		{"zero total", 7500, 100, 0, 0},
		{"zero refund", 7500, 0, 60000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := commission.RefundFee(tt.originalFee, tt.refund, tt.originalTotal)
			if got != tt.want {
				t.Fatalf("RefundFee(%d, %d, %d) = %d, want %d",
					tt.originalFee, tt.refund, tt.originalTotal, got, tt.want)
			}
		})
	}
}

func TestRateInBounds(t *testing.T) {
	if commission.RateInBounds(49) || commission.RateInBounds(5001) {
		t.Fatal("out-of-range rates reported in bounds")
	}
	if !commission.RateInBounds(50) || !commission.RateInBounds(5000) || !commission.RateInBounds(1250) {
		t.Fatal("in-range rates reported out of bounds")
	}
}
