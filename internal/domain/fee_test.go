package domain_test

import (
	"errors"
	"testing"

	"github.com/ticketnft/escrow-service/internal/domain"
)

func TestSplitFee(t *testing.T) {
	platformFee, sellerAmount, err := domain.SplitFee(1_000_000, 250)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if platformFee != 25_000 {
		t.Errorf("expected platform fee 25000, got %d", platformFee)
	}
	if sellerAmount != 975_000 {
		t.Errorf("expected seller amount 975000, got %d", sellerAmount)
	}
}

func TestSplitFee_FloorDivision(t *testing.T) {
	// 999 * 250 / 10000 = 24.975, must floor to 24
	platformFee, sellerAmount, err := domain.SplitFee(999, 250)
	if err != nil {
		t.Fatal(err)
	}
	if platformFee != 24 {
		t.Errorf("expected floored fee 24, got %d", platformFee)
	}
	if sellerAmount != 975 {
		t.Errorf("expected seller amount 975, got %d", sellerAmount)
	}
}

func TestSplitFee_SumInvariant(t *testing.T) {
	amounts := []int64{1, 3, 99, 10_000, 123_456_789}
	rates := []int64{0, 1, 250, 9_999, 10_000}
	for _, amount := range amounts {
		for _, bps := range rates {
			platformFee, sellerAmount, err := domain.SplitFee(amount, bps)
			if err != nil {
				t.Fatalf("amount=%d bps=%d: %v", amount, bps, err)
			}
			if platformFee+sellerAmount != amount {
				t.Errorf("amount=%d bps=%d: fee %d + seller %d != amount", amount, bps, platformFee, sellerAmount)
			}
		}
	}
}

func TestSplitFee_InvalidRate(t *testing.T) {
	for _, bps := range []int64{-1, 10_001} {
		_, _, err := domain.SplitFee(100, bps)
		if !errors.Is(err, domain.ErrInvalidFeeRate) {
			t.Errorf("bps=%d: expected ErrInvalidFeeRate, got %v", bps, err)
		}
	}
}
