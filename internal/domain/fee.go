package domain

// MaxFeeBps is the upper bound on the platform fee rate (10000 bps = 100%).
const MaxFeeBps = 10000

// SplitFee divides a gross payment into platform fee and seller proceeds.
// The fee is floor(amount * feeBps / 10000); the remainder goes to the
// seller, so the two parts always sum back to amount. Integer floor
// division keeps the split reproducible bit-for-bit.
func SplitFee(amount, feeBps int64) (platformFee, sellerAmount int64, err error) {
	if feeBps < 0 || feeBps > MaxFeeBps {
		return 0, 0, ErrInvalidFeeRate
	}
	platformFee = amount * feeBps / MaxFeeBps
	sellerAmount = amount - platformFee
	return platformFee, sellerAmount, nil
}
