package engine

import (
	"fmt"
	"sort"
	"time"
)

const (
	// RateBpsDenominator defines the scaling factor used for basis point
	// math when computing commissions and ripple bonuses.
	RateBpsDenominator = 10_000

	// DefaultQualifyingBalance is the point balance at which an account is
	// assigned its serial numbers.
	DefaultQualifyingBalance = 1_500

	// DefaultVoucherPool is the number of points split across merchants
	// each time a StepUp reward fires.
	DefaultVoucherPool = 6_000

	// DefaultInfinityBase is the first lifetime-points threshold; each
	// following cycle multiplies it by DefaultInfinityRatio.
	DefaultInfinityBase  = 30_000
	DefaultInfinityRatio = 5

	maxCascadeDepth = 16
)

// Params carries every tunable the engine consumes. Loaded from
// configuration at startup; the engine itself hardcodes nothing.
type Params struct {
	QualifyingBalance int64

	// StepUpTable maps a serial-number multiplier to the points credited
	// to the holder of the divided serial.
	StepUpTable map[uint64]int64

	// InfinityRewards holds the payout for cycle n at index n. Cycles past
	// the end of the table extend geometrically by InfinityRatio.
	InfinityBase    int64
	InfinityRatio   int64
	InfinityRewards []int64

	// Commission rates in basis points keyed by referrer role.
	CommissionBps map[string]uint32

	// RippleBps maps a StepUp multiplier to the share of the reward paid
	// to the beneficiary's referrer.
	RippleBps map[uint64]uint32

	VoucherPool   int64
	VoucherWindow time.Duration

	RetryAttempts int
}

// DefaultParams returns the production defaults. Deployments override these
// via the rewards parameter file.
func DefaultParams() Params {
	return Params{
		QualifyingBalance: DefaultQualifyingBalance,
		StepUpTable: map[uint64]int64{
			5:    500,
			25:   1_500,
			125:  3_000,
			500:  30_000,
			2500: 160_000,
		},
		InfinityBase:    DefaultInfinityBase,
		InfinityRatio:   DefaultInfinityRatio,
		InfinityRewards: []int64{5_000, 30_000, 200_000},
		CommissionBps: map[string]uint32{
			"customer": 500,
			"merchant": 200,
		},
		RippleBps: map[uint64]uint32{
			5:    1_000,
			25:   1_000,
			125:  1_000,
			500:  1_000,
			2500: 1_000,
		},
		VoucherPool:   DefaultVoucherPool,
		VoucherWindow: 30 * 24 * time.Hour,
		RetryAttempts: 3,
	}
}

// Validate rejects parameter sets the engine cannot safely run with.
// A missing table entry surfaces here rather than mid-cascade.
func (p Params) Validate() error {
	if p.QualifyingBalance <= 0 {
		return fmt.Errorf("%w: qualifying balance", ErrConfigMissing)
	}
	if len(p.StepUpTable) == 0 {
		return fmt.Errorf("%w: stepup table", ErrConfigMissing)
	}
	for m, reward := range p.StepUpTable {
		if m < 2 {
			return fmt.Errorf("%w: stepup multiplier %d", ErrConfigMissing, m)
		}
		if reward <= 0 {
			return fmt.Errorf("%w: stepup reward for multiplier %d", ErrConfigMissing, m)
		}
		if _, ok := p.RippleBps[m]; !ok {
			return fmt.Errorf("%w: ripple rate for multiplier %d", ErrConfigMissing, m)
		}
	}
	if p.InfinityBase <= 0 || p.InfinityRatio < 2 {
		return fmt.Errorf("%w: infinity thresholds", ErrConfigMissing)
	}
	if len(p.InfinityRewards) == 0 {
		return fmt.Errorf("%w: infinity reward table", ErrConfigMissing)
	}
	for i, reward := range p.InfinityRewards {
		if reward <= 0 {
			return fmt.Errorf("%w: infinity reward for cycle %d", ErrConfigMissing, i)
		}
	}
	if len(p.CommissionBps) == 0 {
		return fmt.Errorf("%w: commission rates", ErrConfigMissing)
	}
	if p.VoucherPool <= 0 {
		return fmt.Errorf("%w: voucher pool", ErrConfigMissing)
	}
	if p.VoucherWindow <= 0 {
		return fmt.Errorf("%w: voucher window", ErrConfigMissing)
	}
	if p.RetryAttempts <= 0 {
		return fmt.Errorf("%w: retry attempts", ErrConfigMissing)
	}
	return nil
}

// multipliers returns the StepUp multipliers in ascending order so reward
// evaluation is deterministic.
func (p Params) multipliers() []uint64 {
	out := make([]uint64, 0, len(p.StepUpTable))
	for m := range p.StepUpTable {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// infinityThreshold returns the lifetime-points threshold for cycle n.
func (p Params) infinityThreshold(cycle uint32) int64 {
	threshold := p.InfinityBase
	for i := uint32(0); i < cycle; i++ {
		threshold *= p.InfinityRatio
	}
	return threshold
}

// infinityReward returns the payout for cycle n, extending the configured
// table geometrically so a large grant can never outrun configuration.
func (p Params) infinityReward(cycle uint32) int64 {
	if int(cycle) < len(p.InfinityRewards) {
		return p.InfinityRewards[cycle]
	}
	reward := p.InfinityRewards[len(p.InfinityRewards)-1]
	for i := len(p.InfinityRewards); i <= int(cycle); i++ {
		reward *= p.InfinityRatio
	}
	return reward
}
