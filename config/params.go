package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"rewardsd/engine"
)

// paramsFile mirrors the on-disk TOML shape of the reward parameter file.
// TOML keys map multipliers and roles as strings; LoadParams converts them
// into the engine's typed tables.
type paramsFile struct {
	QualifyingBalance int64            `toml:"QualifyingBalance"`
	StepUpRewards     map[string]int64 `toml:"StepUpRewards"`
	InfinityBase      int64            `toml:"InfinityBase"`
	InfinityRatio     int64            `toml:"InfinityRatio"`
	InfinityRewards   []int64          `toml:"InfinityRewards"`
	CommissionBps     map[string]int64 `toml:"CommissionBps"`
	RippleBps         map[string]int64 `toml:"RippleBps"`
	VoucherPool       int64            `toml:"VoucherPool"`
	VoucherWindowDays int              `toml:"VoucherWindowDays"`
	RetryAttempts     int              `toml:"RetryAttempts"`
}

// LoadParams reads the reward parameter file at path, overlaying the engine
// defaults field by field. An empty path returns the defaults unchanged; a
// file that fails validation is rejected here, before the engine starts.
func LoadParams(path string) (engine.Params, error) {
	params := engine.DefaultParams()
	if path == "" {
		return params, nil
	}
	if _, err := os.Stat(path); err != nil {
		return engine.Params{}, fmt.Errorf("reward params file %s: %w", path, err)
	}

	var file paramsFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return engine.Params{}, fmt.Errorf("decode reward params %s: %w", path, err)
	}

	if file.QualifyingBalance > 0 {
		params.QualifyingBalance = file.QualifyingBalance
	}
	if len(file.StepUpRewards) > 0 {
		table := make(map[uint64]int64, len(file.StepUpRewards))
		for key, reward := range file.StepUpRewards {
			m, err := parseMultiplier(key)
			if err != nil {
				return engine.Params{}, err
			}
			table[m] = reward
		}
		params.StepUpTable = table
	}
	if file.InfinityBase > 0 {
		params.InfinityBase = file.InfinityBase
	}
	if file.InfinityRatio > 0 {
		params.InfinityRatio = file.InfinityRatio
	}
	if len(file.InfinityRewards) > 0 {
		params.InfinityRewards = file.InfinityRewards
	}
	if len(file.CommissionBps) > 0 {
		rates := make(map[string]uint32, len(file.CommissionBps))
		for role, bps := range file.CommissionBps {
			if bps < 0 || bps > engine.RateBpsDenominator {
				return engine.Params{}, fmt.Errorf("commission rate for %q out of range: %d", role, bps)
			}
			rates[role] = uint32(bps)
		}
		params.CommissionBps = rates
	}
	if len(file.RippleBps) > 0 {
		rates := make(map[uint64]uint32, len(file.RippleBps))
		for key, bps := range file.RippleBps {
			m, err := parseMultiplier(key)
			if err != nil {
				return engine.Params{}, err
			}
			if bps < 0 || bps > engine.RateBpsDenominator {
				return engine.Params{}, fmt.Errorf("ripple rate for multiplier %s out of range: %d", key, bps)
			}
			rates[m] = uint32(bps)
		}
		params.RippleBps = rates
	}
	if file.VoucherPool > 0 {
		params.VoucherPool = file.VoucherPool
	}
	if file.VoucherWindowDays > 0 {
		params.VoucherWindow = time.Duration(file.VoucherWindowDays) * 24 * time.Hour
	}
	if file.RetryAttempts > 0 {
		params.RetryAttempts = file.RetryAttempts
	}

	if err := params.Validate(); err != nil {
		return engine.Params{}, fmt.Errorf("reward params %s: %w", path, err)
	}
	return params, nil
}

func parseMultiplier(key string) (uint64, error) {
	var m uint64
	if _, err := fmt.Sscanf(key, "%d", &m); err != nil || m < 2 {
		return 0, fmt.Errorf("invalid multiplier key %q", key)
	}
	return m, nil
}
