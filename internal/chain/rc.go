package chain

import (
	"bytes"
	"fmt"
	"math/big"
)

const (
	rcRegenerationSeconds = 5 * 24 * 60 * 60
	blockIntervalSeconds  = 3
)

const (
	ResourceHistoryBytes  = "resource_history_bytes"
	ResourceNewAccounts   = "resource_new_accounts"
	ResourceMarketBytes   = "resource_market_bytes"
	ResourceStateBytes    = "resource_state_bytes"
	ResourceExecutionTime = "resource_execution_time"
)

// resources is the evaluation order used when summing costs
var resources = []string{
	ResourceHistoryBytes,
	ResourceNewAccounts,
	ResourceMarketBytes,
	ResourceStateBytes,
	ResourceExecutionTime,
}

// BigInt decodes arbitrarily large integers sent as numbers or strings
type BigInt struct {
	big.Int
}

func (b *BigInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if _, ok := b.SetString(string(data), 10); !ok {
		return fmt.Errorf("invalid integer %q", data)
	}
	return nil
}

// PriceCurveParams shapes how expensive a resource gets as its pool drains
type PriceCurveParams struct {
	CoeffA BigInt `json:"coeff_a"`
	CoeffB BigInt `json:"coeff_b"`
	Shift  uint   `json:"shift"`
}

// ResourceParams are the per-resource parameters of the RC plugin
type ResourceParams struct {
	ResourceDynamicsParams struct {
		ResourceUnit Int64 `json:"resource_unit"`
	} `json:"resource_dynamics_params"`
	PriceCurveParams PriceCurveParams `json:"price_curve_params"`
}

// ResourceParamsResponse is the result of rc_api.get_resource_params
type ResourceParamsResponse struct {
	ResourceParams map[string]ResourceParams `json:"resource_params"`
	SizeInfo       struct {
		StateBytes    map[string]Int64 `json:"resource_state_bytes"`
		ExecutionTime map[string]Int64 `json:"resource_execution_time"`
	} `json:"size_info"`
}

// ResourcePoolResponse is the result of rc_api.get_resource_pool
type ResourcePoolResponse struct {
	ResourcePool map[string]struct {
		Pool BigInt `json:"pool"`
	} `json:"resource_pool"`
}

// ResourceUsage counts what one transaction consumes, per resource
type ResourceUsage map[string]int64

// CountResources estimates the resources a signed transaction of txSize bytes
// carrying ops consumes.
func CountResources(params *ResourceParamsResponse, txSize int, ops ...Operation) ResourceUsage {
	state := params.SizeInfo.StateBytes
	exec := params.SizeInfo.ExecutionTime

	usage := ResourceUsage{
		ResourceHistoryBytes:  int64(txSize),
		ResourceStateBytes:    int64(state["transaction_object_base_size"]) + int64(state["transaction_object_byte_size"])*int64(txSize),
		ResourceExecutionTime: int64(exec["transaction_time"]),
	}

	for _, op := range ops {
		switch op.(type) {
		case *ClaimAccountOperation:
			usage[ResourceNewAccounts]++
			usage[ResourceExecutionTime] += int64(exec["claim_account_operation_exec_time"])
		case *CreateClaimedAccountOperation:
			usage[ResourceStateBytes] += int64(state["account_object_base_size"]) +
				int64(state["account_authority_object_base_size"]) +
				3*(int64(state["authority_base_size"])+int64(state["authority_key_member_size"]))
			usage[ResourceExecutionTime] += int64(exec["create_claimed_account_operation_exec_time"])
		}
	}
	return usage
}

// RCRegen is the per-block regeneration of all resource credits
func RCRegen(totalVestingShares Asset) *big.Int {
	regen := big.NewInt(totalVestingShares.Satoshis())
	return regen.Div(regen, big.NewInt(rcRegenerationSeconds/blockIntervalSeconds))
}

// ComputeRCCost prices a resource count against the current pool
func ComputeRCCost(curve *PriceCurveParams, pool *big.Int, count int64, rcRegen *big.Int) int64 {
	if count <= 0 {
		return 0
	}
	num := new(big.Int).Mul(rcRegen, &curve.CoeffA.Int)
	num.Rsh(num, curve.Shift)
	num.Add(num, big.NewInt(1))
	num.Mul(num, big.NewInt(count))

	denom := new(big.Int).Set(&curve.CoeffB.Int)
	if pool.Sign() > 0 {
		denom.Add(denom, pool)
	}
	if denom.Sign() == 0 {
		denom.SetInt64(1)
	}

	cost := num.Div(num, denom)
	return cost.Int64() + 1
}

// TotalRCCost sums the cost of every resource in usage
func TotalRCCost(params *ResourceParamsResponse, pool *ResourcePoolResponse, usage ResourceUsage, rcRegen *big.Int) int64 {
	var total int64
	for _, name := range resources {
		count := usage[name]
		if count == 0 {
			continue
		}
		rp, ok := params.ResourceParams[name]
		if !ok {
			continue
		}
		if unit := int64(rp.ResourceDynamicsParams.ResourceUnit); unit > 0 {
			count *= unit
		}
		current := big.NewInt(0)
		if p, ok := pool.ResourcePool[name]; ok {
			current = &p.Pool.Int
		}
		total += ComputeRCCost(&rp.PriceCurveParams, current, count, rcRegen)
	}
	return total
}
