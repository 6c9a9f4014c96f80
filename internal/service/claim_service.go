package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kkkkikiki/infestor/internal/chain"
	"github.com/kkkkikiki/infestor/internal/metrics"
)

// ClaimOutcome is the result class of one claim attempt
type ClaimOutcome string

const (
	ClaimOutcomeClaimed        ClaimOutcome = "ELIGIBLE_CLAIMED"
	ClaimOutcomeInsufficientRC ClaimOutcome = "INSUFFICIENT_RC"
	ClaimOutcomeBelowMinimumRC ClaimOutcome = "BELOW_MINIMUM_RC_THRESHOLD"
)

// ClaimRequest parameterizes ClaimAccount
type ClaimRequest struct {
	// MinimumRCPercent aborts the claim when the creator's mana percentage is
	// lower. Zero disables the check.
	MinimumRCPercent float64

	// OnEstimate, when set, is called once the cost is known and before the
	// active key is requested.
	OnEstimate func(*ClaimResult)
}

// ClaimResult describes a claim attempt
type ClaimResult struct {
	Outcome       ClaimOutcome
	Creator       string
	PendingBefore int64
	PendingAfter  int64
	ManaPercent   float64
	ManaMM        float64
	CostMM        float64
	// Claimable is how many claims the current mana would pay for
	Claimable int64
}

// ClaimAccount converts the creator's resource credits into one pending
// claimed account slot.
func (e *Env) ClaimAccount(ctx context.Context, req ClaimRequest) (result *ClaimResult, err error) {
	start := time.Now()
	result = &ClaimResult{Creator: e.Creator}
	defer func() {
		outcome := string(result.Outcome)
		if outcome == "" {
			outcome = "error"
		}
		metrics.RecordClaimAccountDuration(outcome, time.Since(start).Seconds())
	}()

	log := e.logger().With(zap.String("creator", e.Creator))
	log.Debug("fetching RC details")

	account, err := e.Chain.GetAccount(ctx, e.Creator)
	if err != nil {
		return result, fmt.Errorf("failed to fetch creator account: %w", err)
	}
	result.PendingBefore = int64(account.PendingClaimedAccounts)

	rc, err := e.Chain.GetRCInfo(ctx, e.Creator)
	if err != nil {
		return result, fmt.Errorf("failed to fetch resource credits: %w", err)
	}
	result.ManaPercent = rc.CurrentManaPercent
	result.ManaMM = rc.ManaMM()

	if req.MinimumRCPercent > 0 && rc.CurrentManaPercent < req.MinimumRCPercent {
		result.Outcome = ClaimOutcomeBelowMinimumRC
		return result, fmt.Errorf("%w: %.2f%% < %.2f%%", ErrBelowMinimumRC, rc.CurrentManaPercent, req.MinimumRCPercent)
	}

	op := chain.NewClaimAccount(e.Creator)
	cost, err := e.Chain.EstimateCost(ctx, op)
	if err != nil {
		return result, fmt.Errorf("failed to estimate claim cost: %w", err)
	}
	result.CostMM = chain.Millions(cost)
	if cost > 0 {
		result.Claimable = rc.CurrentMana / cost
	}

	if req.OnEstimate != nil {
		req.OnEstimate(result)
	}

	if cost > rc.CurrentMana {
		result.Outcome = ClaimOutcomeInsufficientRC
		log.Info("insufficient mana",
			zap.Float64("mana_mm", result.ManaMM),
			zap.Float64("cost_mm", result.CostMM),
		)
		return result, fmt.Errorf("%w: %.2fMM available, %.2fMM required", ErrInsufficientMana, result.ManaMM, result.CostMM)
	}

	activeKey, err := e.ActiveKey.Secret(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to obtain active key: %w", err)
	}

	if err := e.Chain.Broadcast(ctx, op, activeKey); err != nil {
		return result, fmt.Errorf("%w: %w", ErrBroadcast, err)
	}
	result.Outcome = ClaimOutcomeClaimed

	// best effort; the node may not have applied the block yet
	after, err := e.Chain.GetAccount(ctx, e.Creator)
	if err != nil {
		log.Warn("failed to refresh pending claimed accounts", zap.Error(err))
		result.PendingAfter = result.PendingBefore + 1
		return result, nil
	}
	result.PendingAfter = int64(after.PendingClaimedAccounts)

	log.Info("account claimed",
		zap.Int64("pending_claimed_accounts", result.PendingAfter),
		zap.Float64("cost_mm", result.CostMM),
	)
	return result, nil
}
