package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kkkkikiki/infestor/internal/chain"
	"github.com/kkkkikiki/infestor/internal/credentials"
	"github.com/kkkkikiki/infestor/internal/keys"
	"github.com/kkkkikiki/infestor/internal/metrics"
)

const guardReleaseTimeout = 10 * time.Second

// BroadcastGuard is acquired right before the creation transaction is
// broadcast and released if the broadcast fails.
type BroadcastGuard interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}

// CreateAccountRequest parameterizes CreateClaimedAccount
type CreateAccountRequest struct {
	NewAccountName string
	// Password yields the new account's master password
	Password credentials.Source
	// ValidateGrammar checks the account name rules before the availability lookup
	ValidateGrammar bool
	Guard           BroadcastGuard
}

// CreateAccountResult is returned once the account exists on chain
type CreateAccountResult struct {
	Name    string
	Keys    keys.KeySet
	ManaMM  float64
	CostMM  float64
	Pending int64
}

// CreateClaimedAccount spends one of the creator's pending claimed accounts to
// create NewAccountName with keys derived from the supplied password.
func (e *Env) CreateClaimedAccount(ctx context.Context, req CreateAccountRequest) (*CreateAccountResult, error) {
	start := time.Now()
	outcome := "error"
	defer func() {
		metrics.RecordCreateAccountDuration(outcome, time.Since(start).Seconds())
	}()

	res, err := e.createClaimedAccount(ctx, req)
	switch {
	case err == nil:
		outcome = "created"
	case errors.Is(err, ErrInvalidUsername), errors.Is(err, ErrUsernameTaken), errors.Is(err, ErrMissingAccountName):
		outcome = "rejected"
	case errors.Is(err, ErrNoPendingClaimedAccounts), errors.Is(err, ErrInsufficientMana):
		outcome = "unaffordable"
	case errors.Is(err, ErrBroadcast):
		outcome = "broadcast_failed"
	}
	return res, err
}

func (e *Env) createClaimedAccount(ctx context.Context, req CreateAccountRequest) (*CreateAccountResult, error) {
	name := req.NewAccountName
	if name == "" {
		return nil, ErrMissingAccountName
	}
	log := e.logger().With(zap.String("creator", e.Creator), zap.String("new_account", name))

	activeKey, err := e.ActiveKey.Secret(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain active key: %w", err)
	}
	password, err := req.Password.Secret(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain master password: %w", err)
	}

	if req.ValidateGrammar && !ValidateUsername(name) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidUsername, name)
	}

	exists, err := e.Chain.AccountExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", name, err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrUsernameTaken, name)
	}

	ks := e.deriver().Derive(name, password, true)
	op, err := chain.NewCreateClaimedAccount(e.Creator, name, &ks)
	if err != nil {
		return nil, fmt.Errorf("failed to build create_claimed_account: %w", err)
	}

	creator, err := e.Chain.GetAccount(ctx, e.Creator)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch creator account: %w", err)
	}
	rc, err := e.Chain.GetRCInfo(ctx, e.Creator)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch resource credits: %w", err)
	}

	result := &CreateAccountResult{
		Name:    name,
		ManaMM:  rc.ManaMM(),
		Pending: int64(creator.PendingClaimedAccounts),
	}
	if result.Pending == 0 {
		return nil, fmt.Errorf("%w: %s has 0", ErrNoPendingClaimedAccounts, e.Creator)
	}

	cost, err := e.Chain.EstimateCost(ctx, op)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate creation cost: %w", err)
	}
	result.CostMM = chain.Millions(cost)
	if cost > rc.CurrentMana {
		return nil, fmt.Errorf("%w: %.2fMM available, %.2fMM required", ErrInsufficientMana, result.ManaMM, result.CostMM)
	}

	if req.Guard != nil {
		if err := req.Guard.Acquire(ctx); err != nil {
			return nil, err
		}
	}

	if err := e.Chain.Broadcast(ctx, op, activeKey); err != nil {
		log.Error("create_claimed_account broadcast failed", zap.Error(err))
		if req.Guard != nil {
			// the request may be gone by now; the release must still land
			relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), guardReleaseTimeout)
			if relErr := req.Guard.Release(relCtx); relErr != nil {
				log.Error("failed to release broadcast guard", zap.Error(relErr))
			}
			cancel()
		}
		return nil, fmt.Errorf("%w: %w", ErrBroadcast, err)
	}

	log.Info("account created", zap.Float64("cost_mm", result.CostMM))
	result.Keys = ks
	return result, nil
}
