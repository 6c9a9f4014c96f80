package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kkkkikiki/infestor/internal/chain"
	"github.com/kkkkikiki/infestor/internal/metrics"
	"github.com/kkkkikiki/infestor/internal/model"
)

const (
	giftCodeLength = 12
	// maxMintAttempts bounds retries on a duplicate generated code
	maxMintAttempts = 3
)

// Gift code sources, used as metric labels
const (
	SourceOperator   = "operator"
	SourceReputation = "reputation"
	SourceAdminRPC   = "admin_rpc"
)

// IssuancePolicy decides how many codes a logged in user may hold
type IssuancePolicy struct {
	MinimumReputation float64
	OperatorWitness   string
}

// Allowance is 0 below the reputation floor, 1 above it, and 2 above it for
// accounts voting for the operator's witness.
func (p IssuancePolicy) Allowance(account *chain.Account) int64 {
	if account.ReputationScore() < p.MinimumReputation {
		return 0
	}
	if p.OperatorWitness != "" && account.VotesForWitness(p.OperatorWitness) {
		return 2
	}
	return 1
}

// NewGiftCode returns a random upper case identifier
func NewGiftCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:giftCodeLength]
}

// AddGiftCode stores code; an empty code is an error
func (e *Env) AddGiftCode(ctx context.Context, code, createdFor, source string) (*model.GiftCode, error) {
	if code == "" {
		return nil, ErrMissingCode
	}
	gc, err := e.Store.AddCode(ctx, code, createdFor)
	if err != nil {
		return nil, err
	}
	metrics.RecordGiftCodesIssued(source, 1)
	return gc, nil
}

// IssueGiftCodes tops user's codes up to their allowance and returns all of them
func (e *Env) IssueGiftCodes(ctx context.Context, user string) ([]model.GiftCode, error) {
	account, err := e.Chain.GetAccount(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", user, err)
	}

	allowance := e.Policy.Allowance(account)
	minted, err := e.Store.TopUpCodes(ctx, user, allowance, NewGiftCode)
	if err != nil {
		return nil, err
	}
	if minted > 0 {
		metrics.RecordGiftCodesIssued(SourceReputation, minted)
		e.logger().Info("gift codes issued",
			zap.String("user", user),
			zap.Int("minted", minted),
			zap.Int64("allowance", allowance),
		)
	}

	return e.Store.GetGiftCodesByUser(ctx, user)
}
