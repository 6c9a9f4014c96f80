package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kkkkikiki/infestor/internal/credentials"
	"github.com/kkkkikiki/infestor/internal/keys"
	"github.com/kkkkikiki/infestor/internal/metrics"
)

// codeReservation consumes a gift code for the duration of a broadcast
type codeReservation struct {
	store GiftCodeStore
	code  string
}

func (r *codeReservation) Acquire(ctx context.Context) error {
	ok, err := r.store.RedeemCode(ctx, r.code)
	if err != nil {
		return err
	}
	if !ok {
		// another request redeemed it after the validity check
		return ErrInvalidGiftCode
	}
	return nil
}

func (r *codeReservation) Release(ctx context.Context) error {
	return r.store.ReleaseCode(ctx, r.code)
}

// RedeemGiftCode creates username with a freshly generated password, paid for
// by one pending claimed account, and consumes code. The code is left unused
// when anything fails.
func (e *Env) RedeemGiftCode(ctx context.Context, code, username string) (*CreateAccountResult, error) {
	res, err := e.redeemGiftCode(ctx, code, username)
	metrics.RecordRedemption(redemptionOutcome(err))
	return res, err
}

func (e *Env) redeemGiftCode(ctx context.Context, code, username string) (*CreateAccountResult, error) {
	if code == "" {
		return nil, ErrMissingCode
	}
	valid, err := e.Store.CodeIsValid(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to check gift code: %w", err)
	}
	if !valid {
		return nil, ErrInvalidGiftCode
	}

	password, err := keys.GeneratePassword()
	if err != nil {
		return nil, err
	}

	res, err := e.CreateClaimedAccount(ctx, CreateAccountRequest{
		NewAccountName:  username,
		Password:        credentials.Static(password),
		ValidateGrammar: true,
		Guard:           &codeReservation{store: e.Store, code: code},
	})
	if err != nil {
		return nil, err
	}

	e.logger().Info("gift code redeemed", zap.String("code", code), zap.String("username", username))
	return res, nil
}

func redemptionOutcome(err error) string {
	switch {
	case err == nil:
		return "redeemed"
	case errors.Is(err, ErrMissingCode), errors.Is(err, ErrInvalidGiftCode):
		return "invalid_code"
	case errors.Is(err, ErrMissingAccountName), errors.Is(err, ErrInvalidUsername):
		return "invalid_username"
	case errors.Is(err, ErrUsernameTaken):
		return "username_taken"
	case errors.Is(err, ErrNoPendingClaimedAccounts), errors.Is(err, ErrInsufficientMana):
		return "unaffordable"
	case errors.Is(err, ErrBroadcast):
		return "broadcast_failed"
	}
	return "error"
}
