// Package service holds the account claim, account creation, gift code
// redemption and gift code issuance workflows.
package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/kkkkikiki/infestor/internal/chain"
	"github.com/kkkkikiki/infestor/internal/credentials"
	"github.com/kkkkikiki/infestor/internal/keys"
	"github.com/kkkkikiki/infestor/internal/model"
)

// ChainClient is the part of the node client the workflows use
type ChainClient interface {
	GetAccount(ctx context.Context, name string) (*chain.Account, error)
	AccountExists(ctx context.Context, name string) (bool, error)
	GetRCInfo(ctx context.Context, name string) (*chain.RCInfo, error)
	EstimateCost(ctx context.Context, op chain.Operation) (int64, error)
	Broadcast(ctx context.Context, op chain.Operation, wif string) error
}

// GiftCodeStore persists gift codes
type GiftCodeStore interface {
	AddCode(ctx context.Context, code string, createdFor string) (*model.GiftCode, error)
	GetGiftCode(ctx context.Context, code string) (*model.GiftCode, error)
	CodeIsValid(ctx context.Context, code string) (bool, error)
	MarkCodeAsUsed(ctx context.Context, code string) error
	RedeemCode(ctx context.Context, code string) (bool, error)
	ReleaseCode(ctx context.Context, code string) error
	GetGiftCodesByUser(ctx context.Context, user string) ([]model.GiftCode, error)
	GetGiftCodeCountByUser(ctx context.Context, user string) (int64, error)
	TopUpCodes(ctx context.Context, user string, allowance int64, newCode func() string) (int, error)
}

// Env is everything one workflow invocation needs. Front-ends build a fresh
// Env per command or per request; nothing here is process global.
type Env struct {
	Chain     ChainClient
	Store     GiftCodeStore
	Deriver   *keys.Deriver
	Creator   string
	ActiveKey credentials.Source
	Policy    IssuancePolicy
	Logger    *zap.Logger
}

func (e *Env) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *Env) deriver() *keys.Deriver {
	if e.Deriver == nil {
		return keys.NewDeriver(keys.DefaultPrefix)
	}
	return e.Deriver
}

const (
	minUsernameLength = 3
	maxUsernameLength = 16
)

// ValidateUsername reports whether name follows the chain's account name rules:
// 3 to 16 characters made of dot separated segments, each at least 3 long,
// starting with a letter, ending with a letter or digit, using only lowercase
// letters, digits and single dashes.
func ValidateUsername(name string) bool {
	if len(name) < minUsernameLength || len(name) > maxUsernameLength {
		return false
	}
	for _, segment := range strings.Split(name, ".") {
		if !validSegment(segment) {
			return false
		}
	}
	return true
}

func validSegment(s string) bool {
	if len(s) < minUsernameLength {
		return false
	}
	if !isLower(s[0]) {
		return false
	}
	last := s[len(s)-1]
	if !isLower(last) && !isDigit(last) {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case isLower(c), isDigit(c):
		case c == '-':
			if s[i-1] == '-' {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func isLower(c byte) bool { return c >= 'a' && c <= 'z' }
func isDigit(c byte) bool { return c >= '0' && c <= '9' }
