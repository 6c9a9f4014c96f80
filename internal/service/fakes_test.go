package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kkkkikiki/infestor/internal/chain"
	"github.com/kkkkikiki/infestor/internal/config"
	"github.com/kkkkikiki/infestor/internal/credentials"
	"github.com/kkkkikiki/infestor/internal/database"
	"github.com/kkkkikiki/infestor/internal/keys"
	"github.com/kkkkikiki/infestor/internal/repository"
)

const testCreator = "emrebeyler"

// fakeChain is an in-memory node. Broadcasts take effect immediately.
type fakeChain struct {
	mu           sync.Mutex
	accounts     map[string]*chain.Account
	rc           chain.RCInfo
	costs        map[string]int64
	broadcastErr error
	// onBroadcast runs before every broadcast
	onBroadcast func()
	broadcasts   []chain.Operation
	wifs         []string
}

func newFakeChain(pending int64, manaMM int64) *fakeChain {
	return &fakeChain{
		accounts: map[string]*chain.Account{
			testCreator: {Name: testCreator, PendingClaimedAccounts: chain.Int64(pending)},
		},
		rc: chain.RCInfo{
			Account:            testCreator,
			CurrentMana:        manaMM * 1_000_000,
			MaxMana:            100 * 1_000_000,
			CurrentManaPercent: float64(manaMM),
		},
		costs: map[string]int64{
			"claim_account":          3_000_000,
			"create_claimed_account": 1_000_000,
		},
	}
}

func (f *fakeChain) addAccount(account chain.Account) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[account.Name] = &account
}

func (f *fakeChain) GetAccount(_ context.Context, name string) (*chain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[name]
	if !ok {
		return nil, chain.ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (f *fakeChain) AccountExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.accounts[name]
	return ok, nil
}

func (f *fakeChain) GetRCInfo(_ context.Context, _ string) (*chain.RCInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rc := f.rc
	return &rc, nil
}

func (f *fakeChain) EstimateCost(_ context.Context, op chain.Operation) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.costs[op.OpName()], nil
}

func (f *fakeChain) Broadcast(_ context.Context, op chain.Operation, wif string) error {
	if f.onBroadcast != nil {
		f.onBroadcast()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broadcastErr != nil {
		return f.broadcastErr
	}
	f.broadcasts = append(f.broadcasts, op)
	f.wifs = append(f.wifs, wif)

	creator := f.accounts[testCreator]
	switch op := op.(type) {
	case *chain.ClaimAccountOperation:
		creator.PendingClaimedAccounts++
	case *chain.CreateClaimedAccountOperation:
		if _, ok := f.accounts[op.NewAccountName]; ok {
			return errors.New("account name already exists")
		}
		creator.PendingClaimedAccounts--
		f.accounts[op.NewAccountName] = &chain.Account{Name: op.NewAccountName}
	}
	return nil
}

func (f *fakeChain) broadcastCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.broadcasts)
}

// failingSource fails the test if a secret is requested
func failingSource(t *testing.T) credentials.Source {
	return credentials.SourceFunc(func(context.Context) (string, error) {
		t.Error("secret requested unexpectedly")
		return "", errors.New("unexpected secret request")
	})
}

var testActiveKey = keys.EncodeWIF(keys.PrivateKeyFromPassword(testCreator, keys.RoleActive, "password"))

func newTestStore(t *testing.T) *repository.GiftCodeRepository {
	t.Helper()

	db, err := database.NewDB(context.Background(), &config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    ":memory:",
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return repository.NewGiftCodeRepository(db)
}

func newTestEnv(t *testing.T, node *fakeChain) *Env {
	t.Helper()
	return &Env{
		Chain:     node,
		Store:     newTestStore(t),
		Deriver:   keys.NewDeriver(keys.DefaultPrefix),
		Creator:   testCreator,
		ActiveKey: credentials.Static(testActiveKey),
		Policy:    IssuancePolicy{MinimumReputation: 50, OperatorWitness: testCreator},
		Logger:    zap.NewNop(),
	}
}
