package chain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kkkkikiki/infestor/internal/keys"
)

// Operation ids in the chain's static_variant ordering
const (
	opClaimAccount         uint64 = 22
	opCreateClaimedAccount uint64 = 23
)

// ClaimAccountFee is the fee of a discounted (RC paid) account claim
var ClaimAccountFee = MustParseAsset("0.000 STEEM")

var (
	ErrMissingRole   = errors.New("authority role missing")
	ErrDuplicateRole = errors.New("authority role set twice")
	ErrUnknownRole   = errors.New("unknown authority role")
)

// Operation is something that can be put in a transaction
type Operation interface {
	OpName() string
	opID() uint64
	encode(e *encoder) error
}

// ClaimAccountOperation reserves a discounted account slot for Creator
type ClaimAccountOperation struct {
	Creator    string        `json:"creator"`
	Fee        Asset         `json:"fee"`
	Extensions []interface{} `json:"extensions"`
}

// NewClaimAccount builds the claim operation for creator
func NewClaimAccount(creator string) *ClaimAccountOperation {
	return &ClaimAccountOperation{
		Creator:    creator,
		Fee:        ClaimAccountFee,
		Extensions: []interface{}{},
	}
}

func (op *ClaimAccountOperation) OpName() string { return "claim_account" }
func (op *ClaimAccountOperation) opID() uint64   { return opClaimAccount }

func (op *ClaimAccountOperation) encode(e *encoder) error {
	e.writeString(op.Creator)
	if err := e.writeAsset(op.Fee); err != nil {
		return err
	}
	e.writeUvarint(0)
	return nil
}

// KeyAuth is a weighted public key
type KeyAuth struct {
	Key    string
	Weight uint16
}

func (k KeyAuth) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{k.Key, k.Weight})
}

// AccountAuth is a weighted account
type AccountAuth struct {
	Account string
	Weight  uint16
}

func (a AccountAuth) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{a.Account, a.Weight})
}

// Authority is a weighted multi-signature authority
type Authority struct {
	WeightThreshold uint32        `json:"weight_threshold"`
	AccountAuths    []AccountAuth `json:"account_auths"`
	KeyAuths        []KeyAuth     `json:"key_auths"`
}

// SingleKeyAuthority is a threshold 1 authority satisfied by one key
func SingleKeyAuthority(publicKey string) Authority {
	return Authority{
		WeightThreshold: 1,
		AccountAuths:    []AccountAuth{},
		KeyAuths:        []KeyAuth{{Key: publicKey, Weight: 1}},
	}
}

func (a Authority) encode(e *encoder) error {
	e.writeUint32(a.WeightThreshold)
	e.writeUvarint(uint64(len(a.AccountAuths)))
	for _, aa := range a.AccountAuths {
		e.writeString(aa.Account)
		e.writeUint16(aa.Weight)
	}
	e.writeUvarint(uint64(len(a.KeyAuths)))
	for _, ka := range a.KeyAuths {
		if err := e.writePublicKey(ka.Key); err != nil {
			return err
		}
		e.writeUint16(ka.Weight)
	}
	return nil
}

// CreateClaimedAccountOperation spends a claimed slot to create NewAccountName
type CreateClaimedAccountOperation struct {
	Creator        string        `json:"creator"`
	NewAccountName string        `json:"new_account_name"`
	Owner          Authority     `json:"owner"`
	Active         Authority     `json:"active"`
	Posting        Authority     `json:"posting"`
	MemoKey        string        `json:"memo_key"`
	JSONMetadata   string        `json:"json_metadata"`
	Extensions     []interface{} `json:"extensions"`
}

func (op *CreateClaimedAccountOperation) OpName() string { return "create_claimed_account" }
func (op *CreateClaimedAccountOperation) opID() uint64   { return opCreateClaimedAccount }

func (op *CreateClaimedAccountOperation) encode(e *encoder) error {
	e.writeString(op.Creator)
	e.writeString(op.NewAccountName)
	for _, auth := range []Authority{op.Owner, op.Active, op.Posting} {
		if err := auth.encode(e); err != nil {
			return err
		}
	}
	if err := e.writePublicKey(op.MemoKey); err != nil {
		return err
	}
	e.writeString(op.JSONMetadata)
	e.writeUvarint(0)
	return nil
}

// CreateClaimedAccountBuilder collects exactly one public key per role
type CreateClaimedAccountBuilder struct {
	creator string
	name    string
	keys    map[keys.Role]string
}

// NewCreateClaimedAccountBuilder starts an operation for creator and name
func NewCreateClaimedAccountBuilder(creator, name string) *CreateClaimedAccountBuilder {
	return &CreateClaimedAccountBuilder{
		creator: creator,
		name:    name,
		keys:    make(map[keys.Role]string, len(keys.Roles)),
	}
}

// SetKey assigns the public key of role
func (b *CreateClaimedAccountBuilder) SetKey(role keys.Role, publicKey string) error {
	if !knownRole(role) {
		return fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	if _, ok := b.keys[role]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRole, role)
	}
	b.keys[role] = publicKey
	return nil
}

// Build returns the operation once every role has a key
func (b *CreateClaimedAccountBuilder) Build() (*CreateClaimedAccountOperation, error) {
	for _, role := range keys.Roles {
		if b.keys[role] == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingRole, role)
		}
	}
	return &CreateClaimedAccountOperation{
		Creator:        b.creator,
		NewAccountName: b.name,
		Owner:          SingleKeyAuthority(b.keys[keys.RoleOwner]),
		Active:         SingleKeyAuthority(b.keys[keys.RoleActive]),
		Posting:        SingleKeyAuthority(b.keys[keys.RolePosting]),
		MemoKey:        b.keys[keys.RoleMemo],
		JSONMetadata:   "",
		Extensions:     []interface{}{},
	}, nil
}

// NewCreateClaimedAccount builds the operation from the public half of a KeySet
func NewCreateClaimedAccount(creator, name string, ks *keys.KeySet) (*CreateClaimedAccountOperation, error) {
	b := NewCreateClaimedAccountBuilder(creator, name)
	for _, role := range keys.Roles {
		if err := b.SetKey(role, ks.Get(role).Public); err != nil {
			return nil, err
		}
	}
	return b.Build()
}

func knownRole(role keys.Role) bool {
	for _, r := range keys.Roles {
		if r == role {
			return true
		}
	}
	return false
}
