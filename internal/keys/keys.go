// Package keys derives STEEM account key pairs from a username and a master
// password, and encodes them in the formats the chain expects.
package keys

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/base58"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // required by the chain's key format
)

// DefaultPrefix is the public key prefix used on the STEEM main network
const DefaultPrefix = "STM"

const wifVersion = 0x80

var (
	ErrInvalidWIF       = errors.New("invalid private key")
	ErrInvalidPublicKey = errors.New("invalid public key")
)

// Role is an account authority role
type Role string

const (
	RoleOwner   Role = "owner"
	RoleActive  Role = "active"
	RolePosting Role = "posting"
	RoleMemo    Role = "memo"
)

// Roles lists the four operational roles every KeySet carries
var Roles = [...]Role{RoleOwner, RoleActive, RolePosting, RoleMemo}

// KeyPair is a public key and its WIF encoded private key
type KeyPair struct {
	Public  string `json:"public"`
	Private string `json:"private"`
}

// RoleKey pairs a role with its keys, for ordered display
type RoleKey struct {
	Role Role
	KeyPair
}

// KeySet holds the keys of one account. Master is only set when requested.
type KeySet struct {
	Owner   KeyPair `json:"owner"`
	Active  KeyPair `json:"active"`
	Posting KeyPair `json:"posting"`
	Memo    KeyPair `json:"memo"`
	Master  string  `json:"master,omitempty"`
}

// Get returns the pair for role
func (k *KeySet) Get(role Role) KeyPair {
	switch role {
	case RoleOwner:
		return k.Owner
	case RoleActive:
		return k.Active
	case RolePosting:
		return k.Posting
	case RoleMemo:
		return k.Memo
	}
	return KeyPair{}
}

func (k *KeySet) set(role Role, pair KeyPair) {
	switch role {
	case RoleOwner:
		k.Owner = pair
	case RoleActive:
		k.Active = pair
	case RolePosting:
		k.Posting = pair
	case RoleMemo:
		k.Memo = pair
	}
}

// Pairs returns the role keys in display order
func (k *KeySet) Pairs() []RoleKey {
	order := []Role{RolePosting, RoleActive, RoleOwner, RoleMemo}
	pairs := make([]RoleKey, 0, len(order))
	for _, role := range order {
		pairs = append(pairs, RoleKey{Role: role, KeyPair: k.Get(role)})
	}
	return pairs
}

// Deriver turns (username, password) into a KeySet
type Deriver struct {
	prefix string
}

// NewDeriver creates a deriver for the given address prefix
func NewDeriver(prefix string) *Deriver {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Deriver{prefix: prefix}
}

// Derive computes all four role keys. The same inputs always yield the same keys.
func (d *Deriver) Derive(username, password string, includeMaster bool) KeySet {
	var ks KeySet
	for _, role := range Roles {
		priv := PrivateKeyFromPassword(username, role, password)
		ks.set(role, KeyPair{
			Public:  EncodePublicKey(priv.PubKey(), d.prefix),
			Private: EncodeWIF(priv),
		})
	}
	if includeMaster {
		ks.Master = password
	}
	return ks
}

// PrivateKeyFromPassword is sha256(username + role + password) as a secp256k1 key
func PrivateKeyFromPassword(username string, role Role, password string) *btcec.PrivateKey {
	seed := sha256.Sum256([]byte(username + string(role) + password))
	priv, _ := btcec.PrivKeyFromBytes(seed[:])
	return priv
}

// EncodeWIF encodes a private key in wallet import format
func EncodeWIF(priv *btcec.PrivateKey) string {
	payload := append([]byte{wifVersion}, priv.Serialize()...)
	return base58.Encode(append(payload, doubleSHA256(payload)[:4]...))
}

// DecodeWIF parses a wallet import format private key
func DecodeWIF(wif string) (*btcec.PrivateKey, error) {
	raw := base58.Decode(strings.TrimSpace(wif))
	if len(raw) != 37 || raw[0] != wifVersion {
		return nil, ErrInvalidWIF
	}
	payload, checksum := raw[:33], raw[33:]
	if !bytes.Equal(doubleSHA256(payload)[:4], checksum) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidWIF)
	}
	priv, _ := btcec.PrivKeyFromBytes(payload[1:])
	return priv, nil
}

// EncodePublicKey renders a compressed public key as prefix + base58(key + checksum)
func EncodePublicKey(pub *btcec.PublicKey, prefix string) string {
	compressed := pub.SerializeCompressed()
	return prefix + base58.Encode(append(compressed, ripemd160Sum(compressed)[:4]...))
}

// DecodePublicKey parses a prefixed public key string
func DecodePublicKey(s, prefix string) (*btcec.PublicKey, error) {
	if !strings.HasPrefix(s, prefix) {
		return nil, fmt.Errorf("%w: expected prefix %s", ErrInvalidPublicKey, prefix)
	}
	raw := base58.Decode(s[len(prefix):])
	if len(raw) != 37 {
		return nil, ErrInvalidPublicKey
	}
	key, checksum := raw[:33], raw[33:]
	if !bytes.Equal(ripemd160Sum(key)[:4], checksum) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidPublicKey)
	}
	pub, err := btcec.ParsePubKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return pub, nil
}

// GeneratePassword returns a fresh random master password in the wallet's "P5..." form
func GeneratePassword() (string, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate password: %w", err)
	}
	return "P" + EncodeWIF(priv), nil
}

func doubleSHA256(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:]
}

func ripemd160Sum(b []byte) []byte {
	h := ripemd160.New()
	h.Write(b)
	return h.Sum(nil)
}
