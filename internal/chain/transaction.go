package chain

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

const (
	transactionExpiration = 60 * time.Second
	maxSigningAttempts    = 100
	signatureSize         = 65
)

var ErrNoCanonicalSignature = errors.New("could not produce a canonical signature")

// Transaction is an unsigned or signed chain transaction
type Transaction struct {
	RefBlockNum    uint16
	RefBlockPrefix uint32
	Expiration     time.Time
	Operations     []Operation
	Signatures     [][]byte
}

// NewTransaction references the head block and expires shortly after head time
func NewTransaction(props *DynamicGlobalProperties, ops ...Operation) (*Transaction, error) {
	blockID, err := hex.DecodeString(props.HeadBlockID)
	if err != nil || len(blockID) < 8 {
		return nil, fmt.Errorf("invalid head block id %q", props.HeadBlockID)
	}
	return &Transaction{
		RefBlockNum:    uint16(props.HeadBlockNumber & 0xffff),
		RefBlockPrefix: binary.LittleEndian.Uint32(blockID[4:8]),
		Expiration:     props.Time.Add(transactionExpiration).UTC(),
		Operations:     ops,
	}, nil
}

// Serialize encodes the transaction without signatures
func (tx *Transaction) Serialize(prefix string) ([]byte, error) {
	e := newEncoder(prefix)
	e.writeUint16(tx.RefBlockNum)
	e.writeUint32(tx.RefBlockPrefix)
	e.writeUint32(uint32(tx.Expiration.Unix()))
	e.writeUvarint(uint64(len(tx.Operations)))
	for _, op := range tx.Operations {
		e.writeUvarint(op.opID())
		if err := op.encode(e); err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", op.OpName(), err)
		}
	}
	e.writeUvarint(0) // extensions
	return e.Bytes(), nil
}

// SignedSize is the serialized size once n signatures are attached
func (tx *Transaction) SignedSize(prefix string, n int) (int, error) {
	raw, err := tx.Serialize(prefix)
	if err != nil {
		return 0, err
	}
	e := newEncoder(prefix)
	e.writeUvarint(uint64(n))
	return len(raw) + len(e.Bytes()) + n*signatureSize, nil
}

// Digest is sha256(chain id || serialized transaction)
func (tx *Transaction) Digest(chainID []byte, prefix string) ([]byte, error) {
	raw, err := tx.Serialize(prefix)
	if err != nil {
		return nil, err
	}
	h := sha256.New()
	h.Write(chainID)
	h.Write(raw)
	return h.Sum(nil), nil
}

// Sign signs the transaction with every key. Signing is deterministic, so when
// a signature is not canonical the expiration moves one second and all keys
// sign again.
func (tx *Transaction) Sign(chainID []byte, prefix string, privKeys ...*btcec.PrivateKey) error {
	for attempt := 0; attempt < maxSigningAttempts; attempt++ {
		digest, err := tx.Digest(chainID, prefix)
		if err != nil {
			return err
		}
		sigs := make([][]byte, 0, len(privKeys))
		canonical := true
		for _, key := range privKeys {
			sig := ecdsa.SignCompact(key, digest, true)
			if !isCanonical(sig) {
				canonical = false
				break
			}
			sigs = append(sigs, sig)
		}
		if canonical {
			tx.Signatures = sigs
			return nil
		}
		tx.Expiration = tx.Expiration.Add(time.Second)
	}
	return ErrNoCanonicalSignature
}

func isCanonical(sig []byte) bool {
	return len(sig) == signatureSize &&
		sig[1]&0x80 == 0 &&
		!(sig[1] == 0 && sig[2]&0x80 == 0) &&
		sig[33]&0x80 == 0 &&
		!(sig[33] == 0 && sig[34]&0x80 == 0)
}

// MarshalJSON renders the legacy (condenser) transaction format
func (tx *Transaction) MarshalJSON() ([]byte, error) {
	ops := make([][2]interface{}, 0, len(tx.Operations))
	for _, op := range tx.Operations {
		ops = append(ops, [2]interface{}{op.OpName(), op})
	}
	sigs := make([]string, 0, len(tx.Signatures))
	for _, sig := range tx.Signatures {
		sigs = append(sigs, hex.EncodeToString(sig))
	}
	return json.Marshal(struct {
		RefBlockNum    uint16           `json:"ref_block_num"`
		RefBlockPrefix uint32           `json:"ref_block_prefix"`
		Expiration     Time             `json:"expiration"`
		Operations     [][2]interface{} `json:"operations"`
		Extensions     []interface{}    `json:"extensions"`
		Signatures     []string         `json:"signatures"`
	}{
		RefBlockNum:    tx.RefBlockNum,
		RefBlockPrefix: tx.RefBlockPrefix,
		Expiration:     Time{tx.Expiration},
		Operations:     ops,
		Extensions:     []interface{}{},
		Signatures:     sigs,
	})
}
