package chain

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/kkkkikiki/infestor/internal/keys"
)

// encoder writes the chain's little-endian binary serialization
type encoder struct {
	buf    bytes.Buffer
	prefix string
}

func newEncoder(prefix string) *encoder {
	return &encoder{prefix: prefix}
}

func (e *encoder) Bytes() []byte {
	return e.buf.Bytes()
}

func (e *encoder) writeUint8(v uint8) {
	e.buf.WriteByte(v)
}

func (e *encoder) writeUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) writeUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) writeInt64(v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	e.buf.Write(b[:])
}

func (e *encoder) writeUvarint(v uint64) {
	var b [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(b[:], v)
	e.buf.Write(b[:n])
}

func (e *encoder) writeString(s string) {
	e.writeUvarint(uint64(len(s)))
	e.buf.WriteString(s)
}

// writeAsset writes amount, precision and a 7 byte zero padded symbol
func (e *encoder) writeAsset(a Asset) error {
	if len(a.Symbol) > 7 {
		return fmt.Errorf("asset symbol %q too long", a.Symbol)
	}
	e.writeInt64(a.Satoshis())
	e.writeUint8(uint8(a.Precision))
	var symbol [7]byte
	copy(symbol[:], a.Symbol)
	e.buf.Write(symbol[:])
	return nil
}

func (e *encoder) writePublicKey(s string) error {
	pub, err := keys.DecodePublicKey(s, e.prefix)
	if err != nil {
		return err
	}
	e.buf.Write(pub.SerializeCompressed())
	return nil
}
