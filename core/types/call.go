package types

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// CallType defines the entry point a signed call targets.
type CallType byte

const (
	CallTypeStake    CallType = 0x01 // Lock forwarded native value and mint receipts
	CallTypeUnstake  CallType = 0x02 // Burn receipts and release native value
	CallTypeTransfer CallType = 0x03 // Move receipts between holders
)

func (t CallType) String() string {
	switch t {
	case CallTypeStake:
		return "stake"
	case CallTypeUnstake:
		return "unstake"
	case CallTypeTransfer:
		return "transfer"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

// ParseCallType maps the textual operation name back to its type.
func ParseCallType(name string) (CallType, error) {
	switch name {
	case "stake":
		return CallTypeStake, nil
	case "unstake":
		return CallTypeUnstake, nil
	case "transfer":
		return CallTypeTransfer, nil
	default:
		return 0, fmt.Errorf("unknown call type %q", name)
	}
}

// Call is a signed request to execute one operation on behalf of its sender.
// Value is the native amount forwarded with a stake; Amount is the receipt
// amount for unstake and transfer.
type Call struct {
	ChainID uint64   `json:"chainId"`
	Type    CallType `json:"type"`
	Nonce   uint64   `json:"nonce"`
	To      []byte   `json:"to,omitempty"`
	Value   uint64   `json:"value"`
	Amount  uint64   `json:"amount"`

	R *big.Int `json:"r"`
	S *big.Int `json:"s"`
	V *big.Int `json:"v"`

	from []byte
}

// Hash returns keccak256 over the RLP encoding of the unsigned fields.
func (c *Call) Hash() ([]byte, error) {
	payload := struct {
		ChainID uint64
		Type    CallType
		Nonce   uint64
		To      []byte
		Value   uint64
		Amount  uint64
	}{c.ChainID, c.Type, c.Nonce, c.To, c.Value, c.Amount}

	b, err := rlp.EncodeToBytes(payload)
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(b), nil
}

func (c *Call) Sign(privKey *ecdsa.PrivateKey) error {
	hash, err := c.Hash()
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(hash, privKey)
	if err != nil {
		return err
	}
	c.R = new(big.Int).SetBytes(sig[:32])
	c.S = new(big.Int).SetBytes(sig[32:64])
	c.V = new(big.Int).SetBytes([]byte{sig[64] + 27})
	c.from = nil
	return nil
}

// From recovers the sender identity from the signature.
func (c *Call) From() ([20]byte, error) {
	var out [20]byte
	if c.from != nil {
		copy(out[:], c.from)
		return out, nil
	}
	if c.R == nil || c.S == nil || c.V == nil {
		return out, errors.New("call: missing signature")
	}
	if len(c.R.Bytes()) > 32 || len(c.S.Bytes()) > 32 {
		return out, errors.New("call: malformed signature")
	}
	v := c.V.Uint64()
	if v != 27 && v != 28 {
		return out, fmt.Errorf("call: invalid recovery id %d", v)
	}
	hash, err := c.Hash()
	if err != nil {
		return out, err
	}
	sig := make([]byte, 65)
	copy(sig[32-len(c.R.Bytes()):32], c.R.Bytes())
	copy(sig[64-len(c.S.Bytes()):64], c.S.Bytes())
	sig[64] = byte(v - 27)
	pubKey, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return out, err
	}
	c.from = crypto.PubkeyToAddress(*pubKey).Bytes()
	copy(out[:], c.from)
	return out, nil
}

// Recipient returns To as a fixed-size identity.
func (c *Call) Recipient() ([20]byte, error) {
	var out [20]byte
	if len(c.To) != 20 {
		return out, fmt.Errorf("call: recipient must be 20 bytes, got %d", len(c.To))
	}
	copy(out[:], c.To)
	return out, nil
}
