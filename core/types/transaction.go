package types

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// TxType defines the purpose of a transaction.
type TxType byte

const (
	TxTypeApprove          TxType = 0x01 // Approve a spender to pull gating tokens
	TxTypeRegisterCreative TxType = 0x02 // Pay the fee and register a design
	TxTypeMint             TxType = 0x03 // Claim one copy of a design
	TxTypeAddAdmins        TxType = 0x04 // Grant admin rights
	TxTypeSwitchMintable   TxType = 0x05 // Toggle the minting override
)

var (
	ErrUnknownTxType = errors.New("tx: unknown transaction type")
	ErrUnsigned      = errors.New("tx: missing signature")
)

func (t TxType) String() string {
	switch t {
	case TxTypeApprove:
		return "approve"
	case TxTypeRegisterCreative:
		return "registerCreative"
	case TxTypeMint:
		return "mint"
	case TxTypeAddAdmins:
		return "addAdmins"
	case TxTypeSwitchMintable:
		return "switchMintable"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(t))
	}
}

// Valid reports whether t is a known transaction type.
func (t TxType) Valid() bool {
	return t >= TxTypeApprove && t <= TxTypeSwitchMintable
}

// ApprovePayload sets the allowance Spender may pull from the sender.
type ApprovePayload struct {
	Spender [20]byte
	Amount  *big.Int
}

// RegisterCreativePayload registers a design with MaxSupply copies.
type RegisterCreativePayload struct {
	MaxSupply uint64
	URI       string
}

// MintPayload claims one copy of DesignID for the sender.
type MintPayload struct {
	DesignID uint64
}

// AddAdminsPayload grants admin rights to Admins.
type AddAdminsPayload struct {
	Admins [][20]byte
}

// Transaction is a signed call into the drop. Data carries the RLP-encoded
// payload matching Type; SwitchMintable has no payload.
type Transaction struct {
	ChainID uint64 `json:"chainId"`
	Type    TxType `json:"type"`
	Nonce   uint64 `json:"nonce"`
	Data    []byte `json:"data"`

	R *big.Int `json:"r"`
	S *big.Int `json:"s"`
	V *big.Int `json:"v"`

	from []byte
}

// NewTransaction encodes payload into an unsigned transaction.
func NewTransaction(chainID uint64, typ TxType, nonce uint64, payload interface{}) (*Transaction, error) {
	if !typ.Valid() {
		return nil, ErrUnknownTxType
	}
	tx := &Transaction{ChainID: chainID, Type: typ, Nonce: nonce}
	if payload != nil {
		data, err := rlp.EncodeToBytes(payload)
		if err != nil {
			return nil, err
		}
		tx.Data = data
	}
	return tx, nil
}

// DecodePayload decodes Data into out.
func (tx *Transaction) DecodePayload(out interface{}) error {
	if len(tx.Data) == 0 {
		return fmt.Errorf("tx: empty payload for %s", tx.Type)
	}
	if err := rlp.DecodeBytes(tx.Data, out); err != nil {
		return fmt.Errorf("tx: decode %s payload: %w", tx.Type, err)
	}
	return nil
}

// Hash is keccak256 over the RLP encoding of the signed fields.
func (tx *Transaction) Hash() ([]byte, error) {
	encoded, err := rlp.EncodeToBytes([]interface{}{tx.ChainID, uint8(tx.Type), tx.Nonce, tx.Data})
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(encoded), nil
}

func (tx *Transaction) Sign(privKey *ecdsa.PrivateKey) error {
	hash, err := tx.Hash()
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(hash, privKey)
	if err != nil {
		return err
	}
	tx.R = new(big.Int).SetBytes(sig[:32])
	tx.S = new(big.Int).SetBytes(sig[32:64])
	tx.V = new(big.Int).SetBytes([]byte{sig[64] + 27})
	tx.from = nil
	return nil
}

// From recovers the sender from the signature.
func (tx *Transaction) From() ([]byte, error) {
	if tx.from != nil {
		return tx.from, nil
	}
	if tx.R == nil || tx.S == nil || tx.V == nil {
		return nil, ErrUnsigned
	}
	if tx.R.BitLen() > 256 || tx.S.BitLen() > 256 || !tx.V.IsUint64() || tx.V.Uint64() < 27 || tx.V.Uint64() > 28 {
		return nil, fmt.Errorf("tx: malformed signature")
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, err
	}
	sig := make([]byte, 65)
	tx.R.FillBytes(sig[:32])
	tx.S.FillBytes(sig[32:64])
	sig[64] = byte(tx.V.Uint64() - 27)
	pubKey, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return nil, err
	}
	tx.from = crypto.PubkeyToAddress(*pubKey).Bytes()
	return tx.from, nil
}

// Sender returns From as a fixed-size address.
func (tx *Transaction) Sender() ([20]byte, error) {
	var out [20]byte
	from, err := tx.From()
	if err != nil {
		return out, err
	}
	copy(out[:], from)
	return out, nil
}
