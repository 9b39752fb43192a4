package events

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"nengajo/core/types"
)

const (
	// TypeDesignRegistered is emitted when a creator pays the fee and a new
	// design is appended to the registry.
	TypeDesignRegistered = "nengajo.design.registered"
	// TypeCopyMinted is emitted when a claimant receives one copy of a design.
	TypeCopyMinted = "nengajo.copy.minted"
	// TypeAdminsAdded is emitted when an admin grows the admin set.
	TypeAdminsAdded = "nengajo.admins.added"
	// TypeMintableSwitched is emitted when the override flag is toggled.
	TypeMintableSwitched = "nengajo.mintable.switched"
	// TypeAllowanceApproved is emitted when a holder approves the drop to pull
	// gating tokens.
	TypeAllowanceApproved = "nengajo.allowance.approved"
	// TypeTokenTransferred is emitted when gating tokens move between holders.
	TypeTokenTransferred = "nengajo.token.transferred"
)

func hexAddr(addr [20]byte) string {
	return common.BytesToAddress(addr[:]).Hex()
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// DesignRegistered captures a newly registered design.
type DesignRegistered struct {
	ID        uint64
	Creator   [20]byte
	URI       string
	MaxSupply uint64
	Fee       *big.Int
}

// EventType implements the Event interface.
func (DesignRegistered) EventType() string { return TypeDesignRegistered }

// Event converts the registration to the generic event payload.
func (e DesignRegistered) Event() *types.Event {
	return &types.Event{
		Type: TypeDesignRegistered,
		Attributes: map[string]string{
			"designId":  strconv.FormatUint(e.ID, 10),
			"creator":   hexAddr(e.Creator),
			"uri":       e.URI,
			"maxSupply": strconv.FormatUint(e.MaxSupply, 10),
			"fee":       amountString(e.Fee),
		},
	}
}

// CopyMinted captures a successful claim. Minted is the design's counter
// after the claim.
type CopyMinted struct {
	DesignID  uint64
	Claimant  [20]byte
	Minted    uint64
	MaxSupply uint64
}

// EventType implements the Event interface.
func (CopyMinted) EventType() string { return TypeCopyMinted }

// Event converts the claim to the generic event payload.
func (e CopyMinted) Event() *types.Event {
	return &types.Event{
		Type: TypeCopyMinted,
		Attributes: map[string]string{
			"designId":  strconv.FormatUint(e.DesignID, 10),
			"claimant":  hexAddr(e.Claimant),
			"minted":    strconv.FormatUint(e.Minted, 10),
			"maxSupply": strconv.FormatUint(e.MaxSupply, 10),
		},
	}
}

// AdminsAdded lists the addresses granted admin rights in one call. Entries
// that were already admins are omitted.
type AdminsAdded struct {
	Caller [20]byte
	Admins [][20]byte
}

// EventType implements the Event interface.
func (AdminsAdded) EventType() string { return TypeAdminsAdded }

// Event converts the grant to the generic event payload.
func (e AdminsAdded) Event() *types.Event {
	admins := make([]string, 0, len(e.Admins))
	for _, addr := range e.Admins {
		admins = append(admins, hexAddr(addr))
	}
	return &types.Event{
		Type: TypeAdminsAdded,
		Attributes: map[string]string{
			"caller": hexAddr(e.Caller),
			"admins": strings.Join(admins, ","),
			"count":  strconv.Itoa(len(admins)),
		},
	}
}

// MintableSwitched records the override flag after a toggle.
type MintableSwitched struct {
	Caller   [20]byte
	Mintable bool
}

// EventType implements the Event interface.
func (MintableSwitched) EventType() string { return TypeMintableSwitched }

// Event converts the toggle to the generic event payload.
func (e MintableSwitched) Event() *types.Event {
	return &types.Event{
		Type: TypeMintableSwitched,
		Attributes: map[string]string{
			"caller":   hexAddr(e.Caller),
			"mintable": strconv.FormatBool(e.Mintable),
		},
	}
}

// AllowanceApproved records a new allowance. Amount replaces any previous
// allowance for the pair.
type AllowanceApproved struct {
	Owner   [20]byte
	Spender [20]byte
	Amount  *big.Int
}

// EventType implements the Event interface.
func (AllowanceApproved) EventType() string { return TypeAllowanceApproved }

// Event converts the approval to the generic event payload.
func (e AllowanceApproved) Event() *types.Event {
	return &types.Event{
		Type: TypeAllowanceApproved,
		Attributes: map[string]string{
			"owner":   hexAddr(e.Owner),
			"spender": hexAddr(e.Spender),
			"amount":  amountString(e.Amount),
		},
	}
}

// TokenTransferred records a gating token movement.
type TokenTransferred struct {
	From   [20]byte
	To     [20]byte
	Amount *big.Int
}

// EventType implements the Event interface.
func (TokenTransferred) EventType() string { return TypeTokenTransferred }

// Event converts the transfer to the generic event payload.
func (e TokenTransferred) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenTransferred,
		Attributes: map[string]string{
			"from":   hexAddr(e.From),
			"to":     hexAddr(e.To),
			"amount": amountString(e.Amount),
		},
	}
}
