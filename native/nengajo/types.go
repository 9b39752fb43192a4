package nengajo

import "math/big"

// Design is a registered limited-edition collectible template. Minted is the
// only field that changes after registration.
type Design struct {
	ID        uint64
	Creator   [20]byte
	URI       string
	MaxSupply uint64
	Minted    uint64
}

// Clone returns a copy of the design.
func (d *Design) Clone() *Design {
	if d == nil {
		return nil
	}
	clone := *d
	return &clone
}

// Remaining returns the number of copies still claimable.
func (d *Design) Remaining() uint64 {
	if d == nil || d.Minted >= d.MaxSupply {
		return 0
	}
	return d.MaxSupply - d.Minted
}

// Params are fixed when the drop is created.
type Params struct {
	Name             string
	Symbol           string
	Window           Window
	Fees             FeeSchedule
	MinMinterBalance *big.Int
	// FeeRecipient receives registration fees.
	FeeRecipient [20]byte
}
