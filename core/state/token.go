package state

import (
	"fmt"
	"math/big"

	"nengajo/core/events"
	"nengajo/native/nengajo"
)

// GatingToken exposes one registered token through the allowance model the
// drop relies on. Pulls made through TransferFrom are charged against the
// allowance owners granted to spender.
type GatingToken struct {
	manager *Manager
	symbol  string
	spender [20]byte
	emitter events.Emitter
}

// NewGatingToken binds symbol to spender.
func NewGatingToken(m *Manager, symbol string, spender [20]byte) *GatingToken {
	return &GatingToken{manager: m, symbol: normalizeSymbol(symbol), spender: spender, emitter: events.NoopEmitter{}}
}

// SetEmitter configures where transfer and approval events go.
func (t *GatingToken) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		t.emitter = events.NoopEmitter{}
		return
	}
	t.emitter = emitter
}

// Symbol returns the bound token symbol.
func (t *GatingToken) Symbol() string { return t.symbol }

// Spender returns the address pulls are charged to.
func (t *GatingToken) Spender() [20]byte { return t.spender }

// BalanceOf returns addr's token balance.
func (t *GatingToken) BalanceOf(addr [20]byte) (*big.Int, error) {
	return t.manager.Balance(addr[:], t.symbol)
}

// Allowance returns how much spender may pull from owner.
func (t *GatingToken) Allowance(owner, spender [20]byte) (*big.Int, error) {
	return t.manager.Allowance(t.symbol, owner[:], spender[:])
}

// Approve replaces owner's allowance for spender.
func (t *GatingToken) Approve(owner, spender [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("approve: amount must be non-negative")
	}
	if err := t.manager.SetAllowance(t.symbol, owner[:], spender[:], amount); err != nil {
		return err
	}
	t.emitter.Emit(events.AllowanceApproved{Owner: owner, Spender: spender, Amount: new(big.Int).Set(amount)})
	return nil
}

// Mint credits amount to addr. It is used when seeding balances at genesis.
func (t *GatingToken) Mint(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("mint: amount must be non-negative")
	}
	bal, err := t.BalanceOf(addr)
	if err != nil {
		return err
	}
	return t.manager.SetBalance(addr[:], t.symbol, bal.Add(bal, amount))
}

// Transfer moves amount from one holder to another.
func (t *GatingToken) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("transfer: amount must be non-negative")
	}
	fromBal, err := t.BalanceOf(from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: balance %s below %s", nengajo.ErrTransferRejected, fromBal, amount)
	}
	if from == to {
		return nil
	}
	toBal, err := t.BalanceOf(to)
	if err != nil {
		return err
	}
	if err := t.manager.SetBalance(from[:], t.symbol, fromBal.Sub(fromBal, amount)); err != nil {
		return err
	}
	if err := t.manager.SetBalance(to[:], t.symbol, toBal.Add(toBal, amount)); err != nil {
		return err
	}
	t.emitter.Emit(events.TokenTransferred{From: from, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// TransferFrom pulls amount from owner to dest against the allowance owner
// granted to the bound spender.
func (t *GatingToken) TransferFrom(owner [20]byte, amount *big.Int, dest [20]byte) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("transferFrom: amount must be non-negative")
	}
	allowance, err := t.Allowance(owner, t.spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: allowance %s below %s", nengajo.ErrTransferRejected, allowance, amount)
	}
	if err := t.Transfer(owner, dest, amount); err != nil {
		return err
	}
	return t.manager.SetAllowance(t.symbol, owner[:], t.spender[:], allowance.Sub(allowance, amount))
}
