package nengajo

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"nengajo/core/events"
)

const maxContentRefLength = 2048

// ErrTransferRejected is wrapped by gating token adapters when a pull fails for
// a reason the payer can fix (balance or allowance). Other adapter errors are
// treated as infrastructure failures.
var ErrTransferRejected = errors.New("nengajo: gating token transfer rejected")

type engineState interface {
	NengajoDesignCount() (uint64, error)
	NengajoSetDesignCount(count uint64) error
	NengajoDesignGet(id uint64) (*Design, bool, error)
	NengajoDesignPut(design *Design) error
	NengajoClaimed(addr [20]byte, designID uint64) (bool, error)
	NengajoSetClaimed(addr [20]byte, designID uint64) error
	NengajoIsAdmin(addr [20]byte) (bool, error)
	NengajoAddAdmin(addr [20]byte) error
	NengajoAdmins() ([][20]byte, error)
	NengajoMintable() (bool, error)
	NengajoSetMintable(mintable bool) error
}

// GatingToken is the external fungible token that prices registrations and
// gates claims. TransferFrom moves amount from owner to dest using the
// allowance owner granted to the drop.
type GatingToken interface {
	BalanceOf(addr [20]byte) (*big.Int, error)
	TransferFrom(owner [20]byte, amount *big.Int, dest [20]byte) error
}

// Collectibles records ownership of minted copies.
type Collectibles interface {
	Grant(to [20]byte, designID uint64) error
}

// Engine wires the drop rules with persistence, the gating token and event
// emission. It is not safe for concurrent mutation; callers serialise writes.
type Engine struct {
	state        engineState
	token        GatingToken
	collectibles Collectibles
	emitter      events.Emitter
	params       Params
}

// NewEngine validates params and constructs an engine with a no-op emitter.
func NewEngine(params Params) (*Engine, error) {
	window, err := NewWindow(params.Window.OpenAt, params.Window.CloseAt)
	if err != nil {
		return nil, err
	}
	params.Window = window
	if params.Fees.PerCopy == nil && params.Fees.Base == nil {
		params.Fees = DefaultFeeSchedule()
	}
	if err := params.Fees.Validate(); err != nil {
		return nil, err
	}
	if params.MinMinterBalance == nil {
		params.MinMinterBalance = big.NewInt(0)
	}
	if params.MinMinterBalance.Sign() < 0 {
		return nil, fmt.Errorf("nengajo: negative minimum minter balance")
	}
	params.Name = strings.TrimSpace(params.Name)
	params.Symbol = strings.TrimSpace(params.Symbol)
	return &Engine{emitter: events.NoopEmitter{}, params: params}, nil
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetGatingToken configures the token used for fees and claim gating.
func (e *Engine) SetGatingToken(token GatingToken) { e.token = token }

// SetCollectibles configures the ownership ledger credited on mint.
func (e *Engine) SetCollectibles(c Collectibles) { e.collectibles = c }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Params returns a copy of the construction parameters.
func (e *Engine) Params() Params {
	p := e.params
	p.Fees = FeeSchedule{Base: cloneAmount(p.Fees.Base), PerCopy: cloneAmount(p.Fees.PerCopy)}
	p.MinMinterBalance = cloneAmount(p.MinMinterBalance)
	return p
}

// Window returns the fixed minting window.
func (e *Engine) Window() Window { return e.params.Window }

func (e *Engine) emit(evt events.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	return nil
}

// RequiredFee returns the registration fee for maxSupply copies.
func (e *Engine) RequiredFee(maxSupply uint64) (*big.Int, error) {
	return e.params.Fees.Fee(maxSupply)
}

// RegisterCreative charges the registration fee and appends a new design. The
// caller must have approved the drop for at least the fee beforehand.
func (e *Engine) RegisterCreative(caller [20]byte, maxSupply uint64, uri string) (*Design, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.token == nil {
		return nil, ErrNilGatingToken
	}
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidContentRef)
	}
	if len(uri) > maxContentRefLength {
		return nil, fmt.Errorf("%w: longer than %d bytes", ErrInvalidContentRef, maxContentRefLength)
	}
	fee, err := e.RequiredFee(maxSupply)
	if err != nil {
		return nil, err
	}
	balance, err := e.token.BalanceOf(caller)
	if err != nil {
		return nil, err
	}
	if balance == nil || balance.Cmp(fee) < 0 {
		return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientGatingBalance, amountOrZero(balance), fee)
	}
	if fee.Sign() > 0 {
		if err := e.token.TransferFrom(caller, fee, e.params.FeeRecipient); err != nil {
			if errors.Is(err, ErrTransferRejected) {
				return nil, fmt.Errorf("%w: %w", ErrInsufficientGatingBalance, err)
			}
			return nil, err
		}
	}

	id, err := e.state.NengajoDesignCount()
	if err != nil {
		return nil, err
	}
	design := &Design{ID: id, Creator: caller, URI: uri, MaxSupply: maxSupply}
	if err := e.state.NengajoDesignPut(design); err != nil {
		return nil, err
	}
	if err := e.state.NengajoSetDesignCount(id + 1); err != nil {
		return nil, err
	}
	e.emit(events.DesignRegistered{ID: id, Creator: caller, URI: uri, MaxSupply: maxSupply, Fee: fee})
	return design.Clone(), nil
}

// Mint claims one copy of designID for claimant at the given time. Checks run
// in a fixed order and the first failure is returned without any state change.
func (e *Engine) Mint(designID uint64, claimant [20]byte, now int64) (*Design, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.token == nil {
		return nil, ErrNilGatingToken
	}
	if e.collectibles == nil {
		return nil, ErrNilCollectibles
	}
	design, ok, err := e.state.NengajoDesignGet(designID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: design %d", ErrNotAvailable, designID)
	}
	claimed, err := e.state.NengajoClaimed(claimant, designID)
	if err != nil {
		return nil, err
	}
	if claimed {
		return nil, ErrAlreadyClaimed
	}
	if design.Minted >= design.MaxSupply {
		return nil, fmt.Errorf("%w: %d of %d minted", ErrMintLimitReached, design.Minted, design.MaxSupply)
	}
	balance, err := e.token.BalanceOf(claimant)
	if err != nil {
		return nil, err
	}
	if balance == nil || balance.Cmp(e.params.MinMinterBalance) < 0 {
		return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientMinterBalance, amountOrZero(balance), e.params.MinMinterBalance)
	}
	open, err := e.IsMintable(now)
	if err != nil {
		return nil, err
	}
	if !open {
		return nil, ErrNotMintable
	}

	design.Minted++
	if err := e.state.NengajoDesignPut(design); err != nil {
		return nil, err
	}
	if err := e.state.NengajoSetClaimed(claimant, designID); err != nil {
		return nil, err
	}
	if err := e.collectibles.Grant(claimant, designID); err != nil {
		return nil, err
	}
	e.emit(events.CopyMinted{DesignID: designID, Claimant: claimant, Minted: design.Minted, MaxSupply: design.MaxSupply})
	return design.Clone(), nil
}

// IsMintable reports whether minting is open at now: either the admin override
// is on or now falls inside the window.
func (e *Engine) IsMintable(now int64) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	override, err := e.state.NengajoMintable()
	if err != nil {
		return false, err
	}
	return override || e.params.Window.Contains(now), nil
}

// GetDesign returns design id.
func (e *Engine) GetDesign(id uint64) (*Design, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	design, ok, err := e.state.NengajoDesignGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return design, nil
}

// ListDesigns returns every registered design in registration order.
func (e *Engine) ListDesigns() ([]*Design, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	count, err := e.state.NengajoDesignCount()
	if err != nil {
		return nil, err
	}
	out := make([]*Design, 0, count)
	for id := uint64(0); id < count; id++ {
		design, ok, err := e.state.NengajoDesignGet(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("nengajo: design %d missing below count %d", id, count)
		}
		out = append(out, design)
	}
	return out, nil
}

// URI returns the content reference of design id.
func (e *Engine) URI(id uint64) (string, error) {
	design, err := e.GetDesign(id)
	if err != nil {
		return "", err
	}
	return design.URI, nil
}

// Claimed reports whether addr already holds a copy of designID.
func (e *Engine) Claimed(addr [20]byte, designID uint64) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	return e.state.NengajoClaimed(addr, designID)
}

// RemainingUntilOpen returns the time left before the window opens.
func (e *Engine) RemainingUntilOpen(now int64) time.Duration {
	return e.params.Window.RemainingUntilOpen(now)
}

// RemainingUntilClose returns the time left before the window closes.
func (e *Engine) RemainingUntilClose(now int64) time.Duration {
	return e.params.Window.RemainingUntilClose(now)
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func amountOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
