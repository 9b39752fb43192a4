package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	coreerrors "nengajo/core/errors"
	"nengajo/core/events"
	nstate "nengajo/core/state"
	"nengajo/core/types"
	"nengajo/native/nengajo"
	"nengajo/observability"
	"nengajo/storage"
)

var (
	genesisKey = []byte("node/genesis")
	heightKey  = []byte("node/height")
)

var tracer = otel.Tracer("nengajo/core")

// DropAddress is the spender holders approve so the drop can pull
// registration fees. No key controls it.
var DropAddress = func() [20]byte {
	var out [20]byte
	copy(out[:], ethcrypto.Keccak256([]byte("nengajo/drop"))[12:])
	return out
}()

// TokenSpec describes the gating token registered at genesis.
type TokenSpec struct {
	Symbol   string
	Name     string
	Decimals uint8
}

// Allocation seeds a gating token balance at genesis.
type Allocation struct {
	Address [20]byte
	Amount  *big.Int
}

// Genesis holds the immutable parameters of a drop.
type Genesis struct {
	ChainID     uint64
	Drop        nengajo.Params
	Token       TokenSpec
	Admin       [20]byte
	Allocations []Allocation
}

type genesisRecord struct {
	ChainID          uint64
	Name             string
	Symbol           string
	OpenAt           uint64
	CloseAt          uint64
	FeeBase          *big.Int
	FeePerCopy       *big.Int
	MinMinterBalance *big.Int
	FeeRecipient     [20]byte
	TokenSymbol      string
	Admin            [20]byte
}

func (g *Genesis) record() genesisRecord {
	base := g.Drop.Fees.Base
	if base == nil {
		base = big.NewInt(0)
	}
	return genesisRecord{
		ChainID:          g.ChainID,
		Name:             g.Drop.Name,
		Symbol:           g.Drop.Symbol,
		OpenAt:           uint64(g.Drop.Window.OpenAt),
		CloseAt:          uint64(g.Drop.Window.CloseAt),
		FeeBase:          base,
		FeePerCopy:       g.Drop.Fees.PerCopy,
		MinMinterBalance: g.Drop.MinMinterBalance,
		FeeRecipient:     g.Drop.FeeRecipient,
		TokenSymbol:      strings.ToUpper(strings.TrimSpace(g.Token.Symbol)),
		Admin:            g.Admin,
	}
}

// Node applies transactions to the drop one at a time. Each call stages its
// writes in a journal that is committed as a single batch or dropped.
type Node struct {
	db      storage.Database
	genesis Genesis
	engine  *nengajo.Engine
	stateMu sync.Mutex
	emitter events.Emitter
	nowFn   func() int64
	logger  *slog.Logger
}

// NewNode opens the drop stored in db, initialising it from genesis on first
// start. A restart with different parameters fails with ErrGenesisMismatch.
func NewNode(db storage.Database, genesis Genesis) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("database must not be nil")
	}
	if strings.TrimSpace(genesis.Token.Symbol) == "" || genesis.Admin == ([20]byte{}) {
		return nil, fmt.Errorf("%w: token symbol and admin are required", coreerrors.ErrGenesisIncomplete)
	}
	if genesis.Drop.Fees.PerCopy == nil && genesis.Drop.Fees.Base == nil {
		genesis.Drop.Fees = nengajo.DefaultFeeSchedule()
	}
	if genesis.Drop.MinMinterBalance == nil {
		genesis.Drop.MinMinterBalance = big.NewInt(0)
	}
	engine, err := nengajo.NewEngine(genesis.Drop)
	if err != nil {
		return nil, err
	}
	n := &Node{
		db:      db,
		genesis: genesis,
		engine:  engine,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		logger:  slog.Default(),
	}
	if err := n.initGenesis(); err != nil {
		return nil, err
	}
	return n, nil
}

// SetEmitter configures the subscriber that receives committed events.
func (n *Node) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		n.emitter = events.NoopEmitter{}
		return
	}
	n.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (n *Node) SetNowFunc(now func() int64) {
	if now == nil {
		n.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	n.nowFn = now
}

// SetLogger overrides the structured logger.
func (n *Node) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	n.logger = logger
}

func (n *Node) now() int64 {
	if n.nowFn == nil {
		return time.Now().Unix()
	}
	return n.nowFn()
}

func (n *Node) initGenesis() error {
	expected, err := rlp.EncodeToBytes(n.genesis.record())
	if err != nil {
		return err
	}
	stored, err := n.db.Get(genesisKey)
	switch {
	case err == nil:
		if !bytes.Equal(stored, expected) {
			return coreerrors.ErrGenesisMismatch
		}
		manager := nstate.NewManager(n.db)
		if err := nstate.EnsureStateVersion(manager); err != nil {
			return err
		}
		if !manager.TokenExists(n.genesis.Token.Symbol) {
			return fmt.Errorf("%w: gating token %s not registered", coreerrors.ErrGenesisMismatch, n.genesis.Token.Symbol)
		}
		if height, err := n.Height(); err == nil {
			observability.Drop().SetHeight(height)
		}
		return nil
	case !errors.Is(err, storage.ErrNotFound):
		return err
	}

	journal := storage.NewJournal(n.db)
	manager := nstate.NewManager(journal)
	if err := manager.RegisterToken(n.genesis.Token.Symbol, n.genesis.Token.Name, n.genesis.Token.Decimals); err != nil {
		return err
	}
	token := nstate.NewGatingToken(manager, n.genesis.Token.Symbol, DropAddress)
	for _, alloc := range n.genesis.Allocations {
		if err := token.Mint(alloc.Address, alloc.Amount); err != nil {
			return fmt.Errorf("genesis allocation %s: %w", common.Address(alloc.Address).Hex(), err)
		}
	}
	engine := n.bind(manager, token, nil)
	if err := engine.Bootstrap(n.genesis.Admin); err != nil {
		return err
	}
	if err := manager.SetStateVersion(nstate.StateVersion); err != nil {
		return err
	}
	if err := journal.Put(genesisKey, expected); err != nil {
		return err
	}
	if err := journal.Commit(); err != nil {
		return err
	}
	n.logger.Info("drop initialised",
		slog.String("name", n.genesis.Drop.Name),
		slog.String("symbol", n.genesis.Drop.Symbol),
		slog.String("admin", common.Address(n.genesis.Admin).Hex()),
		slog.Int("allocations", len(n.genesis.Allocations)))
	return nil
}

// bind points the shared engine at a per-call state and emitter. Callers hold
// stateMu or use a read-only manager over committed state.
func (n *Node) bind(manager *nstate.Manager, token *nstate.GatingToken, emitter events.Emitter) *nengajo.Engine {
	engine := *n.engine
	engine.SetState(manager)
	engine.SetGatingToken(token)
	engine.SetCollectibles(nstate.NewCollectibles(manager))
	engine.SetEmitter(emitter)
	if emitter != nil {
		token.SetEmitter(emitter)
	}
	return &engine
}

// reader returns an engine over committed state. It takes no lock.
func (n *Node) reader() (*nengajo.Engine, *nstate.Manager, *nstate.GatingToken) {
	manager := nstate.NewManager(n.db)
	token := nstate.NewGatingToken(manager, n.genesis.Token.Symbol, DropAddress)
	return n.bind(manager, token, nil), manager, token
}

type execution struct {
	engine  *nengajo.Engine
	token   *nstate.GatingToken
	manager *nstate.Manager
}

// execute runs fn against a fresh journal under the node lock. On success the
// journal, the height bump and any extra writes are committed in one batch and
// the buffered events are published; on failure nothing is written.
func (n *Node) execute(label string, fn func(x *execution) error) (uint64, []events.Event, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	started := time.Now()
	journal := storage.NewJournal(n.db)
	manager := nstate.NewManager(journal)
	buffer := &events.Buffer{}
	token := nstate.NewGatingToken(manager, n.genesis.Token.Symbol, DropAddress)
	x := &execution{engine: n.bind(manager, token, buffer), token: token, manager: manager}

	if err := fn(x); err != nil {
		journal.Discard()
		buffer.Reset()
		observability.Drop().RecordTx(label, nengajo.Reason(err), time.Since(started))
		return 0, nil, err
	}
	height, err := n.heightFrom(journal)
	if err != nil {
		journal.Discard()
		return 0, nil, err
	}
	height++
	encoded, err := rlp.EncodeToBytes(height)
	if err != nil {
		journal.Discard()
		return 0, nil, err
	}
	if err := journal.Put(heightKey, encoded); err != nil {
		journal.Discard()
		return 0, nil, err
	}
	if err := journal.Commit(); err != nil {
		journal.Discard()
		observability.Drop().RecordCommitFailure()
		return 0, nil, fmt.Errorf("commit %s: %w", label, err)
	}
	observability.Drop().RecordTx(label, "ok", time.Since(started))
	observability.Drop().SetHeight(height)

	emitted := buffer.Drain()
	for _, evt := range emitted {
		events.EmitAt(n.emitter, height, evt)
	}
	return height, emitted, nil
}

type getter interface {
	Get(key []byte) ([]byte, error)
}

func (n *Node) heightFrom(store getter) (uint64, error) {
	data, err := store.Get(heightKey)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var height uint64
	if err := rlp.DecodeBytes(data, &height); err != nil {
		return 0, err
	}
	return height, nil
}

// Height returns the number of committed transactions.
func (n *Node) Height() (uint64, error) {
	return n.heightFrom(n.db)
}

// ChainID returns the replay-protection domain of signed transactions.
func (n *Node) ChainID() uint64 { return n.genesis.ChainID }

// SubmitTransaction verifies the signature, chain id and nonce of tx and
// applies it. Rejected transactions leave state, including the nonce,
// untouched.
func (n *Node) SubmitTransaction(ctx context.Context, tx *types.Transaction) (receipt *types.Receipt, err error) {
	_, span := tracer.Start(ctx, "nengajo.SubmitTransaction", trace.WithSpanKind(trace.SpanKindInternal))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, nengajo.Reason(err))
		}
		span.End()
	}()
	if tx == nil {
		return nil, fmt.Errorf("%w: nil transaction", coreerrors.ErrInvalidPayload)
	}
	if !tx.Type.Valid() {
		return nil, types.ErrUnknownTxType
	}
	if tx.ChainID != n.genesis.ChainID {
		return nil, fmt.Errorf("%w: got %d, want %d", coreerrors.ErrChainIDMismatch, tx.ChainID, n.genesis.ChainID)
	}
	sender, err := tx.Sender()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", coreerrors.ErrInvalidSignature, err)
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, err
	}
	logger := n.logger.With(
		slog.String("type", tx.Type.String()),
		slog.String("from", common.Address(sender).Hex()),
		slog.String("hash", common.BytesToHash(hash).Hex()))

	height, emitted, err := n.execute(tx.Type.String(), func(x *execution) error {
		expected, err := x.manager.Nonce(sender[:])
		if err != nil {
			return err
		}
		if tx.Nonce != expected {
			return fmt.Errorf("%w: got %d, want %d", coreerrors.ErrNonceMismatch, tx.Nonce, expected)
		}
		if err := n.apply(x, sender, tx); err != nil {
			return err
		}
		return x.manager.SetNonce(sender[:], expected+1)
	})
	if err != nil {
		logger.Warn("transaction rejected", slog.String("reason", nengajo.Reason(err)), slog.Any("error", err))
		return nil, err
	}
	logger.Info("transaction committed", slog.Uint64("height", height))

	receipt = &types.Receipt{
		TxHash: common.BytesToHash(hash).Hex(),
		Type:   tx.Type.String(),
		Sender: common.Address(sender).Hex(),
		Nonce:  tx.Nonce,
		Height: height,
		Events: make([]*types.Event, 0, len(emitted)),
	}
	for _, evt := range emitted {
		receipt.Events = append(receipt.Events, events.Flatten(evt))
	}
	return receipt, nil
}

func (n *Node) apply(x *execution, sender [20]byte, tx *types.Transaction) error {
	switch tx.Type {
	case types.TxTypeApprove:
		var payload types.ApprovePayload
		if err := tx.DecodePayload(&payload); err != nil {
			return fmt.Errorf("%w: %v", coreerrors.ErrInvalidPayload, err)
		}
		if payload.Amount == nil {
			return fmt.Errorf("%w: approve amount required", coreerrors.ErrInvalidPayload)
		}
		return x.token.Approve(sender, payload.Spender, payload.Amount)
	case types.TxTypeRegisterCreative:
		var payload types.RegisterCreativePayload
		if err := tx.DecodePayload(&payload); err != nil {
			return fmt.Errorf("%w: %v", coreerrors.ErrInvalidPayload, err)
		}
		_, err := x.engine.RegisterCreative(sender, payload.MaxSupply, payload.URI)
		return err
	case types.TxTypeMint:
		var payload types.MintPayload
		if err := tx.DecodePayload(&payload); err != nil {
			return fmt.Errorf("%w: %v", coreerrors.ErrInvalidPayload, err)
		}
		_, err := x.engine.Mint(payload.DesignID, sender, n.now())
		return err
	case types.TxTypeAddAdmins:
		var payload types.AddAdminsPayload
		if err := tx.DecodePayload(&payload); err != nil {
			return fmt.Errorf("%w: %v", coreerrors.ErrInvalidPayload, err)
		}
		return x.engine.AddAdmins(sender, payload.Admins)
	case types.TxTypeSwitchMintable:
		_, err := x.engine.SwitchMintable(sender)
		return err
	default:
		return types.ErrUnknownTxType
	}
}

// Approve sets the allowance spender may pull from owner.
func (n *Node) Approve(owner, spender [20]byte, amount *big.Int) error {
	_, _, err := n.execute(types.TxTypeApprove.String(), func(x *execution) error {
		return x.token.Approve(owner, spender, amount)
	})
	return err
}

// RegisterCreative charges caller the registration fee and appends a design.
func (n *Node) RegisterCreative(caller [20]byte, maxSupply uint64, uri string) (*nengajo.Design, error) {
	var design *nengajo.Design
	_, _, err := n.execute(types.TxTypeRegisterCreative.String(), func(x *execution) error {
		var err error
		design, err = x.engine.RegisterCreative(caller, maxSupply, uri)
		return err
	})
	if err != nil {
		return nil, err
	}
	return design, nil
}

// Mint claims one copy of designID for claimant at the node's current time.
func (n *Node) Mint(designID uint64, claimant [20]byte) (*nengajo.Design, error) {
	var design *nengajo.Design
	_, _, err := n.execute(types.TxTypeMint.String(), func(x *execution) error {
		var err error
		design, err = x.engine.Mint(designID, claimant, n.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return design, nil
}

// AddAdmins grants admin rights on behalf of caller.
func (n *Node) AddAdmins(caller [20]byte, addrs [][20]byte) error {
	_, _, err := n.execute(types.TxTypeAddAdmins.String(), func(x *execution) error {
		return x.engine.AddAdmins(caller, addrs)
	})
	return err
}

// SwitchMintable toggles the override flag on behalf of caller.
func (n *Node) SwitchMintable(caller [20]byte) (bool, error) {
	var on bool
	_, _, err := n.execute(types.TxTypeSwitchMintable.String(), func(x *execution) error {
		var err error
		on, err = x.engine.SwitchMintable(caller)
		return err
	})
	return on, err
}

// Info summarises the drop's fixed parameters and live counters.
type Info struct {
	ChainID          uint64   `json:"chainId"`
	Name             string   `json:"name"`
	Symbol           string   `json:"symbol"`
	OpenAt           int64    `json:"openAt"`
	CloseAt          int64    `json:"closeAt"`
	Mintable         bool     `json:"mintable"`
	MintableNow      bool     `json:"mintableNow"`
	GatingToken      string   `json:"gatingToken"`
	GatingTokenName  string   `json:"gatingTokenName"`
	Decimals         uint8    `json:"decimals"`
	Spender          string   `json:"spender"`
	FeeRecipient     string   `json:"feeRecipient"`
	FeeBase          string   `json:"feeBase"`
	FeePerCopy       string   `json:"feePerCopy"`
	MinMinterBalance string   `json:"minMinterBalance"`
	Designs          uint64   `json:"designs"`
	Height           uint64   `json:"height"`
	Admins           []string `json:"admins"`
}

// Info reads the drop summary from committed state.
func (n *Node) Info() (*Info, error) {
	engine, manager, _ := n.reader()
	params := engine.Params()
	mintable, err := engine.Mintable()
	if err != nil {
		return nil, err
	}
	now, err := engine.IsMintable(n.now())
	if err != nil {
		return nil, err
	}
	count, err := manager.NengajoDesignCount()
	if err != nil {
		return nil, err
	}
	height, err := n.Height()
	if err != nil {
		return nil, err
	}
	admins, err := engine.Admins()
	if err != nil {
		return nil, err
	}
	meta, err := manager.Token(n.genesis.Token.Symbol)
	if err != nil {
		return nil, err
	}
	info := &Info{
		ChainID:          n.genesis.ChainID,
		Name:             params.Name,
		Symbol:           params.Symbol,
		OpenAt:           params.Window.OpenAt,
		CloseAt:          params.Window.CloseAt,
		Mintable:         mintable,
		MintableNow:      now,
		GatingToken:      strings.ToUpper(strings.TrimSpace(n.genesis.Token.Symbol)),
		Spender:          common.Address(DropAddress).Hex(),
		FeeRecipient:     common.Address(params.FeeRecipient).Hex(),
		FeeBase:          amountString(params.Fees.Base),
		FeePerCopy:       amountString(params.Fees.PerCopy),
		MinMinterBalance: amountString(params.MinMinterBalance),
		Designs:          count,
		Height:           height,
		Admins:           make([]string, 0, len(admins)),
	}
	if meta != nil {
		info.GatingTokenName = meta.Name
		info.Decimals = meta.Decimals
	}
	for _, addr := range admins {
		info.Admins = append(info.Admins, common.Address(addr).Hex())
	}
	return info, nil
}

// Design returns design id from committed state.
func (n *Node) Design(id uint64) (*nengajo.Design, error) {
	engine, _, _ := n.reader()
	return engine.GetDesign(id)
}

// Designs lists every design in registration order.
func (n *Node) Designs() ([]*nengajo.Design, error) {
	engine, _, _ := n.reader()
	return engine.ListDesigns()
}

// URI returns the content reference of design id.
func (n *Node) URI(id uint64) (string, error) {
	engine, _, _ := n.reader()
	return engine.URI(id)
}

// RemainingUntilOpen returns the time before the window opens.
func (n *Node) RemainingUntilOpen() time.Duration {
	return n.engine.RemainingUntilOpen(n.now())
}

// RemainingUntilClose returns the time before the window closes.
func (n *Node) RemainingUntilClose() time.Duration {
	return n.engine.RemainingUntilClose(n.now())
}

// IsAdmin reports whether addr holds admin rights.
func (n *Node) IsAdmin(addr [20]byte) (bool, error) {
	engine, _, _ := n.reader()
	return engine.IsAdmin(addr)
}

// Mintable returns the admin override flag.
func (n *Node) Mintable() (bool, error) {
	engine, _, _ := n.reader()
	return engine.Mintable()
}

// Claimed reports whether addr has claimed designID.
func (n *Node) Claimed(addr [20]byte, designID uint64) (bool, error) {
	engine, _, _ := n.reader()
	return engine.Claimed(addr, designID)
}

// CollectibleBalance returns the copies of designID held by owner.
func (n *Node) CollectibleBalance(owner [20]byte, designID uint64) (uint64, error) {
	_, manager, _ := n.reader()
	return nstate.NewCollectibles(manager).BalanceOf(owner, designID)
}

// Holdings lists the designs owner holds.
func (n *Node) Holdings(owner [20]byte) ([]uint64, error) {
	_, manager, _ := n.reader()
	return nstate.NewCollectibles(manager).Holdings(owner)
}

// GatingBalance returns owner's gating token balance.
func (n *Node) GatingBalance(owner [20]byte) (*big.Int, error) {
	_, _, token := n.reader()
	return token.BalanceOf(owner)
}

// Allowance returns how much spender may pull from owner.
func (n *Node) Allowance(owner, spender [20]byte) (*big.Int, error) {
	_, _, token := n.reader()
	return token.Allowance(owner, spender)
}

// Nonce returns the next expected nonce for addr.
func (n *Node) Nonce(addr [20]byte) (uint64, error) {
	_, manager, _ := n.reader()
	return manager.Nonce(addr[:])
}

// RequiredFee returns the registration fee for maxSupply copies.
func (n *Node) RequiredFee(maxSupply uint64) (*big.Int, error) {
	return n.engine.RequiredFee(maxSupply)
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
