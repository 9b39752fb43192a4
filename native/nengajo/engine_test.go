package nengajo

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"nengajo/core/events"
)

const (
	testOpenAt  = int64(1672498800)
	testCloseAt = int64(1704034800)
)

type mockState struct {
	designs  map[uint64]*Design
	count    uint64
	claims   map[string]bool
	admins   map[[20]byte]bool
	order    [][20]byte
	mintable bool
}

func newMockState() *mockState {
	return &mockState{
		designs: make(map[uint64]*Design),
		claims:  make(map[string]bool),
		admins:  make(map[[20]byte]bool),
	}
}

func claimKey(addr [20]byte, id uint64) string {
	return fmt.Sprintf("%x/%d", addr, id)
}

func (m *mockState) NengajoDesignCount() (uint64, error)      { return m.count, nil }
func (m *mockState) NengajoSetDesignCount(count uint64) error { m.count = count; return nil }

func (m *mockState) NengajoDesignGet(id uint64) (*Design, bool, error) {
	design, ok := m.designs[id]
	if !ok {
		return nil, false, nil
	}
	return design.Clone(), true, nil
}

func (m *mockState) NengajoDesignPut(design *Design) error {
	m.designs[design.ID] = design.Clone()
	return nil
}

func (m *mockState) NengajoClaimed(addr [20]byte, id uint64) (bool, error) {
	return m.claims[claimKey(addr, id)], nil
}

func (m *mockState) NengajoSetClaimed(addr [20]byte, id uint64) error {
	m.claims[claimKey(addr, id)] = true
	return nil
}

func (m *mockState) NengajoIsAdmin(addr [20]byte) (bool, error) { return m.admins[addr], nil }

func (m *mockState) NengajoAddAdmin(addr [20]byte) error {
	if !m.admins[addr] {
		m.order = append(m.order, addr)
	}
	m.admins[addr] = true
	return nil
}

func (m *mockState) NengajoAdmins() ([][20]byte, error) {
	return append([][20]byte(nil), m.order...), nil
}

func (m *mockState) NengajoMintable() (bool, error)   { return m.mintable, nil }
func (m *mockState) NengajoSetMintable(v bool) error { m.mintable = v; return nil }

type mockToken struct {
	balances   map[[20]byte]*big.Int
	allowances map[[20]byte]*big.Int
}

func newMockToken() *mockToken {
	return &mockToken{balances: make(map[[20]byte]*big.Int), allowances: make(map[[20]byte]*big.Int)}
}

func (t *mockToken) BalanceOf(addr [20]byte) (*big.Int, error) {
	if bal, ok := t.balances[addr]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (t *mockToken) TransferFrom(owner [20]byte, amount *big.Int, dest [20]byte) error {
	allowance := t.allowances[owner]
	if allowance == nil || allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: allowance", ErrTransferRejected)
	}
	bal, _ := t.BalanceOf(owner)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: balance", ErrTransferRejected)
	}
	t.balances[owner] = bal.Sub(bal, amount)
	destBal, _ := t.BalanceOf(dest)
	t.balances[dest] = destBal.Add(destBal, amount)
	t.allowances[owner] = new(big.Int).Sub(allowance, amount)
	return nil
}

type mockCollectibles struct {
	owned map[string]uint64
}

func (c *mockCollectibles) Grant(to [20]byte, id uint64) error {
	if c.owned == nil {
		c.owned = make(map[string]uint64)
	}
	c.owned[claimKey(to, id)]++
	return nil
}

type fixture struct {
	engine       *Engine
	state        *mockState
	token        *mockToken
	collectibles *mockCollectibles
	events       *events.Buffer
}

var (
	deployer = addr(0xD0)
	user1    = addr(0x01)
	user2    = addr(0x02)
	treasury = addr(0xEE)
)

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	engine, err := NewEngine(Params{
		Name:             "Henkaku Nengajo",
		Symbol:           "HNJ",
		Window:           Window{OpenAt: testOpenAt, CloseAt: testCloseAt},
		Fees:             DefaultFeeSchedule(),
		MinMinterBalance: big.NewInt(10),
		FeeRecipient:     treasury,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	f := &fixture{
		engine:       engine,
		state:        newMockState(),
		token:        newMockToken(),
		collectibles: &mockCollectibles{},
		events:       &events.Buffer{},
	}
	engine.SetState(f.state)
	engine.SetGatingToken(f.token)
	engine.SetCollectibles(f.collectibles)
	engine.SetEmitter(f.events)
	if err := engine.Bootstrap(deployer); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	for _, user := range [][20]byte{user1, user2} {
		f.token.balances[user] = big.NewInt(100)
		f.token.allowances[user] = big.NewInt(200)
	}
	return f
}

func (f *fixture) register(t *testing.T, creator [20]byte, maxSupply uint64) *Design {
	t.Helper()
	design, err := f.engine.RegisterCreative(creator, maxSupply, "ipfs://test1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return design
}

func TestNewEngineRejectsInvertedWindow(t *testing.T) {
	_, err := NewEngine(Params{Window: Window{OpenAt: 10, CloseAt: 9}})
	if !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
}

func TestRegisterCreativeChargesFee(t *testing.T) {
	f := newFixture(t)
	design := f.register(t, user1, 2)
	if design.ID != 0 || design.MaxSupply != 2 || design.Minted != 0 || design.Creator != user1 {
		t.Fatalf("unexpected design: %+v", design)
	}
	if got := f.token.balances[user1]; got.Cmp(big.NewInt(80)) != 0 {
		t.Fatalf("creator balance = %s, want 80", got)
	}
	if got := f.token.balances[treasury]; got.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("treasury balance = %s, want 20", got)
	}
	uri, err := f.engine.URI(0)
	if err != nil || uri != "ipfs://test1" {
		t.Fatalf("uri = %q, %v", uri, err)
	}
	second := f.register(t, user2, 1)
	if second.ID != 1 {
		t.Fatalf("expected sequential id 1, got %d", second.ID)
	}
	drained := f.events.Drain()
	if len(drained) != 2 || drained[0].EventType() != events.TypeDesignRegistered {
		t.Fatalf("unexpected events: %+v", drained)
	}
}

func TestRegisterCreativeRejectsUnaffordableSupply(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.RegisterCreative(user1, 1000, "ipfs://test1")
	if !errors.Is(err, ErrInsufficientGatingBalance) {
		t.Fatalf("expected ErrInsufficientGatingBalance, got %v", err)
	}
	if f.state.count != 0 {
		t.Fatalf("design count advanced on failure: %d", f.state.count)
	}
	if got := f.token.balances[user1]; got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("balance changed on failure: %s", got)
	}
	// A failed attempt does not consume an id.
	if design := f.register(t, user1, 2); design.ID != 0 {
		t.Fatalf("expected id 0 after failed attempt, got %d", design.ID)
	}
}

func TestRegisterCreativeValidation(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.RegisterCreative(user1, 0, "ipfs://x"); !errors.Is(err, ErrInvalidMaxSupply) {
		t.Fatalf("expected ErrInvalidMaxSupply, got %v", err)
	}
	for _, blank := range []string{"", "   ", "\t\n"} {
		if _, err := f.engine.RegisterCreative(user1, 1, blank); !errors.Is(err, ErrInvalidContentRef) {
			t.Fatalf("expected ErrInvalidContentRef for %q, got %v", blank, err)
		}
	}
	if f.state.count != 0 || f.token.balances[user1].Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("rejected registration changed state")
	}
	long := make([]byte, maxContentRefLength+1)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := f.engine.RegisterCreative(user1, 1, string(long)); !errors.Is(err, ErrInvalidContentRef) {
		t.Fatalf("expected ErrInvalidContentRef, got %v", err)
	}
}

func TestRegisterCreativeWithoutAllowance(t *testing.T) {
	f := newFixture(t)
	delete(f.token.allowances, user1)
	_, err := f.engine.RegisterCreative(user1, 2, "ipfs://test1")
	if !errors.Is(err, ErrInsufficientGatingBalance) || !errors.Is(err, ErrTransferRejected) {
		t.Fatalf("expected wrapped transfer rejection, got %v", err)
	}
	if f.state.count != 0 {
		t.Fatalf("design registered without payment")
	}
}

func TestRegisterAllowedWhileNotMintable(t *testing.T) {
	f := newFixture(t)
	if ok, _ := f.engine.IsMintable(testOpenAt - 1); ok {
		t.Fatalf("expected minting closed")
	}
	f.register(t, user1, 1)
}

func TestMintSucceeds(t *testing.T) {
	f := newFixture(t)
	f.register(t, user1, 2)
	f.events.Reset()

	design, err := f.engine.Mint(0, user2, testOpenAt)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if design.Minted != 1 || design.Remaining() != 1 {
		t.Fatalf("unexpected counters: %+v", design)
	}
	if claimed, _ := f.engine.Claimed(user2, 0); !claimed {
		t.Fatalf("claim not recorded")
	}
	if f.collectibles.owned[claimKey(user2, 0)] != 1 {
		t.Fatalf("collectible not granted")
	}
	drained := f.events.Drain()
	if len(drained) != 1 {
		t.Fatalf("expected one event, got %d", len(drained))
	}
	minted, ok := drained[0].(events.CopyMinted)
	if !ok || minted.Claimant != user2 || minted.Minted != 1 {
		t.Fatalf("unexpected event: %#v", drained[0])
	}
	if got := f.token.balances[user2]; got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("mint should not charge the claimant, balance %s", got)
	}
}

func TestMintCheckOrder(t *testing.T) {
	f := newFixture(t)
	f.register(t, user1, 1)
	poor := addr(0x09)
	closed := testOpenAt - 1

	// Unknown design wins over every other failure.
	if _, err := f.engine.Mint(5, poor, closed); !errors.Is(err, ErrNotAvailable) {
		t.Fatalf("expected ErrNotAvailable, got %v", err)
	}
	if _, err := f.engine.Mint(0, user1, testOpenAt); err != nil {
		t.Fatalf("first mint: %v", err)
	}
	// Already claimed wins over exhausted supply.
	if _, err := f.engine.Mint(0, user1, closed); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}
	// Exhausted supply wins over balance and window.
	if _, err := f.engine.Mint(0, poor, closed); !errors.Is(err, ErrMintLimitReached) {
		t.Fatalf("expected ErrMintLimitReached, got %v", err)
	}

	f.register(t, user1, 5)
	// Balance wins over the window.
	if _, err := f.engine.Mint(1, poor, closed); !errors.Is(err, ErrInsufficientMinterBalance) {
		t.Fatalf("expected ErrInsufficientMinterBalance, got %v", err)
	}
	if _, err := f.engine.Mint(1, user2, closed); !errors.Is(err, ErrNotMintable) {
		t.Fatalf("expected ErrNotMintable, got %v", err)
	}
	design, _ := f.engine.GetDesign(1)
	if design.Minted != 0 {
		t.Fatalf("rejected mints changed counter: %d", design.Minted)
	}
}

func TestMintWindowBoundsAreInclusive(t *testing.T) {
	f := newFixture(t)
	f.register(t, user1, 3)
	if _, err := f.engine.Mint(0, user1, testOpenAt); err != nil {
		t.Fatalf("mint at open: %v", err)
	}
	if _, err := f.engine.Mint(0, user2, testCloseAt); err != nil {
		t.Fatalf("mint at close: %v", err)
	}
	late := addr(0x03)
	f.token.balances[late] = big.NewInt(10)
	if _, err := f.engine.Mint(0, late, testCloseAt+1); !errors.Is(err, ErrNotMintable) {
		t.Fatalf("expected ErrNotMintable after close, got %v", err)
	}
}

func TestSwitchMintableOverridesWindow(t *testing.T) {
	f := newFixture(t)
	f.register(t, user1, 2)
	if _, err := f.engine.SwitchMintable(user1); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	on, err := f.engine.SwitchMintable(deployer)
	if err != nil || !on {
		t.Fatalf("switch on = %v, %v", on, err)
	}
	if _, err := f.engine.Mint(0, user2, testCloseAt+1000); err != nil {
		t.Fatalf("mint with override: %v", err)
	}
	off, err := f.engine.SwitchMintable(deployer)
	if err != nil || off {
		t.Fatalf("switch off = %v, %v", off, err)
	}
	if _, err := f.engine.Mint(0, user1, testCloseAt+1000); !errors.Is(err, ErrNotMintable) {
		t.Fatalf("expected ErrNotMintable, got %v", err)
	}
}

func TestAddAdmins(t *testing.T) {
	f := newFixture(t)
	if mintable, _ := f.engine.Mintable(); mintable {
		t.Fatalf("mintable should start false")
	}
	if err := f.engine.AddAdmins(user1, [][20]byte{user2}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.engine.AddAdmins(deployer, [][20]byte{user1, user1, deployer}); err != nil {
		t.Fatalf("add admins: %v", err)
	}
	if ok, _ := f.engine.IsAdmin(user1); !ok {
		t.Fatalf("user1 should be admin")
	}
	if ok, _ := f.engine.IsAdmin(user2); ok {
		t.Fatalf("user2 should not be admin")
	}
	admins, _ := f.engine.Admins()
	if len(admins) != 2 {
		t.Fatalf("expected 2 admins, got %d", len(admins))
	}
	if err := f.engine.AddAdmins(user1, [][20]byte{user2}); err != nil {
		t.Fatalf("new admin should be able to add admins: %v", err)
	}
	if err := f.engine.AddAdmins(deployer, nil); err != nil {
		t.Fatalf("empty add: %v", err)
	}
}

func TestListDesigns(t *testing.T) {
	f := newFixture(t)
	f.register(t, user1, 1)
	f.register(t, user2, 2)
	designs, err := f.engine.ListDesigns()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(designs) != 2 || designs[0].Creator != user1 || designs[1].MaxSupply != 2 {
		t.Fatalf("unexpected list: %+v", designs)
	}
	if _, err := f.engine.GetDesign(7); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNilStateGuards(t *testing.T) {
	engine, err := NewEngine(Params{Window: Window{OpenAt: 1, CloseAt: 2}})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if _, err := engine.Mint(0, user1, 1); !errors.Is(err, ErrNilState) {
		t.Fatalf("expected ErrNilState, got %v", err)
	}
	engine.SetState(newMockState())
	if _, err := engine.RegisterCreative(user1, 1, ""); !errors.Is(err, ErrNilGatingToken) {
		t.Fatalf("expected ErrNilGatingToken, got %v", err)
	}
}

func TestReasonLabels(t *testing.T) {
	wrapped := fmt.Errorf("%w: design 3", ErrNotAvailable)
	if Reason(wrapped) != "not_available" || !IsRejection(wrapped) {
		t.Fatalf("unexpected classification for %v", wrapped)
	}
	if Reason(errors.New("disk full")) != "internal" {
		t.Fatalf("expected internal")
	}
	if !IsRetryable(ErrNotMintable) || !IsRetryable(fmt.Errorf("%w: have 0", ErrInsufficientMinterBalance)) {
		t.Fatalf("expected transient rejections to be retryable")
	}
	for _, err := range []error{ErrAlreadyClaimed, ErrMintLimitReached, ErrUnauthorized, nil} {
		if IsRetryable(err) {
			t.Fatalf("expected %v to be permanent", err)
		}
	}
}
