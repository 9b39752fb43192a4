package state

import (
	"math/big"
	"testing"

	"nengajo/native/nengajo"
	"nengajo/storage"
)

func TestNengajoStateDrivesEngine(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	journal := storage.NewJournal(db)
	mgr := NewManager(journal)
	if err := mgr.RegisterToken("HNK", "HenkakuV2", 18); err != nil {
		t.Fatalf("register token: %v", err)
	}

	var admin, creator, module [20]byte
	admin[19], creator[19], module[19] = 0xA0, 0x01, 0xFE
	token := NewGatingToken(mgr, "HNK", module)
	collectibles := NewCollectibles(mgr)

	engine, err := nengajo.NewEngine(nengajo.Params{
		Name:             "Henkaku Nengajo",
		Symbol:           "HNJ",
		Window:           nengajo.Window{OpenAt: 1672498800, CloseAt: 1704034800},
		MinMinterBalance: big.NewInt(10),
		FeeRecipient:     admin,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	engine.SetState(mgr)
	engine.SetGatingToken(token)
	engine.SetCollectibles(collectibles)
	if err := engine.Bootstrap(admin); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := token.Mint(creator, big.NewInt(100)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := token.Approve(creator, module, big.NewInt(200)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := engine.RegisterCreative(creator, 2, "ipfs://test1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := engine.Mint(0, creator, 1672498800); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := journal.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	committed := NewManager(db)
	design, ok, err := committed.NengajoDesignGet(0)
	if err != nil || !ok {
		t.Fatalf("design lookup: %v %v", ok, err)
	}
	if design.Minted != 1 || design.URI != "ipfs://test1" || design.Creator != creator {
		t.Fatalf("unexpected design %+v", design)
	}
	if count, _ := committed.NengajoDesignCount(); count != 1 {
		t.Fatalf("design count = %d", count)
	}
	if claimed, _ := committed.NengajoClaimed(creator, 0); !claimed {
		t.Fatalf("claim not persisted")
	}
	owned := NewCollectibles(committed)
	if n, _ := owned.BalanceOf(creator, 0); n != 1 {
		t.Fatalf("collectible balance = %d", n)
	}
	holdings, err := owned.Holdings(creator)
	if err != nil || len(holdings) != 1 || holdings[0] != 0 {
		t.Fatalf("holdings = %v, %v", holdings, err)
	}
	if bal, _ := committed.Balance(admin[:], "HNK"); bal.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("fee recipient balance = %s", bal)
	}
	if ok, _ := committed.NengajoIsAdmin(admin); !ok {
		t.Fatalf("admin not persisted")
	}
	if mintable, _ := committed.NengajoMintable(); mintable {
		t.Fatalf("mintable should default to false")
	}
}
