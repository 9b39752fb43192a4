package indexer

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"nengajo/core/events"
)

func setupStore(t *testing.T) (*Store, string) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "activity.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	store, err := New(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, dsn
}

func TestRecordAndQuery(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	var creator, claimant [20]byte
	creator[19], claimant[19] = 0x01, 0x02

	store.Emit(events.DesignRegistered{ID: 0, Creator: creator, URI: "ipfs://test1", MaxSupply: 2, Fee: big.NewInt(20)})
	store.Emit(events.CopyMinted{DesignID: 0, Claimant: claimant, Minted: 1, MaxSupply: 2})
	store.Emit(events.MintableSwitched{Caller: creator, Mintable: true})

	byDesign, err := store.ListByDesign(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, byDesign, 2)
	require.Equal(t, events.TypeCopyMinted, byDesign[0].Type)
	require.Equal(t, uint64(2), byDesign[0].Sequence)

	byAddr, err := store.ListByAddress(ctx, common.Address(claimant).Hex(), 10)
	require.NoError(t, err)
	require.Len(t, byAddr, 1)
	require.Contains(t, byAddr[0].Attributes, `"minted":"1"`)

	recent, err := store.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, events.TypeMintableSwitched, recent[0].Type)
	require.Nil(t, recent[0].DesignID)

	_, err = store.ListByAddress(ctx, "not-an-address", 10)
	require.Error(t, err)
}

func TestSequenceResumesAfterReopen(t *testing.T) {
	store, dsn := setupStore(t)
	var caller [20]byte
	require.NoError(t, store.Record(context.Background(), 1, events.AdminsAdded{Caller: caller}))
	require.NoError(t, store.Close())

	reopened, err := Open(DriverSQLite, dsn)
	require.NoError(t, err)
	defer reopened.Close()
	require.NoError(t, reopened.Record(context.Background(), 2, events.AdminsAdded{Caller: caller}))
	rows, err := reopened.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, uint64(2), rows[0].Sequence)
	require.Equal(t, uint64(2), rows[0].Height)
}

func TestListByAddressIncludesCounterparty(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	var sender, recipient, spender [20]byte
	sender[19], recipient[19], spender[19] = 0x0A, 0x0B, 0x0C

	store.EmitAt(4, events.TokenTransferred{From: sender, To: recipient, Amount: big.NewInt(20)})
	events.Fanout{store}.EmitAt(5, events.AllowanceApproved{Owner: sender, Spender: spender, Amount: big.NewInt(7)})

	received, err := store.ListByAddress(ctx, common.Address(recipient).Hex(), 10)
	require.NoError(t, err)
	require.Len(t, received, 1)
	require.Equal(t, events.TypeTokenTransferred, received[0].Type)
	require.Equal(t, uint64(4), received[0].Height)

	approved, err := store.ListByAddress(ctx, common.Address(spender).Hex(), 10)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	require.Equal(t, uint64(5), approved[0].Height)

	sent, err := store.ListByAddress(ctx, common.Address(sender).Hex(), 10)
	require.NoError(t, err)
	require.Len(t, sent, 2)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "whatever")
	require.Error(t, err)
}
