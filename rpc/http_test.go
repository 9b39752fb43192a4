package rpc

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"nengajo/core"
	"nengajo/core/events"
	"nengajo/core/types"
	"nengajo/indexer"
	"nengajo/native/nengajo"
	"nengajo/storage"
)

const (
	testChainID = uint64(31337)
	testOpenAt  = int64(1672498800)
	testCloseAt = int64(1704034800)
)

type testAccount struct {
	key  *ecdsa.PrivateKey
	addr [20]byte
}

func newTestAccount(t *testing.T) testAccount {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	return testAccount{key: key, addr: ethcrypto.PubkeyToAddress(key.PublicKey)}
}

type fixture struct {
	server    *Server
	handler   http.Handler
	node      *core.Node
	admin     testAccount
	creator   testAccount
	collector testAccount
}

func newFixture(t *testing.T, cfg ServerConfig) *fixture {
	t.Helper()
	admin, creator, collector := newTestAccount(t), newTestAccount(t), newTestAccount(t)
	genesis := core.Genesis{
		ChainID: testChainID,
		Drop: nengajo.Params{
			Name:             "Henkaku Nengajo",
			Symbol:           "HNJ",
			Window:           nengajo.Window{OpenAt: testOpenAt, CloseAt: testCloseAt},
			Fees:             nengajo.DefaultFeeSchedule(),
			MinMinterBalance: big.NewInt(10),
			FeeRecipient:     admin.addr,
		},
		Token: core.TokenSpec{Symbol: "HNK", Name: "HenkakuV2", Decimals: 18},
		Admin: admin.addr,
		Allocations: []core.Allocation{
			{Address: creator.addr, Amount: big.NewInt(100)},
			{Address: collector.addr, Amount: big.NewInt(100)},
		},
	}
	db := storage.NewMemDB()
	t.Cleanup(func() { db.Close() })
	node, err := core.NewNode(db, genesis)
	require.NoError(t, err)
	node.SetNowFunc(func() int64 { return testOpenAt })

	activity, err := indexer.Open(indexer.DriverSQLite, filepath.Join(t.TempDir(), "activity.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = activity.Close() })
	node.SetEmitter(events.Fanout{activity})

	server := NewServer(node, activity, cfg)
	return &fixture{
		server:    server,
		handler:   server.Handler(),
		node:      node,
		admin:     admin,
		creator:   creator,
		collector: collector,
	}
}

type rawResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	} `json:"error"`
}

func (f *fixture) call(t *testing.T, header http.Header, method string, params ...interface{}) (int, rawResponse) {
	t.Helper()
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"id":      1,
		"method":  method,
		"params":  params,
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.RemoteAddr = "192.0.2.10:5000"
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	var resp rawResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func (f *fixture) send(t *testing.T, header http.Header, from testAccount, typ types.TxType, payload interface{}) (int, rawResponse) {
	t.Helper()
	nonce, err := f.node.Nonce(from.addr)
	require.NoError(t, err)
	tx, err := types.NewTransaction(testChainID, typ, nonce, payload)
	require.NoError(t, err)
	require.NoError(t, tx.Sign(from.key))
	return f.call(t, header, "nengajo_sendTransaction", tx)
}

func errorDataOf(t *testing.T, resp rawResponse) errorData {
	t.Helper()
	require.NotNil(t, resp.Error)
	var data errorData
	require.NoError(t, json.Unmarshal(resp.Error.Data, &data))
	return data
}

func reasonOf(t *testing.T, resp rawResponse) string {
	t.Helper()
	return errorDataOf(t, resp).Reason
}

func TestRegisterAndMintOverRPC(t *testing.T) {
	f := newFixture(t, ServerConfig{})

	status, resp := f.send(t, nil, f.creator, types.TxTypeApprove,
		types.ApprovePayload{Spender: core.DropAddress, Amount: big.NewInt(100)})
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)

	status, resp = f.call(t, nil, "nengajo_requiredFee", 2)
	require.Equal(t, http.StatusOK, status)
	var fee AmountResult
	require.NoError(t, json.Unmarshal(resp.Result, &fee))
	require.Equal(t, "20", fee.Amount)

	status, resp = f.send(t, nil, f.creator, types.TxTypeRegisterCreative,
		types.RegisterCreativePayload{MaxSupply: 2, URI: "ipfs://test1"})
	require.Equal(t, http.StatusOK, status)
	var receipt types.Receipt
	require.NoError(t, json.Unmarshal(resp.Result, &receipt))
	require.Equal(t, "registerCreative", receipt.Type)

	status, resp = f.send(t, nil, f.collector, types.TxTypeMint, types.MintPayload{DesignID: 0})
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)

	status, resp = f.send(t, nil, f.collector, types.TxTypeMint, types.MintPayload{DesignID: 0})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, codeRejected, resp.Error.Code)
	require.Equal(t, "already_claimed", reasonOf(t, resp))

	_, resp = f.call(t, nil, "nengajo_getDesign", "0")
	var design DesignResult
	require.NoError(t, json.Unmarshal(resp.Result, &design))
	require.Equal(t, uint64(1), design.Minted)
	require.Equal(t, uint64(1), design.Remaining)
	require.Equal(t, common.Address(f.creator.addr).Hex(), design.Creator)

	_, resp = f.call(t, nil, "nengajo_uri", 0)
	var uri string
	require.NoError(t, json.Unmarshal(resp.Result, &uri))
	require.Equal(t, "ipfs://test1", uri)

	_, resp = f.call(t, nil, "nengajo_balanceOf", common.Address(f.collector.addr).Hex(), 0)
	var balance BalanceResult
	require.NoError(t, json.Unmarshal(resp.Result, &balance))
	require.Equal(t, uint64(1), balance.Balance)
	require.True(t, balance.Claimed)

	_, resp = f.call(t, nil, "nengajo_gatingBalance", common.Address(f.creator.addr).Hex())
	var gating AmountResult
	require.NoError(t, json.Unmarshal(resp.Result, &gating))
	require.Equal(t, "80", gating.Amount)

	_, resp = f.call(t, nil, "nengajo_activity", map[string]interface{}{"designId": 0})
	var rows []ActivityResult
	require.NoError(t, json.Unmarshal(resp.Result, &rows))
	require.Len(t, rows, 2)
	require.Equal(t, events.TypeCopyMinted, rows[0].Type)
	require.Equal(t, "1", rows[0].Attributes["minted"])
	// approve, register, mint: the mint committed at height 3.
	require.Equal(t, uint64(3), rows[0].Height)
}

func TestRejectionsCarryRetryHint(t *testing.T) {
	f := newFixture(t, ServerConfig{})
	_, resp := f.send(t, nil, f.creator, types.TxTypeApprove,
		types.ApprovePayload{Spender: core.DropAddress, Amount: big.NewInt(100)})
	require.Nil(t, resp.Error)
	_, resp = f.send(t, nil, f.creator, types.TxTypeRegisterCreative,
		types.RegisterCreativePayload{MaxSupply: 1, URI: "ipfs://test1"})
	require.Nil(t, resp.Error)

	f.node.SetNowFunc(func() int64 { return testOpenAt - 1 })
	status, resp := f.send(t, nil, f.collector, types.TxTypeMint, types.MintPayload{DesignID: 0})
	require.Equal(t, http.StatusConflict, status)
	data := errorDataOf(t, resp)
	require.Equal(t, "not_mintable", data.Reason)
	require.True(t, data.Retryable)

	f.node.SetNowFunc(func() int64 { return testOpenAt })
	_, resp = f.send(t, nil, f.collector, types.TxTypeMint, types.MintPayload{DesignID: 0})
	require.Nil(t, resp.Error)
	_, resp = f.send(t, nil, f.creator, types.TxTypeMint, types.MintPayload{DesignID: 0})
	data = errorDataOf(t, resp)
	require.Equal(t, "mint_limit_reached", data.Reason)
	require.False(t, data.Retryable)
}

func TestInfoAndWindowQueries(t *testing.T) {
	f := newFixture(t, ServerConfig{})

	status, resp := f.call(t, nil, "nengajo_info")
	require.Equal(t, http.StatusOK, status)
	var info core.Info
	require.NoError(t, json.Unmarshal(resp.Result, &info))
	require.Equal(t, testChainID, info.ChainID)
	require.True(t, info.MintableNow)
	require.Equal(t, "HNK", info.GatingToken)
	require.Equal(t, "HenkakuV2", info.GatingTokenName)
	require.Equal(t, uint8(18), info.Decimals)
	require.Equal(t, []string{common.Address(f.admin.addr).Hex()}, info.Admins)

	_, resp = f.call(t, nil, "nengajo_remainingOpen")
	var open RemainingResult
	require.NoError(t, json.Unmarshal(resp.Result, &open))
	require.Zero(t, open.Seconds)

	_, resp = f.call(t, nil, "nengajo_remainingClose")
	var closing RemainingResult
	require.NoError(t, json.Unmarshal(resp.Result, &closing))
	require.Equal(t, testCloseAt-testOpenAt, closing.Seconds)

	_, resp = f.call(t, nil, "nengajo_isAdmin", common.Address(f.admin.addr).Hex())
	var isAdmin bool
	require.NoError(t, json.Unmarshal(resp.Result, &isAdmin))
	require.True(t, isAdmin)
}

func TestAdminOnlyTransactionRejected(t *testing.T) {
	f := newFixture(t, ServerConfig{})

	status, resp := f.send(t, nil, f.creator, types.TxTypeSwitchMintable, nil)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, codeUnauthorized, resp.Error.Code)
	require.Equal(t, "unauthorized", reasonOf(t, resp))

	status, _ = f.send(t, nil, f.admin, types.TxTypeSwitchMintable, nil)
	require.Equal(t, http.StatusOK, status)
	_, resp = f.call(t, nil, "nengajo_mintable")
	var on bool
	require.NoError(t, json.Unmarshal(resp.Result, &on))
	require.True(t, on)
}

func TestGetDesignNotFound(t *testing.T) {
	f := newFixture(t, ServerConfig{})
	status, resp := f.call(t, nil, "nengajo_getDesign", 7)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "not_found", reasonOf(t, resp))
}

func TestSendTransactionRequiresBearerToken(t *testing.T) {
	f := newFixture(t, ServerConfig{AuthToken: "secret"})
	payload := types.ApprovePayload{Spender: core.DropAddress, Amount: big.NewInt(1)}

	status, resp := f.send(t, nil, f.creator, types.TxTypeApprove, payload)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	status, _ = f.send(t, http.Header{"Authorization": {"Bearer wrong"}}, f.creator, types.TxTypeApprove, payload)
	require.Equal(t, http.StatusUnauthorized, status)

	status, resp = f.send(t, http.Header{"Authorization": {"Bearer secret"}}, f.creator, types.TxTypeApprove, payload)
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)
}

func TestSendTransactionRateLimited(t *testing.T) {
	f := newFixture(t, ServerConfig{RequestsPerMinute: 1, Burst: 1})

	status, _ := f.call(t, nil, "nengajo_sendTransaction", "garbage")
	require.Equal(t, http.StatusBadRequest, status)
	status, resp := f.call(t, nil, "nengajo_sendTransaction", "garbage")
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, codeRateLimited, resp.Error.Code)
}

func TestWrongNonceMapsToInvalidParams(t *testing.T) {
	f := newFixture(t, ServerConfig{})
	tx, err := types.NewTransaction(testChainID, types.TxTypeMint, 5, types.MintPayload{DesignID: 0})
	require.NoError(t, err)
	require.NoError(t, tx.Sign(f.collector.key))

	status, resp := f.call(t, nil, "nengajo_sendTransaction", tx)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
	require.Equal(t, "nonce_mismatch", reasonOf(t, resp))
}

func TestUnknownMethod(t *testing.T) {
	f := newFixture(t, ServerConfig{})
	status, resp := f.call(t, nil, "eth_blockNumber")
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestClientSourceHonoursTrustedProxiesOnly(t *testing.T) {
	server := NewServer(nil, nil, ServerConfig{TrustedProxies: []string{"10.0.0.1"}})

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	require.Equal(t, "10.0.0.5", server.clientSource(req))

	req.RemoteAddr = "10.0.0.1:1234"
	require.Equal(t, "203.0.113.9", server.clientSource(req))
}

func TestHealthz(t *testing.T) {
	server := NewServer(nil, nil, ServerConfig{})
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}
