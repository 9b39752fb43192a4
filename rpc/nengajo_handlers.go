package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"nengajo/core"
	coreerrors "nengajo/core/errors"
	"nengajo/core/types"
	"nengajo/crypto"
	"nengajo/indexer"
	"nengajo/native/nengajo"
)

// errorData is attached to every drop failure so clients can branch on a
// stable label instead of the message text.
type errorData struct {
	Reason    string `json:"reason"`
	Retryable bool   `json:"retryable"`
	Detail    string `json:"detail,omitempty"`
}

var txReasons = []struct {
	err    error
	reason string
}{
	{coreerrors.ErrChainIDMismatch, "chain_id_mismatch"},
	{coreerrors.ErrNonceMismatch, "nonce_mismatch"},
	{coreerrors.ErrInvalidPayload, "invalid_payload"},
	{coreerrors.ErrInvalidSignature, "invalid_signature"},
	{types.ErrUnknownTxType, "unknown_tx_type"},
}

func writeDropError(w http.ResponseWriter, id interface{}, err error) {
	for _, entry := range txReasons {
		if errors.Is(err, entry.err) {
			writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), errorData{Reason: entry.reason})
			return
		}
	}
	reason := nengajo.Reason(err)
	switch {
	case errors.Is(err, nengajo.ErrUnauthorized):
		writeError(w, http.StatusForbidden, id, codeUnauthorized, err.Error(), errorData{Reason: reason})
	case errors.Is(err, nengajo.ErrNotFound):
		writeError(w, http.StatusNotFound, id, codeInvalidParams, err.Error(), errorData{Reason: reason})
	case nengajo.IsRejection(err):
		writeError(w, http.StatusConflict, id, codeRejected, err.Error(), errorData{Reason: reason, Retryable: nengajo.IsRetryable(err)})
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, "internal error", errorData{Reason: reason, Detail: err.Error()})
	}
}

func requireParams(w http.ResponseWriter, req *RPCRequest, n int, usage string) bool {
	if len(req.Params) < n {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, usage, nil)
		return false
	}
	return true
}

func parseAddressParam(raw json.RawMessage) ([20]byte, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return [20]byte{}, fmt.Errorf("address must be a string")
	}
	addr, err := crypto.ParseAddress(s)
	if err != nil {
		return [20]byte{}, err
	}
	return [20]byte(addr), nil
}

// parseUintParam accepts a JSON number or a decimal string.
func parseUintParam(raw json.RawMessage) (uint64, error) {
	var n uint64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("expected unsigned integer")
	}
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("expected unsigned integer: %w", err)
	}
	return v, nil
}

func (s *Server) handleSendTransaction(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !requireParams(w, req, 1, "transaction parameter required") {
		return
	}
	var tx types.Transaction
	if err := json.Unmarshal(req.Params[0], &tx); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid transaction format", err.Error())
		return
	}
	receipt, err := s.node.SubmitTransaction(r.Context(), &tx)
	if err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, receipt)
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	info, err := s.node.Info()
	if err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, info)
}

func (s *Server) handleListDesigns(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	designs, err := s.node.Designs()
	if err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	out := make([]DesignResult, 0, len(designs))
	for _, d := range designs {
		out = append(out, formatDesign(d))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleGetDesign(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if !requireParams(w, req, 1, "design id required") {
		return
	}
	id, err := parseUintParam(req.Params[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid design id", err.Error())
		return
	}
	design, err := s.node.Design(id)
	if err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatDesign(design))
}

func (s *Server) handleURI(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if !requireParams(w, req, 1, "design id required") {
		return
	}
	id, err := parseUintParam(req.Params[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid design id", err.Error())
		return
	}
	uri, err := s.node.URI(id)
	if err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, uri)
}

func (s *Server) handleRemaining(w http.ResponseWriter, _ *http.Request, req *RPCRequest, untilOpen bool) {
	if untilOpen {
		writeResult(w, req.ID, formatRemaining(s.node.RemainingUntilOpen()))
		return
	}
	writeResult(w, req.ID, formatRemaining(s.node.RemainingUntilClose()))
}

func (s *Server) handleIsAdmin(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if !requireParams(w, req, 1, "address required") {
		return
	}
	addr, err := parseAddressParam(req.Params[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	ok, err := s.node.IsAdmin(addr)
	if err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, ok)
}

func (s *Server) handleMintable(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	on, err := s.node.Mintable()
	if err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, on)
}

func (s *Server) handleBalanceOf(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if !requireParams(w, req, 2, "address and design id required") {
		return
	}
	addr, err := parseAddressParam(req.Params[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	id, err := parseUintParam(req.Params[1])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid design id", err.Error())
		return
	}
	balance, err := s.node.CollectibleBalance(addr, id)
	if err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	claimed, err := s.node.Claimed(addr, id)
	if err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, BalanceResult{
		Address:  common.Address(addr).Hex(),
		DesignID: id,
		Balance:  balance,
		Claimed:  claimed,
	})
}

func (s *Server) handleHoldings(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if !requireParams(w, req, 1, "address required") {
		return
	}
	addr, err := parseAddressParam(req.Params[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	held, err := s.node.Holdings(addr)
	if err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	if held == nil {
		held = []uint64{}
	}
	writeResult(w, req.ID, HoldingsResult{Address: common.Address(addr).Hex(), Designs: held})
}

func (s *Server) handleGatingBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if !requireParams(w, req, 1, "address required") {
		return
	}
	addr, err := parseAddressParam(req.Params[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	balance, err := s.node.GatingBalance(addr)
	if err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, AmountResult{Address: common.Address(addr).Hex(), Amount: amountString(balance)})
}

// handleAllowance defaults the spender to the drop itself.
func (s *Server) handleAllowance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if !requireParams(w, req, 1, "owner address required") {
		return
	}
	owner, err := parseAddressParam(req.Params[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner address", err.Error())
		return
	}
	spender := core.DropAddress
	if len(req.Params) > 1 {
		if spender, err = parseAddressParam(req.Params[1]); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid spender address", err.Error())
			return
		}
	}
	amount, err := s.node.Allowance(owner, spender)
	if err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, AmountResult{
		Address: common.Address(owner).Hex(),
		Spender: common.Address(spender).Hex(),
		Amount:  amountString(amount),
	})
}

func (s *Server) handleNonce(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if !requireParams(w, req, 1, "address required") {
		return
	}
	addr, err := parseAddressParam(req.Params[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	nonce, err := s.node.Nonce(addr)
	if err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, nonce)
}

func (s *Server) handleRequiredFee(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if !requireParams(w, req, 1, "max supply required") {
		return
	}
	maxSupply, err := parseUintParam(req.Params[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid max supply", err.Error())
		return
	}
	fee, err := s.node.RequiredFee(maxSupply)
	if err != nil {
		writeDropError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, AmountResult{Amount: amountString(fee)})
}

type activityParams struct {
	Address  string  `json:"address"`
	DesignID *uint64 `json:"designId"`
	Limit    int     `json:"limit"`
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if s.activity == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "activity index not configured", nil)
		return
	}
	var params activityParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params[0], &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid activity filter", err.Error())
			return
		}
	}
	var (
		rows []indexer.Activity
		err  error
	)
	switch {
	case strings.TrimSpace(params.Address) != "":
		if _, parseErr := crypto.ParseAddress(params.Address); parseErr != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", parseErr.Error())
			return
		}
		rows, err = s.activity.ListByAddress(r.Context(), params.Address, params.Limit)
	case params.DesignID != nil:
		rows, err = s.activity.ListByDesign(r.Context(), *params.DesignID, params.Limit)
	default:
		rows, err = s.activity.Recent(r.Context(), params.Limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to query activity", err.Error())
		return
	}
	out := make([]ActivityResult, 0, len(rows))
	for _, row := range rows {
		out = append(out, formatActivity(row))
	}
	writeResult(w, req.ID, out)
}
